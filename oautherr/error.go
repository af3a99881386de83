// Package oautherr defines the protocol error taxonomy shared by every grant
// and facade. Each error carries the RFC 6749 machine-readable code, the HTTP
// status the embedder should respond with, and a human hint. Internal details
// never leak through these values.
package oautherr

import "fmt"

// Code is the machine-readable OAuth error code.
type Code string

const (
	CodeInvalidRequest          Code = "invalid_request"
	CodeInvalidClient           Code = "invalid_client"
	CodeInvalidGrant            Code = "invalid_grant"
	CodeInvalidScope            Code = "invalid_scope"
	CodeUnauthorizedClient      Code = "unauthorized_client"
	CodeUnsupportedGrantType    Code = "unsupported_grant_type"
	CodeUnsupportedResponseType Code = "unsupported_response_type"
	CodeAccessDenied            Code = "access_denied"
	CodeServerError             Code = "server_error"
	CodeSlowDown                Code = "slow_down"
	CodeAuthorizationPending    Code = "authorization_pending"
	CodeExpiredToken            Code = "expired_token"
)

// statusByCode maps each error code to its HTTP status. The table is constant;
// nothing mutates it after init.
var statusByCode = map[Code]int{
	CodeInvalidRequest:          400,
	CodeInvalidClient:           401,
	CodeInvalidGrant:            400,
	CodeInvalidScope:            400,
	CodeUnauthorizedClient:      401,
	CodeUnsupportedGrantType:    400,
	CodeUnsupportedResponseType: 400,
	CodeAccessDenied:            401,
	CodeServerError:             500,
	CodeSlowDown:                400,
	CodeAuthorizationPending:    400,
	CodeExpiredToken:            400,
}

// Error is a typed OAuth protocol error.
type Error struct {
	Code       Code
	Status     int
	Hint       string
	// RedirectTo is set when the error must be delivered to the client's
	// redirect URI (authorize endpoint failures after the URI was validated).
	RedirectTo string
	// State echoes the client's state parameter on redirect errors.
	State string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Hint == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Hint)
}

// New builds an Error for the given code with its canonical HTTP status.
func New(code Code, hint string) *Error {
	status, ok := statusByCode[code]
	if !ok {
		status = 500
	}
	return &Error{Code: code, Status: status, Hint: hint}
}

// WithRedirect returns a copy of the error that should be delivered via
// redirect to the given URI, echoing state.
func (e *Error) WithRedirect(uri, state string) *Error {
	clone := *e
	clone.RedirectTo = uri
	clone.State = state
	return &clone
}

// InvalidRequest signals a missing or malformed request parameter.
func InvalidRequest(param string) *Error {
	return New(CodeInvalidRequest, fmt.Sprintf("check the %q parameter", param))
}

// InvalidClient signals failed client authentication or an unknown client.
func InvalidClient() *Error {
	return New(CodeInvalidClient, "client authentication failed")
}

// InvalidGrant signals an invalid, expired, revoked or mismatched grant.
func InvalidGrant(hint string) *Error {
	return New(CodeInvalidGrant, hint)
}

// InvalidScope signals a scope the server does not recognize or will not grant.
func InvalidScope(scope string) *Error {
	return New(CodeInvalidScope, fmt.Sprintf("scope %q is not recognized", scope))
}

// UnauthorizedClient signals a client not permitted to use the grant.
func UnauthorizedClient() *Error {
	return New(CodeUnauthorizedClient, "client is not authorized to use this grant type")
}

// UnsupportedGrantType signals an unknown or disabled grant_type.
func UnsupportedGrantType() *Error {
	return New(CodeUnsupportedGrantType, "grant type is not supported by this server")
}

// UnsupportedResponseType signals an unknown or disabled response_type.
func UnsupportedResponseType() *Error {
	return New(CodeUnsupportedResponseType, "response type is not supported by this server")
}

// AccessDenied signals the resource owner or server refused the request.
func AccessDenied(hint string) *Error {
	return New(CodeAccessDenied, hint)
}

// ServerError signals an internal failure; the original cause stays server-side.
func ServerError() *Error {
	return New(CodeServerError, "an unexpected error occurred")
}

// SlowDown tells a polling device client it is polling faster than the
// advertised interval.
func SlowDown() *Error {
	return New(CodeSlowDown, "polling too fast, slow down by the interval")
}

// AuthorizationPending tells a polling device client the user has not yet
// completed authorization.
func AuthorizationPending() *Error {
	return New(CodeAuthorizationPending, "authorization request is still pending")
}

// ExpiredToken signals an expired device code during polling.
func ExpiredToken() *Error {
	return New(CodeExpiredToken, "the token or code has expired")
}
