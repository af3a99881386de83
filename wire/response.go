package wire

import (
	"net/url"
	"strconv"

	"github.com/gatewarden/oauth2/oautherr"
)

// Response is a neutral outbound payload. The embedder switches on the
// concrete type: JSON bodies carry their status, redirects carry a Location.
type Response interface {
	StatusCode() int
}

// BearerTokenResponse is the token-endpoint success body.
type BearerTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

func (*BearerTokenResponse) StatusCode() int { return 200 }

// DeviceAuthorizationResponse is the device-authorization-endpoint success
// body (RFC 8628 §3.2).
type DeviceAuthorizationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

func (*DeviceAuthorizationResponse) StatusCode() int { return 200 }

// RedirectResponse delivers a result to the client's redirect URI.
type RedirectResponse struct {
	Location string
}

func (*RedirectResponse) StatusCode() int { return 302 }

// AuthCodeRedirect builds the §4.1.2 success redirect: code and state in the
// query string.
func AuthCodeRedirect(redirectURI, code, state string) *RedirectResponse {
	return &RedirectResponse{Location: appendQuery(redirectURI, url.Values{
		"code":  {code},
		"state": {state},
	})}
}

// ImplicitRedirect builds the §4.2.2 success redirect: token parameters in
// the URI fragment, never the query string.
func ImplicitRedirect(redirectURI, accessToken string, expiresIn int, state string) *RedirectResponse {
	frag := url.Values{
		"access_token": {accessToken},
		"token_type":   {"Bearer"},
		"expires_in":   {strconv.Itoa(expiresIn)},
	}
	if state != "" {
		frag.Set("state", state)
	}
	return &RedirectResponse{Location: redirectURI + "#" + frag.Encode()}
}

// ErrorRedirect delivers a protocol error to a validated redirect URI.
func ErrorRedirect(redirectURI string, code oautherr.Code, state string) *RedirectResponse {
	params := url.Values{"error": {string(code)}}
	if state != "" {
		params.Set("state", state)
	}
	return &RedirectResponse{Location: appendQuery(redirectURI, params)}
}

// ErrorResponse is the JSON error body for non-redirect failures.
type ErrorResponse struct {
	ErrorCode string `json:"error"`
	Hint      string `json:"error_description,omitempty"`
	status    int
}

func (e *ErrorResponse) StatusCode() int { return e.status }

// NewErrorResponse maps a protocol error to its JSON body. Redirect-bound
// errors should go through ErrorRedirect instead.
func NewErrorResponse(err *oautherr.Error) *ErrorResponse {
	return &ErrorResponse{
		ErrorCode: string(err.Code),
		Hint:      err.Hint,
		status:    err.Status,
	}
}

// IntrospectionResponse is the RFC 7662 body. Only Active is emitted for
// inactive tokens.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Jti       string `json:"jti,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

func (*IntrospectionResponse) StatusCode() int { return 200 }

// RevocationResponse is the RFC 7009 body: always success, whether or not the
// presented token existed.
type RevocationResponse struct{}

func (*RevocationResponse) StatusCode() int { return 200 }

// HTMLResponse carries rendered markup for login/consent pages. The markup
// comes from the embedder's Renderer.
type HTMLResponse struct {
	Body string
}

func (*HTMLResponse) StatusCode() int { return 200 }

// Renderer produces login/consent HTML. The core never generates markup.
type Renderer interface {
	// RenderAuthorize renders the consent page for the given client name,
	// scope identifiers and opaque continuation token.
	RenderAuthorize(clientName string, scopes []string, continuation string) (string, error)
}

func appendQuery(base string, params url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for key, vals := range params {
		for _, v := range vals {
			if v != "" || key == "code" {
				q.Set(key, v)
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
