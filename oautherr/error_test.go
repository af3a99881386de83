package oautherr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err    *Error
		code   string
		status int
	}{
		{InvalidRequest("scope"), "invalid_request", 400},
		{InvalidClient(), "invalid_client", 401},
		{InvalidGrant("expired"), "invalid_grant", 400},
		{InvalidScope("admin"), "invalid_scope", 400},
		{UnauthorizedClient(), "unauthorized_client", 401},
		{UnsupportedGrantType(), "unsupported_grant_type", 400},
		{UnsupportedResponseType(), "unsupported_response_type", 400},
		{AccessDenied("nope"), "access_denied", 401},
		{ServerError(), "server_error", 500},
		{SlowDown(), "slow_down", 400},
		{AuthorizationPending(), "authorization_pending", 400},
		{ExpiredToken(), "expired_token", 400},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.code, string(tc.err.Code))
		assert.Equal(t, tc.status, tc.err.Status, tc.code)
	}
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "invalid_grant: code expired", InvalidGrant("code expired").Error())
	assert.Equal(t, "server_error: an unexpected error occurred", ServerError().Error())
	assert.Equal(t, "invalid_grant", New(CodeInvalidGrant, "").Error())
}

func TestWithRedirectClones(t *testing.T) {
	base := AccessDenied("user said no")
	redirected := base.WithRedirect("https://app.example.com/callback", "xyz")

	assert.Empty(t, base.RedirectTo)
	assert.Equal(t, "https://app.example.com/callback", redirected.RedirectTo)
	assert.Equal(t, "xyz", redirected.State)
	assert.Equal(t, base.Code, redirected.Code)
}

func TestUnknownCodeDefaultsTo500(t *testing.T) {
	err := New(Code("made_up"), "")
	assert.Equal(t, 500, err.Status)
}
