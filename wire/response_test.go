package wire

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/oauth2/oautherr"
)

func TestAuthCodeRedirect(t *testing.T) {
	resp := AuthCodeRedirect("https://app.example.com/callback?keep=1", "the-code", "xyz")
	assert.Equal(t, 302, resp.StatusCode())

	loc, err := url.Parse(resp.Location)
	require.NoError(t, err)
	assert.Equal(t, "the-code", loc.Query().Get("code"))
	assert.Equal(t, "xyz", loc.Query().Get("state"))
	// Pre-existing query parameters survive.
	assert.Equal(t, "1", loc.Query().Get("keep"))
}

func TestImplicitRedirectUsesFragment(t *testing.T) {
	resp := ImplicitRedirect("https://app.example.com/callback", "the-token", 3600, "xyz")

	base, frag, found := strings.Cut(resp.Location, "#")
	require.True(t, found)
	assert.NotContains(t, base, "the-token")

	params, err := url.ParseQuery(frag)
	require.NoError(t, err)
	assert.Equal(t, "the-token", params.Get("access_token"))
	assert.Equal(t, "Bearer", params.Get("token_type"))
	assert.Equal(t, "3600", params.Get("expires_in"))
	assert.Equal(t, "xyz", params.Get("state"))
}

func TestErrorRedirect(t *testing.T) {
	resp := ErrorRedirect("https://app.example.com/callback", oautherr.CodeAccessDenied, "xyz")

	loc, err := url.Parse(resp.Location)
	require.NoError(t, err)
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Equal(t, "xyz", loc.Query().Get("state"))

	noState := ErrorRedirect("https://app.example.com/callback", oautherr.CodeAccessDenied, "")
	loc, err = url.Parse(noState.Location)
	require.NoError(t, err)
	assert.False(t, loc.Query().Has("state"))
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(oautherr.InvalidClient())
	assert.Equal(t, "invalid_client", resp.ErrorCode)
	assert.Equal(t, 401, resp.StatusCode())
	assert.NotEmpty(t, resp.Hint)

	resp = NewErrorResponse(oautherr.InvalidGrant("code expired"))
	assert.Equal(t, "invalid_grant", resp.ErrorCode)
	assert.Equal(t, 400, resp.StatusCode())
	assert.Equal(t, "code expired", resp.Hint)
}
