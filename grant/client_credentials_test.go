package grant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCredentials(t *testing.T) {
	env := newTestEnv(t)
	g := NewClientCredentials(env.core)

	resp, oerr := g.RespondToTokenRequest(context.Background(), formRequest(map[string]string{
		"client_id":     "web-app",
		"client_secret": "s3cret",
		"scope":         "read write",
	}))
	require.Nil(t, oerr)

	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "read write", resp.Scope)
	assert.Empty(t, resp.RefreshToken)
	assert.Empty(t, resp.IDToken)

	claims, err := env.core.Keys.VerifyAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "web-app", claims.ClientID)
	assert.Empty(t, claims.Subject)
}

func TestClientCredentialsDefaultScopes(t *testing.T) {
	env := newTestEnv(t)
	g := NewClientCredentials(env.core)

	resp, oerr := g.RespondToTokenRequest(context.Background(), formRequest(map[string]string{
		"client_id":     "web-app",
		"client_secret": "s3cret",
	}))
	require.Nil(t, oerr)
	assert.Equal(t, "read", resp.Scope)
}

func TestClientCredentialsWrongSecret(t *testing.T) {
	env := newTestEnv(t)
	g := NewClientCredentials(env.core)

	_, oerr := g.RespondToTokenRequest(context.Background(), formRequest(map[string]string{
		"client_id":     "web-app",
		"client_secret": "nope",
	}))
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_client", string(oerr.Code))
	assert.Equal(t, 401, oerr.Status)
}

func TestClientCredentialsMissingSecret(t *testing.T) {
	env := newTestEnv(t)
	g := NewClientCredentials(env.core)

	_, oerr := g.RespondToTokenRequest(context.Background(), formRequest(map[string]string{
		"client_id": "cli-app",
	}))
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_client", string(oerr.Code))
}

func TestClientCredentialsUnknownClient(t *testing.T) {
	env := newTestEnv(t)
	g := NewClientCredentials(env.core)

	_, oerr := g.RespondToTokenRequest(context.Background(), formRequest(map[string]string{
		"client_id":     "ghost",
		"client_secret": "s3cret",
	}))
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_client", string(oerr.Code))
}
