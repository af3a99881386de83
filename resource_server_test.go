package oauth2

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/oauth2/codec"
	"github.com/gatewarden/oauth2/config"
	"github.com/gatewarden/oauth2/entity"
	"github.com/gatewarden/oauth2/storage"
	"github.com/gatewarden/oauth2/wire"
)

func newTestResourceServer(t *testing.T, format config.TokenFormat) (*ResourceServer, *codec.KeyManager, *storage.MemoryStore) {
	t.Helper()
	keys, err := codec.LoadKeyManager(serverTestKeyPEM(t))
	require.NoError(t, err)
	store := storage.NewMemoryStore()
	return NewResourceServer(keys, store, format), keys, store
}

func bearerRequest(token string) *wire.Request {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return &wire.Request{Header: header}
}

func signTestToken(t *testing.T, keys *codec.KeyManager, tokenID string, expiresAt time.Time) string {
	t.Helper()
	now := time.Now()
	claims := codec.NewAccessClaims(tokenID, "web-app", "user-7", []string{"read"}, now.Add(-time.Minute), expiresAt)
	signed, err := keys.SignAccessToken(claims)
	require.NoError(t, err)
	return signed
}

func TestValidateRequestJWT(t *testing.T) {
	rs, keys, _ := newTestResourceServer(t, config.TokenFormatJWT)
	signed := signTestToken(t, keys, "tok-1", time.Now().Add(time.Hour))

	info, oerr := rs.ValidateRequest(context.Background(), bearerRequest(signed))
	require.Nil(t, oerr)
	assert.Equal(t, "tok-1", info.TokenID)
	assert.Equal(t, "web-app", info.ClientID)
	assert.Equal(t, "user-7", info.UserID)
	assert.Equal(t, []string{"read"}, info.Scopes)
	assert.False(t, info.ExpiresAt.IsZero())
}

func TestValidateRequestMissingToken(t *testing.T) {
	rs, _, _ := newTestResourceServer(t, config.TokenFormatJWT)

	_, oerr := rs.ValidateRequest(context.Background(), &wire.Request{})
	require.NotNil(t, oerr)
	assert.Equal(t, "access_denied", string(oerr.Code))
	assert.Equal(t, 401, oerr.Status)
	assert.Contains(t, oerr.Hint, "missing")
}

func TestValidateRequestExpiredToken(t *testing.T) {
	rs, keys, _ := newTestResourceServer(t, config.TokenFormatJWT)
	signed := signTestToken(t, keys, "tok-1", time.Now().Add(-time.Hour))

	_, oerr := rs.ValidateRequest(context.Background(), bearerRequest(signed))
	require.NotNil(t, oerr)
	assert.Equal(t, "access_denied", string(oerr.Code))
	assert.Contains(t, oerr.Hint, "expired")
}

func TestValidateRequestTamperedToken(t *testing.T) {
	rs, keys, _ := newTestResourceServer(t, config.TokenFormatJWT)
	signed := signTestToken(t, keys, "tok-1", time.Now().Add(time.Hour))
	tampered := signed[:len(signed)-2] + "xx"

	_, oerr := rs.ValidateRequest(context.Background(), bearerRequest(tampered))
	require.NotNil(t, oerr)
	assert.Equal(t, "access_denied", string(oerr.Code))
	assert.Contains(t, oerr.Hint, "verified")
}

func TestValidateRequestRevokedToken(t *testing.T) {
	rs, keys, store := newTestResourceServer(t, config.TokenFormatJWT)
	signed := signTestToken(t, keys, "tok-1", time.Now().Add(time.Hour))

	require.NoError(t, store.RevokeAccessToken(context.Background(), "tok-1"))

	_, oerr := rs.ValidateRequest(context.Background(), bearerRequest(signed))
	require.NotNil(t, oerr)
	assert.Equal(t, "access_denied", string(oerr.Code))
	assert.Contains(t, oerr.Hint, "revoked")
}

func persistOpaqueToken(t *testing.T, store *storage.MemoryStore, secret string, expiry time.Time) {
	t.Helper()
	require.NoError(t, store.PersistAccessToken(context.Background(), &entity.AccessToken{
		ID:            secret,
		ClientID:      "web-app",
		UserID:        "user-7",
		GrantedScopes: []entity.Scope{{ID: "read"}},
		Expiry:        expiry,
	}))
}

func TestValidateRequestOpaque(t *testing.T) {
	rs, _, store := newTestResourceServer(t, config.TokenFormatOpaque)
	ctx := context.Background()
	persistOpaqueToken(t, store, "opaque-token-1", time.Now().Add(time.Hour))

	info, oerr := rs.ValidateRequest(ctx, bearerRequest("opaque-token-1"))
	require.Nil(t, oerr)
	// The stored record carries the digest, never the bearer secret.
	assert.Equal(t, codec.HashToken("opaque-token-1"), info.TokenID)
	assert.Equal(t, "web-app", info.ClientID)
	assert.Equal(t, "user-7", info.UserID)
	assert.Equal(t, []string{"read"}, info.Scopes)

	require.NoError(t, store.RevokeAccessToken(ctx, "opaque-token-1"))
	_, oerr = rs.ValidateRequest(ctx, bearerRequest("opaque-token-1"))
	require.NotNil(t, oerr)
	assert.Equal(t, "access_denied", string(oerr.Code))
	assert.Contains(t, oerr.Hint, "revoked")
}

func TestValidateRequestOpaqueUnknownToken(t *testing.T) {
	rs, _, _ := newTestResourceServer(t, config.TokenFormatOpaque)

	_, oerr := rs.ValidateRequest(context.Background(), bearerRequest("never-issued"))
	require.NotNil(t, oerr)
	assert.Equal(t, "access_denied", string(oerr.Code))
	assert.Equal(t, 401, oerr.Status)
	assert.Contains(t, oerr.Hint, "verified")
}

func TestValidateRequestOpaqueExpiredToken(t *testing.T) {
	rs, _, store := newTestResourceServer(t, config.TokenFormatOpaque)
	persistOpaqueToken(t, store, "opaque-token-2", time.Now().Add(-time.Minute))

	_, oerr := rs.ValidateRequest(context.Background(), bearerRequest("opaque-token-2"))
	require.NotNil(t, oerr)
	assert.Equal(t, "access_denied", string(oerr.Code))
	assert.Contains(t, oerr.Hint, "expired")
}

func TestValidateRequestQueryTokenOptIn(t *testing.T) {
	rs, keys, _ := newTestResourceServer(t, config.TokenFormatJWT)
	signed := signTestToken(t, keys, "tok-1", time.Now().Add(time.Hour))
	req := &wire.Request{Query: url.Values{"access_token": {signed}}}

	// Off by default.
	_, oerr := rs.ValidateRequest(context.Background(), req)
	require.NotNil(t, oerr)
	assert.Contains(t, oerr.Hint, "missing")

	rs.AllowTokenInQuery()
	info, oerr := rs.ValidateRequest(context.Background(), req)
	require.Nil(t, oerr)
	assert.Equal(t, "tok-1", info.TokenID)
}
