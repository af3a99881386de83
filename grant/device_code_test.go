package grant

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeviceGrant(env *testEnv) *DeviceCode {
	return NewDeviceCode(env.core, env.store.DeviceCodes(), env.store.Polls(),
		10*time.Minute, 5*time.Second, "https://auth.example.com/device", true)
}

func startDeviceFlow(t *testing.T, g *DeviceCode) (serialized, deviceCodeID, userCode string) {
	t.Helper()
	resp, oerr := g.RespondToDeviceAuthorizationRequest(context.Background(), formRequest(map[string]string{
		"client_id": "cli-app",
		"scope":     "read",
	}))
	require.Nil(t, oerr)

	payload, err := decryptDeviceCode(g.core.Encryptor, resp.DeviceCode)
	require.NoError(t, err)
	return resp.DeviceCode, payload.DeviceCodeID, resp.UserCode
}

func pollParams(serialized string) map[string]string {
	return map[string]string{
		"client_id":   "cli-app",
		"device_code": serialized,
	}
}

func TestDeviceAuthorizationResponse(t *testing.T) {
	env := newTestEnv(t)
	g := newDeviceGrant(env)

	resp, oerr := g.RespondToDeviceAuthorizationRequest(context.Background(), formRequest(map[string]string{
		"client_id": "cli-app",
		"scope":     "read",
	}))
	require.Nil(t, oerr)

	assert.NotEmpty(t, resp.DeviceCode)
	assert.Len(t, resp.UserCode, 8)
	for _, r := range resp.UserCode {
		assert.Contains(t, userCodeCharset, string(r))
	}
	assert.Equal(t, "https://auth.example.com/device", resp.VerificationURI)
	assert.Equal(t, "https://auth.example.com/device?user_code="+resp.UserCode, resp.VerificationURIComplete)
	assert.Equal(t, 600, resp.ExpiresIn)
	assert.Equal(t, 5, resp.Interval)
}

func TestDevicePollingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	g := newDeviceGrant(env)
	ctx := context.Background()

	serialized, deviceCodeID, _ := startDeviceFlow(t, g)

	// Not yet approved.
	_, oerr := g.RespondToTokenRequest(ctx, formRequest(pollParams(serialized)))
	require.NotNil(t, oerr)
	assert.Equal(t, "authorization_pending", string(oerr.Code))

	// Polling again inside the interval is throttled.
	_, oerr = g.RespondToTokenRequest(ctx, formRequest(pollParams(serialized)))
	require.NotNil(t, oerr)
	assert.Equal(t, "slow_down", string(oerr.Code))

	// Back off, still pending.
	env.clock.Advance(5 * time.Second)
	_, oerr = g.RespondToTokenRequest(ctx, formRequest(pollParams(serialized)))
	require.NotNil(t, oerr)
	assert.Equal(t, "authorization_pending", string(oerr.Code))

	// The user approves out-of-band.
	require.Nil(t, g.CompleteDeviceAuthorizationRequest(ctx, deviceCodeID, "user-7", true))

	env.clock.Advance(5 * time.Second)
	resp, oerr := g.RespondToTokenRequest(ctx, formRequest(pollParams(serialized)))
	require.Nil(t, oerr)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "read", resp.Scope)

	claims, err := env.core.Keys.VerifyAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.Subject)
	assert.Equal(t, "cli-app", claims.ClientID)

	// The code is single use.
	env.clock.Advance(5 * time.Second)
	_, oerr = g.RespondToTokenRequest(ctx, formRequest(pollParams(serialized)))
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_grant", string(oerr.Code))
}

func TestDevicePollingDenied(t *testing.T) {
	env := newTestEnv(t)
	g := newDeviceGrant(env)
	ctx := context.Background()

	serialized, deviceCodeID, _ := startDeviceFlow(t, g)
	require.Nil(t, g.CompleteDeviceAuthorizationRequest(ctx, deviceCodeID, "", false))

	_, oerr := g.RespondToTokenRequest(ctx, formRequest(pollParams(serialized)))
	require.NotNil(t, oerr)
	assert.Equal(t, "access_denied", string(oerr.Code))
	assert.Equal(t, 401, oerr.Status)
}

func TestDevicePollingExpired(t *testing.T) {
	env := newTestEnv(t)
	g := newDeviceGrant(env)

	serialized, _, _ := startDeviceFlow(t, g)
	env.clock.Advance(11 * time.Minute)

	_, oerr := g.RespondToTokenRequest(context.Background(), formRequest(pollParams(serialized)))
	require.NotNil(t, oerr)
	assert.Equal(t, "expired_token", string(oerr.Code))
}

func TestDevicePollingWrongClient(t *testing.T) {
	env := newTestEnv(t)
	g := newDeviceGrant(env)

	serialized, _, _ := startDeviceFlow(t, g)

	_, oerr := g.RespondToTokenRequest(context.Background(), formRequest(map[string]string{
		"client_id":     "web-app",
		"client_secret": "s3cret",
		"device_code":   serialized,
	}))
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_grant", string(oerr.Code))
}

func TestDevicePollingGarbage(t *testing.T) {
	env := newTestEnv(t)
	g := newDeviceGrant(env)

	_, oerr := g.RespondToTokenRequest(context.Background(), formRequest(map[string]string{
		"client_id":   "cli-app",
		"device_code": "garbage",
	}))
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_grant", string(oerr.Code))
	assert.Contains(t, oerr.Hint, "decrypt")

	_, oerr = g.RespondToTokenRequest(context.Background(), formRequest(map[string]string{
		"client_id": "cli-app",
	}))
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_request", string(oerr.Code))
}

func TestUserCodeCharset(t *testing.T) {
	code, err := generateUserCode()
	require.NoError(t, err)
	assert.Len(t, code, userCodeLength)
	for _, r := range code {
		assert.True(t, strings.ContainsRune(userCodeCharset, r))
	}
	assert.NotContains(t, code, "A")
	assert.NotContains(t, code, "E")
}
