package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemValue := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))

	t.Setenv("OAUTH_ISSUER", "https://auth.example.com/")
	t.Setenv("OAUTH_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
	t.Setenv("OAUTH_PRIVATE_KEY_PEM", pemValue)
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.com", cfg.Issuer)
	assert.Len(t, cfg.EncryptionKey, 32)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.AuthCodeTTL)
	assert.Equal(t, 10*time.Minute, cfg.DeviceCodeTTL)
	assert.Equal(t, 5*time.Second, cfg.DevicePollInterval)
	assert.Equal(t, TokenFormatJWT, cfg.AccessTokenFormat)
	assert.True(t, cfg.RotateRefreshTokens)
	assert.False(t, cfg.RequireScopeParam)
	assert.Nil(t, cfg.DefaultScopes)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OAUTH_ACCESS_TOKEN_TTL", "5m")
	t.Setenv("OAUTH_DEFAULT_SCOPES", "read write")
	t.Setenv("OAUTH_ACCESS_TOKEN_FORMAT", "opaque")
	t.Setenv("OAUTH_ROTATE_REFRESH_TOKENS", "false")
	t.Setenv("OAUTH_REQUIRE_STATE", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, []string{"read", "write"}, cfg.DefaultScopes)
	assert.Equal(t, TokenFormatOpaque, cfg.AccessTokenFormat)
	assert.False(t, cfg.RotateRefreshTokens)
	assert.True(t, cfg.RequireStateParam)
}

func TestLoadKeyFromFile(t *testing.T) {
	setRequiredEnv(t)
	pemValue := os.Getenv("OAUTH_PRIVATE_KEY_PEM")
	t.Setenv("OAUTH_PRIVATE_KEY_PEM", "")

	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(path, []byte(pemValue), 0o600))
	t.Setenv("OAUTH_PRIVATE_KEY_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, pemValue, cfg.PrivateKeyPEM)
}

func TestLoadMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OAUTH_ISSUER", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OAUTH_ISSUER")

	setRequiredEnv(t)
	t.Setenv("OAUTH_ENCRYPTION_KEY", "not base64!!")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base64")

	setRequiredEnv(t)
	t.Setenv("OAUTH_PRIVATE_KEY_PEM", "")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OAUTH_PRIVATE_KEY")
}

func TestLoadRejectsUnknownTokenFormat(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OAUTH_ACCESS_TOKEN_FORMAT", "paseto")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt or opaque")
}
