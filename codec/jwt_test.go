package codec

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPEMOnce sync.Once
	testPEM     string
)

// testKeyPEM generates one RSA key for the whole package; key generation is
// the slow part of these tests.
func testKeyPEM(t *testing.T) string {
	t.Helper()
	testPEMOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		testPEM = string(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		}))
	})
	return testPEM
}

func newTestKeyManager(t *testing.T) *KeyManager {
	t.Helper()
	keys, err := LoadKeyManager(testKeyPEM(t))
	require.NoError(t, err)
	return keys
}

func TestLoadKeyManagerRejectsGarbage(t *testing.T) {
	_, err := LoadKeyManager("")
	assert.Error(t, err)

	_, err = LoadKeyManager("not a pem block")
	assert.Error(t, err)
}

func TestLoadKeyManagerPKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemValue := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	keys, err := LoadKeyManager(pemValue)
	require.NoError(t, err)
	assert.NotEmpty(t, keys.KID())
}

func TestKIDStableForSameKey(t *testing.T) {
	first, err := LoadKeyManager(testKeyPEM(t))
	require.NoError(t, err)
	second, err := LoadKeyManager(testKeyPEM(t))
	require.NoError(t, err)
	assert.Equal(t, first.KID(), second.KID())
}

func TestSignAndVerifyAccessToken(t *testing.T) {
	keys := newTestKeyManager(t)
	now := time.Now()

	claims := NewAccessClaims("tok-1", "web-app", "user-7", []string{"read", "write"}, now, now.Add(time.Hour))
	claims.Issuer = "https://auth.example.com"

	signed, err := keys.SignAccessToken(claims)
	require.NoError(t, err)

	parsed, err := keys.VerifyAccessToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", parsed.ID)
	assert.Equal(t, "user-7", parsed.Subject)
	assert.Equal(t, "web-app", parsed.ClientID)
	assert.Equal(t, []string{"read", "write"}, parsed.Scopes)
	assert.Equal(t, "https://auth.example.com", parsed.Issuer)
}

func TestVerifyAccessTokenExpired(t *testing.T) {
	keys := newTestKeyManager(t)
	now := time.Now()

	claims := NewAccessClaims("tok-1", "web-app", "user-7", nil, now.Add(-2*time.Hour), now.Add(-time.Hour))
	signed, err := keys.SignAccessToken(claims)
	require.NoError(t, err)

	_, err = keys.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyAccessTokenRejectsTampering(t *testing.T) {
	keys := newTestKeyManager(t)
	now := time.Now()

	claims := NewAccessClaims("tok-1", "web-app", "user-7", nil, now, now.Add(time.Hour))
	signed, err := keys.SignAccessToken(claims)
	require.NoError(t, err)

	tampered := signed[:len(signed)-2] + "xx"
	_, err = keys.VerifyAccessToken(tampered)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyAccessTokenRejectsWrongKey(t *testing.T) {
	keys := newTestKeyManager(t)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKeys, err := LoadKeyManager(string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(other),
	})))
	require.NoError(t, err)

	now := time.Now()
	signed, err := otherKeys.SignAccessToken(NewAccessClaims("tok-1", "web-app", "", nil, now, now.Add(time.Hour)))
	require.NoError(t, err)

	_, err = keys.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyAccessTokenRejectsGarbage(t *testing.T) {
	keys := newTestKeyManager(t)
	_, err := keys.VerifyAccessToken("not.a.jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
