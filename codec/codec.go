// Package codec produces and consumes the two token encodings used by the
// grants: authenticated symmetric encryption for opaque payloads (refresh
// tokens, auth codes, device codes) and RS256-signed JWTs for bearer access
// tokens.
package codec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt is returned for any ciphertext that cannot be authenticated and
// decrypted: tampering, a wrong key, or malformed input. Callers map it to a
// protocol error; the cause is deliberately not distinguished.
var ErrDecrypt = errors.New("codec: cannot decrypt payload")

// KeySize is the required encryption key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Encryptor performs authenticated symmetric encryption of opaque token
// payloads using ChaCha20-Poly1305.
type Encryptor struct {
	key []byte
}

// NewEncryptor validates the key length and returns an Encryptor.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Encryptor{key: key}, nil
}

// Encrypt seals plaintext and returns base64url(nonce || ciphertext).
func (e *Encryptor) Encrypt(plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.New(e.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Every failure mode returns ErrDecrypt.
func (e *Encryptor) Decrypt(ciphertext string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrDecrypt
	}
	aead, err := chacha20poly1305.New(e.key)
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(raw) < aead.NonceSize() {
		return nil, ErrDecrypt
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// RandomString returns a base64url-encoded random string from length bytes of
// entropy.
func RandomString(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex-encoded SHA-256 of value. Storage backends index
// opaque secrets by this hash so a dumped table never yields usable tokens.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
