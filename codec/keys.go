package codec

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// KeyManager holds the RSA signing key pair and its derived key id.
type KeyManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	kid        string
}

// LoadKeyManager parses an RSA private key from inline PEM. Supports PKCS#1
// and PKCS#8 encodings.
func LoadKeyManager(pemValue string) (*KeyManager, error) {
	if strings.TrimSpace(pemValue) == "" {
		return nil, fmt.Errorf("private key PEM is required")
	}
	pemValue = strings.ReplaceAll(pemValue, `\n`, "\n")

	block, _ := pem.Decode([]byte(pemValue))
	if block == nil {
		return nil, fmt.Errorf("invalid private key PEM")
	}

	var key *rsa.PrivateKey
	if parsed, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		key = parsed
	} else if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		key = rsaKey
	} else {
		return nil, fmt.Errorf("unable to parse RSA private key")
	}

	pub := &key.PublicKey
	kid, err := computeKID(pub)
	if err != nil {
		return nil, err
	}

	return &KeyManager{
		privateKey: key,
		publicKey:  pub,
		kid:        kid,
	}, nil
}

// LoadKeyManagerFromFile reads a PEM file and parses it. The file must exist
// and be readable; a missing key is a configuration error surfaced at
// construction, not at first use.
func LoadKeyManagerFromFile(path string) (*KeyManager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	return LoadKeyManager(string(data))
}

func (k *KeyManager) PrivateKey() *rsa.PrivateKey {
	return k.privateKey
}

func (k *KeyManager) PublicKey() *rsa.PublicKey {
	return k.publicKey
}

// KID returns the key id derived from the SHA-256 of the DER public key.
func (k *KeyManager) KID() string {
	return k.kid
}

func computeKID(pub *rsa.PublicKey) (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	sum := sha256.Sum256(derBytes)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
