package wire

import (
	"crypto/rsa"
	"encoding/base64"
	"math/big"
)

// ServerMetadata is the RFC 8414 authorization-server metadata document. The
// embedder fills endpoints from its own routing and serves this under
// /.well-known/oauth-authorization-server.
type ServerMetadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	JWKSURI                       string   `json:"jwks_uri,omitempty"`
	IntrospectionEndpoint         string   `json:"introspection_endpoint,omitempty"`
	RevocationEndpoint            string   `json:"revocation_endpoint,omitempty"`
	DeviceAuthorizationEndpoint   string   `json:"device_authorization_endpoint,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported"`
	GrantTypesSupported           []string `json:"grant_types_supported"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethods      []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

func (*ServerMetadata) StatusCode() int { return 200 }

// JWKS is the public key set document for verifying issued JWTs.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

func (*JWKS) StatusCode() int { return 200 }

// JWK is a single RSA signing key in JWK form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// NewJWKS wraps the RSA public key in a one-key JWKS document.
func NewJWKS(pub *rsa.PublicKey, kid string) *JWKS {
	return &JWKS{Keys: []JWK{{
		Kty: "RSA",
		Use: "sig",
		Kid: kid,
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(bigIntBytes(big.NewInt(int64(pub.E)))),
	}}}
}

func bigIntBytes(value *big.Int) []byte {
	if value == nil || value.Sign() == 0 {
		return []byte{0}
	}
	return value.Bytes()
}
