package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned by VerifyAccessToken when the signature checks
// out but the exp claim has passed.
var ErrTokenExpired = errors.New("codec: token expired")

// ErrTokenInvalid is returned for any other verification failure: bad
// signature, malformed compact form, wrong algorithm, not-yet-valid token.
var ErrTokenInvalid = errors.New("codec: token invalid")

// AccessClaims is the claim set carried by a JWT-encoded access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Scopes   []string `json:"scopes"`
	ClientID string   `json:"client_id,omitempty"`
}

// SignAccessToken produces the signed compact JWT for the given claims.
func (k *KeyManager) SignAccessToken(claims *AccessClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = k.kid

	signed, err := token.SignedString(k.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken parses and verifies a compact JWT, returning its claims.
// Expiry is reported as ErrTokenExpired; every other failure as
// ErrTokenInvalid.
func (k *KeyManager) VerifyAccessToken(compact string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(compact, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return k.publicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// NewAccessClaims builds the standard claim set for an access token: aud is
// the client, sub the user, jti the token id.
func NewAccessClaims(tokenID, clientID, userID string, scopes []string, issuedAt, expiresAt time.Time) *AccessClaims {
	return &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Scopes:   scopes,
		ClientID: clientID,
	}
}
