package wire

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gatewarden/oauth2/codec"
)

// IDTokenClaims is the OpenID Connect ID token claim set.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce,omitempty"`
}

// NewIDToken mints the OIDC ID token attached to a bearer response when the
// finalized scopes include "openid". Signed with the same RS256 key as access
// tokens.
func NewIDToken(keys *codec.KeyManager, issuer, clientID, userID, nonce string, now time.Time, ttl time.Duration) (string, error) {
	claims := &IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Nonce: nonce,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keys.KID()
	return token.SignedString(keys.PrivateKey())
}
