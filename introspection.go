package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gatewarden/oauth2/codec"
	"github.com/gatewarden/oauth2/config"
	"github.com/gatewarden/oauth2/entity"
	"github.com/gatewarden/oauth2/oautherr"
	"github.com/gatewarden/oauth2/wire"
)

// IntrospectToken implements RFC 7662. Any token that fails verification, has
// expired or was revoked introspects as inactive with HTTP 200; only a
// missing token parameter is a protocol error.
func (s *AuthorizationServer) IntrospectToken(ctx context.Context, req *wire.Request) (*wire.IntrospectionResponse, *oautherr.Error) {
	token := req.Param("token")
	if token == "" {
		return nil, oautherr.InvalidRequest("token")
	}

	if s.core.TokenFormat == config.TokenFormatOpaque {
		return s.introspectOpaque(ctx, token)
	}

	inactive := &wire.IntrospectionResponse{Active: false}

	claims, err := s.core.Keys.VerifyAccessToken(token)
	if err != nil {
		return inactive, nil
	}

	revoked, rerr := s.core.AccessTokens.IsAccessTokenRevoked(ctx, claims.ID)
	if rerr != nil || revoked {
		return inactive, nil
	}

	resp := &wire.IntrospectionResponse{
		Active:    true,
		Scope:     strings.Join(claims.Scopes, " "),
		ClientID:  claims.ClientID,
		Sub:       claims.Subject,
		Jti:       claims.ID,
		TokenType: "Bearer",
	}
	if claims.ExpiresAt != nil {
		resp.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		resp.Iat = claims.IssuedAt.Unix()
	}
	return resp, nil
}

// introspectOpaque resolves the presented identifier through the repository.
// The reported jti is the stored record's identifier, which backends keep as
// a digest of the bearer secret rather than the secret itself.
func (s *AuthorizationServer) introspectOpaque(ctx context.Context, token string) (*wire.IntrospectionResponse, *oautherr.Error) {
	inactive := &wire.IntrospectionResponse{Active: false}

	record, err := s.core.AccessTokens.GetAccessToken(ctx, token)
	if err != nil || record == nil {
		return inactive, nil
	}
	if entity.IsExpired(record, time.Now()) {
		return inactive, nil
	}
	revoked, err := s.core.AccessTokens.IsAccessTokenRevoked(ctx, token)
	if err != nil || revoked {
		return inactive, nil
	}

	return &wire.IntrospectionResponse{
		Active:    true,
		Scope:     strings.Join(entity.ScopeIDs(record.GrantedScopes), " "),
		ClientID:  record.ClientID,
		Sub:       record.UserID,
		Jti:       record.ID,
		TokenType: "Bearer",
		Exp:       record.Expiry.Unix(),
	}, nil
}

// RevokeToken implements RFC 7009: the outcome is 200 whether or not the
// presented token exists or was already revoked. Refresh tokens revoke their
// bound access token too.
func (s *AuthorizationServer) RevokeToken(ctx context.Context, req *wire.Request) (*wire.RevocationResponse, *oautherr.Error) {
	token := req.Param("token")
	if token == "" {
		return nil, oautherr.InvalidRequest("token")
	}

	done := &wire.RevocationResponse{}

	// A refresh token is an encrypted payload of ours; try that first
	// regardless of token_type_hint, falling through on failure per RFC 7009.
	if raw, err := s.core.Encryptor.Decrypt(token); err == nil {
		var payload struct {
			RefreshTokenID string `json:"refresh_token_id"`
			AccessTokenID  string `json:"access_token_id"`
		}
		if jerr := json.Unmarshal(raw, &payload); jerr == nil && payload.RefreshTokenID != "" {
			_ = s.core.RefreshTokens.RevokeRefreshToken(ctx, payload.RefreshTokenID)
			if payload.AccessTokenID != "" {
				_ = s.core.AccessTokens.RevokeAccessToken(ctx, payload.AccessTokenID)
			}
			return done, nil
		}
	}

	// JWT access token: revoke by jti. An expired token is already dead, so
	// it still gets the idempotent 200.
	claims, err := s.core.Keys.VerifyAccessToken(token)
	if err == nil && claims.ID != "" {
		_ = s.core.AccessTokens.RevokeAccessToken(ctx, claims.ID)
		return done, nil
	}
	if errors.Is(err, codec.ErrTokenExpired) {
		return done, nil
	}

	// Opaque access token: the presented string is the identifier.
	_ = s.core.AccessTokens.RevokeAccessToken(ctx, token)
	return done, nil
}
