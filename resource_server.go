package oauth2

import (
	"context"
	"errors"
	"time"

	"github.com/gatewarden/oauth2/codec"
	"github.com/gatewarden/oauth2/config"
	"github.com/gatewarden/oauth2/entity"
	"github.com/gatewarden/oauth2/oautherr"
	"github.com/gatewarden/oauth2/repository"
	"github.com/gatewarden/oauth2/wire"
)

// TokenInfo is the validated view of a bearer token the resource server
// exposes to the embedding application. Authorizing individual endpoints
// against Scopes is the application's job.
type TokenInfo struct {
	TokenID   string
	ClientID  string
	UserID    string
	Scopes    []string
	ExpiresAt time.Time
}

// ResourceServer validates bearer tokens presented on protected requests.
type ResourceServer struct {
	keys         *codec.KeyManager
	accessTokens repository.AccessTokenRepository
	format       config.TokenFormat
	// allowQueryToken/allowBodyToken opt in to the least-preferred bearer
	// locations of RFC 6750 §2.2/§2.3.
	allowQueryToken bool
	allowBodyToken  bool
}

// NewResourceServer builds a validator around the public signing key and the
// access-token repository. JWT validation consults the repository for
// revocation only; opaque validation resolves the whole record through it.
func NewResourceServer(keys *codec.KeyManager, accessTokens repository.AccessTokenRepository, format config.TokenFormat) *ResourceServer {
	return &ResourceServer{
		keys:         keys,
		accessTokens: accessTokens,
		format:       format,
	}
}

// AllowTokenInQuery permits access_token as a query parameter.
func (s *ResourceServer) AllowTokenInQuery() { s.allowQueryToken = true }

// AllowTokenInBody permits access_token as a body parameter.
func (s *ResourceServer) AllowTokenInBody() { s.allowBodyToken = true }

// ValidateRequest extracts and verifies the bearer token: signature, expiry
// and revocation. Every failure surfaces as access_denied so callers leak
// nothing about why a credential was rejected.
func (s *ResourceServer) ValidateRequest(ctx context.Context, req *wire.Request) (*TokenInfo, *oautherr.Error) {
	token := req.BearerToken(s.allowQueryToken, s.allowBodyToken)
	if token == "" {
		return nil, oautherr.AccessDenied("missing bearer token")
	}

	if s.format == config.TokenFormatOpaque {
		return s.validateOpaque(ctx, token)
	}

	claims, err := s.keys.VerifyAccessToken(token)
	if err != nil {
		if errors.Is(err, codec.ErrTokenExpired) {
			return nil, oautherr.AccessDenied("access token has expired")
		}
		return nil, oautherr.AccessDenied("access token could not be verified")
	}

	revoked, rerr := s.accessTokens.IsAccessTokenRevoked(ctx, claims.ID)
	if rerr != nil {
		return nil, oautherr.ServerError()
	}
	if revoked {
		return nil, oautherr.AccessDenied("access token has been revoked")
	}

	info := &TokenInfo{
		TokenID:  claims.ID,
		ClientID: claims.ClientID,
		UserID:   claims.Subject,
		Scopes:   claims.Scopes,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// validateOpaque resolves an opaque identifier through the repository, which
// is the only authority on existence, expiry and revocation of such tokens.
func (s *ResourceServer) validateOpaque(ctx context.Context, token string) (*TokenInfo, *oautherr.Error) {
	record, err := s.accessTokens.GetAccessToken(ctx, token)
	if err != nil {
		return nil, oautherr.ServerError()
	}
	if record == nil {
		return nil, oautherr.AccessDenied("access token could not be verified")
	}
	if entity.IsExpired(record, time.Now()) {
		return nil, oautherr.AccessDenied("access token has expired")
	}
	revoked, err := s.accessTokens.IsAccessTokenRevoked(ctx, token)
	if err != nil {
		return nil, oautherr.ServerError()
	}
	if revoked {
		return nil, oautherr.AccessDenied("access token has been revoked")
	}
	return &TokenInfo{
		TokenID:   record.ID,
		ClientID:  record.ClientID,
		UserID:    record.UserID,
		Scopes:    entity.ScopeIDs(record.GrantedScopes),
		ExpiresAt: record.Expiry,
	}, nil
}
