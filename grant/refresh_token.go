package grant

import (
	"context"

	"github.com/gatewarden/oauth2/entity"
	"github.com/gatewarden/oauth2/events"
	"github.com/gatewarden/oauth2/oautherr"
	"github.com/gatewarden/oauth2/wire"
)

// RefreshToken redeems an encrypted refresh credential for a new access
// token, optionally rotating the refresh token itself.
type RefreshToken struct {
	core *Core
	// rotate issues a new refresh token and revokes the redeemed one. When
	// disabled the presented token stays valid and is echoed back.
	rotate bool
	// secretRequired forces a client secret even for public clients.
	secretRequired bool
}

// NewRefreshToken builds the grant.
func NewRefreshToken(core *Core, rotate, secretRequired bool) *RefreshToken {
	return &RefreshToken{core: core, rotate: rotate, secretRequired: secretRequired}
}

func (g *RefreshToken) Kind() Kind { return KindRefreshToken }

// RespondToTokenRequest validates the presented refresh token and mints a new
// access token. Requested scopes must be a subset of the originally granted
// set; a superset fails invalid_scope.
func (g *RefreshToken) RespondToTokenRequest(ctx context.Context, req *wire.Request) (*wire.BearerTokenResponse, *oautherr.Error) {
	client, oerr := g.core.validateClient(ctx, req, g.Kind(), g.secretRequired)
	if oerr != nil {
		return nil, oerr
	}

	encrypted := req.Param("refresh_token")
	if encrypted == "" {
		return nil, oautherr.InvalidRequest("refresh_token")
	}

	payload, err := decryptRefreshToken(g.core.Encryptor, encrypted)
	if err != nil {
		return nil, oautherr.InvalidGrant("cannot decrypt the refresh token")
	}

	if payload.ClientID != client.ID {
		g.core.emit(ctx, events.RefreshTokenClientMismatch, g.Kind(), client.ID, payload.UserID)
		return nil, oautherr.InvalidClient()
	}

	now := g.core.now()
	if entity.IsExpired(payload, now) {
		return nil, oautherr.InvalidGrant("refresh token has expired")
	}

	revoked, rerr := g.core.RefreshTokens.IsRefreshTokenRevoked(ctx, payload.RefreshTokenID)
	if rerr != nil {
		return nil, oautherr.ServerError()
	}
	if revoked {
		return nil, oautherr.InvalidGrant("refresh token has been revoked")
	}

	original := scopesFromIDs(payload.Scopes)
	scopes := original
	if requested := req.Param("scope"); requested != "" {
		scopes = nil
		for _, id := range splitScopeParam(requested) {
			if !containsScopeID(payload.Scopes, id) {
				return nil, oautherr.InvalidScope(id)
			}
			scopes = append(scopes, entity.Scope{ID: id})
		}
	}

	// The old access token is superseded either way.
	if err := g.core.AccessTokens.RevokeAccessToken(ctx, payload.AccessTokenID); err != nil {
		return nil, oautherr.ServerError()
	}

	accessToken, serialized, oerr := g.core.issueAccessToken(ctx, g.Kind(), client, payload.UserID, scopes)
	if oerr != nil {
		return nil, oerr
	}

	resp := &wire.BearerTokenResponse{
		AccessToken: serialized,
		TokenType:   "Bearer",
		ExpiresIn:   int(accessToken.Expiry.Sub(now).Seconds()),
		Scope:       joinScopes(scopes),
	}

	if g.rotate {
		if err := g.core.RefreshTokens.RevokeRefreshToken(ctx, payload.RefreshTokenID); err != nil {
			return nil, oautherr.ServerError()
		}
		// The rotated token carries the original scope set, not the narrowed
		// one, so a later redemption can still request any original scope.
		rotatedBase := *accessToken
		rotatedBase.GrantedScopes = original
		_, refreshSerialized, oerr := g.core.issueRefreshToken(ctx, g.Kind(), &rotatedBase)
		if oerr != nil {
			return nil, oerr
		}
		resp.RefreshToken = refreshSerialized
	} else {
		resp.RefreshToken = encrypted
	}

	return resp, nil
}

func containsScopeID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
