package grant

import (
	"context"

	"github.com/gatewarden/oauth2/events"
	"github.com/gatewarden/oauth2/oautherr"
	"github.com/gatewarden/oauth2/repository"
	"github.com/gatewarden/oauth2/wire"
)

// Password is the resource-owner-password grant. Credential verification is
// delegated entirely to the user repository.
type Password struct {
	core           *Core
	users          repository.UserRepository
	refreshEnabled bool
}

// NewPassword builds the grant.
func NewPassword(core *Core, users repository.UserRepository, refreshEnabled bool) *Password {
	return &Password{core: core, users: users, refreshEnabled: refreshEnabled}
}

func (g *Password) Kind() Kind { return KindPassword }

// RespondToTokenRequest authenticates client and resource owner, then mints
// tokens. A nil user from the repository is always invalid_grant; unknown
// user and wrong password are indistinguishable to avoid enumeration.
func (g *Password) RespondToTokenRequest(ctx context.Context, req *wire.Request) (*wire.BearerTokenResponse, *oautherr.Error) {
	client, oerr := g.core.validateClient(ctx, req, g.Kind(), false)
	if oerr != nil {
		return nil, oerr
	}

	username := req.Param("username")
	if username == "" {
		return nil, oautherr.InvalidRequest("username")
	}
	password := req.Param("password")
	if password == "" {
		return nil, oautherr.InvalidRequest("password")
	}

	user, err := g.users.GetUserByCredentials(ctx, username, password, string(g.Kind()), client)
	if err != nil {
		return nil, oautherr.ServerError()
	}
	if user == nil {
		g.core.emit(ctx, events.UserAuthenticationFailed, g.Kind(), client.ID, "")
		return nil, oautherr.InvalidGrant("invalid resource owner credentials")
	}

	scopes, oerr := g.core.validateScopes(ctx, req.Param("scope"))
	if oerr != nil {
		return nil, oerr
	}
	scopes, oerr = g.core.finalizeScopes(ctx, scopes, g.Kind(), client, user.ID)
	if oerr != nil {
		return nil, oerr
	}

	accessToken, serialized, oerr := g.core.issueAccessToken(ctx, g.Kind(), client, user.ID, scopes)
	if oerr != nil {
		return nil, oerr
	}

	resp := &wire.BearerTokenResponse{
		AccessToken: serialized,
		TokenType:   "Bearer",
		ExpiresIn:   int(accessToken.Expiry.Sub(g.core.now()).Seconds()),
		Scope:       joinScopes(scopes),
	}

	if g.refreshEnabled {
		_, refreshSerialized, oerr := g.core.issueRefreshToken(ctx, g.Kind(), accessToken)
		if oerr != nil {
			return nil, oerr
		}
		resp.RefreshToken = refreshSerialized
	}

	idToken, oerr := g.core.maybeIssueIDToken(client, user.ID, "", scopes)
	if oerr != nil {
		return nil, oerr
	}
	resp.IDToken = idToken

	return resp, nil
}
