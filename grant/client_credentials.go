package grant

import (
	"context"

	"github.com/gatewarden/oauth2/oautherr"
	"github.com/gatewarden/oauth2/wire"
)

// ClientCredentials is the machine-to-machine grant: a confidential client
// trades its own credentials for an access token. No user, no refresh token.
type ClientCredentials struct {
	core *Core
}

// NewClientCredentials builds the grant.
func NewClientCredentials(core *Core) *ClientCredentials {
	return &ClientCredentials{core: core}
}

func (g *ClientCredentials) Kind() Kind { return KindClientCredentials }

// RespondToTokenRequest authenticates the client and mints an access token
// scoped to the finalized set.
func (g *ClientCredentials) RespondToTokenRequest(ctx context.Context, req *wire.Request) (*wire.BearerTokenResponse, *oautherr.Error) {
	client, oerr := g.core.validateClient(ctx, req, g.Kind(), true)
	if oerr != nil {
		return nil, oerr
	}
	if !client.Confidential {
		return nil, oautherr.UnauthorizedClient()
	}

	scopes, oerr := g.core.validateScopes(ctx, req.Param("scope"))
	if oerr != nil {
		return nil, oerr
	}
	scopes, oerr = g.core.finalizeScopes(ctx, scopes, g.Kind(), client, "")
	if oerr != nil {
		return nil, oerr
	}

	accessToken, serialized, oerr := g.core.issueAccessToken(ctx, g.Kind(), client, "", scopes)
	if oerr != nil {
		return nil, oerr
	}

	return &wire.BearerTokenResponse{
		AccessToken: serialized,
		TokenType:   "Bearer",
		ExpiresIn:   int(accessToken.Expiry.Sub(g.core.now()).Seconds()),
		Scope:       joinScopes(scopes),
	}, nil
}
