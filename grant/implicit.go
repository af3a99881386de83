package grant

import (
	"context"

	"github.com/gatewarden/oauth2/oautherr"
	"github.com/gatewarden/oauth2/wire"
)

// Implicit is the legacy response_type=token flow: the access token is
// delivered straight in the redirect fragment. No refresh token is ever
// issued and the grant never answers the token endpoint.
type Implicit struct {
	core         *Core
	requireState bool
}

// NewImplicit builds the grant.
func NewImplicit(core *Core, requireState bool) *Implicit {
	return &Implicit{core: core, requireState: requireState}
}

func (g *Implicit) Kind() Kind           { return KindImplicit }
func (g *Implicit) ResponseType() string { return "token" }

// RespondToTokenRequest always fails: implicit tokens are issued at the
// authorization endpoint only.
func (g *Implicit) RespondToTokenRequest(ctx context.Context, req *wire.Request) (*wire.BearerTokenResponse, *oautherr.Error) {
	return nil, oautherr.UnsupportedGrantType()
}

// ValidateAuthorizationRequest mirrors the authorization-code validation
// minus PKCE, which does not apply to implicit.
func (g *Implicit) ValidateAuthorizationRequest(ctx context.Context, req *wire.Request) (*AuthorizationRequest, *oautherr.Error) {
	client, oerr := g.core.lookupClient(ctx, req.Param("client_id"))
	if oerr != nil {
		return nil, oerr
	}

	redirectURI, oerr := resolveRedirectURI(client, req.Param("redirect_uri"))
	if oerr != nil {
		return nil, oerr
	}

	state := req.Param("state")
	if g.requireState && state == "" {
		return nil, oautherr.InvalidRequest("state")
	}

	scopes, oerr := g.core.validateScopes(ctx, req.Param("scope"))
	if oerr != nil {
		return nil, oerr
	}
	scopes, oerr = g.core.finalizeScopes(ctx, scopes, g.Kind(), client, "")
	if oerr != nil {
		return nil, oerr
	}

	return &AuthorizationRequest{
		GrantKind:   g.Kind(),
		Client:      client,
		Scopes:      scopes,
		RedirectURI: redirectURI,
		State:       state,
		Nonce:       req.Param("nonce"),
	}, nil
}

// CompleteAuthorizationRequest issues the access token directly into the
// redirect fragment, or redirects with access_denied.
func (g *Implicit) CompleteAuthorizationRequest(ctx context.Context, ar *AuthorizationRequest) (*wire.RedirectResponse, *oautherr.Error) {
	if !ar.Approved {
		return wire.ErrorRedirect(ar.RedirectURI, oautherr.CodeAccessDenied, ar.State), nil
	}
	if ar.User == nil || ar.User.ID == "" {
		return nil, oautherr.ServerError()
	}

	accessToken, serialized, oerr := g.core.issueAccessToken(ctx, g.Kind(), ar.Client, ar.User.ID, ar.Scopes)
	if oerr != nil {
		return nil, oerr
	}

	expiresIn := int(accessToken.Expiry.Sub(g.core.now()).Seconds())
	return wire.ImplicitRedirect(ar.RedirectURI, serialized, expiresIn, ar.State), nil
}
