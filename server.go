// Package oauth2 is an embeddable OAuth 2.0 authorization framework. The
// host application supplies repositories and parsed wire.Request values; the
// AuthorizationServer and ResourceServer facades run the protocol and hand
// back neutral responses for the host to serialize.
package oauth2

import (
	"context"

	"github.com/gatewarden/oauth2/codec"
	"github.com/gatewarden/oauth2/config"
	"github.com/gatewarden/oauth2/entity"
	"github.com/gatewarden/oauth2/events"
	"github.com/gatewarden/oauth2/grant"
	"github.com/gatewarden/oauth2/oautherr"
	"github.com/gatewarden/oauth2/repository"
	"github.com/gatewarden/oauth2/wire"
)

// AuthorizationServer dispatches inbound requests to the enabled grants.
// Configure the grant set at startup; the server is then safe for concurrent
// use.
type AuthorizationServer struct {
	core            *grant.Core
	grants          map[grant.Kind]grant.Grant
	authorizeGrants map[string]grant.AuthorizeGrant
	device          *grant.DeviceCode
	renderer        wire.Renderer
}

// NewAuthorizationServer wires the shared grant core from configuration and
// repositories. Key material is validated here; a bad signing key or
// encryption key fails construction, not the first request.
func NewAuthorizationServer(
	cfg config.Config,
	clients repository.ClientRepository,
	accessTokens repository.AccessTokenRepository,
	refreshTokens repository.RefreshTokenRepository,
	scopes repository.ScopeRepository,
	listener events.Listener,
) (*AuthorizationServer, error) {
	encryptor, err := codec.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	keys, err := codec.LoadKeyManager(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}

	core := &grant.Core{
		Clients:           clients,
		AccessTokens:      accessTokens,
		RefreshTokens:     refreshTokens,
		Scopes:            scopes,
		Encryptor:         encryptor,
		Keys:              keys,
		Events:            events.NewEmitter(listener),
		Issuer:            cfg.Issuer,
		AccessTokenTTL:    cfg.AccessTokenTTL,
		RefreshTokenTTL:   cfg.RefreshTokenTTL,
		DefaultScopes:     cfg.DefaultScopes,
		RequireScopeParam: cfg.RequireScopeParam,
		TokenFormat:       cfg.AccessTokenFormat,
		IDTokenTTL:        cfg.IDTokenTTL,
	}

	return &AuthorizationServer{
		core:            core,
		grants:          make(map[grant.Kind]grant.Grant),
		authorizeGrants: make(map[string]grant.AuthorizeGrant),
	}, nil
}

// Core exposes the shared grant collaborators so the embedder can construct
// grants against the same codec, clock and repositories.
func (s *AuthorizationServer) Core() *grant.Core {
	return s.core
}

// SetRenderer installs the login/consent renderer.
func (s *AuthorizationServer) SetRenderer(r wire.Renderer) {
	s.renderer = r
}

// EnableGrant registers a grant. Authorize-capable grants are additionally
// indexed by their response_type; the device grant is remembered for the
// device authorization endpoint.
func (s *AuthorizationServer) EnableGrant(g grant.Grant) {
	s.grants[g.Kind()] = g
	if ag, ok := g.(grant.AuthorizeGrant); ok {
		s.authorizeGrants[ag.ResponseType()] = ag
	}
	if dg, ok := g.(*grant.DeviceCode); ok {
		s.device = dg
	}
}

// RespondToAccessTokenRequest is the token endpoint: it dispatches on the
// grant_type parameter to the matching enabled grant.
func (s *AuthorizationServer) RespondToAccessTokenRequest(ctx context.Context, req *wire.Request) (*wire.BearerTokenResponse, *oautherr.Error) {
	grantType := req.Param("grant_type")
	if grantType == "" {
		return nil, oautherr.UnsupportedGrantType()
	}
	g, ok := s.grants[grant.Kind(grantType)]
	if !ok {
		return nil, oautherr.UnsupportedGrantType()
	}
	return g.RespondToTokenRequest(ctx, req)
}

// ValidateAuthorizationRequest is the authorization endpoint entry: it
// dispatches on response_type and returns the pending authorization request
// for the embedder to take through login and consent.
func (s *AuthorizationServer) ValidateAuthorizationRequest(ctx context.Context, req *wire.Request) (*grant.AuthorizationRequest, *oautherr.Error) {
	responseType := req.Param("response_type")
	if responseType == "" {
		return nil, oautherr.InvalidRequest("response_type")
	}
	g, ok := s.authorizeGrants[responseType]
	if !ok {
		return nil, oautherr.UnsupportedResponseType()
	}
	return g.ValidateAuthorizationRequest(ctx, req)
}

// CompleteAuthorizationRequest finishes the flow once the resource owner has
// decided, producing the redirect for the embedder to issue.
func (s *AuthorizationServer) CompleteAuthorizationRequest(ctx context.Context, ar *grant.AuthorizationRequest) (*wire.RedirectResponse, *oautherr.Error) {
	g, ok := s.grants[ar.GrantKind]
	if !ok {
		return nil, oautherr.UnsupportedResponseType()
	}
	ag, ok := g.(grant.AuthorizeGrant)
	if !ok {
		return nil, oautherr.UnsupportedResponseType()
	}
	return ag.CompleteAuthorizationRequest(ctx, ar)
}

// RenderAuthorizePage renders the consent page for a validated authorization
// request via the installed renderer.
func (s *AuthorizationServer) RenderAuthorizePage(ar *grant.AuthorizationRequest, continuation string) (*wire.HTMLResponse, *oautherr.Error) {
	if s.renderer == nil {
		return nil, oautherr.ServerError()
	}
	body, err := s.renderer.RenderAuthorize(ar.Client.Name, entity.ScopeIDs(ar.Scopes), continuation)
	if err != nil {
		return nil, oautherr.ServerError()
	}
	return &wire.HTMLResponse{Body: body}, nil
}

// RespondToDeviceAuthorizationRequest is the device authorization endpoint.
func (s *AuthorizationServer) RespondToDeviceAuthorizationRequest(ctx context.Context, req *wire.Request) (*wire.DeviceAuthorizationResponse, *oautherr.Error) {
	if s.device == nil {
		return nil, oautherr.UnsupportedGrantType()
	}
	return s.device.RespondToDeviceAuthorizationRequest(ctx, req)
}

// CompleteDeviceAuthorizationRequest records the out-of-band user decision
// for a device code.
func (s *AuthorizationServer) CompleteDeviceAuthorizationRequest(ctx context.Context, deviceCodeID, userID string, approved bool) *oautherr.Error {
	if s.device == nil {
		return oautherr.UnsupportedGrantType()
	}
	return s.device.CompleteDeviceAuthorizationRequest(ctx, deviceCodeID, userID, approved)
}

// Metadata assembles the RFC 8414 discovery document from the enabled grants
// and the endpoint paths the embedder mounted.
func (s *AuthorizationServer) Metadata(endpoints wire.ServerMetadata) *wire.ServerMetadata {
	meta := endpoints
	meta.Issuer = s.core.Issuer
	for kind := range s.grants {
		if kind == grant.KindImplicit {
			continue
		}
		meta.GrantTypesSupported = append(meta.GrantTypesSupported, string(kind))
	}
	for responseType := range s.authorizeGrants {
		meta.ResponseTypesSupported = append(meta.ResponseTypesSupported, responseType)
	}
	meta.CodeChallengeMethodsSupported = []string{"S256", "plain"}
	meta.TokenEndpointAuthMethods = []string{"client_secret_basic", "client_secret_post", "none"}
	return &meta
}

// JWKS returns the public signing key set.
func (s *AuthorizationServer) JWKS() *wire.JWKS {
	return wire.NewJWKS(s.core.Keys.PublicKey(), s.core.Keys.KID())
}
