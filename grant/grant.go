// Package grant implements one state machine per OAuth grant type. Grants
// hold no per-request state; everything request-scoped flows through method
// arguments so a single grant value is safe under concurrent use.
package grant

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/oauth2/codec"
	"github.com/gatewarden/oauth2/config"
	"github.com/gatewarden/oauth2/entity"
	"github.com/gatewarden/oauth2/events"
	"github.com/gatewarden/oauth2/oautherr"
	"github.com/gatewarden/oauth2/repository"
	"github.com/gatewarden/oauth2/wire"
)

// Kind identifies a grant type. Token-endpoint grants use their RFC
// grant_type value so dispatch is a direct map lookup.
type Kind string

const (
	KindAuthorizationCode Kind = "authorization_code"
	KindClientCredentials Kind = "client_credentials"
	KindPassword          Kind = "password"
	KindRefreshToken      Kind = "refresh_token"
	KindImplicit          Kind = "implicit"
	KindDeviceCode        Kind = "urn:ietf:params:oauth:grant-type:device_code"
)

// Grant is a token-endpoint state machine.
type Grant interface {
	Kind() Kind
	// RespondToTokenRequest validates the request and mints tokens. Protocol
	// failures come back as a typed error, never a panic.
	RespondToTokenRequest(ctx context.Context, req *wire.Request) (*wire.BearerTokenResponse, *oautherr.Error)
}

// AuthorizeGrant is a grant that also participates in the authorization
// endpoint (authorization code, implicit).
type AuthorizeGrant interface {
	Grant
	// ResponseType is the response_type value this grant answers.
	ResponseType() string
	ValidateAuthorizationRequest(ctx context.Context, req *wire.Request) (*AuthorizationRequest, *oautherr.Error)
	CompleteAuthorizationRequest(ctx context.Context, ar *AuthorizationRequest) (*wire.RedirectResponse, *oautherr.Error)
}

// AuthorizationRequest is the value object produced by
// ValidateAuthorizationRequest and handed back, with User and Approved set,
// after the resource owner decides.
type AuthorizationRequest struct {
	GrantKind           Kind
	Client              *entity.Client
	User                *entity.User
	Scopes              []entity.Scope
	RedirectURI         string
	State               string
	Approved            bool
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
}

// Core bundles the collaborators and knobs every grant shares. One Core is
// built per server and reused across requests; it is immutable after
// construction.
type Core struct {
	Clients       repository.ClientRepository
	AccessTokens  repository.AccessTokenRepository
	RefreshTokens repository.RefreshTokenRepository
	Scopes        repository.ScopeRepository

	Encryptor *codec.Encryptor
	Keys      *codec.KeyManager
	Events    *events.Emitter

	Issuer            string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	DefaultScopes     []string
	RequireScopeParam bool
	TokenFormat       config.TokenFormat
	IDTokenTTL        time.Duration

	// Now is the clock; tests pin it. Nil means time.Now.
	Now func() time.Time
}

func (c *Core) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Core) emit(ctx context.Context, t events.Type, kind Kind, clientID, userID string) {
	c.Events.Emit(ctx, events.Event{Type: t, GrantType: string(kind), ClientID: clientID, UserID: userID})
}

// validateClient authenticates the requesting client for the given grant.
// Confidential clients must present their secret; public clients are checked
// against an empty one.
func (c *Core) validateClient(ctx context.Context, req *wire.Request, kind Kind, secretRequired bool) (*entity.Client, *oautherr.Error) {
	clientID, clientSecret := req.ClientCredentials()
	if clientID == "" {
		return nil, oautherr.InvalidRequest("client_id")
	}

	client, err := c.Clients.GetClient(ctx, clientID)
	if err != nil || client == nil {
		c.emit(ctx, events.ClientAuthenticationFailed, kind, clientID, "")
		return nil, oautherr.InvalidClient()
	}

	if (client.Confidential || secretRequired) && clientSecret == "" {
		c.emit(ctx, events.ClientAuthenticationFailed, kind, clientID, "")
		return nil, oautherr.InvalidClient()
	}

	ok, err := c.Clients.ValidateClient(ctx, clientID, clientSecret, string(kind))
	if err != nil || !ok {
		c.emit(ctx, events.ClientAuthenticationFailed, kind, clientID, "")
		return nil, oautherr.InvalidClient()
	}
	return client, nil
}

// lookupClient resolves a client without authenticating it (authorization
// endpoint, where no secret travels).
func (c *Core) lookupClient(ctx context.Context, clientID string) (*entity.Client, *oautherr.Error) {
	if clientID == "" {
		return nil, oautherr.InvalidRequest("client_id")
	}
	client, err := c.Clients.GetClient(ctx, clientID)
	if err != nil || client == nil {
		return nil, oautherr.InvalidClient()
	}
	return client, nil
}

// validateScopes resolves the space-delimited scope parameter against the
// scope repository. An empty parameter falls back to the configured defaults
// unless scopes are mandatory.
func (c *Core) validateScopes(ctx context.Context, scopeParam string) ([]entity.Scope, *oautherr.Error) {
	ids := splitScopeParam(scopeParam)
	if len(ids) == 0 {
		if c.RequireScopeParam {
			return nil, oautherr.InvalidRequest("scope")
		}
		ids = c.DefaultScopes
	}

	scopes := make([]entity.Scope, 0, len(ids))
	for _, id := range ids {
		scope, err := c.Scopes.GetScope(ctx, id)
		if err != nil {
			return nil, oautherr.ServerError()
		}
		if scope == nil {
			return nil, oautherr.InvalidScope(id)
		}
		scopes = append(scopes, *scope)
	}
	return scopes, nil
}

// finalizeScopes asks the repository for the authoritative granted set.
func (c *Core) finalizeScopes(ctx context.Context, scopes []entity.Scope, kind Kind, client *entity.Client, userID string) ([]entity.Scope, *oautherr.Error) {
	finalized, err := c.Scopes.FinalizeScopes(ctx, scopes, string(kind), client, userID)
	if err != nil {
		return nil, oautherr.ServerError()
	}
	return finalized, nil
}

// issueAccessToken mints, persists and serializes an access token. The
// serialized form is a signed JWT or the opaque identifier itself depending
// on configuration.
func (c *Core) issueAccessToken(ctx context.Context, kind Kind, client *entity.Client, userID string, scopes []entity.Scope) (*entity.AccessToken, string, *oautherr.Error) {
	token, err := c.AccessTokens.NewToken(ctx, client, scopes, userID)
	if err != nil || token == nil {
		return nil, "", oautherr.ServerError()
	}

	now := c.now()
	if token.ID == "" {
		if c.TokenFormat == config.TokenFormatOpaque {
			id, err := codec.RandomString(32)
			if err != nil {
				return nil, "", oautherr.ServerError()
			}
			token.ID = id
		} else {
			token.ID = uuid.New().String()
		}
	}
	token.ClientID = client.ID
	token.UserID = userID
	token.GrantedScopes = scopes
	token.Expiry = now.Add(c.AccessTokenTTL)

	if err := c.AccessTokens.PersistAccessToken(ctx, token); err != nil {
		return nil, "", oautherr.ServerError()
	}

	serialized, serr := c.serializeAccessToken(token, now)
	if serr != nil {
		return nil, "", serr
	}

	c.emit(ctx, events.AccessTokenIssued, kind, client.ID, userID)
	return token, serialized, nil
}

func (c *Core) serializeAccessToken(token *entity.AccessToken, now time.Time) (string, *oautherr.Error) {
	if c.TokenFormat == config.TokenFormatOpaque {
		return token.ID, nil
	}
	claims := codec.NewAccessClaims(token.ID, token.ClientID, token.UserID, entity.ScopeIDs(token.GrantedScopes), now, token.Expiry)
	claims.Issuer = c.Issuer
	signed, err := c.Keys.SignAccessToken(claims)
	if err != nil {
		return "", oautherr.ServerError()
	}
	return signed, nil
}

// issueRefreshToken mints and persists a refresh token bound to the access
// token, returning its encrypted serialized form. The ciphertext is the
// credential the client holds.
func (c *Core) issueRefreshToken(ctx context.Context, kind Kind, accessToken *entity.AccessToken) (*entity.RefreshToken, string, *oautherr.Error) {
	token, err := c.RefreshTokens.NewToken(ctx)
	if err != nil || token == nil {
		return nil, "", oautherr.ServerError()
	}

	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	token.AccessTokenID = accessToken.ID
	token.ClientID = accessToken.ClientID
	token.UserID = accessToken.UserID
	token.GrantedScopes = accessToken.GrantedScopes
	token.Expiry = c.now().Add(c.RefreshTokenTTL)

	if err := c.RefreshTokens.PersistRefreshToken(ctx, token); err != nil {
		return nil, "", oautherr.ServerError()
	}

	serialized, cerr := encryptRefreshToken(c.Encryptor, token)
	if cerr != nil {
		return nil, "", oautherr.ServerError()
	}

	c.emit(ctx, events.RefreshTokenIssued, kind, token.ClientID, token.UserID)
	return token, serialized, nil
}

// maybeIssueIDToken mints an OIDC ID token when the granted scopes include
// openid and a user is present.
func (c *Core) maybeIssueIDToken(client *entity.Client, userID, nonce string, scopes []entity.Scope) (string, *oautherr.Error) {
	if userID == "" || !entity.HasScope(scopes, "openid") {
		return "", nil
	}
	idToken, err := wire.NewIDToken(c.Keys, c.Issuer, client.ID, userID, nonce, c.now(), c.IDTokenTTL)
	if err != nil {
		return "", oautherr.ServerError()
	}
	return idToken, nil
}

func splitScopeParam(raw string) []string {
	return strings.Fields(raw)
}
