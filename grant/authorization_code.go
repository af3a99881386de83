package grant

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/oauth2/entity"
	"github.com/gatewarden/oauth2/oautherr"
	"github.com/gatewarden/oauth2/repository"
	"github.com/gatewarden/oauth2/wire"
)

// codeVerifierPattern is the RFC 7636 unreserved character set, 43-128 chars.
var codeVerifierPattern = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

// AuthorizationCode implements the authorization-code grant with PKCE. The
// flow spans two requests: the authorization endpoint produces a single-use
// code bound to the approving user, and the token endpoint exchanges it.
type AuthorizationCode struct {
	core      *Core
	authCodes repository.AuthCodeRepository
	codeTTL   time.Duration
	// refreshEnabled controls whether redemption also issues a refresh token.
	refreshEnabled bool
	// requireState rejects authorization requests without a state parameter.
	requireState bool
}

// NewAuthorizationCode builds the grant.
func NewAuthorizationCode(core *Core, authCodes repository.AuthCodeRepository, codeTTL time.Duration, refreshEnabled, requireState bool) *AuthorizationCode {
	return &AuthorizationCode{
		core:           core,
		authCodes:      authCodes,
		codeTTL:        codeTTL,
		refreshEnabled: refreshEnabled,
		requireState:   requireState,
	}
}

func (g *AuthorizationCode) Kind() Kind           { return KindAuthorizationCode }
func (g *AuthorizationCode) ResponseType() string { return "code" }

// ValidateAuthorizationRequest checks the client, redirect URI, scopes and
// PKCE parameters, returning the pending authorization request. No code is
// minted yet; that happens once the resource owner decides.
func (g *AuthorizationCode) ValidateAuthorizationRequest(ctx context.Context, req *wire.Request) (*AuthorizationRequest, *oautherr.Error) {
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

	challenge := req.Param("code_challenge")
	method := req.Param("code_challenge_method")
	if challenge == "" {
		// Public clients cannot authenticate at the token endpoint; PKCE is
		// their only binding to the authorization request.
		if !client.Confidential {
			return nil, oautherr.InvalidRequest("code_challenge")
		}
	} else {
		if method == "" {
			method = "plain"
		}
		if method != "S256" && method != "plain" {
			return nil, oautherr.InvalidRequest("code_challenge_method")
		}
	}

	return &AuthorizationRequest{
		GrantKind:           g.Kind(),
		Client:              client,
		Scopes:              scopes,
		RedirectURI:         redirectURI,
		State:               state,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		Nonce:               req.Param("nonce"),
	}, nil
}

// CompleteAuthorizationRequest turns the resource owner's decision into a
// redirect: an access_denied error, or a freshly minted single-use code.
func (g *AuthorizationCode) CompleteAuthorizationRequest(ctx context.Context, ar *AuthorizationRequest) (*wire.RedirectResponse, *oautherr.Error) {
	if !ar.Approved {
		return wire.ErrorRedirect(ar.RedirectURI, oautherr.CodeAccessDenied, ar.State), nil
	}
	if ar.User == nil || ar.User.ID == "" {
		return nil, oautherr.ServerError()
	}

	code, err := g.authCodes.NewAuthCode(ctx)
	if err != nil || code == nil {
		return nil, oautherr.ServerError()
	}
	if code.ID == "" {
		code.ID = uuid.New().String()
	}
	code.ClientID = ar.Client.ID
	code.UserID = ar.User.ID
	code.RedirectURI = ar.RedirectURI
	code.GrantedScopes = ar.Scopes
	code.Expiry = g.core.now().Add(g.codeTTL)
	code.CodeChallenge = ar.CodeChallenge
	code.CodeChallengeMethod = ar.CodeChallengeMethod

	if err := g.authCodes.PersistAuthCode(ctx, code); err != nil {
		return nil, oautherr.ServerError()
	}

	serialized, cerr := encryptAuthCode(g.core.Encryptor, code)
	if cerr != nil {
		return nil, oautherr.ServerError()
	}
	return wire.AuthCodeRedirect(ar.RedirectURI, serialized, ar.State), nil
}

// RespondToTokenRequest redeems a code for tokens. The code is single-use:
// it is revoked before tokens are minted so a replay fails as invalid_grant.
func (g *AuthorizationCode) RespondToTokenRequest(ctx context.Context, req *wire.Request) (*wire.BearerTokenResponse, *oautherr.Error) {
	client, oerr := g.core.validateClient(ctx, req, g.Kind(), false)
	if oerr != nil {
		return nil, oerr
	}

	encrypted := req.Param("code")
	if encrypted == "" {
		return nil, oautherr.InvalidRequest("code")
	}

	payload, err := decryptAuthCode(g.core.Encryptor, encrypted)
	if err != nil {
		return nil, oautherr.InvalidGrant("cannot decrypt the authorization code")
	}

	now := g.core.now()
	if entity.IsExpired(payload, now) {
		return nil, oautherr.InvalidGrant("authorization code has expired")
	}
	if payload.ClientID != client.ID {
		return nil, oautherr.InvalidGrant("authorization code was not issued to this client")
	}

	revoked, rerr := g.authCodes.IsAuthCodeRevoked(ctx, payload.AuthCodeID)
	if rerr != nil {
		return nil, oautherr.ServerError()
	}
	if revoked {
		return nil, oautherr.InvalidGrant("authorization code has been revoked")
	}

	if payload.RedirectURI != "" {
		supplied := req.Param("redirect_uri")
		if supplied == "" {
			return nil, oautherr.InvalidRequest("redirect_uri")
		}
		if supplied != payload.RedirectURI {
			return nil, oautherr.InvalidGrant("redirect_uri does not match the authorization request")
		}
	}

	if oerr := verifyCodeVerifier(payload, req.Param("code_verifier")); oerr != nil {
		return nil, oerr
	}

	// Single use: revoke before minting so a concurrent replay loses.
	if err := g.authCodes.RevokeAuthCode(ctx, payload.AuthCodeID); err != nil {
		return nil, oautherr.ServerError()
	}

	scopes := scopesFromIDs(payload.Scopes)
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

	if g.refreshEnabled {
		_, refreshSerialized, oerr := g.core.issueRefreshToken(ctx, g.Kind(), accessToken)
		if oerr != nil {
			return nil, oerr
		}
		resp.RefreshToken = refreshSerialized
	}

	idToken, oerr := g.core.maybeIssueIDToken(client, payload.UserID, "", scopes)
	if oerr != nil {
		return nil, oerr
	}
	resp.IDToken = idToken

	return resp, nil
}

func verifyCodeVerifier(payload *authCodePayload, verifier string) *oautherr.Error {
	if payload.CodeChallenge == "" {
		return nil
	}
	if verifier == "" {
		return oautherr.InvalidRequest("code_verifier")
	}
	if !codeVerifierPattern.MatchString(verifier) {
		return oautherr.InvalidRequest("code_verifier")
	}

	switch payload.CodeChallengeMethod {
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(computed), []byte(payload.CodeChallenge)) != 1 {
			return oautherr.InvalidGrant("code_verifier does not match the code_challenge")
		}
	default: // plain
		if subtle.ConstantTimeCompare([]byte(verifier), []byte(payload.CodeChallenge)) != 1 {
			return oautherr.InvalidGrant("code_verifier does not match the code_challenge")
		}
	}
	return nil
}

// resolveRedirectURI validates a supplied redirect_uri against the client's
// registrations, or falls back to a sole registered URI. An unregistered URI
// is a client misconfiguration, so the error is invalid_client.
func resolveRedirectURI(client *entity.Client, supplied string) (string, *oautherr.Error) {
	if supplied != "" {
		if !client.AllowsRedirectURI(supplied) {
			return "", oautherr.InvalidClient()
		}
		return supplied, nil
	}
	if len(client.RedirectURIs) != 1 {
		return "", oautherr.InvalidClient()
	}
	return client.RedirectURIs[0], nil
}

func scopesFromIDs(ids []string) []entity.Scope {
	scopes := make([]entity.Scope, len(ids))
	for i, id := range ids {
		scopes[i] = entity.Scope{ID: id}
	}
	return scopes
}

func joinScopes(scopes []entity.Scope) string {
	return strings.Join(entity.ScopeIDs(scopes), " ")
}
