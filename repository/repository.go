// Package repository declares the persistence contracts the grants consume.
// Implementations live outside the core (the storage package ships reference
// backends). Repositories are the sole synchronization boundary: operations
// like RevokeAuthCode must be atomic so two concurrent redemptions cannot
// both succeed.
package repository

import (
	"context"

	"github.com/gatewarden/oauth2/entity"
)

// ClientRepository resolves and authenticates clients.
type ClientRepository interface {
	// GetClient returns the client or nil when unknown.
	GetClient(ctx context.Context, clientID string) (*entity.Client, error)
	// ValidateClient checks the client's credentials for the given grant
	// type. For public clients an empty secret is expected.
	ValidateClient(ctx context.Context, clientID, clientSecret, grantType string) (bool, error)
}

// AccessTokenRepository tracks issued access tokens for revocation and, in
// opaque deployments, for validation by lookup.
type AccessTokenRepository interface {
	NewToken(ctx context.Context, client *entity.Client, scopes []entity.Scope, userID string) (*entity.AccessToken, error)
	PersistAccessToken(ctx context.Context, token *entity.AccessToken) error
	// GetAccessToken resolves a presented identifier to the stored token, or
	// nil when unknown. Implementations may store records under a digest of
	// the identifier; the returned ID is then that digest.
	GetAccessToken(ctx context.Context, tokenID string) (*entity.AccessToken, error)
	RevokeAccessToken(ctx context.Context, tokenID string) error
	IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RefreshTokenRepository tracks issued refresh tokens for rotation and
// revocation.
type RefreshTokenRepository interface {
	NewToken(ctx context.Context) (*entity.RefreshToken, error)
	PersistRefreshToken(ctx context.Context, token *entity.RefreshToken) error
	RevokeRefreshToken(ctx context.Context, tokenID string) error
	IsRefreshTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthCodeRepository tracks single-use authorization codes.
type AuthCodeRepository interface {
	NewAuthCode(ctx context.Context) (*entity.AuthCode, error)
	PersistAuthCode(ctx context.Context, code *entity.AuthCode) error
	// RevokeAuthCode must atomically invalidate the code; a second call for
	// the same identifier reports it already revoked via IsAuthCodeRevoked.
	RevokeAuthCode(ctx context.Context, codeID string) error
	IsAuthCodeRevoked(ctx context.Context, codeID string) (bool, error)
}

// DeviceCodeRepository tracks device codes through the polling flow.
type DeviceCodeRepository interface {
	NewDeviceCode(ctx context.Context) (*entity.DeviceCode, error)
	PersistDeviceCode(ctx context.Context, code *entity.DeviceCode) error
	// GetDeviceCode returns the current state of the code (user approval and
	// denial land here between polls) or nil when unknown.
	GetDeviceCode(ctx context.Context, codeID string) (*entity.DeviceCode, error)
	RevokeDeviceCode(ctx context.Context, codeID string) error
	IsDeviceCodeRevoked(ctx context.Context, codeID string) (bool, error)
}

// DevicePollRepository persists the last poll instant per device code so the
// grant can enforce the advertised interval. Best-effort: concurrent pollers
// of one code are not serialized beyond what the backend provides.
type DevicePollRepository interface {
	// LastPolledAt returns the Unix seconds of the previous poll, or 0 when
	// the code has never been polled.
	LastPolledAt(ctx context.Context, codeID string) (int64, error)
	SetLastPolledAt(ctx context.Context, codeID string, unixSeconds int64) error
}

// ScopeRepository resolves requested scope identifiers and finalizes the
// granted set. The finalized set is authoritative; the core never grants
// beyond it.
type ScopeRepository interface {
	// GetScope returns the scope or nil when the identifier is unknown.
	GetScope(ctx context.Context, scopeID string) (*entity.Scope, error)
	// FinalizeScopes may narrow or expand the validated set per client, user
	// and grant type.
	FinalizeScopes(ctx context.Context, scopes []entity.Scope, grantType string, client *entity.Client, userID string) ([]entity.Scope, error)
}

// UserRepository verifies resource-owner credentials for the password grant.
type UserRepository interface {
	// GetUserByCredentials returns nil for both unknown users and wrong
	// passwords; callers must not distinguish the two.
	GetUserByCredentials(ctx context.Context, username, password, grantType string, client *entity.Client) (*entity.User, error)
}
