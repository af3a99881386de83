// Package entity holds the value objects shared by grants, repositories and
// response builders: clients, scopes, tokens and the single-use codes minted
// during the authorization-code and device-code flows.
package entity

import "time"

// Identifiable is anything addressed by a unique string identifier.
type Identifiable interface {
	Identifier() string
}

// Expirable is anything with an absolute expiry. Expiry is enforced by
// comparison at validation time; nothing sweeps expired records proactively.
type Expirable interface {
	ExpiresAt() time.Time
}

// ScopeBearing is anything carrying a granted scope set.
type ScopeBearing interface {
	Scopes() []Scope
}

// Scope is a named permission unit a client may be granted.
type Scope struct {
	ID string
}

// Identifier returns the scope identifier.
func (s Scope) Identifier() string { return s.ID }

// ScopeIDs flattens a scope slice to its identifiers, preserving order.
func ScopeIDs(scopes []Scope) []string {
	ids := make([]string, len(scopes))
	for i, s := range scopes {
		ids[i] = s.ID
	}
	return ids
}

// HasScope reports whether id is present in scopes.
func HasScope(scopes []Scope, id string) bool {
	for _, s := range scopes {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Client is an OAuth client registration. Instances are loaded per-request
// from the client repository and never mutated by the core.
type Client struct {
	ID           string
	Name         string
	RedirectURIs []string
	// Confidential clients hold a secret and must authenticate with it at the
	// token endpoint. Public clients authenticate with PKCE instead.
	Confidential bool
}

// Identifier returns the client identifier.
func (c *Client) Identifier() string { return c.ID }

// AllowsRedirectURI reports whether uri exactly matches one of the client's
// registered redirect URIs. Comparison is byte-for-byte; no wildcard or
// prefix matching, no trailing-slash normalization.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// User is the resource owner as resolved by the user repository.
type User struct {
	ID string
}

// Identifier returns the user identifier.
func (u *User) Identifier() string { return u.ID }

// AccessToken is an issued access token. Never mutated after creation.
type AccessToken struct {
	ID            string
	ClientID      string
	UserID        string
	GrantedScopes []Scope
	Expiry        time.Time
}

func (t *AccessToken) Identifier() string   { return t.ID }
func (t *AccessToken) ExpiresAt() time.Time { return t.Expiry }
func (t *AccessToken) Scopes() []Scope      { return t.GrantedScopes }

// RefreshToken binds a refresh credential to the access token it can renew.
// The value the client holds is the encrypted serialization of these fields,
// produced by the codec; the repository tracks only the identifier for
// revocation.
type RefreshToken struct {
	ID            string
	AccessTokenID string
	ClientID      string
	UserID        string
	GrantedScopes []Scope
	Expiry        time.Time
}

func (t *RefreshToken) Identifier() string   { return t.ID }
func (t *RefreshToken) ExpiresAt() time.Time { return t.Expiry }
func (t *RefreshToken) Scopes() []Scope      { return t.GrantedScopes }

// AuthCode is a single-use authorization code. UserID is set when the
// resource owner approves; redeeming deletes the code.
type AuthCode struct {
	ID            string
	ClientID      string
	UserID        string
	RedirectURI   string
	GrantedScopes []Scope
	Expiry        time.Time
	// PKCE binding captured at authorization time, verified at redemption.
	CodeChallenge       string
	CodeChallengeMethod string
}

func (c *AuthCode) Identifier() string   { return c.ID }
func (c *AuthCode) ExpiresAt() time.Time { return c.Expiry }
func (c *AuthCode) Scopes() []Scope      { return c.GrantedScopes }

// DeviceCode is the long-lived device flow credential plus its short
// user-facing code. UserID stays empty until the user approves at the
// verification URI; Denied marks a terminal refusal.
type DeviceCode struct {
	ID              string
	ClientID        string
	UserID          string
	UserCode        string
	VerificationURI string
	GrantedScopes   []Scope
	Expiry          time.Time
	Denied          bool
}

func (d *DeviceCode) Identifier() string   { return d.ID }
func (d *DeviceCode) ExpiresAt() time.Time { return d.Expiry }
func (d *DeviceCode) Scopes() []Scope      { return d.GrantedScopes }

// IsExpired reports whether e expired before now.
func IsExpired(e Expirable, now time.Time) bool {
	return e.ExpiresAt().Before(now)
}
