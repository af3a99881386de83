// Package storage ships reference implementations of the repository
// contracts: an in-memory backend for tests and development, Postgres and
// Redis backends for deployments, and a read-only YAML client registry.
package storage

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatewarden/oauth2/codec"
	"github.com/gatewarden/oauth2/entity"
)

// MemoryStore satisfies every repository contract with mutex-guarded maps.
// Suitable for tests and single-process development servers.
type MemoryStore struct {
	mu sync.RWMutex

	clients        map[string]*memoryClient
	accessTokens   map[string]*entity.AccessToken
	refreshTokens  map[string]*entity.RefreshToken
	authCodes      map[string]*entity.AuthCode
	deviceCodes    map[string]*entity.DeviceCode
	revokedAccess  map[string]bool
	revokedRefresh map[string]bool
	revokedCodes   map[string]bool
	revokedDevice  map[string]bool
	lastPolls      map[string]int64
	scopes         map[string]entity.Scope
	users          map[string]memoryUser

	// FinalizeFunc overrides the default pass-through scope finalization.
	FinalizeFunc func(scopes []entity.Scope, grantType string, client *entity.Client, userID string) []entity.Scope
}

type memoryClient struct {
	client     entity.Client
	secretHash string
	grantTypes map[string]bool
}

type memoryUser struct {
	id           string
	passwordHash string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients:        make(map[string]*memoryClient),
		accessTokens:   make(map[string]*entity.AccessToken),
		refreshTokens:  make(map[string]*entity.RefreshToken),
		authCodes:      make(map[string]*entity.AuthCode),
		deviceCodes:    make(map[string]*entity.DeviceCode),
		revokedAccess:  make(map[string]bool),
		revokedRefresh: make(map[string]bool),
		revokedCodes:   make(map[string]bool),
		revokedDevice:  make(map[string]bool),
		lastPolls:      make(map[string]int64),
		scopes:         make(map[string]entity.Scope),
		users:          make(map[string]memoryUser),
	}
}

// AddClient registers a client. The secret is bcrypt-hashed at rest; pass an
// empty secret for public clients. grantTypes limits which grants the client
// may use; empty means all.
func (s *MemoryStore) AddClient(client entity.Client, secret string, grantTypes ...string) error {
	record := &memoryClient{client: client}
	if secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		record.secretHash = string(hash)
	}
	if len(grantTypes) > 0 {
		record.grantTypes = make(map[string]bool, len(grantTypes))
		for _, g := range grantTypes {
			record.grantTypes[g] = true
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = record
	return nil
}

// AddScope registers a known scope identifier.
func (s *MemoryStore) AddScope(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.scopes[id] = entity.Scope{ID: id}
	}
}

// AddUser registers a resource owner for the password grant.
func (s *MemoryStore) AddUser(userID, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = memoryUser{id: userID, passwordHash: string(hash)}
	return nil
}

func (s *MemoryStore) GetClient(ctx context.Context, clientID string) (*entity.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.clients[clientID]
	if !ok {
		return nil, nil
	}
	client := record.client
	return &client, nil
}

func (s *MemoryStore) ValidateClient(ctx context.Context, clientID, clientSecret, grantType string) (bool, error) {
	s.mu.RLock()
	record, ok := s.clients[clientID]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if record.grantTypes != nil && !record.grantTypes[grantType] {
		return false, nil
	}
	if record.client.Confidential {
		if clientSecret == "" {
			return false, nil
		}
		return bcrypt.CompareHashAndPassword([]byte(record.secretHash), []byte(clientSecret)) == nil, nil
	}
	return clientSecret == "", nil
}

func (s *MemoryStore) NewToken(ctx context.Context, client *entity.Client, scopes []entity.Scope, userID string) (*entity.AccessToken, error) {
	return &entity.AccessToken{}, nil
}

// Access-token records live under the SHA-256 digest of their identifier and
// carry the digest as their ID, so a dumped store never yields a usable
// opaque bearer secret. All lookups accept the raw identifier.
func (s *MemoryStore) PersistAccessToken(ctx context.Context, token *entity.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *token
	copied.ID = codec.HashToken(token.ID)
	s.accessTokens[copied.ID] = &copied
	return nil
}

func (s *MemoryStore) GetAccessToken(ctx context.Context, tokenID string) (*entity.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.accessTokens[codec.HashToken(tokenID)]
	if !ok {
		return nil, nil
	}
	copied := *token
	return &copied, nil
}

func (s *MemoryStore) RevokeAccessToken(ctx context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokedAccess[codec.HashToken(tokenID)] = true
	return nil
}

func (s *MemoryStore) IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revokedAccess[codec.HashToken(tokenID)], nil
}

// RefreshTokens returns a view implementing repository.RefreshTokenRepository
// with a NewToken signature distinct from the access-token one.
func (s *MemoryStore) RefreshTokens() *MemoryRefreshTokens {
	return &MemoryRefreshTokens{store: s}
}

// MemoryRefreshTokens adapts MemoryStore to the refresh-token contract.
type MemoryRefreshTokens struct {
	store *MemoryStore
}

func (r *MemoryRefreshTokens) NewToken(ctx context.Context) (*entity.RefreshToken, error) {
	return &entity.RefreshToken{}, nil
}

func (r *MemoryRefreshTokens) PersistRefreshToken(ctx context.Context, token *entity.RefreshToken) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := *token
	r.store.refreshTokens[token.ID] = &copied
	return nil
}

func (r *MemoryRefreshTokens) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.revokedRefresh[tokenID] = true
	return nil
}

func (r *MemoryRefreshTokens) IsRefreshTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.revokedRefresh[tokenID], nil
}

// AuthCodes returns the auth-code view of the store.
func (s *MemoryStore) AuthCodes() *MemoryAuthCodes {
	return &MemoryAuthCodes{store: s}
}

// MemoryAuthCodes adapts MemoryStore to the auth-code contract.
type MemoryAuthCodes struct {
	store *MemoryStore
}

func (a *MemoryAuthCodes) NewAuthCode(ctx context.Context) (*entity.AuthCode, error) {
	return &entity.AuthCode{}, nil
}

func (a *MemoryAuthCodes) PersistAuthCode(ctx context.Context, code *entity.AuthCode) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	copied := *code
	a.store.authCodes[code.ID] = &copied
	return nil
}

func (a *MemoryAuthCodes) RevokeAuthCode(ctx context.Context, codeID string) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	a.store.revokedCodes[codeID] = true
	return nil
}

func (a *MemoryAuthCodes) IsAuthCodeRevoked(ctx context.Context, codeID string) (bool, error) {
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	return a.store.revokedCodes[codeID], nil
}

// DeviceCodes returns the device-code view of the store.
func (s *MemoryStore) DeviceCodes() *MemoryDeviceCodes {
	return &MemoryDeviceCodes{store: s}
}

// MemoryDeviceCodes adapts MemoryStore to the device-code contract.
type MemoryDeviceCodes struct {
	store *MemoryStore
}

func (d *MemoryDeviceCodes) NewDeviceCode(ctx context.Context) (*entity.DeviceCode, error) {
	return &entity.DeviceCode{}, nil
}

func (d *MemoryDeviceCodes) PersistDeviceCode(ctx context.Context, code *entity.DeviceCode) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	copied := *code
	d.store.deviceCodes[code.ID] = &copied
	return nil
}

func (d *MemoryDeviceCodes) GetDeviceCode(ctx context.Context, codeID string) (*entity.DeviceCode, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	code, ok := d.store.deviceCodes[codeID]
	if !ok {
		return nil, nil
	}
	copied := *code
	return &copied, nil
}

// GetDeviceCodeByUserCode resolves the user-facing code entered on the
// verification page.
func (d *MemoryDeviceCodes) GetDeviceCodeByUserCode(ctx context.Context, userCode string) (*entity.DeviceCode, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	for _, code := range d.store.deviceCodes {
		if code.UserCode == userCode {
			copied := *code
			return &copied, nil
		}
	}
	return nil, nil
}

func (d *MemoryDeviceCodes) RevokeDeviceCode(ctx context.Context, codeID string) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	d.store.revokedDevice[codeID] = true
	return nil
}

func (d *MemoryDeviceCodes) IsDeviceCodeRevoked(ctx context.Context, codeID string) (bool, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	return d.store.revokedDevice[codeID], nil
}

// Polls returns the device-poll view of the store.
func (s *MemoryStore) Polls() *MemoryPolls {
	return &MemoryPolls{store: s}
}

// MemoryPolls adapts MemoryStore to the device-poll contract.
type MemoryPolls struct {
	store *MemoryStore
}

func (p *MemoryPolls) LastPolledAt(ctx context.Context, codeID string) (int64, error) {
	p.store.mu.RLock()
	defer p.store.mu.RUnlock()
	return p.store.lastPolls[codeID], nil
}

func (p *MemoryPolls) SetLastPolledAt(ctx context.Context, codeID string, unixSeconds int64) error {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	p.store.lastPolls[codeID] = unixSeconds
	return nil
}

func (s *MemoryStore) GetScope(ctx context.Context, scopeID string) (*entity.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope, ok := s.scopes[scopeID]
	if !ok {
		return nil, nil
	}
	return &scope, nil
}

func (s *MemoryStore) FinalizeScopes(ctx context.Context, scopes []entity.Scope, grantType string, client *entity.Client, userID string) ([]entity.Scope, error) {
	if s.FinalizeFunc != nil {
		return s.FinalizeFunc(scopes, grantType, client, userID), nil
	}
	return scopes, nil
}

func (s *MemoryStore) GetUserByCredentials(ctx context.Context, username, password, grantType string, client *entity.Client) (*entity.User, error) {
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(user.passwordHash), []byte(password)) != nil {
		return nil, nil
	}
	return &entity.User{ID: user.id}, nil
}
