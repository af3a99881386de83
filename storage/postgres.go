package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatewarden/oauth2/codec"
	"github.com/gatewarden/oauth2/entity"
)

// PostgresStore backs the repository contracts with Postgres. Single-use
// enforcement relies on the revocation tables' primary keys: a second
// revocation upsert is a no-op and the revoked check is a point lookup.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool, verifies connectivity and
// bootstraps the schema.
func NewPostgresStore(connString string) (*PostgresStore, error) {
	if connString == "" {
		return nil, fmt.Errorf("postgres connection string is required")
	}
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS oauth_clients (
			client_id TEXT PRIMARY KEY,
			client_name TEXT,
			client_secret_hash TEXT,
			redirect_uris TEXT[] NOT NULL DEFAULT '{}',
			grant_types TEXT[] NOT NULL DEFAULT '{}',
			confidential BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_scopes (
			scope_id TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_access_tokens (
			token_id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			user_id TEXT,
			scopes TEXT[] NOT NULL DEFAULT '{}',
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_refresh_tokens (
			token_id TEXT PRIMARY KEY,
			access_token_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			user_id TEXT,
			scopes TEXT[] NOT NULL DEFAULT '{}',
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_auth_codes (
			code_id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			user_id TEXT,
			redirect_uri TEXT,
			scopes TEXT[] NOT NULL DEFAULT '{}',
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_device_codes (
			code_id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			user_id TEXT,
			user_code TEXT NOT NULL,
			verification_uri TEXT,
			scopes TEXT[] NOT NULL DEFAULT '{}',
			expires_at TIMESTAMPTZ NOT NULL,
			denied BOOLEAN NOT NULL DEFAULT FALSE,
			revoked_at TIMESTAMPTZ,
			last_polled_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS oauth_device_codes_user_code ON oauth_device_codes (user_code)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

// SaveClient upserts a client registration. The secret is bcrypt-hashed at
// rest; pass an empty secret for public clients.
func (s *PostgresStore) SaveClient(client *entity.Client, secret string, grantTypes []string) error {
	var secretHash sql.NullString
	if secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		secretHash = sql.NullString{String: string(hash), Valid: true}
	}

	query := `
		INSERT INTO oauth_clients
			(client_id, client_name, client_secret_hash, redirect_uris, grant_types, confidential, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (client_id)
		DO UPDATE SET
			client_name = EXCLUDED.client_name,
			client_secret_hash = EXCLUDED.client_secret_hash,
			redirect_uris = EXCLUDED.redirect_uris,
			grant_types = EXCLUDED.grant_types,
			confidential = EXCLUDED.confidential,
			updated_at = now()
	`
	_, err := s.db.Exec(query,
		client.ID,
		client.Name,
		secretHash,
		pq.Array(client.RedirectURIs),
		pq.Array(grantTypes),
		client.Confidential,
	)
	return err
}

func (s *PostgresStore) GetClient(ctx context.Context, clientID string) (*entity.Client, error) {
	query := `
		SELECT client_id, client_name, redirect_uris, confidential
		FROM oauth_clients
		WHERE client_id = $1
	`
	var client entity.Client
	var redirectURIs []string
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, query, clientID).Scan(
		&client.ID,
		&name,
		pq.Array(&redirectURIs),
		&client.Confidential,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	client.Name = name.String
	client.RedirectURIs = redirectURIs
	return &client, nil
}

func (s *PostgresStore) ValidateClient(ctx context.Context, clientID, clientSecret, grantType string) (bool, error) {
	query := `
		SELECT client_secret_hash, grant_types, confidential
		FROM oauth_clients
		WHERE client_id = $1
	`
	var secretHash sql.NullString
	var grantTypes []string
	var confidential bool
	err := s.db.QueryRowContext(ctx, query, clientID).Scan(&secretHash, pq.Array(&grantTypes), &confidential)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if len(grantTypes) > 0 && !containsString(grantTypes, grantType) {
		return false, nil
	}
	if confidential {
		if clientSecret == "" || !secretHash.Valid {
			return false, nil
		}
		return bcrypt.CompareHashAndPassword([]byte(secretHash.String), []byte(clientSecret)) == nil, nil
	}
	return clientSecret == "", nil
}

// AddScope registers a known scope identifier.
func (s *PostgresStore) AddScope(scopeID string) error {
	_, err := s.db.Exec(`INSERT INTO oauth_scopes (scope_id) VALUES ($1) ON CONFLICT DO NOTHING`, scopeID)
	return err
}

func (s *PostgresStore) GetScope(ctx context.Context, scopeID string) (*entity.Scope, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT scope_id FROM oauth_scopes WHERE scope_id = $1`, scopeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entity.Scope{ID: id}, nil
}

func (s *PostgresStore) FinalizeScopes(ctx context.Context, scopes []entity.Scope, grantType string, client *entity.Client, userID string) ([]entity.Scope, error) {
	return scopes, nil
}

func (s *PostgresStore) NewToken(ctx context.Context, client *entity.Client, scopes []entity.Scope, userID string) (*entity.AccessToken, error) {
	return &entity.AccessToken{}, nil
}

// token_id holds the SHA-256 digest of the identifier so a dumped table
// never yields a usable opaque bearer secret. Lookups accept the raw
// identifier and hash it.
func (s *PostgresStore) PersistAccessToken(ctx context.Context, token *entity.AccessToken) error {
	query := `
		INSERT INTO oauth_access_tokens (token_id, client_id, user_id, scopes, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		codec.HashToken(token.ID),
		token.ClientID,
		nullableString(token.UserID),
		pq.Array(entity.ScopeIDs(token.GrantedScopes)),
		token.Expiry,
	)
	return err
}

func (s *PostgresStore) GetAccessToken(ctx context.Context, tokenID string) (*entity.AccessToken, error) {
	var (
		token  entity.AccessToken
		userID sql.NullString
		scopes []string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token_id, client_id, user_id, scopes, expires_at FROM oauth_access_tokens WHERE token_id = $1`,
		codec.HashToken(tokenID)).Scan(&token.ID, &token.ClientID, &userID, pq.Array(&scopes), &token.Expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	token.UserID = userID.String
	for _, id := range scopes {
		token.GrantedScopes = append(token.GrantedScopes, entity.Scope{ID: id})
	}
	return &token, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, tokenID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE oauth_access_tokens SET revoked_at = now() WHERE token_id = $1 AND revoked_at IS NULL`,
		codec.HashToken(tokenID))
	return err
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT revoked_at IS NOT NULL FROM oauth_access_tokens WHERE token_id = $1`,
		codec.HashToken(tokenID)).Scan(&revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return revoked, nil
}

// RefreshTokens returns the refresh-token view of the store.
func (s *PostgresStore) RefreshTokens() *PostgresRefreshTokens {
	return &PostgresRefreshTokens{store: s}
}

// PostgresRefreshTokens adapts PostgresStore to the refresh-token contract.
type PostgresRefreshTokens struct {
	store *PostgresStore
}

func (r *PostgresRefreshTokens) NewToken(ctx context.Context) (*entity.RefreshToken, error) {
	return &entity.RefreshToken{}, nil
}

func (r *PostgresRefreshTokens) PersistRefreshToken(ctx context.Context, token *entity.RefreshToken) error {
	query := `
		INSERT INTO oauth_refresh_tokens (token_id, access_token_id, client_id, user_id, scopes, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.store.db.ExecContext(ctx, query,
		token.ID,
		token.AccessTokenID,
		token.ClientID,
		nullableString(token.UserID),
		pq.Array(entity.ScopeIDs(token.GrantedScopes)),
		token.Expiry,
	)
	return err
}

func (r *PostgresRefreshTokens) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE oauth_refresh_tokens SET revoked_at = now() WHERE token_id = $1 AND revoked_at IS NULL`,
		tokenID)
	return err
}

func (r *PostgresRefreshTokens) IsRefreshTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := r.store.db.QueryRowContext(ctx,
		`SELECT revoked_at IS NOT NULL FROM oauth_refresh_tokens WHERE token_id = $1`,
		tokenID).Scan(&revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return revoked, nil
}

// AuthCodes returns the auth-code view of the store.
func (s *PostgresStore) AuthCodes() *PostgresAuthCodes {
	return &PostgresAuthCodes{store: s}
}

// PostgresAuthCodes adapts PostgresStore to the auth-code contract.
type PostgresAuthCodes struct {
	store *PostgresStore
}

func (a *PostgresAuthCodes) NewAuthCode(ctx context.Context) (*entity.AuthCode, error) {
	return &entity.AuthCode{}, nil
}

func (a *PostgresAuthCodes) PersistAuthCode(ctx context.Context, code *entity.AuthCode) error {
	query := `
		INSERT INTO oauth_auth_codes (code_id, client_id, user_id, redirect_uri, scopes, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := a.store.db.ExecContext(ctx, query,
		code.ID,
		code.ClientID,
		nullableString(code.UserID),
		nullableString(code.RedirectURI),
		pq.Array(entity.ScopeIDs(code.GrantedScopes)),
		code.Expiry,
	)
	return err
}

func (a *PostgresAuthCodes) RevokeAuthCode(ctx context.Context, codeID string) error {
	_, err := a.store.db.ExecContext(ctx,
		`UPDATE oauth_auth_codes SET revoked_at = now() WHERE code_id = $1 AND revoked_at IS NULL`,
		codeID)
	return err
}

func (a *PostgresAuthCodes) IsAuthCodeRevoked(ctx context.Context, codeID string) (bool, error) {
	var revoked bool
	err := a.store.db.QueryRowContext(ctx,
		`SELECT revoked_at IS NOT NULL FROM oauth_auth_codes WHERE code_id = $1`,
		codeID).Scan(&revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return revoked, nil
}

// DeviceCodes returns the device-code view of the store.
func (s *PostgresStore) DeviceCodes() *PostgresDeviceCodes {
	return &PostgresDeviceCodes{store: s}
}

// PostgresDeviceCodes adapts PostgresStore to the device-code and device-poll
// contracts.
type PostgresDeviceCodes struct {
	store *PostgresStore
}

func (d *PostgresDeviceCodes) NewDeviceCode(ctx context.Context) (*entity.DeviceCode, error) {
	return &entity.DeviceCode{}, nil
}

func (d *PostgresDeviceCodes) PersistDeviceCode(ctx context.Context, code *entity.DeviceCode) error {
	query := `
		INSERT INTO oauth_device_codes
			(code_id, client_id, user_id, user_code, verification_uri, scopes, expires_at, denied)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code_id)
		DO UPDATE SET user_id = EXCLUDED.user_id, denied = EXCLUDED.denied
	`
	_, err := d.store.db.ExecContext(ctx, query,
		code.ID,
		code.ClientID,
		nullableString(code.UserID),
		code.UserCode,
		nullableString(code.VerificationURI),
		pq.Array(entity.ScopeIDs(code.GrantedScopes)),
		code.Expiry,
		code.Denied,
	)
	return err
}

func (d *PostgresDeviceCodes) GetDeviceCode(ctx context.Context, codeID string) (*entity.DeviceCode, error) {
	query := `
		SELECT code_id, client_id, user_id, user_code, verification_uri, scopes, expires_at, denied
		FROM oauth_device_codes
		WHERE code_id = $1
	`
	var code entity.DeviceCode
	var userID, verificationURI sql.NullString
	var scopeIDs []string
	err := d.store.db.QueryRowContext(ctx, query, codeID).Scan(
		&code.ID,
		&code.ClientID,
		&userID,
		&code.UserCode,
		&verificationURI,
		pq.Array(&scopeIDs),
		&code.Expiry,
		&code.Denied,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	code.UserID = userID.String
	code.VerificationURI = verificationURI.String
	code.GrantedScopes = scopesFromIDs(scopeIDs)
	return &code, nil
}

// GetDeviceCodeByUserCode resolves the user-facing code entered on the
// verification page.
func (d *PostgresDeviceCodes) GetDeviceCodeByUserCode(ctx context.Context, userCode string) (*entity.DeviceCode, error) {
	var codeID string
	err := d.store.db.QueryRowContext(ctx,
		`SELECT code_id FROM oauth_device_codes WHERE user_code = $1 AND revoked_at IS NULL`,
		userCode).Scan(&codeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.GetDeviceCode(ctx, codeID)
}

func (d *PostgresDeviceCodes) RevokeDeviceCode(ctx context.Context, codeID string) error {
	_, err := d.store.db.ExecContext(ctx,
		`UPDATE oauth_device_codes SET revoked_at = now() WHERE code_id = $1 AND revoked_at IS NULL`,
		codeID)
	return err
}

func (d *PostgresDeviceCodes) IsDeviceCodeRevoked(ctx context.Context, codeID string) (bool, error) {
	var revoked bool
	err := d.store.db.QueryRowContext(ctx,
		`SELECT revoked_at IS NOT NULL FROM oauth_device_codes WHERE code_id = $1`,
		codeID).Scan(&revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return revoked, nil
}

func (d *PostgresDeviceCodes) LastPolledAt(ctx context.Context, codeID string) (int64, error) {
	var lastPolled int64
	err := d.store.db.QueryRowContext(ctx,
		`SELECT last_polled_at FROM oauth_device_codes WHERE code_id = $1`,
		codeID).Scan(&lastPolled)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return lastPolled, nil
}

func (d *PostgresDeviceCodes) SetLastPolledAt(ctx context.Context, codeID string, unixSeconds int64) error {
	_, err := d.store.db.ExecContext(ctx,
		`UPDATE oauth_device_codes SET last_polled_at = $2 WHERE code_id = $1`,
		codeID, unixSeconds)
	return err
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func scopesFromIDs(ids []string) []entity.Scope {
	scopes := make([]entity.Scope, len(ids))
	for i, id := range ids {
		scopes[i] = entity.Scope{ID: id}
	}
	return scopes
}
