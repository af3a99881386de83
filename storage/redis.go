package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatewarden/oauth2/codec"
	"github.com/gatewarden/oauth2/entity"
)

// Key prefixes. Records live under their own key with a TTL taken from the
// entity expiry; revocation is a separate marker so a revoked identifier
// stays revoked even after the record itself expires out.
const (
	redisAccessPrefix        = "oauth:at:"
	redisRefreshPrefix       = "oauth:rt:"
	redisAuthCodePrefix      = "oauth:ac:"
	redisDevicePrefix        = "oauth:dc:"
	redisDeviceUserPrefix    = "oauth:dc:user:"
	redisPollPrefix          = "oauth:poll:"
	redisRevokedPrefix       = "oauth:revoked:"
	redisRevokedRetention    = 24 * time.Hour
)

// RedisStore backs the token, code and poll repositories with Redis. Client,
// scope and user repositories are deliberately absent; pair it with the
// Postgres or YAML client registry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore parses the URL, pings the server and returns the store.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client (tests use miniredis).
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close releases the connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) setJSON(ctx context.Context, key string, value interface{}, expiry time.Time) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ttl := time.Until(expiry)
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.client.Set(ctx, key, payload, ttl).Err()
}

func (s *RedisStore) getJSON(ctx context.Context, key string, into interface{}) (bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), into); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) markRevoked(ctx context.Context, id string) error {
	return s.client.Set(ctx, redisRevokedPrefix+id, "1", redisRevokedRetention).Err()
}

func (s *RedisStore) isRevoked(ctx context.Context, id string) (bool, error) {
	err := s.client.Get(ctx, redisRevokedPrefix+id).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) NewToken(ctx context.Context, client *entity.Client, scopes []entity.Scope, userID string) (*entity.AccessToken, error) {
	return &entity.AccessToken{}, nil
}

// Access-token records live under the SHA-256 digest of their identifier and
// carry the digest as their ID, so a dumped keyspace never yields a usable
// opaque bearer secret. All lookups accept the raw identifier.
func (s *RedisStore) PersistAccessToken(ctx context.Context, token *entity.AccessToken) error {
	record := *token
	record.ID = codec.HashToken(token.ID)
	return s.setJSON(ctx, redisAccessPrefix+record.ID, &record, record.Expiry)
}

func (s *RedisStore) GetAccessToken(ctx context.Context, tokenID string) (*entity.AccessToken, error) {
	var token entity.AccessToken
	found, err := s.getJSON(ctx, redisAccessPrefix+codec.HashToken(tokenID), &token)
	if err != nil || !found {
		return nil, err
	}
	return &token, nil
}

func (s *RedisStore) RevokeAccessToken(ctx context.Context, tokenID string) error {
	hashed := codec.HashToken(tokenID)
	if err := s.markRevoked(ctx, hashed); err != nil {
		return err
	}
	return s.client.Del(ctx, redisAccessPrefix+hashed).Err()
}

func (s *RedisStore) IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	return s.isRevoked(ctx, codec.HashToken(tokenID))
}

// RefreshTokens returns the refresh-token view of the store.
func (s *RedisStore) RefreshTokens() *RedisRefreshTokens {
	return &RedisRefreshTokens{store: s}
}

// RedisRefreshTokens adapts RedisStore to the refresh-token contract.
type RedisRefreshTokens struct {
	store *RedisStore
}

func (r *RedisRefreshTokens) NewToken(ctx context.Context) (*entity.RefreshToken, error) {
	return &entity.RefreshToken{}, nil
}

func (r *RedisRefreshTokens) PersistRefreshToken(ctx context.Context, token *entity.RefreshToken) error {
	return r.store.setJSON(ctx, redisRefreshPrefix+token.ID, token, token.Expiry)
}

func (r *RedisRefreshTokens) RevokeRefreshToken(ctx context.Context, tokenID string) error {
	if err := r.store.markRevoked(ctx, tokenID); err != nil {
		return err
	}
	return r.store.client.Del(ctx, redisRefreshPrefix+tokenID).Err()
}

func (r *RedisRefreshTokens) IsRefreshTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	return r.store.isRevoked(ctx, tokenID)
}

// AuthCodes returns the auth-code view of the store.
func (s *RedisStore) AuthCodes() *RedisAuthCodes {
	return &RedisAuthCodes{store: s}
}

// RedisAuthCodes adapts RedisStore to the auth-code contract.
type RedisAuthCodes struct {
	store *RedisStore
}

func (a *RedisAuthCodes) NewAuthCode(ctx context.Context) (*entity.AuthCode, error) {
	return &entity.AuthCode{}, nil
}

func (a *RedisAuthCodes) PersistAuthCode(ctx context.Context, code *entity.AuthCode) error {
	return a.store.setJSON(ctx, redisAuthCodePrefix+code.ID, code, code.Expiry)
}

func (a *RedisAuthCodes) RevokeAuthCode(ctx context.Context, codeID string) error {
	if err := a.store.markRevoked(ctx, codeID); err != nil {
		return err
	}
	return a.store.client.Del(ctx, redisAuthCodePrefix+codeID).Err()
}

func (a *RedisAuthCodes) IsAuthCodeRevoked(ctx context.Context, codeID string) (bool, error) {
	return a.store.isRevoked(ctx, codeID)
}

// DeviceCodes returns the device-code view of the store.
func (s *RedisStore) DeviceCodes() *RedisDeviceCodes {
	return &RedisDeviceCodes{store: s}
}

// RedisDeviceCodes adapts RedisStore to the device-code contract, with a
// secondary index from user code to device code for the verification page.
type RedisDeviceCodes struct {
	store *RedisStore
}

func (d *RedisDeviceCodes) NewDeviceCode(ctx context.Context) (*entity.DeviceCode, error) {
	return &entity.DeviceCode{}, nil
}

func (d *RedisDeviceCodes) PersistDeviceCode(ctx context.Context, code *entity.DeviceCode) error {
	if err := d.store.setJSON(ctx, redisDevicePrefix+code.ID, code, code.Expiry); err != nil {
		return err
	}
	if code.UserCode != "" {
		ttl := time.Until(code.Expiry)
		if ttl <= 0 {
			ttl = time.Second
		}
		return d.store.client.Set(ctx, redisDeviceUserPrefix+code.UserCode, code.ID, ttl).Err()
	}
	return nil
}

func (d *RedisDeviceCodes) GetDeviceCode(ctx context.Context, codeID string) (*entity.DeviceCode, error) {
	var code entity.DeviceCode
	found, err := d.store.getJSON(ctx, redisDevicePrefix+codeID, &code)
	if err != nil || !found {
		return nil, err
	}
	return &code, nil
}

// GetDeviceCodeByUserCode resolves the user-facing code entered on the
// verification page.
func (d *RedisDeviceCodes) GetDeviceCodeByUserCode(ctx context.Context, userCode string) (*entity.DeviceCode, error) {
	codeID, err := d.store.client.Get(ctx, redisDeviceUserPrefix+userCode).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.GetDeviceCode(ctx, codeID)
}

func (d *RedisDeviceCodes) RevokeDeviceCode(ctx context.Context, codeID string) error {
	if err := d.store.markRevoked(ctx, codeID); err != nil {
		return err
	}
	return d.store.client.Del(ctx, redisDevicePrefix+codeID).Err()
}

func (d *RedisDeviceCodes) IsDeviceCodeRevoked(ctx context.Context, codeID string) (bool, error) {
	return d.store.isRevoked(ctx, codeID)
}

// Polls returns the device-poll view of the store.
func (s *RedisStore) Polls() *RedisPolls {
	return &RedisPolls{store: s}
}

// RedisPolls adapts RedisStore to the device-poll contract.
type RedisPolls struct {
	store *RedisStore
}

func (p *RedisPolls) LastPolledAt(ctx context.Context, codeID string) (int64, error) {
	val, err := p.store.client.Get(ctx, redisPollPrefix+codeID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func (p *RedisPolls) SetLastPolledAt(ctx context.Context, codeID string, unixSeconds int64) error {
	return p.store.client.Set(ctx, redisPollPrefix+codeID, unixSeconds, redisRevokedRetention).Err()
}
