// Package config assembles the library's configuration surface from the
// environment, with optional .env files and AWS Secrets Manager hydration for
// containerized deployments.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// TokenFormat selects how access tokens are serialized.
type TokenFormat string

const (
	// TokenFormatJWT signs access tokens as RS256 JWTs.
	TokenFormatJWT TokenFormat = "jwt"
	// TokenFormatOpaque issues random identifiers tracked only in the
	// access-token repository.
	TokenFormatOpaque TokenFormat = "opaque"
)

// Config holds every tunable the authorization server reads.
type Config struct {
	Issuer string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AuthCodeTTL     time.Duration
	DeviceCodeTTL   time.Duration
	// DevicePollInterval is the minimum seconds between device polls.
	DevicePollInterval time.Duration
	// VerificationURI is where device-flow users enter their user code.
	VerificationURI string

	DefaultScopes       []string
	RequireScopeParam   bool
	RequireStateParam   bool
	RotateRefreshTokens bool
	// RequireSecretForRefresh forces confidential credentials on the refresh
	// grant even for public clients.
	RequireSecretForRefresh bool

	AccessTokenFormat TokenFormat

	// EncryptionKey is the 32-byte AEAD key for opaque payloads.
	EncryptionKey []byte
	// PrivateKeyPEM is the RSA signing key, inline PEM.
	PrivateKeyPEM string

	IDTokenTTL time.Duration
}

// Load reads the configuration from the environment. LoadEnv should run
// first when .env files or Secrets Manager are in play.
func Load() (Config, error) {
	issuer := strings.TrimSpace(os.Getenv("OAUTH_ISSUER"))
	if issuer == "" {
		return Config{}, fmt.Errorf("OAUTH_ISSUER is required")
	}

	keyB64 := strings.TrimSpace(os.Getenv("OAUTH_ENCRYPTION_KEY"))
	if keyB64 == "" {
		return Config{}, fmt.Errorf("OAUTH_ENCRYPTION_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return Config{}, fmt.Errorf("OAUTH_ENCRYPTION_KEY must be base64: %w", err)
	}

	pemValue := os.Getenv("OAUTH_PRIVATE_KEY_PEM")
	if pemValue == "" {
		if path := os.Getenv("OAUTH_PRIVATE_KEY_PATH"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return Config{}, fmt.Errorf("failed to read OAUTH_PRIVATE_KEY_PATH: %w", err)
			}
			pemValue = string(data)
		}
	}
	if pemValue == "" {
		return Config{}, fmt.Errorf("OAUTH_PRIVATE_KEY_PEM or OAUTH_PRIVATE_KEY_PATH is required")
	}

	format := TokenFormat(strings.ToLower(strings.TrimSpace(os.Getenv("OAUTH_ACCESS_TOKEN_FORMAT"))))
	switch format {
	case "":
		format = TokenFormatJWT
	case TokenFormatJWT, TokenFormatOpaque:
	default:
		return Config{}, fmt.Errorf("OAUTH_ACCESS_TOKEN_FORMAT must be jwt or opaque")
	}

	cfg := Config{
		Issuer:                  strings.TrimRight(issuer, "/"),
		AccessTokenTTL:          parseDurationEnv("OAUTH_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:         parseDurationEnv("OAUTH_REFRESH_TOKEN_TTL", 30*24*time.Hour),
		AuthCodeTTL:             parseDurationEnv("OAUTH_AUTH_CODE_TTL", 10*time.Minute),
		DeviceCodeTTL:           parseDurationEnv("OAUTH_DEVICE_CODE_TTL", 10*time.Minute),
		DevicePollInterval:      parseDurationEnv("OAUTH_DEVICE_POLL_INTERVAL", 5*time.Second),
		VerificationURI:         strings.TrimSpace(os.Getenv("OAUTH_VERIFICATION_URI")),
		DefaultScopes:           splitScopes(os.Getenv("OAUTH_DEFAULT_SCOPES")),
		RequireScopeParam:       boolEnv("OAUTH_REQUIRE_SCOPE", false),
		RequireStateParam:       boolEnv("OAUTH_REQUIRE_STATE", false),
		RotateRefreshTokens:     boolEnv("OAUTH_ROTATE_REFRESH_TOKENS", true),
		RequireSecretForRefresh: boolEnv("OAUTH_REFRESH_REQUIRES_SECRET", false),
		AccessTokenFormat:       format,
		EncryptionKey:           key,
		PrivateKeyPEM:           pemValue,
		IDTokenTTL:              parseDurationEnv("OAUTH_ID_TOKEN_TTL", time.Hour),
	}
	return cfg, nil
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if dur, err := time.ParseDuration(val); err == nil {
			return dur
		}
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true") || val == "1"
}

func splitScopes(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
