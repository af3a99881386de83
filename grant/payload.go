package grant

import (
	"encoding/json"
	"time"

	"github.com/gatewarden/oauth2/codec"
	"github.com/gatewarden/oauth2/entity"
)

// The opaque credentials handed to clients (auth codes, refresh tokens,
// device codes) are AEAD-encrypted JSON payloads. Decryption recovers the
// embedded identifiers and bindings; the repositories only track revocation.

type refreshTokenPayload struct {
	RefreshTokenID string   `json:"refresh_token_id"`
	AccessTokenID  string   `json:"access_token_id"`
	ClientID       string   `json:"client_id"`
	UserID         string   `json:"user_id,omitempty"`
	Scopes         []string `json:"scopes"`
	ExpireTime     int64    `json:"expire_time"`
}

type authCodePayload struct {
	AuthCodeID          string   `json:"auth_code_id"`
	ClientID            string   `json:"client_id"`
	UserID              string   `json:"user_id"`
	RedirectURI         string   `json:"redirect_uri,omitempty"`
	Scopes              []string `json:"scopes"`
	ExpireTime          int64    `json:"expire_time"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
}

type deviceCodePayload struct {
	DeviceCodeID string `json:"device_code_id"`
	ExpireTime   int64  `json:"expire_time"`
}

// The payloads satisfy entity.Expirable so expiry checks share
// entity.IsExpired with the stored records.

func (p *refreshTokenPayload) ExpiresAt() time.Time { return time.Unix(p.ExpireTime, 0) }

func (p *authCodePayload) ExpiresAt() time.Time { return time.Unix(p.ExpireTime, 0) }

func (p *deviceCodePayload) ExpiresAt() time.Time { return time.Unix(p.ExpireTime, 0) }

func encryptRefreshToken(enc *codec.Encryptor, token *entity.RefreshToken) (string, error) {
	return encryptPayload(enc, refreshTokenPayload{
		RefreshTokenID: token.ID,
		AccessTokenID:  token.AccessTokenID,
		ClientID:       token.ClientID,
		UserID:         token.UserID,
		Scopes:         entity.ScopeIDs(token.GrantedScopes),
		ExpireTime:     token.Expiry.Unix(),
	})
}

func decryptRefreshToken(enc *codec.Encryptor, ciphertext string) (*refreshTokenPayload, error) {
	var payload refreshTokenPayload
	if err := decryptPayload(enc, ciphertext, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func encryptAuthCode(enc *codec.Encryptor, code *entity.AuthCode) (string, error) {
	return encryptPayload(enc, authCodePayload{
		AuthCodeID:          code.ID,
		ClientID:            code.ClientID,
		UserID:              code.UserID,
		RedirectURI:         code.RedirectURI,
		Scopes:              entity.ScopeIDs(code.GrantedScopes),
		ExpireTime:          code.Expiry.Unix(),
		CodeChallenge:       code.CodeChallenge,
		CodeChallengeMethod: code.CodeChallengeMethod,
	})
}

func decryptAuthCode(enc *codec.Encryptor, ciphertext string) (*authCodePayload, error) {
	var payload authCodePayload
	if err := decryptPayload(enc, ciphertext, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func encryptDeviceCode(enc *codec.Encryptor, code *entity.DeviceCode) (string, error) {
	return encryptPayload(enc, deviceCodePayload{
		DeviceCodeID: code.ID,
		ExpireTime:   code.Expiry.Unix(),
	})
}

func decryptDeviceCode(enc *codec.Encryptor, ciphertext string) (*deviceCodePayload, error) {
	var payload deviceCodePayload
	if err := decryptPayload(enc, ciphertext, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func encryptPayload(enc *codec.Encryptor, payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return enc.Encrypt(raw)
}

func decryptPayload(enc *codec.Encryptor, ciphertext string, into interface{}) error {
	raw, err := enc.Decrypt(ciphertext)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return codec.ErrDecrypt
	}
	return nil
}
