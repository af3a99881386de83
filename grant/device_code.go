package grant

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/oauth2/entity"
	"github.com/gatewarden/oauth2/oautherr"
	"github.com/gatewarden/oauth2/repository"
	"github.com/gatewarden/oauth2/wire"
)

// userCodeCharset deliberately omits vowels and lookalike characters so user
// codes never spell words and survive being read aloud.
const userCodeCharset = "BCDFGHJKLMNPQRSTVWXZ"

const userCodeLength = 8

// DeviceCode implements the RFC 8628 device authorization grant: the device
// obtains a code pair, the user approves out-of-band at the verification URI,
// and the device polls the token endpoint at the advertised interval.
type DeviceCode struct {
	core            *Core
	deviceCodes     repository.DeviceCodeRepository
	polls           repository.DevicePollRepository
	codeTTL         time.Duration
	pollInterval    time.Duration
	verificationURI string
	refreshEnabled  bool
}

// NewDeviceCode builds the grant.
func NewDeviceCode(core *Core, deviceCodes repository.DeviceCodeRepository, polls repository.DevicePollRepository, codeTTL, pollInterval time.Duration, verificationURI string, refreshEnabled bool) *DeviceCode {
	return &DeviceCode{
		core:            core,
		deviceCodes:     deviceCodes,
		polls:           polls,
		codeTTL:         codeTTL,
		pollInterval:    pollInterval,
		verificationURI: verificationURI,
		refreshEnabled:  refreshEnabled,
	}
}

func (g *DeviceCode) Kind() Kind { return KindDeviceCode }

// RespondToDeviceAuthorizationRequest mints the device/user code pair and
// returns the polling parameters.
func (g *DeviceCode) RespondToDeviceAuthorizationRequest(ctx context.Context, req *wire.Request) (*wire.DeviceAuthorizationResponse, *oautherr.Error) {
	client, oerr := g.core.validateClient(ctx, req, g.Kind(), false)
	if oerr != nil {
		return nil, oerr
	}

	scopes, oerr := g.core.validateScopes(ctx, req.Param("scope"))
	if oerr != nil {
		return nil, oerr
	}
	scopes, oerr = g.core.finalizeScopes(ctx, scopes, g.Kind(), client, "")
	if oerr != nil {
		return nil, oerr
	}

	code, err := g.deviceCodes.NewDeviceCode(ctx)
	if err != nil || code == nil {
		return nil, oautherr.ServerError()
	}
	if code.ID == "" {
		code.ID = uuid.New().String()
	}
	userCode, err := generateUserCode()
	if err != nil {
		return nil, oautherr.ServerError()
	}
	code.ClientID = client.ID
	code.UserCode = userCode
	code.VerificationURI = g.verificationURI
	code.GrantedScopes = scopes
	code.Expiry = g.core.now().Add(g.codeTTL)

	if err := g.deviceCodes.PersistDeviceCode(ctx, code); err != nil {
		return nil, oautherr.ServerError()
	}

	serialized, cerr := encryptDeviceCode(g.core.Encryptor, code)
	if cerr != nil {
		return nil, oautherr.ServerError()
	}

	return &wire.DeviceAuthorizationResponse{
		DeviceCode:              serialized,
		UserCode:                userCode,
		VerificationURI:         g.verificationURI,
		VerificationURIComplete: g.verificationURI + "?user_code=" + userCode,
		ExpiresIn:               int(g.codeTTL.Seconds()),
		Interval:                int(g.pollInterval.Seconds()),
	}, nil
}

// CompleteDeviceAuthorizationRequest records the resource owner's decision
// for the device code. The embedder calls this from its verification page
// after resolving the user code.
func (g *DeviceCode) CompleteDeviceAuthorizationRequest(ctx context.Context, deviceCodeID, userID string, approved bool) *oautherr.Error {
	code, err := g.deviceCodes.GetDeviceCode(ctx, deviceCodeID)
	if err != nil {
		return oautherr.ServerError()
	}
	if code == nil {
		return oautherr.InvalidGrant("device code not found")
	}
	if approved {
		code.UserID = userID
	} else {
		code.Denied = true
	}
	if err := g.deviceCodes.PersistDeviceCode(ctx, code); err != nil {
		return oautherr.ServerError()
	}
	return nil
}

// RespondToTokenRequest is the polling endpoint. slow_down guards the token
// endpoint against amplification; pending and denied map to their RFC 8628
// error codes; approval redeems the single-use code.
func (g *DeviceCode) RespondToTokenRequest(ctx context.Context, req *wire.Request) (*wire.BearerTokenResponse, *oautherr.Error) {
	client, oerr := g.core.validateClient(ctx, req, g.Kind(), false)
	if oerr != nil {
		return nil, oerr
	}

	encrypted := req.Param("device_code")
	if encrypted == "" {
		return nil, oautherr.InvalidRequest("device_code")
	}

	payload, err := decryptDeviceCode(g.core.Encryptor, encrypted)
	if err != nil {
		return nil, oautherr.InvalidGrant("cannot decrypt the device code")
	}

	now := g.core.now()
	if entity.IsExpired(payload, now) {
		return nil, oautherr.ExpiredToken()
	}

	// Interval enforcement: record this poll, then reject if the previous one
	// was inside the window. Best-effort for concurrent pollers of one code.
	last, perr := g.polls.LastPolledAt(ctx, payload.DeviceCodeID)
	if perr != nil {
		return nil, oautherr.ServerError()
	}
	if err := g.polls.SetLastPolledAt(ctx, payload.DeviceCodeID, now.Unix()); err != nil {
		return nil, oautherr.ServerError()
	}
	if last > 0 && now.Unix() < last+int64(g.pollInterval.Seconds()) {
		return nil, oautherr.SlowDown()
	}

	code, err := g.deviceCodes.GetDeviceCode(ctx, payload.DeviceCodeID)
	if err != nil {
		return nil, oautherr.ServerError()
	}
	if code == nil {
		return nil, oautherr.InvalidGrant("device code not found")
	}
	if code.ClientID != client.ID {
		return nil, oautherr.InvalidGrant("device code was not issued to this client")
	}

	revoked, rerr := g.deviceCodes.IsDeviceCodeRevoked(ctx, payload.DeviceCodeID)
	if rerr != nil {
		return nil, oautherr.ServerError()
	}
	if revoked {
		return nil, oautherr.InvalidGrant("device code has been revoked")
	}

	if code.Denied {
		return nil, oautherr.AccessDenied("the user denied the request")
	}
	if code.UserID == "" {
		return nil, oautherr.AuthorizationPending()
	}

	// Single use, same discipline as the authorization code.
	if err := g.deviceCodes.RevokeDeviceCode(ctx, payload.DeviceCodeID); err != nil {
		return nil, oautherr.ServerError()
	}

	accessToken, serialized, oerr := g.core.issueAccessToken(ctx, g.Kind(), client, code.UserID, code.GrantedScopes)
	if oerr != nil {
		return nil, oerr
	}

	resp := &wire.BearerTokenResponse{
		AccessToken: serialized,
		TokenType:   "Bearer",
		ExpiresIn:   int(accessToken.Expiry.Sub(now).Seconds()),
		Scope:       joinScopes(code.GrantedScopes),
	}

	if g.refreshEnabled {
		_, refreshSerialized, oerr := g.core.issueRefreshToken(ctx, g.Kind(), accessToken)
		if oerr != nil {
			return nil, oerr
		}
		resp.RefreshToken = refreshSerialized
	}

	return resp, nil
}

func generateUserCode() (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(userCodeCharset)))
	for i := 0; i < userCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(userCodeCharset[n.Int64()])
	}
	return sb.String(), nil
}
