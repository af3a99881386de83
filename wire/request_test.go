package wire

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamPrefersFormOverQuery(t *testing.T) {
	req := &Request{
		Query: url.Values{"scope": {"from-query"}, "state": {"xyz"}},
		Form:  url.Values{"scope": {"from-form"}},
	}

	assert.Equal(t, "from-form", req.Param("scope"))
	assert.Equal(t, "xyz", req.Param("state"))
	assert.Empty(t, req.Param("missing"))

	var zero Request
	assert.Empty(t, zero.Param("anything"))
}

func TestBearerTokenHeaderWins(t *testing.T) {
	header := http.Header{}
	header.Set("Authorization", "Bearer from-header")
	req := &Request{
		Header: header,
		Query:  url.Values{"access_token": {"from-query"}},
		Form:   url.Values{"access_token": {"from-form"}},
	}

	assert.Equal(t, "from-header", req.BearerToken(true, true))
}

func TestBearerTokenFallbacksAreOptIn(t *testing.T) {
	req := &Request{
		Query: url.Values{"access_token": {"from-query"}},
		Form:  url.Values{"access_token": {"from-form"}},
	}

	assert.Empty(t, req.BearerToken(false, false))
	assert.Equal(t, "from-query", req.BearerToken(true, false))
	assert.Equal(t, "from-form", req.BearerToken(false, true))
}

func TestBearerTokenSchemeCaseInsensitive(t *testing.T) {
	header := http.Header{}
	header.Set("Authorization", "bearer lower-scheme")
	req := &Request{Header: header}
	assert.Equal(t, "lower-scheme", req.BearerToken(false, false))

	header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Empty(t, req.BearerToken(false, false))
}

func TestClientCredentialsBasicAuth(t *testing.T) {
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("web-app:s3cret")))
	req := &Request{
		Header: header,
		Form:   url.Values{"client_id": {"body-client"}, "client_secret": {"body-secret"}},
	}

	id, secret := req.ClientCredentials()
	assert.Equal(t, "web-app", id)
	assert.Equal(t, "s3cret", secret)
}

func TestClientCredentialsBodyFallback(t *testing.T) {
	req := &Request{Form: url.Values{"client_id": {"web-app"}, "client_secret": {"s3cret"}}}

	id, secret := req.ClientCredentials()
	assert.Equal(t, "web-app", id)
	assert.Equal(t, "s3cret", secret)

	public := &Request{Form: url.Values{"client_id": {"cli-app"}}}
	id, secret = public.ClientCredentials()
	assert.Equal(t, "cli-app", id)
	assert.Empty(t, secret)
}
