// Package wire defines the framework-neutral request and response objects
// exchanged with the embedding HTTP layer, plus the builders that turn token
// entities into RFC 6749/7662 wire shapes. Builders are pure; nothing here
// touches storage.
package wire

import (
	"net/http"
	"net/url"
	"strings"
)

// Request is an inbound OAuth request already parsed by the embedder. Query
// carries URL parameters, Form the decoded POST body, Header the HTTP
// headers. The zero value is usable.
type Request struct {
	Query  url.Values
	Form   url.Values
	Header http.Header
}

// Param returns the named parameter, preferring the form body over the query
// string, as token-endpoint parameters arrive in the body.
func (r *Request) Param(name string) string {
	if r.Form != nil {
		if v := r.Form.Get(name); v != "" {
			return v
		}
	}
	if r.Query != nil {
		return r.Query.Get(name)
	}
	return ""
}

// BearerToken extracts a bearer credential. The Authorization header wins;
// the query parameter and body parameter are fallbacks the caller enables
// explicitly because they leak tokens into logs more readily.
func (r *Request) BearerToken(allowQuery, allowBody bool) string {
	if r.Header != nil {
		auth := r.Header.Get("Authorization")
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if allowQuery && r.Query != nil {
		if v := r.Query.Get("access_token"); v != "" {
			return v
		}
	}
	if allowBody && r.Form != nil {
		if v := r.Form.Get("access_token"); v != "" {
			return v
		}
	}
	return ""
}

// ClientCredentials decodes the client's credentials from the Authorization
// header, falling back to client_id/client_secret body parameters.
func (r *Request) ClientCredentials() (clientID, clientSecret string) {
	if r.Header != nil {
		if id, secret, ok := parseBasicAuth(r.Header.Get("Authorization")); ok {
			return id, secret
		}
	}
	return r.Param("client_id"), r.Param("client_secret")
}

func parseBasicAuth(header string) (string, string, bool) {
	req := http.Request{Header: http.Header{"Authorization": []string{header}}}
	return req.BasicAuth()
}
