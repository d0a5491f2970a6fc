package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
)

// ClientInfo holds metadata about an authenticated gateway client.
type ClientInfo struct {
	Name string
}

// Authenticator validates incoming gateway connections.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

type authEntry struct {
	token []byte
	info  *ClientInfo
}

// StaticTokenAuth authenticates clients against a static token list
// using constant-time comparison to prevent timing attacks.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from the configured tokens.
func NewStaticTokenAuth(tokens []config.GatewayToken) *StaticTokenAuth {
	a := &StaticTokenAuth{
		entries: make([]authEntry, len(tokens)),
	}
	for i, t := range tokens {
		a.entries[i] = authEntry{
			token: []byte(t.Token),
			info:  &ClientInfo{Name: t.Name},
		}
	}
	return a
}

// Authenticate returns client info if the token is valid.
// Every entry is compared so the time taken does not depend on which matched.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	tokenBytes := []byte(token)
	var found *ClientInfo
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 && found == nil {
			found = e.info
		}
	}
	if found == nil {
		return nil, domain.ErrGatewayAuthFailed
	}
	return found, nil
}

// openAuth accepts every client. Used when no tokens are configured.
type openAuth struct{}

func (openAuth) Authenticate(string) (*ClientInfo, error) {
	return &ClientInfo{Name: "anonymous"}, nil
}

// NewAuthenticator returns a StaticTokenAuth, or an authenticator that admits
// everyone when tokens is empty.
func NewAuthenticator(tokens []config.GatewayToken) Authenticator {
	if len(tokens) == 0 {
		return openAuth{}
	}
	return NewStaticTokenAuth(tokens)
}

// requestToken reads the token from the Authorization header, falling back
// to the token query parameter.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return tok
		}
	}
	return r.URL.Query().Get("token")
}
