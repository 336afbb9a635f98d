// Package inboundauth enforces bearer-token authentication on the proxy's
// own HTTP/WS surface (spec §4.H), independent of the outbound
// authprovider package that authenticates to upstream servers.
package inboundauth

import (
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/revittco/mcplexer/internal/envsubst"
)

// Type discriminates the two supported inbound auth modes.
type Type string

const (
	TypeNone   Type = "none"
	TypeBearer Type = "bearer"
)

// Config mirrors ProxyConfig.InboundAuth: {type, tokens?}.
type Config struct {
	Type   Type
	Tokens []string
}

// authHeaderPattern captures the scheme and the raw token/credentials
// portion of an Authorization header, e.g. "Bearer abc" or "Basic xyz".
var authHeaderPattern = regexp.MustCompile(`^(\S+)\s+(.*)$`)

const wwwAuthenticate = `Bearer realm="MCP Proxy API"`
const invalidFormatMessage = "Invalid Authorization header format. Expected: Bearer <token>"

// Gate enforces Config against inbound HTTP requests.
type Gate struct {
	cfg     Config
	allowed map[string]struct{}
}

// New resolves ${VAR} references in cfg.Tokens against os.Getenv and
// constructs a Gate. Returns an error (fatal at startup per spec §4.H)
// if a token references an undefined variable, or if Type is bearer with
// an empty token list.
func New(cfg Config) (*Gate, error) {
	if cfg.Type == "" {
		cfg.Type = TypeNone
	}
	if cfg.Type == TypeBearer && len(cfg.Tokens) == 0 {
		return nil, errEmptyBearerTokens
	}

	allowed := make(map[string]struct{}, len(cfg.Tokens))
	for _, raw := range cfg.Tokens {
		resolved, err := envsubst.Expand(raw, func(name string) (string, bool) {
			return os.LookupEnv(name)
		})
		if err != nil {
			return nil, &ConfigError{Message: err.Error()}
		}
		allowed[resolved] = struct{}{}
	}

	return &Gate{cfg: cfg, allowed: allowed}, nil
}

// unprotectedPaths lists the routes spec §4.H allows through regardless
// of inbound auth configuration.
var unprotectedPaths = map[string]struct{}{
	"/api/health":         {},
	"/api/oauth/callback": {},
}

// unprotectedPrefixes covers the consent UI routes, which render under a
// shared path prefix rather than one fixed path.
var unprotectedPrefixes = []string{
	"/api/oauth/consent-ui",
}

// IsUnprotected reports whether path is on the spec §4.H allow-list.
func IsUnprotected(path string) bool {
	if _, ok := unprotectedPaths[path]; ok {
		return true
	}
	for _, prefix := range unprotectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Authorize checks r against the gate's configuration. It returns true
// if the request is allowed through. On rejection it has already written
// the 401 response (status, WWW-Authenticate, and body) to w.
func (g *Gate) Authorize(w http.ResponseWriter, r *http.Request) bool {
	if g == nil || g.cfg.Type == TypeNone {
		return true
	}
	if IsUnprotected(r.URL.Path) {
		return true
	}

	header := r.Header.Get("Authorization")
	m := authHeaderPattern.FindStringSubmatch(header)
	if m == nil {
		g.reject(w, invalidFormatMessage)
		return false
	}
	scheme, rest := m[1], m[2]
	if !strings.EqualFold(scheme, "Bearer") {
		g.reject(w, invalidFormatMessage)
		return false
	}

	token := strings.TrimSpace(rest)
	if token == "" {
		g.reject(w, invalidFormatMessage)
		return false
	}

	if _, ok := g.allowed[token]; !ok {
		g.reject(w, invalidFormatMessage)
		return false
	}
	return true
}

// Middleware wraps next with the gate's bearer enforcement.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Authorize(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) reject(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", wwwAuthenticate)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}

var errEmptyBearerTokens = &ConfigError{Message: "inbound auth type is \"bearer\" but no tokens were configured"}

// ConfigError reports a fatal inbound-auth misconfiguration (spec §6
// exit code 3).
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }
