// Package oauth implements the proxy's own authorization-server surface
// (spec §6: "authorization-server surface, specified only by route
// signature"). Each handler validates request shape — required
// parameters present, response_type/grant_type recognized — and defers
// the actual grant/consent/client bookkeeping to a Store the host
// application supplies; this package declares that interface but carries
// no storage logic of its own, since the spec deliberately leaves it
// unspecified beyond the six routes.
package oauth

import (
	"context"
	"encoding/json"
	"net/http"
)

// Client is an OAuth client registration as the authorization-server
// surface sees it, named to match the oauth2-code auth-provider config
// fields (spec §3: clientId, redirectUri).
type Client struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// AuthorizationCode is an issued authorization code pending exchange.
type AuthorizationCode struct {
	Code        string
	ClientID    string
	RedirectURI string
	Scope       string
	Subject     string
}

// Consent records a resource owner's decision to grant a client a scope.
type Consent struct {
	ClientID string
	Subject  string
	Scope    string
	Granted  bool
}

// Store persists the authorization-server's grants, codes, and consent
// decisions. The proxy ships no implementation; a deployment that wants
// to act as its own authorization server supplies one.
type Store interface {
	GetClient(ctx context.Context, clientID string) (Client, bool, error)
	PutAuthorizationCode(ctx context.Context, code AuthorizationCode) error
	ConsumeAuthorizationCode(ctx context.Context, code string) (AuthorizationCode, bool, error)
	PutConsent(ctx context.Context, consent Consent) error
	RevokeConsent(ctx context.Context, clientID, subject string) error
	RotateClientSecret(ctx context.Context, clientID string) (newSecret string, err error)
}

// Server serves the six routes spec §6 names. A nil Store is valid: every
// handler still validates request shape, then reports 501 rather than
// panicking, so the routes can be mounted even when no authorization-
// server deployment backs them.
type Server struct {
	store Store
}

// NewServer constructs a Server. store may be nil.
func NewServer(store Store) *Server {
	return &Server{store: store}
}

type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(oauthError{Error: code, ErrorDescription: description})
}

func (s *Server) notConfigured(w http.ResponseWriter) bool {
	if s.store != nil {
		return false
	}
	writeOAuthError(w, http.StatusNotImplemented, "server_error", "no authorization-server store configured")
	return true
}

// Authorize handles GET /api/oauth/authorize. It validates the RFC 6749
// authorization-request shape (response_type=code, client_id,
// redirect_uri). With a store wired, it then checks that the client
// exists and its redirect_uri matches, and redirects to the consent UI;
// it does not issue a code itself.
func (s *Server) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("response_type") != "code" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_response_type", "only response_type=code is supported")
		return
	}
	if q.Get("client_id") == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "client_id is required")
		return
	}
	if q.Get("redirect_uri") == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is required")
		return
	}
	if s.notConfigured(w) {
		return
	}

	ctx := r.Context()
	client, ok, err := s.store.GetClient(ctx, q.Get("client_id"))
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if !ok || client.RedirectURI != q.Get("redirect_uri") {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown client or redirect_uri mismatch")
		return
	}
	http.Redirect(w, r, "/api/oauth/consent-ui?client_id="+q.Get("client_id"), http.StatusFound)
}

// tokenRequest is the POST /api/oauth/token body; Token accepts only
// grant_type=authorization_code.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	CodeVerifier string `json:"code_verifier"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// Token handles POST /api/oauth/token. It accepts
// application/x-www-form-urlencoded bodies (spec §6), the RFC 6749 shape
// for authorization_code grants including PKCE's code_verifier.
func (s *Server) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}
	req := tokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		ClientID:     r.PostForm.Get("client_id"),
		ClientSecret: r.PostForm.Get("client_secret"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
	}

	if req.GrantType != "authorization_code" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "only authorization_code is supported")
		return
	}
	if req.Code == "" || req.ClientID == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code and client_id are required")
		return
	}
	if s.notConfigured(w) {
		return
	}

	ctx := r.Context()
	ac, ok, err := s.store.ConsumeAuthorizationCode(ctx, req.Code)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if !ok || ac.ClientID != req.ClientID || ac.RedirectURI != req.RedirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown or mismatched authorization code")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{
		AccessToken: ac.Code,
		TokenType:   "Bearer",
		ExpiresIn:   3600,
		Scope:       ac.Scope,
	})
}

type consentRequest struct {
	ClientID string `json:"clientId"`
	Subject  string `json:"subject"`
	Scope    string `json:"scope"`
	Granted  bool   `json:"granted"`
}

// Consent handles POST /api/oauth/consent: the resource owner's decision
// to grant or deny a client's requested scope.
func (s *Server) Consent(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.ClientID == "" || req.Subject == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "clientId and subject are required")
		return
	}
	if s.notConfigured(w) {
		return
	}
	if err := s.store.PutConsent(r.Context(), Consent{
		ClientID: req.ClientID, Subject: req.Subject, Scope: req.Scope, Granted: req.Granted,
	}); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type revokeRequest struct {
	ClientID string `json:"clientId"`
	Subject  string `json:"subject"`
}

// ConsentRevoke handles POST /api/oauth/consent/revoke.
func (s *Server) ConsentRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.ClientID == "" || req.Subject == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "clientId and subject are required")
		return
	}
	if s.notConfigured(w) {
		return
	}
	if err := s.store.RevokeConsent(r.Context(), req.ClientID, req.Subject); err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rotateSecretResponse struct {
	ClientSecret string `json:"clientSecret"`
}

// RotateClientSecret handles POST /api/oauth/client/:clientId/rotate-secret.
func (s *Server) RotateClientSecret(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")
	if clientID == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "clientId path segment is required")
		return
	}
	if s.notConfigured(w) {
		return
	}
	secret, err := s.store.RotateClientSecret(r.Context(), clientID)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rotateSecretResponse{ClientSecret: secret})
}

// Callback handles GET /api/oauth/callback: the redirect target this
// server itself would use as an oauth2-code client against an upstream's
// own authorization server (spec §4.C). Request-shape only: state and
// code must both be present.
func (s *Server) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("error") != "" {
		writeOAuthError(w, http.StatusBadRequest, q.Get("error"), q.Get("error_description"))
		return
	}
	if q.Get("code") == "" || q.Get("state") == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code and state are required")
		return
	}
	w.WriteHeader(http.StatusOK)
}
