package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

type fakeStore struct {
	client  Client
	codes   map[string]AuthorizationCode
	revoked map[string]bool
	secret  string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		client:  Client{ClientID: "abc", ClientSecret: "shh", RedirectURI: "https://host/cb"},
		codes:   map[string]AuthorizationCode{"code1": {Code: "code1", ClientID: "abc", RedirectURI: "https://host/cb", Scope: "read"}},
		revoked: map[string]bool{},
		secret:  "rotated-secret",
	}
}

func (s *fakeStore) GetClient(_ context.Context, clientID string) (Client, bool, error) {
	if clientID != s.client.ClientID {
		return Client{}, false, nil
	}
	return s.client, true, nil
}

func (s *fakeStore) PutAuthorizationCode(_ context.Context, code AuthorizationCode) error {
	s.codes[code.Code] = code
	return nil
}

func (s *fakeStore) ConsumeAuthorizationCode(_ context.Context, code string) (AuthorizationCode, bool, error) {
	ac, ok := s.codes[code]
	delete(s.codes, code)
	return ac, ok, nil
}

func (s *fakeStore) PutConsent(_ context.Context, _ Consent) error { return nil }

func (s *fakeStore) RevokeConsent(_ context.Context, clientID, subject string) error {
	s.revoked[clientID+":"+subject] = true
	return nil
}

func (s *fakeStore) RotateClientSecret(_ context.Context, _ string) (string, error) {
	return s.secret, nil
}

func TestAuthorizeRejectsUnsupportedResponseType(t *testing.T) {
	srv := NewServer(newFakeStore())
	r := httptest.NewRequest(http.MethodGet, "/api/oauth/authorize?response_type=token&client_id=abc&redirect_uri=https://host/cb", nil)
	w := httptest.NewRecorder()
	srv.Authorize(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAuthorizeMissingClientID(t *testing.T) {
	srv := NewServer(newFakeStore())
	r := httptest.NewRequest(http.MethodGet, "/api/oauth/authorize?response_type=code&redirect_uri=https://host/cb", nil)
	w := httptest.NewRecorder()
	srv.Authorize(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAuthorizeNoStoreConfiguredReports501(t *testing.T) {
	srv := NewServer(nil)
	r := httptest.NewRequest(http.MethodGet, "/api/oauth/authorize?response_type=code&client_id=abc&redirect_uri=https://host/cb", nil)
	w := httptest.NewRecorder()
	srv.Authorize(w, r)
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", w.Code)
	}
}

func TestAuthorizeValidRequestRedirectsToConsent(t *testing.T) {
	srv := NewServer(newFakeStore())
	r := httptest.NewRequest(http.MethodGet, "/api/oauth/authorize?response_type=code&client_id=abc&redirect_uri=https://host/cb", nil)
	w := httptest.NewRecorder()
	srv.Authorize(w, r)
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
}

func TestTokenRejectsUnsupportedGrantType(t *testing.T) {
	srv := NewServer(newFakeStore())
	form := url.Values{"grant_type": {"client_credentials"}}
	r := httptest.NewRequest(http.MethodPost, "/api/oauth/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.Token(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestTokenAuthorizationCodeHappyPath(t *testing.T) {
	srv := NewServer(newFakeStore())
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {"code1"},
		"client_id":    {"abc"},
		"redirect_uri": {"https://host/cb"},
	}
	r := httptest.NewRequest(http.MethodPost, "/api/oauth/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.Token(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var resp tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.AccessToken == "" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestTokenRejectsMismatchedRedirectURI(t *testing.T) {
	srv := NewServer(newFakeStore())
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {"code1"},
		"client_id":    {"abc"},
		"redirect_uri": {"https://other/cb"},
	}
	r := httptest.NewRequest(http.MethodPost, "/api/oauth/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.Token(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestConsentRevokeRequiresFields(t *testing.T) {
	srv := NewServer(newFakeStore())
	r := httptest.NewRequest(http.MethodPost, "/api/oauth/consent/revoke", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.ConsentRevoke(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestConsentRevokeHappyPath(t *testing.T) {
	store := newFakeStore()
	srv := NewServer(store)
	r := httptest.NewRequest(http.MethodPost, "/api/oauth/consent/revoke", strings.NewReader(`{"clientId":"abc","subject":"user1"}`))
	w := httptest.NewRecorder()
	srv.ConsentRevoke(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if !store.revoked["abc:user1"] {
		t.Fatal("expected consent revoked in store")
	}
}

func TestRotateClientSecretRequiresPathValue(t *testing.T) {
	srv := NewServer(newFakeStore())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/oauth/client/{clientId}/rotate-secret", srv.RotateClientSecret)

	r := httptest.NewRequest(http.MethodPost, "/api/oauth/client/abc/rotate-secret", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var resp rotateSecretResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ClientSecret != "rotated-secret" {
		t.Fatalf("ClientSecret = %q", resp.ClientSecret)
	}
}

func TestCallbackRejectsMissingCodeOrState(t *testing.T) {
	srv := NewServer(newFakeStore())
	r := httptest.NewRequest(http.MethodGet, "/api/oauth/callback?code=abc", nil)
	w := httptest.NewRecorder()
	srv.Callback(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCallbackPropagatesUpstreamError(t *testing.T) {
	srv := NewServer(newFakeStore())
	r := httptest.NewRequest(http.MethodGet, "/api/oauth/callback?error=access_denied&error_description=nope", nil)
	w := httptest.NewRecorder()
	srv.Callback(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCallbackHappyPath(t *testing.T) {
	srv := NewServer(newFakeStore())
	r := httptest.NewRequest(http.MethodGet, "/api/oauth/callback?code=abc&state=xyz", nil)
	w := httptest.NewRecorder()
	srv.Callback(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
