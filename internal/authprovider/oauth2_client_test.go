package authprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/revittco/mcplexer/internal/tokenstore"
)

func TestOAuth2ClientCredentialsHappyPath(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Fatalf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("client_id") != "X" {
			t.Fatalf("client_id = %q", r.PostForm.Get("client_id"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "T",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	p := NewOAuth2ClientCredentialsProvider(OAuth2ClientCredentialsConfig{
		TokenEndpoint: srv.URL,
		ClientID:      "X",
		ClientSecret:  "Y",
		Scopes:        []string{"read", "write"},
	}, tokenstore.NewMemoryStorage())

	ctx := context.Background()
	headers, err := p.GetHeaders(ctx)
	if err != nil {
		t.Fatalf("GetHeaders: %v", err)
	}
	if headers["Authorization"] != "Bearer T" {
		t.Fatalf("Authorization = %q", headers["Authorization"])
	}

	// Second call within validity window must not hit the token endpoint again.
	if _, err := p.GetHeaders(ctx); err != nil {
		t.Fatalf("second GetHeaders: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("token endpoint hit %d times, want 1", got)
	}
}

func TestOAuth2ClientCredentialsConcurrentCoalesce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "T",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	p := NewOAuth2ClientCredentialsProvider(OAuth2ClientCredentialsConfig{
		TokenEndpoint: srv.URL,
		ClientID:      "X",
		ClientSecret:  "Y",
	}, tokenstore.NewMemoryStorage())

	ctx := context.Background()
	const n = 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := p.GetHeaders(ctx)
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("GetHeaders: %v", err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("token endpoint hit %d times, want 1", got)
	}
}

func TestOAuth2ClientCredentialsErrorTaxonomy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_client",
			"error_description": "unknown client",
		})
	}))
	defer srv.Close()

	p := NewOAuth2ClientCredentialsProvider(OAuth2ClientCredentialsConfig{
		TokenEndpoint: srv.URL,
		ClientID:      "bad",
		ClientSecret:  "bad",
	}, tokenstore.NewMemoryStorage())

	_, err := p.GetHeaders(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	oerr, ok := err.(*OAuth2Error)
	if !ok {
		t.Fatalf("expected *OAuth2Error, got %T: %v", err, err)
	}
	if oerr.Code != ErrInvalidClient {
		t.Fatalf("Code = %v, want invalid_client", oerr.Code)
	}
}
