package authprovider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/revittco/mcplexer/internal/tokenstore"
)

// OAuth2AuthCodeConfig mirrors the config fields spec §4.C names for the
// authorization-code (+PKCE) provider.
type OAuth2AuthCodeConfig struct {
	AuthorizeEndpoint string
	TokenEndpoint     string
	ClientID          string
	ClientSecret      string
	RedirectURI       string
	Scopes            []string
}

// pendingFlow is one in-flight authorization-code exchange, keyed by its
// single-use state token. Generalized from internal/oauth/state.go's
// StateStore, which keyed flows by a database-backed auth scope ID; here
// a flow belongs to whichever provider instance created it.
type pendingFlow struct {
	codeVerifier string
	createdAt    time.Time
	done         chan struct{}
	result       tokenstore.TokenData
	err          error
}

// OAuth2AuthCodeProvider implements the authorization-code grant with
// PKCE (spec §4.C). BeginFlow/CompleteFlow are separate calls made by the
// caller, not by GetHeaders itself — a code flow needs a human in the
// loop. The OAuth callback route in internal/oauth does not call them.
type OAuth2AuthCodeProvider struct {
	cfg         oauth2.Config
	store       *tokenstore.Store
	flowTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingFlow
}

// NewOAuth2AuthCodeProvider creates the provider over a token store.
// flowTimeout bounds how long a caller will wait in AwaitFlow before the
// pending state is discarded; the teacher's StateStore used a fixed
// 10-minute TTL, so that remains the default when flowTimeout <= 0.
func NewOAuth2AuthCodeProvider(cfg OAuth2AuthCodeConfig, backend tokenstore.Storage, flowTimeout time.Duration) *OAuth2AuthCodeProvider {
	if flowTimeout <= 0 {
		flowTimeout = 10 * time.Minute
	}
	return &OAuth2AuthCodeProvider{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizeEndpoint,
				TokenURL: cfg.TokenEndpoint,
			},
		},
		store:       tokenstore.NewStore(backend, 5*time.Minute, nil, nil),
		flowTimeout: flowTimeout,
		pending:     make(map[string]*pendingFlow),
	}
}

func (p *OAuth2AuthCodeProvider) GetHeaders(ctx context.Context) (map[string]string, error) {
	tok, err := p.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, fmt.Errorf("oauth2 authorization-code flow not yet completed")
	}
	return map[string]string{"Authorization": defaultTokenType(tok.TokenType) + " " + tok.AccessToken}, nil
}

func (p *OAuth2AuthCodeProvider) IsValid(ctx context.Context) bool {
	tok, err := p.store.Load(ctx)
	if err != nil || tok == nil {
		return false
	}
	return !p.store.IsExpired(*tok, time.Now())
}

// Refresh uses the stored refresh token, if any, to obtain a new access
// token without a fresh user interaction.
func (p *OAuth2AuthCodeProvider) Refresh(ctx context.Context) error {
	tok, err := p.store.Load(ctx)
	if err != nil {
		return err
	}
	if tok == nil || tok.RefreshToken == "" {
		return fmt.Errorf("oauth2 authorization-code flow: no refresh token available")
	}

	src := p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return translateExchangeError(err)
	}
	scope, _ := fresh.Extra("scope").(string)
	return p.store.Store(ctx, tokenstore.TokenData{
		AccessToken:  fresh.AccessToken,
		TokenType:    defaultTokenType(fresh.TokenType),
		ExpiresAt:    fresh.Expiry,
		Scope:        scope,
		RefreshToken: firstNonEmpty(fresh.RefreshToken, tok.RefreshToken),
	})
}

// BeginFlow generates a fresh state and PKCE verifier/challenge and
// returns the authorize URL the caller should present to the user along
// with the state it was keyed under.
func (p *OAuth2AuthCodeProvider) BeginFlow() (authorizeURL, state string, err error) {
	verifier, err := generateCodeVerifier()
	if err != nil {
		return "", "", fmt.Errorf("generate pkce verifier: %w", err)
	}
	state, err = generateState()
	if err != nil {
		return "", "", fmt.Errorf("generate oauth2 state: %w", err)
	}

	p.mu.Lock()
	p.cleanupLocked()
	p.pending[state] = &pendingFlow{
		codeVerifier: verifier,
		createdAt:    time.Now(),
		done:         make(chan struct{}),
	}
	p.mu.Unlock()

	authorizeURL, err = p.buildAuthorizeURL(state, verifier)
	if err != nil {
		p.mu.Lock()
		delete(p.pending, state)
		p.mu.Unlock()
		return "", "", err
	}
	return authorizeURL, state, nil
}

func (p *OAuth2AuthCodeProvider) buildAuthorizeURL(state, verifier string) (string, error) {
	u, err := url.Parse(p.cfg.Endpoint.AuthURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorize url: %w", err)
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", p.cfg.RedirectURL)
	q.Set("state", state)
	if len(p.cfg.Scopes) > 0 {
		q.Set("scope", strings.Join(p.cfg.Scopes, " "))
	}
	q.Set("code_challenge", codeChallengeS256(verifier))
	q.Set("code_challenge_method", "S256")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CompleteFlow exchanges code for a token using the PKCE verifier tied to
// state, stores the resulting token, and wakes any AwaitFlow caller. The
// state is single-use: it is removed from the pending set whether the
// exchange succeeds or fails.
func (p *OAuth2AuthCodeProvider) CompleteFlow(ctx context.Context, state, code string) error {
	p.mu.Lock()
	flow, ok := p.pending[state]
	if ok {
		delete(p.pending, state)
	}
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown or expired oauth2 state %q", state)
	}
	if time.Since(flow.createdAt) > p.flowTimeout {
		flow.err = fmt.Errorf("oauth2 state %q expired", state)
		close(flow.done)
		return flow.err
	}

	tok, err := p.cfg.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", flow.codeVerifier))
	if err != nil {
		flow.err = translateExchangeError(err)
		close(flow.done)
		return flow.err
	}

	scope, _ := tok.Extra("scope").(string)
	td := tokenstore.TokenData{
		AccessToken:  tok.AccessToken,
		TokenType:    defaultTokenType(tok.TokenType),
		ExpiresAt:    tok.Expiry,
		Scope:        scope,
		RefreshToken: tok.RefreshToken,
	}
	if err := p.store.Store(ctx, td); err != nil {
		flow.err = err
		close(flow.done)
		return err
	}

	flow.result = td
	close(flow.done)
	return nil
}

// AwaitFlow blocks until CompleteFlow is called for state, ctx is
// canceled, or the flow's timeout elapses — whichever comes first.
func (p *OAuth2AuthCodeProvider) AwaitFlow(ctx context.Context, state string) (tokenstore.TokenData, error) {
	p.mu.Lock()
	flow, ok := p.pending[state]
	p.mu.Unlock()
	if !ok {
		return tokenstore.TokenData{}, fmt.Errorf("unknown or expired oauth2 state %q", state)
	}

	timer := time.NewTimer(p.flowTimeout)
	defer timer.Stop()

	select {
	case <-flow.done:
		return flow.result, flow.err
	case <-timer.C:
		p.mu.Lock()
		delete(p.pending, state)
		p.mu.Unlock()
		return tokenstore.TokenData{}, fmt.Errorf("oauth2 state %q timed out awaiting callback", state)
	case <-ctx.Done():
		return tokenstore.TokenData{}, ctx.Err()
	}
}

// cleanupLocked removes pending flows past their TTL. Callers must hold p.mu.
func (p *OAuth2AuthCodeProvider) cleanupLocked() {
	now := time.Now()
	for state, flow := range p.pending {
		if now.Sub(flow.createdAt) > p.flowTimeout {
			delete(p.pending, state)
		}
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
