package authprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/revittco/mcplexer/internal/tokenstore"
)

// OAuth2ClientCredentialsProvider implements the client-credentials grant
// (spec §4.C). A valid cached token short-circuits the network call;
// concurrent callers with no valid token collapse onto a single in-flight
// exchange via singleflight.
type OAuth2ClientCredentialsProvider struct {
	cfg   clientcredentials.Config
	store *tokenstore.Store
	sf    singleflight.Group
}

// OAuth2ClientCredentialsConfig mirrors the config fields spec §4.C names
// for this provider.
type OAuth2ClientCredentialsConfig struct {
	TokenEndpoint string
	ClientID      string
	ClientSecret  string
	Scopes        []string
	Audience      string
}

// NewOAuth2ClientCredentialsProvider creates the provider over a token
// store (in-memory or sqlite-backed); store's RefreshFunc is wired to this
// provider's own exchange so the store's proactive-refresh timer and this
// provider's on-demand refresh share one code path.
func NewOAuth2ClientCredentialsProvider(cfg OAuth2ClientCredentialsConfig, backend tokenstore.Storage) *OAuth2ClientCredentialsProvider {
	p := &OAuth2ClientCredentialsProvider{
		cfg: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenEndpoint,
			Scopes:       cfg.Scopes,
		},
	}
	if cfg.Audience != "" {
		p.cfg.EndpointParams = map[string][]string{"audience": {cfg.Audience}}
	}
	p.store = tokenstore.NewStore(backend, 5*time.Minute, p.exchange, nil)
	return p
}

func (p *OAuth2ClientCredentialsProvider) GetHeaders(ctx context.Context) (map[string]string, error) {
	tok, err := p.currentOrFetch(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": tok.TokenType + " " + tok.AccessToken}, nil
}

func (p *OAuth2ClientCredentialsProvider) IsValid(ctx context.Context) bool {
	tok, err := p.store.Load(ctx)
	if err != nil || tok == nil {
		return false
	}
	return !p.store.IsExpired(*tok, time.Now())
}

func (p *OAuth2ClientCredentialsProvider) Refresh(ctx context.Context) error {
	_, err, _ := p.sf.Do("token", func() (any, error) {
		tok, err := p.exchange(ctx)
		if err != nil {
			return nil, err
		}
		return nil, p.store.Store(ctx, tok)
	})
	return err
}

func (p *OAuth2ClientCredentialsProvider) currentOrFetch(ctx context.Context) (tokenstore.TokenData, error) {
	tok, err := p.store.Load(ctx)
	if err != nil {
		return tokenstore.TokenData{}, err
	}
	if tok != nil && !p.store.IsExpired(*tok, time.Now()) {
		return *tok, nil
	}

	v, err, _ := p.sf.Do("token", func() (any, error) {
		fresh, err := p.exchange(ctx)
		if err != nil {
			return nil, err
		}
		if err := p.store.Store(ctx, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	})
	if err != nil {
		return tokenstore.TokenData{}, err
	}
	return v.(tokenstore.TokenData), nil
}

func (p *OAuth2ClientCredentialsProvider) exchange(ctx context.Context) (tokenstore.TokenData, error) {
	tok, err := p.cfg.Token(ctx)
	if err != nil {
		return tokenstore.TokenData{}, translateExchangeError(err)
	}

	scope, _ := tok.Extra("scope").(string)
	return tokenstore.TokenData{
		AccessToken: tok.AccessToken,
		TokenType:   defaultTokenType(tok.TokenType),
		ExpiresAt:   tok.Expiry,
		Scope:       scope,
	}, nil
}

func defaultTokenType(tt string) string {
	if tt == "" {
		return "Bearer"
	}
	return tt
}

// translateExchangeError maps golang.org/x/oauth2's *oauth2.RetrieveError
// and plain network failures onto the spec §4.C/§7 taxonomy.
func translateExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if retrieveErr.ErrorCode != "" {
			return classifyErrorResponse(retrieveErr.ErrorCode, retrieveErr.ErrorDescription, status)
		}
		errCode, desc := synthesizeErrorResponse(status, http.StatusText(status))
		return classifyErrorResponse(errCode, desc, status)
	}

	if isNetworkError(err) {
		return networkError(err)
	}
	return fmt.Errorf("oauth2 client credentials exchange: %w", err)
}

func isNetworkError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "i/o timeout") ||
		errors.Is(err, context.DeadlineExceeded)
}
