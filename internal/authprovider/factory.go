package authprovider

import (
	"fmt"
	"time"

	"github.com/revittco/mcplexer/internal/tokenstore"
)

// Kind discriminates the AuthProviderConfig variants (spec §3).
type Kind string

const (
	KindNone         Kind = "none"
	KindBearer       Kind = "bearer"
	KindOAuth2Client Kind = "oauth2-client"
	KindOAuth2Code   Kind = "oauth2-code"
)

// Config is the resolved, secret-substituted configuration for a single
// auth provider instance. Discriminated by Kind; exactly one of the
// type-specific fields is populated.
type Config struct {
	Kind Kind

	BearerToken string

	ClientCredentials OAuth2ClientCredentialsConfig
	AuthCode          OAuth2AuthCodeConfig
}

// New constructs the Provider variant named by cfg.Kind. backend is the
// token persistence slot for the two OAuth2 variants; it is ignored for
// none/bearer.
func New(cfg Config, backend tokenstore.Storage) (Provider, error) {
	switch cfg.Kind {
	case KindNone, "":
		return NewNoneProvider(), nil
	case KindBearer:
		return NewBearerProvider(cfg.BearerToken), nil
	case KindOAuth2Client:
		if backend == nil {
			backend = tokenstore.NewMemoryStorage()
		}
		return NewOAuth2ClientCredentialsProvider(cfg.ClientCredentials, backend), nil
	case KindOAuth2Code:
		if backend == nil {
			backend = tokenstore.NewMemoryStorage()
		}
		return NewOAuth2AuthCodeProvider(cfg.AuthCode, backend, 10*time.Minute), nil
	default:
		return nil, fmt.Errorf("unknown auth provider kind %q", cfg.Kind)
	}
}
