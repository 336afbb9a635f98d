// Package authprovider implements the four outbound credential strategies
// (none, bearer, OAuth2 client-credentials, OAuth2 authorization-code) used
// when dialing an upstream MCP server (spec §2/§4.C).
package authprovider

import "context"

// Provider produces the headers an upstream connection needs to
// authenticate, and knows how to refresh its own credentials.
type Provider interface {
	// GetHeaders returns the headers to attach to an outbound request or
	// connection handshake. It must not mutate any shared state beyond
	// what Refresh already guards.
	GetHeaders(ctx context.Context) (map[string]string, error)

	// IsValid reports whether the provider currently holds usable
	// credentials without attempting any network call.
	IsValid(ctx context.Context) bool

	// Refresh forces acquisition of new credentials, bypassing any
	// cached validity check.
	Refresh(ctx context.Context) error
}
