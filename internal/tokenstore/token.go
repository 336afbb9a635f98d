// Package tokenstore holds the single current OAuth/bearer token for an
// auth provider, answers expiry questions, and schedules proactive
// refresh (spec §3 TokenData, §4.B Token Store).
package tokenstore

import (
	"fmt"
	"strings"
	"time"
)

// TokenData is the persisted shape of a single access token.
type TokenData struct {
	AccessToken  string
	TokenType    string
	ExpiresAt    time.Time
	Scope        string
	RefreshToken string
}

// normalize trims whitespace and validates the required fields, per
// spec §4.B "store(tok)... validates non-empty accessToken and
// tokenType; trims whitespace."
func (t TokenData) normalize() (TokenData, error) {
	t.AccessToken = strings.TrimSpace(t.AccessToken)
	t.TokenType = strings.TrimSpace(t.TokenType)
	t.Scope = strings.TrimSpace(t.Scope)
	t.RefreshToken = strings.TrimSpace(t.RefreshToken)

	if t.AccessToken == "" {
		return t, fmt.Errorf("token store: accessToken must not be empty")
	}
	if t.TokenType == "" {
		return t, fmt.Errorf("token store: tokenType must not be empty")
	}
	return t, nil
}

// isExpired reports whether the token is expired given a buffer window
// and reference time, per spec §4.B/§8: expired if expiresAt is zero
// (unparseable/never set) or now+buffer >= expiresAt.
func (t TokenData) isExpired(now time.Time, buffer time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return true
	}
	return !now.Add(buffer).Before(t.ExpiresAt)
}
