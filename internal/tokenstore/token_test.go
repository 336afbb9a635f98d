package tokenstore

import (
	"testing"
	"time"
)

func TestTokenDataNormalizeTrimsAndValidates(t *testing.T) {
	tok := TokenData{AccessToken: "  abc  ", TokenType: " Bearer "}
	got, err := tok.normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.AccessToken != "abc" || got.TokenType != "Bearer" {
		t.Fatalf("normalize did not trim: %+v", got)
	}

	if _, err := (TokenData{TokenType: "Bearer"}).normalize(); err == nil {
		t.Fatal("expected error for empty accessToken")
	}
	if _, err := (TokenData{AccessToken: "abc"}).normalize(); err == nil {
		t.Fatal("expected error for empty tokenType")
	}
}

func TestTokenDataIsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		expires time.Time
		buffer  time.Duration
		want    bool
	}{
		{"zero expiry counts as expired", time.Time{}, 0, true},
		{"far future not expired", now.Add(time.Hour), 0, false},
		{"past is expired", now.Add(-time.Minute), 0, true},
		{"within buffer window is expired", now.Add(30 * time.Second), time.Minute, true},
		{"outside buffer window not expired", now.Add(2 * time.Minute), time.Minute, false},
		{"exactly at boundary is expired", now.Add(time.Minute), time.Minute, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tok := TokenData{ExpiresAt: tc.expires}
			if got := tok.isExpired(now, tc.buffer); got != tc.want {
				t.Fatalf("isExpired() = %v, want %v", got, tc.want)
			}
		})
	}
}
