package model

import (
	"testing"
	"time"
)

func TestCredential_ExpiresWithin(t *testing.T) {
	now := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	margin := 60 * time.Second

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"十分先", now.Add(10 * time.Minute), false},
		{"猶予ちょうど", now.Add(margin), true},
		{"猶予内", now.Add(30 * time.Second), true},
		{"期限切れ", now.Add(-time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Credential{ExpiresAt: tt.expiresAt}
			if got := c.ExpiresWithin(now, margin); got != tt.want {
				t.Errorf("ExpiresWithin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseScopes_RoundTripsScopeString(t *testing.T) {
	scopes := ParseScopes("openid  https://www.googleapis.com/auth/calendar.events\n")
	if len(scopes) != 2 {
		t.Fatalf("ParseScopes = %v, want 2 scopes", scopes)
	}
	c := &Credential{Scopes: scopes}
	if c.ScopeString() != "openid https://www.googleapis.com/auth/calendar.events" {
		t.Errorf("ScopeString = %q", c.ScopeString())
	}
	if len(ParseScopes("")) != 0 {
		t.Error("empty string should yield no scopes")
	}
}
