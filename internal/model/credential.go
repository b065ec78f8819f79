package model

import (
	"strings"
	"time"
)

// Credential はユーザーごとのGoogle OAuth資格情報を表す。
// Connected=trueの場合、AccessTokenとExpiresAtは必ず設定されている。
type Credential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
	Connected    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ScopeString はスコープをスペース区切りで連結した文字列を返す。
func (c *Credential) ScopeString() string {
	return strings.Join(c.Scopes, " ")
}

// ExpiresWithin は指定時刻からmargin以内に有効期限が到来するかを判定する。
func (c *Credential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return !c.ExpiresAt.After(now.Add(margin))
}

// ParseScopes はスペース区切りのスコープ文字列を分割する。
func ParseScopes(s string) []string {
	return strings.Fields(s)
}
