// Package session はセッショントークンの発行と検証を提供する。
//
// トークン形式は閉じた集合で、ClaimsScheme（HS256署名のJWT）を新規発行の既定とし、
// TimestampScheme（署名付きタイムスタンプ形式）は既存Cookieの互換用に検証のみ行う。
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/calendar-assistant/internal/model"
)

// Scheme はトークン形式の1つを表す。
// Verifyは秘密鍵・トークン・現在時刻のみに依存する純粋関数であること。
type Scheme interface {
	// Name はスキーム名を返す。
	Name() string
	// Issue はユーザーIDに対するトークンを発行する。
	Issue(userID string, now time.Time) (string, error)
	// Verify はトークンを検証し、発行対象のユーザーIDを返す。
	Verify(token string, now time.Time) (string, error)
}

// スキーム名
const (
	SchemeClaims    = "jwt"
	SchemeTimestamp = "timestamp"
)

var (
	errMalformed    = errors.New("malformed token")
	errBadSignature = errors.New("signature mismatch")
	errExpired      = errors.New("token expired")
	errEmptyUserID  = errors.New("empty user id")
	errEmptySecret  = errors.New("secret must not be empty")
)

// unauthenticated は検証失敗をErrUnauthenticatedでラップする。
func unauthenticated(scheme string, err error) error {
	return fmt.Errorf("%s session: %w: %w", scheme, model.ErrUnauthenticated, err)
}

// looksLikeJWT はJWTのcompact形式（ヘッダがbase64urlの"{"で始まる3セグメント）かを判定する。
func looksLikeJWT(token string) bool {
	return strings.HasPrefix(token, "eyJ") && strings.Count(token, ".") == 2
}
