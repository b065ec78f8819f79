package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/calendar-assistant/internal/model"
)

// UserFinder はユーザーIDからユーザーを解決する。見つからない場合はnilを返す。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Options はVerifierの設定を表す。
type Options struct {
	Secret string
	// MaxAge はトークンの最大有効期間。ClaimsSchemeのexpとTimestampSchemeの最大経過時間に使う。
	MaxAge time.Duration
	// IssueScheme は新規発行に使うスキーム名（SchemeClaims または SchemeTimestamp）。
	IssueScheme string
}

// Verifier は閉じたスキーム集合の上で動作するセッション検証器。
type Verifier struct {
	claims    *ClaimsScheme
	timestamp *TimestampScheme
	issuer    Scheme
	users     UserFinder
	now       func() time.Time
}

// NewVerifier はVerifierを生成する。
func NewVerifier(opts Options, users UserFinder) (*Verifier, error) {
	claims, err := NewClaimsScheme(opts.Secret, opts.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	timestamp, err := NewTimestampScheme(opts.Secret, opts.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	v := &Verifier{
		claims:    claims,
		timestamp: timestamp,
		users:     users,
		now:       time.Now,
	}
	switch opts.IssueScheme {
	case "", SchemeClaims:
		v.issuer = claims
	case SchemeTimestamp:
		v.issuer = timestamp
	default:
		return nil, fmt.Errorf("session: unknown scheme %q", opts.IssueScheme)
	}
	return v, nil
}

// SetClock はテスト用に現在時刻の取得関数を差し替える。
func (v *Verifier) SetClock(now func() time.Time) {
	v.now = now
}

// Issue は発行スキームでユーザーIDのトークンを発行する。
func (v *Verifier) Issue(userID string) (string, error) {
	return v.issuer.Issue(userID, v.now())
}

// schemeFor はトークンの形からスキームを選択する。
func (v *Verifier) schemeFor(token string) Scheme {
	if looksLikeJWT(token) {
		return v.claims
	}
	return v.timestamp
}

// VerifyToken はトークンの署名と期限のみを検証し、ユーザーIDを返す。
func (v *Verifier) VerifyToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("session: %w: missing token", model.ErrUnauthenticated)
	}
	scheme := v.schemeFor(token)
	userID, err := scheme.Verify(token, v.now())
	if err != nil {
		return "", err
	}
	if _, err := uuid.Parse(userID); err != nil {
		return "", unauthenticated(scheme.Name(), errMalformed)
	}
	return userID, nil
}

// Verify はトークンを検証し、所有ユーザーを返す。
// トークンが不正・期限切れ、またはユーザーが既に存在しない場合はErrUnauthenticatedを返す。
func (v *Verifier) Verify(ctx context.Context, token string) (*model.User, error) {
	userID, err := v.VerifyToken(token)
	if err != nil {
		return nil, err
	}

	user, err := v.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("session: resolve user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("session: %w: %w", model.ErrUnauthenticated, errors.New("user no longer exists"))
	}
	return user, nil
}
