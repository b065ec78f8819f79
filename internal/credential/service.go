// Package credential はユーザーごとのGoogle OAuth資格情報の保存と自動リフレッシュを提供する。
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/calendar-assistant/internal/model"
	"github.com/hitoshi/calendar-assistant/internal/repository"
)

// SafetyMargin は有効期限の手前でリフレッシュを行う猶予。
const SafetyMargin = 60 * time.Second

// リフレッシュ結果のラベル
const (
	RefreshOK       = "ok"
	RefreshRejected = "rejected"
	RefreshFailed   = "failed"
)

// Grant は認可コード交換で得たトークン一式を表す。
type Grant struct {
	AccessToken string
	// RefreshToken は再同意時に省略されることがある。空の場合は既存値を保持する。
	RefreshToken string
	// ExpiresIn はプロバイダが返したアクセストークンの残り有効期間。
	ExpiresIn time.Duration
	Scopes    []string
}

// RefreshObserver はリフレッシュ結果を記録する。nil可。
type RefreshObserver interface {
	ObserveCredentialRefresh(result string)
}

// Service は資格情報のライフサイクルを管理する。
// 資格情報の読み書きはこのサービスのみが行う。
type Service struct {
	repo      repository.CredentialRepository
	refresher Refresher
	observer  RefreshObserver
	now       func() time.Time
}

// NewService はServiceを生成する。observerはnil可。
func NewService(repo repository.CredentialRepository, refresher Refresher, observer RefreshObserver) *Service {
	return &Service{
		repo:      repo,
		refresher: refresher,
		observer:  observer,
		now:       time.Now,
	}
}

// SetClock はテスト用に現在時刻の取得関数を差し替える。
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Upsert は認可結果を保存する。
// 有効期限は書き込み時点の絶対時刻としてExpiresInから計算する。
func (s *Service) Upsert(ctx context.Context, userID string, grant Grant) error {
	if grant.AccessToken == "" {
		return errors.New("credential: access token is required")
	}

	cred := &model.Credential{
		UserID:       userID,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    s.now().Add(grant.ExpiresIn),
		Scopes:       grant.Scopes,
		Connected:    true,
	}
	if err := s.repo.Upsert(ctx, cred); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	slog.Info("calendar credential saved",
		slog.String("user_id", userID),
		slog.Bool("has_refresh_token", grant.RefreshToken != ""),
	)
	return nil
}

// GetValid は使用可能な資格情報を返す。
// 有効期限がSafetyMargin以内の場合は同期的にリフレッシュしてから返す。
//
// 返すエラー:
//   - ErrNotConnected: 資格情報が無い、または切断済み
//   - ErrReauthRequired: リフレッシュトークンが無い、またはプロバイダに拒否された（行は切断済みになる）
//   - ErrCalendarUnavailable: トークンエンドポイントとの通信失敗
func (s *Service) GetValid(ctx context.Context, userID string) (*model.Credential, error) {
	cred, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if cred == nil || !cred.Connected {
		return nil, model.ErrNotConnected
	}

	now := s.now()
	if !cred.ExpiresWithin(now, SafetyMargin) {
		return cred, nil
	}

	if cred.RefreshToken == "" {
		return nil, s.disconnect(ctx, userID, "no refresh token")
	}

	res, err := s.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshRejected) {
			s.observe(RefreshRejected)
			return nil, s.disconnect(ctx, userID, err.Error())
		}
		s.observe(RefreshFailed)
		slog.Warn("credential refresh failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: token refresh: %w", model.ErrCalendarUnavailable, err)
	}

	if err := s.repo.UpdateTokens(ctx, userID, res.AccessToken, res.RefreshToken, res.ExpiresAt); err != nil {
		s.observe(RefreshFailed)
		return nil, fmt.Errorf("failed to save refreshed credential: %w", err)
	}
	s.observe(RefreshOK)

	cred.AccessToken = res.AccessToken
	if res.RefreshToken != "" {
		cred.RefreshToken = res.RefreshToken
	}
	cred.ExpiresAt = res.ExpiresAt

	if cred.ExpiresWithin(now, SafetyMargin) {
		return nil, fmt.Errorf("%w: refreshed token expires at %s", model.ErrCalendarUnavailable, res.ExpiresAt.Format(time.RFC3339))
	}

	slog.Info("credential refreshed",
		slog.String("user_id", userID),
		slog.Time("expires_at", res.ExpiresAt),
	)
	return cred, nil
}

// Disconnect はユーザーのカレンダー連携を解除する。
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.repo.MarkDisconnected(ctx, userID); err != nil {
		return fmt.Errorf("failed to disconnect calendar: %w", err)
	}
	slog.Info("calendar disconnected", slog.String("user_id", userID))
	return nil
}

// disconnect は行を切断済みにし、ErrReauthRequiredを返す。
func (s *Service) disconnect(ctx context.Context, userID, reason string) error {
	slog.Warn("credential requires re-authorization",
		slog.String("user_id", userID),
		slog.String("reason", reason),
	)
	if err := s.repo.MarkDisconnected(ctx, userID); err != nil {
		return fmt.Errorf("%w: failed to mark disconnected: %w", model.ErrReauthRequired, err)
	}
	return model.ErrReauthRequired
}

func (s *Service) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveCredentialRefresh(result)
	}
}
