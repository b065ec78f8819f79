// Package auth はGoogleログインとカレンダー認可、セッショントークンの発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/calendar-assistant/internal/credential"
	"github.com/hitoshi/calendar-assistant/internal/model"
	"github.com/hitoshi/calendar-assistant/internal/repository"
)

// OAuthResult は認可コード交換の結果を表す。
type OAuthResult struct {
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
	Grant          credential.Grant
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthResult, error)
}

// CredentialStore はログインで得た資格情報を保存する。
type CredentialStore interface {
	Upsert(ctx context.Context, userID string, grant credential.Grant) error
}

// TokenIssuer はセッショントークンを発行する。
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// LoginResult はログイン完了時のユーザーとセッショントークン。
type LoginResult struct {
	User  *model.User
	Token string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth  OAuthProvider
	users  repository.UserRepository
	creds  CredentialStore
	issuer TokenIssuer
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, users repository.UserRepository, creds CredentialStore, issuer TokenIssuer) *Service {
	return &Service{
		oauth:  oauth,
		users:  users,
		creds:  creds,
		issuer: issuer,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッショントークンを発行する。
// メールアドレスでユーザーを特定し、未登録なら作成する。
// 登録済みの場合はIdP側の表示名・アバターに追随する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*LoginResult, error) {
	if code == "" {
		return nil, errors.New("authorization code is required")
	}

	result, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	email := strings.ToLower(strings.TrimSpace(result.Email))

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		user = &model.User{Email: email, Name: result.Name, AvatarURL: result.AvatarURL}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		slog.Info("new user created", slog.String("user_id", user.ID))
	} else {
		if user.Name != result.Name || user.AvatarURL != result.AvatarURL {
			if err := s.users.UpdateProfile(ctx, user.ID, result.Name, result.AvatarURL); err != nil {
				return nil, fmt.Errorf("failed to update profile: %w", err)
			}
			user.Name, user.AvatarURL = result.Name, result.AvatarURL
		}
		slog.Info("existing user logged in", slog.String("user_id", user.ID))
	}

	if err := s.creds.Upsert(ctx, user.ID, result.Grant); err != nil {
		return nil, fmt.Errorf("failed to store calendar credential: %w", err)
	}

	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	return &LoginResult{User: user, Token: token}, nil
}
