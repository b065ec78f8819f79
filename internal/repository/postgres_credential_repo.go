package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/calendar-assistant/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用した資格情報リポジトリ。
// codecが設定されている場合、トークンは暗号化して保存する。
type PostgresCredentialRepo struct {
	db    *sql.DB
	codec TokenCodec
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。codecはnil可。
func NewPostgresCredentialRepo(db *sql.DB, codec TokenCodec) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db, codec: codec}
}

func (r *PostgresCredentialRepo) seal(s string) (string, error) {
	if r.codec == nil || s == "" {
		return s, nil
	}
	return r.codec.Seal(s)
}

func (r *PostgresCredentialRepo) open(s string) (string, error) {
	if r.codec == nil || s == "" {
		return s, nil
	}
	return r.codec.Open(s)
}

// FindByUserID は指定ユーザーの資格情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByUserID(ctx context.Context, userID string) (*model.Credential, error) {
	cred := &model.Credential{}
	var scopes string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, access_token, refresh_token, expires_at, scopes, connected, created_at, updated_at
		 FROM credentials WHERE user_id = $1`,
		userID,
	).Scan(&cred.UserID, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt,
		&scopes, &cred.Connected, &cred.CreatedAt, &cred.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}

	if cred.AccessToken, err = r.open(cred.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if cred.RefreshToken, err = r.open(cred.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	cred.Scopes = model.ParseScopes(scopes)

	return cred, nil
}

// Upsert は資格情報を単一のINSERT ... ON CONFLICT文で作成または更新する。
// RefreshTokenが空の場合は既存のリフレッシュトークンを保持し、connectedはtrueに戻す。
func (r *PostgresCredentialRepo) Upsert(ctx context.Context, cred *model.Credential) error {
	access, err := r.seal(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := r.seal(cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, access_token, refresh_token, expires_at, scopes, connected)
		 VALUES ($1, $2, $3, $4, $5, true)
		 ON CONFLICT (user_id) DO UPDATE SET
		   access_token  = EXCLUDED.access_token,
		   refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), credentials.refresh_token),
		   expires_at    = EXCLUDED.expires_at,
		   scopes        = CASE WHEN EXCLUDED.scopes = '' THEN credentials.scopes ELSE EXCLUDED.scopes END,
		   connected     = true,
		   updated_at    = now()`,
		cred.UserID, access, refresh, cred.ExpiresAt.UTC(), strings.Join(cred.Scopes, " "),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

// UpdateTokens はリフレッシュ結果を書き込む。
func (r *PostgresCredentialRepo) UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	access, err := r.seal(accessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := r.seal(refreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE credentials SET
		   access_token  = $2,
		   refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
		   expires_at    = $4,
		   updated_at    = now()
		 WHERE user_id = $1`,
		userID, access, refresh, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update credential tokens: %w", err)
	}
	return nil
}

// MarkDisconnected は資格情報を切断済みにする。行が無い場合は何もしない。
func (r *PostgresCredentialRepo) MarkDisconnected(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET connected = false, updated_at = now() WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark credential disconnected: %w", err)
	}
	return nil
}

var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
