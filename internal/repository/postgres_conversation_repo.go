package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/calendar-assistant/internal/model"
)

// PostgresConversationRepo はPostgreSQLを使用した会話リポジトリ。
type PostgresConversationRepo struct {
	db *sql.DB
}

// NewPostgresConversationRepo はPostgresConversationRepoを生成する。
func NewPostgresConversationRepo(db *sql.DB) *PostgresConversationRepo {
	return &PostgresConversationRepo{db: db}
}

// Create は会話を作成し、ID・作成日時をconvに書き戻す。
func (r *PostgresConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	title := conv.Title
	if title == "" {
		title = model.DefaultConversationTitle
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO conversations (user_id, title) VALUES ($1, $2) RETURNING id, title, created_at`,
		conv.UserID, title,
	).Scan(&conv.ID, &conv.Title, &conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

// FindByIDAndUserID は指定ユーザーが所有する会話を取得する。
// 存在しない、他ユーザーの会話、またはIDがUUID形式でない場合はnilを返す。
func (r *PostgresConversationRepo) FindByIDAndUserID(ctx context.Context, id, userID string) (*model.Conversation, error) {
	conv := &model.Conversation{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at FROM conversations
		 WHERE id::text = $1 AND user_id = $2`,
		id, userID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return conv, nil
}

// ListByUserID は指定ユーザーの会話を新しい順に取得する。
func (r *PostgresConversationRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at FROM conversations
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		c := &model.Conversation{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return convs, nil
}

// DeleteInactiveBefore は最終メッセージ（無い場合は作成日時）がcutoffより古い会話を削除する。
// メッセージはCASCADE削除される。
func (r *PostgresConversationRepo) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM conversations c
		 WHERE COALESCE(
		   (SELECT max(m.created_at) FROM messages m WHERE m.conversation_id = c.id),
		   c.created_at
		 ) < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive conversations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

var _ ConversationRepository = (*PostgresConversationRepo)(nil)
