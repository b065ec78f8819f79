package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/calendar-assistant/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
// 並び順はBIGSERIALのseq列で決まり、同一時刻の書き込みでも順序が確定する。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Append はメッセージを追記し、ID・Seq・作成日時をmsgに書き戻す。
func (r *PostgresMessageRepo) Append(ctx context.Context, msg *model.Message) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, role, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, seq, created_at`,
		msg.ConversationID, string(msg.Role), msg.Content,
	).Scan(&msg.ID, &msg.Seq, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListRecent は会話の直近limit件をSeq昇順で返す。
func (r *PostgresMessageRepo) ListRecent(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, seq, role, content, created_at FROM (
		   SELECT id, conversation_id, seq, role, content, created_at
		   FROM messages
		   WHERE conversation_id = $1
		   ORDER BY seq DESC
		   LIMIT $2
		 ) recent
		 ORDER BY seq ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	return scanMessages(rows)
}

// ListByConversationID は会話の全メッセージをSeq昇順で返す。
func (r *PostgresMessageRepo) ListByConversationID(ctx context.Context, conversationID string) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, seq, role, content, created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*model.Message, error) {
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		m := &model.Message{}
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = model.Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return msgs, nil
}

var _ MessageRepository = (*PostgresMessageRepo)(nil)
