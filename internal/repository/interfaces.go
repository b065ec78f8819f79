// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/calendar-assistant/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。IDが空の場合はDB側で採番し、userに書き戻す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile は表示名とアバターURLを更新する。
	UpdateProfile(ctx context.Context, id, name, avatarURL string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するcredentials、conversations、messagesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// CredentialRepository はカレンダー資格情報の永続化インターフェース。
// ユーザーごとに高々1行。
type CredentialRepository interface {
	// FindByUserID は指定ユーザーの資格情報を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Credential, error)

	// Upsert は資格情報を単一文で作成または更新する。
	// RefreshTokenが空の場合は既存のリフレッシュトークンを保持する。
	Upsert(ctx context.Context, cred *model.Credential) error

	// UpdateTokens はリフレッシュ結果を書き込む。
	// refreshTokenが空の場合は既存のリフレッシュトークンを保持する。
	UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error

	// MarkDisconnected は資格情報を切断済みにする。
	MarkDisconnected(ctx context.Context, userID string) error
}

// ConversationRepository は会話の永続化インターフェース。
type ConversationRepository interface {
	// Create は会話を作成し、ID・作成日時をconvに書き戻す。
	Create(ctx context.Context, conv *model.Conversation) error

	// FindByIDAndUserID は指定ユーザーが所有する会話を取得する。
	// 存在しない、または他ユーザーの会話の場合はnilを返す。
	FindByIDAndUserID(ctx context.Context, id, userID string) (*model.Conversation, error)

	// ListByUserID は指定ユーザーの会話を新しい順に取得する。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Conversation, error)

	// DeleteInactiveBefore は最終メッセージがcutoffより古い会話を削除し、削除件数を返す。
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MessageRepository はメッセージの永続化インターフェース。
// メッセージは追記のみで、更新・個別削除は行わない。
type MessageRepository interface {
	// Append はメッセージを追記し、ID・Seq・作成日時をmsgに書き戻す。
	Append(ctx context.Context, msg *model.Message) error

	// ListRecent は会話の直近limit件をSeq昇順で返す。
	ListRecent(ctx context.Context, conversationID string, limit int) ([]*model.Message, error)

	// ListByConversationID は会話の全メッセージをSeq昇順で返す。
	ListByConversationID(ctx context.Context, conversationID string) ([]*model.Message, error)
}

// TokenCodec はトークンの保存時暗号化を行う。
// nilの場合は平文で保存する。
type TokenCodec interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
}
