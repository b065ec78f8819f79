package model

import "time"

// Role はメッセージの発話者を表す。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DefaultConversationTitle は会話IDなしでメッセージが送られた際に作成する会話のタイトル。
const DefaultConversationTitle = "Calendar Chat"

// Conversation はユーザーの会話を表す。
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
}

// Message は会話内の1発話を表す。書き込み後は不変。
// 並び順はSeq（単調増加）のみで決まる。
type Message struct {
	ID             string
	ConversationID string
	Seq            int64
	Role           Role
	Content        string
	CreatedAt      time.Time
}
