// Package drafting は会話履歴と予定のヒントからアシスタントの返信を生成する。
package drafting

import (
	"context"
	"time"

	"github.com/hitoshi/calendar-assistant/internal/model"
)

// ChunkKind は逐次出力の種別。
type ChunkKind int

const (
	// ChunkDelta は返信本文の断片。
	ChunkDelta ChunkKind = iota
	// ChunkTool はモデルが関数呼び出しを返した場合の引数JSONの断片。
	ChunkTool
)

// Chunk は返信生成中に逐次出力される断片。
type Chunk struct {
	Kind ChunkKind
	Text string
}

// EmitFunc は断片を呼び出し元へ渡す。エラーを返した場合、生成は中断される。
type EmitFunc func(Chunk) error

// Request は返信生成の入力。
type Request struct {
	// History は今回のユーザー発話を含む直近の履歴（Seq昇順）。
	History []*model.Message
	// Hint はカレンダー操作の結果。nilはヒントなし。
	Hint Hint
	Now  time.Time
	// TimeZone はユーザーのタイムゾーン名。
	TimeZone string
}

// ToolCall はモデルが要求した関数呼び出し。
type ToolCall struct {
	Name      string
	Arguments string
}

// Draft は生成された返信。
type Draft struct {
	Text      string
	ToolCalls []ToolCall
}

// Drafter は返信を生成する。断片はemitで逐次渡し、完了時に全文を返す。
// 失敗した場合はmodel.ErrDraftingFailureをラップしたエラーを返す。
type Drafter interface {
	Name() string
	Draft(ctx context.Context, req Request, emit EmitFunc) (*Draft, error)
}
