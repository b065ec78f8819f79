package drafting

import (
	"context"
	"strings"
	"time"
)

// FallbackText は返信生成サービスが未設定の場合に返す固定メッセージ。
const FallbackText = "Thanks! I’m connected to your calendar. Ask me things like “What’s on tomorrow?”"

// FallbackDrafter は固定メッセージを1文字ずつ擬似ストリーミングする。
// カレンダーにアクセスできなかった場合（UnavailableHint）は固定メッセージの代わりにその説明を返す。
type FallbackDrafter struct {
	text  string
	delay time.Duration
}

// NewFallbackDrafter はFallbackDrafterを生成する。delayは文字ごとの待ち時間。
func NewFallbackDrafter(delay time.Duration) *FallbackDrafter {
	return &FallbackDrafter{text: FallbackText, delay: delay}
}

// Name は実装名を返す。
func (d *FallbackDrafter) Name() string { return "fallback" }

// Draft は固定メッセージを文字単位でemitする。
// ctxのキャンセル、またはemitのエラーで途中で中断する。
func (d *FallbackDrafter) Draft(ctx context.Context, req Request, emit EmitFunc) (*Draft, error) {
	text := d.text
	if h, ok := req.Hint.(UnavailableHint); ok {
		text = Confirmation(h)
	}

	var timer *time.Timer
	if d.delay > 0 {
		timer = time.NewTimer(d.delay)
		defer timer.Stop()
	}

	var b strings.Builder
	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if timer != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-timer.C:
				timer.Reset(d.delay)
			}
		}

		s := string(r)
		if err := emit(Chunk{Kind: ChunkDelta, Text: s}); err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	return &Draft{Text: b.String()}, nil
}

var _ Drafter = (*FallbackDrafter)(nil)
