// Package intent は発話からカレンダー操作の意図を抽出する。
package intent

import "time"

// Kind は抽出結果の種別。
type Kind int

const (
	// KindNone はカレンダー操作の意図が無いことを示す。正常系の結果でありエラーではない。
	KindNone Kind = iota
	// KindTimeWindow は期間の予定照会。
	KindTimeWindow
	// KindNewEvent は予定の新規作成。
	KindNewEvent
)

func (k Kind) String() string {
	switch k {
	case KindTimeWindow:
		return "time_window"
	case KindNewEvent:
		return "new_event"
	default:
		return "none"
	}
}

// TimeWindow は照会する期間 [Start, End)。
type TimeWindow struct {
	Start time.Time
	End   time.Time
	// Query は "meeting with <name>" 形式の発話から得た検索語。空の場合は絞り込まない。
	Query string
}

// NewEvent は作成する予定の下書き。
type NewEvent struct {
	Title    string
	Start    time.Time
	End      time.Time
	TimeZone string
}

// Result は抽出結果。Kindに応じてWindowまたはEventのどちらか一方のみが設定される。
type Result struct {
	Kind   Kind
	Window *TimeWindow
	Event  *NewEvent
}

// None は意図なしの結果を返す。
func None() Result { return Result{Kind: KindNone} }

func windowResult(start, end time.Time, query string) Result {
	return Result{Kind: KindTimeWindow, Window: &TimeWindow{Start: start, End: end, Query: query}}
}

func eventResult(ev *NewEvent) Result {
	return Result{Kind: KindNewEvent, Event: ev}
}

// NeedsCalendar はカレンダーへのアクセスが必要な結果かを返す。
func (r Result) NeedsCalendar() bool {
	return r.Kind != KindNone
}
