package drafting

import (
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/calendar-assistant/internal/model"
)

// Hint は返信生成に渡すカレンダー操作の結果。
// EventListHint、CreatedEventHint、UnavailableHintのいずれか。
type Hint interface {
	// Summary はモデルに渡す要約文を返す。
	Summary() string
	isHint()
}

// EventListHint は期間照会の結果。
type EventListHint struct {
	Start  time.Time
	End    time.Time
	Query  string
	Events []model.Event
}

// CreatedEventHint は作成した予定。
type CreatedEventHint struct {
	Event model.Event
}

// UnavailableHint はカレンダーにアクセスできなかったことを示す。
type UnavailableHint struct {
	// NotConnected はカレンダーが未連携であることを示す。falseの場合は一時的な失敗。
	NotConnected bool
}

func (EventListHint) isHint()    {}
func (CreatedEventHint) isHint() {}
func (UnavailableHint) isHint()  {}

// Summary は取得した予定の一覧を返す。
func (h EventListHint) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Calendar events from %s to %s", h.Start.Format(time.RFC3339), h.End.Format(time.RFC3339))
	if h.Query != "" {
		fmt.Fprintf(&b, " matching %q", h.Query)
	}
	if len(h.Events) == 0 {
		b.WriteString(": none.")
		return b.String()
	}
	b.WriteString(":")
	for _, ev := range h.Events {
		fmt.Fprintf(&b, "\n- %s (%s to %s)", ev.Title, ev.Start, ev.End)
		if ev.AllDay {
			b.WriteString(" all day")
		}
	}
	return b.String()
}

// Summary は作成した予定を返す。
func (h CreatedEventHint) Summary() string {
	return fmt.Sprintf("Created calendar event %q from %s to %s (id %s).",
		h.Event.Title, h.Event.Start, h.Event.End, h.Event.ID)
}

// Summary はアクセスできなかった理由を返す。
func (h UnavailableHint) Summary() string {
	if h.NotConnected {
		return "The user's Google Calendar is not connected. Explain that they need to sign in with Google and allow calendar access."
	}
	return "The calendar could not be reached right now. Tell the user the calendar is temporarily unavailable and to try again shortly."
}

// Confirmation はモデルが本文を返さなかった場合に保存するヒントの短い説明を返す。
func Confirmation(h Hint) string {
	switch h := h.(type) {
	case CreatedEventHint:
		return fmt.Sprintf("I've added “%s” to your calendar.", h.Event.Title)
	case EventListHint:
		switch len(h.Events) {
		case 0:
			return "You have nothing scheduled then."
		case 1:
			return fmt.Sprintf("You have 1 event: %s.", h.Events[0].Title)
		default:
			titles := make([]string, len(h.Events))
			for i, ev := range h.Events {
				titles[i] = ev.Title
			}
			return fmt.Sprintf("You have %d events: %s.", len(h.Events), strings.Join(titles, ", "))
		}
	case UnavailableHint:
		if h.NotConnected {
			return "Your Google Calendar isn't connected yet. Sign in with Google to allow calendar access."
		}
		return "I couldn't reach your calendar just now. Please try again shortly."
	default:
		return ""
	}
}
