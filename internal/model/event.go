package model

import "time"

// Event はカレンダーイベントを表す。
// Start/EndはRFC3339。終日イベントの場合は日付（YYYY-MM-DD）でAllDay=true。
type Event struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Link   string `json:"link,omitempty"`
	Start  string `json:"start"`
	End    string `json:"end"`
	AllDay bool   `json:"all_day,omitempty"`
}

// EventInput はイベント作成の入力を表す。
type EventInput struct {
	Title       string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []string
	Location    string
	Description string
}
