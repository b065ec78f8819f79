package intent

import (
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// DateParser は自由文中の日時表現を解釈する。
// 見つからない場合はfalseを返し、エラーにはしない。
type DateParser interface {
	Parse(text string, base time.Time) (time.Time, bool)
}

// WhenParser はolebedev/whenによる英語の日時パーサー。
type WhenParser struct {
	w *when.Parser
}

// NewWhenParser は英語と共通ルールを登録したWhenParserを生成する。
func NewWhenParser() *WhenParser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &WhenParser{w: w}
}

// Parse はbaseを基準に最初に見つかった日時表現を解釈する。
func (p *WhenParser) Parse(text string, base time.Time) (time.Time, bool) {
	r, err := p.w.Parse(text, base)
	if err != nil || r == nil {
		return time.Time{}, false
	}
	return r.Time, true
}

var _ DateParser = (*WhenParser)(nil)
