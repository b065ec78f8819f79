package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTitle はタイトルが抽出できなかった場合の予定名。
const DefaultTitle = "New Event"

// EventDuration は単一時刻の照会・作成に使う既定の長さ。
const EventDuration = time.Hour

// TitleSanitizer は抽出したタイトルからマークアップを除去する。
type TitleSanitizer interface {
	Sanitize(raw string) string
}

var (
	creationVerbRe = regexp.MustCompile(`(?i)\b(add|create|schedule)\b`)
	leadingVerbRe  = regexp.MustCompile(`(?i)^\s*(?:please\s+|(?:can|could|would)\s+you\s+(?:please\s+)?)?(?:add|create|schedule)\b`)
	namedTitleRe   = regexp.MustCompile(`(?i)\b(?:called|titled)\s+[‘'"“”]?([^'"”’]+)[’'"”]?`)
	quotedTitleRe  = regexp.MustCompile(`(?:^|[^\p{L}])[‘'"“”]([^'"”’]+)[’'"”](?:$|[^\p{L}])`)
	titleTailRe    = regexp.MustCompile(`(?i)\s+(?:at|for|on|from|tomorrow|today|next)\b.*$`)
	timePhraseRe   = regexp.MustCompile(`(?i)\b(?:at|for)\s+([0-9]{1,2})(?::([0-9]{2}))?\s?(am|pm)?\b`)
	meetingWithRe  = regexp.MustCompile(`\b(?i:meeting with)\s+([\p{L}][\p{L}'\-]*(?:\s+[\p{Lu}][\p{L}'\-]*)?)`)
)

// queryStopWords は検索語の末尾から落とす語。
var queryStopWords = map[string]bool{
	"tomorrow": true, "today": true, "next": true, "this": true, "on": true, "at": true,
}

// Extractor は発話を期間照会・予定作成・意図なしのいずれかに分類する。
// 同じ入力と現在時刻に対して常に同じ結果を返す。
type Extractor struct {
	loc       *time.Location
	parser    DateParser
	sanitizer TitleSanitizer
}

// NewExtractor はExtractorを生成する。
// locはユーザーの固定タイムゾーン。sanitizerはnil可。
func NewExtractor(loc *time.Location, parser DateParser, sanitizer TitleSanitizer) *Extractor {
	if parser == nil {
		parser = NewWhenParser()
	}
	return &Extractor{loc: loc, parser: parser, sanitizer: sanitizer}
}

// Location はユーザーのタイムゾーンを返す。
func (e *Extractor) Location() *time.Location {
	return e.loc
}

// Extract は発話から意図を抽出する。
//
// 判定順（最初に一致したものを採用）:
//  0. 作成動詞が命令として使われている場合は予定作成の抽出を行う
//  1. "tomorrow" を含む → 翌日0時から24時間
//  2. "next week" を含む → 次の月曜0時から7日間
//  3. 汎用パーサーで日時が取れる → その時刻から1時間
//  4. 作成動詞を含む → 予定作成の抽出
//  5. 意図なし
//
// 予定作成の抽出に失敗した場合は意図なしを返す。
func (e *Extractor) Extract(utterance string, now time.Time) Result {
	now = now.In(e.loc)
	lower := strings.ToLower(utterance)

	hasVerb := creationVerbRe.MatchString(utterance)
	if hasVerb && e.isCommand(utterance) {
		return e.extractNewEvent(utterance, lower, now)
	}

	if strings.Contains(lower, "tomorrow") {
		start := startOfDay(now).AddDate(0, 0, 1)
		return windowResult(start, start.AddDate(0, 0, 1), meetingQuery(utterance))
	}

	if strings.Contains(lower, "next week") {
		// 月曜を0とする曜日で、次の月曜までの日数を求める
		weekday := (int(now.Weekday()) + 6) % 7
		daysAhead := (7 - weekday) % 7
		start := startOfDay(now).AddDate(0, 0, daysAhead)
		return windowResult(start, start.AddDate(0, 0, 7), meetingQuery(utterance))
	}

	if t, ok := e.parser.Parse(utterance, now); ok {
		start := preferFuture(t.In(e.loc), now)
		return windowResult(start, start.Add(EventDuration), meetingQuery(utterance))
	}

	if hasVerb {
		return e.extractNewEvent(utterance, lower, now)
	}
	return None()
}

// isCommand は作成動詞が命令として使われているかを判定する。
// "What's on my schedule for 3pm tomorrow?" のような名詞用法は照会として扱う。
// 時刻指定だけでは命令とみなさず、文頭の動詞かタイトル指定を要求する。
func (e *Extractor) isCommand(utterance string) bool {
	return leadingVerbRe.MatchString(utterance) ||
		namedTitleRe.MatchString(utterance) ||
		quotedTitleRe.MatchString(utterance)
}

func (e *Extractor) extractNewEvent(utterance, lower string, now time.Time) Result {
	title := e.extractTitle(utterance)

	hour, minute, hasTime := parseTimePhrase(utterance)

	dayPhrase := ""
	switch {
	case strings.Contains(lower, "tomorrow"):
		dayPhrase = "tomorrow"
	case strings.Contains(lower, "today"):
		dayPhrase = "today"
	}

	fragment := strings.TrimSpace(dayPhrase + " " + timeFragment(utterance))
	if fragment == "" {
		fragment = utterance
	}

	start, ok := e.parser.Parse(fragment, now)
	if ok {
		start = start.In(e.loc)
	} else if dayPhrase != "" || hasTime {
		start, ok = now, true
		if dayPhrase == "tomorrow" {
			start = start.AddDate(0, 0, 1)
		}
	}
	if !ok {
		return None()
	}

	if hasTime {
		start = time.Date(start.Year(), start.Month(), start.Day(), hour, minute, 0, 0, e.loc)
		if dayPhrase == "" {
			start = preferFuture(start, now)
		}
	}

	return eventResult(&NewEvent{
		Title:    title,
		Start:    start,
		End:      start.Add(EventDuration),
		TimeZone: e.loc.String(),
	})
}

func (e *Extractor) extractTitle(utterance string) string {
	var title string
	if m := namedTitleRe.FindStringSubmatch(utterance); m != nil {
		title = titleTailRe.ReplaceAllString(m[1], "")
	} else if m := quotedTitleRe.FindStringSubmatch(utterance); m != nil {
		title = m[1]
	}
	if e.sanitizer != nil {
		title = e.sanitizer.Sanitize(title)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}
	return title
}

// parseTimePhrase は "at|for <hour>[:min][am|pm]" を時・分に変換する。
// am/pmが無い場合は24時間表記として扱う。範囲外の値は時刻なしとみなす。
func parseTimePhrase(utterance string) (hour, minute int, ok bool) {
	m := timePhraseRe.FindStringSubmatch(utterance)
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if minute > 59 {
		return 0, 0, false
	}

	switch strings.ToLower(m[3]) {
	case "am":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return 0, 0, false
		}
	}
	return hour, minute, true
}

// timeFragment は時刻表現部分（"3pm" など）を返す。
func timeFragment(utterance string) string {
	m := timePhraseRe.FindStringSubmatch(utterance)
	if m == nil {
		return ""
	}
	s := m[1]
	if m[2] != "" {
		s += ":" + m[2]
	}
	return s + strings.ToLower(m[3])
}

// meetingQuery は "meeting with <name>" の<name>を検索語として返す。
func meetingQuery(utterance string) string {
	m := meetingWithRe.FindStringSubmatch(utterance)
	if m == nil {
		return ""
	}
	words := strings.Fields(m[1])
	for len(words) > 0 && queryStopWords[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// preferFuture は24時間以内の過去の時刻を翌日に送る。
func preferFuture(t, now time.Time) time.Time {
	if t.Before(now) && now.Sub(t) < 24*time.Hour {
		return t.AddDate(0, 0, 1)
	}
	return t
}
