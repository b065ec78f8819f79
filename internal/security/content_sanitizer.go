// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザー発話やカレンダーAPIから得たテキストからマークアップを除去する。
// 抽出した予定タイトルや、返信生成に渡す予定一覧のタイトルに使用する。
// TokenCipher はOAuthトークンを保存時に暗号化する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxTitleLength は予定タイトルの最大文字数（rune数）。
const MaxTitleLength = 200

// TextSanitizer はプレーンテキスト化のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize は全てのHTMLタグを除去し、空白を正規化したプレーンテキストを返す。
	// 結果はMaxTitleLength文字に切り詰められる。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// maxSanitizePasses はエスケープされたタグを再度除去する回数の上限。
const maxSanitizePasses = 3

// Sanitize はタグを除去したプレーンテキストを返す。
// StrictPolicyはエンティティをエスケープするため、アンエスケープして元の文字に戻し、
// それによって現れたタグは次のパスで除去する。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	text := raw
	for range maxSanitizePasses {
		next := html.UnescapeString(s.policy.Sanitize(text))
		if next == text {
			break
		}
		text = next
	}
	text = strings.ReplaceAll(text, "<", "")
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > MaxTitleLength {
		r := []rune(text)
		text = strings.TrimSpace(string(r[:MaxTitleLength]))
	}
	return text
}
