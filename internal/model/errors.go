package model

import (
	"errors"
	"fmt"
)

// エラー分類のセンチネル。各層はfmt.Errorfの%wでラップして返し、
// 呼び出し側はerrors.Isで判定する。
var (
	// ErrUnauthenticated はセッショントークンが無い・不正・期限切れであることを示す。
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotConnected はカレンダー資格情報が存在しない、または切断済みであることを示す。
	ErrNotConnected = errors.New("calendar not connected")
	// ErrReauthRequired はリフレッシュトークンが失効しており再認可が必要であることを示す。
	ErrReauthRequired = errors.New("calendar re-authorization required")
	// ErrCalendarUnavailable はカレンダーAPI呼び出しの一時的な失敗を示す。
	ErrCalendarUnavailable = errors.New("calendar unavailable")
	// ErrDraftingFailure は返信生成の失敗を示す。
	ErrDraftingFailure = errors.New("drafting failed")
	// ErrConversationNotFound は指定された会話がユーザーに属していないことを示す。
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrUserNotFound はユーザーが存在しないことを示す。
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidEvent は作成する予定の内容が不正であることを示す。
	ErrInvalidEvent = errors.New("invalid event")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, calendar, chat, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated      = "UNAUTHENTICATED"
	ErrCodeNotConnected         = "CALENDAR_NOT_CONNECTED"
	ErrCodeReauthRequired       = "REAUTH_REQUIRED"
	ErrCodeCalendarUnavailable  = "CALENDAR_UNAVAILABLE"
	ErrCodeDraftingFailure      = "DRAFTING_FAILED"
	ErrCodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeCrossSiteRequest     = "CROSS_SITE_REQUEST"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewNotConnectedError はカレンダー未連携エラーを生成する。
func NewNotConnectedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotConnected,
		Message:  "Googleカレンダーが連携されていません。",
		Category: "calendar",
		Action:   "Googleアカウントでログインし直し、カレンダーへのアクセスを許可してください。",
	}
}

// NewReauthRequiredError は再認可要求エラーを生成する。
func NewReauthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeReauthRequired,
		Message:  "Googleカレンダーへのアクセス権が失効しました。",
		Category: "calendar",
		Action:   "Googleアカウントでログインし直してください。",
	}
}

// NewCalendarUnavailableError はカレンダーAPI失敗エラーを生成する。
func NewCalendarUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeCalendarUnavailable,
		Message:  fmt.Sprintf("Googleカレンダーとの通信に失敗しました: %s", reason),
		Category: "calendar",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewDraftingFailureError は返信生成失敗エラーを生成する。
func NewDraftingFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeDraftingFailure,
		Message:  "返信の生成に失敗しました。",
		Category: "chat",
		Action:   "しばらく待ってから再度メッセージを送信してください。",
	}
}

// NewConversationNotFoundError は会話未検出エラーを生成する。
func NewConversationNotFoundError(conversationID string) *APIError {
	return &APIError{
		Code:     ErrCodeConversationNotFound,
		Message:  fmt.Sprintf("指定された会話が見つかりません: %s", conversationID),
		Category: "chat",
		Action:   "会話IDを指定せずに新しい会話を開始してください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewCrossSiteRequestError は許可されていないオリジンからの状態変更リクエストのエラーを生成する。
func NewCrossSiteRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeCrossSiteRequest,
		Message:  "許可されていないオリジンからのリクエストです。",
		Category: "auth",
		Action:   "アプリの画面から操作してください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// ToAPIError はドメインエラーを統一エラーフォーマットに変換する。
// 該当するセンチネルが無い場合はnilを返す。
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, ErrUnauthenticated):
		return NewUnauthenticatedError()
	case errors.Is(err, ErrReauthRequired):
		return NewReauthRequiredError()
	case errors.Is(err, ErrNotConnected):
		return NewNotConnectedError()
	case errors.Is(err, ErrCalendarUnavailable):
		return NewCalendarUnavailableError(err.Error())
	case errors.Is(err, ErrDraftingFailure):
		return NewDraftingFailureError()
	case errors.Is(err, ErrConversationNotFound):
		return NewConversationNotFoundError("")
	case errors.Is(err, ErrUserNotFound):
		return NewUserNotFoundError()
	case errors.Is(err, ErrInvalidEvent):
		return NewInvalidRequestError(err.Error())
	default:
		return nil
	}
}
