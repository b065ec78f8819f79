package middleware

import (
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/hitoshi/calendar-assistant/internal/model"
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	// AllowedOrigin はCookie付きのリクエストを許可するフロントエンドのオリジン。
	AllowedOrigin string
	// CheckSafeMethods が真の場合、GETも検証対象にする。
	// クエリで発話を受け取るSSEエンドポイントのように、GETで状態が変わるルートに使う。
	CheckSafeMethods bool
}

// NewCSRFMiddleware はクロスサイトからの状態変更リクエストを拒否するミドルウェアを返す。
// セッションCookieはSameSite=Noneで発行され得るため、Cookieの属性には依存しない。
//
// 検証内容:
//   - Originヘッダーがある場合は許可オリジンと一致すること
//   - Originヘッダーが無い場合はSec-Fetch-Siteがcross-siteでないこと
//   - 本文付きの状態変更リクエストはContent-Typeがapplication/jsonであること
//
// どちらのヘッダーも無いリクエストはブラウザ外のクライアントとみなして通す。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	allowed := normalizeOrigin(config.AllowedOrigin)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			safe := isSafeMethod(r.Method)
			if safe && !config.CheckSafeMethods {
				next.ServeHTTP(w, r)
				return
			}

			if origin := r.Header.Get("Origin"); origin != "" {
				if normalizeOrigin(origin) != allowed {
					rejectCSRF(w, r, "origin mismatch")
					return
				}
			} else if strings.EqualFold(r.Header.Get("Sec-Fetch-Site"), "cross-site") {
				rejectCSRF(w, r, "cross-site fetch")
				return
			}

			if !safe && hasBody(r) && !isJSONContentType(r.Header.Get("Content-Type")) {
				rejectCSRF(w, r, "non-json body")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

// hasBody は本文を伴うリクエストかを判定する。長さ不明（chunked）は本文ありとみなす。
func hasBody(r *http.Request) bool {
	return r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody
}

func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

func rejectCSRF(w http.ResponseWriter, r *http.Request, reason string) {
	slog.Warn("CSRF validation failed",
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("origin", r.Header.Get("Origin")),
	)
	WriteErrorResponse(w, http.StatusForbidden, model.NewCrossSiteRequestError())
}
