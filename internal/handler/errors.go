package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/calendar-assistant/internal/middleware"
	"github.com/hitoshi/calendar-assistant/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを統一エラーレスポンスに変換する。
// 分類できないエラーは詳細をログのみに残し、500を返す。
func handleServiceError(w http.ResponseWriter, err error) {
	if apiErr := model.ToAPIError(err); apiErr != nil {
		middleware.WriteErrorResponse(w, statusForAPIError(apiErr), apiErr)
		return
	}
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// statusForAPIError はAPIErrorコードからHTTPステータスコードにマッピングする。
func statusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthenticated, model.ErrCodeNotConnected, model.ErrCodeReauthRequired:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeConversationNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeCalendarUnavailable, model.ErrCodeDraftingFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorBody はストリームのerrorフレームに載せる本文を返す。
func errorBody(err error) middleware.ErrorResponseBody {
	apiErr := model.ToAPIError(err)
	if apiErr == nil {
		apiErr = model.NewInternalError()
	}
	return middleware.ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
}

func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return "", false
	}
	return userID, true
}
