package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/calendar-assistant/internal/chat"
	"github.com/hitoshi/calendar-assistant/internal/model"
)

// maxChatBodyBytes はチャットリクエスト本文の上限。
const maxChatBodyBytes = 64 << 10

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	Handle(ctx context.Context, turn chat.Turn, sink chat.Sink) error
	Reply(ctx context.Context, turn chat.Turn) (*chat.Reply, error)
	History(ctx context.Context, userID, conversationID string) ([]*model.Message, error)
	ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error)
}

// ChatHandler はチャットと会話履歴のHTTPハンドラー。
type ChatHandler struct {
	service      ChatServiceInterface
	writeTimeout time.Duration
}

// NewChatHandler はChatHandlerを生成する。
// writeTimeoutはSSEのフレームごとの書き込み期限で、0の場合は設定しない。
func NewChatHandler(service ChatServiceInterface, writeTimeout time.Duration) *ChatHandler {
	return &ChatHandler{service: service, writeTimeout: writeTimeout}
}

// chatRequest はチャット送信のリクエストボディ。
// 本文はcontentとmessageのどちらでも受け付ける。
type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Message        string `json:"message"`
}

type conversationResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Stream は1ターンを処理し、返信をSSEで返す。
// GET /chat/stream?message=...&conversation_id=...
// POST /chat/stream
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	turn, err := parseTurn(w, r, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	sse := newSSEWriter(w, h.writeTimeout)
	err = h.service.Handle(r.Context(), turn, sse)
	if err == nil {
		return
	}
	if !sse.started {
		handleServiceError(w, err)
		return
	}
	// ストリーム開始後の失敗はクライアント切断のみ。書き込み先が無いためログに留める。
	slog.Info("chat stream closed early",
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
}

// Send は1ターンを処理し、返信全文をJSONで返す。
// POST /chat
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	turn, err := parseTurn(w, r, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	reply, err := h.service.Reply(r.Context(), turn)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// ListConversations はユーザーの会話一覧を返す。
// GET /api/conversations
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	convs, err := h.service.ListConversations(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]conversationResponse, 0, len(convs))
	for _, c := range convs {
		resp = append(resp, conversationResponse{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListMessages は会話のメッセージを古い順に返す。
// GET /api/conversations/{id}/messages
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	msgs, err := h.service.History(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageResponse{ID: m.ID, Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt})
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseTurn はGETのクエリまたはPOSTのJSONボディからTurnを組み立てる。
func parseTurn(w http.ResponseWriter, r *http.Request, userID string) (chat.Turn, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		return chat.Turn{UserID: userID, ConversationID: q.Get("conversation_id"), Message: q.Get("message")}, nil
	}

	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return chat.Turn{}, model.NewInvalidRequestError("request body too large")
		}
		return chat.Turn{}, model.NewInvalidRequestError("invalid JSON body")
	}
	text := req.Content
	if text == "" {
		text = req.Message
	}
	return chat.Turn{UserID: userID, ConversationID: req.ConversationID, Message: text}, nil
}
