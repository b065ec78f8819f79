package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/calendar-assistant/internal/chat"
	"github.com/hitoshi/calendar-assistant/internal/middleware"
	"github.com/hitoshi/calendar-assistant/internal/model"
)

func TestChatHandler_Stream_WritesFramesInOrder(t *testing.T) {
	var gotTurn chat.Turn
	svc := &mockChatService{
		handleFn: func(ctx context.Context, turn chat.Turn, sink chat.Sink) error {
			gotTurn = turn
			for _, f := range []chat.Frame{
				{Event: chat.EventStatus, Data: chat.StatusThinking},
				{Event: chat.EventDelta, Data: "明日の予定は"},
				{Event: chat.EventDelta, Data: "ありません。"},
				{Event: chat.EventDone, Done: &chat.Done{ConversationID: "conv-1"}},
			} {
				if err := sink.Send(f); err != nil {
					return err
				}
			}
			return nil
		},
	}
	h := NewChatHandler(svc, time.Second)

	req := withUser(httptest.NewRequest(http.MethodGet, "/chat/stream?message=%E6%98%8E%E6%97%A5&conversation_id=conv-1", nil), "user-1")
	w := httptest.NewRecorder()
	h.Stream(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotTurn.UserID != "user-1" || gotTurn.ConversationID != "conv-1" || gotTurn.Message != "明日" {
		t.Errorf("turn = %+v", gotTurn)
	}

	body := w.Body.String()
	order := []string{"event: status", "event: delta\ndata: 明日の予定は", "event: delta\ndata: ありません。", "event: done"}
	pos := 0
	for _, want := range order {
		i := strings.Index(body[pos:], want)
		if i < 0 {
			t.Fatalf("%q not found in order; body = %q", want, body)
		}
		pos += i + len(want)
	}
	if !strings.Contains(body, `"conversation_id":"conv-1"`) {
		t.Errorf("done payload missing conversation_id: %q", body)
	}
}

func TestChatHandler_Stream_PostBody(t *testing.T) {
	var gotTurn chat.Turn
	svc := &mockChatService{
		handleFn: func(ctx context.Context, turn chat.Turn, sink chat.Sink) error {
			gotTurn = turn
			return sink.Send(chat.Frame{Event: chat.EventDone, Done: &chat.Done{ConversationID: "c"}})
		},
	}
	h := NewChatHandler(svc, 0)

	req := withUser(httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"content":"会議を入れて"}`)), "user-1")
	w := httptest.NewRecorder()
	h.Stream(w, req)

	if gotTurn.Message != "会議を入れて" {
		t.Errorf("Message = %q", gotTurn.Message)
	}
}

func TestChatHandler_Stream_ErrorBeforeFirstFrame_ReturnsJSON(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"他ユーザーの会話", fmt.Errorf("resolve: %w", model.ErrConversationNotFound), http.StatusNotFound, model.ErrCodeConversationNotFound},
		{"空メッセージ", model.NewInvalidRequestError("message is required"), http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"未分類", fmt.Errorf("db down"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockChatService{
				handleFn: func(ctx context.Context, turn chat.Turn, sink chat.Sink) error { return tt.err },
			}
			h := NewChatHandler(svc, 0)

			req := withUser(httptest.NewRequest(http.MethodGet, "/chat/stream?message=x", nil), "user-1")
			w := httptest.NewRecorder()
			h.Stream(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var body middleware.ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestChatHandler_Stream_ErrorAfterStart_KeepsStream(t *testing.T) {
	svc := &mockChatService{
		handleFn: func(ctx context.Context, turn chat.Turn, sink chat.Sink) error {
			if err := sink.Send(chat.Frame{Event: chat.EventStatus, Data: chat.StatusThinking}); err != nil {
				return err
			}
			return context.Canceled
		},
	}
	h := NewChatHandler(svc, 0)

	req := withUser(httptest.NewRequest(http.MethodGet, "/chat/stream?message=x", nil), "user-1")
	w := httptest.NewRecorder()
	h.Stream(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if strings.Contains(w.Body.String(), "INTERNAL_ERROR") {
		t.Error("JSON error must not be appended to a started stream")
	}
}

func TestChatHandler_Stream_InvalidJSON_Returns400(t *testing.T) {
	h := NewChatHandler(&mockChatService{}, 0)

	req := withUser(httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{`)), "user-1")
	w := httptest.NewRecorder()
	h.Stream(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestChatHandler_Stream_NoUser_Returns401(t *testing.T) {
	h := NewChatHandler(&mockChatService{}, 0)

	w := httptest.NewRecorder()
	h.Stream(w, httptest.NewRequest(http.MethodGet, "/chat/stream?message=x", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestChatHandler_Send_ReturnsReplyJSON(t *testing.T) {
	svc := &mockChatService{
		replyFn: func(ctx context.Context, turn chat.Turn) (*chat.Reply, error) {
			return &chat.Reply{Text: "登録しました。", ConversationID: "conv-9", CreatedEventID: "ev-3"}, nil
		},
	}
	h := NewChatHandler(svc, 0)

	req := withUser(httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"登録して"}`)), "user-1")
	w := httptest.NewRecorder()
	h.Send(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["reply"] != "登録しました。" || got["conversation_id"] != "conv-9" || got["created_event_id"] != "ev-3" {
		t.Errorf("reply = %v", got)
	}
}

func TestChatHandler_Send_DraftingFailure_Returns502(t *testing.T) {
	svc := &mockChatService{
		replyFn: func(ctx context.Context, turn chat.Turn) (*chat.Reply, error) {
			return nil, fmt.Errorf("draft: %w", model.ErrDraftingFailure)
		},
	}
	h := NewChatHandler(svc, 0)

	req := withUser(httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"x"}`)), "user-1")
	w := httptest.NewRecorder()
	h.Send(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestChatHandler_ListConversations_EmptyIsArray(t *testing.T) {
	h := NewChatHandler(&mockChatService{}, 0)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/conversations", nil), "user-1")
	w := httptest.NewRecorder()
	h.ListConversations(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", w.Body.String())
	}
}

func TestChatHandler_ListMessages_UsesURLParam(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var gotConv string
	svc := &mockChatService{
		historyFn: func(ctx context.Context, userID, conversationID string) ([]*model.Message, error) {
			gotConv = conversationID
			return []*model.Message{
				{ID: "m1", Role: model.RoleUser, Content: "こんにちは", CreatedAt: created},
				{ID: "m2", Role: model.RoleAssistant, Content: "はい", CreatedAt: created},
			}, nil
		},
	}
	h := NewChatHandler(svc, 0)

	r := chi.NewRouter()
	r.Get("/api/conversations/{id}/messages", h.ListMessages)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/conversations/conv-7/messages", nil), "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if gotConv != "conv-7" {
		t.Errorf("conversationID = %q, want conv-7", gotConv)
	}
	var got []messageResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Role != "user" || got[1].Role != "assistant" {
		t.Errorf("messages = %+v", got)
	}
}

func TestChatHandler_ListMessages_NotOwned_Returns404(t *testing.T) {
	svc := &mockChatService{
		historyFn: func(ctx context.Context, userID, conversationID string) ([]*model.Message, error) {
			return nil, model.ErrConversationNotFound
		},
	}
	h := NewChatHandler(svc, 0)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/conversations/x/messages", nil), "user-1")
	w := httptest.NewRecorder()
	h.ListMessages(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
