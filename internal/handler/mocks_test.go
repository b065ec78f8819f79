package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/calendar-assistant/internal/auth"
	"github.com/hitoshi/calendar-assistant/internal/chat"
	"github.com/hitoshi/calendar-assistant/internal/middleware"
	"github.com/hitoshi/calendar-assistant/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*auth.LoginResult, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://accounts.example.com/auth?state=" + state
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*auth.LoginResult, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return &auth.LoginResult{User: &model.User{ID: "user-1"}, Token: "session-token"}, nil
}

type mockChatService struct {
	handleFn            func(ctx context.Context, turn chat.Turn, sink chat.Sink) error
	replyFn             func(ctx context.Context, turn chat.Turn) (*chat.Reply, error)
	historyFn           func(ctx context.Context, userID, conversationID string) ([]*model.Message, error)
	listConversationsFn func(ctx context.Context, userID string) ([]*model.Conversation, error)
}

func (m *mockChatService) Handle(ctx context.Context, turn chat.Turn, sink chat.Sink) error {
	if m.handleFn != nil {
		return m.handleFn(ctx, turn, sink)
	}
	return nil
}

func (m *mockChatService) Reply(ctx context.Context, turn chat.Turn) (*chat.Reply, error) {
	if m.replyFn != nil {
		return m.replyFn(ctx, turn)
	}
	return &chat.Reply{}, nil
}

func (m *mockChatService) History(ctx context.Context, userID, conversationID string) ([]*model.Message, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID, conversationID)
	}
	return nil, nil
}

func (m *mockChatService) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	if m.listConversationsFn != nil {
		return m.listConversationsFn(ctx, userID)
	}
	return nil, nil
}

type mockCalendarService struct {
	listEventsFn  func(ctx context.Context, userID string, timeMin, timeMax time.Time, query string) ([]model.Event, error)
	createEventFn func(ctx context.Context, userID string, in model.EventInput) (*model.Event, error)
	disconnectFn  func(ctx context.Context, userID string) error
}

func (m *mockCalendarService) ListEvents(ctx context.Context, userID string, timeMin, timeMax time.Time, query string) ([]model.Event, error) {
	if m.listEventsFn != nil {
		return m.listEventsFn(ctx, userID, timeMin, timeMax, query)
	}
	return nil, nil
}

func (m *mockCalendarService) CreateEvent(ctx context.Context, userID string, in model.EventInput) (*model.Event, error) {
	if m.createEventFn != nil {
		return m.createEventFn(ctx, userID, in)
	}
	return &model.Event{ID: "ev-1", Title: in.Title}, nil
}

func (m *mockCalendarService) Disconnect(ctx context.Context, userID string) error {
	if m.disconnectFn != nil {
		return m.disconnectFn(ctx, userID)
	}
	return nil
}

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// withUser はセッションミドルウェア通過後と同じコンテキストを持つリクエストを返す。
func withUser(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUser(r.Context(), &model.User{ID: userID, Email: userID + "@example.com", Name: "Test"})
	return r.WithContext(ctx)
}
