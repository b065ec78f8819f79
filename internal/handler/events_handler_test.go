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

	"github.com/hitoshi/calendar-assistant/internal/model"
)

func TestEventsHandler_ListEvents_Success(t *testing.T) {
	var gotMin, gotMax time.Time
	var gotQuery string
	svc := &mockCalendarService{
		listEventsFn: func(ctx context.Context, userID string, timeMin, timeMax time.Time, query string) ([]model.Event, error) {
			gotMin, gotMax, gotQuery = timeMin, timeMax, query
			return []model.Event{{ID: "e1", Title: "定例", Start: "2025-03-04T10:00:00+09:00", End: "2025-03-04T11:00:00+09:00"}}, nil
		},
	}
	h := NewEventsHandler(svc)

	req := withUser(httptest.NewRequest(http.MethodGet,
		"/events?time_min=2025-03-04T00:00:00%2B09:00&time_max=2025-03-05T00:00:00%2B09:00&q=%20%E5%AE%9A%E4%BE%8B%20", nil), "user-1")
	w := httptest.NewRecorder()
	h.ListEvents(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", w.Code, w.Body.String())
	}
	if gotQuery != "定例" {
		t.Errorf("query = %q, want trimmed 定例", gotQuery)
	}
	if gotMax.Sub(gotMin) != 24*time.Hour {
		t.Errorf("window = %v, want 24h", gotMax.Sub(gotMin))
	}

	var body struct {
		Items []model.Event `json:"items"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].ID != "e1" {
		t.Errorf("items = %+v", body.Items)
	}
}

func TestEventsHandler_ListEvents_EmptyIsArray(t *testing.T) {
	h := NewEventsHandler(&mockCalendarService{})

	req := withUser(httptest.NewRequest(http.MethodGet, "/events?timeMin=2025-03-04T00:00:00Z&timeMax=2025-03-05T00:00:00Z", nil), "user-1")
	w := httptest.NewRecorder()
	h.ListEvents(w, req)

	if !strings.Contains(w.Body.String(), `"items":[]`) {
		t.Errorf("body = %q, want items []", w.Body.String())
	}
}

func TestEventsHandler_ListEvents_Validation(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"time_min欠落", "?time_max=2025-03-05T00:00:00Z"},
		{"time_max欠落", "?time_min=2025-03-04T00:00:00Z"},
		{"RFC3339でない", "?time_min=2025-03-04&time_max=2025-03-05T00:00:00Z"},
		{"逆順", "?time_min=2025-03-05T00:00:00Z&time_max=2025-03-04T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockCalendarService{
				listEventsFn: func(ctx context.Context, userID string, timeMin, timeMax time.Time, query string) ([]model.Event, error) {
					called = true
					return nil, nil
				},
			}
			h := NewEventsHandler(svc)

			req := withUser(httptest.NewRequest(http.MethodGet, "/events"+tt.query, nil), "user-1")
			w := httptest.NewRecorder()
			h.ListEvents(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if called {
				t.Error("service should not be called")
			}
		})
	}
}

func TestEventsHandler_ListEvents_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"未連携", fmt.Errorf("creds: %w", model.ErrNotConnected), http.StatusUnauthorized},
		{"再認可", model.ErrReauthRequired, http.StatusUnauthorized},
		{"API障害", fmt.Errorf("list: %w", model.ErrCalendarUnavailable), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCalendarService{
				listEventsFn: func(ctx context.Context, userID string, timeMin, timeMax time.Time, query string) ([]model.Event, error) {
					return nil, tt.err
				},
			}
			h := NewEventsHandler(svc)

			req := withUser(httptest.NewRequest(http.MethodGet, "/events?time_min=2025-03-04T00:00:00Z&time_max=2025-03-05T00:00:00Z", nil), "user-1")
			w := httptest.NewRecorder()
			h.ListEvents(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestEventsHandler_CreateEvent_Success(t *testing.T) {
	var got model.EventInput
	svc := &mockCalendarService{
		createEventFn: func(ctx context.Context, userID string, in model.EventInput) (*model.Event, error) {
			got = in
			return &model.Event{ID: "new-1", Title: in.Title}, nil
		},
	}
	h := NewEventsHandler(svc)

	body := `{"title":"歯医者","start_iso":"2025-03-05T15:00:00+09:00","end_iso":"2025-03-05T16:00:00+09:00","timezone":"Asia/Tokyo","attendees":["a@example.com"]}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body)), "user-1")
	w := httptest.NewRecorder()
	h.CreateEvent(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", w.Code, w.Body.String())
	}
	if got.Title != "歯医者" || got.TimeZone != "Asia/Tokyo" || len(got.Attendees) != 1 {
		t.Errorf("input = %+v", got)
	}
	if got.End.Sub(got.Start) != time.Hour {
		t.Errorf("duration = %v, want 1h", got.End.Sub(got.Start))
	}
	if !strings.Contains(w.Body.String(), `"event":{"id":"new-1"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestEventsHandler_CreateEvent_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"不正なJSON", `{`},
		{"タイトル無し", `{"start_iso":"2025-03-05T15:00:00Z","end_iso":"2025-03-05T16:00:00Z"}`},
		{"開始欠落", `{"summary":"x","end_iso":"2025-03-05T16:00:00Z"}`},
		{"不明なタイムゾーン", `{"summary":"x","start_iso":"2025-03-05T15:00:00Z","end_iso":"2025-03-05T16:00:00Z","timezone":"Mars/Base"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewEventsHandler(&mockCalendarService{})

			req := withUser(httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(tt.body)), "user-1")
			w := httptest.NewRecorder()
			h.CreateEvent(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestEventsHandler_CreateEvent_InvalidEventFromGateway_Returns400(t *testing.T) {
	svc := &mockCalendarService{
		createEventFn: func(ctx context.Context, userID string, in model.EventInput) (*model.Event, error) {
			return nil, fmt.Errorf("end before start: %w", model.ErrInvalidEvent)
		},
	}
	h := NewEventsHandler(svc)

	body := `{"summary":"x","start_iso":"2025-03-05T16:00:00Z","end_iso":"2025-03-05T15:00:00Z"}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body)), "user-1")
	w := httptest.NewRecorder()
	h.CreateEvent(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestEventsHandler_Disconnect(t *testing.T) {
	var gotUser string
	svc := &mockCalendarService{
		disconnectFn: func(ctx context.Context, userID string) error {
			gotUser = userID
			return nil
		},
	}
	h := NewEventsHandler(svc)

	req := withUser(httptest.NewRequest(http.MethodDelete, "/api/calendar/connection", nil), "user-5")
	w := httptest.NewRecorder()
	h.Disconnect(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if gotUser != "user-5" {
		t.Errorf("userID = %q, want user-5", gotUser)
	}
}
