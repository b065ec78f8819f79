package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/calendar-assistant/internal/model"
)

// CalendarServiceInterface はカレンダーハンドラーが必要とするサービスインターフェース。
type CalendarServiceInterface interface {
	ListEvents(ctx context.Context, userID string, timeMin, timeMax time.Time, query string) ([]model.Event, error)
	CreateEvent(ctx context.Context, userID string, in model.EventInput) (*model.Event, error)
	Disconnect(ctx context.Context, userID string) error
}

// EventsHandler はカレンダー予定の直接操作のHTTPハンドラー。
type EventsHandler struct {
	service CalendarServiceInterface
}

// NewEventsHandler はEventsHandlerを生成する。
func NewEventsHandler(service CalendarServiceInterface) *EventsHandler {
	return &EventsHandler{service: service}
}

// createEventRequest は予定作成のリクエストボディ。
type createEventRequest struct {
	Summary     string   `json:"summary"`
	Title       string   `json:"title"`
	StartISO    string   `json:"start_iso"`
	EndISO      string   `json:"end_iso"`
	TimeZone    string   `json:"timezone"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Attendees   []string `json:"attendees"`
}

// ListEvents は指定期間の予定を返す。
// GET /events?time_min=RFC3339&time_max=RFC3339&q=...
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	timeMin, err := parseRFC3339("time_min", firstNonEmpty(q.Get("time_min"), q.Get("timeMin")))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	timeMax, err := parseRFC3339("time_max", firstNonEmpty(q.Get("time_max"), q.Get("timeMax")))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !timeMax.After(timeMin) {
		handleServiceError(w, model.NewInvalidRequestError("time_max must be after time_min"))
		return
	}

	events, err := h.service.ListEvents(r.Context(), userID, timeMin, timeMax, strings.TrimSpace(q.Get("q")))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": events})
}

// CreateEvent は予定を作成する。
// POST /events
func (h *EventsHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewInvalidRequestError("invalid JSON body"))
		return
	}
	in, err := req.toInput()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ev, err := h.service.CreateEvent(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"event": ev})
}

// Disconnect はカレンダー連携を解除する。
// DELETE /api/calendar/connection
func (h *EventsHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Disconnect(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req createEventRequest) toInput() (model.EventInput, error) {
	title := strings.TrimSpace(firstNonEmpty(req.Summary, req.Title))
	if title == "" {
		return model.EventInput{}, model.NewInvalidRequestError("summary is required")
	}
	start, err := parseRFC3339("start_iso", req.StartISO)
	if err != nil {
		return model.EventInput{}, err
	}
	end, err := parseRFC3339("end_iso", req.EndISO)
	if err != nil {
		return model.EventInput{}, err
	}
	if req.TimeZone != "" {
		if _, err := time.LoadLocation(req.TimeZone); err != nil {
			return model.EventInput{}, model.NewInvalidRequestError(fmt.Sprintf("unknown timezone %q", req.TimeZone))
		}
	}
	return model.EventInput{
		Title:       title,
		Start:       start,
		End:         end,
		TimeZone:    req.TimeZone,
		Location:    req.Location,
		Description: req.Description,
		Attendees:   req.Attendees,
	}, nil
}

func parseRFC3339(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, model.NewInvalidRequestError(field + " is required")
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, model.NewInvalidRequestError(field + " must be RFC3339")
	}
	return t, nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
