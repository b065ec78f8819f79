// Package calendar はGoogleカレンダーAPIへの予定の照会・作成を提供する。
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hitoshi/calendar-assistant/internal/model"
)

// PrimaryCalendarID は操作対象のカレンダー。
const PrimaryCalendarID = "primary"

// DefaultPageSize は1回の照会で取得する最大件数。
const DefaultPageSize = 50

// UntitledEvent はタイトルが空の予定の表示名。
const UntitledEvent = "(no title)"

// 呼び出し種別と結果のラベル。
const (
	OpList   = "list"
	OpCreate = "create"

	ResultOK    = "ok"
	ResultError = "error"
)

// CallObserver はカレンダーAPI呼び出しの結果を受け取る。
type CallObserver interface {
	ObserveCalendarCall(op, result string)
}

// TitleSanitizer は予定タイトルからマークアップを除去する。
type TitleSanitizer interface {
	Sanitize(raw string) string
}

// Gateway はカレンダーAPIの薄いラッパー。リトライは行わない。
type Gateway struct {
	calendarID string
	pageSize   int64
	endpoint   string
	httpClient *http.Client
	sanitizer  TitleSanitizer
	observer   CallObserver
}

// Option はGatewayの設定を変更する。
type Option func(*Gateway)

// WithEndpoint はAPIのベースURLを差し替える。テスト用。
func WithEndpoint(url string) Option {
	return func(g *Gateway) { g.endpoint = url }
}

// WithHTTPClient はOAuthトランスポートの下層に使うHTTPクライアントを指定する。
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// WithSanitizer は取得した予定タイトルのサニタイザーを指定する。
func WithSanitizer(s TitleSanitizer) Option {
	return func(g *Gateway) { g.sanitizer = s }
}

// WithObserver は呼び出し結果の記録先を指定する。
func WithObserver(o CallObserver) Option {
	return func(g *Gateway) { g.observer = o }
}

// NewGateway はGatewayを生成する。pageSizeが0以下の場合はDefaultPageSizeを使う。
func NewGateway(pageSize int, opts ...Option) *Gateway {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	g := &Gateway{
		calendarID: PrimaryCalendarID,
		pageSize:   int64(pageSize),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ListEvents は[timeMin, timeMax)の予定を開始時刻の昇順で返す。
// 繰り返し予定は展開済みの単一インスタンスとして返る。
func (g *Gateway) ListEvents(ctx context.Context, cred *model.Credential, timeMin, timeMax time.Time, query string) ([]model.Event, error) {
	svc, err := g.service(ctx, cred)
	if err != nil {
		g.observe(OpList, ResultError)
		return nil, err
	}

	call := svc.Events.List(g.calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(g.pageSize).
		Context(ctx)
	if query != "" {
		call = call.Q(query)
	}

	res, err := call.Do()
	if err != nil {
		g.observe(OpList, ResultError)
		return nil, unavailable("list events", err)
	}
	g.observe(OpList, ResultOK)

	events := make([]model.Event, 0, len(res.Items))
	for _, item := range res.Items {
		events = append(events, g.toEvent(item))
	}
	return events, nil
}

// CreateEvent は予定を作成し、作成された予定を返す。
func (g *Gateway) CreateEvent(ctx context.Context, cred *model.Credential, in model.EventInput) (*model.Event, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrInvalidEvent)
	}
	if !in.End.After(in.Start) {
		return nil, fmt.Errorf("%w: end must be after start", model.ErrInvalidEvent)
	}

	svc, err := g.service(ctx, cred)
	if err != nil {
		g.observe(OpCreate, ResultError)
		return nil, err
	}

	tz := in.TimeZone
	if tz == "" {
		tz = in.Start.Location().String()
	}
	body := &gcal.Event{
		Summary:     in.Title,
		Location:    in.Location,
		Description: in.Description,
		Start:       &gcal.EventDateTime{DateTime: in.Start.Format(time.RFC3339), TimeZone: tz},
		End:         &gcal.EventDateTime{DateTime: in.End.Format(time.RFC3339), TimeZone: tz},
	}
	for _, email := range in.Attendees {
		if email = strings.TrimSpace(email); email != "" {
			body.Attendees = append(body.Attendees, &gcal.EventAttendee{Email: email})
		}
	}

	created, err := svc.Events.Insert(g.calendarID, body).Context(ctx).Do()
	if err != nil {
		g.observe(OpCreate, ResultError)
		return nil, unavailable("create event", err)
	}
	g.observe(OpCreate, ResultOK)

	ev := g.toEvent(created)
	return &ev, nil
}

func (g *Gateway) service(ctx context.Context, cred *model.Credential) (*gcal.Service, error) {
	if cred == nil || cred.AccessToken == "" {
		return nil, model.ErrNotConnected
	}

	if g.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cred.AccessToken,
		TokenType:   "Bearer",
		Expiry:      cred.ExpiresAt,
	})

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create calendar service: %v", model.ErrCalendarUnavailable, err)
	}
	return svc, nil
}

func (g *Gateway) toEvent(item *gcal.Event) model.Event {
	title := item.Summary
	if g.sanitizer != nil {
		title = g.sanitizer.Sanitize(title)
	}
	if title == "" {
		title = UntitledEvent
	}

	ev := model.Event{ID: item.Id, Title: title, Link: item.HtmlLink}
	ev.Start, ev.AllDay = eventTime(item.Start)
	ev.End, _ = eventTime(item.End)
	return ev
}

// eventTime は時刻指定があればRFC3339、無ければ終日の日付を返す。
func eventTime(dt *gcal.EventDateTime) (string, bool) {
	if dt == nil {
		return "", false
	}
	if dt.DateTime != "" {
		return dt.DateTime, false
	}
	return dt.Date, dt.Date != ""
}

// unavailable はAPIエラーをErrCalendarUnavailableでラップし、プロバイダーのメッセージを付与する。
func unavailable(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return fmt.Errorf("%w: %s: %d %s", model.ErrCalendarUnavailable, op, gerr.Code, msg)
	}
	return fmt.Errorf("%w: %s: %v", model.ErrCalendarUnavailable, op, err)
}

func (g *Gateway) observe(op, result string) {
	if g.observer != nil {
		g.observer.ObserveCalendarCall(op, result)
	}
}
