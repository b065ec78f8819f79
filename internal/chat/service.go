// Package chat は1ターンの対話を順に処理し、返信をストリーミングで返す。
//
// 処理順は、会話の解決、ユーザー発話の保存、意図抽出、カレンダー操作、返信生成、
// アシスタント発話の保存の順で、各段階は前段の結果に依存する。
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/calendar-assistant/internal/drafting"
	"github.com/hitoshi/calendar-assistant/internal/intent"
	"github.com/hitoshi/calendar-assistant/internal/model"
	"github.com/hitoshi/calendar-assistant/internal/repository"
)

// MaxMessageLength はユーザー発話の最大文字数（rune数）。
const MaxMessageLength = 4000

// DefaultHistoryLimit は返信生成に渡す直近メッセージ数。
const DefaultHistoryLimit = 20

// ConversationListLimit は会話一覧の最大件数。
const ConversationListLimit = 50

// ターンの結果ラベル。
const (
	OutcomeCompleted      = "completed"
	OutcomeAborted        = "aborted"
	OutcomeDraftFailed    = "draft_failed"
	OutcomeReauthRequired = "reauth_required"
	OutcomeFailed         = "failed"
)

// IntentExtractor は発話からカレンダー操作の意図を抽出する。
type IntentExtractor interface {
	Extract(utterance string, now time.Time) intent.Result
}

// CredentialProvider は有効な資格情報を返す。
type CredentialProvider interface {
	GetValid(ctx context.Context, userID string) (*model.Credential, error)
}

// CalendarGateway はカレンダーの照会・作成を行う。
type CalendarGateway interface {
	ListEvents(ctx context.Context, cred *model.Credential, timeMin, timeMax time.Time, query string) ([]model.Event, error)
	CreateEvent(ctx context.Context, cred *model.Credential, in model.EventInput) (*model.Event, error)
}

// TurnObserver はターンの結果と返信生成時間を受け取る。
type TurnObserver interface {
	RecordChatTurn(outcome string)
	RecordDraftLatency(drafter string, d time.Duration)
}

// Turn は1回のユーザー発話。
type Turn struct {
	UserID string
	// ConversationID が空の場合は新しい会話を作成する。
	ConversationID string
	Message        string
}

// Deps はServiceの依存。
type Deps struct {
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Intents       IntentExtractor
	Credentials   CredentialProvider
	Calendar      CalendarGateway
	Drafter       drafting.Drafter
	Observer      TurnObserver
}

// Service は対話のオーケストレーター。リクエスト間で可変状態を共有しない。
type Service struct {
	convRepo     repository.ConversationRepository
	msgRepo      repository.MessageRepository
	intents      IntentExtractor
	credentials  CredentialProvider
	calendar     CalendarGateway
	drafter      drafting.Drafter
	observer     TurnObserver
	historyLimit int
	timeZone     string
	now          func() time.Time
}

// NewService はServiceを生成する。historyLimitが0以下の場合はDefaultHistoryLimitを使う。
func NewService(deps Deps, historyLimit int, timeZone string) *Service {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Service{
		convRepo:     deps.Conversations,
		msgRepo:      deps.Messages,
		intents:      deps.Intents,
		credentials:  deps.Credentials,
		calendar:     deps.Calendar,
		drafter:      deps.Drafter,
		observer:     deps.Observer,
		historyLimit: historyLimit,
		timeZone:     timeZone,
		now:          time.Now,
	}
}

// SetClock はテスト用に現在時刻の取得関数を差し替える。
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// sinkError はSinkの送信失敗を表す。クライアント切断として扱う。
type sinkError struct{ err error }

func (e *sinkError) Error() string { return "sink: " + e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

// Handle は1ターンを処理してフレームをsinkへ送る。
//
// statusを送る前の失敗（入力不正、会話が見つからない、保存失敗）はエラーとして返し、
// フレームは送らない。statusを送った後は、doneまたはerrorのどちらか1つで必ず終わる。
// ただしクライアント切断（ctxのキャンセルまたはSinkの失敗）の場合は何も送らずに
// エラーを返し、アシスタント発話は保存しない。
func (s *Service) Handle(ctx context.Context, turn Turn, sink Sink) error {
	text := strings.TrimSpace(turn.Message)
	if text == "" {
		return model.NewInvalidRequestError("message is required")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return model.NewInvalidRequestError(fmt.Sprintf("message must be at most %d characters", MaxMessageLength))
	}

	conv, err := s.resolveConversation(ctx, turn.UserID, turn.ConversationID)
	if err != nil {
		return err
	}

	userMsg := &model.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: text}
	if err := s.msgRepo.Append(ctx, userMsg); err != nil {
		return fmt.Errorf("failed to save user message: %w", err)
	}

	logger := slog.With(
		slog.String("user_id", turn.UserID),
		slog.String("conversation_id", conv.ID),
	)

	outcome := s.run(ctx, logger, turn.UserID, conv, text, sink)
	s.recordTurn(outcome.label)
	return outcome.err
}

type turnOutcome struct {
	label string
	err   error
}

func (s *Service) run(ctx context.Context, logger *slog.Logger, userID string, conv *model.Conversation, text string, sink Sink) turnOutcome {
	if err := sink.Send(statusFrame(StatusThinking)); err != nil {
		return s.aborted(logger, &sinkError{err})
	}

	now := s.now()
	result := s.intents.Extract(text, now)

	hint, createdEventID, err := s.consultCalendar(ctx, logger, userID, result)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.aborted(logger, ctxErr)
		}
		return s.fail(logger, sink, OutcomeReauthRequired, err)
	}

	history, err := s.msgRepo.ListRecent(ctx, conv.ID, s.historyLimit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.aborted(logger, ctxErr)
		}
		return s.fail(logger, sink, OutcomeFailed, fmt.Errorf("failed to load history: %w", err))
	}

	emit := func(ch drafting.Chunk) error {
		fr := deltaFrame(ch.Text)
		if ch.Kind == drafting.ChunkTool {
			fr = toolFrame(ch.Text)
		}
		if err := sink.Send(fr); err != nil {
			return &sinkError{err}
		}
		return nil
	}

	started := time.Now()
	draft, err := s.drafter.Draft(ctx, drafting.Request{
		History:  history,
		Hint:     hint,
		Now:      now,
		TimeZone: s.timeZone,
	}, emit)
	if s.observer != nil {
		s.observer.RecordDraftLatency(s.drafter.Name(), time.Since(started))
	}
	if err != nil {
		var se *sinkError
		if errors.As(err, &se) {
			return s.aborted(logger, se)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.aborted(logger, ctxErr)
		}
		if !errors.Is(err, model.ErrDraftingFailure) {
			err = fmt.Errorf("%w: %v", model.ErrDraftingFailure, err)
		}
		return s.fail(logger, sink, OutcomeDraftFailed, err)
	}

	reply := draft.Text
	if strings.TrimSpace(reply) == "" {
		// モデルが関数呼び出しのみを返した場合はヒントの要約を返信とする
		reply = drafting.Confirmation(hint)
		if reply == "" {
			return s.fail(logger, sink, OutcomeDraftFailed, fmt.Errorf("%w: empty reply", model.ErrDraftingFailure))
		}
		if err := emit(drafting.Chunk{Kind: drafting.ChunkDelta, Text: reply}); err != nil {
			return s.aborted(logger, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return s.aborted(logger, err)
	}
	assistantMsg := &model.Message{ConversationID: conv.ID, Role: model.RoleAssistant, Content: reply}
	if err := s.msgRepo.Append(ctx, assistantMsg); err != nil {
		return s.fail(logger, sink, OutcomeFailed, fmt.Errorf("failed to save assistant message: %w", err))
	}

	if err := sink.Send(doneFrame(Done{ConversationID: conv.ID, CreatedEventID: createdEventID})); err != nil {
		logger.Warn("doneイベントの送信に失敗しました", slog.String("error", err.Error()))
	}
	return turnOutcome{label: OutcomeCompleted}
}

// consultCalendar は意図に応じてカレンダーを照会・作成し、返信生成用のヒントを返す。
// 再認可が必要な場合のみエラーを返し、それ以外の失敗はUnavailableHintに落とす。
func (s *Service) consultCalendar(ctx context.Context, logger *slog.Logger, userID string, result intent.Result) (drafting.Hint, string, error) {
	if !result.NeedsCalendar() {
		return nil, "", nil
	}

	cred, err := s.credentials.GetValid(ctx, userID)
	if err != nil {
		return s.degrade(ctx, logger, "資格情報の取得に失敗しました", err)
	}

	switch result.Kind {
	case intent.KindTimeWindow:
		w := result.Window
		events, err := s.calendar.ListEvents(ctx, cred, w.Start, w.End, w.Query)
		if err != nil {
			return s.degrade(ctx, logger, "予定の取得に失敗しました", err)
		}
		return drafting.EventListHint{Start: w.Start, End: w.End, Query: w.Query, Events: events}, "", nil

	case intent.KindNewEvent:
		ev := result.Event
		created, err := s.calendar.CreateEvent(ctx, cred, model.EventInput{
			Title:    ev.Title,
			Start:    ev.Start,
			End:      ev.End,
			TimeZone: ev.TimeZone,
		})
		if err != nil {
			return s.degrade(ctx, logger, "予定の作成に失敗しました", err)
		}
		logger.Info("予定を作成しました", slog.String("event_id", created.ID))
		return drafting.CreatedEventHint{Event: *created}, created.ID, nil
	}
	return nil, "", nil
}

func (s *Service) degrade(ctx context.Context, logger *slog.Logger, msg string, err error) (drafting.Hint, string, error) {
	if errors.Is(err, model.ErrReauthRequired) {
		return nil, "", err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, "", ctxErr
	}
	logger.Warn(msg, slog.String("error", err.Error()))
	return drafting.UnavailableHint{NotConnected: errors.Is(err, model.ErrNotConnected)}, "", nil
}

// fail はerrorフレームを送ってターンを終える。
func (s *Service) fail(logger *slog.Logger, sink Sink, label string, err error) turnOutcome {
	logger.Error("チャットターンが失敗しました",
		slog.String("outcome", label),
		slog.String("error", err.Error()),
	)
	if sendErr := sink.Send(errorFrame(err)); sendErr != nil {
		return turnOutcome{label: OutcomeAborted, err: &sinkError{sendErr}}
	}
	return turnOutcome{label: label}
}

func (s *Service) aborted(logger *slog.Logger, err error) turnOutcome {
	logger.Info("クライアントが切断したためターンを中断しました", slog.String("error", err.Error()))
	return turnOutcome{label: OutcomeAborted, err: err}
}

func (s *Service) recordTurn(label string) {
	if s.observer != nil {
		s.observer.RecordChatTurn(label)
	}
}

func (s *Service) resolveConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		conv := &model.Conversation{UserID: userID, Title: model.DefaultConversationTitle}
		if err := s.convRepo.Create(ctx, conv); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		return conv, nil
	}

	conv, err := s.convRepo.FindByIDAndUserID(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrConversationNotFound, conversationID)
	}
	return conv, nil
}

// History は会話の全メッセージをSeq昇順で返す。
func (s *Service) History(ctx context.Context, userID, conversationID string) ([]*model.Message, error) {
	conv, err := s.convRepo.FindByIDAndUserID(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrConversationNotFound, conversationID)
	}
	msgs, err := s.msgRepo.ListByConversationID(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// ListConversations はユーザーの会話を新しい順に返す。
func (s *Service) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	convs, err := s.convRepo.ListByUserID(ctx, userID, ConversationListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}
