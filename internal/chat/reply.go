package chat

import (
	"context"
	"errors"
	"strings"
)

// Reply は非ストリーミングの応答。
type Reply struct {
	Text           string `json:"reply"`
	ConversationID string `json:"conversation_id"`
	CreatedEventID string `json:"created_event_id,omitempty"`
}

// errIncompleteTurn はdoneもerrorも届かずにターンが終わったことを示す。
var errIncompleteTurn = errors.New("turn ended without a terminal frame")

// Reply はHandleと同じ処理を行い、フレームを集約して返す。
// errorフレームで終わった場合はそのエラーを返す。
func (s *Service) Reply(ctx context.Context, turn Turn) (*Reply, error) {
	var (
		text     strings.Builder
		done     *Done
		frameErr error
	)
	sink := SinkFunc(func(f Frame) error {
		switch f.Event {
		case EventDelta:
			text.WriteString(f.Data)
		case EventDone:
			done = f.Done
		case EventError:
			frameErr = f.Err
		}
		return nil
	})

	if err := s.Handle(ctx, turn, sink); err != nil {
		return nil, err
	}
	if frameErr != nil {
		return nil, frameErr
	}
	if done == nil {
		return nil, errIncompleteTurn
	}
	return &Reply{Text: text.String(), ConversationID: done.ConversationID, CreatedEventID: done.CreatedEventID}, nil
}
