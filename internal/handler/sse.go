package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/calendar-assistant/internal/chat"
)

// sseWriter はchat.Frameをtext/event-streamとして書き出すchat.Sink。
// ヘッダーは最初のフレームを送るときに確定するため、
// それまではJSONのエラーレスポンスを返すことができる。
type sseWriter struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
	started      bool
}

func newSSEWriter(w http.ResponseWriter, writeTimeout time.Duration) *sseWriter {
	return &sseWriter{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
	}
}

// Send は1フレームを書き出してフラッシュする。
func (s *sseWriter) Send(f chat.Frame) error {
	payload, err := framePayload(f)
	if err != nil {
		return err
	}

	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	if s.writeTimeout > 0 {
		if err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if err := writeEvent(s.w, f.Event, payload); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

var _ chat.Sink = (*sseWriter)(nil)

// writeEvent は`event: <name>`に続けてpayloadを行ごとの`data:`として書き出す。
func writeEvent(w io.Writer, event, payload string) error {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	for _, line := range strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// framePayload はdoneとerrorをJSON、それ以外を文字列のまま返す。
func framePayload(f chat.Frame) (string, error) {
	switch f.Event {
	case chat.EventDone:
		if f.Done == nil {
			return "", errors.New("done frame without payload")
		}
		b, err := json.Marshal(f.Done)
		if err != nil {
			return "", fmt.Errorf("failed to encode done frame: %w", err)
		}
		return string(b), nil
	case chat.EventError:
		b, err := json.Marshal(errorBody(f.Err))
		if err != nil {
			return "", fmt.Errorf("failed to encode error frame: %w", err)
		}
		return string(b), nil
	default:
		return f.Data, nil
	}
}
