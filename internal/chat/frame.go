package chat

// ストリームのイベント名。
const (
	EventStatus = "status"
	EventDelta  = "delta"
	EventTool   = "tool"
	EventDone   = "done"
	EventError  = "error"
)

// StatusThinking はストリーム開始時に送るstatusの値。
const StatusThinking = "thinking"

// Done はdoneイベントのペイロード。
type Done struct {
	ConversationID string `json:"conversation_id"`
	CreatedEventID string `json:"created_event_id,omitempty"`
}

// Frame はクライアントへ送る1イベント。
// status・delta・toolはData、doneはDone、errorはErrを持つ。
type Frame struct {
	Event string
	Data  string
	Done  *Done
	Err   error
}

// Sink はフレームの送信先。エラーを返した場合、ターンは中断される。
type Sink interface {
	Send(Frame) error
}

// SinkFunc は関数をSinkとして扱うアダプター。
type SinkFunc func(Frame) error

// Send はfを呼び出す。
func (f SinkFunc) Send(fr Frame) error { return f(fr) }

func statusFrame(v string) Frame { return Frame{Event: EventStatus, Data: v} }
func deltaFrame(v string) Frame  { return Frame{Event: EventDelta, Data: v} }
func toolFrame(v string) Frame   { return Frame{Event: EventTool, Data: v} }
func doneFrame(d Done) Frame     { return Frame{Event: EventDone, Done: &d} }
func errorFrame(err error) Frame { return Frame{Event: EventError, Err: err} }
