package drafting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hitoshi/calendar-assistant/internal/model"
)

// SystemPrompt はモデルに渡す指示。
const SystemPrompt = "You are a calendar assistant. If the user asks about events, call the 'get_events' tool. " +
	"If they ask to add something, call 'create_event'. Always confirm in natural language."

// DefaultTemperature は返信生成の温度。
const DefaultTemperature = 0.3

// errEmptyResponse はモデルが候補を返さなかったことを示す。
var errEmptyResponse = errors.New("empty response from model")

// LLMDrafter はlangchaingoのllms.Modelで返信をストリーミング生成する。
type LLMDrafter struct {
	model       llms.Model
	temperature float64
}

// NewLLMDrafter はLLMDrafterを生成する。
func NewLLMDrafter(m llms.Model, temperature float64) *LLMDrafter {
	return &LLMDrafter{model: m, temperature: temperature}
}

// NewOpenAIModel はOpenAI互換APIのモデルを生成する。baseURLは空の場合デフォルトを使う。
func NewOpenAIModel(apiKey, baseURL, modelName string) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(modelName),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai model: %w", err)
	}
	return m, nil
}

// Name は実装名を返す。
func (d *LLMDrafter) Name() string { return "llm" }

// Draft は履歴とヒントからメッセージを組み立ててモデルを呼び出す。
// 本文はストリーミングでemitし、関数呼び出しの引数はChunkToolとしてemitする。
func (d *LLMDrafter) Draft(ctx context.Context, req Request, emit EmitFunc) (*Draft, error) {
	var (
		text       strings.Builder
		toolStream bool
		emitErr    error
	)
	stream := func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		c := Chunk{Kind: ChunkDelta, Text: string(chunk)}
		if args, ok := toolArguments(chunk); ok {
			toolStream = true
			if args == "" {
				return nil
			}
			c = Chunk{Kind: ChunkTool, Text: args}
		}
		if err := emit(c); err != nil {
			emitErr = err
			return err
		}
		if c.Kind == ChunkDelta {
			text.Write(chunk)
		}
		return nil
	}

	resp, err := d.model.GenerateContent(ctx, BuildMessages(req),
		llms.WithTemperature(d.temperature),
		llms.WithTools(Tools()),
		llms.WithStreamingFunc(stream),
	)
	if emitErr != nil {
		return nil, emitErr
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", model.ErrDraftingFailure, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %v", model.ErrDraftingFailure, errEmptyResponse)
	}

	choice := resp.Choices[0]
	draft := &Draft{Text: text.String()}

	// ストリーミング非対応のモデルは本文をまとめて返す
	if draft.Text == "" && choice.Content != "" {
		if err := emit(Chunk{Kind: ChunkDelta, Text: choice.Content}); err != nil {
			return nil, err
		}
		draft.Text = choice.Content
	}

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		call := ToolCall{Name: tc.FunctionCall.Name, Arguments: tc.FunctionCall.Arguments}
		// ストリーミング済みの引数は再送しない
		if !toolStream {
			if err := emit(Chunk{Kind: ChunkTool, Text: call.Arguments}); err != nil {
				return nil, err
			}
		}
		draft.ToolCalls = append(draft.ToolCalls, call)
	}
	return draft, nil
}

// streamedToolCall はストリーミング中に渡される関数呼び出し断片のJSON表現。
type streamedToolCall struct {
	Function *struct {
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// toolArguments はストリーミング断片が関数呼び出しの差分であれば、その引数断片を返す。
// 本文の断片であればfalseを返す。
func toolArguments(chunk []byte) (string, bool) {
	if chunk[0] != '[' {
		return "", false
	}
	var calls []streamedToolCall
	if err := json.Unmarshal(chunk, &calls); err != nil || len(calls) == 0 {
		return "", false
	}
	var b strings.Builder
	for _, c := range calls {
		if c.Function == nil {
			return "", false
		}
		b.WriteString(c.Function.Arguments)
	}
	return b.String(), true
}

// BuildMessages はシステム指示、ヒント、履歴の順にメッセージを組み立てる。
func BuildMessages(req Request) []llms.MessageContent {
	system := SystemPrompt
	if !req.Now.IsZero() {
		system += fmt.Sprintf("\nCurrent time: %s.", req.Now.Format("Monday, 2 January 2006 15:04 MST"))
	}
	if req.TimeZone != "" {
		system += fmt.Sprintf(" The user's timezone is %s.", req.TimeZone)
	}

	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, system)}
	if req.Hint != nil {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, "Tool results:\n"+req.Hint.Summary()))
	}
	for _, m := range req.History {
		msgs = append(msgs, llms.TextParts(messageType(m.Role), m.Content))
	}
	return msgs
}

func messageType(role model.Role) llms.ChatMessageType {
	switch role {
	case model.RoleAssistant:
		return llms.ChatMessageTypeAI
	case model.RoleSystem:
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}

// Tools はモデルに提示する関数定義を返す。
func Tools() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "get_events",
				Description: "List events in a time window",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"timeMin": map[string]any{"type": "string", "description": "RFC3339"},
						"timeMax": map[string]any{"type": "string", "description": "RFC3339"},
						"query":   map[string]any{"type": "string"},
					},
					"required": []string{},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "create_event",
				Description: "Create a calendar event",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":     map[string]any{"type": "string"},
						"start_iso": map[string]any{"type": "string"},
						"end_iso":   map[string]any{"type": "string"},
						"timezone":  map[string]any{"type": "string"},
						"attendees": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required": []string{"title", "start_iso", "end_iso", "timezone"},
				},
			},
		},
	}
}

var _ Drafter = (*LLMDrafter)(nil)
