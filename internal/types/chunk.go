package types

import "encoding/json"

// ChunkKind tags a Chunk.
type ChunkKind int

const (
	ChunkText ChunkKind = iota
	ChunkToolCalls
	ChunkError
)

func (k ChunkKind) String() string {
	switch k {
	case ChunkText:
		return "text"
	case ChunkToolCalls:
		return "tool_calls"
	case ChunkError:
		return "error"
	default:
		return "unknown"
	}
}

// Chunk is one outcome of a relayed stream. An error chunk is always the last one.
type Chunk struct {
	Kind      ChunkKind
	Text      string
	ToolCalls *ToolCallEnvelope
	Err       error
}

func TextChunk(text string) Chunk { return Chunk{Kind: ChunkText, Text: text} }

func ErrorChunk(err error) Chunk { return Chunk{Kind: ChunkError, Text: err.Error(), Err: err} }

func ToolCallChunk(env *ToolCallEnvelope) Chunk {
	return Chunk{Kind: ChunkToolCalls, Text: env.String(), ToolCalls: env}
}

// ToolCallEnvelope is the normalized tool-call output shared by every pipe.
type ToolCallEnvelope struct {
	Type      string     `json:"type"`
	ToolCalls []ToolCall `json:"tool_calls"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewToolCallEnvelope wraps calls into an envelope.
func NewToolCallEnvelope(calls ...ToolCall) *ToolCallEnvelope {
	return &ToolCallEnvelope{Type: "tool_calls", ToolCalls: calls}
}

// NewToolCall builds a function tool call; args must already be a JSON document.
func NewToolCall(id, name, args string) ToolCall {
	if args == "" {
		args = "{}"
	}
	return ToolCall{ID: id, Type: "function", Function: ToolFunction{Name: name, Arguments: args}}
}

func (e *ToolCallEnvelope) String() string {
	if e == nil {
		return ""
	}
	b, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(b)
}
