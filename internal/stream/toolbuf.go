package stream

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/n0madic/go-chatpipe/internal/types"
)

// MaxToolArgBufSize is the upper bound (in bytes) for buffered argument
// fragments per tool call.
const MaxToolArgBufSize = 1 << 20 // 1 MB

type pendingTool struct {
	id   string
	name string
	args strings.Builder
}

// ToolBuffer reassembles tool calls whose input arrives as partial JSON
// fragments, keyed by content block index.
type ToolBuffer struct {
	pending map[int]*pendingTool
}

// NewToolBuffer creates a new empty ToolBuffer.
func NewToolBuffer() *ToolBuffer {
	return &ToolBuffer{pending: map[int]*pendingTool{}}
}

// Start registers a tool call at index whose arguments will follow.
func (tb *ToolBuffer) Start(index int, id, name string) {
	tb.pending[index] = &pendingTool{id: id, name: name}
}

// Append adds an argument fragment for the tool call at index.
func (tb *ToolBuffer) Append(index int, fragment string) {
	p, ok := tb.pending[index]
	if !ok || fragment == "" {
		return
	}
	if p.args.Len()+len(fragment) > MaxToolArgBufSize {
		slog.Warn("toolArgBuf size limit exceeded, dropping fragment", "index", index, "buf_len", p.args.Len(), "fragment_len", len(fragment))
		return
	}
	p.args.WriteString(fragment)
}

// Finish removes the tool call at index and returns it with normalized arguments.
func (tb *ToolBuffer) Finish(index int) (types.ToolCall, bool) {
	p, ok := tb.pending[index]
	if !ok {
		return types.ToolCall{}, false
	}
	delete(tb.pending, index)
	return types.NewToolCall(p.id, p.name, SerializeToolArgs(json.RawMessage(p.args.String()))), true
}

// IsEmptyToolArgs returns true if raw represents an empty/null value.
func IsEmptyToolArgs(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "{}" || trimmed == "null"
}

// SerializeToolArgs renders tool arguments as a compact JSON string. Invalid
// fragments are wrapped so the result is always a JSON object.
func SerializeToolArgs(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "{}"
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		b, _ := json.Marshal(map[string]any{"input": trimmed})
		return string(b)
	}
	b, _ := json.Marshal(parsed)
	return string(b)
}
