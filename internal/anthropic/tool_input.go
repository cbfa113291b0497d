// Package anthropic holds tool input helpers shared by request parsing and
// the Messages API translator.
package anthropic

import (
	"encoding/json"
	"strings"
)

// FirstToolInput returns the first candidate carrying tool arguments.
// Nil values and blank string placeholders are skipped.
func FirstToolInput(candidates ...any) any {
	for _, v := range candidates {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

// ToolInput shapes tool arguments as the JSON object tool_use.input expects.
// A JSON string is parsed; a string that is not an object is wrapped as
// {"input": s}.
func ToolInput(args any) any {
	switch v := args.(type) {
	case nil:
		return map[string]any{}
	case string:
		if strings.TrimSpace(v) == "" {
			return map[string]any{}
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(v), &obj); err == nil && obj != nil {
			return obj
		}
		return map[string]any{"input": v}
	case json.RawMessage:
		return ToolInput(string(v))
	default:
		return v
	}
}
