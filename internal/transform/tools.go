package transform

import (
	"strings"

	"github.com/n0madic/go-chatpipe/internal/types"
)

// ToolsToAnthropic converts OpenAI-format function tools to Messages API tools.
func ToolsToAnthropic(tools []types.Tool) []types.AnthropicTool {
	var out []types.AnthropicTool
	for _, t := range tools {
		if strings.TrimSpace(t.Name) == "" {
			continue
		}
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, types.AnthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: params,
		})
	}
	return out
}

// ToolChoiceToAnthropic maps an OpenAI tool_choice value to the Messages API
// form. A nil result means the field is omitted.
func ToolChoiceToAnthropic(choice any) map[string]any {
	if choice == nil {
		return nil
	}
	if s, ok := choice.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "none":
			return map[string]any{"type": "none"}
		case "required", "any":
			return map[string]any{"type": "any"}
		default:
			return map[string]any{"type": "auto"}
		}
	}
	m, ok := choice.(map[string]any)
	if !ok {
		return map[string]any{"type": "auto"}
	}

	kind, _ := m["type"].(string)
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "none":
		return map[string]any{"type": "none"}
	case "any", "required":
		return map[string]any{"type": "any"}
	case "function", "tool":
		name, _ := m["name"].(string)
		if fn, ok := m["function"].(map[string]any); ok {
			if n, ok := fn["name"].(string); ok {
				name = n
			}
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return map[string]any{"type": "any"}
		}
		return map[string]any{"type": "tool", "name": name}
	default:
		return map[string]any{"type": "auto"}
	}
}
