package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChatRequest is the generic chat payload accepted by every pipe.
type ChatRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	System         string         `json:"system,omitempty"`
	Stream         *bool          `json:"stream,omitempty"`
	Temperature    *float64       `json:"temperature,omitempty"`
	TopP           *float64       `json:"top_p,omitempty"`
	TopK           *int           `json:"top_k,omitempty"`
	MaxTokens      *int           `json:"max_tokens,omitempty"`
	Tools          []Tool         `json:"tools,omitempty"`
	ToolChoice     any            `json:"tool_choice,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Streaming reports the stream flag, falling back to def when it was not sent.
func (r *ChatRequest) Streaming(def bool) bool {
	if r == nil || r.Stream == nil {
		return def
	}
	return *r.Stream
}

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"-"`
}

// Text concatenates the text blocks of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, block := range m.Content {
		if t, ok := block.(TextBlock); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// NewTextMessage builds a message with a single text block.
func NewTextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{TextBlock{Text: text}}}
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// UnmarshalJSON accepts content either as a string or as a list of typed blocks.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = strings.ToLower(strings.TrimSpace(raw.Role))
	m.Content = nil

	trimmed := strings.TrimSpace(string(raw.Content))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.Content, &s); err == nil {
		m.Content = []ContentBlock{TextBlock{Text: s}}
		return nil
	}
	var blocks []rawBlock
	if err := json.Unmarshal(raw.Content, &blocks); err != nil {
		return fmt.Errorf("invalid message content for role %q", m.Role)
	}
	for _, rb := range blocks {
		if block, ok := rb.toBlock(); ok {
			m.Content = append(m.Content, block)
		}
	}
	return nil
}

// Tool is a function tool definition in OpenAI shape.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// UnmarshalJSON accepts {"type":"function","function":{...}} or the flat form.
func (t *Tool) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type        string `json:"type"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Parameters  any    `json:"parameters"`
		InputSchema any    `json:"input_schema"`
		Function    *struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Parameters  any    `json:"parameters"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Function != nil {
		t.Name = raw.Function.Name
		t.Description = raw.Function.Description
		t.Parameters = raw.Function.Parameters
		return nil
	}
	t.Name = raw.Name
	t.Description = raw.Description
	t.Parameters = raw.Parameters
	if t.Parameters == nil {
		t.Parameters = raw.InputSchema
	}
	return nil
}

// CacheMetrics are the token counters of a non-streaming Anthropic response.
type CacheMetrics struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}
