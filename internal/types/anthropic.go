package types

import "encoding/json"

// AnthropicPayload is the body sent to the Messages API. Optional fields are
// pointers so absent values never reach the wire.
type AnthropicPayload struct {
	Model       string             `json:"model"`
	Messages    []AnthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopK        *int               `json:"top_k,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream"`
	Metadata    *AnthropicMetadata `json:"metadata,omitempty"`
	Thinking    *AnthropicThinking `json:"thinking,omitempty"`
	Tools       []AnthropicTool    `json:"tools,omitempty"`
	ToolChoice  map[string]any     `json:"tool_choice,omitempty"`
}

type AnthropicMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

type AnthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// AnthropicMessage is a single user/assistant turn on the wire.
type AnthropicMessage struct {
	Role    string             `json:"role"`
	Content []AnthropicContent `json:"content"`
}

// AnthropicContent is a request content block.
type AnthropicContent struct {
	Type         string           `json:"type"`
	Text         string           `json:"text,omitempty"`
	Source       *AnthropicSource `json:"source,omitempty"`
	ID           string           `json:"id,omitempty"`
	Name         string           `json:"name,omitempty"`
	Input        any              `json:"input,omitempty"`
	ToolUseID    string           `json:"tool_use_id,omitempty"`
	Content      any              `json:"content,omitempty"`
	IsError      bool             `json:"is_error,omitempty"`
	CacheControl map[string]any   `json:"cache_control,omitempty"`
}

type AnthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// AnthropicTool is a Messages API tool definition.
type AnthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

// AnthropicResponse is the non-streaming Messages API response.
type AnthropicResponse struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Role       string           `json:"role"`
	Model      string           `json:"model"`
	Content    []AnthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      AnthropicUsage   `json:"usage"`
}

// AnthropicBlock is a response content block, also used by content_block_start.
type AnthropicBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
}

// AnthropicUsage holds Messages API usage counters.
type AnthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// Metrics converts usage counters into CacheMetrics.
func (u AnthropicUsage) Metrics() CacheMetrics {
	return CacheMetrics(u)
}

// AnthropicStreamEvent is one decoded frame of a Messages API stream.
type AnthropicStreamEvent struct {
	Type         string           `json:"type"`
	Index        int              `json:"index"`
	ContentBlock *AnthropicBlock  `json:"content_block,omitempty"`
	Delta        *AnthropicDelta  `json:"delta,omitempty"`
	Error        *AnthropicAPIErr `json:"error,omitempty"`
}

type AnthropicDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type AnthropicAPIErr struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
