package codec

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/n0madic/go-chatpipe/internal/jsonx"
	"github.com/n0madic/go-chatpipe/internal/types"
)

// ChatEncoder encodes pipe output in OpenAI Chat Completions format. One
// encoder serves one response.
type ChatEncoder struct {
	ID      string
	Model   string
	Created int64

	sentRole  bool
	toolIndex int
}

func NewChatEncoder(model string) *ChatEncoder {
	return &ChatEncoder{
		ID:      "chatcmpl-" + uuid.NewString(),
		Model:   model,
		Created: time.Now().Unix(),
	}
}

// Completion builds a non-streaming response. A tool call envelope wins over
// text and finishes with tool_calls.
func (e *ChatEncoder) Completion(text string, env *types.ToolCallEnvelope) openai.ChatCompletionResponse {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}
	finish := openai.FinishReasonStop
	if env != nil && len(env.ToolCalls) > 0 {
		msg.Content = ""
		msg.ToolCalls = toolCalls(env, nil)
		finish = openai.FinishReasonToolCalls
	}
	return openai.ChatCompletionResponse{
		ID:      e.ID,
		Object:  "chat.completion",
		Created: e.Created,
		Model:   e.Model,
		Choices: []openai.ChatCompletionChoice{{Index: 0, Message: msg, FinishReason: finish}},
	}
}

// Delta converts one text or tool call chunk into a stream response. The
// first delta carries the assistant role.
func (e *ChatEncoder) Delta(c types.Chunk) openai.ChatCompletionStreamResponse {
	var delta openai.ChatCompletionStreamChoiceDelta
	if !e.sentRole {
		delta.Role = openai.ChatMessageRoleAssistant
		e.sentRole = true
	}
	switch c.Kind {
	case types.ChunkToolCalls:
		delta.ToolCalls = toolCalls(c.ToolCalls, &e.toolIndex)
	default:
		delta.Content = c.Text
	}
	return e.streamResponse(delta, "")
}

// Stop is the final stream response carrying the finish reason.
func (e *ChatEncoder) Stop() openai.ChatCompletionStreamResponse {
	finish := openai.FinishReasonStop
	if e.toolIndex > 0 {
		finish = openai.FinishReasonToolCalls
	}
	return e.streamResponse(openai.ChatCompletionStreamChoiceDelta{}, finish)
}

func (e *ChatEncoder) streamResponse(delta openai.ChatCompletionStreamChoiceDelta, finish openai.FinishReason) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		ID:      e.ID,
		Object:  "chat.completion.chunk",
		Created: e.Created,
		Model:   e.Model,
		Choices: []openai.ChatCompletionStreamChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

func toolCalls(env *types.ToolCallEnvelope, next *int) []openai.ToolCall {
	if env == nil {
		return nil
	}
	out := make([]openai.ToolCall, 0, len(env.ToolCalls))
	for _, tc := range env.ToolCalls {
		call := openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
		if next != nil {
			idx := *next
			call.Index = &idx
			*next++
		}
		out = append(out, call)
	}
	return out
}

// SSEWriter writes server-sent events and flushes after each one. Writes
// after a failed write are dropped.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	failed  bool
}

func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: f}
}

// WriteStreamHeaders sends the event-stream headers with statusCode.
func (s *SSEWriter) WriteStreamHeaders(statusCode int) {
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(statusCode)
}

// Data writes v as an unnamed data frame.
func (s *SSEWriter) Data(v any) bool { return s.Event("", v) }

// Event writes v as a frame named name. It reports whether the client is
// still connected.
func (s *SSEWriter) Event(name string, v any) bool {
	data, err := jsonx.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal SSE chunk", "error", err)
		return !s.Failed()
	}
	frame := fmt.Sprintf("data: %s\n\n", data)
	if name != "" {
		frame = "event: " + name + "\n" + frame
	}
	return s.write(frame)
}

// Done writes the terminating [DONE] frame.
func (s *SSEWriter) Done() bool { return s.write("data: [DONE]\n\n") }

func (s *SSEWriter) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

func (s *SSEWriter) write(frame string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return false
	}
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		slog.Debug("client disconnected during SSE write", "error", err)
		s.failed = true
		return false
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return true
}
