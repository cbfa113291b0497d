package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/jsonx"
)

const defaultSessionID = "s1"

// maxBodyBytes caps chat requests; the backend only takes text.
const maxBodyBytes = 1 << 20

type runRequest struct {
	AppName    string     `json:"appName"`
	UserID     string     `json:"userId"`
	SessionID  string     `json:"sessionId"`
	NewMessage runContent `json:"newMessage"`
}

type runContent struct {
	Role  string    `json:"role"`
	Parts []runPart `json:"parts"`
}

type runPart struct {
	Text string `json:"text"`
}

// httpError is a failure already mapped to a client-facing status.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

func badRequest(msg string) *httpError {
	return &httpError{status: http.StatusBadRequest, message: msg}
}
func badGateway(msg string) *httpError {
	return &httpError{status: http.StatusBadGateway, message: msg}
}

func writeHTTPError(c *gin.Context, e *httpError) {
	errType := "server_error"
	if e.status < http.StatusInternalServerError {
		errType = "invalid_request_error"
	}
	codec.WriteOpenAIError(c.Writer, e.status, errType, e.message)
}

func (b *Bridge) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.BackendURL+"/health", nil)
	if err == nil {
		var resp *http.Response
		if resp, err = b.client.Do(req); err == nil {
			resp.Body.Close()
		}
	}
	if err != nil {
		slog.Warn("bridge.health.failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "degraded", "backend": "disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "backend": "connected"})
}

func (b *Bridge) handleListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data": []openai.Model{{
			ID:         b.cfg.AppName,
			Object:     "model",
			OwnedBy:    "adk",
			Permission: []openai.Permission{},
		}},
	})
}

func (b *Bridge) handleChatCompletions(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeHTTPError(c, &httpError{status: http.StatusRequestEntityTooLarge, message: "Request body too large"})
			return
		}
		writeHTTPError(c, badRequest("Invalid JSON format"))
		return
	}
	run, herr := b.runRequest(body)
	if herr != nil {
		writeHTTPError(c, herr)
		return
	}
	events, herr := b.run(c.Request.Context(), run)
	if herr != nil {
		writeHTTPError(c, herr)
		return
	}
	text, id, herr := lastEventText(events)
	if herr != nil {
		writeHTTPError(c, herr)
		return
	}
	if id == "" {
		id = "chatcmpl-" + uuid.NewString()
	}
	codec.WriteJSON(c.Writer, http.StatusOK, openai.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   b.cfg.AppName,
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text},
			FinishReason: openai.FinishReasonStop,
		}},
	})
}

// runRequest validates an OpenAI chat body and packages its last message for
// the backend.
func (b *Bridge) runRequest(body []byte) (*runRequest, *httpError) {
	var payload map[string]any
	if err := jsonx.Unmarshal(body, &payload); err != nil || payload == nil {
		return nil, badRequest("Invalid JSON format")
	}
	messages, _ := payload["messages"].([]any)
	if len(messages) == 0 {
		return nil, badRequest("Missing or empty 'messages' field")
	}
	last, _ := messages[len(messages)-1].(map[string]any)
	content, ok := last["content"]
	if !ok {
		return nil, badRequest("Missing 'content' in last message")
	}
	text, ok := content.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, badRequest("Empty or invalid message content")
	}
	sessionID, _ := payload["session_id"].(string)
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	return &runRequest{
		AppName:    b.cfg.AppName,
		UserID:     b.cfg.UserID,
		SessionID:  sessionID,
		NewMessage: runContent{Role: "user", Parts: []runPart{{Text: text}}},
	}, nil
}

// run posts to the backend and returns its event list.
func (b *Bridge) run(ctx context.Context, run *runRequest) ([]any, *httpError) {
	data, err := jsonx.Marshal(run)
	if err != nil {
		return nil, &httpError{status: http.StatusInternalServerError, message: "Internal server error"}
	}
	url := b.cfg.BackendURL + "/run"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, &httpError{status: http.StatusInternalServerError, message: "Internal server error"}
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Info("bridge.run", "url", url, "session", run.SessionID)
	resp, err := b.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			slog.Error("bridge.run.timeout", "error", err)
			return nil, &httpError{status: http.StatusGatewayTimeout, message: "Backend request timed out"}
		}
		slog.Error("bridge.run.unavailable", "error", err)
		return nil, &httpError{status: http.StatusServiceUnavailable, message: "Backend service unavailable"}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("bridge.run.status", "status", resp.StatusCode)
		return nil, badGateway(fmt.Sprintf("Backend error: %d", resp.StatusCode))
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, &httpError{status: http.StatusGatewayTimeout, message: "Backend request timed out"}
		}
		return nil, badGateway("Invalid response from backend")
	}
	var decoded any
	if err := jsonx.Unmarshal(raw, &decoded); err != nil {
		slog.Error("bridge.run.decode", "error", err)
		return nil, badGateway("Invalid response from backend")
	}
	events, ok := decoded.([]any)
	if !ok || len(events) == 0 {
		return nil, badGateway("Invalid backend response format")
	}
	return events, nil
}

// lastEventText pulls content.parts[-1].text and the id of the last event.
func lastEventText(events []any) (string, string, *httpError) {
	malformed := badGateway("Malformed backend response")
	last, ok := events[len(events)-1].(map[string]any)
	if !ok {
		return "", "", malformed
	}
	content, ok := last["content"].(map[string]any)
	if !ok {
		return "", "", malformed
	}
	parts, ok := content["parts"].([]any)
	if !ok || len(parts) == 0 {
		return "", "", malformed
	}
	part, ok := parts[len(parts)-1].(map[string]any)
	if !ok {
		return "", "", malformed
	}
	text, ok := part["text"].(string)
	if !ok {
		return "", "", malformed
	}
	id, _ := last["id"].(string)
	return text, id, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
