package codec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

// Category classifies every failure the relay can surface.
type Category string

const (
	ConfigurationError Category = "ConfigurationError"
	ValidationError    Category = "ValidationError"
	UpstreamError      Category = "UpstreamError"
	RetryExhausted     Category = "RetryExhausted"
	TimeoutError       Category = "TimeoutError"
	TransportError     Category = "TransportError"
	DecodeError        Category = "DecodeError"
)

// Error is the single error surface of the relay.
type Error struct {
	Category  Category
	Message   string
	RequestID string
	// Status is the upstream HTTP status for UpstreamError, zero otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Category) + ": " + e.Message
	if e.RequestID != "" {
		msg += " (request_id: " + e.RequestID + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given category.
func Errorf(category Category, format string, args ...any) *Error {
	return &Error{Category: category, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given category keeping err as the cause.
func Wrap(category Category, err error, message string) *Error {
	if message == "" && err != nil {
		message = err.Error()
	} else if err != nil {
		message = message + ": " + err.Error()
	}
	return &Error{Category: category, Message: message, Err: err}
}

// Upstream builds an UpstreamError from a non-2xx response.
func Upstream(statusCode int, rawBody []byte, headers http.Header) *Error {
	return &Error{
		Category:  UpstreamError,
		Message:   FormatUpstreamError(statusCode, rawBody),
		RequestID: ExtractUpstreamRequestID(headers),
		Status:    statusCode,
	}
}

// Normalize converts any error into an *Error.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var headers http.Header
		if apiErr.Response != nil {
			headers = apiErr.Response.Header
		}
		out := Upstream(apiErr.StatusCode, []byte(apiErr.RawJSON()), headers)
		out.Err = err
		return out
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(TimeoutError, err, "request timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(TimeoutError, err, "request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(TransportError, err, "request cancelled")
	}
	return Wrap(TransportError, err, "")
}

// HTTPStatus maps an error category to the status the HTTP surfaces reply with.
func HTTPStatus(e *Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Category {
	case ConfigurationError, ValidationError:
		return http.StatusBadRequest
	case UpstreamError:
		if e.Status >= 400 && e.Status < 600 {
			return e.Status
		}
		return http.StatusBadGateway
	case RetryExhausted:
		return http.StatusTooManyRequests
	case TimeoutError:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// FormatUpstreamError formats an error from the upstream response.
func FormatUpstreamError(statusCode int, rawBody []byte) string {
	status := fmt.Sprintf("%d", statusCode)
	if text := http.StatusText(statusCode); text != "" {
		status = fmt.Sprintf("%d %s", statusCode, text)
	}
	if msg := ExtractUpstreamErrorMessage(rawBody); msg != "" {
		return fmt.Sprintf("HTTP %s: %s", status, compactBodyPreview([]byte(msg), 280))
	}
	if preview := compactBodyPreview(rawBody, 280); preview != "" {
		return fmt.Sprintf("HTTP %s: %s", status, preview)
	}
	return fmt.Sprintf("HTTP %s with empty error body", status)
}

// ExtractUpstreamErrorMessage extracts the error message from an upstream error body.
func ExtractUpstreamErrorMessage(rawBody []byte) string {
	trimmed := strings.TrimSpace(string(rawBody))
	if trimmed == "" {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return ""
	}
	return extractErrorMessageFromMap(payload)
}

func extractErrorMessageFromMap(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	for _, key := range []string{"message", "detail", "error_description", "title", "reason"} {
		if v, ok := payload[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if nested, ok := payload["error"].(map[string]any); ok {
		if msg := extractErrorMessageFromMap(nested); msg != "" {
			return msg
		}
	}
	if v, ok := payload["error"].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if list, ok := payload["errors"].([]any); ok {
		for _, item := range list {
			if entry, ok := item.(map[string]any); ok {
				if msg := extractErrorMessageFromMap(entry); msg != "" {
					return msg
				}
			}
			if v, ok := item.(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

func compactBodyPreview(rawBody []byte, maxLen int) string {
	trimmed := strings.TrimSpace(string(rawBody))
	if trimmed == "" {
		return ""
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	if len(clean) <= maxLen {
		return clean
	}
	return clean[:maxLen] + "..."
}

// ExtractUpstreamRequestID returns the first correlation id header present.
func ExtractUpstreamRequestID(headers http.Header) string {
	if headers == nil {
		return ""
	}
	for _, key := range []string{"x-request-id", "request-id", "x-openai-request-id", "openai-request-id", "cf-ray"} {
		if v := strings.TrimSpace(headers.Get(key)); v != "" {
			return v
		}
	}
	return ""
}
