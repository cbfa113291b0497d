package codec

import (
	"log/slog"
	"net/http"

	"github.com/n0madic/go-chatpipe/internal/jsonx"
)

// ErrorDetail is the body of an OpenAI-format error.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
}

// ErrorResponse is the OpenAI-format error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	data, err := jsonx.Marshal(v)
	if err != nil {
		slog.Error("response.marshal.failed", "error", err)
		http.Error(w, `{"error":{"message":"Internal server error","type":"server_error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// WriteOpenAIError writes an OpenAI-format error response.
func WriteOpenAIError(w http.ResponseWriter, status int, errType, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	slog.Error("request failed", "status", status, "error", message)
	WriteJSON(w, status, ErrorResponse{Error: ErrorDetail{Message: message, Type: errType}})
}

// WriteError normalizes err and writes it with the status of its category.
func WriteError(w http.ResponseWriter, err error) {
	e := Normalize(err)
	status := HTTPStatus(e)
	WriteOpenAIError(w, status, ErrorType(e), e.Error())
}

// ErrorEnvelope builds the error body for e, as used in stream error frames.
func ErrorEnvelope(err error) ErrorResponse {
	e := Normalize(err)
	detail := ErrorDetail{Message: e.Error(), Type: ErrorType(e)}
	if e.Status != 0 {
		detail.Code = e.Status
	}
	return ErrorResponse{Error: detail}
}

// ErrorType maps a category to the OpenAI error type string.
func ErrorType(e *Error) string {
	if e == nil {
		return "server_error"
	}
	switch e.Category {
	case ValidationError, ConfigurationError:
		return "invalid_request_error"
	case RetryExhausted:
		return "rate_limit_error"
	case TimeoutError:
		return "timeout_error"
	case UpstreamError:
		return "upstream_error"
	default:
		return "api_error"
	}
}
