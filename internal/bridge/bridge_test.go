package bridge

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/n0madic/go-chatpipe/internal/config"
)

func newTestBridge(t *testing.T, backendURL string) *Bridge {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return New(config.BridgeConfig{
		BackendURL: backendURL,
		AppName:    "adk2",
		UserID:     "u1",
		Timeout:    2 * time.Second,
	})
}

func post(b *Bridge, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Message
}

func TestChatCompletionsRun(t *testing.T) {
	var got runRequest
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/run" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode run payload: %v", err)
		}
		_, _ = w.Write([]byte(`[{"id":"e1","content":{"parts":[{"text":"thinking"}]}},{"id":"e2","content":{"parts":[{"text":"first"},{"text":"answer"}]}}]`))
	}))
	defer backend.Close()

	rec := post(newTestBridge(t, backend.URL), `{"model":"adk2","session_id":"abc","messages":[{"role":"user","content":"earlier"},{"role":"user","content":"question"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d %s", rec.Code, rec.Body.String())
	}
	if got.AppName != "adk2" || got.UserID != "u1" || got.SessionID != "abc" {
		t.Fatalf("unexpected run payload: %+v", got)
	}
	if got.NewMessage.Role != "user" || len(got.NewMessage.Parts) != 1 || got.NewMessage.Parts[0].Text != "question" {
		t.Fatalf("unexpected new message: %+v", got.NewMessage)
	}

	var body struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != "e2" || body.Object != "chat.completion" {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if c := body.Choices[0]; c.Message.Role != "assistant" || c.Message.Content != "answer" || c.FinishReason != "stop" {
		t.Fatalf("unexpected choice: %+v", c)
	}
}

func TestChatCompletionsDefaultSessionAndGeneratedID(t *testing.T) {
	var got runRequest
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`[{"content":{"parts":[{"text":"ok"}]}}]`))
	}))
	defer backend.Close()

	rec := post(newTestBridge(t, backend.URL), `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d %s", rec.Code, rec.Body.String())
	}
	if got.SessionID != defaultSessionID {
		t.Fatalf("session: got %q", got.SessionID)
	}
	if !strings.Contains(rec.Body.String(), `"id":"chatcmpl-`) {
		t.Fatalf("expected a generated id: %s", rec.Body.String())
	}
}

func TestChatCompletionsRequestValidation(t *testing.T) {
	var hits int
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer backend.Close()
	b := newTestBridge(t, backend.URL)

	tests := []struct {
		body string
		want string
	}{
		{`{`, "Invalid JSON format"},
		{`{}`, "Missing or empty 'messages' field"},
		{`{"messages":[]}`, "Missing or empty 'messages' field"},
		{`{"messages":[{"role":"user"}]}`, "Missing 'content' in last message"},
		{`{"messages":[{"role":"user","content":"   "}]}`, "Empty or invalid message content"},
		{`{"messages":[{"role":"user","content":[{"type":"text","text":"x"}]}]}`, "Empty or invalid message content"},
	}
	for _, tt := range tests {
		rec := post(b, tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status got %d", tt.body, rec.Code)
		}
		if got := errorMessage(t, rec); got != tt.want {
			t.Fatalf("%s: message got %q, want %q", tt.body, got, tt.want)
		}
	}
	if hits != 0 {
		t.Fatalf("invalid requests reached the backend %d times", hits)
	}
}

func TestChatCompletionsBodyLimit(t *testing.T) {
	var hits int
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer backend.Close()
	b := newTestBridge(t, backend.URL)

	body := `{"messages":[{"role":"user","content":"` + strings.Repeat("x", maxBodyBytes) + `"}]}`
	rec := post(b, body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	if got := errorMessage(t, rec); got != "Request body too large" {
		t.Fatalf("message: got %q", got)
	}
	if hits != 0 {
		t.Fatalf("oversized request reached the backend %d times", hits)
	}
}

func TestChatCompletionsBackendFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response string
		want     int
		wantMsg  string
	}{
		{"status", http.StatusInternalServerError, `oops`, http.StatusBadGateway, "Backend error: 500"},
		{"invalid json", http.StatusOK, `not json`, http.StatusBadGateway, "Invalid response from backend"},
		{"empty list", http.StatusOK, `[]`, http.StatusBadGateway, "Invalid backend response format"},
		{"not a list", http.StatusOK, `{"content":{}}`, http.StatusBadGateway, "Invalid backend response format"},
		{"no parts", http.StatusOK, `[{"content":{"parts":[]}}]`, http.StatusBadGateway, "Malformed backend response"},
		{"no content", http.StatusOK, `[{"id":"x"}]`, http.StatusBadGateway, "Malformed backend response"},
	}
	for _, tt := range tests {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, tt.response)
		}))
		rec := post(newTestBridge(t, backend.URL), `{"messages":[{"role":"user","content":"hi"}]}`)
		backend.Close()
		if rec.Code != tt.want {
			t.Fatalf("%s: status got %d, want %d", tt.name, rec.Code, tt.want)
		}
		if got := errorMessage(t, rec); got != tt.wantMsg {
			t.Fatalf("%s: message got %q, want %q", tt.name, got, tt.wantMsg)
		}
	}
}

func TestChatCompletionsBackendUnavailable(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := backend.URL
	backend.Close()

	rec := post(newTestBridge(t, url), `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestChatCompletionsBackendTimeout(t *testing.T) {
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer backend.Close()
	defer close(release)

	b := newTestBridge(t, backend.URL)
	b.client.Timeout = 50 * time.Millisecond
	rec := post(b, `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestBearerTokenForwarded(t *testing.T) {
	var auth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[{"content":{"parts":[{"text":"ok"}]}}]`))
	}))
	defer backend.Close()

	gin.SetMode(gin.TestMode)
	b := New(config.BridgeConfig{BackendURL: backend.URL, AppName: "adk2", UserID: "u1", Token: "tok", Timeout: time.Second})
	if rec := post(b, `{"messages":[{"role":"user","content":"hi"}]}`); rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if auth != "Bearer tok" {
		t.Fatalf("Authorization: got %q", auth)
	}
}

func TestHealth(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	b := newTestBridge(t, backend.URL)

	get := func() string {
		rec := httptest.NewRecorder()
		b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rec.Body.String()
	}
	if got := get(); !strings.Contains(got, `"status":"healthy"`) || !strings.Contains(got, `"backend":"connected"`) {
		t.Fatalf("healthy backend: got %s", got)
	}
	backend.Close()
	if got := get(); !strings.Contains(got, `"status":"degraded"`) || !strings.Contains(got, `"backend":"disconnected"`) {
		t.Fatalf("closed backend: got %s", got)
	}
}

func TestListModels(t *testing.T) {
	b := newTestBridge(t, "http://127.0.0.1:1")
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	body := rec.Body.String()
	for _, want := range []string{`"object":"list"`, `"id":"adk2"`, `"owned_by":"adk"`, `"permission":[]`} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in %s", want, body)
		}
	}
}
