package transform

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/config"
	"github.com/n0madic/go-chatpipe/internal/types"
)

func defaultValves() config.AnthropicValves {
	return config.AnthropicValves{
		APIKey:               "k",
		MaxOutputTokens:      true,
		EnableToolChoice:     true,
		EnableSystemPrompt:   true,
		ThinkingBudgetTokens: 16000,
	}
}

func decodeRequest(t *testing.T, raw string) *types.ChatRequest {
	t.Helper()
	var req types.ChatRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return &req
}

func requireCategory(t *testing.T, err error, want codec.Category) *codec.Error {
	t.Helper()
	var cerr *codec.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *codec.Error, got %T (%v)", err, err)
	}
	if cerr.Category != want {
		t.Fatalf("category: got %s, want %s", cerr.Category, want)
	}
	return cerr
}

func TestBuildAnthropicBasicPayload(t *testing.T) {
	req := decodeRequest(t, `{
		"model":"anthropic/claude-3-5-sonnet-20241022",
		"messages":[
			{"role":"system","content":"Be terse"},
			{"role":"user","content":"hello"}
		],
		"temperature":0.2,
		"stream":true,
		"metadata":{"user_id":"u-1"}
	}`)

	out, err := BuildAnthropic(req, defaultValves())
	if err != nil {
		t.Fatalf("BuildAnthropic returned error: %v", err)
	}
	p := out.Payload
	if p.Model != "claude-3-5-sonnet-20241022" || p.MaxTokens != 8192 || !p.Stream {
		t.Fatalf("unexpected payload header: %+v", p)
	}
	if p.System != "Be terse" {
		t.Fatalf("system: got %q", p.System)
	}
	if len(p.Messages) != 1 || p.Messages[0].Role != "user" || p.Messages[0].Content[0].Text != "hello" {
		t.Fatalf("unexpected messages: %+v", p.Messages)
	}
	if p.Metadata == nil || p.Metadata.UserID != "u-1" {
		t.Fatalf("metadata: %+v", p.Metadata)
	}
	if len(out.Beta) != 0 {
		t.Fatalf("unexpected beta flags: %v", out.Beta)
	}

	b, _ := json.Marshal(p)
	for _, absent := range []string{`"top_k"`, `"top_p"`, `"thinking"`, `"tools"`} {
		if strings.Contains(string(b), absent) {
			t.Fatalf("payload should omit %s: %s", absent, b)
		}
	}
	if !strings.Contains(string(b), `"temperature":0.2`) {
		t.Fatalf("payload should carry temperature: %s", b)
	}
}

func TestBuildAnthropicSystemPromptToggle(t *testing.T) {
	req := decodeRequest(t, `{"model":"claude-3-opus-latest","messages":[{"role":"system","content":"S"},{"role":"user","content":"hi"}]}`)
	v := defaultValves()
	v.EnableSystemPrompt = false
	out, err := BuildAnthropic(req, v)
	if err != nil {
		t.Fatalf("BuildAnthropic returned error: %v", err)
	}
	if out.Payload.System != "" {
		t.Fatalf("system prompt should be dropped, got %q", out.Payload.System)
	}
	if len(out.Payload.Messages) != 1 {
		t.Fatalf("system message must not be forwarded as a turn: %+v", out.Payload.Messages)
	}
}

func TestBuildAnthropicMaxTokensRule(t *testing.T) {
	req := decodeRequest(t, `{"model":"claude-3-5-haiku-latest","messages":[{"role":"user","content":"x"}],"max_tokens":100}`)

	v := defaultValves()
	v.MaxOutputTokens = false
	out, err := BuildAnthropic(req, v)
	if err != nil {
		t.Fatalf("BuildAnthropic returned error: %v", err)
	}
	if out.Payload.MaxTokens != 100 {
		t.Fatalf("max_tokens: got %d, want 100", out.Payload.MaxTokens)
	}

	out, err = BuildAnthropic(req, defaultValves())
	if err != nil {
		t.Fatalf("BuildAnthropic returned error: %v", err)
	}
	if out.Payload.MaxTokens != 8192 {
		t.Fatalf("max_tokens with ceiling valve: got %d, want 8192", out.Payload.MaxTokens)
	}
}

func TestBuildAnthropicUnknownModelFallsBack(t *testing.T) {
	req := decodeRequest(t, `{"model":"anthropic/claude-next","messages":[{"role":"user","content":"x"}]}`)
	out, err := BuildAnthropic(req, defaultValves())
	if err != nil {
		t.Fatalf("unknown model must not fail: %v", err)
	}
	if out.Payload.MaxTokens != 4096 || out.Payload.Model != "claude-next" || out.Model.PDF {
		t.Fatalf("unexpected fallback: model=%+v payload=%+v", out.Model, out.Payload)
	}
}

func TestBuildAnthropicSkipsEmptyText(t *testing.T) {
	req := decodeRequest(t, `{"model":"claude-3-opus-latest","messages":[
		{"role":"user","content":[{"type":"text","text":""},{"type":"text","text":"hi"}]},
		{"role":"assistant","content":""},
		{"role":"user","content":"again"}
	]}`)
	out, err := BuildAnthropic(req, defaultValves())
	if err != nil {
		t.Fatalf("BuildAnthropic returned error: %v", err)
	}
	msgs := out.Payload.Messages
	if len(msgs) != 2 {
		t.Fatalf("messages: got %d, want 2 (%+v)", len(msgs), msgs)
	}
	if len(msgs[0].Content) != 1 || msgs[0].Content[0].Text != "hi" {
		t.Fatalf("first message content: %+v", msgs[0].Content)
	}
	for _, m := range msgs {
		for _, c := range m.Content {
			if c.Type == "text" && c.Text == "" {
				t.Fatalf("empty text block reached the payload: %+v", msgs)
			}
		}
	}
}

func TestBuildAnthropicImages(t *testing.T) {
	small := "data:image/png;base64," + strings.Repeat("A", 16)
	req := decodeRequest(t, `{"model":"claude-3-opus-latest","messages":[{"role":"user","content":[
		{"type":"text","text":"what is this"},
		{"type":"image_url","image_url":{"url":"`+small+`"}},
		{"type":"image_url","image_url":{"url":"https://example.com/cat.png"}}
	]}]}`)
	out, err := BuildAnthropic(req, defaultValves())
	if err != nil {
		t.Fatalf("BuildAnthropic returned error: %v", err)
	}
	content := out.Payload.Messages[0].Content
	if content[1].Type != "image" || content[1].Source.Type != "base64" || content[1].Source.MediaType != "image/png" {
		t.Fatalf("unexpected inline image: %+v", content[1])
	}
	if content[2].Source.Type != "url" || content[2].Source.URL != "https://example.com/cat.png" {
		t.Fatalf("unexpected url image: %+v", content[2].Source)
	}
}

func TestBuildAnthropicRejectsBadImages(t *testing.T) {
	oversized := "data:image/png;base64," + strings.Repeat("A", (MaxImageSize/3)*4+8)
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"unsupported type", "data:image/bmp;base64,AAAA", "unsupported media type: image/bmp"},
		{"oversized", oversized, "image size exceeds 5.00MB limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &types.ChatRequest{
				Model: "claude-3-opus-latest",
				Messages: []types.Message{{Role: "user", Content: []types.ContentBlock{
					types.ImageBlock{Source: types.ParseSource(tt.url)},
				}}},
			}
			out, err := BuildAnthropic(req, defaultValves())
			if out != nil {
				t.Fatal("no payload may be produced on validation failure")
			}
			cerr := requireCategory(t, err, codec.ValidationError)
			if !strings.Contains(cerr.Message, tt.want) {
				t.Fatalf("message %q should contain %q", cerr.Message, tt.want)
			}
		})
	}
}

func TestBuildAnthropicTotalImageBudget(t *testing.T) {
	chunk := types.ImageBlock{Source: types.Source{Kind: types.SourceBase64, MediaType: "image/jpeg", Data: strings.Repeat("A", (4*1024*1024/3)*4)}}
	var blocks []types.ContentBlock
	for range 26 {
		blocks = append(blocks, chunk)
	}
	req := &types.ChatRequest{Model: "claude-3-opus-latest", Messages: []types.Message{{Role: "user", Content: blocks}}}
	_, err := BuildAnthropic(req, defaultValves())
	cerr := requireCategory(t, err, codec.ValidationError)
	if !strings.Contains(cerr.Message, "total image size") {
		t.Fatalf("unexpected message: %q", cerr.Message)
	}
}

func TestBuildAnthropicDocuments(t *testing.T) {
	doc := `{"type":"pdf_url","pdf_url":{"url":"data:application/pdf;base64,JVBERi0x"},"cache_control":{"type":"ephemeral"}}`

	req := decodeRequest(t, `{"model":"claude-3-opus-latest","messages":[{"role":"user","content":[`+doc+`]}]}`)
	_, err := BuildAnthropic(req, defaultValves())
	cerr := requireCategory(t, err, codec.ValidationError)
	if !strings.Contains(cerr.Message, "PDF support is only available") {
		t.Fatalf("unexpected message: %q", cerr.Message)
	}

	req = decodeRequest(t, `{"model":"claude-3-7-sonnet-latest","messages":[{"role":"user","content":[`+doc+`]}]}`)
	out, err := BuildAnthropic(req, defaultValves())
	if err != nil {
		t.Fatalf("BuildAnthropic returned error: %v", err)
	}
	c := out.Payload.Messages[0].Content[0]
	if c.Type != "document" || c.Source.MediaType != "application/pdf" || c.CacheControl["type"] != "ephemeral" {
		t.Fatalf("unexpected document: %+v", c)
	}
	want := BetaPDFs + "," + BetaPromptCaching + "," + BetaOutput128k
	if got := out.BetaHeader(); got != want {
		t.Fatalf("beta header: got %q, want %q", got, want)
	}
}

func TestBuildAnthropicOversizedPDF(t *testing.T) {
	req := &types.ChatRequest{
		Model: "claude-3-5-sonnet-20241022",
		Messages: []types.Message{{Role: "user", Content: []types.ContentBlock{
			types.DocumentBlock{Source: types.Source{Kind: types.SourceBase64, MediaType: "application/pdf", Data: strings.Repeat("A", (MaxPDFSize/3)*4+8)}},
		}}},
	}
	_, err := BuildAnthropic(req, defaultValves())
	requireCategory(t, err, codec.ValidationError)
}

func TestBuildAnthropicToolsAndCacheControl(t *testing.T) {
	req := decodeRequest(t, `{
		"model":"claude-3-5-sonnet-latest",
		"messages":[
			{"role":"user","content":"weather?"},
			{"role":"assistant","content":[{"type":"tool_calls","id":"call_1","function":{"name":"weather","arguments":"{\"city\":\"Paris\"}"}}]},
			{"role":"user","content":[{"type":"tool_results","tool_call_id":"call_1","content":"sunny"}]}
		],
		"tools":[{"type":"function","function":{"name":"weather","parameters":{"type":"object"}}}],
		"tool_choice":"required"
	}`)
	out, err := BuildAnthropic(req, defaultValves())
	if err != nil {
		t.Fatalf("BuildAnthropic returned error: %v", err)
	}
	p := out.Payload
	if len(p.Tools) != 1 || p.Tools[0].Name != "weather" {
		t.Fatalf("unexpected tools: %+v", p.Tools)
	}
	if p.ToolChoice["type"] != "any" {
		t.Fatalf("tool_choice: got %v", p.ToolChoice)
	}
	use := p.Messages[1].Content[0]
	input, _ := use.Input.(map[string]any)
	if use.Type != "tool_use" || input["city"] != "Paris" || use.CacheControl["type"] != "ephemeral" {
		t.Fatalf("unexpected tool_use: %+v", use)
	}
	res := p.Messages[2].Content[0]
	if res.Type != "tool_result" || res.ToolUseID != "call_1" || res.CacheControl["type"] != "ephemeral" {
		t.Fatalf("unexpected tool_result: %+v", res)
	}
	if out.BetaHeader() != BetaPromptCaching {
		t.Fatalf("beta header: got %q", out.BetaHeader())
	}

	v := defaultValves()
	v.EnableToolChoice = false
	out, err = BuildAnthropic(req, v)
	if err != nil {
		t.Fatalf("BuildAnthropic returned error: %v", err)
	}
	if out.Payload.Tools != nil || out.Payload.ToolChoice != nil {
		t.Fatal("tools must be dropped when tool choice is disabled")
	}
}

func TestBuildAnthropicThinking(t *testing.T) {
	req := decodeRequest(t, `{"model":"claude-sonnet-4-0","messages":[{"role":"user","content":"x"}]}`)
	v := defaultValves()
	v.EnableThinking = true
	v.ThinkingBudgetTokens = 2048
	out, err := BuildAnthropic(req, v)
	if err != nil {
		t.Fatalf("BuildAnthropic returned error: %v", err)
	}
	if out.Payload.Thinking == nil || out.Payload.Thinking.BudgetTokens != 2048 || out.Payload.Thinking.Type != "enabled" {
		t.Fatalf("unexpected thinking: %+v", out.Payload.Thinking)
	}

	req.Model = "claude-3-opus-latest"
	out, err = BuildAnthropic(req, v)
	if err != nil {
		t.Fatalf("BuildAnthropic returned error: %v", err)
	}
	if out.Payload.Thinking != nil {
		t.Fatal("thinking must be omitted for models without support")
	}
}

func TestToolChoiceToAnthropic(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"auto", "auto", map[string]any{"type": "auto"}},
		{"none", "none", map[string]any{"type": "none"}},
		{"required", "required", map[string]any{"type": "any"}},
		{"function", map[string]any{"type": "function", "function": map[string]any{"name": "lookup"}}, map[string]any{"type": "tool", "name": "lookup"}},
		{"tool", map[string]any{"type": "tool", "name": "read"}, map[string]any{"type": "tool", "name": "read"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToolChoiceToAnthropic(tt.in)
			gb, _ := json.Marshal(got)
			wb, _ := json.Marshal(tt.want)
			if string(gb) != string(wb) {
				t.Fatalf("ToolChoiceToAnthropic(%v) = %s, want %s", tt.in, gb, wb)
			}
		})
	}
}

func TestToolsToAnthropicDefaultsSchema(t *testing.T) {
	got := ToolsToAnthropic([]types.Tool{{Name: "noop"}, {Name: " "}})
	if len(got) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(got))
	}
	schema, _ := got[0].InputSchema.(map[string]any)
	if schema["type"] != "object" {
		t.Fatalf("expected default object schema, got %+v", got[0].InputSchema)
	}
}
