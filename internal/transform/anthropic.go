package transform

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/n0madic/go-chatpipe/internal/anthropic"
	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/config"
	"github.com/n0madic/go-chatpipe/internal/models"
	"github.com/n0madic/go-chatpipe/internal/types"
)

const (
	MaxImageSize      = 5 * 1024 * 1024
	MaxPDFSize        = 32 * 1024 * 1024
	MaxTotalImageSize = 100 * 1024 * 1024

	BetaPDFs          = "pdfs-2024-09-25"
	BetaPromptCaching = "prompt-caching-2024-07-31"
	BetaOutput128k    = "output-128k-2025-02-19"
)

var supportedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var ephemeral = map[string]any{"type": "ephemeral"}

// AnthropicOutbound is a fully validated Messages API call.
type AnthropicOutbound struct {
	Payload types.AnthropicPayload
	Beta    []string
	Model   models.AnthropicModel
}

// BetaHeader joins the beta flags for the anthropic-beta header.
func (o *AnthropicOutbound) BetaHeader() string {
	return strings.Join(o.Beta, ",")
}

// BuildAnthropic translates a chat request into a Messages API call. It either
// returns a complete payload or an error, never a partial one.
func BuildAnthropic(req *types.ChatRequest, valves config.AnthropicValves) (*AnthropicOutbound, error) {
	if req == nil {
		return nil, codec.Errorf(codec.ValidationError, "request body is required")
	}
	model, known := models.ResolveAnthropicModel(req.Model)
	if model.Name == "" {
		return nil, codec.Errorf(codec.ValidationError, "model is required")
	}
	if !known {
		slog.Warn("unknown anthropic model, using default token limit", "model", model.Name, "max_tokens", model.MaxTokens)
	}

	system, rest := popSystem(req)
	b := &anthropicBuilder{model: model}
	messages, err := b.messages(rest)
	if err != nil {
		return nil, err
	}

	payload := types.AnthropicPayload{
		Model:       model.Name,
		Messages:    messages,
		MaxTokens:   model.MaxOutputTokens(req.MaxTokens, valves.MaxOutputTokens),
		Temperature: req.Temperature,
		TopK:        req.TopK,
		TopP:        req.TopP,
		Stream:      req.Streaming(false),
	}
	if uid, ok := req.Metadata["user_id"].(string); ok && uid != "" {
		payload.Metadata = &types.AnthropicMetadata{UserID: uid}
	}
	if valves.EnableThinking && model.Thinking {
		payload.Thinking = &types.AnthropicThinking{Type: "enabled", BudgetTokens: valves.ThinkingBudgetTokens}
	}
	if system != "" && valves.EnableSystemPrompt {
		payload.System = system
	}
	if len(req.Tools) > 0 && valves.EnableToolChoice {
		payload.Tools = ToolsToAnthropic(req.Tools)
		payload.ToolChoice = ToolChoiceToAnthropic(req.ToolChoice)
	}
	if req.ResponseFormat != nil {
		slog.Debug("response_format has no anthropic equivalent, dropping", "type", req.ResponseFormat["type"])
	}

	out := &AnthropicOutbound{Payload: payload, Model: model}
	if b.hasDocument {
		out.Beta = append(out.Beta, BetaPDFs)
	}
	if b.hasCacheControl {
		out.Beta = append(out.Beta, BetaPromptCaching)
	}
	if model.Output128kBeta && valves.MaxOutputTokens {
		out.Beta = append(out.Beta, BetaOutput128k)
	}
	return out, nil
}

// popSystem returns the system prompt and the remaining messages. An explicit
// request-level prompt wins over system messages.
func popSystem(req *types.ChatRequest) (string, []types.Message) {
	var parts []string
	if s := strings.TrimSpace(req.System); s != "" {
		parts = append(parts, s)
	}
	rest := make([]types.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if req.System == "" {
				if txt := strings.TrimSpace(msg.Text()); txt != "" {
					parts = append(parts, txt)
				}
			}
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(parts, "\n\n"), rest
}

type anthropicBuilder struct {
	model           models.AnthropicModel
	totalImageBytes int
	hasDocument     bool
	hasCacheControl bool
}

func (b *anthropicBuilder) messages(in []types.Message) ([]types.AnthropicMessage, error) {
	out := make([]types.AnthropicMessage, 0, len(in))
	for _, msg := range in {
		role := "user"
		if msg.Role == "assistant" {
			role = "assistant"
		}
		content := make([]types.AnthropicContent, 0, len(msg.Content))
		for _, block := range msg.Content {
			if t, ok := block.(types.TextBlock); ok && t.Text == "" {
				continue
			}
			c, err := b.content(role, block)
			if err != nil {
				return nil, err
			}
			if c.CacheControl != nil {
				b.hasCacheControl = true
			}
			content = append(content, c)
		}
		if len(content) == 0 {
			continue
		}
		out = append(out, types.AnthropicMessage{Role: role, Content: content})
	}
	return out, nil
}

func (b *anthropicBuilder) content(role string, block types.ContentBlock) (types.AnthropicContent, error) {
	switch v := block.(type) {
	case types.TextBlock:
		return types.AnthropicContent{Type: "text", Text: v.Text, CacheControl: v.CacheControl}, nil

	case types.ImageBlock:
		src, err := b.image(v.Source)
		if err != nil {
			return types.AnthropicContent{}, err
		}
		return types.AnthropicContent{Type: "image", Source: src, CacheControl: v.CacheControl}, nil

	case types.DocumentBlock:
		src, err := b.document(v.Source)
		if err != nil {
			return types.AnthropicContent{}, err
		}
		b.hasDocument = true
		return types.AnthropicContent{Type: "document", Source: src, CacheControl: v.CacheControl}, nil

	case types.ToolCallBlock:
		c := types.AnthropicContent{Type: "tool_use", ID: v.ID, Name: v.Name, Input: anthropic.ToolInput(v.Arguments), CacheControl: v.CacheControl}
		if role == "assistant" {
			c.CacheControl = ephemeral
		}
		return c, nil

	case types.ToolResultBlock:
		c := types.AnthropicContent{Type: "tool_result", ToolUseID: v.ToolCallID, Content: v.Content, IsError: v.IsError, CacheControl: v.CacheControl}
		if role == "user" {
			c.CacheControl = ephemeral
		}
		return c, nil

	default:
		return types.AnthropicContent{}, codec.Errorf(codec.ValidationError, "unsupported content block %T", block)
	}
}

func (b *anthropicBuilder) image(src types.Source) (*types.AnthropicSource, error) {
	if src.Kind != types.SourceBase64 {
		if src.URL == "" {
			return nil, codec.Errorf(codec.ValidationError, "image block has no url")
		}
		return &types.AnthropicSource{Type: "url", URL: src.URL}, nil
	}
	if !slices.Contains(supportedImageTypes, src.MediaType) {
		return nil, codec.Errorf(codec.ValidationError, "unsupported media type: %s", src.MediaType)
	}
	size := src.DecodedSize()
	if size > MaxImageSize {
		return nil, codec.Errorf(codec.ValidationError, "image size exceeds %s limit: %s", megabytes(MaxImageSize), megabytes(size))
	}
	b.totalImageBytes += size
	if b.totalImageBytes > MaxTotalImageSize {
		return nil, codec.Errorf(codec.ValidationError, "total image size exceeds %s limit: %s", megabytes(MaxTotalImageSize), megabytes(b.totalImageBytes))
	}
	return &types.AnthropicSource{Type: "base64", MediaType: src.MediaType, Data: src.Data}, nil
}

func (b *anthropicBuilder) document(src types.Source) (*types.AnthropicSource, error) {
	if !b.model.PDF {
		return nil, codec.Errorf(codec.ValidationError, "PDF support is only available for models: %s", strings.Join(models.PDFModels(), ", "))
	}
	if src.Kind != types.SourceBase64 {
		if src.URL == "" {
			return nil, codec.Errorf(codec.ValidationError, "document block has no url")
		}
		return &types.AnthropicSource{Type: "url", URL: src.URL}, nil
	}
	if src.MediaType != "application/pdf" {
		return nil, codec.Errorf(codec.ValidationError, "unsupported document type: %s", src.MediaType)
	}
	if size := src.DecodedSize(); size > MaxPDFSize {
		return nil, codec.Errorf(codec.ValidationError, "PDF size exceeds %s limit: %s", megabytes(MaxPDFSize), megabytes(size))
	}
	return &types.AnthropicSource{Type: "base64", MediaType: "application/pdf", Data: src.Data}, nil
}

func megabytes(n int) string {
	return fmt.Sprintf("%.2fMB", float64(n)/(1024*1024))
}
