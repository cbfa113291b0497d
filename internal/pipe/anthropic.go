package pipe

import (
	"context"
	"log/slog"
	"strings"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/config"
	"github.com/n0madic/go-chatpipe/internal/models"
	"github.com/n0madic/go-chatpipe/internal/relay"
	"github.com/n0madic/go-chatpipe/internal/status"
	"github.com/n0madic/go-chatpipe/internal/transform"
	"github.com/n0madic/go-chatpipe/internal/types"
	"github.com/n0madic/go-chatpipe/internal/upstream"
)

const (
	StatusProcessing       = "Processing request..."
	StatusCompletedSuccess = "Request completed successfully"
	StatusCompleted        = "Request completed"
)

// Anthropic serves Claude models through the Messages API.
type Anthropic struct {
	valves config.AnthropicValves
	client *upstream.AnthropicClient
}

func NewAnthropic(cfg config.Config) *Anthropic {
	return &Anthropic{valves: cfg.Anthropic, client: upstream.NewAnthropicClient(cfg)}
}

func (p *Anthropic) ID() string { return "anthropic" }

func (p *Anthropic) Handles(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "anthropic/") || strings.HasPrefix(m, "claude")
}

func (p *Anthropic) Models() []models.Info { return models.AnthropicCatalog() }

func (p *Anthropic) Run(ctx context.Context, req *types.ChatRequest, emitter status.Emitter) (*Result, error) {
	if strings.TrimSpace(p.valves.APIKey) == "" {
		return nil, fail(ctx, emitter, codec.Errorf(codec.ConfigurationError, "ANTHROPIC_API_KEY is required"))
	}
	status.Send(ctx, emitter, StatusProcessing, false)

	out, err := transform.BuildAnthropic(req, p.valves)
	if err != nil {
		return nil, fail(ctx, emitter, err)
	}
	showThinking := p.valves.EnableThinking && out.Model.Thinking

	if out.Payload.Stream {
		resp, err := p.client.Open(ctx, out)
		if err != nil {
			return nil, fail(ctx, emitter, err)
		}
		seq := relay.Relay(ctx, resp.Body, relay.NewAnthropicDecoder(showThinking))
		return &Result{Stream: withStatus(ctx, seq, emitter, StatusCompleted)}, nil
	}

	resp, err := p.client.Send(ctx, out)
	if err != nil {
		return nil, fail(ctx, emitter, err)
	}
	msg := relay.AnthropicMessage(resp, showThinking)
	slog.Debug("anthropic.cache_metrics",
		"model", out.Payload.Model,
		"input_tokens", msg.Metrics.InputTokens,
		"output_tokens", msg.Metrics.OutputTokens,
		"cache_creation_input_tokens", msg.Metrics.CacheCreationInputTokens,
		"cache_read_input_tokens", msg.Metrics.CacheReadInputTokens,
	)
	status.Send(ctx, emitter, StatusCompletedSuccess, true)
	return &Result{Text: msg.Text, ToolCalls: msg.ToolCalls}, nil
}
