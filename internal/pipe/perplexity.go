package pipe

import (
	"context"
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
	StatusGenerating          = "AI response is being generated..."
	StatusPerplexityCompleted = "Perplexity generation completed"
)

// Perplexity serves sonar models and decorates answers with references.
type Perplexity struct {
	valves config.PerplexityValves
	client *upstream.PerplexityClient
	// Titles resolves reference page titles.
	Titles relay.TitleSource
}

func NewPerplexity(cfg config.Config) *Perplexity {
	return &Perplexity{
		valves: cfg.Perplexity,
		client: upstream.NewPerplexityClient(cfg),
		Titles: relay.NewTitleFetcher(cfg.TitleTimeout),
	}
}

func (p *Perplexity) ID() string { return "perplexity" }

func (p *Perplexity) Handles(model string) bool {
	m := strings.TrimSpace(model)
	if p.valves.NamePrefix != "" && strings.HasPrefix(m, p.valves.NamePrefix) {
		return true
	}
	m = strings.ToLower(m)
	return strings.HasPrefix(m, "perplexity_sonar_models.") || strings.HasPrefix(m, "sonar")
}

func (p *Perplexity) Models() []models.Info { return models.PerplexityCatalog(p.valves.NamePrefix) }

func (p *Perplexity) Run(ctx context.Context, req *types.ChatRequest, emitter status.Emitter) (*Result, error) {
	if strings.TrimSpace(p.valves.APIKey) == "" {
		return nil, fail(ctx, emitter, codec.Errorf(codec.ConfigurationError, "Perplexity API Key not configured"))
	}
	out, err := transform.BuildPerplexity(req, p.valves)
	if err != nil {
		return nil, fail(ctx, emitter, err)
	}

	resp, err := p.client.Open(ctx, out)
	if err != nil {
		return nil, fail(ctx, emitter, err)
	}
	status.Send(ctx, emitter, StatusGenerating, false)

	if out.Stream {
		seq := relay.Relay(ctx, resp.Body, relay.NewPerplexityDecoder(p.Titles, emitter))
		return &Result{Stream: withStatus(ctx, seq, emitter, StatusPerplexityCompleted)}, nil
	}

	defer resp.Body.Close()
	text, err := relay.PerplexityMessage(ctx, resp.Body, p.Titles, emitter)
	if err != nil {
		return nil, fail(ctx, emitter, err)
	}
	status.Send(ctx, emitter, StatusPerplexityCompleted, true)
	return &Result{Text: text}, nil
}
