package upstream

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/config"
	"github.com/n0madic/go-chatpipe/internal/transform"
)

// PerplexityClient posts OpenAI-compatible chat completions to Perplexity and
// hands back the raw response so frames can be decoded leniently.
type PerplexityClient struct {
	sdk     openai.Client
	Verbose bool

	dump *dumper
}

// NewPerplexityClient builds the SDK client. SDK retries are disabled: the
// streaming path is never retried.
func NewPerplexityClient(cfg config.Config) *PerplexityClient {
	return &PerplexityClient{
		sdk: openai.NewClient(
			option.WithBaseURL(cfg.Perplexity.BaseURL),
			option.WithAPIKey(cfg.Perplexity.APIKey),
			option.WithMaxRetries(0),
			option.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
			option.WithHeader("User-Agent", config.UserAgent()),
		),
		Verbose: cfg.Verbose,
		dump:    newDumper(cfg.Verbose),
	}
}

// Open posts the request. Non-2xx replies come back as UpstreamError; on
// success the caller owns the response body.
func (c *PerplexityClient) Open(ctx context.Context, out *transform.PerplexityOutbound) (*http.Response, error) {
	opts := slices.Clone(out.Options)
	if out.Stream {
		opts = append(opts, option.WithHeader("Accept", "text/event-stream"))
	}
	if c.Verbose {
		slog.Info("upstream.request",
			"provider", "perplexity",
			"model", out.Model,
			"messages", len(out.Messages),
			"stream", out.Stream,
		)
	}

	var resp *http.Response
	if err := c.sdk.Post(ctx, "chat/completions", out.Params, &resp, opts...); err != nil {
		return nil, codec.Normalize(err)
	}
	if c.Verbose {
		attrs := []any{"provider", "perplexity", "status", resp.StatusCode}
		if id := codec.ExtractUpstreamRequestID(resp.Header); id != "" {
			attrs = append(attrs, "request_id", id)
		}
		slog.Info("upstream.response", attrs...)
	}
	c.dump.response("perplexity", resp)
	return resp, nil
}
