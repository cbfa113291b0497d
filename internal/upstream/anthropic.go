package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/config"
	"github.com/n0madic/go-chatpipe/internal/jsonx"
	"github.com/n0madic/go-chatpipe/internal/transform"
	"github.com/n0madic/go-chatpipe/internal/types"
)

// AnthropicClient talks to the Messages API.
type AnthropicClient struct {
	URL     string
	APIKey  string
	HTTP    *http.Client
	Retrier *Retrier
	Verbose bool

	dump *dumper
}

// NewAnthropicClient builds a client from configuration. The HTTP client
// timeout bounds every call, streaming ones included.
func NewAnthropicClient(cfg config.Config) *AnthropicClient {
	return &AnthropicClient{
		URL:     cfg.Anthropic.MessagesURL,
		APIKey:  cfg.Anthropic.APIKey,
		HTTP:    &http.Client{Timeout: cfg.RequestTimeout},
		Retrier: NewRetrier(cfg.MaxAttempts, cfg.RetryBaseDelay),
		Verbose: cfg.Verbose,
		dump:    newDumper(cfg.Verbose),
	}
}

func (c *AnthropicClient) newRequest(ctx context.Context, out *transform.AnthropicOutbound, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, codec.Wrap(codec.ConfigurationError, err, "invalid anthropic url")
	}
	config.ApplyDefaultHeaders(req.Header)
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", config.AnthropicAPIVersion)
	req.Header.Set("Content-Type", "application/json")
	if beta := out.BetaHeader(); beta != "" {
		req.Header.Set("anthropic-beta", beta)
	}
	if out.Payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

func (c *AnthropicClient) marshal(out *transform.AnthropicOutbound) ([]byte, error) {
	body, err := jsonx.Marshal(out.Payload)
	if err != nil {
		return nil, codec.Wrap(codec.ValidationError, err, "failed to marshal payload")
	}
	if c.Verbose {
		slog.Info("upstream.request",
			"provider", "anthropic",
			"model", out.Payload.Model,
			"messages", len(out.Payload.Messages),
			"tools", len(out.Payload.Tools),
			"max_tokens", out.Payload.MaxTokens,
			"thinking", out.Payload.Thinking != nil,
			"stream", out.Payload.Stream,
			"beta", out.BetaHeader(),
			"body_bytes", len(body),
		)
	}
	return body, nil
}

func (c *AnthropicClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream anthropic request failed: %w", err)
	}
	if c.Verbose {
		attrs := []any{"provider", "anthropic", "status", resp.StatusCode}
		if id := codec.ExtractUpstreamRequestID(resp.Header); id != "" {
			attrs = append(attrs, "request_id", id)
		}
		slog.Info("upstream.response", attrs...)
	}
	c.dump.response("anthropic", resp)
	return resp, nil
}

// Send performs a non-streaming call through the Retrier and decodes the reply.
func (c *AnthropicClient) Send(ctx context.Context, out *transform.AnthropicOutbound) (*types.AnthropicResponse, error) {
	body, err := c.marshal(out)
	if err != nil {
		return nil, err
	}
	resp, err := c.Retrier.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := c.newRequest(ctx, out, body)
		if err != nil {
			return nil, err
		}
		return c.do(req)
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, codec.Upstream(resp.StatusCode, drain(resp), resp.Header)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, codec.Normalize(err)
	}
	var decoded types.AnthropicResponse
	if err := jsonx.Unmarshal(raw, &decoded); err != nil {
		e := codec.Wrap(codec.DecodeError, err, "invalid anthropic response")
		e.RequestID = codec.ExtractUpstreamRequestID(resp.Header)
		return nil, e
	}
	return &decoded, nil
}

// Open starts a streaming call. It is attempted once: a 429 here is a terminal
// UpstreamError. On success the caller owns the response body.
func (c *AnthropicClient) Open(ctx context.Context, out *transform.AnthropicOutbound) (*http.Response, error) {
	body, err := c.marshal(out)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, out, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, codec.Normalize(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, codec.Upstream(resp.StatusCode, drain(resp), resp.Header)
	}
	return resp, nil
}
