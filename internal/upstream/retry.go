package upstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/limits"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Retrier re-issues a non-streaming call on 429 and transport failures with
// exponential backoff. Every other response is returned to the caller as is.
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Sleep waits for d or until ctx is done. Nil means a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now is used to resolve HTTP-date retry-after values. Nil means time.Now.
	Now func() time.Time
}

// NewRetrier returns a Retrier with the given budget, falling back to defaults
// for non-positive values.
func NewRetrier(maxAttempts int, baseDelay time.Duration) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Retrier{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
}

// Do runs op until it yields a non-429 response, the attempt budget is spent,
// or ctx is done. The caller owns the body of the returned response.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var lastErr error
	var lastRequestID string
	var lastStatus int
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := op(ctx)
		var delay time.Duration
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, codec.Normalize(ctxErr)
			}
			lastErr, lastStatus = err, 0
			delay = r.backoff(attempt)
			slog.Warn("upstream.retry", "attempt", attempt+1, "max_attempts", attempts, "reason", "transport", "error", err, "delay", delay)

		case resp.StatusCode == http.StatusTooManyRequests:
			snap := limits.ParseHeaders(resp.Header, r.now())
			lastRequestID = codec.ExtractUpstreamRequestID(resp.Header)
			lastErr, lastStatus = codec.Upstream(resp.StatusCode, drain(resp), resp.Header), resp.StatusCode
			delay = r.backoff(attempt)
			if snap != nil && snap.RetryAfter != nil {
				delay = *snap.RetryAfter
			}
			attrs := []any{"attempt", attempt + 1, "max_attempts", attempts, "reason", "rate_limited", "delay", delay}
			if lastRequestID != "" {
				attrs = append(attrs, "request_id", lastRequestID)
			}
			slog.Warn("upstream.retry", append(attrs, snap.LogAttrs()...)...)

		default:
			return resp, nil
		}

		if attempt == attempts-1 {
			break
		}
		if err := r.sleep(ctx, delay); err != nil {
			return nil, codec.Normalize(err)
		}
	}

	out := codec.Errorf(codec.RetryExhausted, "max retries (%d) exceeded", attempts)
	out.RequestID = lastRequestID
	out.Status = lastStatus
	out.Err = lastErr
	if lastErr != nil {
		out.Message += ": " + lastErr.Error()
	}
	return nil, out
}

func (r *Retrier) backoff(attempt int) time.Duration {
	base := r.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return base << attempt
}

func (r *Retrier) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const maxErrorBody = 64 << 10

// drain reads a bounded prefix of the body and closes it.
func drain(resp *http.Response) []byte {
	if resp == nil || resp.Body == nil {
		return nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil && !errors.Is(err, io.EOF) {
		slog.Debug("upstream.drain.failed", "error", err)
	}
	return body
}
