package limits

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const headerPrefix = "anthropic-ratelimit-"

// RateLimitWindow is one quota reported by the upstream.
type RateLimitWindow struct {
	Limit     *int       `json:"limit,omitempty"`
	Remaining *int       `json:"remaining,omitempty"`
	ResetsAt  *time.Time `json:"resets_at,omitempty"`
}

// RateLimitSnapshot holds the quotas and retry hint of one response.
type RateLimitSnapshot struct {
	Requests     *RateLimitWindow `json:"requests,omitempty"`
	Tokens       *RateLimitWindow `json:"tokens,omitempty"`
	InputTokens  *RateLimitWindow `json:"input_tokens,omitempty"`
	OutputTokens *RateLimitWindow `json:"output_tokens,omitempty"`
	RetryAfter   *time.Duration   `json:"retry_after,omitempty"`
}

// ParseHeaders extracts rate limit information from upstream response headers.
// It returns nil when no recognised header is present.
func ParseHeaders(headers http.Header, now time.Time) *RateLimitSnapshot {
	if headers == nil {
		return nil
	}
	snap := &RateLimitSnapshot{
		Requests:     parseWindow(headers, "requests"),
		Tokens:       parseWindow(headers, "tokens"),
		InputTokens:  parseWindow(headers, "input-tokens"),
		OutputTokens: parseWindow(headers, "output-tokens"),
	}
	if d, ok := ParseRetryAfter(headers.Get("retry-after"), now); ok {
		snap.RetryAfter = &d
	}
	if snap.Requests == nil && snap.Tokens == nil && snap.InputTokens == nil && snap.OutputTokens == nil && snap.RetryAfter == nil {
		return nil
	}
	return snap
}

func parseWindow(headers http.Header, name string) *RateLimitWindow {
	w := &RateLimitWindow{
		Limit:     parseInt(headers.Get(headerPrefix + name + "-limit")),
		Remaining: parseInt(headers.Get(headerPrefix + name + "-remaining")),
	}
	if v := strings.TrimSpace(headers.Get(headerPrefix + name + "-reset")); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			w.ResetsAt = &t
		}
	}
	if w.Limit == nil && w.Remaining == nil && w.ResetsAt == nil {
		return nil
	}
	return w
}

func parseInt(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &i
}

// ParseRetryAfter reads a retry-after value given either as delay seconds or
// as an HTTP date. Dates in the past yield a zero delay.
func ParseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(t.Sub(now), 0), true
	}
	return 0, false
}

// LogAttrs flattens the snapshot into slog key/value pairs.
func (s *RateLimitSnapshot) LogAttrs() []any {
	if s == nil {
		return nil
	}
	var attrs []any
	add := func(name string, w *RateLimitWindow) {
		if w == nil {
			return
		}
		if w.Remaining != nil {
			attrs = append(attrs, name+"_remaining", *w.Remaining)
		}
		if w.ResetsAt != nil {
			attrs = append(attrs, name+"_reset", w.ResetsAt.Format(time.RFC3339))
		}
	}
	add("requests", s.Requests)
	add("tokens", s.Tokens)
	add("input_tokens", s.InputTokens)
	add("output_tokens", s.OutputTokens)
	if s.RetryAfter != nil {
		attrs = append(attrs, "retry_after", s.RetryAfter.String())
	}
	return attrs
}
