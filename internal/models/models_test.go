package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/n0madic/go-chatpipe/internal/codec"
)

func TestResolveAnthropicModel(t *testing.T) {
	tests := []struct {
		in        string
		wantName  string
		wantKnown bool
		wantMax   int
	}{
		{"anthropic/claude-3-7-sonnet-latest", "claude-3-7-sonnet-latest", true, 16384},
		{"claude-sonnet-4-0", "claude-sonnet-4-0", true, 64000},
		{"anthropic/claude-opus-4-0", "claude-opus-4-0", true, 32000},
		{"claude-3-haiku-20240307", "claude-3-haiku-20240307", true, 4096},
		{"anthropic/claude-9", "claude-9", false, AnthropicFallbackMaxTokens},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, known := ResolveAnthropicModel(tt.in)
			if m.Name != tt.wantName || known != tt.wantKnown || m.MaxTokens != tt.wantMax {
				t.Fatalf("ResolveAnthropicModel(%q) = (%+v, %v)", tt.in, m, known)
			}
			if m.ContextLength != AnthropicContextLength {
				t.Fatalf("context length: got %d", m.ContextLength)
			}
		})
	}
}

func TestMaxOutputTokens(t *testing.T) {
	m, _ := ResolveAnthropicModel("claude-3-5-sonnet-latest")
	n := func(v int) *int { return &v }

	if got := m.MaxOutputTokens(n(100), true); got != 8192 {
		t.Fatalf("useMax: got %d, want 8192", got)
	}
	if got := m.MaxOutputTokens(n(100), false); got != 100 {
		t.Fatalf("requested below ceiling: got %d, want 100", got)
	}
	if got := m.MaxOutputTokens(n(100000), false); got != 8192 {
		t.Fatalf("requested above ceiling: got %d, want 8192", got)
	}
	if got := m.MaxOutputTokens(nil, false); got != 8192 {
		t.Fatalf("absent request: got %d, want 8192", got)
	}
}

func TestAnthropicCapabilities(t *testing.T) {
	haiku, _ := ResolveAnthropicModel("claude-3-5-haiku-20241022")
	if haiku.Vision {
		t.Fatal("claude-3-5-haiku-20241022 must not support vision")
	}
	sonnet, _ := ResolveAnthropicModel("claude-3-7-sonnet-latest")
	if !sonnet.Vision || !sonnet.Thinking || !sonnet.PDF || !sonnet.Output128kBeta {
		t.Fatalf("unexpected capabilities: %+v", sonnet)
	}
	if got := PDFModels(); len(got) != 3 {
		t.Fatalf("PDFModels: got %v", got)
	}
}

func TestResolvePerplexityModel(t *testing.T) {
	got, err := ResolvePerplexityModel("Perplexity/sonar-pro", "Perplexity/")
	if err != nil || got != "sonar-pro" {
		t.Fatalf("got (%q, %v), want sonar-pro", got, err)
	}
	got, err = ResolvePerplexityModel("perplexity_sonar_models.sonar-reasoning", "Perplexity/")
	if err != nil || got != "sonar-reasoning" {
		t.Fatalf("legacy prefix: got (%q, %v)", got, err)
	}

	_, err = ResolvePerplexityModel("Perplexity/gpt-4", "Perplexity/")
	var cerr *codec.Error
	if !errors.As(err, &cerr) || cerr.Category != codec.ValidationError {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(cerr.Message, "sonar-deep-research") {
		t.Fatalf("error should list valid models: %q", cerr.Message)
	}
}

func TestCatalogs(t *testing.T) {
	anth := AnthropicCatalog()
	if len(anth) != 12 || !strings.HasPrefix(anth[0].ID, "anthropic/") {
		t.Fatalf("unexpected anthropic catalog: %+v", anth)
	}
	pplx := PerplexityCatalog("Perplexity/")
	if pplx[0].Name != "Perplexity/sonar-reasoning-pro" {
		t.Fatalf("unexpected display name: %q", pplx[0].Name)
	}
	all := Merge(anth, pplx, pplx)
	if len(all) != len(anth)+len(pplx) {
		t.Fatalf("Merge kept duplicates: %d", len(all))
	}
}
