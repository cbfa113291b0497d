package transform

import (
	"testing"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/config"
	"github.com/n0madic/go-chatpipe/internal/types"
)

func pplxValves() config.PerplexityValves {
	return config.PerplexityValves{APIKey: "k", BaseURL: "https://api.perplexity.ai", NamePrefix: "Perplexity/"}
}

func TestBuildPerplexityResolvesModel(t *testing.T) {
	req := decodeRequest(t, `{"model":"Perplexity/sonar-pro","messages":[{"role":"user","content":"hi"}],"top_k":5}`)
	out, err := BuildPerplexity(req, pplxValves())
	if err != nil {
		t.Fatalf("BuildPerplexity returned error: %v", err)
	}
	if out.Model != "sonar-pro" || string(out.Params.Model) != "sonar-pro" {
		t.Fatalf("model: got %q / %q", out.Model, out.Params.Model)
	}
	if !out.Stream {
		t.Fatal("stream must default to true")
	}
	if len(out.Options) != 2 {
		t.Fatalf("expected stream and top_k options, got %d", len(out.Options))
	}

	req.Model = "Perplexity/llama"
	_, err = BuildPerplexity(req, pplxValves())
	requireCategory(t, err, codec.ValidationError)
}

func TestStripImageLinks(t *testing.T) {
	msgs := []types.Message{
		types.NewTextMessage("assistant", "see https://a.com/x.png"),
		types.NewTextMessage("user", "look https://cdn.example.com/pic.JPG and https://example.com/page "),
	}
	StripImageLinks(msgs)
	if got := msgs[1].Text(); got != "look  and https://example.com/page" {
		t.Fatalf("user text: got %q", got)
	}
	if got := msgs[0].Text(); got != "see https://a.com/x.png" {
		t.Fatalf("only the last user message is cleaned, got %q", got)
	}
}

func TestAlternateRoles(t *testing.T) {
	msgs := []types.Message{
		types.NewTextMessage("system", "s"),
		types.NewTextMessage("user", "a"),
		types.NewTextMessage("user", "b"),
		types.NewTextMessage("assistant", "c"),
		types.NewTextMessage("assistant", "d"),
	}
	got := AlternateRoles(msgs)
	want := []struct{ role, text string }{
		{"system", "s"},
		{"user", "a"},
		{"assistant", UnfinishedPlaceholder},
		{"user", "b"},
		{"assistant", "c"},
		{"user", UnfinishedPlaceholder},
		{"assistant", "d"},
	}
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d (%+v)", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Role != w.role || got[i].Text() != w.text {
			t.Fatalf("message %d: got (%s, %q), want (%s, %q)", i, got[i].Role, got[i].Text(), w.role, w.text)
		}
	}
}
