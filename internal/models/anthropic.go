package models

import "strings"

const (
	// AnthropicFallbackMaxTokens applies to model ids missing from the table.
	AnthropicFallbackMaxTokens = 4096

	// AnthropicContextLength is the input window of every listed Claude model.
	AnthropicContextLength = 200000
)

// AnthropicModel describes what a Claude model accepts.
type AnthropicModel struct {
	Name           string
	MaxTokens      int
	ContextLength  int
	Vision         bool
	Thinking       bool
	PDF            bool
	Output128kBeta bool
}

var anthropicModels = []AnthropicModel{
	{Name: "claude-3-opus-20240229", MaxTokens: 4096},
	{Name: "claude-3-sonnet-20240229", MaxTokens: 4096},
	{Name: "claude-3-haiku-20240307", MaxTokens: 4096},
	{Name: "claude-3-5-sonnet-20240620", MaxTokens: 8192, PDF: true},
	{Name: "claude-3-5-sonnet-20241022", MaxTokens: 8192, PDF: true},
	{Name: "claude-3-5-haiku-20241022", MaxTokens: 8192},
	{Name: "claude-3-opus-latest", MaxTokens: 4096},
	{Name: "claude-3-5-sonnet-latest", MaxTokens: 8192},
	{Name: "claude-3-5-haiku-latest", MaxTokens: 8192},
	{Name: "claude-3-7-sonnet-latest", MaxTokens: 16384, PDF: true, Thinking: true, Output128kBeta: true},
	{Name: "claude-opus-4-0", MaxTokens: 32000, Thinking: true},
	{Name: "claude-sonnet-4-0", MaxTokens: 64000, Thinking: true},
}

func init() {
	for i := range anthropicModels {
		m := &anthropicModels[i]
		m.ContextLength = AnthropicContextLength
		m.Vision = m.Name != "claude-3-5-haiku-20241022"
	}
}

// ResolveAnthropicModel strips any provider prefix ("anthropic/claude-...")
// and looks the id up in the table.
func ResolveAnthropicModel(id string) (AnthropicModel, bool) {
	name := strings.TrimSpace(id)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	for _, m := range anthropicModels {
		if m.Name == name {
			return m, true
		}
	}
	return AnthropicModel{Name: name, MaxTokens: AnthropicFallbackMaxTokens, ContextLength: AnthropicContextLength, Vision: true}, false
}

// MaxOutputTokens picks the max_tokens value for a request. With useMax the
// model ceiling wins; otherwise the requested value is capped at the ceiling.
func (m AnthropicModel) MaxOutputTokens(requested *int, useMax bool) int {
	ceiling := m.MaxTokens
	if ceiling <= 0 {
		ceiling = AnthropicFallbackMaxTokens
	}
	if useMax || requested == nil || *requested <= 0 {
		return ceiling
	}
	return min(*requested, ceiling)
}

// PDFModels lists the models that accept document blocks.
func PDFModels() []string {
	var out []string
	for _, m := range anthropicModels {
		if m.PDF {
			out = append(out, m.Name)
		}
	}
	return out
}
