package models

import "sort"

// Info is one listed model.
type Info struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	OwnedBy          string `json:"owned_by"`
	ContextLength    int    `json:"context_length,omitempty"`
	SupportsVision   bool   `json:"supports_vision,omitempty"`
	SupportsThinking bool   `json:"supports_thinking,omitempty"`
}

// AnthropicCatalog lists the Claude models under the "anthropic/" namespace.
func AnthropicCatalog() []Info {
	out := make([]Info, 0, len(anthropicModels))
	for _, m := range anthropicModels {
		out = append(out, Info{
			ID:               "anthropic/" + m.Name,
			Name:             m.Name,
			OwnedBy:          "anthropic",
			ContextLength:    m.ContextLength,
			SupportsVision:   m.Vision,
			SupportsThinking: m.Thinking,
		})
	}
	return out
}

// PerplexityCatalog lists the sonar models with prefixed display names.
func PerplexityCatalog(prefix string) []Info {
	out := make([]Info, 0, len(PerplexityModels))
	for _, m := range PerplexityModels {
		out = append(out, Info{
			ID:      m,
			Name:    PerplexityDisplayName(prefix, m),
			OwnedBy: "perplexity",
		})
	}
	return out
}

// Merge concatenates catalogs, dropping duplicate ids, sorted by id.
func Merge(lists ...[]Info) []Info {
	seen := map[string]bool{}
	var out []Info
	for _, list := range lists {
		for _, m := range list {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
