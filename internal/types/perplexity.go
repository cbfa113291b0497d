package types

// PerplexityChunk is one frame of a Perplexity chat completion stream.
// Citations is nil when the frame does not carry the field.
type PerplexityChunk struct {
	ID        string             `json:"id,omitempty"`
	Model     string             `json:"model,omitempty"`
	Citations *[]string          `json:"citations,omitempty"`
	Choices   []PerplexityChoice `json:"choices"`
}

type PerplexityChoice struct {
	Index        int             `json:"index"`
	Delta        PerplexityDelta `json:"delta"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

type PerplexityDelta struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}
