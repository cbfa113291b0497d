package relay

import (
	"context"
	"io"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/jsonx"
	"github.com/n0madic/go-chatpipe/internal/status"
	"github.com/n0madic/go-chatpipe/internal/stream"
	"github.com/n0madic/go-chatpipe/internal/types"
)

const (
	StatusQuerying       = "Perplexity is querying online, please wait..."
	StatusFetchingTitles = "Fetching reference website titles, please wait..."
	reasoningSeparator   = "\n\n"
	thinkingNotStarted   = -1
	thinkingStarted      = 0
)

// PerplexityDecoder tracks citations and the reasoning marker of one stream.
type PerplexityDecoder struct {
	titles    TitleSource
	emitter   status.Emitter
	citations []string
	thinking  int
	content   bool
}

// NewPerplexityDecoder returns a decoder with an empty citation list.
func NewPerplexityDecoder(titles TitleSource, emitter status.Emitter) *PerplexityDecoder {
	return &PerplexityDecoder{titles: titles, emitter: emitter, thinking: thinkingNotStarted}
}

func (d *PerplexityDecoder) Feed(ctx context.Context, ev *stream.Event) ([]types.Chunk, bool) {
	var frame types.PerplexityChunk
	if err := ev.Decode(&frame); err != nil {
		return nil, false
	}
	if frame.Citations != nil {
		d.citations = *frame.Citations
	}
	if len(frame.Choices) == 0 {
		return nil, false
	}
	delta := frame.Choices[0].Delta

	var out []types.Chunk
	if d.thinking == thinkingNotStarted && delta.ReasoningContent != "" {
		d.thinking = thinkingStarted
		out = append(out, types.TextChunk(reasoningSeparator))
	}
	if delta.Content != "" {
		if !d.content {
			d.content = true
			status.Send(ctx, d.emitter, StatusQuerying, false)
		}
		out = append(out, types.TextChunk(RewriteCitations(delta.Content, d.citations)))
	}
	return out, false
}

// Finish appends the reference block built from the final citation list.
func (d *PerplexityDecoder) Finish(ctx context.Context) []types.Chunk {
	status.Send(ctx, d.emitter, StatusFetchingTitles, false)
	if refs := FormatReferences(ctx, d.citations, d.titles); refs != "" {
		return []types.Chunk{types.TextChunk(refs)}
	}
	return nil
}

type perplexityCompletion struct {
	Citations []string `json:"citations"`
	Choices   []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// PerplexityMessage relays a non-streaming completion: citations rewritten
// and the reference block appended.
func PerplexityMessage(ctx context.Context, body io.Reader, titles TitleSource, emitter status.Emitter) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", codec.Normalize(err)
	}
	var resp perplexityCompletion
	if err := jsonx.Unmarshal(raw, &resp); err != nil {
		return "", codec.Wrap(codec.DecodeError, err, "invalid perplexity response")
	}
	var text string
	if len(resp.Choices) > 0 {
		text = RewriteCitations(resp.Choices[0].Message.Content, resp.Citations)
	}
	status.Send(ctx, emitter, StatusFetchingTitles, false)
	return text + FormatReferences(ctx, resp.Citations, titles), nil
}
