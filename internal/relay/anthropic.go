package relay

import (
	"context"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/stream"
	"github.com/n0madic/go-chatpipe/internal/types"
)

const (
	ThinkingMarker = "\n### Thinking\n"
	ResponseMarker = "\n\n### Response\n"
)

// Message is the relayed outcome of a non-streaming call: either text or a
// tool call envelope.
type Message struct {
	Text      string
	ToolCalls *types.ToolCallEnvelope
	Metrics   types.CacheMetrics
}

// AnthropicMessage extracts the caller-facing output of a Messages API reply.
// Tool use wins over text; the first thinking block is prepended only when
// showThinking is set.
func AnthropicMessage(resp *types.AnthropicResponse, showThinking bool) Message {
	out := Message{Metrics: resp.Usage.Metrics()}

	var calls []types.ToolCall
	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			calls = append(calls, types.NewToolCall(block.ID, block.Name, stream.SerializeToolArgs(block.Input)))
		}
	}
	if len(calls) > 0 {
		out.ToolCalls = types.NewToolCallEnvelope(calls...)
		out.Text = out.ToolCalls.String()
		return out
	}

	var thinking, text string
	var haveThinking, haveText bool
	for _, block := range resp.Content {
		switch block.Type {
		case "thinking":
			if !haveThinking {
				thinking, haveThinking = block.Thinking, true
			}
		case "text":
			if !haveText {
				text, haveText = block.Text, true
			}
		}
	}
	if showThinking && thinking != "" {
		out.Text = "### Thinking\n" + thinking + "\n\n### Response\n" + text
		return out
	}
	out.Text = text
	return out
}

type anthropicState int

const (
	stateIdle anthropicState = iota
	stateThinking
	stateTool
)

// AnthropicDecoder is the state machine of one Messages API stream.
type AnthropicDecoder struct {
	ShowThinking bool

	state anthropicState
	tools *stream.ToolBuffer
}

// NewAnthropicDecoder returns a decoder in the idle state.
func NewAnthropicDecoder(showThinking bool) *AnthropicDecoder {
	return &AnthropicDecoder{ShowThinking: showThinking, tools: stream.NewToolBuffer()}
}

func (d *AnthropicDecoder) Feed(_ context.Context, ev *stream.Event) ([]types.Chunk, bool) {
	var frame types.AnthropicStreamEvent
	if err := ev.Decode(&frame); err != nil {
		return nil, false
	}

	switch frame.Type {
	case "content_block_start":
		return d.blockStart(frame), false

	case "content_block_delta":
		return d.blockDelta(frame), false

	case "content_block_stop":
		return d.blockStop(frame), false

	case "message_stop":
		return nil, true

	case "error":
		msg, kind := "stream error", "error"
		if frame.Error != nil {
			msg, kind = frame.Error.Message, frame.Error.Type
		}
		return []types.Chunk{types.ErrorChunk(codec.Errorf(codec.UpstreamError, "%s: %s", kind, msg))}, true
	}
	return nil, false
}

func (d *AnthropicDecoder) Finish(context.Context) []types.Chunk { return nil }

func (d *AnthropicDecoder) blockStart(frame types.AnthropicStreamEvent) []types.Chunk {
	block := frame.ContentBlock
	if block == nil {
		return nil
	}
	switch block.Type {
	case "thinking":
		d.state = stateThinking
		if d.ShowThinking {
			return []types.Chunk{types.TextChunk(ThinkingMarker)}
		}
	case "tool_use":
		if !stream.IsEmptyToolArgs(block.Input) {
			call := types.NewToolCall(block.ID, block.Name, stream.SerializeToolArgs(block.Input))
			return []types.Chunk{types.ToolCallChunk(types.NewToolCallEnvelope(call))}
		}
		d.tools.Start(frame.Index, block.ID, block.Name)
		d.state = stateTool
	case "text":
		if block.Text != "" {
			return []types.Chunk{types.TextChunk(block.Text)}
		}
	}
	return nil
}

func (d *AnthropicDecoder) blockDelta(frame types.AnthropicStreamEvent) []types.Chunk {
	delta := frame.Delta
	if delta == nil {
		return nil
	}
	switch {
	case d.state == stateThinking:
		text := delta.Thinking
		if text == "" {
			text = delta.Text
		}
		if d.ShowThinking && text != "" {
			return []types.Chunk{types.TextChunk(text)}
		}
	case delta.Type == "input_json_delta":
		d.tools.Append(frame.Index, delta.PartialJSON)
	case delta.Text != "":
		return []types.Chunk{types.TextChunk(delta.Text)}
	}
	return nil
}

func (d *AnthropicDecoder) blockStop(frame types.AnthropicStreamEvent) []types.Chunk {
	switch d.state {
	case stateThinking:
		d.state = stateIdle
		if d.ShowThinking {
			return []types.Chunk{types.TextChunk(ResponseMarker)}
		}
	case stateTool:
		call, ok := d.tools.Finish(frame.Index)
		if !ok {
			return nil
		}
		d.state = stateIdle
		return []types.Chunk{types.ToolCallChunk(types.NewToolCallEnvelope(call))}
	}
	return nil
}
