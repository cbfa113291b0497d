package transform

import (
	"regexp"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/n0madic/go-chatpipe/internal/config"
	"github.com/n0madic/go-chatpipe/internal/models"
	"github.com/n0madic/go-chatpipe/internal/types"
)

// UnfinishedPlaceholder fills the gap between two consecutive same-role turns.
const UnfinishedPlaceholder = "[Unfinished thinking]"

var imageLinkRe = regexp.MustCompile(`(?i)(https?://\S+?\.(?:png|jpg|jpeg|gif|bmp|tiff|webp))`)

// PerplexityOutbound is a validated chat/completions call for Perplexity.
type PerplexityOutbound struct {
	Model    string
	Messages []types.Message
	Params   openai.ChatCompletionNewParams
	Options  []option.RequestOption
	Stream   bool
}

// BuildPerplexity resolves the sonar model, cleans up the conversation and
// builds the SDK request.
func BuildPerplexity(req *types.ChatRequest, valves config.PerplexityValves) (*PerplexityOutbound, error) {
	model, err := models.ResolvePerplexityModel(req.Model, valves.NamePrefix)
	if err != nil {
		return nil, err
	}

	var msgs []types.Message
	if s := strings.TrimSpace(req.System); s != "" {
		msgs = append(msgs, types.NewTextMessage("system", s))
	}
	for _, m := range req.Messages {
		msgs = append(msgs, types.NewTextMessage(m.Role, m.Text()))
	}
	StripImageLinks(msgs)
	msgs = AlternateRoles(msgs)

	stream := req.Streaming(true)
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)),
	}
	for _, m := range msgs {
		params.Messages = append(params.Messages, messageToSDK(m))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}

	opts := []option.RequestOption{option.WithJSONSet("stream", stream)}
	if req.TopK != nil {
		opts = append(opts, option.WithJSONSet("top_k", *req.TopK))
	}

	return &PerplexityOutbound{
		Model:    model,
		Messages: msgs,
		Params:   params,
		Options:  opts,
		Stream:   stream,
	}, nil
}

// StripImageLinks removes image URLs from the last message when it is a user turn.
func StripImageLinks(msgs []types.Message) {
	if len(msgs) == 0 {
		return
	}
	last := &msgs[len(msgs)-1]
	if last.Role != "user" {
		return
	}
	cleaned := strings.TrimSpace(imageLinkRe.ReplaceAllString(last.Text(), ""))
	*last = types.NewTextMessage("user", cleaned)
}

// AlternateRoles inserts a placeholder turn of the opposite role between
// consecutive messages that share a role.
func AlternateRoles(msgs []types.Message) []types.Message {
	if len(msgs) < 2 {
		return msgs
	}
	out := make([]types.Message, 0, len(msgs))
	for i, m := range msgs {
		if i > 0 && msgs[i-1].Role == m.Role {
			alt := "user"
			if m.Role == "user" {
				alt = "assistant"
			}
			out = append(out, types.NewTextMessage(alt, UnfinishedPlaceholder))
		}
		out = append(out, m)
	}
	return out
}

func messageToSDK(m types.Message) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case "system":
		return openai.SystemMessage(m.Text())
	case "assistant":
		return openai.AssistantMessage(m.Text())
	default:
		return openai.UserMessage(m.Text())
	}
}
