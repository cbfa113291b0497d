package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/jsonx"
	"github.com/n0madic/go-chatpipe/internal/pipe"
	"github.com/n0madic/go-chatpipe/internal/status"
	"github.com/n0madic/go-chatpipe/internal/types"
)

type modelList struct {
	Object string         `json:"object"`
	Data   []openai.Model `json:"data"`
}

func (s *Server) handleListModels(c *gin.Context) {
	infos := s.Pipes.Models()
	list := modelList{Object: "list", Data: make([]openai.Model, 0, len(infos))}
	for _, m := range infos {
		list.Data = append(list.Data, openai.Model{
			ID:         m.ID,
			Object:     "model",
			OwnedBy:    m.OwnedBy,
			Root:       m.Name,
			Permission: []openai.Permission{},
		})
	}
	codec.WriteJSON(c.Writer, http.StatusOK, list)
}

func (s *Server) handleChatCompletions(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		codec.WriteOpenAIError(c.Writer, http.StatusBadRequest, "invalid_request_error", "Failed to read request body")
		return
	}
	var req types.ChatRequest
	if err := jsonx.Unmarshal(body, &req); err != nil {
		codec.WriteOpenAIError(c.Writer, http.StatusBadRequest, "invalid_request_error", "Invalid JSON body: "+err.Error())
		return
	}
	if req.Stream == nil {
		streaming := false
		req.Stream = &streaming
	}

	ctx := c.Request.Context()
	if !*req.Stream {
		s.writeCollected(ctx, c.Writer, &req)
		return
	}
	s.writeStream(ctx, c.Writer, &req, s.statusEvents(c.Request))
}

// statusEventsHeader lets a client opt in to status frames per request.
const statusEventsHeader = "X-Chatpipe-Status"

// statusEvents reports whether status frames go on the stream. The request
// header, when present, overrides the server default.
func (s *Server) statusEvents(r *http.Request) bool {
	v := strings.ToLower(strings.TrimSpace(r.Header.Get(statusEventsHeader)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return s.Config.StatusEvents
}

func (s *Server) writeCollected(ctx context.Context, w http.ResponseWriter, req *types.ChatRequest) {
	res, err := s.Pipes.Run(ctx, req, status.Log{})
	if err != nil {
		codec.WriteError(w, err)
		return
	}
	if res.Streaming() {
		collected, err := collectResult(res)
		if err != nil {
			codec.WriteError(w, err)
			return
		}
		res = collected
	}
	codec.WriteJSON(w, http.StatusOK, codec.NewChatEncoder(req.Model).Completion(res.Text, res.ToolCalls))
}

// collectResult drains a streamed result into a final one.
func collectResult(res *pipe.Result) (*pipe.Result, error) {
	out := &pipe.Result{}
	var text []byte
	for c := range res.Stream {
		switch c.Kind {
		case types.ChunkError:
			return nil, c.Err
		case types.ChunkToolCalls:
			if out.ToolCalls == nil {
				out.ToolCalls = types.NewToolCallEnvelope()
			}
			out.ToolCalls.ToolCalls = append(out.ToolCalls.ToolCalls, c.ToolCalls.ToolCalls...)
		default:
			text = append(text, c.Text...)
		}
	}
	out.Text = string(text)
	return out, nil
}

func (s *Server) writeStream(ctx context.Context, w http.ResponseWriter, req *types.ChatRequest, withStatus bool) {
	var emitter status.Emitter = status.Log{}
	var sink *streamStatus
	if withStatus {
		sink = &streamStatus{}
		emitter = status.Multi{status.Log{}, sink}
	}
	res, err := s.Pipes.Run(ctx, req, emitter)
	if err != nil {
		codec.WriteError(w, err)
		return
	}

	enc := codec.NewChatEncoder(req.Model)
	sse := codec.NewSSEWriter(w)
	sse.WriteStreamHeaders(http.StatusOK)
	if sink != nil {
		sink.attach(sse)
	}

	if !res.Streaming() {
		chunk := types.TextChunk(res.Text)
		if res.ToolCalls != nil {
			chunk = types.ToolCallChunk(res.ToolCalls)
		}
		sse.Data(enc.Delta(chunk))
	} else {
		for chunk := range res.Stream {
			if chunk.Kind == types.ChunkError {
				sse.Data(codec.ErrorEnvelope(chunk.Err))
				sse.Done()
				return
			}
			if !sse.Data(enc.Delta(chunk)) {
				return
			}
		}
	}
	sse.Data(enc.Stop())
	sse.Done()
}

// streamStatus holds status events until the stream headers are out, then
// writes them as status frames.
type streamStatus struct {
	mu      sync.Mutex
	sse     *codec.SSEWriter
	pending []status.Event
}

func (s *streamStatus) Emit(_ context.Context, ev status.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sse == nil {
		s.pending = append(s.pending, ev)
		return
	}
	s.sse.Event("status", ev)
}

func (s *streamStatus) attach(sse *codec.SSEWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sse = sse
	for _, ev := range s.pending {
		sse.Event("status", ev)
	}
	s.pending = nil
}
