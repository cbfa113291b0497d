// Package pipe wires translation, transport and relay into runnable model
// providers.
package pipe

import (
	"context"
	"iter"
	"strings"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/models"
	"github.com/n0madic/go-chatpipe/internal/status"
	"github.com/n0madic/go-chatpipe/internal/types"
)

// Result is the outcome of a pipe run: a final string, a tool call envelope,
// or a lazily consumed chunk stream.
type Result struct {
	Text      string
	ToolCalls *types.ToolCallEnvelope
	Stream    iter.Seq[types.Chunk]
}

// Streaming reports whether the result must be consumed through Stream.
func (r *Result) Streaming() bool { return r != nil && r.Stream != nil }

// Pipe is one upstream provider.
type Pipe interface {
	ID() string
	Handles(model string) bool
	Models() []models.Info
	Run(ctx context.Context, req *types.ChatRequest, emitter status.Emitter) (*Result, error)
}

// Registry routes requests to the pipe serving the model.
type Registry struct {
	pipes []Pipe
}

// NewRegistry returns a registry trying pipes in order.
func NewRegistry(pipes ...Pipe) *Registry {
	return &Registry{pipes: pipes}
}

// Resolve finds the pipe for model.
func (r *Registry) Resolve(model string) (Pipe, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, codec.Errorf(codec.ValidationError, "model is required")
	}
	for _, p := range r.pipes {
		if p.Handles(model) {
			return p, nil
		}
	}
	return nil, codec.Errorf(codec.ValidationError, "no pipe serves model %q", model)
}

// Run resolves the pipe for req.Model and runs it.
func (r *Registry) Run(ctx context.Context, req *types.ChatRequest, emitter status.Emitter) (*Result, error) {
	if req == nil {
		return nil, codec.Errorf(codec.ValidationError, "request body is required")
	}
	p, err := r.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, req, emitter)
}

// Models lists the models of every pipe.
func (r *Registry) Models() []models.Info {
	lists := make([][]models.Info, 0, len(r.pipes))
	for _, p := range r.pipes {
		lists = append(lists, p.Models())
	}
	return models.Merge(lists...)
}

// fail reports err on the emitter as the final status and returns it normalized.
func fail(ctx context.Context, emitter status.Emitter, err error) error {
	e := codec.Normalize(err)
	status.Send(ctx, emitter, e.Error(), true)
	return e
}

// withStatus forwards seq and emits the final status when it ends: the error
// text on an error chunk, doneMsg otherwise. Nothing is emitted when the
// consumer stops early.
func withStatus(ctx context.Context, seq iter.Seq[types.Chunk], emitter status.Emitter, doneMsg string) iter.Seq[types.Chunk] {
	return func(yield func(types.Chunk) bool) {
		for c := range seq {
			if c.Kind == types.ChunkError {
				status.Send(ctx, emitter, c.Text, true)
				yield(c)
				return
			}
			if !yield(c) {
				return
			}
		}
		status.Send(ctx, emitter, doneMsg, true)
	}
}
