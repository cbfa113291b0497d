// Package relay turns upstream responses into the chunk stream handed to
// callers.
package relay

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/stream"
	"github.com/n0madic/go-chatpipe/internal/types"
)

// Decoder consumes frames of one stream. It is owned by a single stream and
// never shared.
type Decoder interface {
	// Feed handles one frame and reports whether the stream is complete.
	Feed(ctx context.Context, ev *stream.Event) (chunks []types.Chunk, done bool)
	// Finish returns trailing output once the stream ended without error.
	Finish(ctx context.Context) []types.Chunk
}

// Relay reads body frame by frame through dec. The body is closed when the
// stream ends, fails, or the consumer stops early. An error chunk is always
// the last one yielded.
func Relay(ctx context.Context, body io.ReadCloser, dec Decoder) iter.Seq[types.Chunk] {
	return func(yield func(types.Chunk) bool) {
		defer body.Close()
		r := stream.NewReader(body)
		for {
			if err := ctx.Err(); err != nil {
				yield(types.ErrorChunk(codec.Normalize(err)))
				return
			}
			ev, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				yield(types.ErrorChunk(codec.Normalize(err)))
				return
			}
			chunks, done := dec.Feed(ctx, ev)
			for _, c := range chunks {
				if !yield(c) || c.Kind == types.ChunkError {
					return
				}
			}
			if done {
				break
			}
		}
		for _, c := range dec.Finish(ctx) {
			if !yield(c) || c.Kind == types.ChunkError {
				return
			}
		}
	}
}

// Collect drains a chunk sequence into a single string. Tool call chunks are
// included as their JSON envelope; the first error chunk aborts collection.
func Collect(seq iter.Seq[types.Chunk]) (string, error) {
	var out []byte
	for c := range seq {
		if c.Kind == types.ChunkError {
			return string(out), c.Err
		}
		out = append(out, c.Text...)
	}
	return string(out), nil
}
