package stream

import (
	"bufio"
	"io"
	"log/slog"
	"strings"

	"github.com/n0madic/go-chatpipe/internal/jsonx"
)

// DoneMarker terminates a stream when sent as a frame payload.
const DoneMarker = "[DONE]"

var unmarshal = jsonx.Unmarshal

// Reader reads data frames from a line-oriented event stream.
type Reader struct {
	scanner *bufio.Scanner
	skipped int
}

// NewReader creates a new frame reader.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)
	return &Reader{scanner: scanner}
}

// Next returns the next well-formed frame. Lines without a data prefix and
// frames that are not valid JSON are skipped. Returns nil, io.EOF at the end
// of the stream or on the [DONE] marker.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(line[len("data:"):])
		if data == "" {
			continue
		}
		if data == DoneMarker {
			return nil, io.EOF
		}
		var head struct {
			Type string `json:"type"`
		}
		raw := []byte(data)
		if err := unmarshal(raw, &head); err != nil {
			r.skipped++
			slog.Debug("stream.frame.skipped", "error", err, "bytes", len(raw))
			continue
		}
		return &Event{Type: head.Type, Raw: raw}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Skipped reports how many malformed frames were dropped so far.
func (r *Reader) Skipped() int { return r.skipped }
