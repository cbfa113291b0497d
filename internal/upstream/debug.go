package upstream

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
)

// dumper copies upstream responses to w between BEGIN/END markers. Stream
// bodies are written one complete SSE frame at a time.
type dumper struct {
	mu sync.Mutex
	w  io.Writer
}

// newDumper returns a stderr dumper when verbose is set and nil otherwise.
// A nil dumper is a no-op.
func newDumper(verbose bool) *dumper {
	if !verbose {
		return nil
	}
	return &dumper{w: os.Stderr}
}

// response writes the status line and headers right away and wraps the body
// so it is copied out as the caller reads it.
func (d *dumper) response(provider string, resp *http.Response) {
	if d == nil || resp == nil {
		return
	}
	name := strings.ToUpper(provider)

	head, err := httputil.DumpResponse(resp, false)
	if err != nil {
		slog.Error("upstream.response.dump.failed", "provider", provider, "error", err)
	} else {
		d.block(name+" RESPONSE", head)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return
	}
	title := fmt.Sprintf("%s RESPONSE BODY status=%d", name, resp.StatusCode)
	d.boundary(title, true)
	resp.Body = &dumpReadCloser{
		src:   resp.Body,
		d:     d,
		title: title,
		sse:   strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/event-stream"),
	}
}

func (d *dumper) block(title string, data []byte) {
	d.boundary(title, true)
	if len(data) > 0 {
		d.write(data)
		if data[len(data)-1] != '\n' {
			d.write([]byte("\n"))
		}
	}
	d.boundary(title, false)
}

func (d *dumper) boundary(title string, begin bool) {
	kind := "END"
	if begin {
		kind = "BEGIN"
	}
	d.write([]byte("===== " + strings.TrimSpace(title) + " " + kind + " =====\n"))
}

func (d *dumper) write(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.w.Write(data); err != nil {
		slog.Error("upstream.dump.write.failed", "error", err)
	}
}

type dumpReadCloser struct {
	src   io.ReadCloser
	d     *dumper
	title string
	sse   bool
	buf   []byte
	wrote bool
	last  byte
	done  bool
}

func (r *dumpReadCloser) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		if r.sse {
			r.buf = append(r.buf, p[:n]...)
			r.flushFrames()
		} else {
			r.emit(p[:n])
		}
	}
	if err != nil {
		r.finish()
	}
	return n, err
}

func (r *dumpReadCloser) Close() error {
	err := r.src.Close()
	r.finish()
	return err
}

func (r *dumpReadCloser) flushFrames() {
	for {
		i := bytes.Index(r.buf, []byte("\n\n"))
		if i < 0 {
			return
		}
		r.emit(r.buf[:i+2])
		r.buf = r.buf[i+2:]
	}
}

func (r *dumpReadCloser) emit(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	r.wrote = true
	r.last = chunk[len(chunk)-1]
	r.d.write(chunk)
}

func (r *dumpReadCloser) finish() {
	if r.done {
		return
	}
	r.done = true
	r.emit(r.buf)
	r.buf = nil
	if r.wrote && r.last != '\n' {
		r.d.write([]byte("\n"))
	}
	r.d.boundary(r.title, false)
}
