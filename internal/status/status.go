// Package status carries progress notifications from a pipe to its host.
package status

import (
	"context"
	"log/slog"
	"sync"
)

// Event is a progress notification. Done marks the final event of a request.
type Event struct {
	Type string `json:"type"`
	Data Data   `json:"data"`
}

type Data struct {
	Description string `json:"description"`
	Done        bool   `json:"done"`
}

// New builds a status event.
func New(description string, done bool) Event {
	return Event{Type: "status", Data: Data{Description: description, Done: done}}
}

// Emitter receives status events. Implementations must be safe to call from
// the goroutine that drives the stream.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev Event)

func (f EmitterFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// Nop drops every event.
var Nop Emitter = EmitterFunc(func(context.Context, Event) {})

// Send emits on e, tolerating a nil emitter.
func Send(ctx context.Context, e Emitter, description string, done bool) {
	if e == nil {
		return
	}
	e.Emit(ctx, New(description, done))
}

// Log writes events to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Emit(ctx context.Context, ev Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "pipe.status", "description", ev.Data.Description, "done", ev.Data.Done)
}

// Multi fans an event out to several emitters in order.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, ev)
		}
	}
}

// Collector records events; used by tests and one-shot callers.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Emit(_ context.Context, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a copy of the recorded events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Descriptions returns the recorded descriptions in order.
func (c *Collector) Descriptions() []string {
	events := c.Events()
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Data.Description
	}
	return out
}
