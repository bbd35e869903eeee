// Package diag keeps a bounded in-memory ring of recent log entries so the
// gateway can expose them over HTTP for remote troubleshooting.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries retained when none is specified.
const DefaultCapacity = 100

// Buffer is a fixed-capacity ring of formatted log lines.
// It is safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	entries []string
	next    int
	full    bool
}

// NewBuffer creates a buffer retaining the last capacity entries.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{entries: make([]string, capacity)}
}

// Add appends a line, evicting the oldest when full.
func (b *Buffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = line
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Entries returns the retained lines, oldest first.
func (b *Buffer) Entries() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		out := make([]string, b.next)
		copy(out, b.entries[:b.next])
		return out
	}
	out := make([]string, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	out = append(out, b.entries[:b.next]...)
	return out
}

// Handler is an slog.Handler that records every entry into a Buffer and
// forwards it to an inner handler. Wrap the application handler with it at
// startup so the ring sees the same stream as stderr.
type Handler struct {
	inner slog.Handler
	buf   *Buffer
	attrs []slog.Attr
}

// NewHandler wraps inner so records are mirrored into buf.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

// Enabled defers to the inner handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle records the entry and forwards it.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(r.Time.Format(time.DateTime))
	sb.WriteString("] ")
	sb.WriteString(r.Level.String())
	sb.WriteString(": ")
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	})
	h.buf.Add(sb.String())
	return h.inner.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &Handler{inner: h.inner.WithAttrs(attrs), buf: h.buf, attrs: merged}
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), buf: h.buf, attrs: h.attrs}
}
