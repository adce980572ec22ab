// Package tracing times the phases of a query or validation run as a tree
// of spans carried through the context. Finished trees are written to slog,
// one line per span, so a single run can be reconstructed from the log.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one timed phase of a run. Child spans nest under the span that was
// active in the context when they started.
type Span struct {
	name    string
	traceID string
	start   time.Time
	elapsed time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    []any
}

// StartSpan opens a root span identified by traceID and returns a context
// carrying it.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{name: name, traceID: traceID, start: time.Now()}
	return context.WithValue(ctx, contextKey{}, s), s
}

// StartChildSpan opens a span nested under the one in ctx. Without a parent
// in ctx the span becomes a root with an empty trace ID.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{name: name, start: time.Now()}
	if parent := SpanFromContext(ctx); parent != nil {
		s.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, s), s
}

// SpanFromContext returns the active span in ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(contextKey{}).(*Span)
	return s
}

// End freezes the span's duration. Ending twice keeps the first duration.
func (s *Span) End() {
	if s.elapsed == 0 {
		s.elapsed = time.Since(s.start)
	}
}

// SetAttr records a key-value pair emitted with the span's log line.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// Log writes the span and its descendants to slog. Each line carries the
// slash-joined path from the root so the tree shape survives flat log
// storage.
func (s *Span) Log() {
	s.log("")
}

func (s *Span) log(prefix string) {
	path := s.name
	if prefix != "" {
		path = prefix + "/" + s.name
	}
	args := []any{
		"trace_id", s.traceID,
		"span", path,
		"duration_ms", s.elapsed.Milliseconds(),
	}
	s.mu.Lock()
	args = append(args, s.attrs...)
	children := s.children
	s.mu.Unlock()
	slog.Info("span", args...)
	for _, child := range children {
		child.log(path)
	}
}
