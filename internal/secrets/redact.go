package secrets

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const redacted = "***REDACTED***"

// RedactHandler wraps a slog handler and scrubs resolved secret values from
// messages and string attributes, including those inside groups.
type RedactHandler struct {
	inner slog.Handler
	set   *secretSet
}

type secretSet struct {
	mu       sync.RWMutex
	values   map[string]struct{}
	replacer *strings.Replacer
}

func (s *secretSet) current() *strings.Replacer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.replacer
}

// NewRedactHandler creates a handler that redacts registered secrets.
func NewRedactHandler(inner slog.Handler) *RedactHandler {
	return &RedactHandler{
		inner: inner,
		set:   &secretSet{values: make(map[string]struct{})},
	}
}

// AddSecret registers a value to redact. Empty values are ignored. Handlers
// derived with WithAttrs or WithGroup see it too.
func (h *RedactHandler) AddSecret(value string) {
	if value == "" {
		return
	}
	s := h.set
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[value]; ok {
		return
	}
	s.values[value] = struct{}{}
	pairs := make([]string, 0, 2*len(s.values))
	for v := range s.values {
		pairs = append(pairs, v, redacted)
	}
	s.replacer = strings.NewReplacer(pairs...)
}

// RedactString replaces registered secrets in s.
func (h *RedactHandler) RedactString(s string) string {
	if r := h.set.current(); r != nil {
		return r.Replace(s)
	}
	return s
}

// Enabled delegates to the inner handler.
func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle redacts the record and passes it on.
func (h *RedactHandler) Handle(ctx context.Context, record slog.Record) error {
	r := h.set.current()
	if r == nil {
		return h.inner.Handle(ctx, record)
	}
	out := slog.NewRecord(record.Time, record.Level, r.Replace(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(r, a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs redacts attrs and shares the secret set.
func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if r := h.set.current(); r != nil {
		clean := make([]slog.Attr, len(attrs))
		for i, a := range attrs {
			clean[i] = redactAttr(r, a)
		}
		attrs = clean
	}
	return &RedactHandler{inner: h.inner.WithAttrs(attrs), set: h.set}
}

// WithGroup shares the secret set.
func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{inner: h.inner.WithGroup(name), set: h.set}
}

func redactAttr(r *strings.Replacer, a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.Replace(v.String()))
	case slog.KindGroup:
		group := v.Group()
		out := make([]any, len(group))
		for i, g := range group {
			out[i] = redactAttr(r, g)
		}
		return slog.Group(a.Key, out...)
	default:
		return a
	}
}
