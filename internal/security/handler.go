package security

import (
	"context"
	"log/slog"
)

// RedactingHandler sanitizes the message and string-like attributes of
// every record before passing it on.
type RedactingHandler struct {
	next      slog.Handler
	sanitizer *Sanitizer
}

func NewRedactingHandler(next slog.Handler, sanitizer *Sanitizer) *RedactingHandler {
	return &RedactingHandler{next: next, sanitizer: sanitizer}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.sanitizer.Sanitize(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.redactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(clean), sanitizer: h.sanitizer}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), sanitizer: h.sanitizer}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.sanitizer.Sanitize(v.String()))
	case slog.KindGroup:
		group := v.Group()
		clean := make([]any, len(group))
		for i, ga := range group {
			clean[i] = h.redactAttr(ga)
		}
		return slog.Group(a.Key, clean...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, h.sanitizer.Sanitize(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}
