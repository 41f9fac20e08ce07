package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// teeHandler hands each record to every member whose level admits it. Members
// keep their own levels, so the run log can be more verbose than the console.
type teeHandler []slog.Handler

// TeeHandler combines handlers; nil entries are dropped.
func TeeHandler(handlers ...slog.Handler) slog.Handler {
	var live teeHandler
	for _, h := range handlers {
		if h != nil {
			live = append(live, h)
		}
	}
	switch len(live) {
	case 0:
		return NoopHandler{}
	case 1:
		return live[0]
	}
	return live
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(t, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

// Handle returns every member failure joined together.
func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, record.Level) {
			errs = append(errs, h.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) teeHandler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = fn(h)
	}
	return next
}
