package logbuf

import (
	"context"
	"log/slog"
	"strings"
)

// Handler is an slog.Handler that captures entries into a Buffer
// and delegates to an inner handler.
type Handler struct {
	inner   slog.Handler
	buf     *Buffer
	capture slog.Leveler
	attrs   []slog.Attr
	groups  []string
}

// NewHandler creates a handler that writes to both buf and inner. Records
// at or above capture go to the buffer even when inner would drop them.
func NewHandler(inner slog.Handler, buf *Buffer, capture slog.Leveler) *Handler {
	if capture == nil {
		capture = slog.LevelDebug
	}
	return &Handler{inner: inner, buf: buf, capture: capture}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.capture.Level() || h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.capture.Level() {
		h.buf.Write(h.entry(r))
	}
	// Stdout keeps its own level filter.
	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) entry(r slog.Record) Entry {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = resolveAttrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[prefix+a.Key] = resolveAttrValue(a.Value)
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	return Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		Attrs:   attrs,
		level:   r.Level,
	}
}

// resolveAttrValue converts slog values to JSON-safe types. Errors become
// their message so they do not marshal to {}.
func resolveAttrValue(v slog.Value) any {
	v = v.Resolve()
	raw := v.Any()
	if err, ok := raw.(error); ok {
		return err.Error()
	}
	return raw
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	bound := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(bound, h.attrs)
	for _, a := range attrs {
		bound = append(bound, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	return &Handler{
		inner:   h.inner.WithAttrs(attrs),
		buf:     h.buf,
		capture: h.capture,
		attrs:   bound,
		groups:  h.groups,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{
		inner:   h.inner.WithGroup(name),
		buf:     h.buf,
		capture: h.capture,
		attrs:   h.attrs,
		groups:  append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}
