package logbuf

import (
	"context"
	"log/slog"
	"strings"
)

// Handler is an slog.Handler that captures entries into a Buffer
// and delegates to an inner handler.
type Handler struct {
	inner  slog.Handler
	buf    *Buffer
	attrs  []boundAttr
	prefix string // open groups joined with "."
}

// boundAttr is an attribute from WithAttrs with the group prefix that was
// open when it was bound.
type boundAttr struct {
	prefix string
	attr   slog.Attr
}

// NewHandler creates a handler that writes to both buf and inner.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

// Enabled is always true so the buffer sees every level; Handle applies the
// inner handler's level filter before delegating.
func (h *Handler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, b := range h.attrs {
		collect(attrs, b.prefix, b.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(attrs, h.prefix, a)
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	h.buf.Write(Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		Attrs:   attrs,
	})

	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

// collect flattens a into dst, resolving LogValuers (so redacted values
// stay redacted) and expanding groups into dotted keys.
func collect(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	key := a.Key
	if prefix != "" {
		key = strings.TrimSuffix(prefix+"."+a.Key, ".")
	}

	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			// An inline group (empty key) keeps the current prefix.
			collect(dst, key, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}

	raw := v.Any()
	// Errors serialize to {} otherwise.
	if err, ok := raw.(error); ok {
		raw = err.Error()
	}
	dst[key] = raw
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := h.attrs[:len(h.attrs):len(h.attrs)]
	for _, a := range attrs {
		bound = append(bound, boundAttr{prefix: h.prefix, attr: a})
	}
	return &Handler{
		inner:  h.inner.WithAttrs(attrs),
		buf:    h.buf,
		attrs:  bound,
		prefix: h.prefix,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	prefix := name
	if h.prefix != "" {
		prefix = h.prefix + "." + name
	}
	return &Handler{
		inner:  h.inner.WithGroup(name),
		buf:    h.buf,
		attrs:  h.attrs,
		prefix: prefix,
	}
}
