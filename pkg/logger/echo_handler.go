package logger

import (
	"context"
	"log/slog"
)

// echoingHandler writes every record to inner, and additionally to echo
// when the record is error-level, mirroring the original daemon's
// file-plus-stderr-on-error logging behavior.
type echoingHandler struct {
	inner slog.Handler
	echo  slog.Handler
}

func (h *echoingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level) || h.echo.Enabled(ctx, level)
}

func (h *echoingHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.inner.Enabled(ctx, record.Level) {
		if err := h.inner.Handle(ctx, record); err != nil {
			return err
		}
	}
	if record.Level >= slog.LevelError && h.echo.Enabled(ctx, record.Level) {
		return h.echo.Handle(ctx, record)
	}
	return nil
}

func (h *echoingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &echoingHandler{inner: h.inner.WithAttrs(attrs), echo: h.echo.WithAttrs(attrs)}
}

func (h *echoingHandler) WithGroup(name string) slog.Handler {
	return &echoingHandler{inner: h.inner.WithGroup(name), echo: h.echo.WithGroup(name)}
}
