// Package logging configures the kernel's structured loggers. Besides
// the usual level and format selection, it can stamp records with the
// kernel's own monotonic clock, so log lines correlate with trace events
// recorded in kernel time rather than wall time.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/me/gokern/internal/clock"
)

// NewLogger creates a configured slog.Logger.
//
// level: slog level (DEBUG, INFO, WARN, ERROR)
// format: "text" (human-readable) or "json" (structured)
//
// Output goes to stderr: stdout is reserved for run summaries and trace
// listings.
func NewLogger(level slog.Level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to the given writer.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// WithKernelClock returns a logger that adds a kernel_time attribute to
// every record, read from clk at emit time. On a simulated clock this is
// the instant the kernel acted, not the instant the line was printed.
func WithKernelClock(logger *slog.Logger, clk clock.Clock) *slog.Logger {
	return slog.New(&clockHandler{inner: logger.Handler(), clk: clk})
}

type clockHandler struct {
	inner slog.Handler
	clk   clock.Clock
}

func (h *clockHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *clockHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.String("kernel_time", h.clk.Now().String()))
	return h.inner.Handle(ctx, r)
}

func (h *clockHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &clockHandler{inner: h.inner.WithAttrs(attrs), clk: h.clk}
}

func (h *clockHandler) WithGroup(name string) slog.Handler {
	return &clockHandler{inner: h.inner.WithGroup(name), clk: h.clk}
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
