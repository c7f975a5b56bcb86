package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"
)

var logger *slog.Logger

// Options configures the process logger.
type Options struct {
	Service     string
	Environment string
	Level       string    // debug, info, warn, error
	Format      string    // json or text
	Output      io.Writer // defaults to stderr
}

// Init installs the process logger. Records go to Output and to the global
// OTel logger provider, which is a no-op until telemetry.Init has run.
func Init(opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	if opts.Environment == "development" && opts.Level == "" {
		handlerOpts.Level = slog.LevelDebug
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var local slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		local = slog.NewTextHandler(out, handlerOpts)
	} else {
		local = slog.NewJSONHandler(out, handlerOpts)
	}
	otelHandler := otelslog.NewHandler(opts.Service, otelslog.WithLoggerProvider(global.GetLoggerProvider()))

	logger = slog.New(&multiHandler{handlers: []slog.Handler{local, otelHandler}}).With(
		slog.String("service", opts.Service),
		slog.String("environment", opts.Environment),
	)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Logger() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// WithContext returns the logger annotated with the trace and span of ctx.
func WithContext(ctx context.Context) *slog.Logger {
	return FromLogger(ctx, Logger())
}

// FromLogger annotates l with the trace and span of ctx.
func FromLogger(ctx context.Context, l *slog.Logger) *slog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return l
	}
	return l.With(
		slog.String("traceId", span.SpanContext().TraceID().String()),
		slog.String("spanId", span.SpanContext().SpanID().String()),
	)
}

// multiHandler sends logs to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
