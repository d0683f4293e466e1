package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/concierge/core/config"
)

// Setup installs the default slog logger. Production with an OTLP endpoint
// ships records through the OTel log bridge; otherwise JSON (production) or
// text goes to stdout. Context LogFields are attached on every path.
func Setup(cfg config.Config) {
	slog.SetDefault(slog.New(newHandler(cfg, os.Stdout)))
}

func newHandler(cfg config.Config, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: Level(cfg.LogLevel, cfg.IsDevelopment())}

	switch {
	case cfg.IsProduction() && cfg.OTel.Enabled():
		// The bridge records trace context itself.
		bridge := otelslog.NewHandler(
			cfg.OTel.ServiceName,
			otelslog.WithLoggerProvider(global.GetLoggerProvider()),
		)
		return &TraceHandler{Handler: bridge, skipTraceIDs: true}
	case cfg.IsProduction():
		return NewTraceHandler(slog.NewJSONHandler(w, opts))
	default:
		return NewTraceHandler(slog.NewTextHandler(w, opts))
	}
}

// Level parses a LOG_LEVEL value. Unknown or empty values fall back to debug
// in development and info elsewhere.
func Level(name string, development bool) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err == nil && name != "" {
		return level
	}
	if development {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// TraceHandler decorates records with the active span and the LogFields
// carried by the context.
type TraceHandler struct {
	slog.Handler
	skipTraceIDs bool
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.skipTraceIDs {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			r.AddAttrs(
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
	}
	r.AddAttrs(GetLogFields(ctx).attrs()...)
	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs), skipTraceIDs: h.skipTraceIDs}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name), skipTraceIDs: h.skipTraceIDs}
}
