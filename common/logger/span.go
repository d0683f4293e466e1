package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "concierge"

// SpanContext pairs a span with the context that carries it.
type SpanContext struct {
	ctx  context.Context
	span trace.Span
}

// StartSpan starts a child of whatever span ctx carries. End must be called.
//
//	sc := logger.StartSpan(ctx, "brain.handle_message")
//	defer sc.End()
//	ctx = sc.Context()
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) *SpanContext {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, opts...)
	return &SpanContext{ctx: ctx, span: span}
}

// StartRemoteSpan continues a trace that crossed a process boundary, such as
// a ticket job on the Redis stream. With both ids valid the new span is a
// child of the remote span. With only a trace id it becomes a new root that
// records the remote trace id as an attribute, since OTel drops parents
// without a span id. Anything else behaves like StartSpan.
func StartRemoteSpan(ctx context.Context, traceIDHex, spanIDHex, name string, opts ...trace.SpanStartOption) *SpanContext {
	traceID, err := trace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return StartSpan(ctx, name, opts...)
	}

	if spanID, err := trace.SpanIDFromHex(spanIDHex); err == nil {
		parent := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})
		return StartSpan(trace.ContextWithRemoteSpanContext(ctx, parent), name, opts...)
	}

	opts = append(opts,
		trace.WithNewRoot(),
		trace.WithAttributes(attribute.String("remote.trace_id", traceID.String())),
	)
	return StartSpan(ctx, name, opts...)
}

func (sc *SpanContext) Context() context.Context {
	return sc.ctx
}

// End completes the span. Extra calls are no-ops.
func (sc *SpanContext) End() {
	if sc.span != nil {
		sc.span.End()
	}
}

// RecordError records err on the span and marks the span failed.
func (sc *SpanContext) RecordError(err error) {
	if sc.span != nil && err != nil {
		sc.span.RecordError(err)
		sc.span.SetStatus(codes.Error, err.Error())
	}
}

// SetAttributes annotates the span, e.g. with the escalation verdict of a turn.
func (sc *SpanContext) SetAttributes(attrs ...attribute.KeyValue) {
	if sc.span != nil {
		sc.span.SetAttributes(attrs...)
	}
}

// Span exposes the underlying OTel span.
func (sc *SpanContext) Span() trace.Span {
	return sc.span
}

// TraceIDs returns the hex trace and span ids of the span in ctx, or empty
// strings when there is none.
func TraceIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
