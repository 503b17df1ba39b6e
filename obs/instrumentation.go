package obs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpRecorder encapsulates per-operation tracing/metrics bookkeeping.
type OpRecorder struct {
	span  trace.Span
	attrs []attribute.KeyValue
}

// StartOp starts a span for a client operation (a run, or a single
// connection attempt).
func StartOp(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *OpRecorder) {
	tracer := Tracer()
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &OpRecorder{span: span, attrs: attrs}
}

// End finalizes span/metrics for the operation.
func (r *OpRecorder) End(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
	}
	r.span.End()
}

// AddAttributes appends attributes to both span and subsequent metrics.
func (r *OpRecorder) AddAttributes(attrs ...attribute.KeyValue) {
	if r == nil {
		return
	}
	r.attrs = append(r.attrs, attrs...)
	r.span.SetAttributes(attrs...)
}
