// Package telemetry wraps OpenTelemetry tracing for the focus, adapted from
// the teacher's pkg/telemetry: a thin Telemetry handle that wraps a span and
// its context, so call sites don't have to juggle context.Context and
// trace.Span separately.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const Package = "focus"

var tracer = otel.Tracer(Package)

type Telemetry struct {
	span    trace.Span
	context context.Context //nolint:containedctx
}

// New starts a span named name as a child of whatever span ctx carries, if any.
func New(ctx context.Context, name string, attributes ...attribute.KeyValue) *Telemetry {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attributes...))

	return &Telemetry{
		span:    span,
		context: ctx,
	}
}

// Context returns the span-carrying context, for passing to further calls.
func (t *Telemetry) Context() context.Context {
	return t.context
}

func (t *Telemetry) CreateChild(name string, attributes ...attribute.KeyValue) *Telemetry {
	return New(t.context, name, attributes...)
}

func (t *Telemetry) AddEvent(text string, attributes ...attribute.KeyValue) {
	t.span.AddEvent(text, trace.WithAttributes(attributes...))
}

func (t *Telemetry) AddError(err error) {
	t.span.RecordError(err)
}

func (t *Telemetry) Fail(err error) {
	t.span.SetStatus(codes.Error, err.Error())
	t.AddError(err)
}

func (t *Telemetry) End() {
	t.span.End()
}
