package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceCarrier is the W3C trace context stored next to an outbox row so the
// publish span links back to the request that wrote it.
type TraceCarrier struct {
	Traceparent string
	Tracestate  string
}

func CaptureTrace(ctx context.Context) TraceCarrier {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceCarrier{Traceparent: carrier.Get("traceparent"), Tracestate: carrier.Get("tracestate")}
}

// Context returns ctx carrying the stored trace as its remote parent.
func (c TraceCarrier) Context(ctx context.Context) context.Context {
	if c.Traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": c.Traceparent}
	if c.Tracestate != "" {
		carrier["tracestate"] = c.Tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
