// Package otelspan correlates outbound requests and per-object invocations
// with OpenTelemetry spans, adapted from the teacher's goroutine/span
// correlation helpers (pkg/otel/spanlink.go) and its gateway-side bridge
// (internal/gateway/otelbridge.go). Unlike the teacher's gateway bridge,
// which keys spans off goroutine IDs parsed from flamegraph frames, the
// client runtime has a real propagation carrier available — the message's
// Headers map — so trace context rides the wire as a standard W3C
// traceparent header instead of an out-of-band side-channel.
package otelspan

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/hiveswarm/hive/pkg/grain"
)

var propagator = propagation.TraceContext{}

func tracer() trace.Tracer { return otel.Tracer("hive-client") }

// headerCarrier adapts a grain.Message's Headers map to
// propagation.TextMapCarrier so the traceparent travels as an ordinary
// message header rather than a side channel.
type headerCarrier map[string]string

func (h headerCarrier) Get(key string) string { return h[key] }
func (h headerCarrier) Set(key, value string) { h[key] = value }
func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

// StartOutboundSpan starts a client span for an outbound Invoke call and
// stamps its trace context onto msg.Headers[grain.HeaderTraceParent], so the
// callee (and, eventually, its own outbound calls) can continue the same
// trace (spec.md §4.4's debugContext, generalized to carry a real W3C
// traceparent rather than only a caller-supplied opaque string).
func StartOutboundSpan(ctx context.Context, target grain.GrainID, msg *grain.Message) (context.Context, trace.Span) {
	ctx, span := tracer().Start(ctx, "grain.invoke:"+target.Type, trace.WithSpanKind(trace.SpanKindClient))
	if msg.Headers == nil {
		msg.Headers = map[string]string{}
	}
	propagator.Inject(ctx, headerCarrier(msg.Headers))
	return ctx, span
}

// StartInvocationSpan extracts any trace context carried by an inbound
// request's headers and starts a linked server span around its dispatch to
// a local callback object (spec.md §4.6 step 2, C6's invoke step).
func StartInvocationSpan(ctx context.Context, target grain.GrainID, msg *grain.Message) (context.Context, trace.Span) {
	if msg.Headers != nil {
		ctx = propagator.Extract(ctx, headerCarrier(msg.Headers))
	}
	return tracer().Start(ctx, "grain.handle:"+target.Type, trace.WithSpanKind(trace.SpanKindServer))
}
