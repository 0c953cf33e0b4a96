package objects

import (
	"context"

	"github.com/hiveswarm/hive/internal/logging"
	"github.com/hiveswarm/hive/internal/metrics"
	"github.com/hiveswarm/hive/internal/otelspan"
	"github.com/hiveswarm/hive/pkg/grain"
)

// pump is C6: it drains e's queue strictly in FIFO order, invoking at most
// one message at a time, until the queue is empty, at which point it clears
// running and returns. A new pump is launched by Dispatch the next time a
// message lands in an empty queue, so at most one pump per entry is ever
// active (spec.md §4.6 Ordering guarantee).
func (r *Registry) pump(ctx context.Context, e *entry) {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.running = false
			e.mu.Unlock()
			return
		}
		msg := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		r.invokeOne(ctx, e, msg)
	}
}

// invokeOne processes a single dequeued message. Unexpected errors are
// swallowed here to keep the pump alive for subsequent messages (spec.md
// §4.6 step 7).
func (r *Registry) invokeOne(ctx context.Context, e *entry, msg *grain.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Sugar().Errorw("objects: invocation panicked, pump continues", "grain_id", e.grainID, "recover", rec)
		}
	}()

	if msg.IsExpired() {
		metrics.InvocationsExpiredTotal.Inc()
		logging.Sugar().Infow("objects: dropping expired request", "grain_id", e.grainID, "correlation_id", msg.ID)
		return
	}

	target, ok := e.handle.Resolve()
	if !ok {
		r.evict(ctx, e.grainID)
		logging.Sugar().Warnw("objects: target collected, dropping message", "grain_id", e.grainID, "correlation_id", msg.ID)
		return
	}

	metrics.InvocationsTotal.Inc()
	spanCtx, span := otelspan.StartInvocationSpan(ctx, e.grainID, msg)
	result, err := e.invoker.Invoke(spanCtx, target, msg)
	span.End()
	if msg.Direction == grain.OneWay {
		if err != nil {
			logging.Sugar().Warnw("objects: one-way invocation failed", "grain_id", e.grainID, "error", err)
		}
		return
	}

	if err != nil {
		r.emitException(ctx, msg, err)
		return
	}
	r.emitValue(ctx, msg, result)
}

// emitValue delivers a successful invocation result as a response, per
// spec.md §4.7. The deep-copy step is applied inside the responder
// (internal/outbound.Path, which owns the serializer collaborator); here we
// just hand off the payload.
func (r *Registry) emitValue(ctx context.Context, req *grain.Message, payload []byte) {
	if req.IsExpired() {
		return // response for an already-expired request is dropped
	}
	if err := r.responder.SendValueResponse(ctx, req, payload); err != nil {
		logging.Sugar().Errorw("objects: send value response failed", "correlation_id", req.ID, "error", err)
	}
}

// emitException reports a method-level error back to the caller, unless the
// request was OneWay (never emitted, per spec.md §4.7).
func (r *Registry) emitException(ctx context.Context, req *grain.Message, invokeErr error) {
	if req.Direction == grain.OneWay {
		logging.Sugar().Warnw("objects: one-way invocation raised, logging only", "correlation_id", req.ID, "error", invokeErr)
		return
	}
	if req.IsExpired() {
		return
	}
	if err := r.responder.SendExceptionResponse(ctx, req, []byte(invokeErr.Error())); err != nil {
		logging.Sugar().Errorw("objects: send exception response failed", "correlation_id", req.ID, "error", err)
	}
}
