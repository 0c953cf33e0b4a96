// Package inbound implements C5: the single long-running consumer of
// application-category messages, routing responses to the callback
// registry and requests/one-ways to the local object registry (spec.md
// §4.5).
package inbound

import (
	"context"

	"github.com/hiveswarm/hive/internal/logging"
	"github.com/hiveswarm/hive/pkg/grain"
)

// Waiter is the slice of transport.Transport the inbound pump depends on.
type Waiter interface {
	WaitMessage(ctx context.Context) (*grain.Message, error)
}

// Dispatcher is the slice of objects.Registry the inbound pump depends on.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *grain.Message)
}

// Completer is the slice of callback.Registry the inbound pump depends on.
type Completer interface {
	Complete(resp *grain.Response)
}

// Pump is C5. Exactly one runs per started runtime, launched by
// internal/runtime on its own worker goroutine with a cancellation context
// (spec.md §4.8 Start).
type Pump struct {
	transport Waiter
	objects   Dispatcher
	callbacks Completer

	done chan struct{}
}

// New constructs a Pump.
func New(transport Waiter, objects Dispatcher, callbacks Completer) *Pump {
	return &Pump{transport: transport, objects: objects, callbacks: callbacks, done: make(chan struct{})}
}

// Run blocks, consuming messages until ctx is canceled or the transport
// reports cancellation by returning (nil, nil). It always closes p.done
// before returning, so Wait can be used to confirm shutdown (spec.md §8
// R5: after Reset returns, no new worker tasks remain).
func (p *Pump) Run(ctx context.Context) {
	defer close(p.done)
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := p.transport.WaitMessage(ctx)
		if err != nil {
			logging.Sugar().Errorw("inbound: wait message failed, continuing", "error", err)
			continue
		}
		if msg == nil {
			return
		}
		p.route(ctx, msg)
	}
}

// Wait blocks until Run has returned.
func (p *Pump) Wait() { <-p.done }

func (p *Pump) route(ctx context.Context, msg *grain.Message) {
	switch msg.Direction {
	case grain.Response:
		p.callbacks.Complete(msg.ToResponse())
	case grain.Request, grain.OneWay:
		p.objects.Dispatch(ctx, msg)
	default:
		logging.Sugar().Warnw("inbound: unsupported message direction, dropping", "direction", msg.Direction)
	}
}
