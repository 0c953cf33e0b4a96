// Package objects implements C3 (Local Object Registry) and C6 (Per-Object
// Pump): the map from a local grain id to a weakly-held callback object and
// its serial FIFO message queue, plus the worker that drains each queue in
// order (spec.md §4.3, §4.6).
package objects

import (
	"context"
	"fmt"
	"sync"

	"github.com/hiveswarm/hive/internal/hiveerr"
	"github.com/hiveswarm/hive/internal/logging"
	"github.com/hiveswarm/hive/internal/metrics"
	"github.com/hiveswarm/hive/internal/util"
	"github.com/hiveswarm/hive/pkg/grain"
)

// Invoker dispatches one inbound message to a resolved local target and
// returns the method's result payload, or an error if the method itself
// raised one. It is supplied by the generated or reflective grain proxy
// layer, out of scope for this package.
type Invoker interface {
	Invoke(ctx context.Context, target any, msg *grain.Message) (result []byte, err error)
}

// ObserverRegistrar is the slice of the transport contract C3 needs: telling
// the gateway which local grain ids it should route inbound traffic to.
type ObserverRegistrar interface {
	RegisterObserver(ctx context.Context, id grain.GrainID) error
	UnregisterObserver(ctx context.Context, id grain.GrainID) error
}

// ResponseSender is the slice of the outbound path (C4) that C6 uses to
// emit responses and exceptions for completed invocations (spec.md §4.7).
type ResponseSender interface {
	SendValueResponse(ctx context.Context, req *grain.Message, payload []byte) error
	SendExceptionResponse(ctx context.Context, req *grain.Message, payload []byte) error
}

// entry is LocalObjectData: a weak handle to the callback object plus its
// serial queue. The registry lock never guards queue/running; those are
// owned by entry.mu alone (spec.md §4.3 Mutation discipline).
type entry struct {
	grainID grain.GrainID
	handle  *Handle
	invoker Invoker

	mu      sync.Mutex
	queue   []*grain.Message
	running bool
}

// Registry is C3: the structural map of local grain id to entry, guarded by
// a single lock that is never held across a per-object lock acquisition or
// a user callback (spec.md §4.3, §5 Locks).
type Registry struct {
	mu   sync.Mutex
	byID map[grain.GrainID]*entry

	observer  ObserverRegistrar
	responder ResponseSender
}

// New constructs an empty Registry. observer and responder are wired by
// internal/runtime once the transport and outbound path exist.
func New(observer ObserverRegistrar, responder ResponseSender) *Registry {
	return &Registry{
		byID:      make(map[grain.GrainID]*entry),
		observer:  observer,
		responder: responder,
	}
}

// CreateObjectReference allocates a fresh client-addressable grain id for
// obj, registers it as an observer with the transport, and installs a
// LocalObjectData entry. It fails if obj is already a grain.Reference to a
// remote target (spec.md §4.3).
func (r *Registry) CreateObjectReference(ctx context.Context, obj any, invoker Invoker) (grain.GrainID, error) {
	if _, isRef := obj.(grain.Reference); isRef {
		return grain.GrainID{}, fmt.Errorf("objects: create reference: %w", hiveerr.ErrAlreadyRemote)
	}

	key, err := util.New()
	if err != nil {
		return grain.GrainID{}, fmt.Errorf("objects: mint object grain id: %w", err)
	}
	id := grain.GrainID{Kind: grain.KindClientAddressable, Type: "observer", Key: key}

	if err := r.observer.RegisterObserver(ctx, id); err != nil {
		return grain.GrainID{}, fmt.Errorf("objects: register observer: %w", err)
	}

	e := &entry{grainID: id, handle: NewHandle(obj), invoker: invoker}

	r.mu.Lock()
	r.byID[id] = e
	size := len(r.byID)
	r.mu.Unlock()

	metrics.LocalObjects.Set(float64(size))
	return id, nil
}

// DeleteObjectReference removes id and asks the transport to unregister it.
// Returns hiveerr.ErrNotLocal if id was never registered here.
func (r *Registry) DeleteObjectReference(ctx context.Context, id grain.GrainID) error {
	r.mu.Lock()
	e, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
	}
	size := len(r.byID)
	r.mu.Unlock()

	if !ok {
		return hiveerr.ErrNotLocal
	}
	e.handle.Drop()
	metrics.LocalObjects.Set(float64(size))

	if err := r.observer.UnregisterObserver(ctx, id); err != nil {
		logging.Sugar().Warnw("objects: unregister observer failed", "grain_id", id, "error", err)
	}
	return nil
}

// lookup returns the entry for id, or nil if absent. O(1).
func (r *Registry) lookup(id grain.GrainID) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

// evict removes id from the registry because its weak handle resolved to
// nothing, and best-effort unregisters the observer upstream. Errors are
// logged, never propagated (spec.md §4.3 Weakness & GC eviction).
func (r *Registry) evict(ctx context.Context, id grain.GrainID) {
	r.mu.Lock()
	_, existed := r.byID[id]
	delete(r.byID, id)
	size := len(r.byID)
	r.mu.Unlock()

	if !existed {
		return
	}
	metrics.LocalObjects.Set(float64(size))
	if err := r.observer.UnregisterObserver(ctx, id); err != nil {
		logging.Sugar().Warnw("objects: unregister observer on eviction failed", "grain_id", id, "error", err)
	}
}

// Dispatch enqueues msg for delivery to the local object it targets. If no
// entry exists, the message is logged and dropped (spec.md §4.5, §4.6
// step 1). If the queue was empty, a pump goroutine is launched to drain it.
func (r *Registry) Dispatch(ctx context.Context, msg *grain.Message) {
	e := r.lookup(msg.TargetGrain)
	if e == nil {
		metrics.DroppedUnroutableTotal.Inc()
		logging.Sugar().Warnw("objects: dispatch to unknown local grain", "grain_id", msg.TargetGrain)
		return
	}

	e.mu.Lock()
	e.queue = append(e.queue, msg)
	startPump := !e.running
	if startPump {
		e.running = true
	}
	e.mu.Unlock()

	if startPump {
		go r.pump(ctx, e)
	}
}

// DropObject drops the handle of obj's backing entry out of band, simulating
// the target becoming unreachable to the garbage collector; the entry itself
// is evicted when the next message for it finds the handle dropped. Test and administrative
// code may call this directly; production code relies on the handle simply
// losing all external strong references, which Go cannot observe, so this
// is the closest approximation available (spec.md §9).
func (r *Registry) DropObject(id grain.GrainID) {
	if e := r.lookup(id); e != nil {
		e.handle.Drop()
	}
}

// Len reports the number of locally registered objects.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
