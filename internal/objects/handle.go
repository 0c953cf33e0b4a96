package objects

import "sync"

// Handle models a weak reference to a locally registered callback object.
// Go has no language-level weak pointers, so the registry instead holds a
// handle with an explicit Drop: the object itself is stored here, and callers
// that want to simulate collection call Drop, after which Resolve reports
// the target as gone. The handle keeps no reference count; one Drop ends it.
// This mirrors the fallback spec.md §9 sanctions for runtimes without
// automatic weak-reference support.
type Handle struct {
	mu      sync.Mutex
	obj     any
	dropped bool
}

// NewHandle wraps obj in a live Handle.
func NewHandle(obj any) *Handle {
	return &Handle{obj: obj}
}

// Resolve returns the held object, or ok=false if the handle has been
// dropped (simulated collection).
func (h *Handle) Resolve() (obj any, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dropped {
		return nil, false
	}
	return h.obj, true
}

// Drop releases the held object, simulating garbage collection of the
// target. Idempotent.
func (h *Handle) Drop() {
	h.mu.Lock()
	h.obj = nil
	h.dropped = true
	h.mu.Unlock()
}
