// Package callback implements C2: the map from CorrelationID to pending
// caller state, with per-entry expiration timers and a resend hook
// (spec.md §4.2).
package callback

import (
	"sync"
	"time"

	"github.com/hiveswarm/hive/internal/hiveerr"
	"github.com/hiveswarm/hive/internal/logging"
	"github.com/hiveswarm/hive/internal/metrics"
	"github.com/hiveswarm/hive/pkg/grain"
)

// CompletionSink receives the terminal outcome of a two-way request: either
// the Response that arrived (of any ResultKind, exceptions and rejections
// included) with a nil error, or a nil Response with hiveerr.ErrTimeout.
type CompletionSink func(resp *grain.Response, err error)

// RetryHook is invoked when a response timer fires. Returning false means
// give up: the callback completes with hiveerr.ErrTimeout and is removed.
// Returning true means the hook itself resubmitted the message and the
// entry should remain registered.
type RetryHook func(msg *grain.Message) bool

// Data is the state owned by the registry for one outstanding request. It is
// exclusively owned by the registry until completion, timer fire, or
// explicit Unregister (spec.md §3).
type Data struct {
	CorrelationID grain.CorrelationID
	Message       *grain.Message
	Sink          CompletionSink
	Retry         RetryHook

	mu      sync.Mutex
	timer   *time.Timer
	timeout time.Duration
}

func (d *Data) stopTimer() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
}

// Registry is a thread-safe correlation table, lock-free at the map level.
// No lock is held across a user-visible callback invocation.
type Registry struct {
	m sync.Map // grain.CorrelationID -> *Data

	mu   sync.Mutex // guards size for the gauge only
	size int
}

// New returns an empty Registry.
func New() *Registry { return &Registry{} }

// Register inserts msg.ID -> Data, starting an expiration timer of the given
// duration. On fire, retry is invoked; if it returns false the callback
// completes with hiveerr.ErrTimeout via sink and the entry is removed.
//
// It is an invariant violation to register the same CorrelationID twice
// (spec.md §3 invariant 1); Register panics in that case since it signals a
// bug in the outbound path, not a runtime condition callers can recover
// from.
func (r *Registry) Register(msg *grain.Message, timeout time.Duration, sink CompletionSink, retry RetryHook) *Data {
	d := &Data{CorrelationID: msg.ID, Message: msg, Sink: sink, Retry: retry, timeout: timeout}
	if _, loaded := r.m.LoadOrStore(msg.ID, d); loaded {
		panic("callback: duplicate registration for correlation id " + string(msg.ID))
	}
	r.bumpSize(1)

	d.mu.Lock()
	d.timer = time.AfterFunc(timeout, func() { r.onTimerFire(d) })
	d.mu.Unlock()
	return d
}

// onTimerFire runs when d's response timer expires. time.AfterFunc is
// one-shot, so a resend must explicitly re-arm a fresh timer of the same
// duration for the entry to retain a timeout path (spec.md §4.2, §4.4: "the
// timer is restarted implicitly by the hook contract"); without this, a
// resent request that never gets a reply would neither time out nor
// complete, violating spec.md §8 R1.
func (r *Registry) onTimerFire(d *Data) {
	if d.Retry != nil && d.Retry(d.Message) {
		d.mu.Lock()
		// The entry may have completed or been unregistered concurrently
		// while Retry ran; only re-arm if it is still live.
		if _, stillRegistered := r.m.Load(d.CorrelationID); stillRegistered {
			d.timer = time.AfterFunc(d.timeout, func() { r.onTimerFire(d) })
		}
		d.mu.Unlock()
		return
	}
	if _, removed := r.remove(d.CorrelationID); removed {
		metrics.TimeoutsTotal.Inc()
		d.Sink(nil, hiveerr.ErrTimeout)
	}
}

// Complete delivers resp to the waiting sink and removes the entry. A
// response for an unknown correlation id is logged once and dropped without
// mutating any state (spec.md §8 R2). A Rejection(DuplicateRequest) is
// silently discarded (spec.md §8 R4).
func (r *Registry) Complete(resp *grain.Response) {
	if resp.IsDuplicateRejection() {
		return
	}
	d, ok := r.remove(resp.CorrelationID)
	if !ok {
		logging.Sugar().Warnw("callback: response for unknown correlation id", "id", resp.CorrelationID)
		return
	}
	metrics.ResponsesReceivedTotal.Inc()
	d.stopTimer()
	d.Sink(resp, nil)
}

// Unregister removes id if present, without invoking the sink. Used when a
// caller abandons a request explicitly.
func (r *Registry) Unregister(id grain.CorrelationID) {
	if d, ok := r.remove(id); ok {
		d.stopTimer()
	}
}

// Len returns the number of outstanding callbacks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *Registry) remove(id grain.CorrelationID) (*Data, bool) {
	v, ok := r.m.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	r.bumpSize(-1)
	return v.(*Data), true
}

func (r *Registry) bumpSize(delta int) {
	r.mu.Lock()
	r.size += delta
	metrics.CallbacksPending.Set(float64(r.size))
	r.mu.Unlock()
}

// Clear removes every entry without invoking any sink. Used by Reset
// (spec.md §4.8): outstanding callbacks are abandoned rather than
// force-completed, per spec.md §5 Cancellation - they will time out
// naturally or their callers will be abandoned, which is acceptable because
// Reset also tears down the transport.
func (r *Registry) Clear() {
	r.m.Range(func(k, v any) bool {
		d := v.(*Data)
		d.stopTimer()
		r.m.Delete(k)
		return true
	})
	r.mu.Lock()
	r.size = 0
	r.mu.Unlock()
}
