package objects

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hiveswarm/hive/pkg/grain"
)

type fakeObserver struct {
	mu           sync.Mutex
	registered   []grain.GrainID
	unregistered []grain.GrainID
}

func (f *fakeObserver) RegisterObserver(_ context.Context, id grain.GrainID) error {
	f.mu.Lock()
	f.registered = append(f.registered, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeObserver) UnregisterObserver(_ context.Context, id grain.GrainID) error {
	f.mu.Lock()
	f.unregistered = append(f.unregistered, id)
	f.mu.Unlock()
	return nil
}

type fakeResponder struct {
	mu        sync.Mutex
	values    []string
	exception []string
}

func (f *fakeResponder) SendValueResponse(_ context.Context, req *grain.Message, payload []byte) error {
	f.mu.Lock()
	f.values = append(f.values, string(payload))
	f.mu.Unlock()
	return nil
}

func (f *fakeResponder) SendExceptionResponse(_ context.Context, req *grain.Message, payload []byte) error {
	f.mu.Lock()
	f.exception = append(f.exception, string(payload))
	f.mu.Unlock()
	return nil
}

type recordingInvoker struct {
	mu    sync.Mutex
	calls []grain.CorrelationID
}

func (r *recordingInvoker) Invoke(_ context.Context, target any, msg *grain.Message) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, msg.ID)
	r.mu.Unlock()
	return []byte("ok:" + string(msg.ID)), nil
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestCreateObjectReferenceRejectsRemoteRef(t *testing.T) {
	reg := New(&fakeObserver{}, &fakeResponder{})
	_, err := reg.CreateObjectReference(context.Background(), grain.Reference{}, &recordingInvoker{})
	if err == nil {
		t.Fatal("expected error for remote reference, got nil")
	}
}

func TestDispatchInvokesInEnqueueOrder(t *testing.T) {
	obs := &fakeObserver{}
	resp := &fakeResponder{}
	inv := &recordingInvoker{}
	reg := New(obs, resp)

	id, err := reg.CreateObjectReference(context.Background(), struct{}{}, inv)
	if err != nil {
		t.Fatalf("create object reference: %v", err)
	}

	for i := 0; i < 5; i++ {
		msg := &grain.Message{ID: grain.CorrelationID(string(rune('a' + i))), Direction: grain.Request, TargetGrain: id}
		reg.Dispatch(context.Background(), msg)
	}

	waitUntil(t, time.Second, func() bool {
		inv.mu.Lock()
		defer inv.mu.Unlock()
		return len(inv.calls) == 5
	})

	for i, c := range inv.calls {
		want := grain.CorrelationID(string(rune('a' + i)))
		if c != want {
			t.Fatalf("invocation order mismatch at %d: got %s want %s", i, c, want)
		}
	}

	waitUntil(t, time.Second, func() bool {
		resp.mu.Lock()
		defer resp.mu.Unlock()
		return len(resp.values) == 5
	})
}

func TestDispatchToUnknownGrainIsDropped(t *testing.T) {
	reg := New(&fakeObserver{}, &fakeResponder{})
	unknown := grain.GrainID{Kind: grain.KindClientAddressable, Type: "observer", Key: "missing"}
	reg.Dispatch(context.Background(), &grain.Message{TargetGrain: unknown})
	// No panic, no entry created.
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d entries", reg.Len())
	}
}

func TestGCEvictionRemovesEntryAndUnregisters(t *testing.T) {
	obs := &fakeObserver{}
	resp := &fakeResponder{}
	inv := &recordingInvoker{}
	reg := New(obs, resp)

	id, err := reg.CreateObjectReference(context.Background(), struct{}{}, inv)
	if err != nil {
		t.Fatalf("create object reference: %v", err)
	}

	reg.DropObject(id)
	reg.Dispatch(context.Background(), &grain.Message{ID: "x", Direction: grain.Request, TargetGrain: id})

	waitUntil(t, time.Second, func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return len(obs.unregistered) == 1
	})

	if reg.Len() != 0 {
		t.Fatalf("expected entry evicted, registry has %d entries", reg.Len())
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if len(inv.calls) != 0 {
		t.Fatal("invoker must not be called for a collected target")
	}
}

func TestDeleteObjectReferenceNotLocal(t *testing.T) {
	reg := New(&fakeObserver{}, &fakeResponder{})
	unknown := grain.GrainID{Kind: grain.KindClientAddressable, Type: "observer", Key: "nope"}
	if err := reg.DeleteObjectReference(context.Background(), unknown); err == nil {
		t.Fatal("expected ErrNotLocal, got nil")
	}
}
