package callback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hiveswarm/hive/internal/hiveerr"
	"github.com/hiveswarm/hive/pkg/grain"
)

func TestCompleteDeliversValueAndShrinksRegistry(t *testing.T) {
	r := New()
	var got *grain.Response
	var mu sync.Mutex
	sink := func(resp *grain.Response, err error) {
		mu.Lock()
		got = resp
		mu.Unlock()
	}

	msg := &grain.Message{ID: "42", Direction: grain.Request}
	r.Register(msg, time.Minute, sink, func(*grain.Message) bool { return false })
	if r.Len() != 1 {
		t.Fatalf("expected len 1, got %d", r.Len())
	}

	r.Complete(&grain.Response{CorrelationID: "42", Kind: grain.ResultValue, Payload: []byte("ok")})

	mu.Lock()
	defer mu.Unlock()
	if got == nil || string(got.Payload) != "ok" {
		t.Fatalf("sink did not observe expected value: %+v", got)
	}
	if r.Len() != 0 {
		t.Fatalf("expected registry to shrink to 0, got %d", r.Len())
	}
}

func TestTimeoutWithNoResendCompletesWithErrTimeout(t *testing.T) {
	r := New()
	done := make(chan error, 1)
	sink := func(resp *grain.Response, err error) { done <- err }

	msg := &grain.Message{ID: "t1", Direction: grain.Request}
	r.Register(msg, 20*time.Millisecond, sink, func(*grain.Message) bool { return false })

	select {
	case err := <-done:
		if !errors.Is(err, hiveerr.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sink")
	}

	if r.Len() != 0 {
		t.Fatalf("expected entry removed after timeout, got len %d", r.Len())
	}
}

func TestTimeoutWithOneResendThenGiveUp(t *testing.T) {
	r := New()
	var attempts int
	var mu sync.Mutex
	done := make(chan error, 1)

	msg := &grain.Message{ID: "t2", Direction: grain.Request}
	retry := func(m *grain.Message) bool {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return attempts == 1 // resend once, then give up
	}
	r.Register(msg, 20*time.Millisecond, func(resp *grain.Response, err error) { done <- err }, retry)

	select {
	case err := <-done:
		if !errors.Is(err, hiveerr.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sink")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("expected exactly 2 retry hook invocations, got %d", attempts)
	}
}

func TestCompleteForUnknownIDIsDroppedSafely(t *testing.T) {
	r := New()
	// Should not panic and should not affect Len.
	r.Complete(&grain.Response{CorrelationID: "ghost", Kind: grain.ResultValue})
	if r.Len() != 0 {
		t.Fatalf("expected len 0, got %d", r.Len())
	}
}

func TestDuplicateRejectionNeverReachesSink(t *testing.T) {
	r := New()
	sinkCalled := false
	msg := &grain.Message{ID: "d1", Direction: grain.Request}
	r.Register(msg, time.Minute, func(*grain.Response, error) { sinkCalled = true }, func(*grain.Message) bool { return false })

	r.Complete(&grain.Response{CorrelationID: "d1", Kind: grain.ResultRejection, Rejection: grain.RejectionDuplicateRequest})

	if sinkCalled {
		t.Fatal("sink must not be invoked for a duplicate rejection")
	}
	if r.Len() != 1 {
		t.Fatalf("expected entry to remain registered, got len %d", r.Len())
	}
	r.Unregister("d1")
}

func TestClearAbandonsWithoutInvokingSinks(t *testing.T) {
	r := New()
	sinkCalled := false
	msg := &grain.Message{ID: "c1", Direction: grain.Request}
	r.Register(msg, time.Minute, func(*grain.Response, error) { sinkCalled = true }, func(*grain.Message) bool { return false })

	r.Clear()

	if sinkCalled {
		t.Fatal("Clear must not invoke sinks")
	}
	if r.Len() != 0 {
		t.Fatalf("expected len 0 after Clear, got %d", r.Len())
	}
}
