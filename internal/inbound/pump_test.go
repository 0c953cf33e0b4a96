package inbound

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hiveswarm/hive/pkg/grain"
)

type fakeWaiter struct {
	mu   sync.Mutex
	msgs []*grain.Message
	idx  int
}

func (f *fakeWaiter) WaitMessage(ctx context.Context) (*grain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.msgs) {
		<-ctx.Done()
		return nil, nil
	}
	m := f.msgs[f.idx]
	f.idx++
	return m, nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	seen []*grain.Message
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, msg *grain.Message) {
	f.mu.Lock()
	f.seen = append(f.seen, msg)
	f.mu.Unlock()
}

type fakeCompleter struct {
	mu   sync.Mutex
	seen []*grain.Response
}

func (f *fakeCompleter) Complete(resp *grain.Response) {
	f.mu.Lock()
	f.seen = append(f.seen, resp)
	f.mu.Unlock()
}

func TestPumpRoutesResponsesAndRequests(t *testing.T) {
	waiter := &fakeWaiter{msgs: []*grain.Message{
		{ID: "1", Direction: grain.Response, Headers: map[string]string{}},
		{ID: "2", Direction: grain.Request},
		{ID: "3", Direction: grain.OneWay},
	}}
	dispatcher := &fakeDispatcher{}
	completer := &fakeCompleter{}

	p := New(waiter, dispatcher, completer)
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		dispatcher.mu.Lock()
		n := len(dispatcher.seen)
		dispatcher.mu.Unlock()
		completer.mu.Lock()
		m := len(completer.seen)
		completer.mu.Unlock()
		if n == 2 && m == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	completer.mu.Lock()
	if len(completer.seen) != 1 || completer.seen[0].CorrelationID != "1" {
		t.Fatalf("expected one response routed for id 1, got %+v", completer.seen)
	}
	completer.mu.Unlock()

	dispatcher.mu.Lock()
	if len(dispatcher.seen) != 2 {
		t.Fatalf("expected two dispatched messages, got %d", len(dispatcher.seen))
	}
	dispatcher.mu.Unlock()

	cancel()
	p.Wait()
}

func TestPumpStopsOnNilMessage(t *testing.T) {
	waiter := &fakeWaiter{} // returns nil immediately once ctx is canceled
	p := New(waiter, &fakeDispatcher{}, &fakeCompleter{})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	// Let Run block in WaitMessage first, so the stop comes from the nil
	// message the waiter returns on cancellation.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop after context cancellation")
	}
}
