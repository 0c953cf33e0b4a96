// Package memtransport implements transport.Transport entirely in process,
// for tests; cmd/hive-client does not use it. Two Transport
// values created via NewPair are wired to each other's inbound channel, so
// a test can drive both sides of the runtime without a network.
package memtransport

import (
	"context"
	"sync"

	"github.com/hiveswarm/hive/internal/hiveerr"
	"github.com/hiveswarm/hive/pkg/grain"
)

// Transport is an in-memory transport.Transport. The zero value is not
// usable; construct with New or NewPair.
type Transport struct {
	addr grain.Address

	mu        sync.Mutex
	observers map[grain.GrainID]bool
	peer      *Transport
	inbox     chan *grain.Message
	typeCodes map[string]int32
	closed    bool
}

// New constructs a standalone Transport with no peer, so SendMessage is a
// no-op (only NewPair wires peers). Useful when a test only needs the local half
// of the contract (e.g., object registry observer bookkeeping).
func New(addr grain.Address, typeCodes map[string]int32) *Transport {
	return &Transport{
		addr:      addr,
		observers: make(map[grain.GrainID]bool),
		inbox:     make(chan *grain.Message, 64),
		typeCodes: typeCodes,
	}
}

// NewPair returns two Transports wired so that SendMessage on one appears
// on the other's WaitMessage, simulating a client and a gateway loopback.
func NewPair(addrA, addrB grain.Address, typeCodes map[string]int32) (*Transport, *Transport) {
	a := New(addrA, typeCodes)
	b := New(addrB, typeCodes)
	a.peer = b
	b.peer = a
	return a, b
}

// Start is a no-op; memtransport has nothing to dial.
func (t *Transport) Start(ctx context.Context) error { return nil }

// PrepareToStop is a no-op; memtransport has nothing to drain.
func (t *Transport) PrepareToStop() {}

// Stop closes the inbox, causing any blocked WaitMessage to return.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.inbox)
	return nil
}

// SendMessage delivers msg directly to the peer's inbox. It returns
// hiveerr.ErrDisposed if this transport has been stopped, and nil without
// delivering anything if it has no peer.
func (t *Transport) SendMessage(ctx context.Context, msg *grain.Message) error {
	t.mu.Lock()
	peer := t.peer
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return hiveerr.ErrDisposed
	}
	if peer == nil {
		return nil
	}
	select {
	case peer.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitMessage blocks for the next message in this transport's own inbox.
func (t *Transport) WaitMessage(ctx context.Context) (*grain.Message, error) {
	select {
	case msg, ok := <-t.inbox:
		if !ok {
			return nil, nil
		}
		return msg, nil
	case <-ctx.Done():
		return nil, nil
	}
}

// RegisterObserver records id as locally routable. memtransport never
// rejects registration.
func (t *Transport) RegisterObserver(ctx context.Context, id grain.GrainID) error {
	t.mu.Lock()
	t.observers[id] = true
	t.mu.Unlock()
	return nil
}

// UnregisterObserver reverses RegisterObserver.
func (t *Transport) UnregisterObserver(ctx context.Context, id grain.GrainID) error {
	t.mu.Lock()
	delete(t.observers, id)
	t.mu.Unlock()
	return nil
}

// IsObserver reports whether id is currently registered; test helper only.
func (t *Transport) IsObserver(id grain.GrainID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observers[id]
}

// GetTypeCodeMap returns the static map supplied at construction.
func (t *Transport) GetTypeCodeMap(ctx context.Context) (map[string]int32, error) {
	return t.typeCodes, nil
}

// MyAddress returns the address this transport was constructed with.
func (t *Transport) MyAddress() grain.Address { return t.addr }
