// Package transport declares the narrow contract the client runtime depends
// on for proxied message delivery (spec.md §6 Transport, consumed). Two
// implementations exist: internal/transport/grpctransport (a real gRPC
// bidirectional stream to a gateway) and internal/transport/memtransport (an
// in-process fake used by tests).
package transport

import (
	"context"

	"github.com/hiveswarm/hive/pkg/grain"
)

// Transport is the proxied message channel between the client and its
// gateway. Implementations own connection management and framing; the
// runtime never reaches past this interface.
type Transport interface {
	// Start establishes the connection and must block until the channel is
	// usable (spec.md §4.8 Start).
	Start(ctx context.Context) error

	// PrepareToStop signals an impending Stop so the implementation can stop
	// accepting new work while still draining in-flight messages.
	PrepareToStop()

	// Stop tears down the connection. Must be safe to call after
	// PrepareToStop and must not block indefinitely.
	Stop(ctx context.Context) error

	// SendMessage hands msg to the wire. Ownership of msg transfers to the
	// transport; callers must not mutate it afterward.
	SendMessage(ctx context.Context, msg *grain.Message) error

	// WaitMessage blocks for the next application-category message. It
	// returns (nil, nil) exactly when ctx is canceled, satisfying the
	// inbound pump's cooperative-cancellation contract (spec.md §4.5, §5
	// Cancellation).
	WaitMessage(ctx context.Context) (*grain.Message, error)

	// RegisterObserver tells the gateway to route traffic targeting id to
	// this client.
	RegisterObserver(ctx context.Context, id grain.GrainID) error

	// UnregisterObserver reverses RegisterObserver.
	UnregisterObserver(ctx context.Context, id grain.GrainID) error

	// GetTypeCodeMap fetches the interface/type-code map, blocking until
	// available (spec.md §4.8 Start).
	GetTypeCodeMap(ctx context.Context) (map[string]int32, error)

	// MyAddress returns the locally bound endpoint. Only valid after Start
	// returns successfully.
	MyAddress() grain.Address
}
