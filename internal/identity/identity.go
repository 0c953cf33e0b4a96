// Package identity implements C1: allocation of the client's generation and
// self grain id, and the derivation of its self address once the transport
// is up (spec.md §4.1).
package identity

import (
	"fmt"

	"go.uber.org/atomic"

	"github.com/hiveswarm/hive/internal/util"
	"github.com/hiveswarm/hive/pkg/grain"
)

// generationCounter is a process-wide monotonic counter; each client
// instance negates a freshly allocated value so that generation < 0 always
// holds (spec.md §3 invariant 4), distinguishing clients from server-side
// silos by sign alone.
var generationCounter atomic.Int64

// Identity is the client's identity and generation, per spec.md §3.
type Identity struct {
	ClientGUID  string
	Generation  int64
	SelfGrainID grain.GrainID

	selfAddress   grain.Address
	addressKnown  atomic.Bool
}

// New allocates a fresh Identity. ClientGUID and SelfGrainID are minted with
// ULIDs (internal/util), matching the teacher's correlation-id generator
// reused here for the same purpose: cheap, monotonic, globally unique ids.
func New() (*Identity, error) {
	guid, err := util.New()
	if err != nil {
		return nil, fmt.Errorf("identity: mint client guid: %w", err)
	}
	key, err := util.New()
	if err != nil {
		return nil, fmt.Errorf("identity: mint self grain id: %w", err)
	}

	gen := generationCounter.Add(1)

	id := &Identity{
		ClientGUID: guid,
		Generation: -gen,
		SelfGrainID: grain.GrainID{
			Kind: grain.KindClientAddressable,
			Type: "client",
			Key:  key,
		},
	}
	return id, nil
}

// SetSelfAddress materializes the self address from the transport's bound
// endpoint. It must be called exactly once, after the transport reports it
// is listening (spec.md §4.8 Start).
func (id *Identity) SetSelfAddress(addr grain.Address) {
	id.selfAddress = addr
	id.addressKnown.Store(true)
}

// SelfAddress returns the client's reachable address. Reading it before
// SetSelfAddress has been called is undefined per spec.md §4.1; callers
// should check ok.
func (id *Identity) SelfAddress() (grain.Address, bool) {
	if !id.addressKnown.Load() {
		return grain.Address{}, false
	}
	return id.selfAddress, true
}
