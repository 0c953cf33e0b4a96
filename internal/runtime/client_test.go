package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/hiveswarm/hive/internal/clientconfig"
	"github.com/hiveswarm/hive/internal/hiveerr"
	"github.com/hiveswarm/hive/internal/objects"
	"github.com/hiveswarm/hive/internal/stats"
	"github.com/hiveswarm/hive/internal/transport/memtransport"
	"github.com/hiveswarm/hive/pkg/grain"
)

type echoInvoker struct{}

func (echoInvoker) Invoke(ctx context.Context, target any, msg *grain.Message) ([]byte, error) {
	return msg.Body, nil
}

func testConfig() clientconfig.ClientConfig {
	cfg := clientconfig.DefaultConfig()
	cfg.Gateways = []string{"mem://peer"}
	cfg.ResponseTimeout = 2 * time.Second
	cfg.StatsFlushInterval = time.Hour // never fires during the test
	return cfg
}

// TestLifecycleInvokeAndResponse exercises Init/Start, Current(), and a full
// request/response round trip through a peer loopback transport; Reset runs
// only as deferred cleanup.
func TestLifecycleInvokeAndResponse(t *testing.T) {
	clientSide, peerSide := memtransport.NewPair(
		grain.Address{Endpoint: "client:0"},
		grain.Address{Endpoint: "peer:0"},
		map[string]int32{},
	)

	c, err := Init(testConfig(), Deps{Transport: clientSide, StatsPublisher: stats.NewMemPublisher()})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Reset(ctx)

	if Current() != c {
		t.Fatal("expected Current() to return the started client")
	}

	target := grain.Reference{GrainID: grain.GrainID{Kind: grain.KindGrain, Type: "echo", Key: "e1"}}
	respCh := make(chan *grain.Response, 1)
	errCh := make(chan error, 1)
	sink := func(resp *grain.Response, err error) {
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}

	if err := c.Invoke(ctx, target, []byte("ping"), grain.Options{}, "", "", sink); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	// Simulate the peer: receive the request, echo it back as a value response.
	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	req, err := peerSide.WaitMessage(reqCtx)
	if err != nil || req == nil {
		t.Fatalf("peer did not observe request: msg=%v err=%v", req, err)
	}

	reply := grain.NewResponseMessage(&grain.Response{CorrelationID: req.ID, Kind: grain.ResultValue, Payload: req.Body}, req, target.GrainID)
	if err := peerSide.SendMessage(ctx, reply); err != nil {
		t.Fatalf("peer send reply: %v", err)
	}

	select {
	case resp := <-respCh:
		if string(resp.Payload) != "ping" {
			t.Fatalf("expected echoed payload, got %q", resp.Payload)
		}
	case err := <-errCh:
		t.Fatalf("unexpected error response: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response to be delivered")
	}
}

// TestStartEnforcesProcessSingleton covers R8: a second Start while the
// first client is active must fail, and must succeed again once the first
// has been Reset.
func TestStartEnforcesProcessSingleton(t *testing.T) {
	a1, b1 := memtransport.NewPair(grain.Address{Endpoint: "a1:0"}, grain.Address{Endpoint: "b1:0"}, nil)
	a2, b2 := memtransport.NewPair(grain.Address{Endpoint: "a2:0"}, grain.Address{Endpoint: "b2:0"}, nil)
	_ = b1
	_ = b2

	c1, err := Init(testConfig(), Deps{Transport: a1, StatsPublisher: stats.NewMemPublisher()})
	if err != nil {
		t.Fatalf("Init c1: %v", err)
	}
	c2, err := Init(testConfig(), Deps{Transport: a2, StatsPublisher: stats.NewMemPublisher()})
	if err != nil {
		t.Fatalf("Init c2: %v", err)
	}

	ctx := context.Background()
	if err := c1.Start(ctx); err != nil {
		t.Fatalf("Start c1: %v", err)
	}

	if err := c2.Start(ctx); err != hiveerr.ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning for c2.Start while c1 active, got %v", err)
	}

	c1.Reset(ctx)

	if err := c2.Start(ctx); err != nil {
		t.Fatalf("expected c2.Start to succeed after c1.Reset, got %v", err)
	}
	c2.Reset(ctx)

	if Current() != nil {
		t.Fatalf("expected no active runtime after final Reset, got %+v", Current())
	}
}

// TestInvokeBeforeStartFails covers the not-started case: calling Invoke or
// CreateObjectReference on a client that was Init'd but never Started must
// return ErrNotStarted rather than panicking or silently proceeding.
func TestInvokeBeforeStartFails(t *testing.T) {
	tr, _ := memtransport.NewPair(grain.Address{Endpoint: "x:0"}, grain.Address{Endpoint: "y:0"}, nil)
	c, err := Init(testConfig(), Deps{Transport: tr, StatsPublisher: stats.NewMemPublisher()})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	target := grain.Reference{GrainID: grain.GrainID{Kind: grain.KindGrain, Type: "echo", Key: "e2"}}
	if err := c.Invoke(context.Background(), target, nil, grain.Options{}, "", "", func(*grain.Response, error) {}); err != hiveerr.ErrNotStarted {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}

	if _, err := c.CreateObjectReference(context.Background(), struct{}{}, echoInvoker{}); err != hiveerr.ErrNotStarted {
		t.Fatalf("expected ErrNotStarted from CreateObjectReference, got %v", err)
	}
}

// TestCreateObjectReferenceDispatchesInboundRequests exercises C3/C6 wired
// through a live Client: a peer sends a Request addressed to a locally
// registered object, and the pump dispatches it to the object's Invoker.
func TestCreateObjectReferenceDispatchesInboundRequests(t *testing.T) {
	clientSide, peerSide := memtransport.NewPair(
		grain.Address{Endpoint: "client:0"},
		grain.Address{Endpoint: "peer:0"},
		nil,
	)

	c, err := Init(testConfig(), Deps{Transport: clientSide, StatsPublisher: stats.NewMemPublisher()})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Reset(ctx)

	id, err := c.CreateObjectReference(ctx, struct{}{}, echoInvoker{})
	if err != nil {
		t.Fatalf("CreateObjectReference: %v", err)
	}

	req := &grain.Message{
		ID:           "req-1",
		Direction:    grain.Request,
		SendingGrain: grain.GrainID{Kind: grain.KindGrain, Type: "peer", Key: "p1"},
		TargetGrain:  id,
		Body:         []byte("hello"),
		Headers:      map[string]string{},
	}
	if err := peerSide.SendMessage(ctx, req); err != nil {
		t.Fatalf("peer send request: %v", err)
	}

	replyCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	reply, err := peerSide.WaitMessage(replyCtx)
	if err != nil || reply == nil {
		t.Fatalf("expected a value response dispatched back to peer: msg=%v err=%v", reply, err)
	}
	if string(reply.Body) != "hello" {
		t.Fatalf("expected echoed body, got %q", reply.Body)
	}

	if err := c.DeleteObjectReference(ctx, id); err != nil {
		t.Fatalf("DeleteObjectReference: %v", err)
	}
}

var _ objects.Invoker = echoInvoker{}
