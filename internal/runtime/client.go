// Package runtime implements C7: the client lifecycle (Init, Start, Reset,
// Dispose) and enforcement of the process-wide "at most one active runtime"
// invariant (spec.md §4.8, §9 Process-wide singleton). It wires together
// every other component (C1-C6, C8) into one usable Client.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/hiveswarm/hive/internal/callback"
	"github.com/hiveswarm/hive/internal/clientconfig"
	"github.com/hiveswarm/hive/internal/clientstats"
	"github.com/hiveswarm/hive/internal/hiveerr"
	"github.com/hiveswarm/hive/internal/identity"
	"github.com/hiveswarm/hive/internal/inbound"
	"github.com/hiveswarm/hive/internal/logging"
	"github.com/hiveswarm/hive/internal/objects"
	"github.com/hiveswarm/hive/internal/outbound"
	"github.com/hiveswarm/hive/internal/serializer"
	"github.com/hiveswarm/hive/internal/stats"
	"github.com/hiveswarm/hive/internal/transport"
	"github.com/hiveswarm/hive/pkg/grain"
)

var (
	singletonMu sync.Mutex
	current     *Client
)

// Deps are the external collaborators Init wires in. Tests construct these
// directly (e.g., memtransport.Transport, stats.MemPublisher); production
// callers normally go through InitDefault, which builds Deps from cfg.
type Deps struct {
	Transport      transport.Transport
	StatsPublisher stats.Publisher
	Serializer     serializer.DeepCopier
}

// Client is C7: the assembled runtime. The zero value is not usable;
// construct with Init.
type Client struct {
	cfg        clientconfig.ClientConfig
	identity   *identity.Identity
	callbacks  *callback.Registry
	objects    *objects.Registry
	outbound   *outbound.Path
	inbound    *inbound.Pump
	transport  transport.Transport
	stats      *clientstats.Collector
	serializer serializer.DeepCopier

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// Init validates cfg and assembles a Client without starting anything
// (spec.md §4.8 Init). It never touches the process-wide singleton slot;
// that happens in Start.
func Init(cfg clientconfig.ClientConfig, deps Deps) (*Client, error) {
	if err := clientconfig.Validate(cfg); err != nil {
		return nil, err
	}
	if deps.Transport == nil {
		return nil, fmt.Errorf("runtime: init: %w: no transport supplied", hiveerr.ErrConfigInvalid)
	}

	id, err := identity.New()
	if err != nil {
		return nil, fmt.Errorf("runtime: init: %w", err)
	}

	if deps.Serializer == nil {
		deps.Serializer = serializer.New(cfg.UseStandardSerializer)
	}
	if deps.StatsPublisher == nil {
		deps.StatsPublisher = stats.NewMemPublisher()
	}

	callbacks := callback.New()
	outboundPath := outbound.New(id, callbacks, deps.Transport, cfg, deps.Serializer)
	objectsRegistry := objects.New(deps.Transport, outboundPath)
	inboundPump := inbound.New(deps.Transport, objectsRegistry, callbacks)
	statsCollector := clientstats.New(deps.StatsPublisher, cfg.StatsFlushInterval, cfg.StatsBulkCap, cfg.DeploymentID, id.ClientGUID)

	return &Client{
		cfg:        cfg,
		identity:   id,
		callbacks:  callbacks,
		objects:    objectsRegistry,
		outbound:   outboundPath,
		inbound:    inboundPump,
		transport:  deps.Transport,
		stats:      statsCollector,
		serializer: deps.Serializer,
	}, nil
}

// Start enforces the singleton invariant, brings up the transport, derives
// the self address, launches the inbound pump and statistics collector,
// and blocks on fetching the type-code map (spec.md §4.8 Start, §8 R8).
func (c *Client) Start(ctx context.Context) error {
	if !claimSingleton(c) {
		return hiveerr.ErrAlreadyRunning
	}

	pumpCtx, cancel := context.WithCancel(context.Background())

	if err := c.transport.Start(ctx); err != nil {
		cancel()
		releaseSingleton(c)
		return fmt.Errorf("runtime: start transport: %w", err)
	}
	c.identity.SetSelfAddress(c.transport.MyAddress())

	if err := c.stats.Start(pumpCtx); err != nil {
		logging.Sugar().Warnw("runtime: statistics collector failed to start", "error", err)
	}

	c.mu.Lock()
	c.cancel = cancel
	c.started = true
	c.mu.Unlock()

	go c.inbound.Run(pumpCtx)

	if _, err := c.transport.GetTypeCodeMap(ctx); err != nil {
		// Non-fatal: callers that never invoke a generic-typed grain do not
		// need the map. Logged, not propagated, matching the pump's own
		// error-tolerance policy.
		logging.Sugar().Warnw("runtime: fetch type code map failed", "error", err)
	}

	return nil
}

// Reset tears the runtime down. Every step is independently guarded so one
// failure never prevents the rest from running (spec.md §4.8 Reset).
func (c *Client) Reset(ctx context.Context) {
	c.mu.Lock()
	cancel := c.cancel
	wasStarted := c.started
	c.started = false
	c.cancel = nil
	c.mu.Unlock()

	if !wasStarted {
		return
	}

	guard := func(step string, fn func() error) {
		if err := fn(); err != nil {
			logging.Sugar().Errorw("runtime: reset step failed, continuing", "step", step, "error", err)
		}
	}

	if cancel != nil {
		cancel()
	}
	c.inbound.Wait()

	guard("transport.prepare_to_stop", func() error { c.transport.PrepareToStop(); return nil })
	guard("transport.stop", func() error { return c.transport.Stop(ctx) })
	guard("stats.stop", func() error { c.stats.Stop(); return nil })
	guard("callbacks.clear", func() error { c.callbacks.Clear(); return nil })

	releaseSingleton(c)
}

// Dispose releases any remaining resources. Idempotent; safe to call after
// Reset or even without a prior Start.
func (c *Client) Dispose(ctx context.Context) {
	c.Reset(ctx)
}

// Invoke is the public entry point for the outbound path (C4): it sends
// request to target and, unless opts.OneWay is set, registers sink to
// receive the eventual response, exception, or timeout.
func (c *Client) Invoke(ctx context.Context, target grain.Reference, body []byte, opts grain.Options, debugContext, genericArguments string, sink callback.CompletionSink) error {
	if !c.isStarted() {
		return hiveerr.ErrNotStarted
	}
	return c.outbound.Invoke(ctx, target, body, opts, debugContext, genericArguments, sink)
}

// CreateObjectReference exposes C3 for registering a local callback object.
func (c *Client) CreateObjectReference(ctx context.Context, obj any, invoker objects.Invoker) (grain.GrainID, error) {
	if !c.isStarted() {
		return grain.GrainID{}, hiveerr.ErrNotStarted
	}
	return c.objects.CreateObjectReference(ctx, obj, invoker)
}

// DeleteObjectReference exposes C3 for deregistering a local callback object.
func (c *Client) DeleteObjectReference(ctx context.Context, id grain.GrainID) error {
	if !c.isStarted() {
		return hiveerr.ErrNotStarted
	}
	return c.objects.DeleteObjectReference(ctx, id)
}

// Identity exposes the client's assigned identity (spec.md §4.1).
func (c *Client) Identity() *identity.Identity { return c.identity }

func (c *Client) isStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func claimSingleton(c *Client) bool {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if current != nil {
		return false
	}
	current = c
	return true
}

func releaseSingleton(c *Client) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if current == c {
		current = nil
	}
}

// Current returns the process-wide active runtime, or nil if none is
// started (spec.md §3 invariant 6, §9 Process-wide singleton).
func Current() *Client {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	return current
}
