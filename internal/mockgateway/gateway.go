// Package mockgateway is a reference gateway peer for cmd/hive-mockgateway:
// a local-development/integration-test stand-in for the production gateway
// that spec.md §1 places out of scope. It speaks exactly the wire contract
// grpctransport.Transport dials (the JSON-over-gRPC Envelope stream defined
// in internal/transport/wire), routes application messages between whatever
// clients have registered as observers for a given grain id, answers
// type-code-map requests, and taps every relayed envelope out to a
// gorilla/websocket debug feed, adapted from the teacher's gateway listener
// (internal/gateway/listener.go Subscribe/fan-out shape) and its gRPC server
// (internal/gateway/server.go, generalized from a generated agentpb service
// to the codec-based Envelope stream since no protoc stubs exist for this
// domain).
package mockgateway

import (
	"context"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/hiveswarm/hive/internal/logging"
	"github.com/hiveswarm/hive/internal/transport/wire"
	"github.com/hiveswarm/hive/pkg/auth"
	"github.com/hiveswarm/hive/pkg/grain"
)

// streamMethod must match grpctransport's streamMethod constant.
const streamMethod = "/hive.Gateway/Stream"

// Config parameterizes a Gateway.
type Config struct {
	// ListenAddr is the gRPC listen address, e.g. ":7700".
	ListenAddr string

	// TypeCodes answers type_code_map_request control envelopes. A nil map
	// answers with an empty table.
	TypeCodes map[string]int32

	// Verifier, if set, rejects streams whose "authorization: Bearer ..."
	// metadata does not carry a valid token (pkg/auth, mirroring the
	// grpctransport.Config.AuthToken bearer it verifies).
	Verifier *auth.Verifier
}

type clientConn struct {
	id     string
	stream grpc.ServerStream
	mu     sync.Mutex // serializes SendMsg; grpc streams are not send-safe from multiple goroutines
}

func (c *clientConn) send(env *wire.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.SendMsg(env)
}

// Gateway is the relay hub: it remembers which connected client last
// registered as observer for a grain id and forwards application messages
// addressed to that id, exactly mirroring what the production gateway's
// proxying contract promises the client (spec.md §6 Transport).
type Gateway struct {
	cfg Config

	grpcSrv *grpc.Server

	mu     sync.Mutex
	routes map[grain.GrainID]*clientConn

	subsMu sync.RWMutex
	subs   map[chan []byte]struct{}
}

// New constructs a Gateway. Call Start to begin serving.
func New(cfg Config) *Gateway {
	return &Gateway{
		cfg:    cfg,
		routes: make(map[grain.GrainID]*clientConn),
		subs:   make(map[chan []byte]struct{}),
	}
}

// Start binds cfg.ListenAddr and serves until ctx is canceled or Stop is
// called. It registers the Stream method via a raw grpc.ServiceDesc since,
// per internal/transport/wire's doc comment, no protoc-generated stub
// exists for this domain.
func (g *Gateway) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("mockgateway: listen %s: %w", g.cfg.ListenAddr, err)
	}

	g.grpcSrv = grpc.NewServer()
	g.grpcSrv.RegisterService(&grpc.ServiceDesc{
		ServiceName: "hive.Gateway",
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "Stream",
			Handler:       g.handleStream,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, nil)

	go func() {
		<-ctx.Done()
		g.grpcSrv.GracefulStop()
	}()

	logging.Sugar().Infow("mockgateway: serving", "addr", g.cfg.ListenAddr, "method", streamMethod)
	return g.grpcSrv.Serve(ln)
}

// Stop stops serving immediately.
func (g *Gateway) Stop() {
	if g.grpcSrv != nil {
		g.grpcSrv.Stop()
	}
}

// Subscribe registers a channel that receives a JSON copy of every relayed
// or control envelope, for the HTTP debug tap (internal/gateway/listener.go
// Subscribe precedent). The caller must drain ch or call the returned
// unregister func to avoid blocking the relay loop; sends are non-blocking
// and drop on a full channel.
func (g *Gateway) Subscribe() (ch chan []byte, unregister func()) {
	ch = make(chan []byte, 64)
	g.subsMu.Lock()
	g.subs[ch] = struct{}{}
	g.subsMu.Unlock()
	return ch, func() {
		g.subsMu.Lock()
		delete(g.subs, ch)
		g.subsMu.Unlock()
		close(ch)
	}
}

func (g *Gateway) broadcast(buf []byte) {
	g.subsMu.RLock()
	defer g.subsMu.RUnlock()
	for ch := range g.subs {
		select {
		case ch <- buf:
		default:
		}
	}
}

func (g *Gateway) authorize(ctx context.Context) error {
	if g.cfg.Verifier == nil {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return fmt.Errorf("mockgateway: missing authorization metadata")
	}
	const prefix = "Bearer "
	tok := vals[0]
	if len(tok) > len(prefix) && tok[:len(prefix)] == prefix {
		tok = tok[len(prefix):]
	}
	_, err := g.cfg.Verifier.ParseAndVerify(tok)
	return err
}

// handleStream is the grpc.StreamHandler for the "/hive.Gateway/Stream"
// bidi stream; one goroutine per connected client, mirroring
// grpctransport.Transport's single-stream-per-client model.
func (g *Gateway) handleStream(_ any, stream grpc.ServerStream) error {
	ctx := stream.Context()
	if err := g.authorize(ctx); err != nil {
		logging.Sugar().Warnw("mockgateway: rejected unauthenticated stream", "error", err)
		return err
	}

	conn := &clientConn{id: newConnID(), stream: stream}
	defer g.dropConn(conn)

	for {
		var env wire.Envelope
		if err := stream.RecvMsg(&env); err != nil {
			return nil
		}
		g.dispatch(conn, &env)
	}
}

func (g *Gateway) dispatch(conn *clientConn, env *wire.Envelope) {
	if buf, err := marshalTap(env); err == nil {
		g.broadcast(buf)
	}

	switch env.Kind {
	case "register_observer":
		if gid, err := grain.ParseGrainID(env.TargetGrain); err == nil {
			g.mu.Lock()
			g.routes[gid] = conn
			g.mu.Unlock()
		}
	case "unregister_observer":
		if gid, err := grain.ParseGrainID(env.TargetGrain); err == nil {
			g.mu.Lock()
			if g.routes[gid] == conn {
				delete(g.routes, gid)
			}
			g.mu.Unlock()
		}
	case "type_code_map_request":
		reply := &wire.Envelope{Kind: "message"}
		if len(g.cfg.TypeCodes) > 0 {
			if body, err := encodeTypeCodeMap(g.cfg.TypeCodes); err == nil {
				reply.Body = body
			}
		}
		if err := conn.send(reply); err != nil {
			logging.Sugar().Warnw("mockgateway: type code map reply failed", "error", err)
		}
	case "message", "":
		g.relay(env)
	default:
		logging.Sugar().Warnw("mockgateway: unsupported envelope kind", "kind", env.Kind)
	}
}

// relay forwards an application envelope to whichever connection last
// registered as observer for its target grain id; a target with no
// registered connection is dropped with a warning, matching spec.md §4.5's
// "no entry, log and drop" policy applied at the routing layer.
func (g *Gateway) relay(env *wire.Envelope) {
	gid, err := grain.ParseGrainID(env.TargetGrain)
	if err != nil {
		logging.Sugar().Warnw("mockgateway: malformed target grain id, dropping", "target", env.TargetGrain)
		return
	}
	g.mu.Lock()
	dst := g.routes[gid]
	g.mu.Unlock()
	if dst == nil {
		logging.Sugar().Warnw("mockgateway: no route for target, dropping", "target", gid.String())
		return
	}
	if err := dst.send(env); err != nil {
		logging.Sugar().Warnw("mockgateway: relay send failed", "target", gid.String(), "error", err)
	}
}

func (g *Gateway) dropConn(conn *clientConn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for gid, c := range g.routes {
		if c == conn {
			delete(g.routes, gid)
		}
	}
}
