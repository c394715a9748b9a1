// Package cluster implements the Node runtime: declaration of RPC and
// liveliness key expressions, the liveliness-driven service registry, the
// receive loop, per-request task dispatch, and graceful shutdown.
package cluster

import (
	"context"
	"os"
	"strconv"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/mcastellin/clustermesh/registry"
	"github.com/mcastellin/clustermesh/rpc"
	"github.com/mcastellin/clustermesh/transport"
)

// Process exit codes, per spec.md §6.
const (
	ExitOK             = 0
	ExitStartNodeError = 10
)

const (
	rpcTimeoutEnvVar    = "ZENOH_RPC_TIMEOUT"
	defaultRPCTimeoutMs = 10000
)

// Handler is the uniform capability a Node consumes, matching spec.md
// §4.3's "name() / rpc_call(ctx, params) -> result". *rpc.Dispatcher
// satisfies this directly.
type Handler interface {
	Name() string
	Call(ctx context.Context, params rpc.Params) rpc.Result
}

// PushHandlerFunc handles a one-way message delivered on the push channel.
// Its result is logged but otherwise discarded, per spec.md §4.4.3.
type PushHandlerFunc func(ctx context.Context, payload []byte) error

// Option configures a Node at construction time.
type Option func(*Node)

// WithLogger overrides the Node's logger. Defaults to zap.NewNop() if never
// set, so a Node is usable without requiring callers to wire logging.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Node) { n.logger = logger }
}

// WithPush enables the optional push channel subscriber at
// @chl/<service>/<peer_id> (spec.md §4.4.3, SPEC_FULL.md §7) and routes
// received payloads to handler.
func WithPush(handler PushHandlerFunc) Option {
	return func(n *Node) { n.pushHandler = handler }
}

// WithRPCTimeout overrides the outbound RPC timeout, bypassing the
// ZENOH_RPC_TIMEOUT environment variable.
func WithRPCTimeout(d time.Duration) Option {
	return func(n *Node) { n.rpcTimeout = d }
}

// withFatalHandler overrides the process-exit behavior on startup
// declaration failure. Used by tests; production callers should rely on
// the default (os.Exit(ExitStartNodeError)).
func withFatalHandler(fn func(code int)) Option {
	return func(n *Node) { n.onFatal = fn }
}

// Node owns a transport.Session, a Handler, a Registry, and a shutdown
// token, per spec.md §3's Node state. Constructing a Node spawns its
// background loop immediately; Close tears it down.
type Node struct {
	session transport.Session
	handler Handler
	registry *registry.Registry
	logger  *zap.Logger

	rpcTimeout  time.Duration
	pushHandler PushHandlerFunc
	onFatal     func(code int)

	state atomic.Int32

	cancel context.CancelFunc
	done   chan struct{}
}

// NewNode constructs a Node bound to handler over session and spawns its
// background loop (spec.md §4.4.1).
func NewNode(session transport.Session, handler Handler, opts ...Option) *Node {
	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		session:    session,
		handler:    handler,
		registry:   registry.New(),
		logger:     zap.NewNop(),
		rpcTimeout: rpcTimeoutFromEnv(),
		onFatal:    os.Exit,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	n.state.Store(int32(StateConstructed))
	for _, opt := range opts {
		opt(n)
	}

	go n.run(ctx)
	return n
}

func rpcTimeoutFromEnv() time.Duration {
	ms := defaultRPCTimeoutMs
	if v := os.Getenv(rpcTimeoutEnvVar); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			ms = parsed
		}
	}
	return time.Duration(ms) * time.Millisecond
}

// State returns the Node's current lifecycle state. Safe to call
// concurrently with the background loop's transitions.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Close cancels the Node's shutdown token and blocks until the background
// loop has undeclared its liveliness token and exited, per the
// ShuttingDown -> Terminated transition.
func (n *Node) Close() error {
	n.cancel()
	<-n.done
	return nil
}

func (n *Node) run(ctx context.Context) {
	defer close(n.done)
	n.state.Store(int32(StateDeclaring))

	service := n.handler.Name()
	peer := n.session.Zid()

	queryable, err := n.session.DeclareQueryable(rpcKeyExpr(service, peer), true)
	if err != nil {
		n.fatal("failed to declare rpc queryable", err)
		return
	}
	defer queryable.Undeclare()

	liveToken, err := n.session.Liveliness().DeclareToken(liveKeyExpr(service, peer))
	if err != nil {
		n.fatal("failed to declare liveliness token", err)
		return
	}

	liveSub, err := n.session.Liveliness().DeclareSubscriber(liveWildcard)
	if err != nil {
		n.fatal("failed to declare liveliness subscriber", err)
		return
	}
	defer liveSub.Undeclare()

	var pushSamples <-chan transport.Sample
	if n.pushHandler != nil {
		pushSub, err := n.session.DeclareSubscriber(chlKeyExpr(service, peer))
		if err != nil {
			n.fatal("failed to declare push subscriber", err)
			return
		}
		defer pushSub.Undeclare()
		pushSamples = pushSub.Samples()
	}

	n.state.Store(int32(StateSeeding))
	n.seedRegistry(ctx)

	n.state.Store(int32(StateServing))
	n.logger.Info("node serving",
		zap.String("service", service),
		zap.String("zid", peer.String()))

	queries := queryable.Queries()
	liveSamples := liveSub.Samples()

	for {
		select {
		case <-ctx.Done():
			n.state.Store(int32(StateShuttingDown))
			n.logger.Info("node shutting down", zap.String("service", service))
			if err := liveToken.Undeclare(); err != nil {
				n.logger.Warn("failed to undeclare liveliness token", zap.Error(err))
			}
			n.state.Store(int32(StateTerminated))
			return

		case sample, ok := <-liveSamples:
			if !ok {
				liveSamples = nil
				continue
			}
			n.syncKeyExpr(sample.KeyExpr, sample.Kind)

		case query, ok := <-queries:
			if !ok {
				queries = nil
				continue
			}
			go n.handleQuery(query)

		case sample, ok := <-pushSamples:
			if !ok {
				pushSamples = nil
				continue
			}
			go n.handlePush(sample)
		}
	}
}

func (n *Node) fatal(msg string, err error) {
	n.logger.Error(msg, zap.Error(err))
	n.state.Store(int32(StateTerminated))
	n.onFatal(ExitStartNodeError)
}

// seedRegistry drains the initial liveliness snapshot, bounded by the
// Node's rpc timeout so a partitioned seed query can't wedge Seeding
// forever (resolves the Open Question from spec.md §9; see SPEC_FULL.md
// §7).
func (n *Node) seedRegistry(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, n.rpcTimeout)
	defer cancel()

	replies, err := n.session.Liveliness().Get(ctx, liveWildcard)
	if err != nil {
		n.logger.Warn("liveliness seed query failed", zap.Error(err))
		return
	}

	for {
		select {
		case reply, ok := <-replies:
			if !ok {
				return
			}
			if reply.Kind == transport.ReplyOk {
				n.syncKeyExpr(reply.KeyExpr, transport.Put)
			}
		case <-ctx.Done():
			n.logger.Warn("liveliness seed drain timed out")
			return
		}
	}
}

func (n *Node) syncKeyExpr(keyExpr string, kind transport.Kind) {
	service, peer, ok := ParseKeyExpr(keyExpr)
	if !ok {
		n.logger.Warn("failed to parse liveliness key expression", zap.String("keyExpr", keyExpr))
		return
	}

	switch kind {
	case transport.Put:
		n.registry.Insert(service, peer)
	case transport.Delete:
		n.registry.Remove(service, peer)
	}
}

func (n *Node) handleQuery(query transport.Query) {
	if len(query.Payload) == 0 {
		n.replyErr(query, rpc.NewError(rpc.InternalError, "empty query payload"))
		return
	}

	var params rpc.Params
	if err := rpc.Decode(query.Payload, &params); err != nil {
		n.replyErr(query, rpc.NewError(rpc.InternalError, "decode params: %v", err))
		return
	}

	ctx := transport.ContextWithSession(context.Background(), n.session)
	result := n.handler.Call(ctx, params)

	encoded, err := rpc.Encode(result)
	if err != nil {
		n.logger.Error("failed to encode rpc result", zap.Error(err))
		n.replyErr(query, rpc.NewError(rpc.InternalError, "encode result: %v", err))
		return
	}
	if err := query.ReplyOk(encoded); err != nil {
		n.logger.Warn("failed to reply to query", zap.Error(err))
	}
}

func (n *Node) replyErr(query transport.Query, rpcErr *rpc.Error) {
	encoded, err := rpc.Encode(rpcErr)
	if err != nil {
		n.logger.Error("failed to encode rpc error reply", zap.Error(err))
		return
	}
	if err := query.ReplyErr(encoded); err != nil {
		n.logger.Warn("failed to reply-err to query", zap.Error(err))
	}
}

func (n *Node) handlePush(sample transport.Sample) {
	ctx := transport.ContextWithSession(context.Background(), n.session)
	if err := n.pushHandler(ctx, sample.Payload); err != nil {
		n.logger.Warn("push handler returned an error", zap.Error(err))
	}
}

// RPC selects a peer for service and issues a timed get carrying req's
// payload, returning the decoded reply or a taxonomy Error, per spec.md
// §4.4.4. Only the opaque payload bytes cross the wire: the rest of
// ClusterRequest/ClusterResponse is metadata the Node already knows
// locally (its own zid on the way out, the selected peer's zid on the way
// back) rather than something re-derived by decoding an envelope.
func (n *Node) RPC(ctx context.Context, service string, req rpc.ClusterRequest) (rpc.ClusterResponse, error) {
	peer, ok := n.registry.Select(registry.ServiceName(service))
	if !ok {
		return rpc.ClusterResponse{}, rpc.NewError(rpc.ServiceNotFound, "no peer for service %s", service)
	}

	replies, err := n.session.Get(rpcKeyExpr(service, peer)).
		Payload(req.Payload).
		Target(transport.BestMatching).
		Timeout(n.rpcTimeout).
		Wait(ctx)
	if err != nil {
		return rpc.ClusterResponse{}, rpc.NewError(rpc.InternalError, "get on service %s: %v", service, err)
	}

	reply, ok := <-replies
	if !ok {
		return rpc.ClusterResponse{}, rpc.NewError(rpc.RPCTimeout, "no reply from service %s within %s", service, n.rpcTimeout)
	}

	switch reply.Kind {
	case transport.ReplyOk:
		return rpc.ClusterResponse{Zid: peer.String(), Status: 200, Payload: reply.Payload}, nil
	default:
		var wireErr rpc.Error
		if err := rpc.Decode(reply.Payload, &wireErr); err != nil {
			return rpc.ClusterResponse{}, rpc.NewError(rpc.InternalError, "decode error reply: %v", err)
		}
		return rpc.ClusterResponse{}, &wireErr
	}
}

// Push selects a peer for service and publishes req's payload to its push
// channel, per spec.md §4.4.5. There is no delivery confirmation; a
// transport-level publish failure is mapped to ServiceNotFound, the
// documented peculiarity carried forward from spec.md §9's Open Questions
// (kept for wire compatibility rather than introducing a new PushFailed
// code — see DESIGN.md).
func (n *Node) Push(ctx context.Context, service string, req rpc.ClusterRequest) error {
	peer, ok := n.registry.Select(registry.ServiceName(service))
	if !ok {
		return rpc.NewError(rpc.ServiceNotFound, "no peer for service %s", service)
	}

	if err := n.session.Put(chlKeyExpr(service, peer), req.Payload); err != nil {
		return rpc.NewError(rpc.ServiceNotFound, "push to service %s: %v", service, err)
	}
	return nil
}
