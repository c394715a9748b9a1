package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/mcastellin/clustermesh/rpc"
	"github.com/mcastellin/clustermesh/transport/local"
)

func echoDispatcher(name string) *rpc.Dispatcher {
	d := rpc.NewDispatcher(name)
	rpc.RegisterMethod(d, "echo", func(ctx context.Context, args string) (string, error) {
		return args, nil
	})
	return d
}

func waitForState(t *testing.T, n *Node, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, got %s", want, n.State())
}

func noFatal(t *testing.T) Option {
	return withFatalHandler(func(code int) {
		t.Fatalf("node exited fatally with code %d", code)
	})
}

// TestSingleNodeCannotDiscoverItself covers spec.md §8 scenario 1: before
// any other peer joins, a Node never observes its own liveliness token
// (no local loopback, see transport/local's publish), so its own registry
// stays empty and rpc against its own service name fails.
func TestSingleNodeCannotDiscoverItself(t *testing.T) {
	bus := local.NewBus()
	sess := local.Open(bus)

	node := NewNode(sess, echoDispatcher("echo-svc"), noFatal(t))
	defer node.Close()
	waitForState(t, node, StateServing)

	if !node.registry.IsEmpty() {
		t.Fatalf("expected an empty registry, got %d services", node.registry.Len())
	}

	_, err := rpc.Invoke[string, string](context.Background(), node, "echo-svc", "echo", "hello")
	if err == nil {
		t.Fatal("expected an error")
	}
	rpcErr, ok := err.(*rpc.Error)
	if !ok {
		t.Fatalf("got %T, want *rpc.Error", err)
	}
	if rpcErr.Code != rpc.ServiceNotFound {
		t.Fatalf("got code %d, want %d", rpcErr.Code, rpc.ServiceNotFound)
	}
}

func TestRPCToUnknownServiceReturnsServiceNotFound(t *testing.T) {
	bus := local.NewBus()
	sess := local.Open(bus)

	node := NewNode(sess, echoDispatcher("echo-svc"), noFatal(t))
	defer node.Close()
	waitForState(t, node, StateServing)

	_, err := rpc.Invoke[string, string](context.Background(), node, "nobody-home", "echo", "hi")
	if err == nil {
		t.Fatal("expected an error")
	}
	rpcErr, ok := err.(*rpc.Error)
	if !ok {
		t.Fatalf("got %T, want *rpc.Error", err)
	}
	if rpcErr.Code != rpc.ServiceNotFound {
		t.Fatalf("got code %d, want %d", rpcErr.Code, rpc.ServiceNotFound)
	}
}

func TestTwoNodePingPong(t *testing.T) {
	bus := local.NewBus()

	server := NewNode(local.Open(bus), echoDispatcher("echo-svc"), noFatal(t))
	defer server.Close()
	waitForState(t, server, StateServing)

	client := NewNode(local.Open(bus), echoDispatcher("client-svc"), noFatal(t))
	defer client.Close()
	waitForState(t, client, StateServing)

	out, err := rpc.Invoke[string, string](context.Background(), client, "echo-svc", "echo", "ping")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ping" {
		t.Fatalf("got %q, want %q", out, "ping")
	}
}

func TestRoundRobinAcrossThreePeers(t *testing.T) {
	bus := local.NewBus()

	servers := make([]*Node, 3)
	for i := range servers {
		n := NewNode(local.Open(bus), echoDispatcher("echo-svc"), noFatal(t))
		defer n.Close()
		waitForState(t, n, StateServing)
		servers[i] = n
	}

	client := NewNode(local.Open(bus), echoDispatcher("client-svc"), noFatal(t))
	defer client.Close()
	waitForState(t, client, StateServing)

	deadline := time.Now().Add(2 * time.Second)
	for client.registry.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never discovered echo-svc peers")
		}
		time.Sleep(time.Millisecond)
	}

	seen := map[string]int{}
	for i := 0; i < 30; i++ {
		resp, err := client.RPC(context.Background(), "echo-svc", rpc.ClusterRequest{Payload: mustEncodeParams(t, "echo", "x")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen[resp.Zid]++
	}

	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct peers selected, got %d: %+v", len(seen), seen)
	}
	for zid, count := range seen {
		if count < 8 || count > 12 {
			t.Fatalf("peer %s selected %d times, expected roughly even distribution", zid, count)
		}
	}
}

func TestPeerDepartureRemovesFromRegistry(t *testing.T) {
	bus := local.NewBus()

	server := NewNode(local.Open(bus), echoDispatcher("echo-svc"), noFatal(t))
	waitForState(t, server, StateServing)

	client := NewNode(local.Open(bus), echoDispatcher("client-svc"), noFatal(t))
	defer client.Close()
	waitForState(t, client, StateServing)

	deadline := time.Now().Add(2 * time.Second)
	for client.registry.IsEmpty() {
		if time.Now().After(deadline) {
			t.Fatal("client never discovered echo-svc")
		}
		time.Sleep(time.Millisecond)
	}

	if err := server.Close(); err != nil {
		t.Fatal(err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for {
		_, ok := client.registry.Select("echo-svc")
		if !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never observed peer departure")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRPCTimesOutWhenHandlerNeverReplies(t *testing.T) {
	bus := local.NewBus()

	slow := rpc.NewDispatcher("slow-svc")
	block := make(chan struct{})
	rpc.RegisterMethod(slow, "wait", func(ctx context.Context, args string) (string, error) {
		<-block
		return args, nil
	})
	defer close(block)

	server := NewNode(local.Open(bus), slow, noFatal(t))
	defer server.Close()
	waitForState(t, server, StateServing)

	client := NewNode(local.Open(bus), echoDispatcher("client-svc"), noFatal(t), WithRPCTimeout(50*time.Millisecond))
	defer client.Close()
	waitForState(t, client, StateServing)

	deadline := time.Now().Add(2 * time.Second)
	for client.registry.IsEmpty() {
		if time.Now().After(deadline) {
			t.Fatal("client never discovered slow-svc")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := rpc.Invoke[string, string](context.Background(), client, "slow-svc", "wait", "x")
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	rpcErr, ok := err.(*rpc.Error)
	if !ok {
		t.Fatalf("got %T, want *rpc.Error", err)
	}
	if rpcErr.Code != rpc.RPCTimeout {
		t.Fatalf("got code %d, want %d", rpcErr.Code, rpc.RPCTimeout)
	}
}

func TestMalformedQueryPayloadReturnsInternalError(t *testing.T) {
	bus := local.NewBus()

	server := NewNode(local.Open(bus), echoDispatcher("echo-svc"), noFatal(t))
	defer server.Close()
	waitForState(t, server, StateServing)

	raw := local.Open(bus)
	replies, err := raw.Get(rpcKeyExpr("echo-svc", server.session.Zid())).
		Payload([]byte("not valid msgpack params")).
		Timeout(time.Second).
		Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	reply, ok := <-replies
	if !ok {
		t.Fatal("expected a reply")
	}

	var rpcErr rpc.Error
	if err := rpc.Decode(reply.Payload, &rpcErr); err != nil {
		t.Fatalf("failed to decode error reply: %v", err)
	}
	if rpcErr.Code != rpc.InternalError {
		t.Fatalf("got code %d, want %d", rpcErr.Code, rpc.InternalError)
	}
}

func TestPushDeliversToHandler(t *testing.T) {
	bus := local.NewBus()

	received := make(chan string, 1)
	server := NewNode(local.Open(bus), echoDispatcher("echo-svc"), noFatal(t),
		WithPush(func(ctx context.Context, payload []byte) error {
			received <- string(payload)
			return nil
		}))
	defer server.Close()
	waitForState(t, server, StateServing)

	client := NewNode(local.Open(bus), echoDispatcher("client-svc"), noFatal(t))
	defer client.Close()
	waitForState(t, client, StateServing)

	deadline := time.Now().Add(2 * time.Second)
	for client.registry.IsEmpty() {
		if time.Now().After(deadline) {
			t.Fatal("client never discovered echo-svc")
		}
		time.Sleep(time.Millisecond)
	}

	if err := client.Push(context.Background(), "echo-svc", rpc.ClusterRequest{Payload: []byte("hello-push")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case msg := <-received:
		if msg != "hello-push" {
			t.Fatalf("got %q, want %q", msg, "hello-push")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for push delivery")
	}
}

func mustEncodeParams(t *testing.T, method string, args string) []byte {
	t.Helper()
	encodedArgs, err := rpc.Encode(args)
	if err != nil {
		t.Fatal(err)
	}
	payload, err := rpc.Encode(rpc.Params{Method: method, Args: encodedArgs})
	if err != nil {
		t.Fatal(err)
	}
	return payload
}
