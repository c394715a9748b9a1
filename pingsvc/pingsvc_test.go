package pingsvc

import (
	"context"
	"testing"
	"time"

	"github.com/mcastellin/clustermesh/cluster"
	"github.com/mcastellin/clustermesh/transport/local"
)

func TestPingRoundTrip(t *testing.T) {
	bus := local.NewBus()

	server := cluster.NewNode(local.Open(bus), NewHandler())
	defer server.Close()
	waitServing(t, server)

	client := cluster.NewNode(local.Open(bus), NewHandler())
	defer client.Close()
	waitServing(t, client)

	result, err := Call(context.Background(), client, PingArgs{Message: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message != "pong: hello" {
		t.Fatalf("got %q, want %q", result.Message, "pong: hello")
	}
	if result.TraceID == "" {
		t.Fatal("expected a generated trace id")
	}
}

func waitServing(t *testing.T, n *cluster.Node) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n.State() == cluster.StateServing {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for node to start serving, state=%s", n.State())
}
