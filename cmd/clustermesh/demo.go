package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mcastellin/clustermesh/cluster"
	"github.com/mcastellin/clustermesh/pingsvc"
	"github.com/mcastellin/clustermesh/transport/local"
)

var demoNodeCount int

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "start an in-process pingsvc cluster and issue one ping",
	Long: `demo declares a handful of pingsvc nodes sharing an in-process bus,
waits for them to discover one another via liveliness, issues a single ping
from an extra client node, and prints the reply before shutting everything
down.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().IntVar(&demoNodeCount, "nodes", 3, "number of pingsvc peers to start")
}

func runDemo(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	if demoNodeCount < 1 {
		return fmt.Errorf("--nodes must be at least 1")
	}

	bus := local.NewBus()

	servers := make([]*cluster.Node, demoNodeCount)
	for i := range servers {
		servers[i] = cluster.NewNode(local.Open(bus), pingsvc.NewHandler(), cluster.WithLogger(logger))
	}
	defer func() {
		for _, n := range servers {
			n.Close()
		}
	}()

	client := cluster.NewNode(local.Open(bus), pingsvc.NewHandler(), cluster.WithLogger(logger))
	defer client.Close()

	if err := waitForServing(client); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := pingWithRetry(ctx, client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ping failed: %v\n", err)
		return err
	}

	fmt.Printf("reply: %s (trace %s, served at %s)\n", result.Message, result.TraceID, result.ServedAt)
	return nil
}

func waitForServing(n *cluster.Node) error {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if n.State() == cluster.StateServing {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for client node to reach serving state")
}

// pingWithRetry issues a ping, retrying up to 20 times on any error to
// tolerate the liveliness fan-out racing the client's own seed query — the
// demo's servers may not have finished publishing their tokens yet, which
// surfaces as ServiceNotFound.
func pingWithRetry(ctx context.Context, caller *cluster.Node) (pingsvc.PingResult, error) {
	var lastErr error
	for attempt := 0; attempt < 20; attempt++ {
		result, err := pingsvc.Call(ctx, caller, pingsvc.PingArgs{Message: "hello from clustermesh"})
		if err == nil {
			return result, nil
		}
		lastErr = err
		time.Sleep(50 * time.Millisecond)
	}
	return pingsvc.PingResult{}, lastErr
}
