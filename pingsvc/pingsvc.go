// Package pingsvc is a minimal demo service showing how a concrete service
// wires its typed methods onto an *rpc.Dispatcher for a cluster.Node to
// serve. It mirrors the shape a real service author would follow: a
// request/response pair per method, plus a constructor that returns a
// ready-to-use Handler.
package pingsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcastellin/clustermesh/rpc"
)

// Name is the service name this package registers under, used both for the
// Node's RPC/liveliness key expressions and as the service argument to
// rpc.Invoke from a caller.
const Name = "pingsvc"

// PingArgs carries the caller's message and a trace id for demo logging.
type PingArgs struct {
	Message string `codec:"message"`
	TraceID string `codec:"trace_id"`
}

// PingResult echoes the message back with the serving peer's timestamp.
type PingResult struct {
	Message  string `codec:"message"`
	TraceID  string `codec:"trace_id"`
	ServedAt string `codec:"served_at"`
}

// NewHandler builds the Dispatcher backing the ping service. It registers a
// single "ping" method; additional methods would follow the same
// rpc.RegisterMethod pattern.
func NewHandler() *rpc.Dispatcher {
	d := rpc.NewDispatcher(Name)
	rpc.RegisterMethod(d, "ping", ping)
	return d
}

func ping(ctx context.Context, args PingArgs) (PingResult, error) {
	traceID := args.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return PingResult{
		Message:  fmt.Sprintf("pong: %s", args.Message),
		TraceID:  traceID,
		ServedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// Call invokes the ping method against service Name through caller, the
// client-side counterpart a demo or test would use.
func Call(ctx context.Context, caller rpc.Caller, args PingArgs) (PingResult, error) {
	return rpc.Invoke[PingArgs, PingResult](ctx, caller, Name, "ping", args)
}
