package rpc

import (
	"context"
	"testing"
)

func TestDispatcherCallsRegisteredMethod(t *testing.T) {
	d := NewDispatcher("ping")
	RegisterMethod(d, "Ping", func(ctx context.Context, args string) (string, error) {
		return "Pong:" + args, nil
	})

	encodedArgs, err := Encode("hello")
	if err != nil {
		t.Fatal(err)
	}

	result := d.Call(context.Background(), Params{Method: "Ping", Args: encodedArgs})
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}

	var out string
	if err := Decode(result.Value, &out); err != nil {
		t.Fatal(err)
	}
	if out != "Pong:hello" {
		t.Fatalf("got %q, want %q", out, "Pong:hello")
	}
}

func TestDispatcherUnknownMethod(t *testing.T) {
	d := NewDispatcher("ping")

	result := d.Call(context.Background(), Params{Method: "Missing"})
	if result.Err == nil || result.Err.Code != RPCNotImplemented {
		t.Fatalf("expected RPCNotImplemented, got %+v", result.Err)
	}
}

func TestDispatcherMethodsPreservesRegistrationOrder(t *testing.T) {
	d := NewDispatcher("svc")
	RegisterMethod(d, "A", func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil })
	RegisterMethod(d, "B", func(ctx context.Context, _ struct{}) (struct{}, error) { return struct{}{}, nil })

	got := d.Methods()
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("unexpected method order: %v", got)
	}
}

type stubCaller struct {
	resp ClusterResponse
	err  error
}

func (c *stubCaller) RPC(ctx context.Context, service string, req ClusterRequest) (ClusterResponse, error) {
	return c.resp, c.err
}

func TestInvokeRoundTrip(t *testing.T) {
	d := NewDispatcher("ping")
	RegisterMethod(d, "Echo", func(ctx context.Context, args string) (string, error) {
		return args, nil
	})

	encodedParams, err := Encode(Params{Method: "Echo", Args: mustEncode(t, "hi")})
	if err != nil {
		t.Fatal(err)
	}
	var params Params
	if err := Decode(encodedParams, &params); err != nil {
		t.Fatal(err)
	}

	result := d.Call(context.Background(), params)
	encodedResult, err := Encode(result)
	if err != nil {
		t.Fatal(err)
	}

	caller := &stubCaller{resp: ClusterResponse{Status: 200, Payload: encodedResult}}
	out, err := Invoke[string, string](context.Background(), caller, "ping", "Echo", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if out != "hi" {
		t.Fatalf("got %q, want %q", out, "hi")
	}
}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
