package rpc

import "context"

// Caller abstracts a Node's outbound rpc operation so Invoke can be used
// against either a real cluster.Node or a test double without rpc
// depending on the cluster package.
type Caller interface {
	RPC(ctx context.Context, service string, req ClusterRequest) (ClusterResponse, error)
}

// RegisterMethod adds a typed method to a Dispatcher. fn receives the
// shared context as its first argument (spec.md §4.3: "each user method
// receives the shared context as its first parameter after the receiver"),
// decodes TArgs from the wire, and returns TResult to be re-encoded.
//
// This is the Go-idiomatic substitute for a macro that would otherwise
// generate one T_Params/T_Result variant per method: the type parameters
// give the call site compile-time safety while the Dispatcher underneath
// keeps dispatching on the plain method-name table.
func RegisterMethod[TArgs any, TResult any](d *Dispatcher, name string, fn func(ctx context.Context, args TArgs) (TResult, error)) {
	d.Register(name, func(ctx context.Context, raw []byte) ([]byte, error) {
		var args TArgs
		if err := Decode(raw, &args); err != nil {
			return nil, NewError(InternalError, "decode args for %s: %v", name, err)
		}

		result, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		return Encode(result)
	})
}

// Invoke calls method on service through caller with typed arguments,
// decoding the reply into TResult. It's the client-side symmetry to
// RegisterMethod described in spec.md §4.3.
func Invoke[TArgs any, TResult any](ctx context.Context, caller Caller, service, method string, args TArgs) (TResult, error) {
	var zero TResult

	encodedArgs, err := Encode(args)
	if err != nil {
		return zero, NewError(InternalError, "encode args for %s: %v", method, err)
	}

	params := Params{Method: method, Args: encodedArgs}
	payload, err := Encode(params)
	if err != nil {
		return zero, NewError(InternalError, "encode params for %s: %v", method, err)
	}

	resp, err := caller.RPC(ctx, service, ClusterRequest{Query: method, Payload: payload})
	if err != nil {
		return zero, err
	}

	var result Result
	if err := Decode(resp.Payload, &result); err != nil {
		return zero, NewError(InternalError, "decode result for %s: %v", method, err)
	}
	if result.Err != nil {
		return zero, result.Err
	}

	var out TResult
	if err := Decode(result.Value, &out); err != nil {
		return zero, NewError(InternalError, "decode value for %s: %v", method, err)
	}
	return out, nil
}
