package rpc

import (
	"context"
	"fmt"
)

// MethodFunc is the untyped shape every registered method is reduced to:
// codec-encoded arguments in, codec-encoded return value out. RegisterMethod
// and Invoke (typed.go) are the generic veneer that keeps call sites type
// safe while the Dispatcher itself stays a plain lookup table.
type MethodFunc func(ctx context.Context, args []byte) ([]byte, error)

// Dispatcher is the uniform runtime capability spec.md §4.3 calls
// "name() / rpc_call(ctx, params) -> result". It's a method-name-keyed
// table, the idiomatic Go substitute for the macro-generated server adapter
// described in the original design — modeled directly on
// remote-procedure-call/extensions.GetModules()'s registered Plugin table.
type Dispatcher struct {
	name    string
	methods map[string]MethodFunc
	order   []string
}

// NewDispatcher creates an empty Dispatcher for the named service.
func NewDispatcher(name string) *Dispatcher {
	return &Dispatcher{name: name, methods: map[string]MethodFunc{}}
}

// Name returns the service name, as consumed by the Node to declare its
// queryable and liveliness key expressions.
func (d *Dispatcher) Name() string {
	return d.name
}

// Register adds a method to the dispatch table under name. Registration
// order is retained only for diagnostics; it has no effect on dispatch.
// Register is not safe to call concurrently with Call — all methods must
// be registered before the Dispatcher is handed to a Node.
func (d *Dispatcher) Register(name string, fn MethodFunc) {
	if _, exists := d.methods[name]; !exists {
		d.order = append(d.order, name)
	}
	d.methods[name] = fn
}

// Methods returns the registered method names in registration order.
func (d *Dispatcher) Methods() []string {
	return append([]string(nil), d.order...)
}

// Call dispatches params to the matching registered method and returns its
// encoded Result. A method not found in the table yields RPCNotImplemented;
// nothing here ever returns a transport-level error — failures are always
// carried inside Result.Err, per spec.md §4.3.
func (d *Dispatcher) Call(ctx context.Context, params Params) Result {
	fn, ok := d.methods[params.Method]
	if !ok {
		return Result{
			Method: params.Method,
			Err:    NewError(RPCNotImplemented, "method %q not implemented by %s", params.Method, d.name),
		}
	}

	value, err := fn(ctx, params.Args)
	if err != nil {
		return Result{Method: params.Method, Err: toWireError(err)}
	}
	return Result{Method: params.Method, Value: value}
}

func toWireError(err error) *Error {
	if rpcErr, ok := err.(*Error); ok {
		return rpcErr
	}
	return NewError(InternalError, "%s", fmt.Sprint(err))
}
