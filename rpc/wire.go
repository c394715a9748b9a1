package rpc

import (
	"bytes"

	"github.com/hashicorp/go-msgpack/codec"
)

// msgpackHandle is shared across encode/decode calls the same way
// distributed-queue's sibling RPC clients in the corpus hold a single
// codec.MsgpackHandle for the lifetime of a connection.
var msgpackHandle = &codec.MsgpackHandle{RawToString: true, WriteExt: true}

// Encode serializes v with the runtime's stable binary codec.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into v using the runtime's stable binary codec.
func Decode(data []byte, v any) error {
	dec := codec.NewDecoder(bytes.NewReader(data), msgpackHandle)
	return dec.Decode(v)
}

// ClusterRequest is the envelope a caller hands to the Node's RPC/Push:
// who's asking, against what schema version, for which logical query, with
// what payload. The Node sends only Payload over the transport.
type ClusterRequest struct {
	Zid     string `codec:"zid"`
	Version string `codec:"version"`
	Query   string `codec:"query"`
	Payload []byte `codec:"payload"`
}

// ClusterResponse is the envelope the Node's RPC returns for a successful
// reply. The Node builds it locally around the reply's payload bytes.
type ClusterResponse struct {
	Zid     string `codec:"zid"`
	Status  uint16 `codec:"status"`
	Payload []byte `codec:"payload,omitempty"`
}

// Params is the generic carrier for one dispatched method call: the method
// name plus its codec-encoded argument tuple. It stands in for the
// macro-generated T_Params sum type described in spec.md §4.3 — see
// SPEC_FULL.md §6.3 for why a method-name-keyed table is the idiomatic Go
// equivalent.
type Params struct {
	Method string `codec:"method"`
	Args   []byte `codec:"args"`
}

// Result is the generic carrier for one dispatched method's return value,
// standing in for the macro-generated T_Result sum type.
type Result struct {
	Method string `codec:"method"`
	Value  []byte `codec:"value,omitempty"`
	Err    *Error `codec:"err,omitempty"`
}
