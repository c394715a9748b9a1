package rpc

import "testing"

func TestRoundTripClusterRequest(t *testing.T) {
	req := ClusterRequest{Zid: "abc123", Version: "1", Query: "rpc/ping", Payload: []byte("Ping")}

	data, err := Encode(req)
	if err != nil {
		t.Fatal(err)
	}

	var out ClusterRequest
	if err := Decode(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != req {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, req)
	}
}

func TestRoundTripClusterResponse(t *testing.T) {
	resp := ClusterResponse{Zid: "abc123", Status: 200, Payload: []byte("Pong")}

	data, err := Encode(resp)
	if err != nil {
		t.Fatal(err)
	}

	var out ClusterResponse
	if err := Decode(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Zid != resp.Zid || out.Status != resp.Status || string(out.Payload) != string(resp.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, resp)
	}
}

func TestRoundTripError(t *testing.T) {
	e := NewError(ServiceNotFound, "no peer for %s", "ping")

	data, err := Encode(e)
	if err != nil {
		t.Fatal(err)
	}

	var out Error
	if err := Decode(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != *e {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, *e)
	}
}

func TestRoundTripParamsAndResult(t *testing.T) {
	args, err := Encode([]any{"hello"})
	if err != nil {
		t.Fatal(err)
	}
	params := Params{Method: "Echo", Args: args}

	data, err := Encode(params)
	if err != nil {
		t.Fatal(err)
	}
	var outParams Params
	if err := Decode(data, &outParams); err != nil {
		t.Fatal(err)
	}
	if outParams.Method != params.Method {
		t.Fatalf("round trip mismatch: got %+v, want %+v", outParams, params)
	}

	result := Result{Method: "Echo", Value: args}
	data, err = Encode(result)
	if err != nil {
		t.Fatal(err)
	}
	var outResult Result
	if err := Decode(data, &outResult); err != nil {
		t.Fatal(err)
	}
	if outResult.Method != result.Method {
		t.Fatalf("round trip mismatch: got %+v, want %+v", outResult, result)
	}
}
