// Package rpcjson registers a plain-JSON gRPC codec.
//
// The orchestrator's RemoteService has no protobuf-generated message
// types to compile against and this environment cannot run protoc to
// generate them, so this codec substitutes JSON for the wire payload.
// It still speaks real gRPC: a real grpc.Server, a real ServiceDesc,
// real HTTP/2 framing — just with JSON payloads instead of protobuf wire
// format.
package rpcjson

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Name is the codec name negotiated over the wire (the content-subtype of
// "application/grpc+json"). Clients must dial with grpc.CallContentSubtype(Name)
// or register it as the default codec.
const Name = "json"

type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpcjson: marshal: %w", err)
	}
	return b, nil
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpcjson: unmarshal: %w", err)
	}
	return nil
}

func (codec) Name() string { return Name }

func init() {
	encoding.RegisterCodec(codec{})
}
