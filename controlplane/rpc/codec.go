// Package rpc carries the host↔guest control plane (spec §4.9) over
// google.golang.org/grpc without a protoc step: messages are plain Go
// structs marshaled by jsonCodec, and each service is a hand-authored
// grpc.ServiceDesc rather than protoc-gen-go-grpc output.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName intentionally collides with grpc-go's built-in protobuf codec
// name ("proto"), which is what every call uses when no content-subtype is
// set. Registering under that name replaces it module-wide, so client and
// server Invoke/NewStream calls need no per-call codec option.
const codecName = "proto"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
