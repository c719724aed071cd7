package controlapi

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype this package's JSON codec
// answers to ("application/grpc+json" on the wire). Introspection is an
// operator-facing, low-volume surface, so the name/value overhead of
// JSON over protobuf's binary wire format is a deliberate trade for not
// requiring a protoc toolchain to build this module.
const codecName = "json"

// jsonCodec implements grpc/encoding.Codec using encoding/json instead
// of protobuf, so controlapi's request/response types can be plain Go
// structs rather than generated message types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
