package arbiter

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// wireCodec marshals controller messages in protobuf wire format. It keeps
// the "proto" name so requests carry application/grpc+proto.
type wireCodec struct{}

var _ encoding.Codec = wireCodec{}

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("arbiter: cannot marshal %T", v)
	}
	return m.marshalWire(nil), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("arbiter: cannot unmarshal into %T", v)
	}
	return m.unmarshalWire(data)
}

func (wireCodec) Name() string {
	return "proto"
}
