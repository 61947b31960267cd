package arbiter

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Messages of the controller's packet.PacketService. Field numbers follow
// the controller's packet.proto.

// Packet carries one intercepted message.
type Packet struct {
	Data     []byte // 1
	FromPort uint32 // 2
	ToPort   uint32 // 3
}

// PacketAck is the controller's decision for a Packet.
type PacketAck struct {
	Data   []byte // 1
	Action uint32 // 2
}

// ValidatorNodeInfo describes one validator node to the controller.
type ValidatorNodeInfo struct {
	PeerPort             uint32 // 1
	WSPublicPort         uint32 // 2
	WSAdminPort          uint32 // 3
	RPCPort              uint32 // 4
	Status               string // 5
	ValidationKey        string // 6
	ValidationPrivateKey string // 7
	ValidationPublicKey  string // 8
	ValidationSeed       string // 9
}

// ValidatorNodeInfoAck acknowledges a node info stream.
type ValidatorNodeInfoAck struct {
	Status string // 1
}

// GetConfigRequest is the empty GetConfig request.
type GetConfigRequest struct{}

// Partition is a group of node indices that can talk to each other.
type Partition struct {
	Nodes []uint32 // 1, packed
}

// NetworkConfig is the controller's network description.
type NetworkConfig struct {
	BasePortPeer    uint32       // 1
	BasePortWS      uint32       // 2
	BasePortWSAdmin uint32       // 3
	BasePortRPC     uint32       // 4
	NumberOfNodes   uint32       // 5
	Partitions      []*Partition // 6
}

// wireMessage is implemented by every controller message.
type wireMessage interface {
	marshalWire(b []byte) []byte
	unmarshalWire(b []byte) error
}

func (m *Packet) marshalWire(b []byte) []byte {
	b = appendBytes(b, 1, m.Data)
	b = appendUint32(b, 2, m.FromPort)
	return appendUint32(b, 3, m.ToPort)
}

func (m *Packet) unmarshalWire(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Data)
		case 2:
			return consumeUint32(typ, b, &m.FromPort)
		case 3:
			return consumeUint32(typ, b, &m.ToPort)
		}
		return 0, false
	})
}

func (m *PacketAck) marshalWire(b []byte) []byte {
	b = appendBytes(b, 1, m.Data)
	return appendUint32(b, 2, m.Action)
}

func (m *PacketAck) unmarshalWire(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.Data)
		case 2:
			return consumeUint32(typ, b, &m.Action)
		}
		return 0, false
	})
}

func (m *ValidatorNodeInfo) marshalWire(b []byte) []byte {
	b = appendUint32(b, 1, m.PeerPort)
	b = appendUint32(b, 2, m.WSPublicPort)
	b = appendUint32(b, 3, m.WSAdminPort)
	b = appendUint32(b, 4, m.RPCPort)
	b = appendString(b, 5, m.Status)
	b = appendString(b, 6, m.ValidationKey)
	b = appendString(b, 7, m.ValidationPrivateKey)
	b = appendString(b, 8, m.ValidationPublicKey)
	return appendString(b, 9, m.ValidationSeed)
}

func (m *ValidatorNodeInfo) unmarshalWire(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		switch num {
		case 1:
			return consumeUint32(typ, b, &m.PeerPort)
		case 2:
			return consumeUint32(typ, b, &m.WSPublicPort)
		case 3:
			return consumeUint32(typ, b, &m.WSAdminPort)
		case 4:
			return consumeUint32(typ, b, &m.RPCPort)
		case 5:
			return consumeString(typ, b, &m.Status)
		case 6:
			return consumeString(typ, b, &m.ValidationKey)
		case 7:
			return consumeString(typ, b, &m.ValidationPrivateKey)
		case 8:
			return consumeString(typ, b, &m.ValidationPublicKey)
		case 9:
			return consumeString(typ, b, &m.ValidationSeed)
		}
		return 0, false
	})
}

func (m *ValidatorNodeInfoAck) marshalWire(b []byte) []byte {
	return appendString(b, 1, m.Status)
}

func (m *ValidatorNodeInfoAck) unmarshalWire(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if num == 1 {
			return consumeString(typ, b, &m.Status)
		}
		return 0, false
	})
}

func (m *GetConfigRequest) marshalWire(b []byte) []byte { return b }

func (m *GetConfigRequest) unmarshalWire(b []byte) error {
	return consumeFields(b, func(protowire.Number, protowire.Type, []byte) (int, bool) { return 0, false })
}

func (m *Partition) marshalWire(b []byte) []byte {
	if len(m.Nodes) == 0 {
		return b
	}
	var packed []byte
	for _, n := range m.Nodes {
		packed = protowire.AppendVarint(packed, uint64(n))
	}
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func (m *Partition) unmarshalWire(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if num != 1 {
			return 0, false
		}
		switch typ {
		case protowire.VarintType:
			var v uint32
			n, ok := consumeUint32(typ, b, &v)
			if n >= 0 {
				m.Nodes = append(m.Nodes, v)
			}
			return n, ok
		case protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, true
			}
			for len(packed) > 0 {
				v, vn := protowire.ConsumeVarint(packed)
				if vn < 0 {
					return vn, true
				}
				m.Nodes = append(m.Nodes, uint32(v))
				packed = packed[vn:]
			}
			return n, true
		}
		return 0, false
	})
}

func (m *NetworkConfig) marshalWire(b []byte) []byte {
	b = appendUint32(b, 1, m.BasePortPeer)
	b = appendUint32(b, 2, m.BasePortWS)
	b = appendUint32(b, 3, m.BasePortWSAdmin)
	b = appendUint32(b, 4, m.BasePortRPC)
	b = appendUint32(b, 5, m.NumberOfNodes)
	for _, p := range m.Partitions {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, p.marshalWire(nil))
	}
	return b
}

func (m *NetworkConfig) unmarshalWire(b []byte) error {
	var nested error
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		switch num {
		case 1:
			return consumeUint32(typ, b, &m.BasePortPeer)
		case 2:
			return consumeUint32(typ, b, &m.BasePortWS)
		case 3:
			return consumeUint32(typ, b, &m.BasePortWSAdmin)
		case 4:
			return consumeUint32(typ, b, &m.BasePortRPC)
		case 5:
			return consumeUint32(typ, b, &m.NumberOfNodes)
		case 6:
			if typ != protowire.BytesType {
				return 0, false
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, true
			}
			p := &Partition{}
			if err := p.unmarshalWire(v); err != nil && nested == nil {
				nested = err
			}
			m.Partitions = append(m.Partitions, p)
			return n, true
		}
		return 0, false
	})
	if err != nil {
		return err
	}
	return nested
}

// fieldFunc consumes the value of one field. It returns the number of bytes
// consumed (negative on a parse error) and whether the field was handled.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, bool)

func consumeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, handled := fn(num, typ, b)
		if !handled {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) (int, bool) {
	if typ != protowire.BytesType {
		return 0, false
	}
	v, n := protowire.ConsumeBytes(b)
	if n >= 0 {
		*dst = append([]byte(nil), v...)
	}
	return n, true
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, bool) {
	if typ != protowire.BytesType {
		return 0, false
	}
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = v
	}
	return n, true
}

func consumeUint32(typ protowire.Type, b []byte, dst *uint32) (int, bool) {
	if typ != protowire.VarintType {
		return 0, false
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = uint32(v)
	}
	return n, true
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendUint32(b []byte, num protowire.Number, v uint32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}
