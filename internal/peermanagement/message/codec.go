package message

import (
	"encoding/binary"
	"errors"
)

// Frame header layout. The first four bytes carry six flag bits and a 26 bit
// payload size, followed by a two byte message type. Compressed frames add
// the four byte uncompressed size.
const (
	HeaderSizeUncompressed = 6
	HeaderSizeCompressed   = 10

	// MaxPayloadSize is the largest payload size the header can carry.
	MaxPayloadSize = (1 << 26) - 1

	// CompressedFlag is set in the first byte of a compressed frame.
	CompressedFlag = 0x80

	// VersionMask covers the flag bits of the first byte. Every bit in it is
	// zero for an uncompressed frame of the current protocol.
	VersionMask = 0xFC
)

var (
	ErrTruncatedHeader    = errors.New("truncated frame header")
	ErrUnknownCompression = errors.New("unknown compression algorithm")
)

// CompressionAlgorithm is the algorithm field of a compressed header.
type CompressionAlgorithm uint8

const (
	AlgorithmNone CompressionAlgorithm = 0
	AlgorithmLZ4  CompressionAlgorithm = 1
)

// Header is a decoded frame header.
type Header struct {
	PayloadSize      uint32
	MessageType      MessageType
	Compressed       bool
	Algorithm        CompressionAlgorithm
	UncompressedSize uint32
}

// Size returns the encoded size of the header.
func (h Header) Size() int {
	if h.Compressed {
		return HeaderSizeCompressed
	}
	return HeaderSizeUncompressed
}

// DecodeHeader decodes the frame header at the start of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSizeUncompressed {
		return Header{}, ErrTruncatedHeader
	}

	var h Header
	h.PayloadSize = binary.BigEndian.Uint32(buf[0:4]) & MaxPayloadSize
	h.MessageType = MessageType(binary.BigEndian.Uint16(buf[4:6]))

	if buf[0]&CompressedFlag != 0 {
		h.Compressed = true
		h.Algorithm = CompressionAlgorithm((buf[0] >> 4) & 0x07)
		if h.Algorithm != AlgorithmLZ4 {
			return h, ErrUnknownCompression
		}
		if len(buf) < HeaderSizeCompressed {
			return h, ErrTruncatedHeader
		}
		h.UncompressedSize = binary.BigEndian.Uint32(buf[6:10])
	}
	return h, nil
}
