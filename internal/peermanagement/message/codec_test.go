package message

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendHeader appends the encoded header to dst.
func appendHeader(dst []byte, h Header) []byte {
	word := h.PayloadSize
	if h.Compressed {
		word |= uint32(CompressedFlag|uint8(h.Algorithm)<<4) << 24
	}
	dst = binary.BigEndian.AppendUint32(dst, word)
	dst = binary.BigEndian.AppendUint16(dst, uint16(h.MessageType))
	if h.Compressed {
		dst = binary.BigEndian.AppendUint32(dst, h.UncompressedSize)
	}
	return dst
}

func TestHeader_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		h    Header
	}{
		{"ping", Header{PayloadSize: 10, MessageType: TypePing}},
		{"validation", Header{PayloadSize: 500, MessageType: TypeValidation}},
		{"max_size", Header{PayloadSize: MaxPayloadSize, MessageType: TypeLedgerData}},
		{"empty", Header{MessageType: TypeEndpoints}},
		{"compressed", Header{PayloadSize: 50, MessageType: TypeTransaction, Compressed: true, Algorithm: AlgorithmLZ4, UncompressedSize: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := appendHeader(nil, tt.h)
			assert.Len(t, buf, tt.h.Size())

			got, err := DecodeHeader(buf)
			require.NoError(t, err)
			assert.Equal(t, tt.h, got)
		})
	}
}

// TestHeader_FirstByte tests the flag bits seen by the relay
func TestHeader_FirstByte(t *testing.T) {
	frame := appendHeader(nil, Header{PayloadSize: 3, MessageType: TypePing})
	assert.Zero(t, frame[0]&VersionMask)
	assert.Equal(t, []byte{0, 0, 0, 3, 0, 3}, frame)

	frame = appendHeader(nil, Header{PayloadSize: 2, MessageType: TypeManifests, Compressed: true, Algorithm: AlgorithmLZ4, UncompressedSize: 40})
	assert.Equal(t, byte(0x90), frame[0])
	assert.NotZero(t, frame[0]&CompressedFlag)
}

func TestDecodeHeader_Errors(t *testing.T) {
	_, err := DecodeHeader([]byte{0, 0, 0})
	assert.ErrorIs(t, err, ErrTruncatedHeader)

	_, err = DecodeHeader([]byte{0x90, 0, 0, 1, 0, 2, 0})
	assert.ErrorIs(t, err, ErrTruncatedHeader)

	h, err := DecodeHeader([]byte{0xA0, 0, 0, 1, 0, 2, 0, 0, 0, 4})
	assert.ErrorIs(t, err, ErrUnknownCompression)
	assert.True(t, h.Compressed)
	assert.Equal(t, TypeManifests, h.MessageType)

	// The size field is 26 bits wide; the flag bits never leak into it.
	h, err = DecodeHeader([]byte{0x43, 0xFF, 0xFF, 0xFF, 0, 3})
	require.NoError(t, err)
	assert.Equal(t, uint32(MaxPayloadSize), h.PayloadSize)
	assert.False(t, h.Compressed)
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "mtPING", TypePing.String())
	assert.Equal(t, "mtPROPOSE_LEDGER", TypeProposeLedger.String())
	assert.Equal(t, "mtUNKNOWN", MessageType(999).String())
}
