// Package token parses the Base58Check node public keys validators present
// in the peer handshake (the "n..." form).
package token

import (
	"bytes"
	"crypto/sha256"
	"errors"

	addresscodec "github.com/Peersyst/xrpl-go/address-codec"
	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	// NodePublicKeyPrefix is the type prefix of node public keys ('n').
	NodePublicKeyPrefix = 0x1C

	// CompressedPubKeyLen is the length of a compressed secp256k1 public key.
	CompressedPubKeyLen = 33

	// ChecksumLen is the length of the Base58Check checksum.
	ChecksumLen = 4
)

var (
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidChecksum  = errors.New("invalid checksum")
	ErrInvalidPrefix    = errors.New("invalid key prefix")
)

// PublicKey is a decoded node public key.
type PublicKey struct {
	key *btcec.PublicKey
}

// NewPublicKey creates a PublicKey from raw compressed bytes.
func NewPublicKey(data []byte) (*PublicKey, error) {
	if len(data) != CompressedPubKeyLen {
		return nil, ErrInvalidPublicKey
	}
	key, err := btcec.ParsePubKey(data)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return &PublicKey{key: key}, nil
}

// ParsePublicKey decodes a Base58Check node public key.
func ParsePublicKey(encoded string) (*PublicKey, error) {
	data := addresscodec.DecodeBase58(encoded)
	if len(data) != 1+CompressedPubKeyLen+ChecksumLen {
		return nil, ErrInvalidPublicKey
	}

	payload, checksum := data[:len(data)-ChecksumLen], data[len(data)-ChecksumLen:]
	if !bytes.Equal(checksum, doubleSHA256(payload)[:ChecksumLen]) {
		return nil, ErrInvalidChecksum
	}
	if payload[0] != NodePublicKeyPrefix {
		return nil, ErrInvalidPrefix
	}
	return NewPublicKey(payload[1:])
}

// Bytes returns the raw compressed public key bytes.
func (p *PublicKey) Bytes() []byte {
	return p.key.SerializeCompressed()
}

// Equal returns true if both keys are the same point.
func (p *PublicKey) Equal(other *PublicKey) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.key.IsEqual(other.key)
}

// Short abbreviates an encoded key for log fields: "n9KjTK..BDho".
func Short(encoded string) string {
	if len(encoded) <= 12 {
		return encoded
	}
	return encoded[:6] + ".." + encoded[len(encoded)-4:]
}

func doubleSHA256(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}
