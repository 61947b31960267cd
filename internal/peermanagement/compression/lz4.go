// Package compression decodes LZ4 compressed peer protocol payloads.
package compression

import (
	"errors"
	"fmt"

	"github.com/pierrec/lz4"
)

// MaxUncompressedSize bounds the buffer allocated for decompression.
const MaxUncompressedSize = 64 * 1024 * 1024

var ErrDecompressionFailed = errors.New("decompression failed")

// DecompressLZ4 decompresses a single LZ4 block that must expand to exactly
// uncompressedSize bytes.
func DecompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	if uncompressedSize <= 0 || uncompressedSize > MaxUncompressedSize {
		return nil, fmt.Errorf("%w: invalid size %d", ErrDecompressionFailed, uncompressedSize)
	}

	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(compressed, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err)
	}
	if n != uncompressedSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrDecompressionFailed, n, uncompressedSize)
	}
	return dst, nil
}
