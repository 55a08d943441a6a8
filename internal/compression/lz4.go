package compression

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4Compressor implements Compressor using the LZ4 block format.
// This is the engine's default part codec.
type LZ4Compressor struct{}

// NewLZ4Compressor creates a new LZ4 compressor
func NewLZ4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

// Compress compresses data using LZ4 block compression.
// Incompressible input is returned as-is; callers that persist the result
// compare output and input lengths to decide whether compression applied.
func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress failed: %w", err)
	}
	if n == 0 {
		// Incompressible
		return data, nil
	}

	return dst[:n], nil
}

// Decompress decompresses an LZ4 block. The block format does not record
// the output length, so uncompressedSize is required.
func (c *LZ4Compressor) Decompress(data []byte, uncompressedSize int) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	if uncompressedSize < 0 {
		return nil, fmt.Errorf("lz4 decompress requires the uncompressed size")
	}

	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress failed: %w", err)
	}
	if n != uncompressedSize {
		return nil, fmt.Errorf("lz4 uncompressed size mismatch: have %d, want %d", n, uncompressedSize)
	}

	return dst, nil
}

// Algorithm returns LZ4
func (c *LZ4Compressor) Algorithm() Algorithm {
	return LZ4
}
