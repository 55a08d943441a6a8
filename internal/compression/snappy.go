package compression

import (
	"fmt"

	"github.com/golang/snappy"
)

// SnappyCompressor implements Compressor with the Snappy block format.
// Faster than LZ4 on some payloads but with a weaker ratio; offered as
// an alternative part codec.
type SnappyCompressor struct{}

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

// Compress encodes data as one Snappy block.
func (s *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	return snappy.Encode(nil, data), nil
}

// Decompress decodes a Snappy block. The format records its own decoded
// length, so uncompressedSize only cross-checks the result; pass a
// negative size to skip the check.
func (s *SnappyCompressor) Decompress(data []byte, uncompressedSize int) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var dst []byte
	if uncompressedSize > 0 {
		dst = make([]byte, uncompressedSize)
	}
	out, err := snappy.Decode(dst, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress failed: %w", err)
	}
	if uncompressedSize >= 0 && len(out) != uncompressedSize {
		return nil, fmt.Errorf("snappy uncompressed size mismatch: have %d, want %d", len(out), uncompressedSize)
	}

	return out, nil
}

func (s *SnappyCompressor) Algorithm() Algorithm {
	return Snappy
}
