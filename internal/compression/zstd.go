package compression

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor implements Compressor using Zstandard
type ZstdCompressor struct {
	level   int
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCompressor creates a Zstandard compressor. level uses the zstd
// scale (1..22); 0 selects the library default.
func NewZstdCompressor(level int) (*ZstdCompressor, error) {
	opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
	if level != 0 {
		if level < 1 || level > 22 {
			return nil, fmt.Errorf("zstd level out of range: %d", level)
		}
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}

	encoder, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder init failed: %w", err)
	}

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder init failed: %w", err)
	}

	return &ZstdCompressor{level: level, encoder: encoder, decoder: decoder}, nil
}

// Compress compresses data using Zstandard
func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress decompresses Zstandard data
func (c *ZstdCompressor) Decompress(data []byte, uncompressedSize int) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	capacity := uncompressedSize
	if capacity < 0 {
		capacity = len(data) * 3
	}

	decompressed, err := c.decoder.DecodeAll(data, make([]byte, 0, capacity))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress failed: %w", err)
	}

	if uncompressedSize >= 0 && len(decompressed) != uncompressedSize {
		return nil, fmt.Errorf("zstd uncompressed size mismatch: have %d, want %d", len(decompressed), uncompressedSize)
	}

	return decompressed, nil
}

// Algorithm returns Zstd
func (c *ZstdCompressor) Algorithm() Algorithm {
	return Zstd
}
