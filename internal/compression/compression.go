package compression

import (
	"fmt"
	"strconv"
	"strings"
)

// Algorithm identifies a block compression format. The numeric values
// are written into compressed frame headers, so they must not change.
type Algorithm uint8

const (
	None   Algorithm = 0
	Snappy Algorithm = 1
	LZ4    Algorithm = 2
	Zstd   Algorithm = 3
)

// String returns the algorithm name as used in codec expressions
func (a Algorithm) String() string {
	switch a {
	case None:
		return "NONE"
	case Snappy:
		return "SNAPPY"
	case LZ4:
		return "LZ4"
	case Zstd:
		return "ZSTD"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(a))
	}
}

// Compressor encodes and restores column data blocks.
type Compressor interface {
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data. uncompressedSize is the expected
	// output length recorded alongside the compressed bytes; block
	// formats without a self-describing length (LZ4) require it.
	Decompress(data []byte, uncompressedSize int) ([]byte, error)

	Algorithm() Algorithm
}

// GetCompressor maps an algorithm to its implementation. Zstd comes
// back at its default level; use Codec.Compressor for a leveled one.
func GetCompressor(algo Algorithm) (Compressor, error) {
	switch algo {
	case None:
		return &NoneCompressor{}, nil
	case Snappy:
		return NewSnappyCompressor(), nil
	case LZ4:
		return NewLZ4Compressor(), nil
	case Zstd:
		return NewZstdCompressor(0)
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %d", algo)
	}
}

// NoneCompressor stores blocks as-is. Incompressible columns skip the
// codec overhead this way while keeping the frame format uniform.
type NoneCompressor struct{}

func (n *NoneCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (n *NoneCompressor) Decompress(data []byte, uncompressedSize int) ([]byte, error) {
	if uncompressedSize >= 0 && len(data) != uncompressedSize {
		return nil, fmt.Errorf("uncompressed size mismatch: have %d, want %d", len(data), uncompressedSize)
	}
	return data, nil
}

func (n *NoneCompressor) Algorithm() Algorithm {
	return None
}

// Codec is a parsed codec expression: the algorithm plus its optional level.
// Its textual form ("CODEC(LZ4)", "CODEC(ZSTD(3))") is part of the on-disk
// part contract.
type Codec struct {
	Algorithm Algorithm
	Level     int
}

// DefaultCodec returns the engine-wide default codec
func DefaultCodec() Codec {
	return Codec{Algorithm: LZ4}
}

// String renders the codec expression
func (c Codec) String() string {
	if c.Level != 0 {
		return fmt.Sprintf("CODEC(%s(%d))", c.Algorithm, c.Level)
	}
	return fmt.Sprintf("CODEC(%s)", c.Algorithm)
}

// Compressor builds the compressor the codec describes
func (c Codec) Compressor() (Compressor, error) {
	if c.Algorithm == Zstd {
		return NewZstdCompressor(c.Level)
	}
	return GetCompressor(c.Algorithm)
}

// ParseCodec parses a codec expression like "CODEC(LZ4)" or "CODEC(ZSTD(3))".
// Bare algorithm names ("lz4") are accepted for convenience in config files.
func ParseCodec(expr string) (Codec, error) {
	s := strings.TrimSpace(expr)
	if inner, ok := cutWrapper(s, "CODEC"); ok {
		s = inner
	}

	name := s
	level := 0
	if i := strings.IndexByte(s, '('); i >= 0 {
		if !strings.HasSuffix(s, ")") {
			return Codec{}, fmt.Errorf("malformed codec expression: %s", expr)
		}
		name = s[:i]
		lvl, err := strconv.Atoi(strings.TrimSpace(s[i+1 : len(s)-1]))
		if err != nil {
			return Codec{}, fmt.Errorf("malformed codec level in %s: %w", expr, err)
		}
		level = lvl
	}

	var algo Algorithm
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "NONE":
		algo = None
	case "SNAPPY":
		algo = Snappy
	case "LZ4":
		algo = LZ4
	case "ZSTD":
		algo = Zstd
	default:
		return Codec{}, fmt.Errorf("unknown codec %q", name)
	}

	if level != 0 && algo != Zstd {
		return Codec{}, fmt.Errorf("codec %s does not take a level", algo)
	}

	return Codec{Algorithm: algo, Level: level}, nil
}

// cutWrapper strips a "NAME( ... )" wrapper, case-insensitively
func cutWrapper(s, name string) (string, bool) {
	if len(s) < len(name)+2 {
		return "", false
	}
	if !strings.EqualFold(s[:len(name)], name) {
		return "", false
	}
	rest := strings.TrimSpace(s[len(name):])
	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return "", false
	}
	return strings.TrimSpace(rest[1 : len(rest)-1]), true
}
