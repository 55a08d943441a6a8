package compression

import (
	"bytes"
	"testing"
)

func TestSnappyCompressor_LargeRoundTrip(t *testing.T) {
	c := NewSnappyCompressor()

	original := make([]byte, 1<<20)
	for i := range original {
		original[i] = byte(i % 251)
	}

	compressed, err := c.Compress(original)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(compressed) >= len(original) {
		t.Errorf("expected cyclic input to shrink, got %d -> %d bytes", len(original), len(compressed))
	}

	decompressed, err := c.Decompress(compressed, len(original))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(original, decompressed) {
		t.Error("expected round trip to restore the input")
	}
}

func TestSnappyCompressor_RejectsGarbage(t *testing.T) {
	if _, err := NewSnappyCompressor().Decompress([]byte{0xFF, 0xFF, 0xFF, 0xFF}, 16); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestSnappyCompressor_SizeMismatch(t *testing.T) {
	c := NewSnappyCompressor()

	compressed, err := c.Compress(bytes.Repeat([]byte("A"), 1000))
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	// A wrong expected size must be rejected, not silently returned.
	if _, err := c.Decompress(compressed, 1001); err == nil {
		t.Error("expected error for a wrong uncompressed size")
	}
}
