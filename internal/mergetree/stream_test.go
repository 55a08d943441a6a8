package mergetree

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/lyrixx/ClickHouse/internal/compression"
	"github.com/lyrixx/ClickHouse/internal/disk"
)

func TestMarks_EncodeDecodeRoundTrip(t *testing.T) {
	marks := []Mark{
		{FrameOffset: 0, InFrameOffset: 0, Rows: 8192},
		{FrameOffset: 0, InFrameOffset: 65536, Rows: 8192},
		{FrameOffset: 131072, InFrameOffset: 0, Rows: 100},
	}

	encoded := encodeMarks(marks)
	if len(encoded) != len(marks)*markSize {
		t.Fatalf("expected %d bytes, got %d", len(marks)*markSize, len(encoded))
	}

	decoded, err := decodeMarks(encoded)
	if err != nil {
		t.Fatalf("decodeMarks failed: %v", err)
	}
	for i, m := range marks {
		if decoded[i] != m {
			t.Errorf("mark %d: expected %+v, got %+v", i, m, decoded[i])
		}
	}

	if _, err := decodeMarks(encoded[:markSize+5]); err == nil {
		t.Error("expected error for misaligned marks data")
	}
}

func TestHashedStream_ChecksumMatchesContent(t *testing.T) {
	d := disk.NewMemory()
	if err := d.CreateDirectories("part"); err != nil {
		t.Fatalf("CreateDirectories failed: %v", err)
	}

	file, err := d.WriteFile("part/ts.bin", 0)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	s := newHashedStream("ts.bin", file)

	// Chunked writes hash the same as one contiguous write
	payload := []byte("the quick brown fox jumps over the lazy dog")
	for _, chunk := range [][]byte{payload[:10], payload[10:17], payload[17:]} {
		if _, err := s.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	fc, err := s.finalize(false)
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if fc.Size != uint64(len(payload)) {
		t.Errorf("expected size %d, got %d", len(payload), fc.Size)
	}
	sum := sha256.Sum256(payload)
	if fc.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("expected hash of full payload, got %s", fc.Hash)
	}

	stored, err := d.ReadFile("part/ts.bin")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(stored, payload) {
		t.Error("stored bytes differ from written payload")
	}
}

func newTestCompressedStream(t *testing.T, minFrame, maxFrame int) (*compressedStream, *disk.Memory) {
	t.Helper()
	d := disk.NewMemory()
	if err := d.CreateDirectories("part"); err != nil {
		t.Fatalf("CreateDirectories failed: %v", err)
	}
	file, err := d.WriteFile("part/v.bin", 0)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	comp, err := compression.DefaultCodec().Compressor()
	if err != nil {
		t.Fatalf("Compressor failed: %v", err)
	}
	return newCompressedStream(newHashedStream("v.bin", file), comp, minFrame, maxFrame), d
}

func TestCompressedStream_SmallGranulesShareFrame(t *testing.T) {
	s, _ := newTestCompressedStream(t, 1<<20, 1<<21)

	g1 := bytes.Repeat([]byte{1}, 100)
	g2 := bytes.Repeat([]byte{2}, 200)
	if err := s.addGranule(g1, 10); err != nil {
		t.Fatalf("addGranule failed: %v", err)
	}
	if err := s.addGranule(g2, 20); err != nil {
		t.Fatalf("addGranule failed: %v", err)
	}
	if err := s.finish(); err != nil {
		t.Fatalf("finish failed: %v", err)
	}

	marks := s.marks()
	if len(marks) != 2 {
		t.Fatalf("expected 2 marks, got %d", len(marks))
	}
	// Both granules sit in the frame at offset 0
	if marks[0] != (Mark{FrameOffset: 0, InFrameOffset: 0, Rows: 10}) {
		t.Errorf("bad first mark: %+v", marks[0])
	}
	if marks[1] != (Mark{FrameOffset: 0, InFrameOffset: 100, Rows: 20}) {
		t.Errorf("bad second mark: %+v", marks[1])
	}
}

func TestCompressedStream_CutsAtMinFrameBytes(t *testing.T) {
	s, _ := newTestCompressedStream(t, 150, 1<<20)

	if err := s.addGranule(bytes.Repeat([]byte{1}, 100), 10); err != nil {
		t.Fatalf("addGranule failed: %v", err)
	}
	// Second granule pushes the buffer past minFrameBytes: frame cut after it
	if err := s.addGranule(bytes.Repeat([]byte{2}, 100), 10); err != nil {
		t.Fatalf("addGranule failed: %v", err)
	}
	if err := s.addGranule(bytes.Repeat([]byte{3}, 50), 5); err != nil {
		t.Fatalf("addGranule failed: %v", err)
	}
	if err := s.finish(); err != nil {
		t.Fatalf("finish failed: %v", err)
	}

	marks := s.marks()
	if len(marks) != 3 {
		t.Fatalf("expected 3 marks, got %d", len(marks))
	}
	if marks[0].FrameOffset != 0 || marks[1].FrameOffset != 0 {
		t.Errorf("expected first two granules in frame 0: %+v", marks[:2])
	}
	if marks[2].FrameOffset == 0 {
		t.Error("expected third granule to start a new frame")
	}
	if marks[2].InFrameOffset != 0 {
		t.Errorf("expected third granule at frame start, got offset %d", marks[2].InFrameOffset)
	}
}

func TestCompressedStream_GranuleNeverSpansFrames(t *testing.T) {
	s, _ := newTestCompressedStream(t, 1<<20, 300)

	if err := s.addGranule(bytes.Repeat([]byte{1}, 200), 10); err != nil {
		t.Fatalf("addGranule failed: %v", err)
	}
	// 200 + 150 > maxFrameBytes: the buffer is cut before this granule
	if err := s.addGranule(bytes.Repeat([]byte{2}, 150), 10); err != nil {
		t.Fatalf("addGranule failed: %v", err)
	}
	if err := s.finish(); err != nil {
		t.Fatalf("finish failed: %v", err)
	}

	marks := s.marks()
	if len(marks) != 2 {
		t.Fatalf("expected 2 marks, got %d", len(marks))
	}
	if marks[1].FrameOffset == 0 || marks[1].InFrameOffset != 0 {
		t.Errorf("expected second granule at the start of a new frame, got %+v", marks[1])
	}
}

func TestCompressedStream_FramesDecodeBack(t *testing.T) {
	s, d := newTestCompressedStream(t, 100, 1<<20)

	var want []byte
	for i := 0; i < 5; i++ {
		g := bytes.Repeat([]byte{byte(i + 1)}, 60)
		want = append(want, g...)
		if err := s.addGranule(g, 6); err != nil {
			t.Fatalf("addGranule failed: %v", err)
		}
	}
	if err := s.finish(); err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	if _, err := s.out.finalize(false); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	raw, err := d.ReadFile("part/v.bin")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var got []byte
	r := bytes.NewReader(raw)
	for r.Len() > 0 {
		frame, _, err := compression.ReadFrame(r)
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		got = append(got, frame...)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("decompressed frames differ from input: %d bytes vs %d", len(got), len(want))
	}
}
