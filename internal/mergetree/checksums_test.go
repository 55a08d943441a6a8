package mergetree

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/lyrixx/ClickHouse/internal/disk"
)

func writePartFile(t *testing.T, d disk.Disk, p string, data []byte) FileChecksum {
	t.Helper()
	s, err := d.WriteFile(p, 0)
	if err != nil {
		t.Fatalf("WriteFile %s failed: %v", p, err)
	}
	if _, err := s.Write(data); err != nil {
		t.Fatalf("Write %s failed: %v", p, err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize %s failed: %v", p, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close %s failed: %v", p, err)
	}
	sum := sha256.Sum256(data)
	return FileChecksum{Size: uint64(len(data)), Hash: hex.EncodeToString(sum[:])}
}

func TestChecksums_RenderParseRoundTrip(t *testing.T) {
	c := NewChecksums()
	c.Add("ts.bin", FileChecksum{Size: 1234, Hash: strings.Repeat("ab", 32)})
	c.Add("count.txt", FileChecksum{Size: 2, Hash: strings.Repeat("cd", 32)})
	c.Add("ts.mrk2", FileChecksum{Size: 48, Hash: strings.Repeat("ef", 32)})

	rendered := c.Render()
	parsed, err := ParseChecksums(rendered)
	if err != nil {
		t.Fatalf("ParseChecksums failed: %v", err)
	}
	if parsed.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", parsed.Len())
	}
	for _, name := range c.Files() {
		want, _ := c.Entry(name)
		got, ok := parsed.Entry(name)
		if !ok || got != want {
			t.Errorf("entry %s: expected %v, got %v (%v)", name, want, got, ok)
		}
	}

	// Entries render sorted by filename
	lines := strings.Split(strings.TrimRight(string(rendered), "\n"), "\n")
	if lines[0] != "checksums format version: 1" || lines[1] != "3 files:" {
		t.Errorf("bad manifest header: %q, %q", lines[0], lines[1])
	}
	if !strings.HasPrefix(lines[2], "count.txt ") || !strings.HasPrefix(lines[4], "ts.mrk2 ") {
		t.Errorf("expected sorted entries, got %v", lines[2:])
	}
}

func TestChecksums_ParseRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"checksums format version: 2\n0 files:\n",
		"checksums format version: 1\nnope\n",
		"checksums format version: 1\n2 files:\na.bin 10 " + strings.Repeat("ab", 32) + "\n",
		"checksums format version: 1\n1 files:\na.bin ten " + strings.Repeat("ab", 32) + "\n",
		"checksums format version: 1\n1 files:\na.bin 10 nothex\n",
	}
	for _, data := range cases {
		if _, err := ParseChecksums([]byte(data)); err == nil {
			t.Errorf("expected parse error for %q", data)
		}
	}
}

func TestChecksums_TotalSize(t *testing.T) {
	c := NewChecksums()
	c.Add("a.bin", FileChecksum{Size: 100, Hash: strings.Repeat("00", 32)})
	c.Add("b.bin", FileChecksum{Size: 50, Hash: strings.Repeat("00", 32)})
	if c.TotalSize() != 150 {
		t.Errorf("expected total 150, got %d", c.TotalSize())
	}
	c.Remove("b.bin")
	if c.TotalSize() != 100 {
		t.Errorf("expected total 100 after remove, got %d", c.TotalSize())
	}
}

func TestChecksums_Verify(t *testing.T) {
	d := disk.NewMemory()
	dir := "table/202506_1_1_0"
	if err := d.CreateDirectories(dir); err != nil {
		t.Fatalf("CreateDirectories failed: %v", err)
	}

	c := NewChecksums()
	c.Add("ts.bin", writePartFile(t, d, dir+"/ts.bin", []byte("granule payload")))
	c.Add("count.txt", writePartFile(t, d, dir+"/count.txt", []byte("8")))
	writePartFile(t, d, dir+"/"+ChecksumsFileName, c.Render())

	if err := c.Verify(d, dir); err != nil {
		t.Fatalf("expected clean verify, got %v", err)
	}
	if err := c.VerifySizes(d, dir); err != nil {
		t.Fatalf("expected clean size check, got %v", err)
	}
}

func TestChecksums_VerifyDetectsCorruption(t *testing.T) {
	d := disk.NewMemory()
	dir := "table/202506_1_1_0"
	if err := d.CreateDirectories(dir); err != nil {
		t.Fatalf("CreateDirectories failed: %v", err)
	}

	c := NewChecksums()
	c.Add("ts.bin", writePartFile(t, d, dir+"/ts.bin", []byte("granule payload")))

	// Same size, different content: only the deep check notices
	writePartFile(t, d, dir+"/ts.bin", []byte("granule paXload"))
	if err := c.VerifySizes(d, dir); err != nil {
		t.Fatalf("expected size check to pass on same-size corruption, got %v", err)
	}
	err := c.Verify(d, dir)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestChecksums_VerifyDetectsMissingAndUnlisted(t *testing.T) {
	d := disk.NewMemory()
	dir := "table/all_1_1_0"
	if err := d.CreateDirectories(dir); err != nil {
		t.Fatalf("CreateDirectories failed: %v", err)
	}

	c := NewChecksums()
	c.Add("ts.bin", writePartFile(t, d, dir+"/ts.bin", []byte("data")))
	c.Add("gone.bin", FileChecksum{Size: 4, Hash: strings.Repeat("00", 32)})

	if err := c.Verify(d, dir); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch for missing file, got %v", err)
	}

	c.Remove("gone.bin")
	writePartFile(t, d, dir+"/stray.bin", []byte("oops"))
	if err := c.Verify(d, dir); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch for unlisted file, got %v", err)
	}
	if err := c.VerifySizes(d, dir); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected size check to flag unlisted file, got %v", err)
	}
}
