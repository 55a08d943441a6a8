package mergetree

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/lyrixx/ClickHouse/internal/disk"
)

// ChecksumsFileName is the manifest written last during commit; its presence
// is the single source of truth for "this part is complete".
const ChecksumsFileName = "checksums.txt"

const checksumsHeader = "checksums format version: 1"

// FileChecksum is one manifest entry: the file's size and the hex sha256 of
// its content.
type FileChecksum struct {
	Size uint64
	Hash string
}

// Checksums maps part-relative filenames to their checksum entries. Every
// file physically present in a committed part has exactly one entry, except
// the manifest itself.
type Checksums struct {
	files map[string]FileChecksum
}

func NewChecksums() *Checksums {
	return &Checksums{files: make(map[string]FileChecksum)}
}

func (c *Checksums) Add(name string, fc FileChecksum) {
	c.files[name] = fc
}

func (c *Checksums) Remove(name string) {
	delete(c.files, name)
}

func (c *Checksums) Entry(name string) (FileChecksum, bool) {
	fc, ok := c.files[name]
	return fc, ok
}

func (c *Checksums) Len() int {
	return len(c.files)
}

// Files returns the listed filenames in sorted order.
func (c *Checksums) Files() []string {
	names := make([]string, 0, len(c.files))
	for name := range c.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalSize is the part's size on disk: the sum of all listed file sizes.
func (c *Checksums) TotalSize() uint64 {
	var total uint64
	for _, fc := range c.files {
		total += fc.Size
	}
	return total
}

// Render produces the checksums.txt content, entries sorted by filename.
func (c *Checksums) Render() []byte {
	var b strings.Builder
	b.WriteString(checksumsHeader)
	b.WriteByte('\n')
	b.WriteString(strconv.Itoa(len(c.files)))
	b.WriteString(" files:\n")
	for _, name := range c.Files() {
		fc := c.files[name]
		b.WriteString(name)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(fc.Size, 10))
		b.WriteByte(' ')
		b.WriteString(fc.Hash)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// ParseChecksums parses checksums.txt content.
func ParseChecksums(data []byte) (*Checksums, error) {
	lines := strings.Split(string(data), "\n")
	if len(lines) < 2 || lines[0] != checksumsHeader {
		return nil, fmt.Errorf("checksums: bad header")
	}

	countStr, ok := strings.CutSuffix(lines[1], " files:")
	if !ok {
		return nil, fmt.Errorf("checksums: bad file count line %q", lines[1])
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 0 {
		return nil, fmt.Errorf("checksums: bad file count %q", countStr)
	}

	c := NewChecksums()
	for i := 0; i < count; i++ {
		lineNo := 2 + i
		if lineNo >= len(lines) {
			return nil, fmt.Errorf("checksums: expected %d entries, got %d", count, i)
		}
		fields := strings.Fields(lines[lineNo])
		if len(fields) != 3 {
			return nil, fmt.Errorf("checksums: bad entry %q", lines[lineNo])
		}
		size, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("checksums: bad size in entry %q", lines[lineNo])
		}
		if _, err := hex.DecodeString(fields[2]); err != nil || len(fields[2]) != sha256.Size*2 {
			return nil, fmt.Errorf("checksums: bad hash in entry %q", lines[lineNo])
		}
		c.files[fields[0]] = FileChecksum{Size: size, Hash: fields[2]}
	}
	return c, nil
}

// VerifySizes is the cheap integrity check: every listed file exists with
// the recorded size, and no unlisted file sits in the directory.
func (c *Checksums) VerifySizes(d disk.Disk, dir string) error {
	for name, fc := range c.files {
		size, err := d.FileSize(path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrChecksumMismatch, name, err)
		}
		if uint64(size) != fc.Size {
			return fmt.Errorf("%w: %s is %d bytes, manifest says %d", ErrChecksumMismatch, name, size, fc.Size)
		}
	}
	return c.checkUnlisted(d, dir)
}

// Verify re-reads every listed file and re-hashes it. Any size or hash
// mismatch, missing file, or unlisted extra file is an integrity error.
func (c *Checksums) Verify(d disk.Disk, dir string) error {
	for name, fc := range c.files {
		size, hash, err := hashFile(d, path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrChecksumMismatch, name, err)
		}
		if size != fc.Size {
			return fmt.Errorf("%w: %s is %d bytes, manifest says %d", ErrChecksumMismatch, name, size, fc.Size)
		}
		if hash != fc.Hash {
			return fmt.Errorf("%w: %s content hash %s, manifest says %s", ErrChecksumMismatch, name, hash, fc.Hash)
		}
	}
	return c.checkUnlisted(d, dir)
}

func (c *Checksums) checkUnlisted(d disk.Disk, dir string) error {
	entries, err := d.List(dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir || e.Name == ChecksumsFileName {
			continue
		}
		if _, ok := c.files[e.Name]; !ok {
			return fmt.Errorf("%w: unlisted file %s", ErrChecksumMismatch, e.Name)
		}
	}
	return nil
}

func hashFile(d disk.Disk, p string) (uint64, string, error) {
	r, err := d.Open(p)
	if err != nil {
		return 0, "", err
	}
	defer r.Close()

	h := sha256.New()
	size, err := io.Copy(h, r)
	if err != nil {
		return 0, "", err
	}
	return uint64(size), hex.EncodeToString(h.Sum(nil)), nil
}
