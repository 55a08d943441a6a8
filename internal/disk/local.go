package disk

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local is a Disk backed by a directory on the local filesystem.
type Local struct {
	root string
}

// NewLocal creates a disk rooted at dir, creating the directory if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create disk root %s: %w", dir, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve disk root %s: %w", dir, err)
	}

	return &Local{root: abs}, nil
}

// Root returns the absolute root directory.
func (d *Local) Root() string {
	return d.root
}

func (d *Local) resolve(path string) string {
	return filepath.Join(d.root, filepath.FromSlash(path))
}

// CreateDirectories creates path and any missing parents.
func (d *Local) CreateDirectories(path string) error {
	if err := os.MkdirAll(d.resolve(path), 0o755); err != nil {
		return fmt.Errorf("create directories %s: %w", path, err)
	}
	return nil
}

// WriteFile opens path for writing, truncating any existing content.
func (d *Local) WriteFile(path string, bufSize int) (FileStream, error) {
	file, err := os.OpenFile(d.resolve(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s for writing: %w", path, err)
	}

	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	return &localStream{
		path: path,
		file: file,
		buf:  bufio.NewWriterSize(file, bufSize),
	}, nil
}

// Open opens path for streaming reads.
func (d *Local) Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(d.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return file, nil
}

// ReadFile returns the full content of path.
func (d *Local) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(d.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// FileSize returns the size of the file at path.
func (d *Local) FileSize(path string) (int64, error) {
	info, err := os.Stat(d.resolve(path))
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("stat %s: is a directory", path)
	}
	return info.Size(), nil
}

// Exists reports whether a file or directory exists at path.
func (d *Local) Exists(path string) bool {
	_, err := os.Stat(d.resolve(path))
	return err == nil
}

// List returns the direct children of path, sorted by name.
func (d *Local) List(path string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(d.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, e := range dirEntries {
		entries = append(entries, Entry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return entries, nil
}

// Rename atomically moves oldPath to newPath.
func (d *Local) Rename(oldPath, newPath string) error {
	if err := os.Rename(d.resolve(oldPath), d.resolve(newPath)); err != nil {
		return fmt.Errorf("rename %s to %s: %w", oldPath, newPath, err)
	}
	return nil
}

// RemoveAll removes path and, for directories, everything below it.
func (d *Local) RemoveAll(path string) error {
	if err := os.RemoveAll(d.resolve(path)); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// SyncDirectory fsyncs the directory entry itself, making renames inside it
// durable.
func (d *Local) SyncDirectory(path string) error {
	dir, err := os.Open(d.resolve(path))
	if err != nil {
		return fmt.Errorf("open directory %s: %w", path, err)
	}
	defer dir.Close()

	if err := dir.Sync(); err != nil {
		return fmt.Errorf("sync directory %s: %w", path, err)
	}
	return nil
}

type localStream struct {
	path   string
	file   *os.File
	buf    *bufio.Writer
	closed bool
}

func (s *localStream) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *localStream) Finalize() error {
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	return nil
}

func (s *localStream) Sync() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	return nil
}

func (s *localStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return nil
}
