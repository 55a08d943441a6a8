// Package disk abstracts the filesystem surface the part pipeline writes
// through, so the same engine code runs against a local directory or fully
// in memory for tests.
package disk

import "io"

// DefaultBufferSize is used by WriteFile when the caller passes bufSize <= 0.
const DefaultBufferSize = 64 * 1024

// Entry describes one name inside a directory listing.
type Entry struct {
	Name  string
	IsDir bool
}

// FileStream is a buffered handle for writing one file.
// The happy path is Write → Finalize → optional Sync → Close; aborting a
// write is just Close.
type FileStream interface {
	io.Writer

	// Finalize flushes buffered data to the backing store. The stream must
	// not be written to afterwards.
	Finalize() error

	// Sync forces finalized data onto stable storage.
	Sync() error

	// Close releases the handle. Safe to call more than once.
	Close() error
}

// Disk is the filesystem abstraction used by part writers, the loader and
// the startup scan. Paths are slash-separated and relative to the disk root.
// Implementations must be safe for concurrent use on distinct paths.
type Disk interface {
	// Root identifies the location backing this disk, for diagnostics.
	Root() string

	CreateDirectories(path string) error

	// WriteFile creates or truncates a file. The parent directory must exist.
	WriteFile(path string, bufSize int) (FileStream, error)

	Open(path string) (io.ReadCloser, error)
	ReadFile(path string) ([]byte, error)
	FileSize(path string) (int64, error)
	Exists(path string) bool

	// List returns the direct children of a directory, sorted by name.
	List(path string) ([]Entry, error)

	Rename(oldPath, newPath string) error
	RemoveAll(path string) error
	SyncDirectory(path string) error
}
