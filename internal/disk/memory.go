package disk

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Disk used by tests. The root directory always
// exists; files become visible when their stream is finalized, so an aborted
// write leaves nothing behind.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]bool
}

// NewMemory creates an empty in-memory disk.
func NewMemory() *Memory {
	return &Memory{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"": true},
	}
}

// Root identifies the disk in diagnostics.
func (d *Memory) Root() string {
	return "memory"
}

func normalize(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// CreateDirectories creates path and any missing parents.
func (d *Memory) CreateDirectories(p string) error {
	p = normalize(p)

	d.mu.Lock()
	defer d.mu.Unlock()

	for p != "" {
		if d.files[p] != nil {
			return fmt.Errorf("create directories %s: file exists", p)
		}
		d.dirs[p] = true
		p = parentDir(p)
	}
	return nil
}

func parentDir(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}

// WriteFile creates or truncates a file. The parent directory must exist.
func (d *Memory) WriteFile(p string, _ int) (FileStream, error) {
	p = normalize(p)

	d.mu.RLock()
	ok := d.dirs[parentDir(p)]
	d.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("open %s for writing: no such directory", p)
	}
	return &memoryStream{disk: d, path: p}, nil
}

// Open opens path for streaming reads.
func (d *Memory) Open(p string) (io.ReadCloser, error) {
	data, err := d.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ReadFile returns a copy of the file content at path.
func (d *Memory) ReadFile(p string) ([]byte, error) {
	p = normalize(p)

	d.mu.RLock()
	defer d.mu.RUnlock()

	data, ok := d.files[p]
	if !ok {
		return nil, fmt.Errorf("read %s: no such file", p)
	}
	return append([]byte(nil), data...), nil
}

// FileSize returns the size of the file at path.
func (d *Memory) FileSize(p string) (int64, error) {
	p = normalize(p)

	d.mu.RLock()
	defer d.mu.RUnlock()

	data, ok := d.files[p]
	if !ok {
		return 0, fmt.Errorf("stat %s: no such file", p)
	}
	return int64(len(data)), nil
}

// Exists reports whether a file or directory exists at path.
func (d *Memory) Exists(p string) bool {
	p = normalize(p)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.files[p]; ok {
		return true
	}
	return d.dirs[p]
}

// List returns the direct children of path, sorted by name.
func (d *Memory) List(p string) ([]Entry, error) {
	p = normalize(p)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.dirs[p] {
		return nil, fmt.Errorf("list %s: no such directory", p)
	}

	prefix := p
	if prefix != "" {
		prefix += "/"
	}

	seen := make(map[string]bool)
	var entries []Entry

	appendChild := func(full string, isDir bool) {
		rest := strings.TrimPrefix(full, prefix)
		if full == p || !strings.HasPrefix(full, prefix) || rest == "" {
			return
		}
		name, _, nested := strings.Cut(rest, "/")
		if seen[name] {
			return
		}
		seen[name] = true
		entries = append(entries, Entry{Name: name, IsDir: isDir || nested})
	}

	for f := range d.files {
		appendChild(f, false)
	}
	for dir := range d.dirs {
		appendChild(dir, true)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Rename moves a file or directory subtree from oldPath to newPath.
func (d *Memory) Rename(oldPath, newPath string) error {
	oldPath = normalize(oldPath)
	newPath = normalize(newPath)

	d.mu.Lock()
	defer d.mu.Unlock()

	if data, ok := d.files[oldPath]; ok {
		delete(d.files, oldPath)
		d.files[newPath] = data
		return nil
	}

	if !d.dirs[oldPath] {
		return fmt.Errorf("rename %s to %s: no such file or directory", oldPath, newPath)
	}

	rewrite := func(m map[string][]byte) {
		for k, v := range m {
			if k == oldPath || strings.HasPrefix(k, oldPath+"/") {
				delete(m, k)
				m[newPath+strings.TrimPrefix(k, oldPath)] = v
			}
		}
	}
	rewrite(d.files)

	for k := range d.dirs {
		if k == oldPath || strings.HasPrefix(k, oldPath+"/") {
			delete(d.dirs, k)
			d.dirs[newPath+strings.TrimPrefix(k, oldPath)] = true
		}
	}
	return nil
}

// RemoveAll removes path and, for directories, everything below it.
func (d *Memory) RemoveAll(p string) error {
	p = normalize(p)

	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.files, p)
	for k := range d.files {
		if strings.HasPrefix(k, p+"/") {
			delete(d.files, k)
		}
	}

	if p != "" {
		delete(d.dirs, p)
		for k := range d.dirs {
			if strings.HasPrefix(k, p+"/") {
				delete(d.dirs, k)
			}
		}
	}
	return nil
}

// SyncDirectory is a no-op for the in-memory disk.
func (d *Memory) SyncDirectory(p string) error {
	if !d.Exists(p) {
		return fmt.Errorf("sync directory %s: no such directory", p)
	}
	return nil
}

type memoryStream struct {
	disk      *Memory
	path      string
	buf       bytes.Buffer
	finalized bool
}

func (s *memoryStream) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *memoryStream) Finalize() error {
	s.disk.mu.Lock()
	s.disk.files[s.path] = append([]byte(nil), s.buf.Bytes()...)
	s.disk.mu.Unlock()

	s.finalized = true
	return nil
}

func (s *memoryStream) Sync() error {
	return nil
}

func (s *memoryStream) Close() error {
	return nil
}
