package mergetree

import (
	"path"
	"strconv"
	"strings"

	"github.com/lyrixx/ClickHouse/internal/disk"
	"github.com/lyrixx/ClickHouse/internal/logging"
)

// ScanResult is the outcome of a table directory scan at startup.
type ScanResult struct {
	// Parts are the complete parts, in directory order.
	Parts []*Part
	// Removed lists deleted temporary directories.
	Removed []string
	// Detached lists directories moved aside because they failed to load.
	Detached []string
	// MaxBlock is the highest block number any complete part covers; the
	// table's block counter must start above it.
	MaxBlock uint64
}

// ScanTableDir inventories a table directory after a restart. Temporary
// directories are leftovers of writes that never committed and are removed.
// Directories that fail to load, whether the manifest is missing or the
// content does not verify, are moved under detached/ for operator
// inspection. Complete parts are returned for adoption.
func ScanTableDir(d disk.Disk, dir string, schema *Schema, verifyHashes bool) (*ScanResult, error) {
	entries, err := d.List(dir)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{}
	for _, e := range entries {
		if !e.IsDir || e.Name == DetachedDirName {
			continue
		}

		full := path.Join(dir, e.Name)

		if strings.HasPrefix(e.Name, TempPartPrefix) {
			if err := d.RemoveAll(full); err != nil {
				return nil, err
			}
			logging.Info("removed abandoned temporary part", "dir", full)
			result.Removed = append(result.Removed, e.Name)
			continue
		}

		part, err := LoadPart(d, full, schema, verifyHashes)
		if err != nil {
			if derr := detachPart(d, dir, e.Name); derr != nil {
				return nil, derr
			}
			logging.Warn("detached unloadable part", "part", e.Name, "error", err)
			result.Detached = append(result.Detached, e.Name)
			continue
		}

		result.Parts = append(result.Parts, part)
		if part.Name.MaxBlock > result.MaxBlock {
			result.MaxBlock = part.Name.MaxBlock
		}
	}
	return result, nil
}

// detachPart moves a part directory under detached/, suffixing the name when
// an earlier detach already claimed it.
func detachPart(d disk.Disk, dir, name string) error {
	detachedDir := path.Join(dir, DetachedDirName)
	if err := d.CreateDirectories(detachedDir); err != nil {
		return err
	}

	target := path.Join(detachedDir, name)
	for i := 1; d.Exists(target); i++ {
		target = path.Join(detachedDir, name+"_try"+strconv.Itoa(i))
	}
	return d.Rename(path.Join(dir, name), target)
}
