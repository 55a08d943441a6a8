package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/lyrixx/ClickHouse/internal/logging"
	"github.com/lyrixx/ClickHouse/internal/mergetree"
	"github.com/lyrixx/ClickHouse/internal/models"
)

// PartScanner reads the local data directory to report the tables and
// committed parts this node serves.
type PartScanner struct {
	dataDir string
	logger  *logging.Logger
}

func NewPartScanner(dataDir string, logger *logging.Logger) *PartScanner {
	return &PartScanner{
		dataDir: dataDir,
		logger:  logger,
	}
}

// ScanTables walks the data directory and totals the committed parts of
// every table. Layout is {dataDir}/{table}/{part}/.
func (s *PartScanner) ScanTables() ([]models.TableInfo, error) {
	entries, err := os.ReadDir(s.dataDir)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var tables []models.TableInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := s.scanTable(entry.Name())
		if err != nil {
			s.logger.Warn("skipping unreadable table directory", "table", entry.Name(), "error", err)
			continue
		}
		tables = append(tables, info)
	}
	return tables, nil
}

// scanTable totals the committed parts of one table directory. Temporary
// parts, the detached directory and directories without a checksums
// manifest are not counted.
func (s *PartScanner) scanTable(table string) (models.TableInfo, error) {
	tableDir := filepath.Join(s.dataDir, table)
	entries, err := os.ReadDir(tableDir)
	if err != nil {
		return models.TableInfo{}, err
	}

	info := models.TableInfo{Table: table}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		name := entry.Name()
		if name == mergetree.DetachedDirName || strings.HasPrefix(name, mergetree.TempPartPrefix) {
			continue
		}
		if _, err := mergetree.ParsePartName(name); err != nil {
			continue
		}

		partDir := filepath.Join(tableDir, name)
		if _, err := os.Stat(filepath.Join(partDir, mergetree.ChecksumsFileName)); err != nil {
			continue // no manifest, never committed
		}

		info.Parts++
		info.Rows += s.readRowCount(partDir)
		info.DataSize += dirSize(partDir)
	}
	return info, nil
}

// readRowCount reads the part's count file; 0 when unreadable.
func (s *PartScanner) readRowCount(partDir string) uint64 {
	data, err := os.ReadFile(filepath.Join(partDir, mergetree.CountFileName))
	if err != nil {
		s.logger.Warn("unreadable part count file", "path", partDir, "error", err)
		return 0
	}

	rows, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		s.logger.Warn("malformed part count file", "path", partDir, "error", err)
		return 0
	}
	return rows
}

// GetDiskCapacity reports the filesystem capacity under the data
// directory. Available space is what unprivileged writes can use.
func (s *PartScanner) GetDiskCapacity() (*models.Capacity, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(s.dataDir, &st); err != nil {
		return nil, fmt.Errorf("statfs %s: %w", s.dataDir, err)
	}

	total := int64(st.Blocks) * int64(st.Bsize)
	available := int64(st.Bavail) * int64(st.Bsize)
	return &models.Capacity{
		DiskTotal:     total,
		DiskUsed:      total - available,
		DiskAvailable: available,
	}, nil
}

// dirSize totals the regular files under path. Entries that vanish
// mid-walk, such as a part retired concurrently, are skipped rather
// than failing the scan.
func dirSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
