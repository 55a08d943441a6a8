package mergetree

import (
	"context"
	"fmt"
	"path"

	"github.com/lyrixx/ClickHouse/internal/disk"
	"github.com/lyrixx/ClickHouse/internal/logging"
)

// EventPublisher receives part lifecycle events. Implementations live in the
// queue layer.
type EventPublisher interface {
	PublishPartEvent(ctx context.Context, e *PartEvent) error
}

// Row is one incoming row keyed by column name. Missing columns take their
// type's default value.
type Row map[string]Value

// Store owns one table's directory: the active part set, the block counter,
// and the write path from row blocks to committed parts.
type Store struct {
	disk     disk.Disk
	dir      string
	table    string
	schema   *Schema
	settings Settings

	active    *ActiveSet
	publisher EventPublisher
}

// OpenStore scans the table directory, adopts its complete parts and seeds
// the block counter above the highest adopted block number.
func OpenStore(d disk.Disk, dir, table string, schema *Schema, settings Settings) (*Store, error) {
	if err := d.CreateDirectories(dir); err != nil {
		return nil, err
	}

	scan, err := ScanTableDir(d, dir, schema, settings.VerifyChecksumsOnLoad)
	if err != nil {
		return nil, fmt.Errorf("scan table %s: %w", table, err)
	}

	active := NewActiveSet(d)
	for _, part := range scan.Parts {
		if err := active.Register(part); err != nil {
			return nil, err
		}
	}
	active.SeedBlockCounter(scan.MaxBlock)

	logging.Info("table opened",
		"table", table,
		"parts", len(scan.Parts),
		"removed_temporary", len(scan.Removed),
		"detached", len(scan.Detached))

	return &Store{
		disk:     d,
		dir:      dir,
		table:    table,
		schema:   schema,
		settings: settings,
		active:   active,
	}, nil
}

// SetPublisher wires the part event publisher. Call before serving writes.
func (s *Store) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// Schema returns the table's schema.
func (s *Store) Schema() *Schema {
	return s.schema
}

// Table returns the table name.
func (s *Store) Table() string {
	return s.table
}

// InsertRows builds a block from loose rows and writes it. Unknown columns
// are rejected; missing columns take their default value.
func (s *Store) InsertRows(ctx context.Context, rows []Row) ([]*Part, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	cols := newSchemaColumns(s.schema)
	for i, row := range rows {
		for name := range row {
			if _, ok := s.schema.Column(name); !ok {
				return nil, fmt.Errorf("row %d: unknown column %q", i, name)
			}
		}
		for c, def := range s.schema.Columns {
			v, ok := row[def.Name]
			if !ok {
				cols[c].AppendDefault()
				continue
			}
			if err := cols[c].Append(v); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
		}
	}

	block, err := NewBlock(cols...)
	if err != nil {
		return nil, err
	}
	return s.WriteBlocks(ctx, []*Block{block})
}

// WriteBlocks turns blocks into committed parts, one per partition touched.
// Rows are regrouped by partition value and sorted by the sort key; each
// group commits independently, so on error the already committed parts stay
// visible.
func (s *Store) WriteBlocks(ctx context.Context, blocks []*Block) ([]*Part, error) {
	groups, err := s.splitByPartition(blocks)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}

	parts := make([]*Part, 0, len(groups))
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return parts, err
		}
		part, err := s.writePart(ctx, g)
		if err != nil {
			return parts, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

type partitionGroup struct {
	id    string
	block *Block
}

// splitByPartition regroups the input rows into one block per partition,
// preserving arrival order within each group.
func (s *Store) splitByPartition(blocks []*Block) ([]partitionGroup, error) {
	for _, b := range blocks {
		if err := s.schema.ValidateBlock(b); err != nil {
			return nil, err
		}
	}

	totalRows := 0
	for _, b := range blocks {
		totalRows += b.Rows()
	}
	if totalRows == 0 {
		return nil, nil
	}

	if s.schema.Partition == nil {
		cols := newSchemaColumns(s.schema)
		for _, b := range blocks {
			appendRows(cols, b)
		}
		block, err := NewBlock(cols...)
		if err != nil {
			return nil, err
		}
		return []partitionGroup{{id: "all", block: block}}, nil
	}

	srcIdx := s.schema.byName[s.schema.Partition.Column]
	var order []string
	grouped := make(map[string][]*Column)

	for _, b := range blocks {
		bcols := b.Columns()
		src := bcols[srcIdx]
		for r := 0; r < b.Rows(); r++ {
			pv := s.schema.Partition.ValueFor(src.Value(r))
			id := PartitionIDOf(s.schema.Partition, pv)

			cols, ok := grouped[id]
			if !ok {
				cols = newSchemaColumns(s.schema)
				grouped[id] = cols
				order = append(order, id)
			}
			for c, col := range bcols {
				cols[c].appendFrom(col, r)
			}
		}
	}

	groups := make([]partitionGroup, 0, len(order))
	for _, id := range order {
		block, err := NewBlock(grouped[id]...)
		if err != nil {
			return nil, err
		}
		groups = append(groups, partitionGroup{id: id, block: block})
	}
	return groups, nil
}

// writePart commits one partition's rows as a new part and registers it.
func (s *Store) writePart(ctx context.Context, g partitionGroup) (*Part, error) {
	perm, err := SortPermutation(g.block, s.schema.SortKey)
	if err != nil {
		return nil, err
	}

	tracker := NewSerializationTracker(s.schema)
	tracker.Observe(g.block)

	n := s.active.AllocateBlockNumber()
	name := PartName{PartitionID: g.id, MinBlock: n, MaxBlock: n, Level: 0}
	tmpDir := path.Join(s.dir, name.TempDirName())

	writer, err := NewPartWriter(s.disk, tmpDir, name, s.schema, s.settings, WriterOptions{
		Serializations: tracker.Kinds(s.settings.RatioForSparse),
		AssignUUID:     s.settings.AssignPartUUIDs,
	})
	if err != nil {
		return nil, err
	}

	if err := writer.WriteBlockWithPermutation(g.block, perm); err != nil {
		writer.Abort()
		return nil, err
	}

	finalizer, err := writer.Close()
	if err != nil {
		writer.Abort()
		return nil, err
	}

	part, err := finalizer.FinalizeAndRename()
	if err != nil {
		if rerr := s.disk.RemoveAll(tmpDir); rerr != nil {
			logging.Warn("failed to remove uncommitted part directory", "dir", tmpDir, "error", rerr)
		}
		return nil, err
	}

	if err := s.active.Register(part); err != nil {
		return nil, err
	}

	logging.Info("part committed",
		"table", s.table,
		"part", part.Name.String(),
		"rows", part.Rows,
		"bytes", part.BytesOnDisk)

	s.publish(ctx, newPartEvent(PartEventCommitted, s.table, part))
	return part, nil
}

// Parts returns the active parts ordered by partition and block range.
func (s *Store) Parts() []*Part {
	return s.active.Snapshot()
}

// Part returns one active part by name.
func (s *Store) Part(name string) (*Part, bool) {
	return s.active.Get(name)
}

// AcquirePart pins an active part for reading; the release function must be
// called exactly once.
func (s *Store) AcquirePart(name string) (*Part, func(), bool) {
	return s.active.Acquire(name)
}

// DropPart retires an active part. Its directory is removed once the last
// reader releases it.
func (s *Store) DropPart(ctx context.Context, name string) error {
	part, ok := s.active.Get(name)
	if !ok {
		return fmt.Errorf("no active part %s", name)
	}
	if err := s.active.Retire(name); err != nil {
		return err
	}

	logging.Info("part retired", "table", s.table, "part", name)
	s.publish(ctx, newPartEvent(PartEventRetired, s.table, part))
	return nil
}

// Stats summarizes the table's active parts.
func (s *Store) Stats() (parts int, rows uint64, bytes uint64) {
	return s.active.Stats()
}

// publish sends an event when a publisher is wired. Delivery is best effort:
// failures are logged, never fail the write path.
func (s *Store) publish(ctx context.Context, e *PartEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPartEvent(ctx, e); err != nil {
		logging.Warn("failed to publish part event",
			"table", e.Table,
			"part", e.Part,
			"type", e.Type,
			"error", err)
	}
}

func newSchemaColumns(schema *Schema) []*Column {
	cols := make([]*Column, len(schema.Columns))
	for i, def := range schema.Columns {
		cols[i] = NewColumn(def.Name, def.Type)
	}
	return cols
}

func appendRows(dst []*Column, b *Block) {
	bcols := b.Columns()
	for r := 0; r < b.Rows(); r++ {
		for c, col := range bcols {
			dst[c].appendFrom(col, r)
		}
	}
}
