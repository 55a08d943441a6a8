package mergetree

import (
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/lyrixx/ClickHouse/internal/disk"
	"github.com/lyrixx/ClickHouse/internal/logging"
)

// WriterOptions fix a part writer's construction-time decisions.
type WriterOptions struct {
	// Serializations fixes each column's encoding kind. Missing entries
	// default to dense.
	Serializations map[string]SerializationKind
	// BlocksAreGranules makes every written block one granule, for callers
	// that already stream granule-sized blocks (merge rewrites).
	BlocksAreGranules bool
	// AssignUUID gives the part an identity UUID recorded in uuid.txt.
	AssignUUID bool
}

// columnWriter owns one column's data stream and its running statistics.
type columnWriter struct {
	def      ColumnDef
	kind     SerializationKind
	hashed   *hashedStream
	frames   *compressedStream
	rows     uint64
	defaults uint64
}

// PartWriter streams sorted blocks into a temporary part directory.
//
// Rows buffer until the open granule fills, so granules may span blocks and
// small blocks coalesce instead of fragmenting the index. The granule row
// target follows the block being consumed: with a byte budget configured it
// adapts to the block's average row size, clamped to [1, IndexGranularity].
//
// Rows across sequential blocks are assumed globally increasing in sort key
// order; the writer does not verify this.
type PartWriter struct {
	disk     disk.Disk
	dir      string
	name     PartName
	schema   *Schema
	settings Settings
	opts     WriterOptions

	columns    []*columnWriter
	skips      []*skipIndexWriter
	skipHashed []*hashedStream
	skipCols   []int
	primary    *primaryIndexBuilder
	minmax     []*MinMaxIndex
	ttl        *ttlTracker

	pendingCols   []*Column // rows of the open granule
	pendingLen    int
	granuleTarget int
	encodeBuf     []byte

	partitionValue Value
	partitionSet   bool

	rowsWritten uint64
	granules    int
	uuid        uuid.UUID
	closed      bool
}

// NewPartWriter creates the temporary part directory dir and opens one data
// stream per schema column and per configured skip index.
func NewPartWriter(d disk.Disk, dir string, name PartName, schema *Schema, settings Settings, opts WriterOptions) (*PartWriter, error) {
	if settings.IndexGranularity < 1 ||
		settings.MinCompressBlockSize < 1 ||
		settings.MaxCompressBlockSize < settings.MinCompressBlockSize {
		return nil, logicErrorf("part writer for %s: invalid settings", name)
	}
	comp, err := settings.Codec.Compressor()
	if err != nil {
		return nil, fmt.Errorf("resolve codec %s: %w", settings.Codec, err)
	}

	if err := d.CreateDirectories(dir); err != nil {
		return nil, err
	}

	w := &PartWriter{
		disk:     d,
		dir:      dir,
		name:     name,
		schema:   schema,
		settings: settings,
		opts:     opts,
		primary:  newPrimaryIndexBuilder(schema.SortKey),
	}

	for _, def := range schema.Columns {
		kind := SerializationDefault
		if opts.Serializations != nil {
			kind = opts.Serializations[def.Name]
		}
		file, err := d.WriteFile(path.Join(dir, dataFileName(def.Name)), disk.DefaultBufferSize)
		if err != nil {
			w.Abort()
			return nil, err
		}
		hs := newHashedStream(dataFileName(def.Name), file)
		w.columns = append(w.columns, &columnWriter{
			def:    def,
			kind:   kind,
			hashed: hs,
			frames: newCompressedStream(hs, comp, settings.MinCompressBlockSize, settings.MaxCompressBlockSize),
		})
		w.pendingCols = append(w.pendingCols, NewColumn(def.Name, def.Type))
	}

	for _, idef := range schema.SkipIndexes {
		file, err := d.WriteFile(path.Join(dir, skipIndexFileName(idef.Name)), disk.DefaultBufferSize)
		if err != nil {
			w.Abort()
			return nil, err
		}
		hs := newHashedStream(skipIndexFileName(idef.Name), file)
		w.skips = append(w.skips, newSkipIndexWriter(idef, newCompressedStream(hs, comp, settings.MinCompressBlockSize, settings.MaxCompressBlockSize)))
		w.skipHashed = append(w.skipHashed, hs)
		w.skipCols = append(w.skipCols, schema.byName[idef.Column])
	}

	if schema.Partition != nil {
		def, _ := schema.Column(schema.Partition.Column)
		w.minmax = []*MinMaxIndex{newMinMaxIndex(def.Name, def.Type)}
	}
	if len(schema.TTLs) > 0 {
		w.ttl = newTTLTracker(schema.TTLs)
	}
	if opts.AssignUUID {
		w.uuid = uuid.New()
	}
	return w, nil
}

// WriteBlock appends one block of rows already ordered by the sort key.
func (w *PartWriter) WriteBlock(b *Block) error {
	return w.WriteBlockWithPermutation(b, nil)
}

// WriteBlockWithPermutation appends one block whose sort order is given by
// perm: row i of the part is row perm[i] of the block. The permutation is
// applied column by column on write, never materializing a sorted copy. A
// nil perm means the block is already sorted; a block with zero rows is a
// no-op.
func (w *PartWriter) WriteBlockWithPermutation(b *Block, perm []int) error {
	if w.closed {
		return logicErrorf("part writer for %s used after close", w.name)
	}
	if b.Rows() == 0 {
		return nil
	}
	if err := w.schema.ValidateBlock(b); err != nil {
		return err
	}
	if perm != nil {
		if err := validatePermutation(perm, b.Rows()); err != nil {
			return err
		}
	}

	if err := w.observePartition(b); err != nil {
		return err
	}
	if w.ttl != nil {
		if err := w.ttl.observeBlock(b); err != nil {
			return err
		}
	}

	blockTarget := w.granuleRowsFor(b)
	if w.pendingLen == 0 {
		w.granuleTarget = blockTarget
	}

	cols := b.Columns()
	rows := b.Rows()
	for i := 0; i < rows; i++ {
		src := i
		if perm != nil {
			src = perm[i]
		}
		for c, col := range cols {
			w.pendingCols[c].appendFrom(col, src)
		}
		w.pendingLen++

		if w.pendingLen >= w.granuleTarget {
			if err := w.emitGranule(); err != nil {
				return err
			}
			w.granuleTarget = blockTarget
		}
	}

	w.rowsWritten += uint64(rows)
	return nil
}

// observePartition folds the partition source column into the minmax index
// and asserts every row maps to the same partition key value.
func (w *PartWriter) observePartition(b *Block) error {
	if w.schema.Partition == nil {
		return nil
	}
	src, _ := b.Column(w.schema.Partition.Column)
	mm := w.minmax[0]

	for i := 0; i < src.Len(); i++ {
		v := src.Value(i)
		mm.Update(v)

		pv := w.schema.Partition.ValueFor(v)
		if !w.partitionSet {
			w.partitionValue = pv
			w.partitionSet = true
			continue
		}
		if pv != w.partitionValue {
			return logicErrorf("part %s: block spans partitions %s and %s",
				w.name,
				PartitionIDOf(w.schema.Partition, w.partitionValue),
				PartitionIDOf(w.schema.Partition, pv))
		}
	}
	return nil
}

func (w *PartWriter) granuleRowsFor(b *Block) int {
	if w.opts.BlocksAreGranules {
		return w.pendingLen + b.Rows()
	}
	target := w.settings.IndexGranularity
	if w.settings.IndexGranularityBytes > 0 {
		if avg := b.SizeBytes() / b.Rows(); avg > 0 {
			if byBudget := w.settings.IndexGranularityBytes / avg; byBudget < target {
				target = byBudget
			}
		}
	}
	if target < 1 {
		target = 1
	}
	return target
}

// emitGranule encodes the pending rows as one granule of every column,
// records the primary index entry and feeds the skip indexes.
func (w *PartWriter) emitGranule() error {
	rows := w.pendingLen
	if rows == 0 {
		return nil
	}

	entry := make([]Value, len(w.schema.SortKey))
	for i, name := range w.schema.SortKey {
		entry[i] = w.pendingCols[w.schema.byName[name]].Value(0)
	}
	if err := w.primary.addEntry(entry); err != nil {
		return err
	}

	for c, cw := range w.columns {
		col := w.pendingCols[c]
		w.encodeBuf = appendGranule(w.encodeBuf[:0], col, 0, rows, cw.kind)
		if err := cw.frames.addGranule(w.encodeBuf, uint64(rows)); err != nil {
			return fmt.Errorf("column %s: %w", cw.def.Name, err)
		}
		cw.rows += uint64(rows)
		cw.defaults += col.countDefaults()
	}

	for s, sw := range w.skips {
		if err := sw.observeGranule(w.pendingCols[w.skipCols[s]], 0, rows); err != nil {
			return err
		}
	}

	for _, col := range w.pendingCols {
		col.dropFront(col.Len())
	}
	w.pendingLen = 0
	w.granules++
	return nil
}

// Close flushes the final partial granule and every stream, writes the mark
// files and primary index, and hands the accumulated index and checksum
// state to a Finalizer. The writer must not be used afterwards.
func (w *PartWriter) Close() (*Finalizer, error) {
	if w.closed {
		return nil, logicErrorf("part writer for %s closed twice", w.name)
	}
	if w.pendingLen > 0 {
		if err := w.emitGranule(); err != nil {
			return nil, err
		}
	}
	w.closed = true

	sums := NewChecksums()
	sync := w.settings.FsyncAfterWrite

	for _, cw := range w.columns {
		if err := cw.frames.finish(); err != nil {
			return nil, fmt.Errorf("column %s: %w", cw.def.Name, err)
		}
		fc, err := cw.hashed.finalize(sync)
		if err != nil {
			return nil, err
		}
		sums.Add(dataFileName(cw.def.Name), fc)

		mfc, err := writeDataFile(w.disk, w.dir, marksFileName(cw.def.Name), encodeMarks(cw.frames.marks()), sync)
		if err != nil {
			return nil, err
		}
		sums.Add(marksFileName(cw.def.Name), mfc)
	}

	for s, sw := range w.skips {
		if err := sw.close(); err != nil {
			return nil, err
		}
		fc, err := w.skipHashed[s].finalize(sync)
		if err != nil {
			return nil, err
		}
		sums.Add(skipIndexFileName(sw.def.Name), fc)

		mfc, err := writeDataFile(w.disk, w.dir, skipIndexMarksFileName(sw.def.Name), encodeMarks(sw.stream.marks()), sync)
		if err != nil {
			return nil, err
		}
		sums.Add(skipIndexMarksFileName(sw.def.Name), mfc)
	}

	pfc, err := writeDataFile(w.disk, w.dir, PrimaryIndexFileName, w.primary.bytes(), sync)
	if err != nil {
		return nil, err
	}
	sums.Add(PrimaryIndexFileName, pfc)

	stats := make([]columnStats, len(w.columns))
	for i, cw := range w.columns {
		stats[i] = columnStats{def: cw.def, kind: cw.kind, rows: cw.rows, defaults: cw.defaults}
	}

	return &Finalizer{
		disk:            w.disk,
		dir:             w.dir,
		name:            w.name,
		schema:          w.schema,
		settings:        w.settings,
		checksums:       sums,
		columns:         stats,
		rows:            w.rowsWritten,
		granules:        w.granules,
		partitionValue:  w.partitionValue,
		partitionSet:    w.partitionSet,
		minmax:          w.minmax,
		ttl:             w.ttl,
		uuid:            w.uuid,
		codecDescriptor: w.settings.Codec.String(),
	}, nil
}

// Abort closes every open stream and removes the temporary directory. Safe
// to call after a failed construction or write.
func (w *PartWriter) Abort() {
	if !w.closed {
		for _, cw := range w.columns {
			cw.hashed.abort()
		}
		for _, hs := range w.skipHashed {
			hs.abort()
		}
		w.closed = true
	}
	if err := w.disk.RemoveAll(w.dir); err != nil {
		logging.Warn("failed to remove aborted part directory", "dir", w.dir, "error", err)
	}
}

// writeDataFile writes one complete file through a hashed stream and returns
// its checksum entry.
func writeDataFile(d disk.Disk, dir, name string, content []byte, sync bool) (FileChecksum, error) {
	file, err := d.WriteFile(path.Join(dir, name), disk.DefaultBufferSize)
	if err != nil {
		return FileChecksum{}, err
	}
	hs := newHashedStream(name, file)
	if len(content) > 0 {
		if _, err := hs.Write(content); err != nil {
			hs.abort()
			return FileChecksum{}, err
		}
	}
	return hs.finalize(sync)
}
