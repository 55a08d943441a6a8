package mergetree

import (
	"fmt"
	"path"
	"strconv"

	"github.com/google/uuid"

	"github.com/lyrixx/ClickHouse/internal/disk"
)

// columnStats carries one column's observed statistics into finalization.
type columnStats struct {
	def      ColumnDef
	kind     SerializationKind
	rows     uint64
	defaults uint64
}

// Finalizer owns the index and checksum state a closed PartWriter handed
// over, and runs the commit protocol. It is single use: a second Finalize
// fails with a logic error since the state was already released.
type Finalizer struct {
	disk     disk.Disk
	dir      string
	name     PartName
	schema   *Schema
	settings Settings

	checksums *Checksums
	columns   []columnStats
	rows      uint64
	granules  int

	partitionValue  Value
	partitionSet    bool
	minmax          []*MinMaxIndex
	ttl             *ttlTracker
	uuid            uuid.UUID
	codecDescriptor string

	done bool
}

// Finalize emits the part's metadata files in commit order and returns the
// completed part, still under its temporary directory in state Temporary.
//
// Order matters only in that checksums.txt comes last: a crash mid-commit
// leaves no manifest, which marks the part incomplete for the startup scan.
func (f *Finalizer) Finalize() (*Part, error) {
	if f.done {
		return nil, logicErrorf("part %s finalized twice", f.name)
	}
	f.done = true

	if f.codecDescriptor == "" {
		return nil, logicErrorf("part %s has no compression codec descriptor", f.name)
	}
	if f.rows > 0 {
		for _, mm := range f.minmax {
			if !mm.Initialized() {
				return nil, logicErrorf("part %s has %d rows but uninitialized minmax bounds for %s", f.name, f.rows, mm.Column)
			}
		}
	}

	if err := f.writeMeta(CountFileName, []byte(strconv.FormatUint(f.rows, 10))); err != nil {
		return nil, err
	}

	if f.uuid != uuid.Nil {
		if err := f.writeMeta(UUIDFileName, []byte(f.uuid.String())); err != nil {
			return nil, err
		}
	}

	if f.schema.Partition != nil && f.rows > 0 {
		if err := f.writeMeta(PartitionFileName, f.partitionValue.AppendBinary(nil)); err != nil {
			return nil, err
		}
		for _, mm := range f.minmax {
			if err := f.writeMeta(mm.fileName(), mm.appendBinary(nil)); err != nil {
				return nil, err
			}
		}
	}

	var ttlInfo *TTLInfo
	if f.ttl != nil && f.ttl.hasBounds() {
		content, err := f.ttl.render()
		if err != nil {
			return nil, err
		}
		if err := f.writeMeta(TTLFileName, content); err != nil {
			return nil, err
		}
		ttlInfo = f.ttl.info()
	}

	physical, serials, err := f.dropAllDefaultColumns()
	if err != nil {
		return nil, err
	}

	if err := f.writeMeta(ColumnsFileName, renderColumnsFile(physical)); err != nil {
		return nil, err
	}

	var serializations map[string]SerializationKind
	serialData, present, err := renderSerialization(serials)
	if err != nil {
		return nil, err
	}
	if present {
		if err := f.writeMeta(SerializationFileName, serialData); err != nil {
			return nil, err
		}
		serializations = make(map[string]SerializationKind, len(serials))
		for _, s := range serials {
			kind, _ := ParseSerializationKind(s.Kind)
			serializations[s.Name] = kind
		}
	}

	if err := f.writeMeta(CodecFileName, []byte(f.codecDescriptor)); err != nil {
		return nil, err
	}

	// The manifest lists every other file and is never listed itself.
	if _, err := writeDataFile(f.disk, f.dir, ChecksumsFileName, f.checksums.Render(), f.settings.FsyncAfterWrite); err != nil {
		return nil, err
	}

	if f.settings.FsyncPartDirectory {
		if err := f.disk.SyncDirectory(f.dir); err != nil {
			return nil, err
		}
	}

	part := &Part{
		Name:           f.name,
		Dir:            f.dir,
		State:          PartTemporary,
		Rows:           f.rows,
		BytesOnDisk:    f.checksums.TotalSize(),
		Columns:        physical,
		Checksums:      f.checksums,
		UUID:           f.uuid,
		TTL:            ttlInfo,
		Serializations: serializations,
		Codec:          f.settings.Codec,
	}
	if f.partitionSet && f.rows > 0 {
		part.PartitionValue = f.partitionValue
		part.MinMax = f.minmax
	}
	return part, nil
}

// dropAllDefaultColumns removes the data and mark files of columns whose
// every row is the default value. Sort key and partition source columns are
// never dropped. Returns the physically present columns and their
// serialization entries.
func (f *Finalizer) dropAllDefaultColumns() ([]ColumnDef, []ColumnSerialization, error) {
	physical := make([]ColumnDef, 0, len(f.columns))
	serials := make([]ColumnSerialization, 0, len(f.columns))

	for _, cs := range f.columns {
		if cs.rows > 0 && cs.defaults == cs.rows && !f.schema.isProtected(cs.def.Name) {
			for _, name := range []string{dataFileName(cs.def.Name), marksFileName(cs.def.Name)} {
				if err := f.disk.RemoveAll(path.Join(f.dir, name)); err != nil {
					return nil, nil, fmt.Errorf("drop column %s: %w", cs.def.Name, err)
				}
				f.checksums.Remove(name)
			}
			continue
		}

		physical = append(physical, cs.def)
		serials = append(serials, ColumnSerialization{
			Name:        cs.def.Name,
			Kind:        cs.kind.String(),
			NumRows:     cs.rows,
			NumDefaults: cs.defaults,
		})
	}
	return physical, serials, nil
}

// FinalizeAndRename commits the metadata and moves the part to its final
// directory name. The rename makes the directory durable under its real
// name; visibility to readers still requires registration with the active
// set.
func (f *Finalizer) FinalizeAndRename() (*Part, error) {
	p, err := f.Finalize()
	if err != nil {
		return nil, err
	}

	parent := path.Dir(f.dir)
	final := path.Join(parent, f.name.String())
	if err := f.disk.Rename(f.dir, final); err != nil {
		return nil, fmt.Errorf("commit part %s: %w", f.name, err)
	}
	if f.settings.FsyncPartDirectory {
		if err := f.disk.SyncDirectory(parent); err != nil {
			return nil, err
		}
	}

	p.Dir = final
	return p, nil
}

func (f *Finalizer) writeMeta(name string, content []byte) error {
	fc, err := writeDataFile(f.disk, f.dir, name, content, f.settings.FsyncAfterWrite)
	if err != nil {
		return err
	}
	f.checksums.Add(name, fc)
	return nil
}
