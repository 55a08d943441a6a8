package mergetree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/lyrixx/ClickHouse/internal/compression"
)

// Metadata files written during commit. checksums.txt, listed last, lives in
// checksums.go.
const (
	CountFileName         = "count.txt"
	UUIDFileName          = "uuid.txt"
	PartitionFileName     = "partition.dat"
	TTLFileName           = "ttl.txt"
	ColumnsFileName       = "columns.txt"
	SerializationFileName = "serialization.json"
	CodecFileName         = "default_compression_codec.txt"
	PrimaryIndexFileName  = "primary.idx"
)

// TempPartPrefix marks a part directory that never committed.
const TempPartPrefix = "tmp_"

// DetachedDirName holds part directories set aside because their manifest
// was unreadable at startup.
const DetachedDirName = "detached"

const columnsHeader = "columns format version: 1"

// PartState tracks a part through its lifecycle. The writer only ever
// produces Temporary parts; activation happens through the active set.
type PartState uint8

const (
	// PartTemporary is being written under a tmp_ prefix, invisible to readers.
	PartTemporary PartState = iota
	// PartActive is committed and visible.
	PartActive
	// PartOutdated was replaced and awaits removal once unreferenced.
	PartOutdated
	// PartDeleting is being removed from disk.
	PartDeleting
)

func (s PartState) String() string {
	switch s {
	case PartTemporary:
		return "Temporary"
	case PartActive:
		return "Active"
	case PartOutdated:
		return "Outdated"
	case PartDeleting:
		return "Deleting"
	}
	return "Unknown"
}

// PartName identifies a part within its table:
// {partitionID}_{minBlock}_{maxBlock}_{level}. A freshly written part has
// minBlock == maxBlock and level 0; merges widen the range and bump the
// level.
type PartName struct {
	PartitionID string
	MinBlock    uint64
	MaxBlock    uint64
	Level       uint32
}

func (n PartName) String() string {
	return n.PartitionID + "_" +
		strconv.FormatUint(n.MinBlock, 10) + "_" +
		strconv.FormatUint(n.MaxBlock, 10) + "_" +
		strconv.FormatUint(uint64(n.Level), 10)
}

// TempDirName is the directory a part occupies before its commit rename.
func (n PartName) TempDirName() string {
	return TempPartPrefix + n.String()
}

// ParsePartName parses a part directory name. The numeric fields are taken
// from the right since only the partition identifier is free-form.
func ParsePartName(s string) (PartName, error) {
	fields := strings.Split(s, "_")
	if len(fields) < 4 {
		return PartName{}, fmt.Errorf("part name %q: want {partition}_{min}_{max}_{level}", s)
	}

	k := len(fields)
	minBlock, err := strconv.ParseUint(fields[k-3], 10, 64)
	if err != nil {
		return PartName{}, fmt.Errorf("part name %q: bad min block: %w", s, err)
	}
	maxBlock, err := strconv.ParseUint(fields[k-2], 10, 64)
	if err != nil {
		return PartName{}, fmt.Errorf("part name %q: bad max block: %w", s, err)
	}
	level, err := strconv.ParseUint(fields[k-1], 10, 32)
	if err != nil {
		return PartName{}, fmt.Errorf("part name %q: bad level: %w", s, err)
	}
	if maxBlock < minBlock {
		return PartName{}, fmt.Errorf("part name %q: max block below min block", s)
	}

	id := strings.Join(fields[:k-3], "_")
	if id == "" {
		return PartName{}, fmt.Errorf("part name %q: empty partition id", s)
	}

	return PartName{
		PartitionID: id,
		MinBlock:    minBlock,
		MaxBlock:    maxBlock,
		Level:       uint32(level),
	}, nil
}

// Part is one immutable committed part: a directory of column data, index
// and metadata files described by its checksums manifest. Fields are fixed
// at commit except State, which the active set owns.
type Part struct {
	Name  PartName
	Dir   string
	State PartState

	Rows        uint64
	BytesOnDisk uint64
	Columns     []ColumnDef
	Checksums   *Checksums

	UUID           uuid.UUID // uuid.Nil when no identity was assigned
	PartitionValue Value
	MinMax         []*MinMaxIndex
	TTL            *TTLInfo
	Serializations map[string]SerializationKind
	Codec          compression.Codec
}

// HasColumn reports whether the column is physically present in the part.
func (p *Part) HasColumn(name string) bool {
	for _, c := range p.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// SerializationOf returns the column's serialization kind, Default when the
// part carries no explicit decision.
func (p *Part) SerializationOf(column string) SerializationKind {
	if p.Serializations == nil {
		return SerializationDefault
	}
	return p.Serializations[column]
}

// renderColumnsFile produces columns.txt: the columns physically present in
// the part, in schema order.
func renderColumnsFile(cols []ColumnDef) []byte {
	var b strings.Builder
	b.WriteString(columnsHeader)
	b.WriteByte('\n')
	b.WriteString(strconv.Itoa(len(cols)))
	b.WriteString(" columns:\n")
	for _, c := range cols {
		b.WriteByte('`')
		b.WriteString(c.Name)
		b.WriteString("` ")
		b.WriteString(c.Type.String())
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func parseColumnsFile(data []byte) ([]ColumnDef, error) {
	lines := strings.Split(string(data), "\n")
	if len(lines) < 2 || lines[0] != columnsHeader {
		return nil, fmt.Errorf("columns file: bad header")
	}

	countStr, ok := strings.CutSuffix(lines[1], " columns:")
	if !ok {
		return nil, fmt.Errorf("columns file: bad count line %q", lines[1])
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 0 {
		return nil, fmt.Errorf("columns file: bad count %q", countStr)
	}

	cols := make([]ColumnDef, 0, count)
	for i := 0; i < count; i++ {
		lineNo := 2 + i
		if lineNo >= len(lines) {
			return nil, fmt.Errorf("columns file: expected %d entries, got %d", count, i)
		}
		line := lines[lineNo]

		rest, ok := strings.CutPrefix(line, "`")
		if !ok {
			return nil, fmt.Errorf("columns file: bad entry %q", line)
		}
		name, typeName, ok := strings.Cut(rest, "` ")
		if !ok || name == "" {
			return nil, fmt.Errorf("columns file: bad entry %q", line)
		}
		t, err := ParseColumnType(typeName)
		if err != nil {
			return nil, fmt.Errorf("columns file: entry %q: %w", line, err)
		}
		cols = append(cols, ColumnDef{Name: name, Type: t})
	}
	return cols, nil
}

func dataFileName(column string) string { return column + ".bin" }

func marksFileName(column string) string { return column + ".mrk2" }
