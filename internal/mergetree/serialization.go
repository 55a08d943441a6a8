package mergetree

import (
	"encoding/json"
	"fmt"
)

// SerializationKind selects how a column's granules are encoded on disk.
type SerializationKind uint8

const (
	// SerializationDefault stores every row densely.
	SerializationDefault SerializationKind = iota
	// SerializationSparse stores only non-default rows plus their offsets.
	SerializationSparse
)

func (k SerializationKind) String() string {
	if k == SerializationSparse {
		return "Sparse"
	}
	return "Default"
}

// ParseSerializationKind parses the kind names used in serialization.json.
func ParseSerializationKind(s string) (SerializationKind, error) {
	switch s {
	case "Default":
		return SerializationDefault, nil
	case "Sparse":
		return SerializationSparse, nil
	}
	return SerializationDefault, fmt.Errorf("unknown serialization kind %q", s)
}

// ColumnSerialization is one column's entry in serialization.json.
type ColumnSerialization struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	NumRows     uint64 `json:"num_rows"`
	NumDefaults uint64 `json:"num_defaults"`
}

type serializationFile struct {
	Version int                   `json:"version"`
	Columns []ColumnSerialization `json:"columns"`
}

// renderSerialization renders serialization.json content. The second return
// is false when every column is Default, in which case the file is omitted.
func renderSerialization(columns []ColumnSerialization) ([]byte, bool, error) {
	anySparse := false
	for _, c := range columns {
		if c.Kind == SerializationSparse.String() {
			anySparse = true
			break
		}
	}
	if !anySparse {
		return nil, false, nil
	}

	data, err := json.Marshal(serializationFile{Version: 0, Columns: columns})
	if err != nil {
		return nil, false, fmt.Errorf("marshal serialization info: %w", err)
	}
	return data, true, nil
}

func parseSerialization(data []byte) ([]ColumnSerialization, error) {
	var file serializationFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse serialization info: %w", err)
	}
	if file.Version != 0 {
		return nil, fmt.Errorf("unsupported serialization info version %d", file.Version)
	}
	for _, c := range file.Columns {
		if _, err := ParseSerializationKind(c.Kind); err != nil {
			return nil, fmt.Errorf("parse serialization info: %w", err)
		}
	}
	return file.Columns, nil
}

// SerializationTracker accumulates per-column default-value counts across
// blocks and decides each column's serialization kind before a writer is
// constructed. Sort key and partition source columns always stay Default
// since readers touch them on every lookup.
type SerializationTracker struct {
	schema   *Schema
	rows     map[string]uint64
	defaults map[string]uint64
}

func NewSerializationTracker(schema *Schema) *SerializationTracker {
	return &SerializationTracker{
		schema:   schema,
		rows:     make(map[string]uint64, len(schema.Columns)),
		defaults: make(map[string]uint64, len(schema.Columns)),
	}
}

// Observe accumulates the default counts of every column in the block.
func (t *SerializationTracker) Observe(b *Block) {
	for _, col := range b.Columns() {
		t.rows[col.Name] += uint64(col.Len())
		t.defaults[col.Name] += uint64(col.countDefaults())
	}
}

// ObserveStats seeds the tracker from previously recorded statistics, for
// callers that carry hints forward instead of rescanning data.
func (t *SerializationTracker) ObserveStats(column string, rows, defaults uint64) {
	t.rows[column] += rows
	t.defaults[column] += defaults
}

// Kinds returns the serialization decision for every schema column. A column
// goes Sparse when its observed default ratio reaches ratio and it is neither
// a sort key nor a partition source.
func (t *SerializationTracker) Kinds(ratio float64) map[string]SerializationKind {
	kinds := make(map[string]SerializationKind, len(t.schema.Columns))
	for _, def := range t.schema.Columns {
		kinds[def.Name] = SerializationDefault

		if t.schema.isProtected(def.Name) {
			continue
		}
		rows := t.rows[def.Name]
		if rows == 0 {
			continue
		}
		if float64(t.defaults[def.Name])/float64(rows) >= ratio {
			kinds[def.Name] = SerializationSparse
		}
	}
	return kinds
}
