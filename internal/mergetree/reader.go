package mergetree

import (
	"bytes"
	"fmt"
	"path"

	"github.com/lyrixx/ClickHouse/internal/compression"
	"github.com/lyrixx/ClickHouse/internal/disk"
)

// ReadColumn materializes one column of a committed part by decoding every
// granule in mark order.
func ReadColumn(d disk.Disk, p *Part, column string) (*Column, error) {
	var def *ColumnDef
	for i := range p.Columns {
		if p.Columns[i].Name == column {
			def = &p.Columns[i]
			break
		}
	}
	if def == nil {
		return nil, fmt.Errorf("part %s: no column %s", p.Name, column)
	}

	marksData, err := d.ReadFile(path.Join(p.Dir, marksFileName(column)))
	if err != nil {
		return nil, fmt.Errorf("part %s: %w", p.Name, err)
	}
	marks, err := decodeMarks(marksData)
	if err != nil {
		return nil, fmt.Errorf("part %s column %s: %w", p.Name, column, err)
	}

	raw, err := d.ReadFile(path.Join(p.Dir, dataFileName(column)))
	if err != nil {
		return nil, fmt.Errorf("part %s: %w", p.Name, err)
	}

	kind := p.SerializationOf(column)
	out := NewColumn(column, def.Type)

	var frame []byte
	frameStart := ^uint64(0)
	for i, mark := range marks {
		if mark.FrameOffset != frameStart {
			if mark.FrameOffset > uint64(len(raw)) {
				return nil, fmt.Errorf("part %s column %s: mark %d points past file end", p.Name, column, i)
			}
			frame, _, err = compression.ReadFrame(bytes.NewReader(raw[mark.FrameOffset:]))
			if err != nil {
				return nil, fmt.Errorf("part %s column %s: frame at %d: %w", p.Name, column, mark.FrameOffset, err)
			}
			frameStart = mark.FrameOffset
		}
		if mark.InFrameOffset > uint64(len(frame)) {
			return nil, fmt.Errorf("part %s column %s: mark %d points past frame end", p.Name, column, i)
		}

		rows, _, err := decodeGranule(frame[mark.InFrameOffset:], out, kind)
		if err != nil {
			return nil, fmt.Errorf("part %s column %s: granule %d: %w", p.Name, column, i, err)
		}
		if uint64(rows) != mark.Rows {
			return nil, fmt.Errorf("part %s column %s: granule %d decoded %d rows, mark says %d", p.Name, column, i, rows, mark.Rows)
		}
	}
	return out, nil
}

// ReadPrimaryIndex decodes primary.idx into one row of sort key values per
// granule.
func ReadPrimaryIndex(d disk.Disk, p *Part, schema *Schema) ([][]Value, error) {
	data, err := d.ReadFile(path.Join(p.Dir, PrimaryIndexFileName))
	if err != nil {
		return nil, fmt.Errorf("part %s: %w", p.Name, err)
	}

	types := make([]ColumnType, len(schema.SortKey))
	for i, name := range schema.SortKey {
		def, ok := schema.Column(name)
		if !ok {
			return nil, fmt.Errorf("sort key column %s not in schema", name)
		}
		types[i] = def.Type
	}
	return decodePrimaryIndex(data, types)
}

// readSkipIndexRows returns each summary row of a skip index alongside its
// mark. Every returned slice is the decompressed frame suffix starting at
// the summary row; the summary decoders know where each row ends.
func readSkipIndexRows(d disk.Disk, p *Part, name string) ([][]byte, []Mark, error) {
	marksData, err := d.ReadFile(path.Join(p.Dir, skipIndexMarksFileName(name)))
	if err != nil {
		return nil, nil, fmt.Errorf("part %s: %w", p.Name, err)
	}
	marks, err := decodeMarks(marksData)
	if err != nil {
		return nil, nil, fmt.Errorf("part %s skip index %s: %w", p.Name, name, err)
	}

	raw, err := d.ReadFile(path.Join(p.Dir, skipIndexFileName(name)))
	if err != nil {
		return nil, nil, fmt.Errorf("part %s: %w", p.Name, err)
	}

	rows := make([][]byte, 0, len(marks))
	var frame []byte
	frameStart := ^uint64(0)
	for i, mark := range marks {
		if mark.FrameOffset != frameStart {
			if mark.FrameOffset > uint64(len(raw)) {
				return nil, nil, fmt.Errorf("part %s skip index %s: mark %d points past file end", p.Name, name, i)
			}
			frame, _, err = compression.ReadFrame(bytes.NewReader(raw[mark.FrameOffset:]))
			if err != nil {
				return nil, nil, fmt.Errorf("part %s skip index %s: frame at %d: %w", p.Name, name, mark.FrameOffset, err)
			}
			frameStart = mark.FrameOffset
		}
		if mark.InFrameOffset > uint64(len(frame)) {
			return nil, nil, fmt.Errorf("part %s skip index %s: mark %d points past frame end", p.Name, name, i)
		}
		rows = append(rows, frame[mark.InFrameOffset:])
	}
	return rows, marks, nil
}
