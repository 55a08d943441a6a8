package mergetree

import "fmt"

// primaryIndexBuilder accumulates the sparse primary key index: one entry per
// granule holding the binary encodings of the sort key columns' values at the
// granule's first row, concatenated in sort key order.
type primaryIndexBuilder struct {
	sortKey []string
	buf     []byte
	entries int
}

func newPrimaryIndexBuilder(sortKey []string) *primaryIndexBuilder {
	return &primaryIndexBuilder{sortKey: sortKey}
}

func (b *primaryIndexBuilder) addEntry(values []Value) error {
	if len(values) != len(b.sortKey) {
		return logicErrorf("primary index entry has %d values, sort key has %d columns", len(values), len(b.sortKey))
	}
	for _, v := range values {
		b.buf = v.AppendBinary(b.buf)
	}
	b.entries++
	return nil
}

func (b *primaryIndexBuilder) bytes() []byte { return b.buf }

func (b *primaryIndexBuilder) count() int { return b.entries }

// decodePrimaryIndex parses primary.idx content into one row of sort key
// values per granule.
func decodePrimaryIndex(data []byte, types []ColumnType) ([][]Value, error) {
	var entries [][]Value
	offset := 0
	for offset < len(data) {
		entry := make([]Value, len(types))
		for i, t := range types {
			v, n, err := DecodeValue(data[offset:], t)
			if err != nil {
				return nil, fmt.Errorf("primary index entry %d: %w", len(entries), err)
			}
			entry[i] = v
			offset += n
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
