package mergetree

import (
	"fmt"
	"sort"
)

// Column is an in-memory, append-only container for one column's values,
// backed by a typed slice per storage class.
type Column struct {
	Name string
	Type ColumnType

	ints    []int64 // Int64, DateTime
	uints   []uint64
	floats  []float64
	strings []string
	bools   []bool
}

// NewColumn creates an empty column.
func NewColumn(name string, t ColumnType) *Column {
	return &Column{Name: name, Type: t}
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	switch c.Type {
	case TypeInt64, TypeDateTime:
		return len(c.ints)
	case TypeUInt64:
		return len(c.uints)
	case TypeFloat64:
		return len(c.floats)
	case TypeString:
		return len(c.strings)
	case TypeBool:
		return len(c.bools)
	}
	return 0
}

// Append adds one value, which must match the column type.
func (c *Column) Append(v Value) error {
	if v.typ != c.Type {
		return fmt.Errorf("column %q is %s, got %s value", c.Name, c.Type, v.typ)
	}
	c.appendRaw(v)
	return nil
}

// AppendDefault adds the type's default value.
func (c *Column) AppendDefault() {
	c.appendRaw(DefaultValue(c.Type))
}

func (c *Column) appendRaw(v Value) {
	switch c.Type {
	case TypeInt64, TypeDateTime:
		c.ints = append(c.ints, int64(v.num))
	case TypeUInt64:
		c.uints = append(c.uints, v.num)
	case TypeFloat64:
		c.floats = append(c.floats, v.Float64())
	case TypeString:
		c.strings = append(c.strings, v.str)
	case TypeBool:
		c.bools = append(c.bools, v.num != 0)
	}
}

// Value returns the value at row i.
func (c *Column) Value(i int) Value {
	switch c.Type {
	case TypeInt64:
		return Int64Value(c.ints[i])
	case TypeDateTime:
		return DateTimeFromUnix(c.ints[i])
	case TypeUInt64:
		return UInt64Value(c.uints[i])
	case TypeFloat64:
		return Float64Value(c.floats[i])
	case TypeString:
		return StringValue(c.strings[i])
	case TypeBool:
		return BoolValue(c.bools[i])
	}
	return Value{}
}

// appendFrom copies row i of src, which must share the column type.
func (c *Column) appendFrom(src *Column, i int) {
	switch c.Type {
	case TypeInt64, TypeDateTime:
		c.ints = append(c.ints, src.ints[i])
	case TypeUInt64:
		c.uints = append(c.uints, src.uints[i])
	case TypeFloat64:
		c.floats = append(c.floats, src.floats[i])
	case TypeString:
		c.strings = append(c.strings, src.strings[i])
	case TypeBool:
		c.bools = append(c.bools, src.bools[i])
	}
}

// dropFront discards the first n rows.
func (c *Column) dropFront(n int) {
	switch c.Type {
	case TypeInt64, TypeDateTime:
		c.ints = c.ints[:copy(c.ints, c.ints[n:])]
	case TypeUInt64:
		c.uints = c.uints[:copy(c.uints, c.uints[n:])]
	case TypeFloat64:
		c.floats = c.floats[:copy(c.floats, c.floats[n:])]
	case TypeString:
		c.strings = c.strings[:copy(c.strings, c.strings[n:])]
	case TypeBool:
		c.bools = c.bools[:copy(c.bools, c.bools[n:])]
	}
}

// isDefaultAt reports whether row i holds the type's default value.
func (c *Column) isDefaultAt(i int) bool {
	switch c.Type {
	case TypeInt64, TypeDateTime:
		return c.ints[i] == 0
	case TypeUInt64:
		return c.uints[i] == 0
	case TypeFloat64:
		return c.floats[i] == 0 && !isNegativeZero(c.floats[i])
	case TypeString:
		return c.strings[i] == ""
	case TypeBool:
		return !c.bools[i]
	}
	return false
}

// countDefaults returns how many values are the type's default.
func (c *Column) countDefaults() uint64 {
	var n uint64
	for i, l := 0, c.Len(); i < l; i++ {
		if c.isDefaultAt(i) {
			n++
		}
	}
	return n
}

// sizeBytes estimates the in-memory payload size, used for adaptive
// granularity.
func (c *Column) sizeBytes() int {
	switch c.Type {
	case TypeString:
		size := 0
		for _, s := range c.strings {
			size += len(s) + 2
		}
		return size
	case TypeBool:
		return len(c.bools)
	default:
		return c.Len() * 8
	}
}

// Block is an ordered set of equal-length columns.
type Block struct {
	columns []*Column
	byName  map[string]int
}

// NewBlock builds a block, validating that all columns share one length and
// carry distinct names.
func NewBlock(columns ...*Column) (*Block, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("block needs at least one column")
	}

	byName := make(map[string]int, len(columns))
	rows := columns[0].Len()

	for i, col := range columns {
		if col.Len() != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", col.Name, col.Len(), rows)
		}
		if _, dup := byName[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", col.Name)
		}
		byName[col.Name] = i
	}

	return &Block{columns: columns, byName: byName}, nil
}

// Rows returns the row count shared by all columns.
func (b *Block) Rows() int {
	if len(b.columns) == 0 {
		return 0
	}
	return b.columns[0].Len()
}

// Columns returns the columns in block order.
func (b *Block) Columns() []*Column {
	return b.columns
}

// Column returns the named column.
func (b *Block) Column(name string) (*Column, bool) {
	i, ok := b.byName[name]
	if !ok {
		return nil, false
	}
	return b.columns[i], true
}

// SizeBytes estimates the in-memory payload size of the whole block.
func (b *Block) SizeBytes() int {
	size := 0
	for _, col := range b.columns {
		size += col.sizeBytes()
	}
	return size
}

// validatePermutation checks that perm is a permutation of [0, rows).
func validatePermutation(perm []int, rows int) error {
	if perm == nil {
		return nil
	}
	if len(perm) != rows {
		return logicErrorf("permutation has %d entries for %d rows", len(perm), rows)
	}

	seen := make([]bool, rows)
	for _, p := range perm {
		if p < 0 || p >= rows {
			return logicErrorf("permutation entry %d out of range [0, %d)", p, rows)
		}
		if seen[p] {
			return logicErrorf("permutation repeats row %d", p)
		}
		seen[p] = true
	}
	return nil
}

// SortPermutation computes the stable permutation that orders the block by
// the sort key columns. It returns nil when the block is already ordered.
func SortPermutation(b *Block, sortKey []string) ([]int, error) {
	keyCols := make([]*Column, len(sortKey))
	for i, name := range sortKey {
		col, ok := b.Column(name)
		if !ok {
			return nil, fmt.Errorf("sort key references unknown column %q", name)
		}
		keyCols[i] = col
	}

	rows := b.Rows()
	perm := make([]int, rows)
	for i := range perm {
		perm[i] = i
	}

	sort.SliceStable(perm, func(i, j int) bool {
		for _, col := range keyCols {
			if c := Compare(col.Value(perm[i]), col.Value(perm[j])); c != 0 {
				return c < 0
			}
		}
		return false
	})

	for i, p := range perm {
		if i != p {
			return perm, nil
		}
	}
	return nil, nil
}

func isNegativeZero(f float64) bool {
	return f == 0 && 1/f < 0
}
