package mergetree

import (
	"fmt"
	"time"

	"github.com/lyrixx/ClickHouse/internal/config"
)

// ColumnDef is one column of a table schema.
type ColumnDef struct {
	Name string
	Type ColumnType
}

// SkipIndexDef is one configured data-skipping index.
type SkipIndexDef struct {
	Name              string
	Type              SkipIndexType
	Column            string
	Granularity       int     // granules aggregated per summary row
	FalsePositiveRate float64 // bloom_filter only
}

// TTLRule expires rows Period after the Column value. Target is "" for the
// table-level rule, otherwise the name of the column it applies to.
type TTLRule struct {
	Column string
	Period time.Duration
	Target string
}

// PartitionExpr is the partitioning expression of a table: one source
// column and a transform.
type PartitionExpr struct {
	Column    string
	Transform PartitionTransform
	Modulo    uint64
}

// Schema is the compiled definition of one table.
type Schema struct {
	Columns     []ColumnDef
	SortKey     []string
	Partition   *PartitionExpr // nil means the single implicit partition "all"
	SkipIndexes []SkipIndexDef
	TTLs        []TTLRule

	byName map[string]int
}

// NewSchema builds a schema and validates the internal references.
func NewSchema(columns []ColumnDef, sortKey []string, partition *PartitionExpr, skips []SkipIndexDef, ttls []TTLRule) (*Schema, error) {
	s := &Schema{
		Columns:     columns,
		SortKey:     sortKey,
		Partition:   partition,
		SkipIndexes: skips,
		TTLs:        ttls,
		byName:      make(map[string]int, len(columns)),
	}

	for i, col := range columns {
		if _, dup := s.byName[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", col.Name)
		}
		s.byName[col.Name] = i
	}

	if len(sortKey) == 0 {
		return nil, fmt.Errorf("sort key is required")
	}
	for _, name := range sortKey {
		if _, ok := s.byName[name]; !ok {
			return nil, fmt.Errorf("sort key references unknown column %q", name)
		}
	}

	if partition != nil {
		def, ok := s.Column(partition.Column)
		if !ok {
			return nil, fmt.Errorf("partition references unknown column %q", partition.Column)
		}
		if err := partition.Transform.validFor(def.Type, partition.Modulo); err != nil {
			return nil, fmt.Errorf("partition on %q: %w", partition.Column, err)
		}
	}

	for _, idx := range skips {
		if _, ok := s.byName[idx.Column]; !ok {
			return nil, fmt.Errorf("skip index %q references unknown column %q", idx.Name, idx.Column)
		}
	}

	for _, ttl := range ttls {
		def, ok := s.Column(ttl.Column)
		if !ok {
			return nil, fmt.Errorf("ttl references unknown column %q", ttl.Column)
		}
		if def.Type != TypeDateTime {
			return nil, fmt.Errorf("ttl column %q must be DateTime", ttl.Column)
		}
	}

	return s, nil
}

// SchemaFromConfig compiles a table definition from the configuration into
// an engine schema.
func SchemaFromConfig(tc config.TableConfig) (*Schema, error) {
	columns := make([]ColumnDef, 0, len(tc.Columns))
	var ttls []TTLRule

	for _, cc := range tc.Columns {
		t, err := ParseColumnType(cc.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", cc.Name, err)
		}
		columns = append(columns, ColumnDef{Name: cc.Name, Type: t})

		if cc.TTL != nil {
			ttls = append(ttls, TTLRule{Column: cc.TTL.Column, Period: cc.TTL.Period, Target: cc.Name})
		}
	}

	if tc.TTL != nil {
		ttls = append(ttls, TTLRule{Column: tc.TTL.Column, Period: tc.TTL.Period})
	}

	var partition *PartitionExpr
	if tc.PartitionBy != nil {
		transform, err := ParsePartitionTransform(tc.PartitionBy.Transform)
		if err != nil {
			return nil, err
		}
		partition = &PartitionExpr{
			Column:    tc.PartitionBy.Column,
			Transform: transform,
			Modulo:    tc.PartitionBy.Modulo,
		}
	}

	skips := make([]SkipIndexDef, 0, len(tc.SkipIndexes))
	for _, ic := range tc.SkipIndexes {
		t, err := ParseSkipIndexType(ic.Type)
		if err != nil {
			return nil, fmt.Errorf("skip index %q: %w", ic.Name, err)
		}

		granularity := ic.Granularity
		if granularity <= 0 {
			granularity = 1
		}
		fpRate := ic.FalsePositiveRate
		if fpRate <= 0 || fpRate >= 1 {
			fpRate = 0.01
		}

		skips = append(skips, SkipIndexDef{
			Name:              ic.Name,
			Type:              t,
			Column:            ic.Column,
			Granularity:       granularity,
			FalsePositiveRate: fpRate,
		})
	}

	return NewSchema(columns, tc.OrderBy, partition, skips, ttls)
}

// Column returns the definition of the named column.
func (s *Schema) Column(name string) (ColumnDef, bool) {
	i, ok := s.byName[name]
	if !ok {
		return ColumnDef{}, false
	}
	return s.Columns[i], true
}

// IsSortKey reports whether name is part of the sort key.
func (s *Schema) IsSortKey(name string) bool {
	for _, k := range s.SortKey {
		if k == name {
			return true
		}
	}
	return false
}

// IsPartitionSource reports whether name is the partitioning source column.
func (s *Schema) IsPartitionSource(name string) bool {
	return s.Partition != nil && s.Partition.Column == name
}

// isProtected reports whether a column may never be dropped from a part
// even when all its values are defaults.
func (s *Schema) isProtected(name string) bool {
	return s.IsSortKey(name) || s.IsPartitionSource(name)
}

// ValidateBlock checks that a block carries exactly the schema's columns in
// schema order with matching types.
func (s *Schema) ValidateBlock(b *Block) error {
	cols := b.Columns()
	if len(cols) != len(s.Columns) {
		return logicErrorf("block has %d columns, schema has %d", len(cols), len(s.Columns))
	}
	for i, col := range cols {
		def := s.Columns[i]
		if col.Name != def.Name {
			return logicErrorf("block column %d is %q, schema expects %q", i, col.Name, def.Name)
		}
		if col.Type != def.Type {
			return logicErrorf("block column %q is %s, schema expects %s", col.Name, col.Type, def.Type)
		}
	}
	return nil
}
