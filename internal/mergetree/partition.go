package mergetree

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// PartitionTransform maps a source column value to the partition key value.
type PartitionTransform uint8

const (
	// TransformIdentity partitions by the raw column value.
	TransformIdentity PartitionTransform = iota
	// TransformMonth partitions a DateTime column into YYYYMM buckets.
	TransformMonth
	// TransformDay partitions a DateTime column into YYYYMMDD buckets.
	TransformDay
	// TransformModulo partitions an integer column into value-mod-N buckets.
	TransformModulo
)

func (t PartitionTransform) String() string {
	switch t {
	case TransformIdentity:
		return "identity"
	case TransformMonth:
		return "month"
	case TransformDay:
		return "day"
	case TransformModulo:
		return "modulo"
	}
	return "unknown"
}

// ParsePartitionTransform parses the transform names accepted in table
// configuration.
func ParsePartitionTransform(s string) (PartitionTransform, error) {
	switch s {
	case "identity":
		return TransformIdentity, nil
	case "month":
		return TransformMonth, nil
	case "day":
		return TransformDay, nil
	case "modulo":
		return TransformModulo, nil
	}
	return TransformIdentity, fmt.Errorf("unknown partition transform %q", s)
}

func (t PartitionTransform) validFor(ct ColumnType, modulo uint64) error {
	switch t {
	case TransformIdentity:
		return nil
	case TransformMonth, TransformDay:
		if ct != TypeDateTime {
			return fmt.Errorf("partition transform %q requires a DateTime column, got %s", t.String(), ct)
		}
		return nil
	case TransformModulo:
		if ct != TypeInt64 && ct != TypeUInt64 {
			return fmt.Errorf("partition transform modulo requires an integer column, got %s", ct)
		}
		if modulo == 0 {
			return fmt.Errorf("partition transform modulo requires a positive modulus")
		}
		return nil
	}
	return fmt.Errorf("unknown partition transform %d", t)
}

// ValueFor computes the partition key value for one source column value.
func (e *PartitionExpr) ValueFor(v Value) Value {
	switch e.Transform {
	case TransformMonth:
		t := v.Time()
		return UInt64Value(uint64(t.Year())*100 + uint64(t.Month()))
	case TransformDay:
		t := v.Time()
		return UInt64Value(uint64(t.Year())*10000 + uint64(t.Month())*100 + uint64(t.Day()))
	case TransformModulo:
		if v.Type() == TypeUInt64 {
			return UInt64Value(v.UInt64() % e.Modulo)
		}
		r := v.Int64() % int64(e.Modulo)
		if r < 0 {
			r += int64(e.Modulo)
		}
		return UInt64Value(uint64(r))
	}
	return v
}

// ValueType is the type of the partition key value given the source column
// type. The month, day and modulo transforms always produce UInt64.
func (e *PartitionExpr) ValueType(source ColumnType) ColumnType {
	if e.Transform == TransformIdentity {
		return source
	}
	return TypeUInt64
}

// PartitionIDOf renders the directory-name-safe partition identifier for a
// partition key value. A nil expression always yields "all". The identifier
// never contains '_' since part names use it as the field separator.
func PartitionIDOf(expr *PartitionExpr, v Value) string {
	if expr == nil {
		return "all"
	}
	if expr.Transform != TransformIdentity {
		return strconv.FormatUint(v.UInt64(), 10)
	}

	switch v.Type() {
	case TypeInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case TypeUInt64:
		return strconv.FormatUint(v.UInt64(), 10)
	case TypeDateTime:
		return strconv.FormatInt(v.Unix(), 10)
	case TypeBool:
		if v.Bool() {
			return "1"
		}
		return "0"
	case TypeFloat64:
		return safePartitionID(strconv.FormatFloat(v.Float64(), 'g', -1, 64))
	}
	return safePartitionID(v.StringData())
}

// safePartitionID passes short alphanumeric renderings through unchanged and
// replaces anything else with a sha256 prefix.
func safePartitionID(s string) string {
	if len(s) > 0 && len(s) <= 64 {
		safe := true
		for i := 0; i < len(s); i++ {
			c := s[i]
			if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-') {
				safe = false
				break
			}
		}
		if safe {
			return s
		}
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// MinMaxIndex tracks the minimum and maximum value of one partition source
// column across every row written into a part. It stays uninitialized for an
// empty part; a non-empty part with an uninitialized index is a fatal
// internal-consistency violation caught at finalize.
type MinMaxIndex struct {
	Column string

	typ         ColumnType
	min, max    Value
	initialized bool
}

func newMinMaxIndex(column string, t ColumnType) *MinMaxIndex {
	return &MinMaxIndex{Column: column, typ: t}
}

// Update folds one value into the running bounds.
func (m *MinMaxIndex) Update(v Value) {
	if !m.initialized {
		m.min, m.max = v, v
		m.initialized = true
		return
	}
	if v.Less(m.min) {
		m.min = v
	}
	if m.max.Less(v) {
		m.max = v
	}
}

func (m *MinMaxIndex) Initialized() bool { return m.initialized }

func (m *MinMaxIndex) Min() Value { return m.min }

func (m *MinMaxIndex) Max() Value { return m.max }

func (m *MinMaxIndex) fileName() string {
	return "minmax_" + m.Column + ".idx"
}

func (m *MinMaxIndex) appendBinary(dst []byte) []byte {
	dst = m.min.AppendBinary(dst)
	return m.max.AppendBinary(dst)
}

// decodeMinMax parses a minmax index file back into its bounds.
func decodeMinMax(data []byte, column string, t ColumnType) (*MinMaxIndex, error) {
	min, n, err := DecodeValue(data, t)
	if err != nil {
		return nil, fmt.Errorf("minmax %s: %w", column, err)
	}
	max, _, err := DecodeValue(data[n:], t)
	if err != nil {
		return nil, fmt.Errorf("minmax %s: %w", column, err)
	}
	return &MinMaxIndex{Column: column, typ: t, min: min, max: max, initialized: true}, nil
}
