package mergetree

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/lyrixx/ClickHouse/internal/compression"
	"github.com/lyrixx/ClickHouse/internal/utils"
)

// ColumnType enumerates the closed set of storable column types.
type ColumnType uint8

const (
	TypeInt64 ColumnType = iota
	TypeUInt64
	TypeFloat64
	TypeString
	TypeDateTime
	TypeBool
)

var columnTypeNames = [...]string{
	TypeInt64:    "Int64",
	TypeUInt64:   "UInt64",
	TypeFloat64:  "Float64",
	TypeString:   "String",
	TypeDateTime: "DateTime",
	TypeBool:     "Bool",
}

func (t ColumnType) String() string {
	if int(t) < len(columnTypeNames) {
		return columnTypeNames[t]
	}
	return fmt.Sprintf("ColumnType(%d)", uint8(t))
}

// ParseColumnType parses a type name as it appears in table definitions and
// columns.txt.
func ParseColumnType(s string) (ColumnType, error) {
	for t, name := range columnTypeNames {
		if s == name {
			return ColumnType(t), nil
		}
	}
	return 0, fmt.Errorf("unknown column type %q", s)
}

// Value is one typed cell. DateTime is carried as Unix seconds; numeric
// payloads share one word, so a Value never allocates.
type Value struct {
	typ ColumnType
	num uint64
	str string
}

func Int64Value(v int64) Value {
	return Value{typ: TypeInt64, num: uint64(v)}
}

func UInt64Value(v uint64) Value {
	return Value{typ: TypeUInt64, num: v}
}

func Float64Value(v float64) Value {
	return Value{typ: TypeFloat64, num: math.Float64bits(v)}
}

func StringValue(s string) Value {
	return Value{typ: TypeString, str: s}
}

func DateTimeValue(t time.Time) Value {
	return Value{typ: TypeDateTime, num: uint64(t.Unix())}
}

// DateTimeFromUnix builds a DateTime value from raw Unix seconds.
func DateTimeFromUnix(sec int64) Value {
	return Value{typ: TypeDateTime, num: uint64(sec)}
}

func BoolValue(b bool) Value {
	v := Value{typ: TypeBool}
	if b {
		v.num = 1
	}
	return v
}

// DefaultValue returns the per-type default: 0, 0, 0.0, "", epoch, false.
func DefaultValue(t ColumnType) Value {
	return Value{typ: t}
}

func (v Value) Type() ColumnType { return v.typ }

func (v Value) Int64() int64     { return int64(v.num) }
func (v Value) UInt64() uint64   { return v.num }
func (v Value) Float64() float64 { return math.Float64frombits(v.num) }
func (v Value) Bool() bool       { return v.num != 0 }
func (v Value) Unix() int64      { return int64(v.num) }

func (v Value) Time() time.Time {
	return time.Unix(int64(v.num), 0).UTC()
}

// StringData returns the payload of a String value.
func (v Value) StringData() string { return v.str }

// IsDefault reports whether v equals its type's default value. The check is
// on the stored bits, so -0.0 is not a Float64 default.
func (v Value) IsDefault() bool {
	return v.num == 0 && v.str == ""
}

// String renders the payload for diagnostics and partition IDs.
func (v Value) String() string {
	switch v.typ {
	case TypeInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case TypeUInt64:
		return strconv.FormatUint(v.num, 10)
	case TypeFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case TypeString:
		return v.str
	case TypeDateTime:
		return strconv.FormatInt(v.Unix(), 10)
	case TypeBool:
		if v.num != 0 {
			return "1"
		}
		return "0"
	}
	return ""
}

// Compare orders two values of the same type: -1, 0 or 1. Bool orders false
// before true; Float64 orders NaN after every other value so sort keys stay
// total.
func Compare(a, b Value) int {
	switch a.typ {
	case TypeInt64, TypeDateTime:
		return compareOrdered(a.Int64(), b.Int64())
	case TypeUInt64, TypeBool:
		return compareOrdered(a.num, b.num)
	case TypeFloat64:
		af, bf := a.Float64(), b.Float64()
		aNaN, bNaN := math.IsNaN(af), math.IsNaN(bf)
		switch {
		case aNaN && bNaN:
			return 0
		case aNaN:
			return 1
		case bNaN:
			return -1
		}
		return compareOrdered(af, bf)
	case TypeString:
		return compareOrdered(a.str, b.str)
	}
	return 0
}

func compareOrdered[T int64 | uint64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Less reports whether v orders before other. Both must share a type.
func (v Value) Less(other Value) bool {
	return Compare(v, other) < 0
}

// AppendBinary appends the fixed binary encoding used by the primary index,
// partition and min/max files: 8 bytes little-endian for numeric types, one
// byte for Bool, varint length plus raw bytes for String.
func (v Value) AppendBinary(dst []byte) []byte {
	switch v.typ {
	case TypeBool:
		return append(dst, byte(v.num))
	case TypeString:
		dst = compression.AppendVarint(dst, uint64(len(v.str)))
		return append(dst, v.str...)
	default:
		return binary.LittleEndian.AppendUint64(dst, v.num)
	}
}

// DecodeValue reads one binary-encoded value of type t from data, returning
// the value and the number of bytes consumed.
func DecodeValue(data []byte, t ColumnType) (Value, int, error) {
	switch t {
	case TypeBool:
		if len(data) < 1 {
			return Value{}, 0, fmt.Errorf("decode Bool: data too short")
		}
		return Value{typ: TypeBool, num: uint64(data[0] & 1)}, 1, nil
	case TypeString:
		length, n := compression.ReadVarint(data)
		if n <= 0 {
			return Value{}, 0, fmt.Errorf("decode String: bad length varint")
		}
		if uint64(len(data)-n) < length {
			return Value{}, 0, fmt.Errorf("decode String: data too short")
		}
		return Value{typ: TypeString, str: string(data[n : n+int(length)])}, n + int(length), nil
	default:
		if len(data) < 8 {
			return Value{}, 0, fmt.Errorf("decode %s: data too short", t)
		}
		return Value{typ: t, num: binary.LittleEndian.Uint64(data)}, 8, nil
	}
}

// CoerceValue converts a loosely typed input (JSON decoding, queue payloads)
// into a Value of type t. nil becomes the type's default; numbers arrive as
// float64 or json.Number depending on the decoder.
func CoerceValue(t ColumnType, raw any) (Value, error) {
	if raw == nil {
		return DefaultValue(t), nil
	}

	switch t {
	case TypeInt64:
		n, err := coerceInt64(raw)
		if err != nil {
			return Value{}, err
		}
		return Int64Value(n), nil

	case TypeUInt64:
		switch v := raw.(type) {
		case uint64:
			return UInt64Value(v), nil
		case json.Number:
			n, err := strconv.ParseUint(v.String(), 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("value %q is not a valid UInt64", v)
			}
			return UInt64Value(n), nil
		case string:
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("value %q is not a valid UInt64", v)
			}
			return UInt64Value(n), nil
		}
		n, err := coerceInt64(raw)
		if err != nil || n < 0 {
			return Value{}, fmt.Errorf("value %v is not a valid UInt64", raw)
		}
		return UInt64Value(uint64(n)), nil

	case TypeFloat64:
		switch v := raw.(type) {
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return Value{}, fmt.Errorf("value %q is not a valid Float64", v)
			}
			return Float64Value(f), nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Value{}, fmt.Errorf("value %q is not a valid Float64", v)
			}
			return Float64Value(f), nil
		}
		if f, ok := utils.ToFloat64(raw); ok {
			return Float64Value(f), nil
		}

	case TypeString:
		if s, ok := raw.(string); ok {
			return StringValue(s), nil
		}
		return Value{}, fmt.Errorf("value %v (%T) is not a String", raw, raw)

	case TypeDateTime:
		switch v := raw.(type) {
		case time.Time:
			return DateTimeValue(v), nil
		case string:
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				return DateTimeValue(ts), nil
			}
			if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
				return DateTimeFromUnix(sec), nil
			}
			return Value{}, fmt.Errorf("value %q is not a valid DateTime", v)
		}
		sec, err := coerceInt64(raw)
		if err != nil {
			return Value{}, fmt.Errorf("value %v is not a valid DateTime", raw)
		}
		return DateTimeFromUnix(sec), nil

	case TypeBool:
		switch v := raw.(type) {
		case bool:
			return BoolValue(v), nil
		case float64:
			if v == 0 || v == 1 {
				return BoolValue(v == 1), nil
			}
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return BoolValue(b), nil
			}
		}
		return Value{}, fmt.Errorf("value %v (%T) is not a Bool", raw, raw)
	}

	return Value{}, fmt.Errorf("value %v (%T) is not a valid %s", raw, raw, t)
}

func coerceInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || v < -9007199254740992 || v > 9007199254740992 {
			return 0, fmt.Errorf("value %v is not an exact integer", v)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("value %q is not a valid integer", v)
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not a valid integer", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("value %v (%T) is not an integer", raw, raw)
}
