package compression

import "encoding/binary"

// AppendVarint appends v to buf in LEB128 form, least significant
// 7-bit group first. The granule encoders use it for row counts,
// lengths and zigzag deltas.
func AppendVarint(buf []byte, v uint64) []byte {
	return binary.AppendUvarint(buf, v)
}

// ReadVarint decodes one LEB128 value from the front of data. It returns
// the value and the number of bytes consumed; n <= 0 reports truncated
// or overlong input.
func ReadVarint(data []byte) (uint64, int) {
	return binary.Uvarint(data)
}
