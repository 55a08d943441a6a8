package mergetree

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/lyrixx/ClickHouse/internal/compression"
)

// Granule encodings are type-specific and self-contained: every granule
// starts with a varint row count and decodes without any neighbor context,
// so a reader can jump to any mark and decode exactly one granule.
//
//	Int64, UInt64, DateTime  first value raw, then zigzag varint deltas
//	Float64                  Gorilla XOR bit-packing
//	String                   per-granule dictionary, varint indices
//	Bool                     bitmap, 8 rows per byte
//
// A sparse granule stores the non-default row indexes (delta varints)
// followed by the dense encoding of the non-default values only.

// appendGranule appends the encoding of rows [from, from+rows) of col.
func appendGranule(dst []byte, col *Column, from, rows int, kind SerializationKind) []byte {
	if kind == SerializationSparse {
		return appendSparseGranule(dst, col, from, rows)
	}
	return appendDenseGranule(dst, col, from, rows)
}

func appendDenseGranule(dst []byte, col *Column, from, rows int) []byte {
	switch col.Type {
	case TypeInt64, TypeDateTime:
		return appendInt64Granule(dst, col.ints[from:from+rows])
	case TypeUInt64:
		return appendUint64Granule(dst, col.uints[from:from+rows])
	case TypeFloat64:
		return appendFloat64Granule(dst, col.floats[from:from+rows])
	case TypeString:
		return appendStringGranule(dst, col.strings[from:from+rows])
	case TypeBool:
		return appendBoolGranule(dst, col.bools[from:from+rows])
	}
	return dst
}

func appendSparseGranule(dst []byte, col *Column, from, rows int) []byte {
	dst = compression.AppendVarint(dst, uint64(rows))

	scratch := NewColumn(col.Name, col.Type)
	offsets := make([]int, 0, 8)
	for i := 0; i < rows; i++ {
		if !col.isDefaultAt(from + i) {
			offsets = append(offsets, i)
			scratch.appendFrom(col, from+i)
		}
	}

	dst = compression.AppendVarint(dst, uint64(len(offsets)))
	prev := 0
	for k, off := range offsets {
		if k == 0 {
			dst = compression.AppendVarint(dst, uint64(off))
		} else {
			dst = compression.AppendVarint(dst, uint64(off-prev))
		}
		prev = off
	}

	return appendDenseGranule(dst, scratch, 0, scratch.Len())
}

// decodeGranule decodes one granule from data, appending its rows to dst.
// It returns the number of rows decoded and the bytes consumed.
func decodeGranule(data []byte, dst *Column, kind SerializationKind) (int, int, error) {
	if kind == SerializationSparse {
		return decodeSparseGranule(data, dst)
	}
	return decodeDenseGranule(data, dst)
}

func decodeDenseGranule(data []byte, dst *Column) (int, int, error) {
	switch dst.Type {
	case TypeInt64, TypeDateTime:
		values, consumed, err := decodeInt64Granule(data)
		dst.ints = append(dst.ints, values...)
		return len(values), consumed, err
	case TypeUInt64:
		values, consumed, err := decodeUint64Granule(data)
		dst.uints = append(dst.uints, values...)
		return len(values), consumed, err
	case TypeFloat64:
		values, consumed, err := decodeFloat64Granule(data)
		dst.floats = append(dst.floats, values...)
		return len(values), consumed, err
	case TypeString:
		values, consumed, err := decodeStringGranule(data)
		dst.strings = append(dst.strings, values...)
		return len(values), consumed, err
	case TypeBool:
		values, consumed, err := decodeBoolGranule(data)
		dst.bools = append(dst.bools, values...)
		return len(values), consumed, err
	}
	return 0, 0, fmt.Errorf("decode granule: unsupported column type %d", dst.Type)
}

func decodeSparseGranule(data []byte, dst *Column) (int, int, error) {
	rows64, n := compression.ReadVarint(data)
	if n <= 0 {
		return 0, 0, fmt.Errorf("sparse granule: bad row count")
	}
	offset := n
	rows := int(rows64)

	count64, n := compression.ReadVarint(data[offset:])
	if n <= 0 {
		return 0, 0, fmt.Errorf("sparse granule: bad non-default count")
	}
	offset += n

	count := int(count64)
	if count > rows {
		return 0, 0, fmt.Errorf("sparse granule: %d non-defaults in %d rows", count, rows)
	}

	offsets := make([]int, count)
	prev := 0
	for k := 0; k < count; k++ {
		delta, n := compression.ReadVarint(data[offset:])
		if n <= 0 {
			return 0, 0, fmt.Errorf("sparse granule: bad offset varint at %d", k)
		}
		offset += n

		if k == 0 {
			prev = int(delta)
		} else {
			prev += int(delta)
		}
		if prev >= rows {
			return 0, 0, fmt.Errorf("sparse granule: offset %d out of %d rows", prev, rows)
		}
		offsets[k] = prev
	}

	scratch := NewColumn(dst.Name, dst.Type)
	denseRows, consumed, err := decodeDenseGranule(data[offset:], scratch)
	if err != nil {
		return 0, 0, err
	}
	if denseRows != count {
		return 0, 0, fmt.Errorf("sparse granule: dense payload has %d rows, expected %d", denseRows, count)
	}
	offset += consumed

	next := 0
	for i := 0; i < rows; i++ {
		if next < count && offsets[next] == i {
			dst.appendFrom(scratch, next)
			next++
		} else {
			dst.AppendDefault()
		}
	}

	return rows, offset, nil
}

func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

func appendInt64Granule(dst []byte, values []int64) []byte {
	dst = compression.AppendVarint(dst, uint64(len(values)))
	if len(values) == 0 {
		return dst
	}

	dst = binary.LittleEndian.AppendUint64(dst, uint64(values[0]))

	prev := values[0]
	for _, v := range values[1:] {
		dst = compression.AppendVarint(dst, zigzag(v-prev))
		prev = v
	}
	return dst
}

func decodeInt64Granule(data []byte) ([]int64, int, error) {
	rows64, n := compression.ReadVarint(data)
	if n <= 0 {
		return nil, 0, fmt.Errorf("int granule: bad row count")
	}
	offset := n
	rows := int(rows64)
	if rows == 0 {
		return nil, offset, nil
	}

	if offset+8 > len(data) {
		return nil, 0, fmt.Errorf("int granule: data too short for first value")
	}
	prev := int64(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8

	values := make([]int64, rows)
	values[0] = prev
	for i := 1; i < rows; i++ {
		z, n := compression.ReadVarint(data[offset:])
		if n <= 0 {
			return nil, 0, fmt.Errorf("int granule: bad delta varint at row %d", i)
		}
		offset += n
		prev += unzigzag(z)
		values[i] = prev
	}
	return values, offset, nil
}

// appendUint64Granule delta-encodes unsigned values. Deltas wrap through
// two's complement, so decode reverses them exactly.
func appendUint64Granule(dst []byte, values []uint64) []byte {
	dst = compression.AppendVarint(dst, uint64(len(values)))
	if len(values) == 0 {
		return dst
	}

	dst = binary.LittleEndian.AppendUint64(dst, values[0])

	prev := values[0]
	for _, v := range values[1:] {
		dst = compression.AppendVarint(dst, zigzag(int64(v-prev)))
		prev = v
	}
	return dst
}

func decodeUint64Granule(data []byte) ([]uint64, int, error) {
	rows64, n := compression.ReadVarint(data)
	if n <= 0 {
		return nil, 0, fmt.Errorf("uint granule: bad row count")
	}
	offset := n
	rows := int(rows64)
	if rows == 0 {
		return nil, offset, nil
	}

	if offset+8 > len(data) {
		return nil, 0, fmt.Errorf("uint granule: data too short for first value")
	}
	prev := binary.LittleEndian.Uint64(data[offset:])
	offset += 8

	values := make([]uint64, rows)
	values[0] = prev
	for i := 1; i < rows; i++ {
		z, n := compression.ReadVarint(data[offset:])
		if n <= 0 {
			return nil, 0, fmt.Errorf("uint granule: bad delta varint at row %d", i)
		}
		offset += n
		prev += uint64(unzigzag(z))
		values[i] = prev
	}
	return values, offset, nil
}

// appendFloat64Granule packs floats with the Gorilla XOR scheme: the first
// value raw, then per value either a single 0 bit (repeat), or the XOR's
// meaningful bits inside the previous window, or a new window header.
func appendFloat64Granule(dst []byte, values []float64) []byte {
	dst = compression.AppendVarint(dst, uint64(len(values)))
	if len(values) == 0 {
		return dst
	}

	firstBits := math.Float64bits(values[0])
	dst = binary.LittleEndian.AppendUint64(dst, firstBits)
	if len(values) == 1 {
		return dst
	}

	bw := compression.NewBitWriter(len(values) * 2)

	prevBits := firstBits
	prevLeading := uint8(64) // no window yet
	prevTrailing := uint8(0)
	prevMeaning := uint8(64)

	for _, v := range values[1:] {
		bits := math.Float64bits(v)
		xor := prevBits ^ bits

		if xor == 0 {
			bw.WriteBit(0)
			prevBits = bits
			continue
		}
		bw.WriteBit(1)

		leading := compression.LeadingZeros64(xor)
		trailing := compression.TrailingZeros64(xor)
		if leading > 63 {
			leading = 63
		}
		meaning := 64 - leading - trailing

		if prevMeaning < 64 && leading >= prevLeading && trailing >= prevTrailing {
			// Meaningful bits fit the previous window.
			bw.WriteBit(0)
			bw.WriteBits(xor>>prevTrailing, prevMeaning)
		} else {
			// New window: leading count and width, then the bits.
			bw.WriteBit(1)
			bw.WriteBits(uint64(leading), 6)
			bw.WriteBits(uint64(meaning-1), 6)
			bw.WriteBits(xor>>trailing, meaning)

			prevLeading = leading
			prevTrailing = trailing
			prevMeaning = meaning
		}
		prevBits = bits
	}

	return append(dst, bw.Bytes()...)
}

func decodeFloat64Granule(data []byte) ([]float64, int, error) {
	rows64, n := compression.ReadVarint(data)
	if n <= 0 {
		return nil, 0, fmt.Errorf("float granule: bad row count")
	}
	offset := n
	rows := int(rows64)
	if rows == 0 {
		return nil, offset, nil
	}

	if offset+8 > len(data) {
		return nil, 0, fmt.Errorf("float granule: data too short for first value")
	}
	prevBits := binary.LittleEndian.Uint64(data[offset:])
	offset += 8

	values := make([]float64, rows)
	values[0] = math.Float64frombits(prevBits)
	if rows == 1 {
		return values, offset, nil
	}

	br := compression.NewBitReader(data[offset:])
	bitsUsed := 0

	prevTrailing := uint8(0)
	prevMeaning := uint8(64)

	for i := 1; i < rows; i++ {
		ctrl, ok := br.ReadBit()
		if !ok {
			return nil, 0, fmt.Errorf("float granule: bitstream ends at row %d", i)
		}
		bitsUsed++

		if ctrl == 0 {
			values[i] = math.Float64frombits(prevBits)
			continue
		}

		windowCtrl, ok := br.ReadBit()
		if !ok {
			return nil, 0, fmt.Errorf("float granule: bitstream ends at row %d", i)
		}
		bitsUsed++

		var xor uint64
		if windowCtrl == 0 {
			meaningful, ok := br.ReadBits(prevMeaning)
			if !ok {
				return nil, 0, fmt.Errorf("float granule: bitstream ends at row %d", i)
			}
			bitsUsed += int(prevMeaning)
			xor = meaningful << prevTrailing
		} else {
			leadingRaw, ok := br.ReadBits(6)
			if !ok {
				return nil, 0, fmt.Errorf("float granule: bitstream ends at row %d", i)
			}
			meaningRaw, ok := br.ReadBits(6)
			if !ok {
				return nil, 0, fmt.Errorf("float granule: bitstream ends at row %d", i)
			}
			bitsUsed += 12

			meaning := uint8(meaningRaw) + 1
			trailing := 64 - uint8(leadingRaw) - meaning

			meaningful, ok := br.ReadBits(meaning)
			if !ok {
				return nil, 0, fmt.Errorf("float granule: bitstream ends at row %d", i)
			}
			bitsUsed += int(meaning)
			xor = meaningful << trailing

			prevTrailing = trailing
			prevMeaning = meaning
		}

		prevBits ^= xor
		values[i] = math.Float64frombits(prevBits)
	}

	return values, offset + (bitsUsed+7)/8, nil
}

// appendStringGranule dictionary-encodes one granule. Small dictionaries
// use a linear scan, upgrading to a map past 32 entries; consecutive
// repeats skip the lookup entirely.
func appendStringGranule(dst []byte, values []string) []byte {
	dst = compression.AppendVarint(dst, uint64(len(values)))
	if len(values) == 0 {
		return dst
	}

	const mapThreshold = 32

	dictList := make([]string, 0, 8)
	indices := make([]uint32, len(values))
	var dict map[string]uint32

	var lastStr string
	var lastIdx uint32
	lastValid := false

	for i, s := range values {
		if lastValid && s == lastStr {
			indices[i] = lastIdx
			continue
		}

		var idx uint32
		found := false
		if dict != nil {
			idx, found = dict[s]
		} else {
			for j, ds := range dictList {
				if ds == s {
					idx = uint32(j)
					found = true
					break
				}
			}
		}

		if !found {
			idx = uint32(len(dictList))
			dictList = append(dictList, s)

			if dict == nil && len(dictList) > mapThreshold {
				dict = make(map[string]uint32, len(dictList)*2)
				for j, ds := range dictList {
					dict[ds] = uint32(j)
				}
			} else if dict != nil {
				dict[s] = idx
			}
		}

		indices[i] = idx
		lastStr, lastIdx, lastValid = s, idx, true
	}

	dst = compression.AppendVarint(dst, uint64(len(dictList)))
	for _, s := range dictList {
		dst = compression.AppendVarint(dst, uint64(len(s)))
		dst = append(dst, s...)
	}
	for _, idx := range indices {
		dst = compression.AppendVarint(dst, uint64(idx))
	}
	return dst
}

func decodeStringGranule(data []byte) ([]string, int, error) {
	rows64, n := compression.ReadVarint(data)
	if n <= 0 {
		return nil, 0, fmt.Errorf("string granule: bad row count")
	}
	offset := n
	rows := int(rows64)
	if rows == 0 {
		return nil, offset, nil
	}

	dictSize, n := compression.ReadVarint(data[offset:])
	if n <= 0 {
		return nil, 0, fmt.Errorf("string granule: bad dictionary size")
	}
	offset += n

	dictList := make([]string, dictSize)
	for i := range dictList {
		length, n := compression.ReadVarint(data[offset:])
		if n <= 0 {
			return nil, 0, fmt.Errorf("string granule: bad dictionary entry length")
		}
		offset += n

		if uint64(len(data)-offset) < length {
			return nil, 0, fmt.Errorf("string granule: data too short for dictionary entry")
		}
		dictList[i] = string(data[offset : offset+int(length)])
		offset += int(length)
	}

	values := make([]string, rows)
	for i := 0; i < rows; i++ {
		idx, n := compression.ReadVarint(data[offset:])
		if n <= 0 {
			return nil, 0, fmt.Errorf("string granule: bad index varint at row %d", i)
		}
		offset += n

		if idx >= uint64(len(dictList)) {
			return nil, 0, fmt.Errorf("string granule: index %d out of dictionary range %d", idx, len(dictList))
		}
		values[i] = dictList[idx]
	}
	return values, offset, nil
}

func appendBoolGranule(dst []byte, values []bool) []byte {
	dst = compression.AppendVarint(dst, uint64(len(values)))

	bitmap := make([]byte, (len(values)+7)/8)
	for i, b := range values {
		if b {
			bitmap[i/8] |= 1 << (i % 8)
		}
	}
	return append(dst, bitmap...)
}

func decodeBoolGranule(data []byte) ([]bool, int, error) {
	rows64, n := compression.ReadVarint(data)
	if n <= 0 {
		return nil, 0, fmt.Errorf("bool granule: bad row count")
	}
	offset := n
	rows := int(rows64)
	if rows == 0 {
		return nil, offset, nil
	}

	bitmapSize := (rows + 7) / 8
	if len(data)-offset < bitmapSize {
		return nil, 0, fmt.Errorf("bool granule: data too short for bitmap")
	}

	values := make([]bool, rows)
	for i := 0; i < rows; i++ {
		values[i] = data[offset+i/8]&(1<<(i%8)) != 0
	}
	return values, offset + bitmapSize, nil
}
