package mergetree

import (
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"

	"github.com/lyrixx/ClickHouse/internal/compression"
)

// SkipIndexType identifies a data-skipping index implementation.
type SkipIndexType uint8

const (
	// SkipIndexMinMax summarizes each window with the column's min and max.
	SkipIndexMinMax SkipIndexType = iota
	// SkipIndexBloomFilter summarizes each window with a Bloom filter over
	// the column's value encodings.
	SkipIndexBloomFilter
)

func (t SkipIndexType) String() string {
	if t == SkipIndexBloomFilter {
		return "bloom_filter"
	}
	return "minmax"
}

// ParseSkipIndexType parses the index type names accepted in table
// configuration.
func ParseSkipIndexType(s string) (SkipIndexType, error) {
	switch s {
	case "minmax":
		return SkipIndexMinMax, nil
	case "bloom_filter":
		return SkipIndexBloomFilter, nil
	}
	return SkipIndexMinMax, fmt.Errorf("unknown skip index type %q", s)
}

// granuleSummarizer folds the values of one summary window and renders the
// window's summary row. flush resets the window.
type granuleSummarizer interface {
	observe(v Value)
	flush(dst []byte) []byte
}

type minmaxSummarizer struct {
	min, max    Value
	initialized bool
}

func (s *minmaxSummarizer) observe(v Value) {
	if !s.initialized {
		s.min, s.max = v, v
		s.initialized = true
		return
	}
	if v.Less(s.min) {
		s.min = v
	}
	if s.max.Less(v) {
		s.max = v
	}
}

func (s *minmaxSummarizer) flush(dst []byte) []byte {
	dst = s.min.AppendBinary(dst)
	dst = s.max.AppendBinary(dst)
	s.initialized = false
	return dst
}

// decodeMinMaxSummary decodes one minmax summary row, returning the bounds
// and the bytes consumed.
func decodeMinMaxSummary(data []byte, t ColumnType) (Value, Value, int, error) {
	min, n, err := DecodeValue(data, t)
	if err != nil {
		return Value{}, Value{}, 0, fmt.Errorf("minmax summary: %w", err)
	}
	max, m, err := DecodeValue(data[n:], t)
	if err != nil {
		return Value{}, Value{}, 0, fmt.Errorf("minmax summary: %w", err)
	}
	return min, max, n + m, nil
}

type bloomSummarizer struct {
	fpRate float64
	values [][]byte
}

func (s *bloomSummarizer) observe(v Value) {
	s.values = append(s.values, v.AppendBinary(nil))
}

func (s *bloomSummarizer) flush(dst []byte) []byte {
	n := uint64(len(s.values))
	if n == 0 {
		n = 1
	}
	bf := newBloomFilter(n, s.fpRate)
	for _, data := range s.values {
		bf.add(data)
	}
	s.values = s.values[:0]
	return bf.appendTo(dst)
}

// bloomFilter is a fixed-size Bloom filter probed with murmur3 double
// hashing: probe i tests bit (h1 + i*h2) mod m.
type bloomFilter struct {
	bits []byte
	m    uint64 // size in bits
	k    uint64 // number of probes
}

// newBloomFilter sizes a filter for n expected values at the given false
// positive rate, using m = -n*ln(p)/ln(2)^2 and k = (m/n)*ln(2).
func newBloomFilter(n uint64, fpRate float64) *bloomFilter {
	m := uint64(math.Ceil(-float64(n) * math.Log(fpRate) / (math.Ln2 * math.Ln2)))
	if m < 8 {
		m = 8
	}
	k := uint64(math.Ceil(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return &bloomFilter{bits: make([]byte, (m+7)/8), m: m, k: k}
}

func (bf *bloomFilter) add(data []byte) {
	h1, h2 := murmur3.Sum128(data)
	for i := uint64(0); i < bf.k; i++ {
		pos := (h1 + i*h2) % bf.m
		bf.bits[pos/8] |= 1 << (pos % 8)
	}
}

// mightContain reports false only when the value was definitely never added.
func (bf *bloomFilter) mightContain(data []byte) bool {
	h1, h2 := murmur3.Sum128(data)
	for i := uint64(0); i < bf.k; i++ {
		pos := (h1 + i*h2) % bf.m
		if bf.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

func (bf *bloomFilter) appendTo(dst []byte) []byte {
	dst = compression.AppendVarint(dst, bf.m)
	dst = compression.AppendVarint(dst, bf.k)
	return append(dst, bf.bits...)
}

// decodeBloomFilter decodes one bloom summary row, returning the filter and
// the bytes consumed.
func decodeBloomFilter(data []byte) (*bloomFilter, int, error) {
	m, n := compression.ReadVarint(data)
	if n <= 0 || m == 0 {
		return nil, 0, fmt.Errorf("bloom summary: bad bit count")
	}
	offset := n

	k, n := compression.ReadVarint(data[offset:])
	if n <= 0 || k == 0 {
		return nil, 0, fmt.Errorf("bloom summary: bad probe count")
	}
	offset += n

	size := int((m + 7) / 8)
	if len(data)-offset < size {
		return nil, 0, fmt.Errorf("bloom summary: data too short for %d bits", m)
	}
	bits := make([]byte, size)
	copy(bits, data[offset:offset+size])

	return &bloomFilter{bits: bits, m: m, k: k}, offset + size, nil
}

// skipIndexWriter feeds one configured skip index from the shared granule
// boundaries. Every summary row covers def.Granularity granules (the last
// may cover fewer) and lands in skp_idx_{name}.idx with its own mark.
type skipIndexWriter struct {
	def        SkipIndexDef
	summarizer granuleSummarizer
	stream     *compressedStream
	pending    uint64 // granules folded into the open window
}

func newSkipIndexWriter(def SkipIndexDef, stream *compressedStream) *skipIndexWriter {
	var s granuleSummarizer
	if def.Type == SkipIndexBloomFilter {
		s = &bloomSummarizer{fpRate: def.FalsePositiveRate}
	} else {
		s = &minmaxSummarizer{}
	}
	return &skipIndexWriter{def: def, summarizer: s, stream: stream}
}

// observeGranule folds rows [from, from+rows) of the indexed column into the
// open summary window.
func (w *skipIndexWriter) observeGranule(col *Column, from, rows int) error {
	for i := from; i < from+rows; i++ {
		w.summarizer.observe(col.Value(i))
	}
	w.pending++

	if w.pending >= uint64(w.def.Granularity) {
		return w.emitSummary()
	}
	return nil
}

func (w *skipIndexWriter) emitSummary() error {
	encoded := w.summarizer.flush(nil)
	if err := w.stream.addGranule(encoded, w.pending); err != nil {
		return fmt.Errorf("skip index %s: %w", w.def.Name, err)
	}
	w.pending = 0
	return nil
}

// close flushes a partial final window and the underlying frame buffer.
func (w *skipIndexWriter) close() error {
	if w.pending > 0 {
		if err := w.emitSummary(); err != nil {
			return err
		}
	}
	return w.stream.finish()
}

func skipIndexFileName(name string) string { return "skp_idx_" + name + ".idx" }

func skipIndexMarksFileName(name string) string { return "skp_idx_" + name + ".mrk2" }
