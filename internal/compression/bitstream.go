package compression

import "math/bits"

// BitWriter packs bits MSB-first into a growing byte buffer. The Gorilla
// float encoding is built on it.
type BitWriter struct {
	out []byte
	acc uint64 // pending bits, right-aligned
	n   uint8  // pending bit count, always < 8 between calls
}

// NewBitWriter returns a writer with capacity bytes preallocated.
func NewBitWriter(capacity int) *BitWriter {
	return &BitWriter{out: make([]byte, 0, capacity)}
}

// WriteBit appends one bit; any nonzero value counts as 1.
func (w *BitWriter) WriteBit(bit byte) {
	if bit != 0 {
		bit = 1
	}
	w.WriteBits(uint64(bit), 1)
}

// WriteBits appends the low nbits of val, most significant bit first,
// handling up to 64 bits per call.
func (w *BitWriter) WriteBits(val uint64, nbits uint8) {
	if nbits > 32 {
		w.WriteBits(val>>32, nbits-32)
		val &= 0xFFFFFFFF
		nbits = 32
	}
	if nbits == 0 {
		return
	}

	// At most 7 pending bits plus 32 incoming fit the accumulator.
	acc := w.acc<<nbits | val&(1<<nbits-1)
	n := w.n + nbits
	for n >= 8 {
		n -= 8
		w.out = append(w.out, byte(acc>>n))
	}
	w.acc = acc & (1<<n - 1)
	w.n = n
}

// Bytes returns the stream written so far, the last partial byte padded
// with zero bits.
func (w *BitWriter) Bytes() []byte {
	if w.n == 0 {
		return w.out
	}
	return append(w.out, byte(w.acc<<(8-w.n)))
}

// BitReader walks a byte buffer bit by bit, MSB first.
type BitReader struct {
	data []byte
	pos  int // absolute bit offset
}

// NewBitReader returns a reader over data.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// ReadBit returns the next bit, or ok=false once the stream is exhausted.
func (r *BitReader) ReadBit() (byte, bool) {
	if r.pos >= len(r.data)*8 {
		return 0, false
	}
	bit := r.data[r.pos>>3] >> (7 - r.pos&7) & 1
	r.pos++
	return bit, true
}

// ReadBits returns the next nbits bits (up to 64) right-aligned in a
// uint64. It fails without consuming anything when fewer than nbits
// remain.
func (r *BitReader) ReadBits(nbits uint8) (uint64, bool) {
	if r.pos+int(nbits) > len(r.data)*8 {
		return 0, false
	}

	var val uint64
	for remaining := nbits; remaining > 0; {
		avail := uint8(8 - r.pos&7)
		take := avail
		if remaining < take {
			take = remaining
		}
		chunk := r.data[r.pos>>3] >> (avail - take)
		if take < 8 {
			chunk &= 1<<take - 1
		}
		val = val<<take | uint64(chunk)
		r.pos += int(take)
		remaining -= take
	}
	return val, true
}

// LeadingZeros64 counts leading zero bits in x.
func LeadingZeros64(x uint64) uint8 {
	return uint8(bits.LeadingZeros64(x))
}

// TrailingZeros64 counts trailing zero bits in x.
func TrailingZeros64(x uint64) uint8 {
	return uint8(bits.TrailingZeros64(x))
}
