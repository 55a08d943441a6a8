package compression

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Frame is the envelope every compressed stream is made of:
//
//	[checksum: 8 bytes LE, xxhash64 of everything after it]
//	[method:   1 byte, Algorithm]
//	[compressed size:   4 bytes LE]
//	[uncompressed size: 4 bytes LE]
//	[compressed payload]
//
// Frames are self-contained: a reader can decompress any frame knowing only
// its start offset, which is what index marks record.
const (
	frameChecksumSize = 8
	FrameHeaderSize   = frameChecksumSize + 1 + 4 + 4

	// maxFrameSize guards ReadFrame against corrupt size fields
	maxFrameSize = 1 << 30
)

// WriteFrame compresses payload with c and writes one frame to w.
// If compression does not shrink the payload the frame is stored with
// method None. Returns the number of bytes written.
func WriteFrame(w io.Writer, c Compressor, payload []byte) (int, error) {
	compressed, err := c.Compress(payload)
	if err != nil {
		return 0, fmt.Errorf("compress frame: %w", err)
	}

	method := c.Algorithm()
	if len(compressed) >= len(payload) {
		method = None
		compressed = payload
	}

	buf := make([]byte, FrameHeaderSize+len(compressed))
	buf[frameChecksumSize] = byte(method)
	binary.LittleEndian.PutUint32(buf[frameChecksumSize+1:], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(buf[frameChecksumSize+5:], uint32(len(payload)))
	copy(buf[FrameHeaderSize:], compressed)
	binary.LittleEndian.PutUint64(buf[:frameChecksumSize], xxhash.Sum64(buf[frameChecksumSize:]))

	n, err := w.Write(buf)
	if err != nil {
		return n, fmt.Errorf("write frame: %w", err)
	}

	return n, nil
}

// ReadFrame reads one frame from r, verifies its checksum and returns the
// decompressed payload plus the frame's total on-disk size. A clean end of
// stream returns io.EOF.
func ReadFrame(r io.Reader) ([]byte, int, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, 0, fmt.Errorf("read frame header: %w", err)
	}

	method := Algorithm(header[frameChecksumSize])
	compressedSize := binary.LittleEndian.Uint32(header[frameChecksumSize+1:])
	uncompressedSize := binary.LittleEndian.Uint32(header[frameChecksumSize+5:])

	if compressedSize > maxFrameSize || uncompressedSize > maxFrameSize {
		return nil, 0, fmt.Errorf("frame size out of range: compressed=%d uncompressed=%d", compressedSize, uncompressedSize)
	}

	body := make([]byte, compressedSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, 0, fmt.Errorf("read frame body: %w", err)
	}

	digest := xxhash.New()
	digest.Write(header[frameChecksumSize:])
	digest.Write(body)
	if sum := digest.Sum64(); sum != binary.LittleEndian.Uint64(header[:frameChecksumSize]) {
		return nil, 0, fmt.Errorf("frame checksum mismatch")
	}

	compressor, err := GetCompressor(method)
	if err != nil {
		return nil, 0, err
	}

	payload, err := compressor.Decompress(body, int(uncompressedSize))
	if err != nil {
		return nil, 0, err
	}

	return payload, FrameHeaderSize + int(compressedSize), nil
}
