package mergetree

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/lyrixx/ClickHouse/internal/compression"
	"github.com/lyrixx/ClickHouse/internal/disk"
)

// Mark locates one granule inside a column's compressed file: the frame's
// byte offset in the file, the granule's byte offset inside the decompressed
// frame, and the granule's row count.
type Mark struct {
	FrameOffset   uint64
	InFrameOffset uint64
	Rows          uint64
}

// markSize is the on-disk size of one mark: three little-endian uint64.
const markSize = 24

func appendMark(dst []byte, m Mark) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, m.FrameOffset)
	dst = binary.LittleEndian.AppendUint64(dst, m.InFrameOffset)
	return binary.LittleEndian.AppendUint64(dst, m.Rows)
}

func encodeMarks(marks []Mark) []byte {
	buf := make([]byte, 0, len(marks)*markSize)
	for _, m := range marks {
		buf = appendMark(buf, m)
	}
	return buf
}

func decodeMarks(data []byte) ([]Mark, error) {
	if len(data)%markSize != 0 {
		return nil, fmt.Errorf("marks size %d is not a multiple of %d", len(data), markSize)
	}
	marks := make([]Mark, len(data)/markSize)
	for i := range marks {
		off := i * markSize
		marks[i] = Mark{
			FrameOffset:   binary.LittleEndian.Uint64(data[off:]),
			InFrameOffset: binary.LittleEndian.Uint64(data[off+8:]),
			Rows:          binary.LittleEndian.Uint64(data[off+16:]),
		}
	}
	return marks, nil
}

// hashedStream hashes and counts every byte on its way to the disk stream,
// making the file's checksum entry a pure function of its content regardless
// of write chunking.
type hashedStream struct {
	name   string
	file   disk.FileStream
	hasher hash.Hash
	size   uint64
}

func newHashedStream(name string, file disk.FileStream) *hashedStream {
	return &hashedStream{name: name, file: file, hasher: sha256.New()}
}

func (s *hashedStream) Write(p []byte) (int, error) {
	n, err := s.file.Write(p)
	if n > 0 {
		s.hasher.Write(p[:n])
		s.size += uint64(n)
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", s.name, err)
	}
	return n, nil
}

// finalize flushes and closes the stream and returns its checksum entry.
func (s *hashedStream) finalize(sync bool) (FileChecksum, error) {
	if err := s.file.Finalize(); err != nil {
		return FileChecksum{}, fmt.Errorf("finalize %s: %w", s.name, err)
	}
	if sync {
		if err := s.file.Sync(); err != nil {
			return FileChecksum{}, fmt.Errorf("sync %s: %w", s.name, err)
		}
	}
	if err := s.file.Close(); err != nil {
		return FileChecksum{}, fmt.Errorf("close %s: %w", s.name, err)
	}
	return FileChecksum{Size: s.size, Hash: hex.EncodeToString(s.hasher.Sum(nil))}, nil
}

func (s *hashedStream) abort() {
	_ = s.file.Close()
}

// compressedStream packs encoded granules into compressed frames. A granule
// never spans frames: the buffer is cut before appending when the granule
// would push it past maxFrameBytes, and after appending once it reaches
// minFrameBytes.
type compressedStream struct {
	out           *hashedStream
	comp          compression.Compressor
	minFrameBytes int
	maxFrameBytes int

	buf         []byte
	frameOffset uint64 // compressed bytes emitted so far
	markList    []Mark
}

func newCompressedStream(out *hashedStream, comp compression.Compressor, minFrameBytes, maxFrameBytes int) *compressedStream {
	return &compressedStream{
		out:           out,
		comp:          comp,
		minFrameBytes: minFrameBytes,
		maxFrameBytes: maxFrameBytes,
	}
}

// addGranule appends one encoded granule and records its mark.
func (s *compressedStream) addGranule(encoded []byte, rows uint64) error {
	if len(s.buf) > 0 && len(s.buf)+len(encoded) > s.maxFrameBytes {
		if err := s.cutFrame(); err != nil {
			return err
		}
	}

	s.markList = append(s.markList, Mark{
		FrameOffset:   s.frameOffset,
		InFrameOffset: uint64(len(s.buf)),
		Rows:          rows,
	})
	s.buf = append(s.buf, encoded...)

	if len(s.buf) >= s.minFrameBytes {
		return s.cutFrame()
	}
	return nil
}

func (s *compressedStream) cutFrame() error {
	if len(s.buf) == 0 {
		return nil
	}
	n, err := compression.WriteFrame(s.out, s.comp, s.buf)
	if err != nil {
		return err
	}
	s.frameOffset += uint64(n)
	s.buf = s.buf[:0]
	return nil
}

// finish flushes the open frame. The owner finalizes the underlying stream.
func (s *compressedStream) finish() error {
	return s.cutFrame()
}

func (s *compressedStream) marks() []Mark {
	return s.markList
}
