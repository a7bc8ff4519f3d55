// Package byteio provides the position-tracked byte streams the file codec
// reads from and writes to. All multi-byte values are little-endian.
package byteio

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
)

// Reading a small distance ahead through the buffer is cheaper than a seek
// that invalidates it.
const maxForwardSkip = 16 * 1024

// Reader wraps a seekable byte source with buffering, a one-byte lookahead
// and an absolute position counter.
type Reader struct {
	src io.ReadSeeker
	buf *bufio.Reader
	pos int64
}

// NewReader starts tracking at the source's current position.
func NewReader(src io.ReadSeeker) (*Reader, error) {
	pos, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	return &Reader{src: src, buf: bufio.NewReader(src), pos: pos}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.buf.Read(p)
	r.pos += int64(n)
	return n, err
}

// BytePosition returns the absolute position of the next byte to be read.
func (r *Reader) BytePosition() int64 { return r.pos }

// PeekU8 returns the next byte without consuming it. At the end of the
// stream it returns io.EOF.
func (r *Reader) PeekU8() (byte, error) {
	b, err := r.buf.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Skip discards n bytes.
func (r *Reader) Skip(n int64) error {
	discarded, err := r.buf.Discard(int(n))
	r.pos += int64(discarded)
	return err
}

// SkipTo positions the reader at the given absolute offset. Short forward
// distances are read through the buffer; everything else seeks.
func (r *Reader) SkipTo(offset int64) error {
	delta := offset - r.pos
	if delta == 0 {
		return nil
	}
	if delta > 0 && delta <= maxForwardSkip {
		return r.Skip(delta)
	}

	if _, err := r.src.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	r.buf.Reset(r.src)
	r.pos = offset
	return nil
}

// Bytes reads exactly n bytes into a fresh slice.
func (r *Reader) Bytes(n int) ([]byte, error) {
	p := make([]byte, n)
	if _, err := io.ReadFull(r, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Reader) U8() (byte, error) {
	b, err := r.buf.ReadByte()
	if err != nil {
		return 0, err
	}
	r.pos++
	return b, nil
}

func (r *Reader) I32() (int32, error) {
	var p [4]byte
	if _, err := io.ReadFull(r, p[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(p[:])), nil
}

func (r *Reader) U32() (uint32, error) {
	v, err := r.I32()
	return uint32(v), err
}

func (r *Reader) U64() (uint64, error) {
	var p [8]byte
	if _, err := io.ReadFull(r, p[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p[:]), nil
}

func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	return math.Float32frombits(v), err
}

// CString reads a null-terminated string of at most max bytes, not counting
// the terminator.
func (r *Reader) CString(max int) (string, error) {
	var s []byte
	for {
		b, err := r.U8()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(s), nil
		}
		if len(s) >= max {
			return "", io.ErrUnexpectedEOF
		}
		s = append(s, b)
	}
}
