package byteio

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
)

// Writer wraps a seekable byte sink with buffering and an absolute position
// counter. SeekWriteTo allows patching earlier regions of the output, which
// the chunk writer needs for its offset tables.
type Writer struct {
	dst io.WriteSeeker
	buf *bufio.Writer
	pos int64
}

// NewWriter starts tracking at the sink's current position.
func NewWriter(dst io.WriteSeeker) (*Writer, error) {
	pos, err := dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	return &Writer{dst: dst, buf: bufio.NewWriter(dst), pos: pos}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	w.pos += int64(n)
	return n, err
}

// BytePosition returns the absolute position of the next byte to be written.
func (w *Writer) BytePosition() int64 { return w.pos }

// SeekWriteTo flushes buffered bytes and repositions the sink at the given
// absolute offset.
func (w *Writer) SeekWriteTo(offset int64) error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if _, err := w.dst.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	w.pos = offset
	return nil
}

// Flush pushes all buffered bytes to the sink. Delayed write errors from the
// buffer surface here.
func (w *Writer) Flush() error { return w.buf.Flush() }

func (w *Writer) U8(v byte) error {
	err := w.buf.WriteByte(v)
	if err == nil {
		w.pos++
	}
	return err
}

func (w *Writer) I32(v int32) error {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], uint32(v))
	_, err := w.Write(p[:])
	return err
}

func (w *Writer) U32(v uint32) error { return w.I32(int32(v)) }

func (w *Writer) U64(v uint64) error {
	var p [8]byte
	binary.LittleEndian.PutUint64(p[:], v)
	_, err := w.Write(p[:])
	return err
}

func (w *Writer) F32(v float32) error { return w.U32(math.Float32bits(v)) }

// U64Slice writes the values back to back, the layout of an offset table.
func (w *Writer) U64Slice(values []uint64) error {
	for _, v := range values {
		if err := w.U64(v); err != nil {
			return err
		}
	}
	return nil
}

// CString writes the string followed by a null terminator.
func (w *Writer) CString(s string) error {
	if _, err := w.Write([]byte(s)); err != nil {
		return err
	}
	return w.U8(0)
}

// Zeros writes n zero bytes, reserving a region to be patched later.
func (w *Writer) Zeros(n int64) error {
	var block [512]byte
	for n > 0 {
		step := n
		if step > int64(len(block)) {
			step = int64(len(block))
		}
		if _, err := w.Write(block[:step]); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
