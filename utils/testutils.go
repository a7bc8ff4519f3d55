// Package testutils holds helpers shared by the package tests.
package testutils

import (
	"io"
	"math/rand"
	"os"
	"testing"
)

// TempDir creates a temporary directory and returns its name.
func TempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "exr")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// RandomData returns size deterministically random bytes for the seed.
func RandomData(seed int64, size int) []byte {
	rng := rand.New(rand.NewSource(seed))
	data := make([]byte, size)
	rng.Read(data)
	return data
}

// SeekableBuffer is an in-memory io.WriteSeeker/io.ReadSeeker, the test
// stand-in for a file. Seeking past the end and writing there fills the gap
// with zeros, like a sparse file would.
type SeekableBuffer struct {
	data []byte
	pos  int64
}

func (b *SeekableBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *SeekableBuffer) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	return n, nil
}

func (b *SeekableBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = offset
	case io.SeekCurrent:
		b.pos += offset
	case io.SeekEnd:
		b.pos = int64(len(b.data)) + offset
	}
	if b.pos < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return b.pos, nil
}

// Bytes returns the written content.
func (b *SeekableBuffer) Bytes() []byte { return b.data }

// Len returns the content size in bytes.
func (b *SeekableBuffer) Len() int { return len(b.data) }

// Rewind positions the buffer at its start, ready for reading back.
func (b *SeekableBuffer) Rewind() *SeekableBuffer {
	b.pos = 0
	return b
}
