// Package compress implements the per-chunk pixel codecs of the file format.
//
// A codec works on one image section at a time: the raw bytes of a single
// block, already laid out line by line. Codecs never interpret the pixel
// layout beyond byte level; sections that would grow under compression are
// stored raw instead, which the decoder detects by the section size.
package compress

import (
	"fmt"

	"github.com/glimt/exr"
)

// Compression identifies the codec a header declares for its chunks.
type Compression uint8

const (
	None  Compression = 0
	RLE   Compression = 1
	ZIPS  Compression = 2
	ZIP   Compression = 3
	PIZ   Compression = 4
	PXR24 Compression = 5
	B44   Compression = 6
	B44A  Compression = 7
	DWAA  Compression = 8
	DWAB  Compression = 9
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case RLE:
		return "rle"
	case ZIPS:
		return "zips"
	case ZIP:
		return "zip"
	case PIZ:
		return "piz"
	case PXR24:
		return "pxr24"
	case B44:
		return "b44"
	case B44A:
		return "b44a"
	case DWAA:
		return "dwaa"
	case DWAB:
		return "dwab"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ScanLinesPerBlock returns how many scan lines one chunk of a scan-line
// image covers under this codec.
func (c Compression) ScanLinesPerBlock() int {
	switch c {
	case None, RLE, ZIPS:
		return 1
	case ZIP, PXR24:
		return 16
	case PIZ, B44, B44A, DWAA:
		return 32
	case DWAB:
		return 256
	}
	return 1
}

// MayLoseData reports whether decompressing a compressed section can yield
// bytes different from the original input.
func (c Compression) MayLoseData() bool {
	switch c {
	case PXR24, B44, B44A, DWAA, DWAB:
		return true
	}
	return false
}

// SupportsDeepData reports whether the codec is allowed in deep parts.
func (c Compression) SupportsDeepData() bool {
	switch c {
	case None, RLE, ZIPS:
		return true
	}
	return false
}

// codec transforms the raw bytes of one image section. Implementations
// register themselves at init time, in the manner of a pluggable
// implementation table.
type codec interface {
	compress(data []byte) ([]byte, error)
	decompress(data []byte, expectedSize int) ([]byte, error)
}

var registry = map[Compression]codec{}

func register(c Compression, impl codec) {
	registry[c] = impl
}

// CompressImageSection compresses the bytes of one block. If the codec output
// would be at least as large as the input, the input is stored raw; the
// decompressor recognizes that case by size.
func (c Compression) CompressImageSection(data []byte) ([]byte, error) {
	if c == None {
		return data, nil
	}

	impl, ok := registry[c]
	if !ok {
		return nil, exr.NotSupported(fmt.Sprintf("compressing with %v", c))
	}

	compressed, err := impl.compress(data)
	if err != nil {
		return nil, err
	}
	if len(compressed) >= len(data) {
		return data, nil
	}
	return compressed, nil
}

// DecompressImageSection restores the bytes of one block. expectedSize is the
// uncompressed byte count the header geometry dictates for the section; a
// section of exactly that size is treated as stored raw. In pedantic mode the
// codec's internal structural checks are not skipped on short sections.
func (c Compression) DecompressImageSection(data []byte, expectedSize int, pedantic bool) ([]byte, error) {
	if len(data) == expectedSize {
		return data, nil
	}
	if c == None {
		return nil, exr.Invalid("uncompressed chunk has wrong size")
	}
	if len(data) > expectedSize {
		return nil, exr.Invalid("compressed chunk is larger than uncompressed size")
	}

	impl, ok := registry[c]
	if !ok {
		return nil, exr.NotSupported(fmt.Sprintf("decompressing with %v", c))
	}

	restored, err := impl.decompress(data, expectedSize)
	if err != nil {
		return nil, err
	}
	if len(restored) != expectedSize {
		if pedantic || len(restored) > expectedSize {
			return nil, exr.Invalidf("decompressed size %d, expected %d", len(restored), expectedSize)
		}
		// tolerate short sections from sloppy encoders by zero-padding
		padded := make([]byte, expectedSize)
		copy(padded, restored)
		restored = padded
	}
	return restored, nil
}
