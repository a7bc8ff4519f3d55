package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/glimt/exr"
)

func init() {
	// ZIP and ZIPS differ only in how many scan lines one chunk covers.
	register(ZIP, zipCodec{})
	register(ZIPS, zipCodec{})
}

// zipCodec reorders and delta-codes the section bytes, then deflates them.
type zipCodec struct{}

func (zipCodec) compress(data []byte) ([]byte, error) {
	reordered := interleaveSplit(data)
	deltaEncode(reordered)

	var buf bytes.Buffer
	enc := zlib.NewWriter(&buf)
	if _, err := enc.Write(reordered); err != nil {
		return nil, exr.WrapIo(err)
	}
	if err := enc.Close(); err != nil {
		return nil, exr.WrapIo(err)
	}
	return buf.Bytes(), nil
}

func (zipCodec) decompress(data []byte, expectedSize int) ([]byte, error) {
	dec, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, exr.Invalidf("zip chunk: %v", err)
	}
	defer dec.Close()

	restored := make([]byte, 0, expectedSize)
	buf := bytes.NewBuffer(restored)
	// The limit guards against sections that inflate beyond their declared
	// pixel size; the final adler check runs when the stream is drained.
	if _, err := io.Copy(buf, io.LimitReader(dec, int64(expectedSize)+1)); err != nil {
		return nil, exr.Invalidf("zip chunk: %v", err)
	}

	out := buf.Bytes()
	deltaDecode(out)
	return interleaveMerge(out), nil
}
