package compress

import (
	"github.com/glimt/exr"
)

func init() {
	register(RLE, rleCodec{})
}

const (
	minRunLength = 3
	maxRunLength = 127
)

// rleCodec shares the reorder stage with the deflate codecs and then encodes
// byte runs. A negative count byte announces literal bytes, a non-negative
// count n repeats the following byte n+1 times.
type rleCodec struct{}

func (rleCodec) compress(data []byte) ([]byte, error) {
	reordered := interleaveSplit(data)
	deltaEncode(reordered)
	return rleEncode(reordered), nil
}

func (rleCodec) decompress(data []byte, expectedSize int) ([]byte, error) {
	restored, err := rleDecode(data, expectedSize)
	if err != nil {
		return nil, err
	}
	deltaDecode(restored)
	return interleaveMerge(restored), nil
}

func rleEncode(in []byte) []byte {
	out := make([]byte, 0, len(in)+len(in)/maxRunLength+1)

	i := 0
	for i < len(in) {
		runEnd := i + 1
		for runEnd < len(in) && in[runEnd] == in[i] && runEnd-i < maxRunLength {
			runEnd++
		}
		if runEnd-i >= minRunLength {
			out = append(out, byte(runEnd-i-1), in[i])
			i = runEnd
			continue
		}

		litStart := i
		for i < len(in) && i-litStart < maxRunLength {
			if i+minRunLength <= len(in) && in[i] == in[i+1] && in[i] == in[i+2] {
				break
			}
			i++
		}
		out = append(out, byte(-int8(i-litStart)))
		out = append(out, in[litStart:i]...)
	}
	return out
}

func rleDecode(in []byte, expectedSize int) ([]byte, error) {
	out := make([]byte, 0, expectedSize)

	for i := 0; i < len(in); {
		count := int(int8(in[i]))
		i++
		if count < 0 {
			n := -count
			if i+n > len(in) || len(out)+n > expectedSize {
				return nil, exr.Invalid("rle chunk")
			}
			out = append(out, in[i:i+n]...)
			i += n
		} else {
			if i >= len(in) || len(out)+count+1 > expectedSize {
				return nil, exr.Invalid("rle chunk")
			}
			for j := 0; j <= count; j++ {
				out = append(out, in[i])
			}
			i++
		}
	}
	return out, nil
}
