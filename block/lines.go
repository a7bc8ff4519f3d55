package block

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"

	"github.com/glimt/exr/meta"
)

// LineIndex locates one channel's row of samples inside a block.
type LineIndex struct {
	Layer    int
	Channel  int
	Level    meta.Vec2
	Position meta.Vec2

	SampleCount int
}

// LineRef is a view into a block's bytes for one line of one channel.
type LineRef struct {
	Location LineIndex
	Samples  []byte
}

// linesInBlock walks the block layout: for each scan line top to bottom,
// for each channel in list order, one contiguous sample run.
func linesInBlock(index BlockIndex, channels meta.ChannelList, visit func(byteStart, byteEnd int, line LineIndex)) {
	offset := 0
	for y := 0; y < index.PixelSize.Y; y++ {
		for c, channel := range channels.List {
			byteCount := index.PixelSize.X * channel.SampleType.BytesPerSample()
			visit(offset, offset+byteCount, LineIndex{
				Layer:       index.Layer,
				Channel:     c,
				Level:       index.Level,
				Position:    meta.Vec2{X: index.PixelPosition.X, Y: index.PixelPosition.Y + y},
				SampleCount: index.PixelSize.X,
			})
			offset += byteCount
		}
	}
}

// Lines returns views over all channel rows in the block.
func (b *UncompressedBlock) Lines(channels meta.ChannelList) []LineRef {
	lines := make([]LineRef, 0, b.Index.PixelSize.Y*len(channels.List))
	linesInBlock(b.Index, channels, func(start, end int, line LineIndex) {
		lines = append(lines, LineRef{Location: line, Samples: b.Data[start:end]})
	})
	return lines
}

// CollectBlockDataFromLines assembles a block byte buffer by asking the
// callback to fill one line of samples after another.
func CollectBlockDataFromLines(channels meta.ChannelList, index BlockIndex, extractLine func(LineRef)) []byte {
	data := make([]byte, index.PixelSize.Area()*channels.BytesPerPixel)
	linesInBlock(index, channels, func(start, end int, line LineIndex) {
		extractLine(LineRef{Location: line, Samples: data[start:end]})
	})
	return data
}

// BlockFromLines creates an uncompressed block by requesting one line of
// samples after another.
func BlockFromLines(channels meta.ChannelList, index BlockIndex, extractLine func(LineRef)) *UncompressedBlock {
	return &UncompressedBlock{
		Index: index,
		Data:  CollectBlockDataFromLines(channels, index, extractLine),
	}
}

// ReadSamples decodes a line's samples into float32, converting from the
// channel's storage type.
func ReadSamples(sampleType meta.SampleType, raw []byte) []float32 {
	step := sampleType.BytesPerSample()
	out := make([]float32, len(raw)/step)
	for i := range out {
		chunk := raw[i*step:]
		switch sampleType {
		case meta.F16:
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(chunk)).Float32()
		case meta.F32:
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(chunk))
		case meta.U32:
			out[i] = float32(binary.LittleEndian.Uint32(chunk))
		}
	}
	return out
}

// WriteSamples encodes float32 samples into the channel's storage type.
// The destination must hold len(values) samples.
func WriteSamples(sampleType meta.SampleType, values []float32, dst []byte) {
	step := sampleType.BytesPerSample()
	for i, v := range values {
		chunk := dst[i*step:]
		switch sampleType {
		case meta.F16:
			binary.LittleEndian.PutUint16(chunk, float16.Fromfloat32(v).Bits())
		case meta.F32:
			binary.LittleEndian.PutUint32(chunk, math.Float32bits(v))
		case meta.U32:
			binary.LittleEndian.PutUint32(chunk, uint32(v))
		}
	}
}
