package block_test

import (
	"bytes"
	"io"
	"iter"
	"testing"

	"github.com/glimt/exr/block"
	"github.com/glimt/exr/byteio"
	"github.com/glimt/exr/meta"
	testutils "github.com/glimt/exr/utils"
)

type orderedBlock struct {
	index int
	block *block.UncompressedBlock
}

func seqOf(pairs []orderedBlock) iter.Seq2[int, *block.UncompressedBlock] {
	return func(yield func(int, *block.UncompressedBlock) bool) {
		for _, p := range pairs {
			if !yield(p.index, p.block) {
				return
			}
		}
	}
}

// sampleFunc produces the value of one sample from its location, so block
// content is deterministic and position-dependent.
type sampleFunc func(layer int, channelName string, position meta.Vec2, x int) float32

func buildBlocks(headers []meta.Header, sample sampleFunc) []orderedBlock {
	var pairs []orderedBlock
	for index, blockIndex := range block.EnumerateOrderedHeaderBlockIndices(headers) {
		header := &headers[blockIndex.Layer]
		b := block.BlockFromLines(header.Channels, blockIndex, func(line block.LineRef) {
			channel := header.Channels.List[line.Location.Channel]
			values := make([]float32, line.Location.SampleCount)
			for x := range values {
				values[x] = sample(blockIndex.Layer, channel.Name, line.Location.Position, x)
			}
			block.WriteSamples(channel.SampleType, values, line.Samples)
		})
		pairs = append(pairs, orderedBlock{index: index, block: b})
	}
	return pairs
}

func writeImage(t *testing.T, headers []meta.Header, sample sampleFunc) []byte {
	t.Helper()

	var buf testutils.SeekableBuffer
	err := block.WriteChunksWith(&buf, headers, true, func(m *meta.MetaData, cw *block.ChunkWriter) error {
		writer := block.NewBlocksWriter(m, cw)
		return writer.CompressAllBlocksSequential(seqOf(buildBlocks(headers, sample)))
	})
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readAllBlocks(t *testing.T, data []byte, pedantic bool) (*meta.MetaData, []*block.UncompressedBlock) {
	t.Helper()

	reader, err := block.NewReader(bytes.NewReader(data), pedantic)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := reader.AllChunks(pedantic)
	if err != nil {
		t.Fatal(err)
	}

	var blocks []*block.UncompressedBlock
	err = block.DecompressSequential(chunks, pedantic, func(_ *meta.MetaData, b *block.UncompressedBlock) error {
		blocks = append(blocks, b)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return reader.MetaData(), blocks
}

// metadataSize measures where the offset tables of a file with the given
// headers begin.
func metadataSize(t *testing.T, headers []meta.Header) int64 {
	t.Helper()

	var buf testutils.SeekableBuffer
	w, err := byteio.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := meta.WriteValidatingTo(w, headers, true); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	return int64(buf.Len())
}

func readOffsetTables(t *testing.T, data []byte, headers []meta.Header) meta.OffsetTables {
	t.Helper()

	r, err := byteio.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.SkipTo(metadataSize(t, headers)); err != nil {
		t.Fatal(err)
	}
	tables, err := meta.ReadOffsetTables(r, headers)
	if err != nil {
		t.Fatal(err)
	}
	return tables
}

// drainChunks reads every chunk from a reader until io.EOF.
func drainChunks(t *testing.T, r block.ChunksReader) []*block.Chunk {
	t.Helper()

	var chunks []*block.Chunk
	for {
		chunk, err := r.ReadNextChunk()
		if err == io.EOF {
			return chunks
		}
		if err != nil {
			t.Fatal(err)
		}
		chunks = append(chunks, chunk)
	}
}
