package block

import (
	"io"
	"iter"

	"golang.org/x/sync/errgroup"

	"github.com/glimt/exr"
	"github.com/glimt/exr/byteio"
	"github.com/glimt/exr/compress"
	"github.com/glimt/exr/meta"
)

// ChunksWriter consumes compressed chunks, writing them to a file.
type ChunksWriter interface {
	// TotalChunksCount is the number of chunks the complete file will
	// contain.
	TotalChunksCount() int

	// WriteChunk writes one chunk. The index is the block's position in
	// increasing-y order within its header. Writing the same index twice
	// is an error, and the writer must not be used after any error.
	WriteChunk(indexInHeaderIncreasingY int, chunk *Chunk) error
}

// ChunkWriter lays out a file in two passes: the header section and a
// zeroed offset-table region first, then the chunks as they arrive, and
// finally the patched offset tables on completion.
type ChunkWriter struct {
	headerCount int
	bytes       *byteio.Writer

	offsetTableStart int64
	offsetTableEnd   int64

	// per header, indexed in increasing-y order; zero means unwritten
	chunkOffsets meta.OffsetTables
	chunkCount   int
}

// WriteChunksWith writes the header section, hands a chunk writer to the
// closure, and on success patches the offset tables and flushes the sink.
// The sink must support backward seeking.
func WriteChunksWith(sink io.WriteSeeker, headers []meta.Header, pedantic bool, writeChunks func(*meta.MetaData, *ChunkWriter) error) error {
	metaData, writer, err := newChunkWriterForBuffered(sink, headers, pedantic)
	if err != nil {
		return err
	}
	if err := writeChunks(metaData, writer); err != nil {
		return err
	}
	return writer.CompleteMetaData()
}

// newChunkWriterForBuffered writes the metadata and a zeroed offset-table
// placeholder, returning the writer parked at the first chunk position.
func newChunkWriterForBuffered(sink io.WriteSeeker, headers []meta.Header, pedantic bool) (*meta.MetaData, *ChunkWriter, error) {
	bytes, err := byteio.NewWriter(sink)
	if err != nil {
		return nil, nil, exr.WrapIo(err)
	}

	requirements, err := meta.WriteValidatingTo(bytes, headers, pedantic)
	if err != nil {
		return nil, nil, err
	}

	chunkOffsets := make(meta.OffsetTables, len(headers))
	chunkCount := 0
	for i := range headers {
		n := headers[i].ChunkCount()
		chunkOffsets[i] = make([]uint64, n)
		chunkCount += n
	}

	offsetTableStart := bytes.BytePosition()
	offsetTableEnd := offsetTableStart + int64(chunkCount)*8

	// reserve the region; it is patched after the last chunk
	if err := bytes.Zeros(offsetTableEnd - offsetTableStart); err != nil {
		return nil, nil, exr.WrapIo(err)
	}

	metaData := &meta.MetaData{Requirements: requirements, Headers: headers}
	writer := &ChunkWriter{
		headerCount:      len(headers),
		bytes:            bytes,
		offsetTableStart: offsetTableStart,
		offsetTableEnd:   offsetTableEnd,
		chunkOffsets:     chunkOffsets,
		chunkCount:       chunkCount,
	}
	return metaData, writer, nil
}

// TotalChunksCount is the number of chunks the complete file will contain.
func (w *ChunkWriter) TotalChunksCount() int { return w.chunkCount }

// WriteChunk records the current byte position in the chunk's offset slot
// and serializes the chunk.
func (w *ChunkWriter) WriteChunk(indexInHeaderIncreasingY int, chunk *Chunk) error {
	if chunk.LayerIndex < 0 || chunk.LayerIndex >= len(w.chunkOffsets) {
		return exr.Invalid("chunk layer index")
	}
	table := w.chunkOffsets[chunk.LayerIndex]

	if indexInHeaderIncreasingY < 0 || indexInHeaderIncreasingY >= len(table) {
		return exr.Invalid("too large chunk index")
	}
	if table[indexInHeaderIncreasingY] != 0 {
		return exr.Invalid("chunk at this index is already written")
	}

	table[indexInHeaderIncreasingY] = uint64(w.bytes.BytePosition())
	return chunk.Write(w.bytes, w.headerCount)
}

// CompleteMetaData verifies that every chunk was written, seeks back and
// patches the offset tables, and flushes the sink. Delayed write errors
// from the buffered sink surface here. The writer must not be used
// afterwards.
func (w *ChunkWriter) CompleteMetaData() error {
	for _, table := range w.chunkOffsets {
		for _, offset := range table {
			if offset == 0 {
				return exr.Invalid("some chunks are not written yet")
			}
		}
	}

	if err := w.bytes.SeekWriteTo(w.offsetTableStart); err != nil {
		return exr.WrapIo(err)
	}
	for _, table := range w.chunkOffsets {
		if err := w.bytes.U64Slice(table); err != nil {
			return exr.WrapIo(err)
		}
	}

	if err := w.bytes.Flush(); err != nil {
		return exr.WrapIo(err)
	}
	return nil
}

// OnProgressChunkWriter decorates a chunks writer with a progress callback:
// 0.0 before the first chunk, written/total after each one.
type OnProgressChunkWriter struct {
	inner      ChunksWriter
	written    int
	onProgress func(float64)
}

// OnProgressWriter wraps the writer with a progress callback.
func OnProgressWriter(inner ChunksWriter, onProgress func(float64)) *OnProgressChunkWriter {
	return &OnProgressChunkWriter{inner: inner, onProgress: onProgress}
}

func (w *OnProgressChunkWriter) TotalChunksCount() int { return w.inner.TotalChunksCount() }

func (w *OnProgressChunkWriter) WriteChunk(indexInHeaderIncreasingY int, chunk *Chunk) error {
	if w.written == 0 {
		w.onProgress(0.0)
	}
	if err := w.inner.WriteChunk(indexInHeaderIncreasingY, chunk); err != nil {
		return err
	}
	w.written++
	w.onProgress(float64(w.written) / float64(w.TotalChunksCount()))
	return nil
}

// BlocksWriter compresses uncompressed blocks and routes the resulting
// chunks to a chunks writer.
type BlocksWriter struct {
	metaData *meta.MetaData
	chunks   ChunksWriter
}

// NewBlocksWriter wraps a chunks writer.
func NewBlocksWriter(metaData *meta.MetaData, chunks ChunksWriter) *BlocksWriter {
	return &BlocksWriter{metaData: metaData, chunks: chunks}
}

// InnerChunksWriter returns the writer the compressed chunks go to.
func (w *BlocksWriter) InnerChunksWriter() ChunksWriter { return w.chunks }

// CompressBlock compresses a single block synchronously and writes it. The
// index must be the block's position in increasing-y order in its header.
func (w *BlocksWriter) CompressBlock(indexInHeaderIncreasingY int, block *UncompressedBlock) error {
	chunk, err := block.CompressToChunk(w.metaData.Headers)
	if err != nil {
		return err
	}
	return w.chunks.WriteChunk(indexInHeaderIncreasingY, chunk)
}

// CompressAllBlocksSequential compresses and writes the blocks one after
// another. The caller must supply them in the order each header's line
// order requires; obtain it from EnumerateOrderedHeaderBlockIndices.
func (w *BlocksWriter) CompressAllBlocksSequential(blocks iter.Seq2[int, *UncompressedBlock]) error {
	for indexInHeader, block := range blocks {
		if err := w.CompressBlock(indexInHeader, block); err != nil {
			return err
		}
	}
	return nil
}

// Compression keeps this many blocks in flight before the writer blocks
// the producer.
const maxParallelCompressions = 12

type compressedChunk struct {
	fileIndex     int
	indexInHeader int
	chunk         *Chunk
}

// CompressAllBlocksParallel compresses blocks on a bounded worker group and
// writes the chunks as they complete. When any header demands an explicit
// line order the results are reordered back into submission order first;
// otherwise they are written as they arrive, which the format permits.
// Fully uncompressed files degrade to the sequential path.
func (w *BlocksWriter) CompressAllBlocksParallel(blocks iter.Seq2[int, *UncompressedBlock]) error {
	hasCompression := false
	for i := range w.metaData.Headers {
		if w.metaData.Headers[i].Compression != compress.None {
			hasCompression = true
			break
		}
	}
	if !hasCompression {
		return w.CompressAllBlocksSequential(blocks)
	}

	sharedMetaData := w.metaData.Clone()
	sorted := newSortedBlocksWriter(w.metaData.Headers)

	results := make(chan compressedChunk, maxParallelCompressions)
	groupErr := make(chan error, 1)

	go func() {
		var group errgroup.Group
		group.SetLimit(maxParallelCompressions)

		fileIndex := 0
		for indexInHeader, block := range blocks {
			task := compressedChunk{fileIndex: fileIndex, indexInHeader: indexInHeader}
			fileIndex++
			blockToCompress := block

			group.Go(func() error {
				chunk, err := blockToCompress.CompressToChunk(sharedMetaData.Headers)
				if err != nil {
					return err
				}
				task.chunk = chunk
				results <- task
				return nil
			})
		}

		groupErr <- group.Wait()
		close(results)
	}()

	// chunks are written on this goroutine only; the offset tables are
	// mutated serially
	var writeErr error
	for result := range results {
		if writeErr != nil {
			continue // drain remaining workers
		}
		if sorted != nil {
			writeErr = sorted.writeOrStashChunk(result, w.chunks)
		} else {
			writeErr = w.chunks.WriteChunk(result.indexInHeader, result.chunk)
		}
	}

	if err := <-groupErr; err != nil {
		return err
	}
	return writeErr
}

// sortedBlocksWriter buffers chunks that complete out of order and drains
// every prefix of consecutive file indices as soon as its head arrives.
type sortedBlocksWriter struct {
	pendingChunks map[int]compressedChunk
	nextFileIndex int
}

// newSortedBlocksWriter returns nil when no header demands an explicit
// line order, in which case any chunk order is legal and reordering is
// skipped entirely.
func newSortedBlocksWriter(headers []meta.Header) *sortedBlocksWriter {
	requiresSorting := false
	for i := range headers {
		if headers[i].LineOrder != meta.UnspecifiedY {
			requiresSorting = true
			break
		}
	}
	if !requiresSorting {
		return nil
	}
	return &sortedBlocksWriter{pendingChunks: map[int]compressedChunk{}}
}

func (s *sortedBlocksWriter) writeOrStashChunk(chunk compressedChunk, writer ChunksWriter) error {
	s.pendingChunks[chunk.fileIndex] = chunk

	for {
		next, ok := s.pendingChunks[s.nextFileIndex]
		if !ok {
			return nil
		}
		delete(s.pendingChunks, s.nextFileIndex)
		if err := writer.WriteChunk(next.indexInHeader, next.chunk); err != nil {
			return err
		}
		s.nextFileIndex++
	}
}

// EnumerateOrderedHeaderBlockIndices yields the block index of every block
// that must be in the image, in the order the headers' line orders dictate,
// each paired with its index in increasing-y order within its header. The
// chunks written to a file must follow exactly this order, except where the
// line order is unspecified.
func EnumerateOrderedHeaderBlockIndices(headers []meta.Header) iter.Seq2[int, BlockIndex] {
	return func(yield func(int, BlockIndex) bool) {
		for layerIndex := range headers {
			header := &headers[layerIndex]
			for indexInHeader, tile := range header.EnumerateOrderedBlocks() {
				index, err := blockIndexForTile(header, layerIndex, tile)
				if err != nil {
					// the header enumerated this tile itself
					panic(err)
				}
				if !yield(indexInHeader, index) {
					return
				}
			}
		}
	}
}
