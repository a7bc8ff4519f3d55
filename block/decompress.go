package block

import (
	"io"
	"log"
	"runtime"

	"github.com/glimt/exr/compress"
	"github.com/glimt/exr/meta"
)

// SequentialBlockDecompressor reads chunks from the inner reader and
// decompresses each one on the calling goroutine, preserving order.
type SequentialBlockDecompressor struct {
	chunks   ChunksReader
	pedantic bool
}

// SequentialDecompressor prepares single-threaded decompression with less
// memory overhead than the parallel driver.
func SequentialDecompressor(chunks ChunksReader, pedantic bool) *SequentialBlockDecompressor {
	return &SequentialBlockDecompressor{chunks: chunks, pedantic: pedantic}
}

// MetaData returns the decoded file metadata.
func (d *SequentialBlockDecompressor) MetaData() *meta.MetaData { return d.chunks.MetaData() }

// RemainingBlocks is how many blocks this decompressor can still produce.
func (d *SequentialBlockDecompressor) RemainingBlocks() int { return d.chunks.RemainingChunks() }

// DecompressNextBlock reads and decompresses one block, or returns io.EOF.
func (d *SequentialBlockDecompressor) DecompressNextBlock() (*UncompressedBlock, error) {
	chunk, err := d.chunks.ReadNextChunk()
	if err != nil {
		return nil, err
	}
	return DecompressChunk(chunk, d.chunks.MetaData(), d.pedantic)
}

type decompressTask struct {
	chunk *Chunk
}

type decompressResult struct {
	block *UncompressedBlock
	err   error
}

// ParallelBlockDecompressor decompresses chunks on a pool of worker
// goroutines. The first call to DecompressNextBlock fills the pool with
// work; blocks are returned in completion order, so consumers must key
// results by BlockIndex. Read errors surface immediately on the calling
// goroutine, codec errors on the next call.
type ParallelBlockDecompressor struct {
	chunks   ChunksReader
	pedantic bool

	// workers share an immutable metadata snapshot
	sharedMetaData *meta.MetaData

	workerCount int
	maxParallel int
	inFlight    int

	tasks   chan decompressTask
	results chan decompressResult
	closed  bool
}

// NewParallelBlockDecompressor prepares decompression on workerCount
// goroutines, one per logical CPU if workerCount is zero or negative. No
// work is spawned until the first call to DecompressNextBlock.
func NewParallelBlockDecompressor(chunks ChunksReader, pedantic bool, workerCount int) *ParallelBlockDecompressor {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if workerCount < 1 {
		workerCount = 1
	}

	// ca. one block in flight per worker at all times
	maxParallel := min(workerCount, chunks.ExpectedChunkCount()) + 2

	return &ParallelBlockDecompressor{
		chunks:         chunks,
		pedantic:       pedantic,
		sharedMetaData: chunks.MetaData().Clone(),
		workerCount:    workerCount,
		maxParallel:    maxParallel,
	}
}

// MetaData returns the decoded file metadata.
func (d *ParallelBlockDecompressor) MetaData() *meta.MetaData { return d.chunks.MetaData() }

// RemainingBlocks is how many blocks this decompressor can still produce,
// counting chunks already handed to workers.
func (d *ParallelBlockDecompressor) RemainingBlocks() int {
	return d.chunks.RemainingChunks() + d.inFlight
}

func (d *ParallelBlockDecompressor) start() {
	d.tasks = make(chan decompressTask, d.maxParallel)
	d.results = make(chan decompressResult, d.maxParallel)

	for i := 0; i < d.workerCount; i++ {
		go func() {
			// a panic in here takes the process down with a diagnostic,
			// which beats blocking the receiver forever
			for task := range d.tasks {
				block, err := DecompressChunk(task.chunk, d.sharedMetaData, d.pedantic)
				d.results <- decompressResult{block: block, err: err}
			}
		}()
	}
}

// DecompressNextBlock fills the worker pool with chunks up to the in-flight
// bound, then returns the first result that finishes, or io.EOF.
func (d *ParallelBlockDecompressor) DecompressNextBlock() (*UncompressedBlock, error) {
	if d.tasks == nil {
		d.start()
	}

	for d.inFlight < d.maxParallel {
		chunk, err := d.chunks.ReadNextChunk()
		if err == io.EOF {
			break
		}
		if err != nil {
			// surface read errors now, not from a worker later
			return nil, err
		}
		d.tasks <- decompressTask{chunk: chunk}
		d.inFlight++
	}

	if d.inFlight == 0 {
		d.Close()
		return nil, io.EOF
	}

	result := <-d.results
	d.inFlight--
	return result.block, result.err
}

// Close stops feeding the workers. Chunks already in flight are finished
// and discarded in the background; their errors can no longer surface and
// are logged instead.
func (d *ParallelBlockDecompressor) Close() {
	if d.closed || d.tasks == nil {
		d.closed = true
		return
	}
	d.closed = true
	close(d.tasks)

	inFlight := d.inFlight
	d.inFlight = 0
	go func() {
		for i := 0; i < inFlight; i++ {
			if result := <-d.results; result.err != nil {
				log.Println("exr: discarding decompression error after close:", result.err)
			}
		}
	}()
}

// DecompressSequential drives the sequential decompressor to the end,
// passing each block to insertBlock in chunk order.
func DecompressSequential(chunks ChunksReader, pedantic bool, insertBlock func(*meta.MetaData, *UncompressedBlock) error) error {
	decompressor := SequentialDecompressor(chunks, pedantic)
	for {
		block, err := decompressor.DecompressNextBlock()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := insertBlock(decompressor.MetaData(), block); err != nil {
			return err
		}
	}
}

// DecompressParallel drives the parallel decompressor to the end, passing
// each block to insertBlock in completion order. Files without any
// compression degrade to the sequential path, skipping the pool entirely.
func DecompressParallel(chunks ChunksReader, pedantic bool, insertBlock func(*meta.MetaData, *UncompressedBlock) error) error {
	allUncompressed := true
	for i := range chunks.MetaData().Headers {
		if chunks.MetaData().Headers[i].Compression != compress.None {
			allUncompressed = false
			break
		}
	}
	if allUncompressed {
		return DecompressSequential(chunks, pedantic, insertBlock)
	}

	decompressor := NewParallelBlockDecompressor(chunks, pedantic, 0)
	defer decompressor.Close()

	for {
		block, err := decompressor.DecompressNextBlock()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := insertBlock(decompressor.MetaData(), block); err != nil {
			return err
		}
	}
}
