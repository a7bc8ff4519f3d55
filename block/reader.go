package block

import (
	"io"
	"sort"

	"github.com/glimt/exr"
	"github.com/glimt/exr/byteio"
	"github.com/glimt/exr/meta"
)

// ChunksReader is a finite, exact-size sequence of compressed chunks.
// ReadNextChunk returns io.EOF once the sequence is exhausted.
type ChunksReader interface {
	// MetaData returns the decoded file metadata.
	MetaData() *meta.MetaData

	// ExpectedChunkCount is the total number of chunks this reader will
	// return. Can be less than the chunks in the file when some are
	// filtered out.
	ExpectedChunkCount() int

	// RemainingChunks is how many chunks have not been returned yet.
	RemainingChunks() int

	// ReadNextChunk returns the next compressed chunk, or io.EOF.
	ReadNextChunk() (*Chunk, error)
}

// Reader holds the decoded metadata and the byte source positioned
// immediately after the header section. Continue with AllChunks or
// FilterChunks.
type Reader struct {
	metaData  *meta.MetaData
	remaining *byteio.Reader
}

// NewReader decodes the metadata from a buffered, seekable byte source.
func NewReader(source io.ReadSeeker, pedantic bool) (*Reader, error) {
	remaining, err := byteio.NewReader(source)
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	metaData, err := meta.ReadValidatedFrom(remaining, pedantic)
	if err != nil {
		return nil, err
	}
	return &Reader{metaData: metaData, remaining: remaining}, nil
}

// MetaData returns the decoded file metadata.
func (r *Reader) MetaData() *meta.MetaData { return r.metaData }

// Headers returns the decoded layer headers.
func (r *Reader) Headers() []meta.Header { return r.metaData.Headers }

// AllChunks prepares to read every chunk in file order, without seeking.
// In pedantic mode the offset tables are read and validated; otherwise
// they are skipped by their known size.
func (r *Reader) AllChunks(pedantic bool) (*AllChunksReader, error) {
	var total int
	if pedantic {
		tables, err := meta.ReadOffsetTables(r.remaining, r.metaData.Headers)
		if err != nil {
			return nil, err
		}
		if err := ValidateOffsetTables(r.metaData.Headers, tables, r.remaining.BytePosition()); err != nil {
			return nil, err
		}
		for _, table := range tables {
			total += len(table)
		}
	} else {
		var err error
		total, err = meta.SkipOffsetTables(r.remaining, r.metaData.Headers)
		if err != nil {
			return nil, err
		}
	}

	return &AllChunksReader{
		metaData:  r.metaData,
		total:     total,
		remaining: total,
		bytes:     r.remaining,
		pedantic:  pedantic,
	}, nil
}

// FilterChunks reads the offset tables and prepares to read only the chunks
// whose block the predicate selects. The selected offsets are sorted
// ascending so reads move forward whenever the line order permits.
func (r *Reader) FilterChunks(pedantic bool, filter func(*meta.MetaData, meta.TileCoordinates, BlockIndex) bool) (*FilteredChunksReader, error) {
	tables, err := meta.ReadOffsetTables(r.remaining, r.metaData.Headers)
	if err != nil {
		return nil, err
	}
	if pedantic {
		if err := ValidateOffsetTables(r.metaData.Headers, tables, r.remaining.BytePosition()); err != nil {
			return nil, err
		}
	}

	var filtered []uint64
	for layerIndex := range r.metaData.Headers {
		header := &r.metaData.Headers[layerIndex]
		for blockIndex, tile := range header.BlocksIncreasingYOrder() {
			index, err := blockIndexForTile(header, layerIndex, tile)
			if err != nil {
				return nil, err
			}
			if filter(r.metaData, tile, index) {
				filtered = append(filtered, tables[layerIndex][blockIndex])
			}
		}
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i] < filtered[j] })

	if pedantic {
		// sorted, so duplicates are neighbours
		for i := 1; i < len(filtered); i++ {
			if filtered[i] == filtered[i-1] {
				return nil, exr.Invalid("chunk offset table")
			}
		}
	}

	return &FilteredChunksReader{
		metaData: r.metaData,
		offsets:  filtered,
		bytes:    r.remaining,
	}, nil
}

// ValidateOffsetTables checks that every recorded offset points into the
// chunk region: not before its start, not past the worst-case end.
func ValidateOffsetTables(headers []meta.Header, tables meta.OffsetTables, chunksStartByte int64) error {
	var maxPixelBytes int64
	for i := range headers {
		maxPixelBytes += headers[i].MaxPixelFileBytes()
	}

	endByte := chunksStartByte + maxPixelBytes
	for _, table := range tables {
		for _, offset := range table {
			if int64(offset) < chunksStartByte || int64(offset) > endByte {
				return exr.Invalid("offset table")
			}
		}
	}
	return nil
}

// AllChunksReader reads every chunk in file order, without seeking.
type AllChunksReader struct {
	metaData  *meta.MetaData
	total     int
	remaining int
	bytes     *byteio.Reader
	pedantic  bool
}

func (r *AllChunksReader) MetaData() *meta.MetaData { return r.metaData }
func (r *AllChunksReader) ExpectedChunkCount() int  { return r.total }
func (r *AllChunksReader) RemainingChunks() int     { return r.remaining }

func (r *AllChunksReader) ReadNextChunk() (*Chunk, error) {
	if r.remaining == 0 {
		// all chunks are read; in pedantic mode any trailing byte is an error
		if r.pedantic {
			if _, err := r.bytes.PeekU8(); err == nil {
				return nil, exr.Invalid("end of file expected")
			}
		}
		return nil, io.EOF
	}
	r.remaining--
	return ReadChunk(r.bytes, r.metaData)
}

// FilteredChunksReader seeks to each selected chunk offset in ascending
// order and reads it.
type FilteredChunksReader struct {
	metaData *meta.MetaData
	offsets  []uint64
	next     int
	bytes    *byteio.Reader
}

func (r *FilteredChunksReader) MetaData() *meta.MetaData { return r.metaData }
func (r *FilteredChunksReader) ExpectedChunkCount() int  { return len(r.offsets) }
func (r *FilteredChunksReader) RemainingChunks() int     { return len(r.offsets) - r.next }

func (r *FilteredChunksReader) ReadNextChunk() (*Chunk, error) {
	if r.next >= len(r.offsets) {
		return nil, io.EOF
	}
	offset := r.offsets[r.next]
	r.next++

	if err := r.bytes.SkipTo(int64(offset)); err != nil {
		return nil, exr.WrapIo(err)
	}
	return ReadChunk(r.bytes, r.metaData)
}

// OnProgressChunksReader decorates a ChunksReader with a progress callback.
// On the successful path the callback always receives 0.0 at the first
// chunk and 1.0 exactly once at completion.
type OnProgressChunksReader struct {
	inner    ChunksReader
	decoded  int
	finished bool
	callback func(float64)
}

// OnProgress wraps the reader with a progress callback.
func OnProgress(inner ChunksReader, callback func(float64)) *OnProgressChunksReader {
	return &OnProgressChunksReader{inner: inner, callback: callback}
}

func (r *OnProgressChunksReader) MetaData() *meta.MetaData { return r.inner.MetaData() }
func (r *OnProgressChunksReader) ExpectedChunkCount() int  { return r.inner.ExpectedChunkCount() }
func (r *OnProgressChunksReader) RemainingChunks() int     { return r.inner.RemainingChunks() }

func (r *OnProgressChunksReader) ReadNextChunk() (*Chunk, error) {
	chunk, err := r.inner.ReadNextChunk()
	if err == io.EOF {
		if !r.finished {
			r.finished = true
			r.callback(1.0)
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}

	r.callback(float64(r.decoded) / float64(r.ExpectedChunkCount()))
	r.decoded++
	return chunk, nil
}
