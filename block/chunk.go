// Package block implements the chunk pipeline between the parsed file
// metadata and the raw byte stream: enumerating and reading compressed
// chunks, decompressing them into pixel blocks sequentially or on a worker
// pool, and the symmetric write path with its two-pass offset table layout.
package block

import (
	"github.com/glimt/exr"
	"github.com/glimt/exr/byteio"
	"github.com/glimt/exr/meta"
)

// Chunk is the on-disk form of one pixel block: which layer it belongs to
// and a block descriptor with the compressed payload.
type Chunk struct {
	LayerIndex int
	Block      Block
}

// Block is the tagged chunk payload: scan-line, tile, or their deep
// variants. Deep blocks can be framed and skipped but not decoded.
type Block interface {
	isBlock()
}

// ScanLineBlock is a horizontal strip of scan lines.
type ScanLineBlock struct {
	// YCoordinate is the absolute y of the first line, including the data
	// window offset.
	YCoordinate      int
	CompressedPixels []byte
}

// TileBlock is one tile of a tiled layer.
type TileBlock struct {
	Coordinates      meta.TileCoordinates
	CompressedPixels []byte
}

// DeepScanLineBlock carries a deep strip's raw tables and payload.
type DeepScanLineBlock struct {
	YCoordinate                int
	DecompressedSampleDataSize int
	CompressedSampleTable      []byte
	CompressedPixels           []byte
}

// DeepTileBlock carries a deep tile's raw tables and payload.
type DeepTileBlock struct {
	Coordinates                meta.TileCoordinates
	DecompressedSampleDataSize int
	CompressedSampleTable      []byte
	CompressedPixels           []byte
}

func (ScanLineBlock) isBlock()     {}
func (TileBlock) isBlock()         {}
func (DeepScanLineBlock) isBlock() {}
func (DeepTileBlock) isBlock()     {}

// Payload framing is slightly oversized compared to the worst legitimate
// chunk, to reject corrupt sizes without refusing files from writers that
// did not apply the store-raw fallback.
const payloadSizeMargin = 1024

// ReadChunk decodes one chunk at the reader's current position.
func ReadChunk(r *byteio.Reader, m *meta.MetaData) (*Chunk, error) {
	layerIndex := 0
	if m.Requirements.IsMultiPart() {
		v, err := r.I32()
		if err != nil {
			return nil, exr.WrapIo(err)
		}
		layerIndex = int(v)
	}
	if layerIndex < 0 || layerIndex >= len(m.Headers) {
		return nil, exr.Invalid("chunk layer index")
	}
	header := &m.Headers[layerIndex]

	var (
		block Block
		err   error
	)
	switch {
	case header.Deep && header.Blocks.IsTiles():
		block, err = readDeepTileBlock(r, header)
	case header.Deep:
		block, err = readDeepScanLineBlock(r, header)
	case header.Blocks.IsTiles():
		block, err = readTileBlock(r, header)
	default:
		block, err = readScanLineBlock(r, header)
	}
	if err != nil {
		return nil, err
	}
	return &Chunk{LayerIndex: layerIndex, Block: block}, nil
}

func maxPayloadSize(h *meta.Header) int {
	return h.MaxBlockPixelSize().Area()*h.Channels.BytesPerPixel + payloadSizeMargin
}

func readPayload(r *byteio.Reader, h *meta.Header) ([]byte, error) {
	size, err := r.I32()
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	if size <= 0 || int(size) > maxPayloadSize(h) {
		return nil, exr.Invalid("compressed chunk size")
	}
	data, err := r.Bytes(int(size))
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	return data, nil
}

func readScanLineBlock(r *byteio.Reader, h *meta.Header) (Block, error) {
	y, err := r.I32()
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	data, err := readPayload(r, h)
	if err != nil {
		return nil, err
	}
	return ScanLineBlock{YCoordinate: int(y), CompressedPixels: data}, nil
}

func readTileBlock(r *byteio.Reader, h *meta.Header) (Block, error) {
	var v [4]int32
	for i := range v {
		n, err := r.I32()
		if err != nil {
			return nil, exr.WrapIo(err)
		}
		v[i] = n
	}
	data, err := readPayload(r, h)
	if err != nil {
		return nil, err
	}
	return TileBlock{
		Coordinates: meta.TileCoordinates{
			TileIndex:  meta.Vec2{X: int(v[0]), Y: int(v[1])},
			LevelIndex: meta.Vec2{X: int(v[2]), Y: int(v[3])},
		},
		CompressedPixels: data,
	}, nil
}

func readDeepScanLineBlock(r *byteio.Reader, h *meta.Header) (Block, error) {
	y, err := r.I32()
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	tableSize, err := r.U64()
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	dataSize, err := r.U64()
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	unpackedSize, err := r.U64()
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	table, err := r.Bytes(int(tableSize))
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	data, err := r.Bytes(int(dataSize))
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	return DeepScanLineBlock{
		YCoordinate:                int(y),
		DecompressedSampleDataSize: int(unpackedSize),
		CompressedSampleTable:      table,
		CompressedPixels:           data,
	}, nil
}

func readDeepTileBlock(r *byteio.Reader, h *meta.Header) (Block, error) {
	var v [4]int32
	for i := range v {
		n, err := r.I32()
		if err != nil {
			return nil, exr.WrapIo(err)
		}
		v[i] = n
	}
	tableSize, err := r.U64()
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	dataSize, err := r.U64()
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	unpackedSize, err := r.U64()
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	table, err := r.Bytes(int(tableSize))
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	data, err := r.Bytes(int(dataSize))
	if err != nil {
		return nil, exr.WrapIo(err)
	}
	return DeepTileBlock{
		Coordinates: meta.TileCoordinates{
			TileIndex:  meta.Vec2{X: int(v[0]), Y: int(v[1])},
			LevelIndex: meta.Vec2{X: int(v[2]), Y: int(v[3])},
		},
		DecompressedSampleDataSize: int(unpackedSize),
		CompressedSampleTable:      table,
		CompressedPixels:           data,
	}, nil
}

// Write serializes the chunk at the writer's current position. The layer
// index is written only for multi-part files, indicated by headerCount.
func (c *Chunk) Write(w *byteio.Writer, headerCount int) error {
	if headerCount > 1 {
		if err := w.I32(int32(c.LayerIndex)); err != nil {
			return exr.WrapIo(err)
		}
	}

	switch b := c.Block.(type) {
	case ScanLineBlock:
		if err := w.I32(int32(b.YCoordinate)); err != nil {
			return exr.WrapIo(err)
		}
		return writePayload(w, b.CompressedPixels)

	case TileBlock:
		coords := [4]int32{
			int32(b.Coordinates.TileIndex.X), int32(b.Coordinates.TileIndex.Y),
			int32(b.Coordinates.LevelIndex.X), int32(b.Coordinates.LevelIndex.Y),
		}
		for _, v := range coords {
			if err := w.I32(v); err != nil {
				return exr.WrapIo(err)
			}
		}
		return writePayload(w, b.CompressedPixels)
	}

	return exr.NotSupported("deep data not supported yet")
}

func writePayload(w *byteio.Writer, data []byte) error {
	if err := w.I32(int32(len(data))); err != nil {
		return exr.WrapIo(err)
	}
	if _, err := w.Write(data); err != nil {
		return exr.WrapIo(err)
	}
	return nil
}
