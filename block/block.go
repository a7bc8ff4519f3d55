package block

import (
	"fmt"

	"github.com/glimt/exr"
	"github.com/glimt/exr/meta"
)

// BlockIndex globally identifies a pixel block: the layer, the block's
// lower-left pixel within the data window, its pixel extent, and the
// mip/rip level. It is the key consumers must use for parallel results,
// which arrive in completion order.
type BlockIndex struct {
	Layer         int
	PixelPosition meta.Vec2
	PixelSize     meta.Vec2
	Level         meta.Vec2
}

// UncompressedBlock owns the raw pixel bytes of one block. The bytes hold
// each scan line top to bottom; within a line, each channel's row in
// channel-list order as a contiguous little-endian run.
type UncompressedBlock struct {
	Index BlockIndex
	Data  []byte
}

// blockDataIndices derives tile-space coordinates from a chunk's block
// descriptor, the inverse of what the writer stores.
func blockDataIndices(h *meta.Header, b Block) (meta.TileCoordinates, error) {
	switch b := b.(type) {
	case TileBlock:
		return b.Coordinates, nil

	case ScanLineBlock:
		y := b.YCoordinate - h.LayerPosition.Y
		lines := h.ScanLinesPerBlock()
		if y < 0 || y >= h.LayerSize.Y || y%lines != 0 {
			return meta.TileCoordinates{}, exr.Invalid("scan line y coordinate")
		}
		return meta.TileCoordinates{TileIndex: meta.Vec2{X: 0, Y: y / lines}}, nil
	}

	return meta.TileCoordinates{}, exr.NotSupported("deep data not supported yet")
}

// blockIndexForTile resolves tile coordinates to a BlockIndex. Both the
// filtered reader and the ordered block enumeration go through this one
// helper so the pixel geometry is derived in a single place.
func blockIndexForTile(h *meta.Header, layerIndex int, tc meta.TileCoordinates) (BlockIndex, error) {
	indices, err := h.AbsoluteBlockCoordinates(tc)
	if err != nil {
		return BlockIndex{}, err
	}
	return BlockIndex{
		Layer:         layerIndex,
		PixelPosition: indices.Position,
		PixelSize:     indices.Size,
		Level:         tc.LevelIndex,
	}, nil
}

// DecompressChunk decodes the chunk's payload into an UncompressedBlock.
// In pedantic mode the codec's internal structural checks are enforced.
func DecompressChunk(chunk *Chunk, m *meta.MetaData, pedantic bool) (*UncompressedBlock, error) {
	if chunk.LayerIndex < 0 || chunk.LayerIndex >= len(m.Headers) {
		return nil, exr.Invalid("chunk layer index")
	}
	header := &m.Headers[chunk.LayerIndex]

	tileDataIndices, err := blockDataIndices(header, chunk.Block)
	if err != nil {
		return nil, err
	}
	absoluteIndices, err := header.AbsoluteBlockCoordinates(tileDataIndices)
	if err != nil {
		return nil, err
	}
	if err := absoluteIndices.ValidateWithin(header.LayerSize); err != nil {
		return nil, err
	}

	var compressed []byte
	switch b := chunk.Block.(type) {
	case ScanLineBlock:
		compressed = b.CompressedPixels
	case TileBlock:
		compressed = b.CompressedPixels
	default:
		return nil, exr.NotSupported("deep data not supported yet")
	}

	expectedSize := absoluteIndices.Size.Area() * header.Channels.BytesPerPixel
	data, err := header.Compression.DecompressImageSection(compressed, expectedSize, pedantic)
	if err != nil {
		return nil, err
	}

	return &UncompressedBlock{
		Index: BlockIndex{
			Layer:         chunk.LayerIndex,
			PixelPosition: absoluteIndices.Position,
			PixelSize:     absoluteIndices.Size,
			Level:         tileDataIndices.LevelIndex,
		},
		Data: data,
	}, nil
}

// CompressToChunk consumes the block, compressing its bytes and wrapping
// them in a chunk descriptor matching the header's block kind.
//
// A block whose layer index or byte size does not match its header is a bug
// in the producer, not a property of the input file, and panics.
func (b *UncompressedBlock) CompressToChunk(headers []meta.Header) (*Chunk, error) {
	if b.Index.Layer < 0 || b.Index.Layer >= len(headers) {
		panic(fmt.Sprintf("block layer index %d out of range", b.Index.Layer))
	}
	header := &headers[b.Index.Layer]

	expectedByteSize := header.Channels.BytesPerPixel * b.Index.PixelSize.Area()
	if expectedByteSize != len(b.Data) {
		panic(fmt.Sprintf("block byte size should be %d but was %d", expectedByteSize, len(b.Data)))
	}

	blockSize := header.MaxBlockPixelSize()
	tileCoordinates := meta.TileCoordinates{
		TileIndex: meta.Vec2{
			X: b.Index.PixelPosition.X / blockSize.X,
			Y: b.Index.PixelPosition.Y / blockSize.Y,
		},
		LevelIndex: b.Index.Level,
	}

	absoluteIndices, err := header.AbsoluteBlockCoordinates(tileCoordinates)
	if err != nil {
		return nil, err
	}
	if err := absoluteIndices.ValidateWithin(header.LayerSize); err != nil {
		return nil, err
	}

	if verifyLosslessRoundTrip && !header.Compression.MayLoseData() {
		if err := verifyRoundTrip(header, b.Data); err != nil {
			return nil, err
		}
	}

	compressed, err := header.Compression.CompressImageSection(b.Data)
	if err != nil {
		return nil, err
	}

	chunk := &Chunk{LayerIndex: b.Index.Layer}
	if header.Blocks.IsTiles() {
		chunk.Block = TileBlock{
			Coordinates:      tileCoordinates,
			CompressedPixels: compressed,
		}
	} else {
		chunk.Block = ScanLineBlock{
			YCoordinate:      b.Index.PixelPosition.Y + header.LayerPosition.Y,
			CompressedPixels: compressed,
		}
	}
	return chunk, nil
}

// verifyRoundTrip recompresses and decompresses the section and compares,
// a regression net for lossless codecs.
func verifyRoundTrip(header *meta.Header, data []byte) error {
	compressed, err := header.Compression.CompressImageSection(data)
	if err != nil {
		return err
	}
	restored, err := header.Compression.DecompressImageSection(compressed, len(data), true)
	if err != nil {
		return err
	}
	for i := range data {
		if data[i] != restored[i] {
			return exr.Invalidf("compression %v not lossless at byte %d", header.Compression, i)
		}
	}
	return nil
}
