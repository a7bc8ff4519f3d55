package meta

import (
	"iter"

	"github.com/glimt/exr"
	"github.com/glimt/exr/compress"
)

// LineOrder declares whether a header's chunks must appear in the file in a
// prescribed vertical order.
type LineOrder uint8

const (
	IncreasingY  LineOrder = 0
	DecreasingY  LineOrder = 1
	UnspecifiedY LineOrder = 2
)

// BlockDescription states how a layer divides its pixels into blocks:
// scan-line strips when Tiles is nil, tiles otherwise.
type BlockDescription struct {
	Tiles *TileDescription
}

// ScanLineBlocks describes a layer stored as scan-line strips.
func ScanLineBlocks() BlockDescription { return BlockDescription{} }

// TileBlocks describes a layer stored as tiles.
func TileBlocks(t TileDescription) BlockDescription { return BlockDescription{Tiles: &t} }

// IsTiles reports whether the layer is tiled.
func (b BlockDescription) IsTiles() bool { return b.Tiles != nil }

// TileCoordinates locate one block in tile space: the tile index within its
// resolution level, and the level index.
type TileCoordinates struct {
	TileIndex  Vec2
	LevelIndex Vec2
}

// Header describes one layer of the file.
type Header struct {
	Channels    ChannelList
	Compression compress.Compression
	Blocks      BlockDescription
	LineOrder   LineOrder

	// LayerSize and LayerPosition are the size and lower corner of the
	// layer's data window.
	LayerSize     Vec2
	LayerPosition Vec2

	DisplayWindow      Box2
	PixelAspect        float32
	ScreenWindowCenter [2]float32
	ScreenWindowWidth  float32

	// Name identifies the layer in multi-part files.
	Name string

	// Deep marks a layer with variable sample counts per pixel. The block
	// pipeline enumerates such layers but cannot decode them.
	Deep bool
}

// Overhead of one chunk on disk beyond its pixel payload: layer index, block
// descriptor and payload size. Generously rounded up, as the value is only
// used as an upper bound when validating offset tables.
const chunkOverheadBytes = 64

// ScanLinesPerBlock returns the scan lines one chunk covers.
func (h *Header) ScanLinesPerBlock() int {
	return h.Compression.ScanLinesPerBlock()
}

// MaxBlockPixelSize returns the pixel extent of a full-size block: the tile
// size for tiled layers, a full-width strip otherwise.
func (h *Header) MaxBlockPixelSize() Vec2 {
	if h.Blocks.IsTiles() {
		return h.Blocks.Tiles.TileSize
	}
	return Vec2{h.LayerSize.X, min(h.ScanLinesPerBlock(), h.LayerSize.Y)}
}

// ChunkCount returns how many chunks this layer stores.
func (h *Header) ChunkCount() int {
	if !h.Blocks.IsTiles() {
		return ceilDiv(h.LayerSize.Y, h.ScanLinesPerBlock())
	}

	t := h.Blocks.Tiles
	total := 0
	for _, level := range t.levels(h.LayerSize) {
		size := t.levelSize(h.LayerSize, level)
		total += ceilDiv(size.X, t.TileSize.X) * ceilDiv(size.Y, t.TileSize.Y)
	}
	return total
}

// MaxPixelFileBytes returns an upper bound for the bytes this layer's chunk
// region can occupy. Compressed chunks are smaller, never larger, because
// sections that would grow are stored raw.
func (h *Header) MaxPixelFileBytes() int64 {
	maxBlockBytes := int64(h.MaxBlockPixelSize().Area()) * int64(h.Channels.BytesPerPixel)
	return int64(h.ChunkCount()) * (chunkOverheadBytes + maxBlockBytes)
}

// BlocksIncreasingYOrder enumerates the layer's blocks in increasing-y
// order: scan-line strips top to bottom, or tiles row-major within each
// resolution level, levels in mip/rip order. Offset tables index blocks in
// exactly this order.
func (h *Header) BlocksIncreasingYOrder() []TileCoordinates {
	if !h.Blocks.IsTiles() {
		n := h.ChunkCount()
		out := make([]TileCoordinates, n)
		for i := range out {
			out[i] = TileCoordinates{TileIndex: Vec2{0, i}}
		}
		return out
	}

	t := h.Blocks.Tiles
	out := make([]TileCoordinates, 0, h.ChunkCount())
	for _, level := range t.levels(h.LayerSize) {
		size := t.levelSize(h.LayerSize, level)
		ny := ceilDiv(size.Y, t.TileSize.Y)
		nx := ceilDiv(size.X, t.TileSize.X)
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				out = append(out, TileCoordinates{TileIndex: Vec2{x, y}, LevelIndex: level})
			}
		}
	}
	return out
}

// EnumerateOrderedBlocks yields the layer's blocks in the order its line
// order requires them in the file, paired with each block's index in
// increasing-y order. Unspecified line order enumerates as increasing.
func (h *Header) EnumerateOrderedBlocks() iter.Seq2[int, TileCoordinates] {
	blocks := h.BlocksIncreasingYOrder()
	return func(yield func(int, TileCoordinates) bool) {
		if h.LineOrder == DecreasingY {
			for i := len(blocks) - 1; i >= 0; i-- {
				if !yield(i, blocks[i]) {
					return
				}
			}
			return
		}
		for i, b := range blocks {
			if !yield(i, b) {
				return
			}
		}
	}
}

// AbsoluteBlockCoordinates resolves tile coordinates to the block's pixel
// rectangle within the layer's data window. Edge blocks are clamped to the
// level bounds.
func (h *Header) AbsoluteBlockCoordinates(tc TileCoordinates) (Box2, error) {
	levelSize := h.LayerSize
	if h.Blocks.IsTiles() {
		t := h.Blocks.Tiles
		found := false
		for _, level := range t.levels(h.LayerSize) {
			if level == tc.LevelIndex {
				found = true
				break
			}
		}
		if !found {
			return Box2{}, exr.Invalid("block level index")
		}
		levelSize = t.levelSize(h.LayerSize, tc.LevelIndex)
	} else if tc.LevelIndex != (Vec2{}) {
		return Box2{}, exr.Invalid("block level index")
	}

	blockSize := h.MaxBlockPixelSize()
	position := Vec2{tc.TileIndex.X * blockSize.X, tc.TileIndex.Y * blockSize.Y}
	if position.X < 0 || position.Y < 0 || position.X >= levelSize.X || position.Y >= levelSize.Y {
		return Box2{}, exr.Invalid("block tile index")
	}

	size := Vec2{
		min(blockSize.X, levelSize.X-position.X),
		min(blockSize.Y, levelSize.Y-position.Y),
	}

	box := Box2{Position: position, Size: size}
	if err := box.ValidateWithin(levelSize); err != nil {
		return Box2{}, err
	}
	return box, nil
}

func (h *Header) validate() error {
	if h.LayerSize.X <= 0 || h.LayerSize.Y <= 0 {
		return exr.Invalid("layer size")
	}
	if err := h.Channels.validate(); err != nil {
		return err
	}
	if h.LineOrder > UnspecifiedY {
		return exr.Invalid("line order")
	}
	if t := h.Blocks.Tiles; t != nil {
		if t.TileSize.X <= 0 || t.TileSize.Y <= 0 {
			return exr.Invalid("tile size")
		}
		if t.LevelMode > RipMap || t.RoundingMode > RoundUp {
			return exr.Invalid("tile description")
		}
	}
	if h.Deep && !h.Compression.SupportsDeepData() {
		return exr.Invalid("compression not allowed for deep data")
	}
	return nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
