package meta

import (
	"math/bits"
)

// LevelMode describes the resolution pyramid of a tiled layer.
type LevelMode uint8

const (
	OneLevel LevelMode = 0
	MipMap   LevelMode = 1
	RipMap   LevelMode = 2
)

// RoundingMode controls how level sizes are halved.
type RoundingMode uint8

const (
	RoundDown RoundingMode = 0
	RoundUp   RoundingMode = 1
)

// TileDescription is the tiling attribute of a tiled layer.
type TileDescription struct {
	TileSize     Vec2
	LevelMode    LevelMode
	RoundingMode RoundingMode
}

// levelDimension halves full level times, rounding per the mode, with a
// floor of one pixel.
func levelDimension(full, level int, rounding RoundingMode) int {
	d := full >> level
	if rounding == RoundUp {
		d = (full + (1 << level) - 1) >> level
	}
	if d < 1 {
		return 1
	}
	return d
}

// levelCount returns how many levels a dimension spans.
func levelCount(dim int, rounding RoundingMode) int {
	if dim <= 1 {
		return 1
	}
	if rounding == RoundUp {
		return bits.Len(uint(dim-1)) + 1
	}
	return bits.Len(uint(dim))
}

// levels enumerates the level indices of a tiled layer in file order:
// a single level, the mip chain, or the full rip grid with the x level
// varying fastest.
func (t TileDescription) levels(layerSize Vec2) []Vec2 {
	switch t.LevelMode {
	case MipMap:
		n := levelCount(max(layerSize.X, layerSize.Y), t.RoundingMode)
		out := make([]Vec2, n)
		for i := range out {
			out[i] = Vec2{i, i}
		}
		return out
	case RipMap:
		nx := levelCount(layerSize.X, t.RoundingMode)
		ny := levelCount(layerSize.Y, t.RoundingMode)
		out := make([]Vec2, 0, nx*ny)
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				out = append(out, Vec2{x, y})
			}
		}
		return out
	}
	return []Vec2{{0, 0}}
}

// levelSize returns the pixel size of the layer at the given level.
func (t TileDescription) levelSize(layerSize, level Vec2) Vec2 {
	return Vec2{
		levelDimension(layerSize.X, level.X, t.RoundingMode),
		levelDimension(layerSize.Y, level.Y, t.RoundingMode),
	}
}
