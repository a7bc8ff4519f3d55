// Package meta parses and serializes the header section of an image file:
// layer headers with their channel lists, tiling and compression attributes,
// the file version field, and the chunk offset tables.
package meta

import (
	"github.com/glimt/exr"
)

// Vec2 is a two-dimensional integer extent or position.
type Vec2 struct {
	X, Y int
}

// Area returns X*Y.
func (v Vec2) Area() int { return v.X * v.Y }

// Box2 is an axis-aligned pixel rectangle. Position may be negative for
// display and data windows; Size is always positive for a valid box.
type Box2 struct {
	Position Vec2
	Size     Vec2
}

// End returns the exclusive upper corner.
func (b Box2) End() Vec2 {
	return Vec2{b.Position.X + b.Size.X, b.Position.Y + b.Size.Y}
}

// ValidateWithin checks that the box has a positive extent and lies inside
// an origin-anchored area of the given size.
func (b Box2) ValidateWithin(size Vec2) error {
	if b.Size.X <= 0 || b.Size.Y <= 0 {
		return exr.Invalid("block size")
	}
	if b.Position.X < 0 || b.Position.Y < 0 ||
		b.End().X > size.X || b.End().Y > size.Y {
		return exr.Invalid("block position out of bounds")
	}
	return nil
}
