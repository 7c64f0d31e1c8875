package systems

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Coord is an integer cell coordinate within the grid volume.
type Coord struct {
	X, Y, Z int
}

// OutOfRange is the sentinel coordinate for positions that could not be placed.
var OutOfRange = Coord{X: -1, Y: -1, Z: -1}

// InBounds reports whether every axis lies in [0, dim).
func (c Coord) InBounds(dim int) bool {
	return c.X >= 0 && c.X < dim &&
		c.Y >= 0 && c.Y < dim &&
		c.Z >= 0 && c.Z < dim
}

// String implements fmt.Stringer.
func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// faceOffsets are the six face-adjacent neighbour directions.
var faceOffsets = [6]Coord{
	{X: 1}, {X: -1},
	{Y: 1}, {Y: -1},
	{Z: 1}, {Z: -1},
}

// rawCoordinate maps a position to unrounded grid space.
// The origin sits at the centre cell: (origin - position)/cellSize + dim/2.
func rawCoordinate(position, origin r3.Vec, cellSize float64, dim int) r3.Vec {
	half := float64(dim / 2)
	rel := r3.Scale(1/cellSize, r3.Sub(origin, position))
	return r3.Vec{X: rel.X + half, Y: rel.Y + half, Z: rel.Z + half}
}

// CoordinateOf maps a world position to the cell containing it, rounding each
// axis to the nearest integer. Positions outside the grid volume return
// ErrOutOfRange and are never clamped.
func CoordinateOf(position, origin r3.Vec, cellSize float64, dim int) (Coord, error) {
	raw := rawCoordinate(position, origin, cellSize, dim)
	c := Coord{
		X: int(math.Round(raw.X)),
		Y: int(math.Round(raw.Y)),
		Z: int(math.Round(raw.Z)),
	}
	if !c.InBounds(dim) {
		return OutOfRange, fmt.Errorf("position %v maps to %v: %w", position, c, ErrOutOfRange)
	}
	return c, nil
}

// ClampedCoordinateOf is CoordinateOf with each axis clamped into the grid.
// It backs the clamp recovery policy and is never used by CoordinateOf itself.
func ClampedCoordinateOf(position, origin r3.Vec, cellSize float64, dim int) Coord {
	raw := rawCoordinate(position, origin, cellSize, dim)
	return Coord{
		X: clampInt(int(clampFloat(math.Round(raw.X), -1, float64(dim))), 0, dim-1),
		Y: clampInt(int(clampFloat(math.Round(raw.Y), -1, float64(dim))), 0, dim-1),
		Z: clampInt(int(clampFloat(math.Round(raw.Z), -1, float64(dim))), 0, dim-1),
	}
}
