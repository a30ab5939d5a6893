package structs

import (
	"fmt"
	"math"
)

// Position is a location on a room floor. Z is the continuous height the
// holder stands at, not a grid layer.
type Position struct {
	X int     `json:"x"`
	Y int     `json:"y"`
	Z float64 `json:"z"`
}

// Equals compares the grid coordinates only.
func (p Position) Equals(o Position) bool {
	return p.X == o.X && p.Y == o.Y
}

func (p Position) Is(x, y int) bool {
	return p.X == x && p.Y == y
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d,%.2f)", p.X, p.Y, p.Z)
}

// Distance is the Chebyshev distance between the grid coordinates.
func (p Position) Distance(o Position) int {
	dx, dy := p.X-o.X, p.Y-o.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return max(dx, dy)
}

// Rotation is one of the eight compass directions, 0 being north and
// increasing clockwise.
type Rotation int

const (
	North Rotation = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

func (r Rotation) Valid() bool {
	return r >= North && r <= NorthWest
}

// Normalize wraps r into the 0-7 range.
func (r Rotation) Normalize() Rotation {
	return ((r % 8) + 8) % 8
}

// RotationTowards returns the rotation pointing from p to o.
func RotationTowards(from, to Position) Rotation {
	dx, dy := to.X-from.X, to.Y-from.Y
	if dx == 0 && dy == 0 {
		return South
	}
	angle := math.Atan2(float64(dx), float64(-dy))
	octant := int(math.Round(angle/(math.Pi/4))) % 8
	return Rotation(octant).Normalize()
}
