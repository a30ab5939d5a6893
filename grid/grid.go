// Package grid holds the height-mapped floor of a room.
package grid

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Tile is one cell of a room floor. It tracks what occupies it; the room is
// the only writer.
type Tile struct {
	X, Y     int
	height   float64
	override *float64
	furni    map[int]struct{}
	entities map[int]struct{}
}

// BaseHeight is the height from the heightmap, ignoring furni and overrides.
func (t *Tile) BaseHeight() float64 {
	return t.height
}

// HeightOverride returns the height forced by wired, if any.
func (t *Tile) HeightOverride() (float64, bool) {
	if t.override == nil {
		return 0, false
	}
	return *t.override, true
}

// SetHeightOverride forces the walk height of the tile. nil removes the override.
func (t *Tile) SetHeightOverride(h *float64) {
	if h == nil {
		t.override = nil
		return
	}
	v := *h
	t.override = &v
}

// AddFurni marks furni id as covering the tile. Only the room calls it.
func (t *Tile) AddFurni(id int) {
	t.furni[id] = struct{}{}
}

// RemoveFurni is the inverse of AddFurni, also room only.
func (t *Tile) RemoveFurni(id int) {
	delete(t.furni, id)
}

func (t *Tile) HasFurni(id int) bool {
	_, found := t.furni[id]
	return found
}

// Furni returns the ids of the furni covering the tile, sorted.
func (t *Tile) Furni() []int {
	return sortedKeys(t.furni)
}

// AddEntity marks entity id as standing on the tile. Only the room calls it.
func (t *Tile) AddEntity(id int) {
	t.entities[id] = struct{}{}
}

// RemoveEntity is the inverse of AddEntity, also room only.
func (t *Tile) RemoveEntity(id int) {
	delete(t.entities, id)
}

func (t *Tile) HasEntity(id int) bool {
	_, found := t.entities[id]
	return found
}

// Entities returns the ids of the entities standing on the tile, sorted.
func (t *Tile) Entities() []int {
	return sortedKeys(t.entities)
}

// Occupied reports whether any entity stands on the tile.
func (t *Tile) Occupied() bool {
	return len(t.entities) > 0
}

func (t *Tile) String() string {
	return fmt.Sprintf("(%d,%d)", t.X, t.Y)
}

func sortedKeys(m map[int]struct{}) []int {
	result := make([]int, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	slices.Sort(result)
	return result
}

// Grid is the static floor layout of a room. Tiles exist only where the
// heightmap has a non-void cell.
type Grid struct {
	width  int
	length int
	tiles  [][]*Tile
	source string
}

// Parse builds a grid from a heightmap. Rows are separated by CR and/or LF.
// 'x' marks void, '0'-'9' heights 0-9 and 'a'-'z' heights 10-35.
func Parse(heightmap string) (*Grid, error) {
	rows := strings.FieldsFunc(heightmap, func(r rune) bool {
		return r == '\r' || r == '\n'
	})
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty heightmap")
	}
	g := &Grid{
		length: len(rows),
		source: strings.Join(rows, "\r"),
	}
	for _, row := range rows {
		g.width = max(g.width, len(row))
	}
	g.tiles = make([][]*Tile, g.width)
	for x := range g.tiles {
		g.tiles[x] = make([]*Tile, g.length)
	}
	for y, row := range rows {
		for x, c := range []byte(row) {
			height, void, err := parseHeight(c)
			if err != nil {
				return nil, fmt.Errorf("heightmap row %d column %d: %w", y, x, err)
			}
			if void {
				continue
			}
			g.tiles[x][y] = &Tile{
				X:        x,
				Y:        y,
				height:   height,
				furni:    map[int]struct{}{},
				entities: map[int]struct{}{},
			}
		}
	}
	return g, nil
}

func parseHeight(c byte) (float64, bool, error) {
	switch {
	case c == 'x' || c == 'X':
		return 0, true, nil
	case c >= '0' && c <= '9':
		return float64(c - '0'), false, nil
	case c >= 'a' && c <= 'z':
		return float64(c-'a') + 10, false, nil
	}
	return 0, false, fmt.Errorf("invalid height %q", c)
}

func (g *Grid) Width() int {
	return g.width
}

func (g *Grid) Length() int {
	return g.length
}

// Heightmap returns the normalized source the grid was parsed from.
func (g *Grid) Heightmap() string {
	return g.source
}

func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.width && y < g.length
}

// GetTile returns nil for out of bounds or void coordinates.
func (g *Grid) GetTile(x, y int) *Tile {
	if !g.InBounds(x, y) {
		return nil
	}
	return g.tiles[x][y]
}

func (g *Grid) TileExists(x, y int) bool {
	return g.GetTile(x, y) != nil
}

// Tiles iterates over every existing tile in row order.
func (g *Grid) Tiles() iter.Seq[*Tile] {
	return g.Area(0, 0, g.width-1, g.length-1)
}

// Area iterates over the existing tiles in the rectangle spanned by the two
// corners, inclusive, in row order.
func (g *Grid) Area(x1, y1, x2, y2 int) iter.Seq[*Tile] {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	x1, y1 = max(x1, 0), max(y1, 0)
	x2, y2 = min(x2, g.width-1), min(y2, g.length-1)
	return func(yield func(*Tile) bool) {
		for y := y1; y <= y2; y++ {
			for x := x1; x <= x2; x++ {
				if t := g.tiles[x][y]; t != nil {
					if !yield(t) {
						return
					}
				}
			}
		}
	}
}
