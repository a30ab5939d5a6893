package structs

import (
	"fmt"
	"strconv"
)

type FurniKind int

const (
	FloorItem FurniKind = iota
	WallItem
	Counter
)

func (k FurniKind) String() string {
	switch k {
	case FloorItem:
		return "floor"
	case WallItem:
		return "wall"
	case Counter:
		return "counter"
	}
	return "unknown"
}

func (k FurniKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *FurniKind) UnmarshalText(b []byte) error {
	parsed, err := ParseFurniKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func ParseFurniKind(s string) (FurniKind, error) {
	for _, kind := range []FurniKind{FloorItem, WallItem, Counter} {
		if kind.String() == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown furni kind %q", s)
}

// FurnitureDefinition is immutable catalog data shared by every placed copy.
type FurnitureDefinition struct {
	ID                    int     `json:"id" db:"id"`
	SpriteID              int     `json:"spriteId" db:"sprite_id"`
	Name                  string  `json:"name" db:"name"`
	Width                 int     `json:"width" db:"width"`
	Length                int     `json:"length" db:"length"`
	StackHeight           float64 `json:"stackHeight" db:"stack_height"`
	CanStack              bool    `json:"canStack" db:"can_stack"`
	CanSit                bool    `json:"canSit" db:"can_sit"`
	CanLay                bool    `json:"canLay" db:"can_lay"`
	CanWalk               bool    `json:"canWalk" db:"can_walk"`
	InteractionType       string  `json:"interactionType" db:"interaction_type"`
	InteractionModesCount int     `json:"interactionModesCount" db:"interaction_modes_count"`
}

// Walkable returns whether entities may pass over the definition.
func (d *FurnitureDefinition) Walkable() bool {
	return d.CanWalk
}

// Occupiable returns whether entities may end a walk on the definition.
func (d *FurnitureDefinition) Occupiable() bool {
	return d.CanWalk || d.CanSit || d.CanLay
}

// Furni is a placed item.
type Furni struct {
	ID           int                  `json:"id"`
	Kind         FurniKind            `json:"kind"`
	DefinitionID int                  `json:"definitionId"`
	SpriteID     int                  `json:"spriteId"`
	OwnerID      int64                `json:"ownerId,omitempty"`
	Position     Position             `json:"position"`
	Rotation     Rotation             `json:"rotation"`
	State        string               `json:"state"`
	WallPosition string               `json:"wallPosition,omitempty"`
	Fake         bool                 `json:"fake,omitempty"`
	Definition   *FurnitureDefinition `json:"-"`
}

// Equals compares identity, not state.
func (f *Furni) Equals(o *Furni) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.ID == o.ID
}

// Dimensions returns width and length after rotation.
func (f *Furni) Dimensions() (int, int) {
	if f.Definition == nil {
		return 1, 1
	}
	width, length := max(f.Definition.Width, 1), max(f.Definition.Length, 1)
	if f.Rotation == East || f.Rotation == West {
		width, length = length, width
	}
	return width, length
}

// Footprint returns the floor coordinates covered when anchored at pos.
// Wall items cover nothing.
func (f *Furni) Footprint(pos Position) []Position {
	if f.Kind == WallItem {
		return nil
	}
	width, length := f.Dimensions()
	result := make([]Position, 0, width*length)
	for dx := 0; dx < width; dx++ {
		for dy := 0; dy < length; dy++ {
			result = append(result, Position{X: pos.X + dx, Y: pos.Y + dy})
		}
	}
	return result
}

// Covers returns whether the footprint at the current position includes (x, y).
func (f *Furni) Covers(x, y int) bool {
	if f.Kind == WallItem {
		return false
	}
	width, length := f.Dimensions()
	return x >= f.Position.X && x < f.Position.X+width && y >= f.Position.Y && y < f.Position.Y+length
}

// Top is the height an item stacked on this one rests at.
func (f *Furni) Top() float64 {
	if f.Definition == nil {
		return f.Position.Z
	}
	return f.Position.Z + f.Definition.StackHeight
}

func (f *Furni) ModesCount() int {
	if f.Definition == nil {
		return 0
	}
	return f.Definition.InteractionModesCount
}

// NextState returns the state after one interaction cycle.
func (f *Furni) NextState() string {
	modes := f.ModesCount()
	if modes <= 1 {
		return "0"
	}
	current, err := strconv.Atoi(f.State)
	if err != nil || current < 0 {
		current = -1
	}
	return strconv.Itoa((current + 1) % modes)
}

// CounterValue returns the numeric state of a counter, 0 if unparseable.
func (f *Furni) CounterValue() int {
	v, err := strconv.Atoi(f.State)
	if err != nil {
		return 0
	}
	return v
}

func (f *Furni) Snapshot() *Furni {
	cpy := *f
	return &cpy
}

type Furnis []*Furni

func (f Furnis) IDs() []int {
	result := make([]int, len(f))
	for i := range f {
		result[i] = f[i].ID
	}
	return result
}
