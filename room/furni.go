package room

import (
	"slices"
	"strconv"

	"github.com/zond/juiceroom/events"
	"github.com/zond/juiceroom/structs"
)

func (r *Room) GetFurniByID(id int) *structs.Furni {
	return r.furnis[id]
}

// GetFurniByTile returns the furni covering (x, y), lowest first.
func (r *Room) GetFurniByTile(x, y int) structs.Furnis {
	tile := r.grid.GetTile(x, y)
	if tile == nil {
		return nil
	}
	ids := tile.Furni()
	result := make(structs.Furnis, 0, len(ids))
	for _, id := range ids {
		if f, found := r.furnis[id]; found {
			result = append(result, f)
		}
	}
	slices.SortStableFunc(result, func(a, b *structs.Furni) int {
		switch {
		case a.Position.Z < b.Position.Z:
			return -1
		case a.Position.Z > b.Position.Z:
			return 1
		}
		return a.ID - b.ID
	})
	return result
}

func (r *Room) GetAllFurnisBySpriteID(spriteID int) structs.Furnis {
	result := structs.Furnis{}
	for _, id := range sortedIDs(r.furnis) {
		if f := r.furnis[id]; f.SpriteID == spriteID {
			result = append(result, f)
		}
	}
	return result
}

// Furnis returns every furni ordered by id.
func (r *Room) Furnis() structs.Furnis {
	result := make(structs.Furnis, 0, len(r.furnis))
	for _, id := range sortedIDs(r.furnis) {
		result = append(result, r.furnis[id])
	}
	return result
}

func (r *Room) topFurni(x, y int) *structs.Furni {
	furnis := r.GetFurniByTile(x, y)
	if len(furnis) == 0 {
		return nil
	}
	return furnis[len(furnis)-1]
}

// WalkHeight is the height an entity stands at on (x, y): the wired override
// if one is set, otherwise the highest of the floor and every stackable, seat
// or bed furni top on the tile.
func (r *Room) WalkHeight(x, y int) float64 {
	tile := r.grid.GetTile(x, y)
	if tile == nil {
		return 0
	}
	if h, found := tile.HeightOverride(); found {
		return h
	}
	height := tile.BaseHeight()
	for _, id := range tile.Furni() {
		f := r.furnis[id]
		if f == nil || f.Definition == nil {
			continue
		}
		if f.Definition.CanStack || f.Definition.CanSit || f.Definition.CanLay {
			height = max(height, f.Top())
		}
	}
	return height
}

// SetTileHeight overrides the walk height of a tile. nil removes the override.
func (r *Room) SetTileHeight(x, y int, height *float64) bool {
	tile := r.grid.GetTile(x, y)
	if tile == nil {
		return false
	}
	tile.SetHeightOverride(height)
	return true
}

// restingHeight returns the height f would rest at if anchored at pos, and
// false if the footprint leaves the floor or lands on something unstackable.
func (r *Room) restingHeight(f *structs.Furni, footprint []structs.Position) (float64, bool) {
	height := 0.0
	for _, pos := range footprint {
		tile := r.grid.GetTile(pos.X, pos.Y)
		if tile == nil {
			return 0, false
		}
		height = max(height, tile.BaseHeight())
		for _, id := range tile.Furni() {
			if id == f.ID {
				continue
			}
			below := r.furnis[id]
			if below == nil || below.Definition == nil {
				continue
			}
			if !below.Definition.CanStack {
				return 0, false
			}
			height = max(height, below.Top())
		}
	}
	return height, true
}

func (r *Room) occupy(f *structs.Furni) {
	for _, pos := range f.Footprint(f.Position) {
		r.grid.GetTile(pos.X, pos.Y).AddFurni(f.ID)
	}
}

func (r *Room) vacate(f *structs.Furni) {
	for _, pos := range f.Footprint(f.Position) {
		if tile := r.grid.GetTile(pos.X, pos.Y); tile != nil {
			tile.RemoveFurni(f.ID)
		}
	}
}

// PlaceFurni adds f at f.Position, assigning an id if it has none. Floor items
// rest on top of what is already there. byEntity is the placing entity, or 0.
func (r *Room) PlaceFurni(f *structs.Furni, byEntity int) bool {
	if f == nil {
		return false
	}
	if _, found := r.furnis[f.ID]; found && f.ID != 0 {
		return false
	}
	if f.Kind != structs.WallItem {
		height, ok := r.restingHeight(f, f.Footprint(f.Position))
		if !ok {
			return false
		}
		f.Position.Z = height
	}
	if f.ID == 0 {
		r.nextFurniID++
		f.ID = r.nextFurniID
	}
	f.Rotation = f.Rotation.Normalize()
	if f.State == "" {
		f.State = "0"
	}
	r.nextFurniID = max(r.nextFurniID, f.ID)
	r.furnis[f.ID] = f
	r.occupy(f)
	if f.Kind != structs.WallItem {
		r.events.Emit(events.FloorItemPlacedEvent{Entity: r.entities[byEntity], Furni: f})
	}
	return true
}

func (r *Room) PickupFurni(id, byEntity int) bool {
	f, found := r.furnis[id]
	if !found {
		return false
	}
	r.vacate(f)
	delete(r.furnis, id)
	if f.Kind != structs.WallItem {
		r.events.Emit(events.FloorItemPickedupEvent{Entity: r.entities[byEntity], Furni: f})
	}
	return true
}

// relocateFurni moves f to (x, y) with rotation. The new footprint is checked
// before anything changes, so a rejected move leaves f where it was.
func (r *Room) relocateFurni(f *structs.Furni, x, y int, rotation structs.Rotation) bool {
	if f.Kind == structs.WallItem {
		return false
	}
	moved := f.Snapshot()
	moved.Position = structs.Position{X: x, Y: y}
	moved.Rotation = rotation.Normalize()
	height, ok := r.restingHeight(moved, moved.Footprint(moved.Position))
	if !ok {
		return false
	}
	r.vacate(f)
	f.Position = structs.Position{X: x, Y: y, Z: height}
	f.Rotation = moved.Rotation
	r.occupy(f)
	return true
}

// MoveFurni moves a floor item and fires floorItemMoved.
func (r *Room) MoveFurni(id, x, y int, rotation structs.Rotation, byEntity int) bool {
	f, found := r.furnis[id]
	if !found {
		return false
	}
	from := f.Position
	if !r.relocateFurni(f, x, y, rotation) {
		return false
	}
	r.events.Emit(events.FloorItemMovedEvent{Entity: r.entities[byEntity], Furni: f, From: from})
	return true
}

// WarpFurni moves a floor item without firing any event.
func (r *Room) WarpFurni(id, x, y int, rotation structs.Rotation) bool {
	f, found := r.furnis[id]
	if !found {
		return false
	}
	return r.relocateFurni(f, x, y, rotation)
}

// ToggleState advances the furni to its next interaction mode.
func (r *Room) ToggleState(id int) bool {
	f, found := r.furnis[id]
	if !found {
		return false
	}
	f.State = f.NextState()
	return true
}

// SetState sets any state string, bypassing the mode cycle.
func (r *Room) SetState(id int, state string) bool {
	f, found := r.furnis[id]
	if !found {
		return false
	}
	f.State = state
	return true
}

// Interact toggles the furni on behalf of an entity and fires interact.
func (r *Room) Interact(entityID, furniID int) bool {
	e, found := r.entities[entityID]
	if !found {
		return false
	}
	f, found := r.furnis[furniID]
	if !found {
		return false
	}
	r.wake(e)
	f.State = f.NextState()
	r.events.Emit(events.InteractEvent{Entity: e, Furni: f})
	return true
}

func (r *Room) SetCounter(id, value int) bool {
	return r.SetState(id, strconv.Itoa(value))
}

func (r *Room) Counter(id int) (int, bool) {
	f, found := r.furnis[id]
	if !found {
		return 0, false
	}
	return f.CounterValue(), true
}
