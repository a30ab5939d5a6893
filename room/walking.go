package room

import (
	"strconv"

	"github.com/zond/juiceroom/events"
	"github.com/zond/juiceroom/path"
	"github.com/zond/juiceroom/structs"
)

// floorMap answers path queries for one walker.
type floorMap struct {
	r      *Room
	walker int
}

func (m floorMap) Steppable(from, to path.Point, final bool) bool {
	tile := m.r.grid.GetTile(to.X, to.Y)
	if tile == nil || !m.r.passable(to.X, to.Y, final) {
		return false
	}
	if !m.r.config.GetWalkthrough() {
		for _, id := range tile.Entities() {
			if id != m.walker {
				return false
			}
		}
	}
	if m.r.grid.TileExists(from.X, from.Y) {
		if m.r.WalkHeight(to.X, to.Y)-m.r.WalkHeight(from.X, from.Y) > m.r.config.GetMaxStepHeight() {
			return false
		}
	}
	return true
}

// passable returns whether the furni on (x, y) lets an entity through. Seats
// and beds may end a walk but not be walked over.
func (r *Room) passable(x, y int, final bool) bool {
	tile := r.grid.GetTile(x, y)
	if tile == nil {
		return false
	}
	for _, id := range tile.Furni() {
		f := r.furnis[id]
		if f == nil || f.Definition == nil {
			continue
		}
		if f.Definition.Walkable() {
			continue
		}
		if final && f.Definition.Occupiable() {
			continue
		}
		return false
	}
	return true
}

func (r *Room) nextStep(e *structs.Entity, x, y int, diagonal bool) []path.Point {
	return path.NextStep(
		floorMap{r: r, walker: e.ID},
		path.Point{X: e.Position.X, Y: e.Position.Y},
		path.Point{X: x, Y: y},
		diagonal)
}

// MakeEntityPath returns the next step the entity would take towards (x, y),
// or nil if it is there already or cannot get there.
func (r *Room) MakeEntityPath(id, x, y int, diagonal bool) []structs.Position {
	e, found := r.entities[id]
	if !found || !r.grid.TileExists(x, y) {
		return nil
	}
	steps := r.nextStep(e, x, y, diagonal)
	result := make([]structs.Position, len(steps))
	for i, step := range steps {
		result[i] = structs.Position{X: step.X, Y: step.Y, Z: r.WalkHeight(step.X, step.Y)}
	}
	return result
}

func (r *Room) stopWalking(e *structs.Entity) {
	e.Goal = nil
	e.ClearStatus(structs.StatusMove)
}

func (r *Room) walkAll() {
	diagonal := r.config.GetDiagonal()
	for _, id := range sortedIDs(r.entities) {
		e, found := r.entities[id]
		if !found || !e.IsWalking() {
			continue
		}
		r.step(e, diagonal)
	}
}

// step moves e one tile towards its goal, recomputing the path every time
// since the floor may have changed since the last tick.
func (r *Room) step(e *structs.Entity, diagonal bool) {
	if e.Frozen || e.Position.Equals(*e.Goal) {
		r.stopWalking(e)
		return
	}
	steps := r.nextStep(e, e.Goal.X, e.Goal.Y, diagonal)
	if len(steps) == 0 {
		r.stopWalking(e)
		r.updatePosture(e)
		return
	}
	from := e.Position
	to := structs.Position{X: steps[0].X, Y: steps[0].Y, Z: r.WalkHeight(steps[0].X, steps[0].Y)}
	e.BodyRotation = structs.RotationTowards(from, to)
	e.HeadRotation = e.BodyRotation
	e.SetStatus(structs.StatusMove, strconv.Itoa(to.X)+","+strconv.Itoa(to.Y)+","+strconv.FormatFloat(to.Z, 'f', 2, 64))
	goal := *e.Goal
	r.relocate(e, to)
	r.events.Emit(events.WalkEvent{Entity: e, From: from, To: to})
	if _, found := r.entities[e.ID]; !found {
		return
	}
	if e.Goal != nil && e.Position.Equals(goal) {
		r.stopWalking(e)
		r.updatePosture(e)
	}
}

// relocate moves e between tiles, firing stepOff for furni it leaves and
// stepOn for furni it arrives at.
func (r *Room) relocate(e *structs.Entity, to structs.Position) {
	from := e.Position
	fromTile := r.grid.GetTile(from.X, from.Y)
	toTile := r.grid.GetTile(to.X, to.Y)
	left := []int{}
	if fromTile != nil {
		fromTile.RemoveEntity(e.ID)
		for _, id := range fromTile.Furni() {
			if toTile == nil || !toTile.HasFurni(id) {
				left = append(left, id)
			}
		}
	}
	arrived := []int{}
	if toTile != nil {
		toTile.AddEntity(e.ID)
		for _, id := range toTile.Furni() {
			if fromTile == nil || !fromTile.HasFurni(id) {
				arrived = append(arrived, id)
			}
		}
	}
	e.Position = to
	if !e.IsWalking() {
		r.updatePosture(e)
	}
	for _, id := range left {
		if f, found := r.furnis[id]; found {
			r.events.Emit(events.StepOffEvent{Entity: e, Furni: f})
		}
	}
	for _, id := range arrived {
		if f, found := r.furnis[id]; found {
			r.events.Emit(events.StepOnEvent{Entity: e, Furni: f})
		}
	}
}

// updatePosture sits or lays e down if it stands on a seat or bed.
func (r *Room) updatePosture(e *structs.Entity) {
	e.ClearStatus(structs.StatusSit)
	e.ClearStatus(structs.StatusLay)
	seat := r.topFurni(e.Position.X, e.Position.Y)
	if seat == nil || seat.Definition == nil {
		return
	}
	height := strconv.FormatFloat(seat.Definition.StackHeight, 'f', 2, 64)
	switch {
	case seat.Definition.CanSit:
		e.SetStatus(structs.StatusSit, height)
		e.BodyRotation = seat.Rotation
		e.HeadRotation = seat.Rotation
		e.Position.Z = seat.Position.Z
	case seat.Definition.CanLay:
		e.SetStatus(structs.StatusLay, height)
		e.BodyRotation = seat.Rotation
		e.HeadRotation = seat.Rotation
		e.Position.Z = seat.Position.Z
	}
}
