package room

import (
	"strconv"
	"strings"

	"github.com/zond/juiceroom/events"
	"github.com/zond/juiceroom/structs"
)

// GetEntityByID returns nil if the entity is not in the room.
func (r *Room) GetEntityByID(id int) *structs.Entity {
	return r.entities[id]
}

// GetEntityByUsername ignores case.
func (r *Room) GetEntityByUsername(name string) *structs.Entity {
	return r.entitiesByName[strings.ToLower(name)]
}

// Entities returns every entity ordered by id.
func (r *Room) Entities() structs.Entities {
	result := make(structs.Entities, 0, len(r.entities))
	for _, id := range sortedIDs(r.entities) {
		result = append(result, r.entities[id])
	}
	return result
}

func (r *Room) EntityCount() int {
	return len(r.entities)
}

func (r *Room) GetEntitiesByCoord(x, y int) structs.Entities {
	tile := r.grid.GetTile(x, y)
	if tile == nil {
		return nil
	}
	ids := tile.Entities()
	result := make(structs.Entities, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.entities[id])
	}
	return result
}

func (r *Room) GetEntitiesByArea(x1, y1, x2, y2 int) structs.Entities {
	result := structs.Entities{}
	for tile := range r.grid.Area(x1, y1, x2, y2) {
		for _, id := range tile.Entities() {
			result = append(result, r.entities[id])
		}
	}
	return result
}

// Join places e on the door tile.
func (r *Room) Join(e *structs.Entity) bool {
	door, rotation := r.config.GetDoor()
	e.BodyRotation = rotation
	e.HeadRotation = rotation
	return r.AddEntity(e, door.X, door.Y)
}

// AddEntity places e on (x, y), assigning an id if it has none. Fails if the
// tile doesn't exist, or the id or username is already present. Players
// joining fire userJoin.
func (r *Room) AddEntity(e *structs.Entity, x, y int) bool {
	tile := r.grid.GetTile(x, y)
	if tile == nil || e == nil || e.Username == "" {
		return false
	}
	if _, found := r.entitiesByName[e.LowerUsername()]; found {
		return false
	}
	if e.ID == 0 {
		r.nextEntityID++
		e.ID = r.nextEntityID
	} else if _, found := r.entities[e.ID]; found {
		return false
	}
	r.nextEntityID = max(r.nextEntityID, e.ID)
	e.Position = structs.Position{X: x, Y: y, Z: r.WalkHeight(x, y)}
	e.Goal = nil
	r.entities[e.ID] = e
	r.entitiesByName[e.LowerUsername()] = e
	tile.AddEntity(e.ID)
	r.updatePosture(e)
	if e.Kind == structs.PlayerEntity {
		r.events.Emit(events.UserJoinEvent{Entity: e})
	}
	return true
}

// RemoveEntity takes the entity out of the room. Players leaving fire userLeave
// before they are removed.
func (r *Room) RemoveEntity(id int) bool {
	e, found := r.entities[id]
	if !found {
		return false
	}
	if e.Kind == structs.PlayerEntity {
		r.events.Emit(events.UserLeaveEvent{Entity: e})
	}
	// A leave handler may already have removed it.
	if _, found := r.entities[id]; !found {
		return true
	}
	if tile := r.grid.GetTile(e.Position.X, e.Position.Y); tile != nil {
		tile.RemoveEntity(id)
	}
	delete(r.entities, id)
	delete(r.entitiesByName, e.LowerUsername())
	return true
}

func (r *Room) spawnFake(kind structs.EntityKind, name, figure string, x, y int) *structs.Entity {
	e := &structs.Entity{
		Kind:     kind,
		Username: name,
		Figure:   figure,
	}
	if !r.AddEntity(e, x, y) {
		return nil
	}
	return e
}

// SpawnFakePlayer creates a script owned player without a user record.
func (r *Room) SpawnFakePlayer(name, figure string, x, y int) *structs.Entity {
	return r.spawnFake(structs.FakePlayerEntity, name, figure, x, y)
}

func (r *Room) SpawnFakeBot(name, figure string, x, y int) *structs.Entity {
	return r.spawnFake(structs.FakeBotEntity, name, figure, x, y)
}

// canStand returns whether e may end a move on (x, y).
func (r *Room) canStand(e *structs.Entity, x, y int) bool {
	tile := r.grid.GetTile(x, y)
	if tile == nil || !r.passable(x, y, true) {
		return false
	}
	if !r.config.GetWalkthrough() {
		for _, id := range tile.Entities() {
			if id != e.ID {
				return false
			}
		}
	}
	return true
}

// Walk sets a goal for the entity to walk towards, one step per tick. Returns
// false, leaving the entity untouched, if the goal is unreachable.
func (r *Room) Walk(id, x, y int) bool {
	e, found := r.entities[id]
	if !found || e.Frozen {
		return false
	}
	r.wake(e)
	if e.Position.Is(x, y) {
		r.stopWalking(e)
		return true
	}
	if !r.canStand(e, x, y) {
		return false
	}
	if len(r.nextStep(e, x, y, r.config.GetDiagonal())) == 0 {
		return false
	}
	e.Goal = &structs.Position{X: x, Y: y, Z: r.WalkHeight(x, y)}
	e.ClearStatus(structs.StatusSit)
	e.ClearStatus(structs.StatusLay)
	return true
}

// Teleport moves the entity at once, firing stepOff and stepOn but not walk.
func (r *Room) Teleport(id, x, y int) bool {
	e, found := r.entities[id]
	if !found || !r.canStand(e, x, y) {
		return false
	}
	r.wake(e)
	r.stopWalking(e)
	r.relocate(e, structs.Position{X: x, Y: y, Z: r.WalkHeight(x, y)})
	return true
}

// Say runs command dispatch and fires say when no command consumed the message.
func (r *Room) Say(id int, message string, shout bool) bool {
	e, found := r.entities[id]
	if !found {
		return false
	}
	r.wake(e)
	if r.commands.Dispatch(e, message) {
		return true
	}
	r.events.Emit(events.SayEvent{
		Entity:  e,
		Message: message,
		Shout:   shout,
	})
	return true
}

func (r *Room) update(id int, f func(e *structs.Entity)) bool {
	e, found := r.entities[id]
	if !found {
		return false
	}
	f(e)
	return true
}

func (r *Room) SetEffect(id, effect int) bool {
	return r.update(id, func(e *structs.Entity) { e.Effect = effect })
}

func (r *Room) SetHandItem(id, item int) bool {
	return r.update(id, func(e *structs.Entity) { e.HandItem = item })
}

func (r *Room) SetDance(id, dance int) bool {
	return r.update(id, func(e *structs.Entity) {
		r.wake(e)
		e.Dance = dance
	})
}

func (r *Room) SetSign(id, sign int) bool {
	return r.update(id, func(e *structs.Entity) {
		r.wake(e)
		e.Sign = sign
		if sign > 0 {
			e.SetStatus(structs.StatusSign, strconv.Itoa(sign))
		} else {
			e.ClearStatus(structs.StatusSign)
		}
	})
}

func (r *Room) SetRotation(id int, body, head structs.Rotation) bool {
	return r.update(id, func(e *structs.Entity) {
		e.BodyRotation = body.Normalize()
		e.HeadRotation = head.Normalize()
	})
}

func (r *Room) SetMotto(id int, motto string) bool {
	return r.update(id, func(e *structs.Entity) { e.Motto = motto })
}

func (r *Room) SetFigure(id int, figure string) bool {
	return r.update(id, func(e *structs.Entity) { e.Figure = figure })
}

// SetFrozen stops the entity and prevents it from walking until unfrozen.
func (r *Room) SetFrozen(id int, frozen bool) bool {
	return r.update(id, func(e *structs.Entity) {
		e.Frozen = frozen
		if frozen {
			r.stopWalking(e)
		}
	})
}

// wake registers activity and fires userWakeUp if the entity was idle.
func (r *Room) wake(e *structs.Entity) {
	if e.Activity() {
		r.events.Emit(events.UserWakeUpEvent{Entity: e})
	}
}

func (r *Room) ageAll() {
	idleTicks := r.config.GetIdleTicks()
	for _, id := range sortedIDs(r.entities) {
		e, found := r.entities[id]
		if !found || e.Kind.Fake() || e.IsWalking() {
			continue
		}
		if e.Age(idleTicks) {
			r.events.Emit(events.UserIdleEvent{Entity: e})
		}
	}
}
