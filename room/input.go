package room

import (
	"github.com/zond/juiceroom/events"
	"github.com/zond/juiceroom/structs"
	"github.com/zond/juiceroom/wired"
)

// IsOnFurni returns whether the entity stands within the footprint of the furni.
func (r *Room) IsOnFurni(entityID, furniID int) bool {
	e, found := r.entities[entityID]
	if !found {
		return false
	}
	f, found := r.furnis[furniID]
	if !found {
		return false
	}
	return f.Covers(e.Position.X, e.Position.Y)
}

// SelectEntity fires the selection event matching the kind of the target.
func (r *Room) SelectEntity(id, targetID int) bool {
	e, found := r.entities[id]
	if !found {
		return false
	}
	target, found := r.entities[targetID]
	if !found {
		return false
	}
	r.wake(e)
	switch target.Kind {
	case structs.PlayerEntity:
		r.events.Emit(events.PlayerSelectedEvent{Entity: e, Target: target})
	case structs.FakePlayerEntity:
		r.events.Emit(events.FakePlayerSelectedEvent{Entity: e, Target: target})
	default:
		r.events.Emit(events.BotSelectedEvent{Entity: e, Target: target})
	}
	return true
}

func (r *Room) SelectFurni(id, furniID int) bool {
	e, found := r.entities[id]
	if !found {
		return false
	}
	f, found := r.furnis[furniID]
	if !found {
		return false
	}
	r.wake(e)
	r.events.Emit(events.FurniSelectedEvent{Entity: e, Furni: f})
	return true
}

// ClickFloor fires floorClicked for any coordinate, existing tile or not.
func (r *Room) ClickFloor(id, x, y int) bool {
	e, found := r.entities[id]
	if !found {
		return false
	}
	r.wake(e)
	r.events.Emit(events.FloorClickedEvent{Entity: e, X: x, Y: y})
	return true
}

func (r *Room) KeyDown(id int, key string) bool {
	e, found := r.entities[id]
	if !found {
		return false
	}
	r.wake(e)
	r.events.Emit(events.KeyDownEvent{Entity: e, Key: key})
	return true
}

func (r *Room) KeyUp(id int, key string) bool {
	e, found := r.entities[id]
	if !found {
		return false
	}
	r.events.Emit(events.KeyUpEvent{Entity: e, Key: key})
	return true
}

// UIMessage fires uiMessage. The payload is opaque to the room.
func (r *Room) UIMessage(id int, event, data string) bool {
	e, found := r.entities[id]
	if !found {
		return false
	}
	r.events.Emit(events.UIMessageEvent{Entity: e, Event: event, Data: data})
	return true
}

// FireCannon fires cannon for a furni, optionally on behalf of an entity.
func (r *Room) FireCannon(byEntity, furniID int) bool {
	f, found := r.furnis[furniID]
	if !found {
		return false
	}
	r.events.Emit(events.CannonEvent{Entity: r.entities[byEntity], Furni: f})
	return true
}

// TriggerWired fires a named wired trigger with optional selector context.
func (r *Room) TriggerWired(name string, entityID, furniID int, entityIDs, furniIDs []int) bool {
	t := wired.Trigger{Name: name}
	t.Entity = r.entities[entityID]
	t.Furni = r.furnis[furniID]
	for _, id := range entityIDs {
		if e, found := r.entities[id]; found {
			t.Entities = append(t.Entities, e)
		}
	}
	for _, id := range furniIDs {
		if f, found := r.furnis[id]; found {
			t.Furnis = append(t.Furnis, f)
		}
	}
	return r.wired.Trigger(t)
}
