package js

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/delay"
	"github.com/zond/juiceroom/events"
	"github.com/zond/juiceroom/room"
	"github.com/zond/juiceroom/storage/docdb"
	"github.com/zond/juiceroom/structs"
	"github.com/zond/juiceroom/wired"
	"rogchap.com/v8go"
)

func (h *Host) install() error {
	for name, funcs := range map[string]map[string]binding{
		"Room":          h.roomAPI(),
		"Events":        h.eventsAPI(),
		"Wired":         h.wiredAPI(),
		"Delay":         h.delayAPI(),
		"Commands":      h.commandsAPI(),
		"RoomStorage":   kvAPI(h.opts.RoomStorage),
		"GlobalStorage": kvAPI(h.opts.GlobalStorage),
		"Database":      h.databaseAPI(),
		"Variables":     h.variablesAPI(),
		"console":       h.consoleAPI(),
	} {
		if err := h.namespace(name, funcs); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) entity(id int) *structs.Entity {
	if e := h.room.GetEntityByID(id); e != nil {
		return e.Snapshot()
	}
	return nil
}

func (h *Host) furni(id int) *structs.Furni {
	if f := h.room.GetFurniByID(id); f != nil {
		return f.Snapshot()
	}
	return nil
}

func entitySnapshots(es structs.Entities) structs.Entities {
	result := make(structs.Entities, len(es))
	for i, e := range es {
		result[i] = e.Snapshot()
	}
	return result
}

func furniSnapshots(fs structs.Furnis) structs.Furnis {
	result := make(structs.Furnis, len(fs))
	for i, f := range fs {
		result[i] = f.Snapshot()
	}
	return result
}

type tileSnapshot struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Height     float64 `json:"height"`
	WalkHeight float64 `json:"walkHeight"`
	Furnis     []int   `json:"furnis"`
	Entities   []int   `json:"entities"`
}

// entityInt adapts room setters taking an entity and a number.
func (h *Host) entityInt(f func(id, n int) bool) binding {
	return func(a args) (any, error) {
		id, err := a.id(0)
		if err != nil {
			return nil, err
		}
		n, err := a.integer(1)
		if err != nil {
			return nil, err
		}
		return f(id, n), nil
	}
}

// entityXY adapts room operations taking an entity and a coordinate.
func (h *Host) entityXY(f func(id, x, y int) bool) binding {
	return func(a args) (any, error) {
		id, err := a.id(0)
		if err != nil {
			return nil, err
		}
		x, err := a.integer(1)
		if err != nil {
			return nil, err
		}
		y, err := a.integer(2)
		if err != nil {
			return nil, err
		}
		return f(id, x, y), nil
	}
}

func (h *Host) spawn(f func(name, figure string, x, y int) *structs.Entity) binding {
	return func(a args) (any, error) {
		name, err := a.text(0)
		if err != nil {
			return nil, err
		}
		figure := ""
		if a.present(1) {
			figure = a.get(1).String()
		}
		x, err := a.integer(2)
		if err != nil {
			return nil, err
		}
		y, err := a.integer(3)
		if err != nil {
			return nil, err
		}
		if e := f(name, figure, x, y); e != nil {
			return e.Snapshot(), nil
		}
		return (*structs.Entity)(nil), nil
	}
}

func (h *Host) roomAPI() map[string]binding {
	r := h.room
	return map[string]binding{
		"getId": func(args) (any, error) {
			return r.ID(), nil
		},
		"getName": func(args) (any, error) {
			return r.Name(), nil
		},
		"getTick": func(args) (any, error) {
			return float64(r.CurrentTick()), nil
		},
		"getEntityById": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			return h.entity(id), nil
		},
		"getEntityByUsername": func(a args) (any, error) {
			name, err := a.text(0)
			if err != nil {
				return nil, err
			}
			if e := r.GetEntityByUsername(name); e != nil {
				return e.Snapshot(), nil
			}
			return (*structs.Entity)(nil), nil
		},
		"getEntities": func(args) (any, error) {
			return entitySnapshots(r.Entities()), nil
		},
		"getEntityCount": func(args) (any, error) {
			return r.EntityCount(), nil
		},
		"getEntitiesByCoord": func(a args) (any, error) {
			x, err := a.integer(0)
			if err != nil {
				return nil, err
			}
			y, err := a.integer(1)
			if err != nil {
				return nil, err
			}
			return entitySnapshots(r.GetEntitiesByCoord(x, y)), nil
		},
		"getEntitiesByArea": func(a args) (any, error) {
			coords := make([]int, 4)
			for i := range coords {
				n, err := a.integer(i)
				if err != nil {
					return nil, err
				}
				coords[i] = n
			}
			return entitySnapshots(r.GetEntitiesByArea(coords[0], coords[1], coords[2], coords[3])), nil
		},
		"getFurniById": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			return h.furni(id), nil
		},
		"getFurniByTile": func(a args) (any, error) {
			x, err := a.integer(0)
			if err != nil {
				return nil, err
			}
			y, err := a.integer(1)
			if err != nil {
				return nil, err
			}
			return furniSnapshots(r.GetFurniByTile(x, y)), nil
		},
		"getAllFurnisBySpriteId": func(a args) (any, error) {
			sprite, err := a.integer(0)
			if err != nil {
				return nil, err
			}
			return furniSnapshots(r.GetAllFurnisBySpriteID(sprite)), nil
		},
		"getFurnis": func(args) (any, error) {
			return furniSnapshots(r.Furnis()), nil
		},
		"getTile": func(a args) (any, error) {
			x, err := a.integer(0)
			if err != nil {
				return nil, err
			}
			y, err := a.integer(1)
			if err != nil {
				return nil, err
			}
			tile := r.Grid().GetTile(x, y)
			if tile == nil {
				return (*tileSnapshot)(nil), nil
			}
			return &tileSnapshot{
				X:          x,
				Y:          y,
				Height:     tile.BaseHeight(),
				WalkHeight: r.WalkHeight(x, y),
				Furnis:     tile.Furni(),
				Entities:   tile.Entities(),
			}, nil
		},
		"setTileHeight": func(a args) (any, error) {
			x, err := a.integer(0)
			if err != nil {
				return nil, err
			}
			y, err := a.integer(1)
			if err != nil {
				return nil, err
			}
			if !a.present(2) {
				return r.SetTileHeight(x, y, nil), nil
			}
			height, err := a.number(2)
			if err != nil {
				return nil, err
			}
			return r.SetTileHeight(x, y, &height), nil
		},
		"walk":     h.entityXY(r.Walk),
		"teleport": h.entityXY(r.Teleport),
		"isWalking": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			e := r.GetEntityByID(id)
			return e != nil && e.IsWalking(), nil
		},
		"say": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			msg, err := a.text(1)
			if err != nil {
				return nil, err
			}
			return r.Say(id, msg, a.flag(2)), nil
		},
		"shout": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			msg, err := a.text(1)
			if err != nil {
				return nil, err
			}
			return r.Say(id, msg, true), nil
		},
		"setEffect":   h.entityInt(r.SetEffect),
		"setHandItem": h.entityInt(r.SetHandItem),
		"setDance":    h.entityInt(r.SetDance),
		"setSign":     h.entityInt(r.SetSign),
		"setRotation": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			body, err := a.integer(1)
			if err != nil {
				return nil, err
			}
			head := body
			if a.present(2) {
				if head, err = a.integer(2); err != nil {
					return nil, err
				}
			}
			return r.SetRotation(id, structs.Rotation(body), structs.Rotation(head)), nil
		},
		"setMotto": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			motto, err := a.text(1)
			if err != nil {
				return nil, err
			}
			return r.SetMotto(id, motto), nil
		},
		"setFigure": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			figure, err := a.text(1)
			if err != nil {
				return nil, err
			}
			return r.SetFigure(id, figure), nil
		},
		"freeze": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			return r.SetFrozen(id, !a.present(1) || a.flag(1)), nil
		},
		"spawnFakePlayer": h.spawn(r.SpawnFakePlayer),
		"spawnFakeBot":    h.spawn(r.SpawnFakeBot),
		"removeEntity": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			e := r.GetEntityByID(id)
			if e == nil || !e.Kind.Fake() {
				return false, nil
			}
			return r.RemoveEntity(id), nil
		},
		"makeEntityPath": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			x, err := a.integer(1)
			if err != nil {
				return nil, err
			}
			y, err := a.integer(2)
			if err != nil {
				return nil, err
			}
			diagonal := r.Config().GetDiagonal()
			if a.present(3) {
				diagonal = a.flag(3)
			}
			path := r.MakeEntityPath(id, x, y, diagonal)
			if path == nil {
				path = []structs.Position{}
			}
			return path, nil
		},
		"isOnFurni": func(a args) (any, error) {
			eid, err := a.id(0)
			if err != nil {
				return nil, err
			}
			fid, err := a.id(1)
			if err != nil {
				return nil, err
			}
			return r.IsOnFurni(eid, fid), nil
		},
		"moveFurni": func(a args) (any, error) {
			return h.moveFurni(a, func(id, x, y int, rot structs.Rotation) bool {
				return r.MoveFurni(id, x, y, rot, 0)
			})
		},
		"warpFurni": func(a args) (any, error) {
			return h.moveFurni(a, r.WarpFurni)
		},
		"toggleState": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			return r.ToggleState(id), nil
		},
		"setState": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			state, err := a.text(1)
			if err != nil {
				return nil, err
			}
			return r.SetState(id, state), nil
		},
		"setCounter": h.entityInt(r.SetCounter),
		"getCounter": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			if n, found := r.Counter(id); found {
				return n, nil
			}
			return (*int)(nil), nil
		},
		"placeFakeFurni": func(a args) (any, error) {
			defID, err := a.integer(0)
			if err != nil {
				return nil, err
			}
			x, err := a.integer(1)
			if err != nil {
				return nil, err
			}
			y, err := a.integer(2)
			if err != nil {
				return nil, err
			}
			rot := 0
			if a.present(3) {
				if rot, err = a.integer(3); err != nil {
					return nil, err
				}
			}
			if h.opts.Definition == nil {
				return (*structs.Furni)(nil), nil
			}
			ctx, cancel := h.storageContext()
			defer cancel()
			def, err := h.opts.Definition(ctx, defID)
			if err != nil {
				h.log("Room.placeFakeFurni: %v", err)
				return (*structs.Furni)(nil), nil
			}
			f := &structs.Furni{
				DefinitionID: def.ID,
				SpriteID:     def.SpriteID,
				Position:     structs.Position{X: x, Y: y},
				Rotation:     structs.Rotation(rot),
				State:        "0",
				Fake:         true,
				Definition:   def,
			}
			if !r.PlaceFurni(f, 0) {
				return (*structs.Furni)(nil), nil
			}
			return f.Snapshot(), nil
		},
		"removeFurni": func(a args) (any, error) {
			id, err := a.id(0)
			if err != nil {
				return nil, err
			}
			f := r.GetFurniByID(id)
			if f == nil || !f.Fake {
				return false, nil
			}
			return r.PickupFurni(id, 0), nil
		},
		"getDiagonal": func(args) (any, error) {
			return r.Config().GetDiagonal(), nil
		},
		"setDiagonal": func(a args) (any, error) {
			r.Config().SetDiagonal(a.flag(0))
			return nil, nil
		},
		"getWalkthrough": func(args) (any, error) {
			return r.Config().GetWalkthrough(), nil
		},
		"setWalkthrough": func(a args) (any, error) {
			r.Config().SetWalkthrough(a.flag(0))
			return nil, nil
		},
		"sendMessageToRoom": func(a args) (any, error) {
			to, err := a.integer(0)
			if err != nil {
				return nil, err
			}
			event, err := a.text(1)
			if err != nil {
				return nil, err
			}
			data := ""
			if a.present(2) {
				data = a.get(2).String()
			}
			if h.opts.SendMessage == nil {
				return false, nil
			}
			return h.opts.SendMessage(to, event, data), nil
		},
	}
}

func (h *Host) moveFurni(a args, f func(id, x, y int, rot structs.Rotation) bool) (any, error) {
	id, err := a.id(0)
	if err != nil {
		return nil, err
	}
	x, err := a.integer(1)
	if err != nil {
		return nil, err
	}
	y, err := a.integer(2)
	if err != nil {
		return nil, err
	}
	furni := h.room.GetFurniByID(id)
	if furni == nil {
		return false, nil
	}
	rot := furni.Rotation
	if a.present(3) {
		n, err := a.integer(3)
		if err != nil {
			return nil, err
		}
		rot = structs.Rotation(n)
	}
	return f(id, x, y, rot), nil
}

func (h *Host) eventsAPI() map[string]binding {
	return map[string]binding{
		"on": func(a args) (any, error) {
			name, err := a.text(0)
			if err != nil {
				return nil, err
			}
			fn, err := a.function(1)
			if err != nil {
				return nil, err
			}
			kind, found := events.ParseKind(name)
			if !found {
				h.log("Events.on: unknown event %q", name)
				return 0, nil
			}
			return int(h.room.Events().On(kind, func(ev events.Event) error {
				return h.call(fn, ev)
			})), nil
		},
		"off": func(a args) (any, error) {
			id, err := a.integer(0)
			if err != nil {
				return nil, err
			}
			return h.room.Events().Off(events.HandlerID(id)), nil
		},
		"names": func(args) (any, error) {
			result := []string{}
			for _, kind := range events.Kinds() {
				result = append(result, kind.String())
			}
			return result, nil
		},
	}
}

func (h *Host) wiredAPI() map[string]binding {
	w := h.room.Wired()
	return map[string]binding{
		"on": func(a args) (any, error) {
			name, err := a.text(0)
			if err != nil {
				return nil, err
			}
			fn, err := a.function(1)
			if err != nil {
				return nil, err
			}
			return int(w.On(name, func(t wired.Trigger) error {
				return h.call(fn, t)
			})), nil
		},
		"off": func(a args) (any, error) {
			id, err := a.integer(0)
			if err != nil {
				return nil, err
			}
			return w.Off(wired.ListenerID(id)), nil
		},
		"trigger": func(a args) (any, error) {
			name, err := a.text(0)
			if err != nil {
				return nil, err
			}
			entityID, furniID := 0, 0
			if a.present(1) {
				if entityID, err = a.id(1); err != nil {
					return nil, err
				}
			}
			if a.present(2) {
				if furniID, err = a.id(2); err != nil {
					return nil, err
				}
			}
			entityIDs, err := a.ids(3)
			if err != nil {
				return nil, err
			}
			furniIDs, err := a.ids(4)
			if err != nil {
				return nil, err
			}
			return h.room.TriggerWired(name, entityID, furniID, entityIDs, furniIDs), nil
		},
		"setMemoryValue": func(a args) (any, error) {
			key, err := a.text(0)
			if err != nil {
				return nil, err
			}
			value, err := a.text(1)
			if err != nil {
				return nil, err
			}
			w.SetMemoryValue(key, value)
			return nil, nil
		},
		"getMemoryValue": func(a args) (any, error) {
			key, err := a.text(0)
			if err != nil {
				return nil, err
			}
			if v, found := w.GetMemoryValue(key); found {
				return v, nil
			}
			return (*string)(nil), nil
		},
		"deleteMemoryValue": func(a args) (any, error) {
			key, err := a.text(0)
			if err != nil {
				return nil, err
			}
			return w.DeleteMemoryValue(key), nil
		},
	}
}

// schedule registers fn on one of the room clocks and returns a script
// visible id, unique across both clocks.
func (h *Host) schedule(millis, repeat bool, after int, fn *v8go.Function) int {
	scheduler := h.room.Ticks()
	if millis {
		scheduler = h.room.Millis()
	}
	h.nextDelayID++
	scriptID := h.nextDelayID
	run := func() {
		if !repeat {
			delete(h.delays, scriptID)
		}
		if err := h.call(fn); err != nil {
			h.report(fmt.Sprintf("delay %d", scriptID), err)
		}
	}
	var id delay.TaskID
	if repeat {
		id = scheduler.Interval(uint64(max(after, 1)), run)
	} else {
		id = scheduler.Wait(uint64(max(after, 0)), run)
	}
	h.delays[scriptID] = delayRef{millis: millis, id: uint64(id)}
	return scriptID
}

func (h *Host) delayAPI() map[string]binding {
	scheduleBinding := func(millis, repeat bool) binding {
		return func(a args) (any, error) {
			after, err := a.integer(0)
			if err != nil {
				return nil, err
			}
			fn, err := a.function(1)
			if err != nil {
				return nil, err
			}
			return h.schedule(millis, repeat, after, fn), nil
		}
	}
	return map[string]binding{
		"wait":           scheduleBinding(false, false),
		"interval":       scheduleBinding(false, true),
		"waitMillis":     scheduleBinding(true, false),
		"intervalMillis": scheduleBinding(true, true),
		"cancel": func(a args) (any, error) {
			id, err := a.integer(0)
			if err != nil {
				return nil, err
			}
			ref, found := h.delays[id]
			if !found {
				return false, nil
			}
			delete(h.delays, id)
			scheduler := h.room.Ticks()
			if ref.millis {
				scheduler = h.room.Millis()
			}
			return scheduler.Cancel(delay.TaskID(ref.id)), nil
		},
		"cancelAll": func(args) (any, error) {
			for id, ref := range h.delays {
				scheduler := h.room.Ticks()
				if ref.millis {
					scheduler = h.room.Millis()
				}
				scheduler.Cancel(delay.TaskID(ref.id))
				delete(h.delays, id)
			}
			return nil, nil
		},
	}
}

func (h *Host) commandsAPI() map[string]binding {
	c := h.room.Commands()
	return map[string]binding{
		"register": func(a args) (any, error) {
			names, err := a.strings(0)
			if err != nil {
				return nil, err
			}
			fn, err := a.function(2)
			if err != nil {
				return nil, err
			}
			return int(c.Register(names, a.flag(1), func(e *structs.Entity, rest string) error {
				return h.call(fn, e, rest)
			})), nil
		},
		"unregister": func(a args) (any, error) {
			name, err := a.text(0)
			if err != nil {
				return nil, err
			}
			return c.Unregister(name), nil
		},
		"names": func(args) (any, error) {
			return c.Names(), nil
		},
	}
}

func kvAPI(kv KV) map[string]binding {
	missing := fmt.Errorf("no storage configured")
	return map[string]binding{
		"get": func(a args) (any, error) {
			key, err := a.text(0)
			if err != nil {
				return nil, err
			}
			if kv == nil {
				return nil, missing
			}
			value, found, err := kv.Get(key)
			if err != nil {
				log.Printf("storage get %q: %v\n%s", key, err, juiceroom.StackTrace(err))
				return (*string)(nil), nil
			}
			if !found {
				return (*string)(nil), nil
			}
			return value, nil
		},
		"set": func(a args) (any, error) {
			key, err := a.text(0)
			if err != nil {
				return nil, err
			}
			value, err := a.text(1)
			if err != nil {
				return nil, err
			}
			if kv == nil {
				return nil, missing
			}
			if err := kv.Set(key, value); err != nil {
				log.Printf("storage set %q: %v\n%s", key, err, juiceroom.StackTrace(err))
				return false, nil
			}
			return true, nil
		},
		"delete": func(a args) (any, error) {
			key, err := a.text(0)
			if err != nil {
				return nil, err
			}
			if kv == nil {
				return nil, missing
			}
			if err := kv.Delete(key); err != nil {
				log.Printf("storage delete %q: %v\n%s", key, err, juiceroom.StackTrace(err))
				return false, nil
			}
			return true, nil
		},
	}
}

func (h *Host) storageContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.opts.Timeout)
}

type findOptions struct {
	Sort  string `json:"sort"`
	Skip  int    `json:"skip"`
	Limit int    `json:"limit"`
}

// collectionOp adapts a document store operation taking a collection name and a query.
func (h *Host) collectionOp(name string, failed any, f func(ctx context.Context, c *docdb.Collection, q docdb.Query, a args) (any, error)) binding {
	return func(a args) (any, error) {
		coll, err := a.text(0)
		if err != nil {
			return nil, err
		}
		q := docdb.Query{}
		if err := a.decode(1, &q); err != nil {
			return nil, err
		}
		if h.opts.Database == nil {
			return nil, fmt.Errorf("no database configured")
		}
		ctx, cancel := h.storageContext()
		defer cancel()
		result, err := f(ctx, h.opts.Database.Collection(h.room.ID(), coll), q, a)
		if err != nil {
			h.log("Database.%s(%q): %v", name, coll, err)
			return failed, nil
		}
		return result, nil
	}
}

func (h *Host) databaseAPI() map[string]binding {
	return map[string]binding{
		"insert": func(a args) (any, error) {
			coll, err := a.text(0)
			if err != nil {
				return nil, err
			}
			doc := docdb.Document{}
			if err := a.decode(1, &doc); err != nil {
				return nil, err
			}
			if h.opts.Database == nil {
				return nil, fmt.Errorf("no database configured")
			}
			ctx, cancel := h.storageContext()
			defer cancel()
			id, err := h.opts.Database.Collection(h.room.ID(), coll).Insert(ctx, doc)
			if err != nil {
				h.log("Database.insert(%q): %v", coll, err)
				return (*string)(nil), nil
			}
			return id, nil
		},
		"findOne": h.collectionOp("findOne", (docdb.Document)(nil), func(ctx context.Context, c *docdb.Collection, q docdb.Query, _ args) (any, error) {
			return c.FindOne(ctx, q)
		}),
		"find": h.collectionOp("find", []docdb.Document{}, func(ctx context.Context, c *docdb.Collection, q docdb.Query, a args) (any, error) {
			opts := findOptions{}
			if err := a.decode(2, &opts); err != nil {
				return nil, err
			}
			docs, err := c.Find(ctx, q, docdb.FindOptions{Sort: opts.Sort, Skip: opts.Skip, Limit: opts.Limit})
			if err != nil {
				return nil, err
			}
			return docs, nil
		}),
		"count": h.collectionOp("count", 0, func(ctx context.Context, c *docdb.Collection, q docdb.Query, _ args) (any, error) {
			return c.Count(ctx, q)
		}),
		"update": h.collectionOp("update", 0, func(ctx context.Context, c *docdb.Collection, q docdb.Query, a args) (any, error) {
			set := docdb.Document{}
			if err := a.decode(2, &set); err != nil {
				return nil, err
			}
			return c.Update(ctx, q, set)
		}),
		"updateOne": h.collectionOp("updateOne", false, func(ctx context.Context, c *docdb.Collection, q docdb.Query, a args) (any, error) {
			set := docdb.Document{}
			if err := a.decode(2, &set); err != nil {
				return nil, err
			}
			return c.UpdateOne(ctx, q, set)
		}),
		"delete": h.collectionOp("delete", 0, func(ctx context.Context, c *docdb.Collection, q docdb.Query, _ args) (any, error) {
			return c.Delete(ctx, q)
		}),
		"deleteOne": h.collectionOp("deleteOne", false, func(ctx context.Context, c *docdb.Collection, q docdb.Query, _ args) (any, error) {
			return c.DeleteOne(ctx, q)
		}),
		"getCollections": func(args) (any, error) {
			if h.opts.Database == nil {
				return nil, fmt.Errorf("no database configured")
			}
			ctx, cancel := h.storageContext()
			defer cancel()
			names, err := h.opts.Database.Collections(ctx, h.room.ID())
			if err != nil {
				h.log("Database.getCollections: %v", err)
				return []string{}, nil
			}
			return names, nil
		},
		"dropCollection": func(a args) (any, error) {
			coll, err := a.text(0)
			if err != nil {
				return nil, err
			}
			if h.opts.Database == nil {
				return nil, fmt.Errorf("no database configured")
			}
			ctx, cancel := h.storageContext()
			defer cancel()
			dropped, err := h.opts.Database.DropCollection(ctx, h.room.ID(), coll)
			if err != nil {
				h.log("Database.dropCollection(%q): %v", coll, err)
				return false, nil
			}
			return dropped, nil
		},
		"getMaxCollections": func(args) (any, error) {
			if h.opts.Database == nil {
				return 0, nil
			}
			return h.opts.Database.MaxCollections(), nil
		},
	}
}

type variableDefinition struct {
	Name                string `json:"name"`
	Scope               string `json:"scope"`
	Type                string `json:"type"`
	Availability        string `json:"availability"`
	CanWriteTo          *bool  `json:"canWriteTo"`
	CanInterceptChanges bool   `json:"canInterceptChanges"`
	Default             any    `json:"default"`
}

func (d variableDefinition) variable() (structs.Variable, error) {
	scope, err := structs.ParseVariableScope(d.Scope)
	if err != nil {
		return structs.Variable{}, err
	}
	v := structs.Variable{
		Name:                d.Name,
		Scope:               scope,
		CanWriteTo:          d.CanWriteTo == nil || *d.CanWriteTo,
		CanInterceptChanges: d.CanInterceptChanges,
	}
	switch strings.ToLower(d.Type) {
	case "", "string":
		v.Type = structs.StringVariable
	case "number":
		v.Type = structs.NumberVariable
	default:
		return v, fmt.Errorf("unknown variable type %q", d.Type)
	}
	switch strings.ToLower(d.Availability) {
	case "", "temporary":
		v.Availability = structs.Temporary
	case "persistent":
		v.Availability = structs.Persistent
	default:
		return v, fmt.Errorf("unknown availability %q", d.Availability)
	}
	if d.Default != nil {
		v.Default = fmt.Sprint(d.Default)
	}
	return v, nil
}

// holder resolves the third argument of a variable call for the scope.
func (h *Host) holder(scope structs.VariableScope, a args, i int) (int64, error) {
	switch scope {
	case structs.UserVariable:
		id, err := a.id(i)
		if err != nil {
			return 0, err
		}
		e := h.room.GetEntityByID(id)
		if e == nil {
			return 0, fmt.Errorf("no entity %d", id)
		}
		return room.HolderOf(e), nil
	case structs.FurniVariable:
		id, err := a.id(i)
		if err != nil {
			return 0, err
		}
		return int64(id), nil
	}
	return 0, nil
}

// variableArgs parses (scope, name, holder) and reports whether the holder
// exists.
func (h *Host) variableArgs(a args) (structs.VariableScope, string, int64, bool, error) {
	scopeName, err := a.text(0)
	if err != nil {
		return 0, "", 0, false, err
	}
	scope, err := structs.ParseVariableScope(scopeName)
	if err != nil {
		return 0, "", 0, false, err
	}
	name, err := a.text(1)
	if err != nil {
		return 0, "", 0, false, err
	}
	holder, err := h.holder(scope, a, 2)
	if err != nil {
		return scope, name, 0, false, nil
	}
	return scope, name, holder, true, nil
}

func (h *Host) variablesAPI() map[string]binding {
	r := h.room
	return map[string]binding{
		"define": func(a args) (any, error) {
			def := variableDefinition{}
			if err := a.decode(0, &def); err != nil {
				return nil, err
			}
			v, err := def.variable()
			if err != nil {
				return nil, err
			}
			return r.DefineVariable(v), nil
		},
		"undefine": func(a args) (any, error) {
			scopeName, err := a.text(0)
			if err != nil {
				return nil, err
			}
			scope, err := structs.ParseVariableScope(scopeName)
			if err != nil {
				return nil, err
			}
			name, err := a.text(1)
			if err != nil {
				return nil, err
			}
			return r.UndefineVariable(scope, name), nil
		},
		"get": func(a args) (any, error) {
			scope, name, holder, ok, err := h.variableArgs(a)
			if err != nil {
				return nil, err
			}
			if !ok || r.Variable(scope, name) == nil {
				return (*string)(nil), nil
			}
			value, _ := r.GetVariable(scope, name, holder)
			return value, nil
		},
		"set": func(a args) (any, error) {
			scope, name, holder, ok, err := h.variableArgs(a)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			value := a.get(3)
			if value == nil {
				return false, nil
			}
			return r.SetVariable(scope, name, holder, value.String()), nil
		},
		"delete": func(a args) (any, error) {
			scope, name, holder, ok, err := h.variableArgs(a)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			return r.DeleteVariable(scope, name, holder), nil
		},
	}
}

func (h *Host) consoleAPI() map[string]binding {
	write := func(a args) (any, error) {
		parts := make([]any, 0, len(a.values))
		for _, arg := range a.values {
			s := arg.String()
			if arg.IsObject() && !arg.IsFunction() {
				if j, err := v8go.JSONStringify(h.vctx, arg); err == nil {
					s = j
				}
			}
			parts = append(parts, s)
		}
		h.log("%s", strings.TrimSuffix(fmt.Sprintln(parts...), "\n"))
		return nil, nil
	}
	return map[string]binding{
		"log":   write,
		"info":  write,
		"warn":  write,
		"error": write,
	}
}
