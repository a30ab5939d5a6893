package room

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bxcodec/faker/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/zond/juiceroom/events"
	"github.com/zond/juiceroom/structs"
	"github.com/zond/juiceroom/wired"
)

type mapKV map[string]string

func (m mapKV) Get(key string) (string, bool, error) {
	v, found := m[key]
	return v, found, nil
}

func (m mapKV) Set(key, value string) error {
	m[key] = value
	return nil
}

func (m mapKV) Delete(key string) error {
	delete(m, key)
	return nil
}

func floor(width, length int) string {
	rows := make([]string, length)
	for i := range rows {
		rows[i] = strings.Repeat("0", width)
	}
	return strings.Join(rows, "\r\n")
}

func withRoom(t *testing.T, heightmap string, f func(r *Room)) {
	t.Helper()
	r, err := New(1, Options{
		Name:      "test",
		Heightmap: heightmap,
		Storage:   mapKV{},
		Global:    mapKV{},
		Logf:      t.Logf,
	})
	if err != nil {
		t.Fatal(err)
	}
	f(r)
}

func addPlayer(t *testing.T, r *Room, x, y int) *structs.Entity {
	t.Helper()
	e := &structs.Entity{
		Kind:     structs.PlayerEntity,
		UserID:   int64(r.EntityCount() + 100),
		Username: faker.Username(),
	}
	if !r.AddEntity(e, x, y) {
		t.Fatalf("unable to add %+v at (%v,%v)", e, x, y)
	}
	return e
}

var chair = &structs.FurnitureDefinition{ID: 1, Width: 1, Length: 1, StackHeight: 1, CanSit: true}
var table = &structs.FurnitureDefinition{ID: 2, Width: 2, Length: 1, StackHeight: 1, CanStack: true}
var wall = &structs.FurnitureDefinition{ID: 3, Width: 1, Length: 1, StackHeight: 2}
var rug = &structs.FurnitureDefinition{ID: 4, Width: 2, Length: 2, StackHeight: 0.1, CanStack: true, CanWalk: true}

func place(t *testing.T, r *Room, def *structs.FurnitureDefinition, x, y int) *structs.Furni {
	t.Helper()
	f := &structs.Furni{
		DefinitionID: def.ID,
		SpriteID:     def.ID * 10,
		Position:     structs.Position{X: x, Y: y},
		Definition:   def,
	}
	if !r.PlaceFurni(f, 0) {
		t.Fatalf("unable to place %+v", f)
	}
	return f
}

func TestWalkCorridor(t *testing.T) {
	withRoom(t, floor(12, 8), func(r *Room) {
		r.Config().SetDiagonal(false)
		e := addPlayer(t, r, 5, 5)
		walks := 0
		events.Subscribe(r.Events(), func(ev events.WalkEvent) error {
			walks++
			return nil
		})
		if !r.Walk(e.ID, 10, 5) {
			t.Fatalf("walk refused")
		}
		for i := 1; i <= 5; i++ {
			r.Tick()
			if e.Position.X != 5+i || e.Position.Y != 5 {
				t.Fatalf("after %v ticks at %v", i, e.Position)
			}
		}
		if e.IsWalking() {
			t.Errorf("still walking at goal")
		}
		if walks != 5 {
			t.Errorf("got %v walk events, want 5", walks)
		}
		r.Tick()
		if !e.Position.Is(10, 5) {
			t.Errorf("moved after reaching goal: %v", e.Position)
		}
		if diff := cmp.Diff([]int{e.ID}, r.GetEntitiesByCoord(10, 5).IDs()); diff != "" {
			t.Errorf("tile occupancy: %v", diff)
		}
		if len(r.GetEntitiesByCoord(5, 5)) != 0 {
			t.Errorf("old tile still lists entity")
		}
	})
}

func TestInvalidMovesAreNoops(t *testing.T) {
	withRoom(t, "00000\r\n0xx00\r\n00000", func(r *Room) {
		e := addPlayer(t, r, 0, 0)
		other := addPlayer(t, r, 4, 2)
		place(t, r, wall, 3, 0)
		for _, tc := range []struct{ x, y int }{{1, 1}, {9, 9}, {-1, 0}, {3, 0}, {4, 2}} {
			if r.Walk(e.ID, tc.x, tc.y) {
				t.Errorf("walk to (%v,%v) accepted", tc.x, tc.y)
			}
			if r.Teleport(e.ID, tc.x, tc.y) {
				t.Errorf("teleport to (%v,%v) accepted", tc.x, tc.y)
			}
			if !e.Position.Is(0, 0) || e.IsWalking() {
				t.Fatalf("entity moved to %v", e.Position)
			}
		}
		r.Config().SetWalkthrough(true)
		if !r.Teleport(e.ID, 4, 2) {
			t.Errorf("walkthrough teleport onto occupied tile refused")
		}
		if diff := cmp.Diff([]int{e.ID, other.ID}, r.GetEntitiesByCoord(4, 2).IDs()); diff != "" {
			t.Errorf("shared tile: %v", diff)
		}
		if r.Walk(999, 1, 0) {
			t.Errorf("unknown entity walked")
		}
	})
}

func TestWalkAroundFurniAndSit(t *testing.T) {
	withRoom(t, floor(5, 3), func(r *Room) {
		e := addPlayer(t, r, 0, 1)
		place(t, r, wall, 2, 1)
		c := place(t, r, chair, 4, 1)
		c.Rotation = structs.West
		stepOns := []int{}
		events.Subscribe(r.Events(), func(ev events.StepOnEvent) error {
			stepOns = append(stepOns, ev.Furni.ID)
			return nil
		})
		if !r.Walk(e.ID, 4, 1) {
			t.Fatalf("walk to chair refused")
		}
		for i := 0; i < 10 && e.IsWalking(); i++ {
			r.Tick()
			if e.Position.Is(2, 1) {
				t.Fatalf("walked through wall")
			}
		}
		if !e.Position.Is(4, 1) {
			t.Fatalf("got %v, want chair", e.Position)
		}
		if !e.HasStatus(structs.StatusSit) || e.BodyRotation != structs.West {
			t.Errorf("not sitting properly: %+v", e)
		}
		if diff := cmp.Diff([]int{c.ID}, stepOns); diff != "" {
			t.Errorf("stepOn: %v", diff)
		}
		if !r.IsOnFurni(e.ID, c.ID) {
			t.Errorf("IsOnFurni false on chair")
		}
	})
}

func TestMakeEntityPath(t *testing.T) {
	withRoom(t, floor(5, 5), func(r *Room) {
		e := addPlayer(t, r, 0, 0)
		got := r.MakeEntityPath(e.ID, 2, 1, true)
		want := []structs.Position{{X: 1, Y: 0}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("axis aligned step first: %v", diff)
		}
		if got := r.MakeEntityPath(e.ID, 0, 0, true); len(got) != 0 {
			t.Errorf("got %v at goal", got)
		}
		if got := r.MakeEntityPath(e.ID, 7, 7, true); got != nil {
			t.Errorf("got %v off grid", got)
		}
	})
}

func TestMoveFurni(t *testing.T) {
	withRoom(t, floor(6, 6), func(r *Room) {
		f := place(t, r, table, 1, 1)
		moves := 0
		events.Subscribe(r.Events(), func(ev events.FloorItemMovedEvent) error {
			moves++
			if !ev.From.Is(1, 1) {
				t.Errorf("got from %v", ev.From)
			}
			return nil
		})
		if !r.MoveFurni(f.ID, 3, 3, structs.North, 0) {
			t.Fatalf("move refused")
		}
		for _, pos := range [][2]int{{3, 3}, {4, 3}} {
			if diff := cmp.Diff([]int{f.ID}, r.GetFurniByTile(pos[0], pos[1]).IDs()); diff != "" {
				t.Errorf("new footprint %v: %v", pos, diff)
			}
		}
		for _, pos := range [][2]int{{1, 1}, {2, 1}} {
			if len(r.GetFurniByTile(pos[0], pos[1])) != 0 {
				t.Errorf("old footprint %v still lists furni", pos)
			}
		}
		if r.MoveFurni(f.ID, 5, 0, structs.North, 0) {
			t.Errorf("move off grid accepted")
		}
		if !f.Position.Is(3, 3) || len(r.GetFurniByTile(3, 3)) != 1 || len(r.GetFurniByTile(5, 0)) != 0 {
			t.Errorf("rejected move changed state: %v", f.Position)
		}
		if !r.WarpFurni(f.ID, 4, 0, structs.East) {
			t.Fatalf("warp refused")
		}
		if diff := cmp.Diff([]int{f.ID}, r.GetFurniByTile(4, 1).IDs()); diff != "" {
			t.Errorf("rotated footprint: %v", diff)
		}
		if moves != 1 {
			t.Errorf("got %v move events, want 1", moves)
		}
	})
}

func TestStacking(t *testing.T) {
	withRoom(t, "0000\r\n0110", func(r *Room) {
		base := place(t, r, table, 1, 1)
		if base.Position.Z != 1 {
			t.Errorf("got table z %v, want 1", base.Position.Z)
		}
		top := place(t, r, chair, 2, 1)
		if top.Position.Z != 2 {
			t.Errorf("got chair z %v, want 2", top.Position.Z)
		}
		if h := r.WalkHeight(2, 1); h != 3 {
			t.Errorf("got walk height %v, want 3", h)
		}
		if got := r.topFurni(2, 1); got != top {
			t.Errorf("got top %v", got)
		}
		w := place(t, r, wall, 0, 0)
		if r.PlaceFurni(&structs.Furni{Position: structs.Position{X: 0, Y: 0}, Definition: chair}, 0) {
			t.Errorf("stacked on unstackable furni")
		}
		h := 7.0
		r.SetTileHeight(0, 0, &h)
		if r.WalkHeight(0, 0) != 7 {
			t.Errorf("override ignored")
		}
		if !r.PickupFurni(w.ID, 0) || len(r.GetFurniByTile(0, 0)) != 0 {
			t.Errorf("pickup failed")
		}
		if got := r.GetAllFurnisBySpriteID(chair.ID * 10); len(got) != 1 || got[0] != top {
			t.Errorf("got %v by sprite", got)
		}
	})
}

func TestToggleAndCounter(t *testing.T) {
	withRoom(t, floor(3, 3), func(r *Room) {
		e := addPlayer(t, r, 0, 0)
		lamp := place(t, r, &structs.FurnitureDefinition{ID: 9, InteractionModesCount: 2, CanStack: true}, 1, 1)
		interactions := 0
		events.Subscribe(r.Events(), func(ev events.InteractEvent) error {
			interactions++
			return nil
		})
		states := []string{}
		for i := 0; i < 3; i++ {
			r.Interact(e.ID, lamp.ID)
			states = append(states, lamp.State)
		}
		if diff := cmp.Diff([]string{"1", "0", "1"}, states); diff != "" {
			t.Errorf("states: %v", diff)
		}
		if interactions != 3 {
			t.Errorf("got %v interactions", interactions)
		}
		r.SetState(lamp.ID, "disco")
		if lamp.State != "disco" {
			t.Errorf("SetState ignored")
		}
		r.SetCounter(lamp.ID, 42)
		if n, ok := r.Counter(lamp.ID); !ok || n != 42 {
			t.Errorf("got counter %v, %v", n, ok)
		}
	})
}

func TestEntityIndex(t *testing.T) {
	withRoom(t, floor(4, 4), func(r *Room) {
		e := addPlayer(t, r, 1, 1)
		if r.GetEntityByUsername(strings.ToUpper(e.Username)) != e {
			t.Errorf("username lookup is case sensitive")
		}
		dup := &structs.Entity{Username: strings.ToUpper(e.Username)}
		if r.AddEntity(dup, 2, 2) {
			t.Errorf("duplicate username accepted")
		}
		bot := r.SpawnFakeBot("bot", "", 3, 3)
		fake := r.SpawnFakePlayer("fake", "", 2, 1)
		if bot == nil || fake == nil {
			t.Fatalf("spawn failed")
		}
		if diff := cmp.Diff([]int{e.ID, fake.ID}, r.GetEntitiesByArea(0, 0, 3, 1).IDs()); diff != "" {
			t.Errorf("area: %v", diff)
		}
		leaves := 0
		events.Subscribe(r.Events(), func(ev events.UserLeaveEvent) error {
			leaves++
			return nil
		})
		r.RemoveEntity(bot.ID)
		r.RemoveEntity(e.ID)
		if leaves != 1 {
			t.Errorf("got %v leave events, want 1 for the player", leaves)
		}
		if r.GetEntityByID(e.ID) != nil || len(r.GetEntitiesByCoord(1, 1)) != 0 {
			t.Errorf("entity not removed")
		}
	})
}

func TestSayAndCommands(t *testing.T) {
	withRoom(t, floor(3, 3), func(r *Room) {
		e := addPlayer(t, r, 0, 0)
		said := []string{}
		events.Subscribe(r.Events(), func(ev events.SayEvent) error {
			said = append(said, ev.Message)
			return nil
		})
		rests := []string{}
		r.Commands().Register([]string{":dance", ":DISCO"}, true, func(e *structs.Entity, rest string) error {
			rests = append(rests, rest)
			return nil
		})
		r.Commands().Register([]string{"please"}, false, func(e *structs.Entity, rest string) error {
			rests = append(rests, "please:"+rest)
			return errors.New("handled anyway")
		})
		r.Say(e.ID, ":disco  now   fast", false)
		r.Say(e.ID, "hello :dance", false)
		r.Say(e.ID, "dance please now", false)

		if diff := cmp.Diff([]string{"now   fast", "please:dance now"}, rests); diff != "" {
			t.Errorf("commands: %v", diff)
		}
		if diff := cmp.Diff([]string{"hello :dance"}, said); diff != "" {
			t.Errorf("said: %v", diff)
		}

		dispatch := func() []string {
			rests = nil
			said = nil
			r.Say(e.ID, "please go", false)
			return append(rests, said...)
		}
		before := dispatch()
		r.Commands().Register([]string{"please"}, false, func(*structs.Entity, string) error {
			t.Errorf("shadowing command ran")
			return nil
		})
		r.Commands().Unregister("please")
		if diff := cmp.Diff(before, dispatch()); diff != "" {
			t.Errorf("register+unregister changed dispatch: %v", diff)
		}
		r.Commands().Unregister("please")
		if diff := cmp.Diff([]string{"please go"}, dispatch()); diff != "" {
			t.Errorf("after unregister: %v", diff)
		}
	})
}

func TestHandlerIsolation(t *testing.T) {
	withRoom(t, floor(3, 3), func(r *Room) {
		ticks := 0
		r.Events().On(events.Tick, func(events.Event) error {
			panic("broken script")
		})
		r.Events().On(events.Tick, func(events.Event) error {
			ticks++
			return nil
		})
		r.Tick()
		r.Tick()
		if ticks != 2 {
			t.Errorf("got %v ticks, want 2", ticks)
		}
		if r.CurrentTick() != 2 {
			t.Errorf("got tick %v", r.CurrentTick())
		}
	})
}

func TestDelays(t *testing.T) {
	withRoom(t, floor(3, 3), func(r *Room) {
		ran := []string{}
		r.Ticks().Wait(2, func() { ran = append(ran, "tick") })
		cancelled := r.Ticks().Wait(2, func() { ran = append(ran, "cancelled") })
		r.Millis().Wait(100, func() { ran = append(ran, "millis") })
		r.Tick()
		r.Ticks().Cancel(cancelled)
		r.Tick()
		r.ShortTick(60 * time.Millisecond)
		r.ShortTick(60 * time.Millisecond)
		if diff := cmp.Diff([]string{"tick", "millis"}, ran); diff != "" {
			t.Errorf("delays: %v", diff)
		}
		if r.Ticks().Cancel(cancelled) {
			t.Errorf("second cancel reported success")
		}
	})
}

func TestIdle(t *testing.T) {
	withRoom(t, floor(3, 3), func(r *Room) {
		r.Config().SetIdleTicks(2)
		e := addPlayer(t, r, 0, 0)
		got := []string{}
		events.Subscribe(r.Events(), func(ev events.UserIdleEvent) error {
			got = append(got, "idle")
			return nil
		})
		events.Subscribe(r.Events(), func(ev events.UserWakeUpEvent) error {
			got = append(got, "wake")
			return nil
		})
		r.Tick()
		r.Tick()
		r.Tick()
		r.SetDance(e.ID, 1)
		if diff := cmp.Diff([]string{"idle", "wake"}, got); diff != "" {
			t.Errorf("idle: %v", diff)
		}
	})
}

func TestVariables(t *testing.T) {
	storage := mapKV{}
	r, err := New(7, Options{Heightmap: "000", Storage: storage, Logf: t.Logf})
	if err != nil {
		t.Fatal(err)
	}
	e := addPlayer(t, r, 0, 0)
	r.DefineVariable(structs.Variable{
		Name:                "points",
		Scope:               structs.UserVariable,
		Type:                structs.NumberVariable,
		Availability:        structs.Persistent,
		CanWriteTo:          true,
		CanInterceptChanges: true,
		Default:             "0",
	})
	r.DefineVariable(structs.Variable{Name: "locked", Scope: structs.RoomVariable})
	intercepted := []*structs.Entity{}
	r.Wired().On(InterceptPrefix+"points", func(t wired.Trigger) error {
		intercepted = append(intercepted, t.Entity)
		return nil
	})
	holder := HolderOf(e)
	if v, found := r.GetVariable(structs.UserVariable, "points", holder); found || v != "0" {
		t.Errorf("got %q, %v before set", v, found)
	}
	if r.SetVariable(structs.UserVariable, "points", holder, "many") {
		t.Errorf("non numeric value accepted")
	}
	if !r.SetVariable(structs.UserVariable, "points", holder, "5") {
		t.Fatalf("set refused")
	}
	if r.SetVariable(structs.RoomVariable, "locked", 0, "x") {
		t.Errorf("read only variable written")
	}
	if storage[(&structs.Variable{Name: "points", Scope: structs.UserVariable}).Key(holder)] != "5" {
		t.Errorf("persistent value not written through: %v", storage)
	}
	if diff := cmp.Diff([]int{e.ID}, structs.Entities(intercepted).IDs()); diff != "" {
		t.Errorf("intercept: %v", diff)
	}

	r2, err := New(7, Options{Heightmap: "000", Storage: storage, Logf: t.Logf})
	if err != nil {
		t.Fatal(err)
	}
	r2.DefineVariable(*r.Variable(structs.UserVariable, "points"))
	if v, found := r2.GetVariable(structs.UserVariable, "points", holder); !found || v != "5" {
		t.Errorf("got %q, %v after reload", v, found)
	}
	if !r2.DeleteVariable(structs.UserVariable, "points", holder) || len(storage) != 0 {
		t.Errorf("delete did not reach storage: %v", storage)
	}
}

func TestLoop(t *testing.T) {
	withRoom(t, floor(3, 3), func(r *Room) {
		r.Config().SetTickInterval(time.Hour)
		r.Config().SetShortTickInterval(time.Hour)
		disposed := 0
		r.Events().On(events.Dispose, func(events.Event) error {
			disposed++
			return nil
		})
		ctx := context.Background()
		r.Start(ctx)
		var e *structs.Entity
		if err := r.Do(ctx, func(r *Room) error {
			e = r.SpawnFakePlayer("looper", "", 1, 1)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
		posted := make(chan string, 1)
		if !r.Post(func(r *Room) {
			posted <- r.GetEntityByID(e.ID).Username
		}) {
			t.Fatalf("post refused")
		}
		if got := <-posted; got != "looper" {
			t.Errorf("got %q", got)
		}
		wantErr := errors.New("fail")
		if err := r.Do(ctx, func(*Room) error { return wantErr }); !errors.Is(err, wantErr) {
			t.Errorf("got %v, want %v", err, wantErr)
		}
		if err := r.Do(ctx, func(*Room) error { panic("boom") }); err == nil {
			t.Errorf("panic not reported")
		}
		r.Close()
		r.Close()
		if disposed != 1 {
			t.Errorf("got %v dispose events, want 1", disposed)
		}
		if r.Post(func(*Room) {}) {
			t.Errorf("post accepted after close")
		}
		if err := r.Do(ctx, func(*Room) error { return nil }); !errors.Is(err, ErrClosed) {
			t.Errorf("got %v after close", err)
		}
	})
}

func TestCloseUnstarted(t *testing.T) {
	withRoom(t, floor(1, 1), func(r *Room) {
		disposed := false
		r.Events().On(events.Dispose, func(events.Event) error {
			disposed = true
			return nil
		})
		r.Close()
		if !disposed {
			t.Errorf("dispose not fired")
		}
		select {
		case <-r.Done():
		default:
			t.Errorf("done not closed")
		}
	})
}

func TestGlobalVariablesAcrossRooms(t *testing.T) {
	global := mapKV{}
	score := structs.Variable{
		Name:         "score",
		Scope:        structs.GlobalVariable,
		Type:         structs.NumberVariable,
		Availability: structs.Persistent,
		CanWriteTo:   true,
		Default:      "0",
	}
	rooms := []*Room{}
	for _, id := range []int{1, 2} {
		r, err := New(id, Options{Heightmap: "000", Storage: mapKV{}, Global: global, Logf: t.Logf})
		if err != nil {
			t.Fatal(err)
		}
		r.DefineVariable(score)
		rooms = append(rooms, r)
	}
	if !rooms[0].SetVariable(structs.GlobalVariable, "score", 0, "1") {
		t.Fatal("set refused")
	}
	if v, _ := rooms[1].GetVariable(structs.GlobalVariable, "score", 0); v != "1" {
		t.Errorf("room 2 got %q, want 1", v)
	}
	if !rooms[1].SetVariable(structs.GlobalVariable, "score", 0, "2") {
		t.Fatal("set refused")
	}
	if v, _ := rooms[0].GetVariable(structs.GlobalVariable, "score", 0); v != "2" {
		t.Errorf("room 1 got %q after room 2 set 2", v)
	}
	if !rooms[1].DeleteVariable(structs.GlobalVariable, "score", 0) {
		t.Fatal("delete refused")
	}
	if v, found := rooms[0].GetVariable(structs.GlobalVariable, "score", 0); found || v != "0" {
		t.Errorf("room 1 got %q, %v after room 2 deleted it", v, found)
	}
}
