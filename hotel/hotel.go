// Package hotel keeps track of the loaded rooms, loads them from storage with
// their scripts, and carries messages between them.
package hotel

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"sync"

	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/events"
	"github.com/zond/juiceroom/js"
	"github.com/zond/juiceroom/js/imports"
	"github.com/zond/juiceroom/room"
	"github.com/zond/juiceroom/storage"
)

type Options struct {
	Storage *storage.Storage
	// Library resolves `// @import` lines of room scripts. Optional.
	Library *imports.Bundler
	// Console returns where the script of a room logs. Optional.
	Console func(roomID int) io.Writer
	// Stats receives script execution times. Optional.
	Stats     js.Recorder
	InboxSize int
	Logf      func(format string, args ...any)
}

type loaded struct {
	room *room.Room
	// host is only touched from the room loop, or after it stopped.
	host *js.Host
}

type Hotel struct {
	opts    Options
	ctx     context.Context
	cancel  context.CancelFunc
	rooms   *juiceroom.SyncMap[int, *loaded]
	loadMu  sync.Mutex
	closing bool
}

func New(ctx context.Context, opts Options) *Hotel {
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	if opts.Library == nil {
		opts.Library = imports.NewBundler(nil)
	}
	h := &Hotel{
		opts:  opts,
		rooms: juiceroom.NewSyncMap[int, *loaded](),
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	return h
}

// Room returns a loaded room, or nil.
func (h *Hotel) Room(id int) *room.Room {
	if l, found := h.rooms.GetHas(id); found {
		return l.room
	}
	return nil
}

// Rooms returns the ids of the loaded rooms in order.
func (h *Hotel) Rooms() []int {
	result := []int{}
	for id := range h.rooms.Each() {
		result = append(result, id)
	}
	slices.Sort(result)
	return result
}

func (h *Hotel) console(id int) io.Writer {
	if h.opts.Console == nil {
		return nil
	}
	return h.opts.Console(id)
}

func origin(roomID int) string {
	return fmt.Sprintf("/rooms/%d.js", roomID)
}

// bind runs the script of a room in a fresh host. Must be called from the
// room loop, or before it started.
func (h *Hotel) bind(ctx context.Context, r *room.Room, script string) (*js.Host, error) {
	if script == "" {
		return nil, nil
	}
	bundle, err := h.opts.Library.Bundle(ctx, origin(r.ID()), script)
	if err != nil {
		return nil, err
	}
	host, err := js.New(js.Options{
		Room:          r,
		RoomStorage:   h.opts.Storage.RoomStorage(r.ID()),
		GlobalStorage: h.opts.Storage.GlobalStorage(),
		Database:      h.opts.Storage.Docs(),
		Definition:    h.opts.Storage.Definition,
		SendMessage: func(to int, event, data string) bool {
			return h.SendMessageToRoom(r.ID(), to, event, data)
		},
		Console: h.console(r.ID()),
		Stats:   h.opts.Stats,
	})
	if err != nil {
		return nil, err
	}
	if err := host.Run(bundle.Source, origin(r.ID())); err != nil {
		host.Close()
		return nil, err
	}
	return host, nil
}

// LoadRoom returns the room if it's loaded, and loads and starts it otherwise.
// A failing script leaves the room running without one.
func (h *Hotel) LoadRoom(ctx context.Context, id int) (*room.Room, error) {
	if r := h.Room(id); r != nil {
		return r, nil
	}
	h.loadMu.Lock()
	defer h.loadMu.Unlock()
	if h.closing {
		return nil, juiceroom.WithStack(room.ErrClosed)
	}
	if r := h.Room(id); r != nil {
		return r, nil
	}
	record, err := h.opts.Storage.LoadRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	config, err := record.RoomConfig()
	if err != nil {
		return nil, err
	}
	r, err := room.New(id, room.Options{
		Name:      record.Name,
		Heightmap: record.Heightmap,
		Config:    config,
		Storage:   h.opts.Storage.RoomStorage(id),
		Global:    h.opts.Storage.GlobalStorage(),
		InboxSize: h.opts.InboxSize,
		Logf:      h.opts.Logf,
	})
	if err != nil {
		return nil, err
	}
	furnis, err := h.opts.Storage.LoadFurni(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, f := range furnis {
		if !r.PlaceFurni(f, 0) {
			h.opts.Logf("room %d: furni %d at %v doesn't fit, skipping", id, f.ID, f.Position)
		}
	}
	host, err := h.bind(ctx, r, record.Script)
	if err != nil {
		h.opts.Logf("room %d: script failed: %v\n%s", id, err, juiceroom.StackTrace(err))
	}
	r.Load()
	h.rooms.Set(id, &loaded{room: r, host: host})
	r.Start(h.ctx)
	h.opts.Storage.AuditLog(ctx, "ROOM_LOAD", storage.AuditRoomLoad{
		Caller: callerOf(ctx),
		Room:   id,
		Script: host != nil,
	})
	return r, nil
}

type callerKey struct{}

// WithCaller records who causes room loads and reloads, for the audit log.
func WithCaller(ctx context.Context, ref storage.AuditRef) context.Context {
	return context.WithValue(ctx, callerKey{}, ref)
}

func callerOf(ctx context.Context) storage.AuditRef {
	if ref, ok := ctx.Value(callerKey{}).(storage.AuditRef); ok {
		return ref
	}
	return storage.SystemRef()
}

// ReloadScript replaces the script of a loaded room with the stored one. The
// old script sees dispose, the new one load.
func (h *Hotel) ReloadScript(ctx context.Context, id int) error {
	l, found := h.rooms.GetHas(id)
	if !found {
		return juiceroom.WithStack(fmt.Errorf("room %d not loaded", id))
	}
	record, err := h.opts.Storage.LoadRoom(ctx, id)
	if err != nil {
		return err
	}
	h.opts.Library.ForgetAll()
	if err := l.room.Do(ctx, func(r *room.Room) error {
		r.Unbind()
		if l.host != nil {
			l.host.Close()
			l.host = nil
		}
		host, err := h.bind(ctx, r, record.Script)
		l.host = host
		r.Load()
		return err
	}); err != nil {
		return err
	}
	h.opts.Storage.AuditLog(ctx, "SCRIPT_RELOAD", storage.AuditScriptReload{
		Caller: callerOf(ctx),
		Room:   id,
		Bytes:  len(record.Script),
	})
	return nil
}

// Eval runs source in the script of a loaded room.
func (h *Hotel) Eval(ctx context.Context, id int, source string) (string, error) {
	l, found := h.rooms.GetHas(id)
	if !found {
		return "", juiceroom.WithStack(fmt.Errorf("room %d not loaded", id))
	}
	result := ""
	err := l.room.Do(ctx, func(r *room.Room) error {
		if l.host == nil {
			return fmt.Errorf("room %d has no script", id)
		}
		var err error
		result, err = l.host.Eval(source)
		return err
	})
	return result, err
}

// Watch calls f with every event of a loaded room, on the room loop. f must
// not block.
func (h *Hotel) Watch(ctx context.Context, id int, f func(events.Event)) (func(), error) {
	l, found := h.rooms.GetHas(id)
	if !found {
		return nil, juiceroom.WithStack(fmt.Errorf("room %d not loaded", id))
	}
	var stop func()
	if err := l.room.Do(ctx, func(r *room.Room) error {
		stop = r.Events().Watch(f)
		return nil
	}); err != nil {
		return nil, err
	}
	return func() {
		l.room.Post(func(*room.Room) {
			stop()
		})
	}, nil
}

// SendMessageToRoom queues a server message for another room. Messages to
// rooms that aren't loaded, or are too busy to take them, are dropped.
func (h *Hotel) SendMessageToRoom(from, to int, event, data string) bool {
	l, found := h.rooms.GetHas(to)
	if !found {
		return false
	}
	return l.room.Post(func(r *room.Room) {
		r.DeliverServerMessage(from, event, data)
	})
}

// save stores the furni of a room. Must be called from the room loop.
func (h *Hotel) save(ctx context.Context, r *room.Room) error {
	errs := juiceroom.Errs{}
	for _, f := range r.Furnis() {
		if err := h.opts.Storage.SaveFurni(ctx, r.ID(), f); err != nil {
			errs = append(errs, err)
		}
	}
	return errs.Err()
}

// UnloadRoom saves and stops a room. Returns false if it wasn't loaded.
func (h *Hotel) UnloadRoom(ctx context.Context, id int) bool {
	h.loadMu.Lock()
	l, found := h.rooms.Pop(id)
	h.loadMu.Unlock()
	if !found {
		return false
	}
	if err := l.room.Do(ctx, func(r *room.Room) error {
		return h.save(ctx, r)
	}); err != nil {
		h.opts.Logf("room %d: saving: %v\n%s", id, err, juiceroom.StackTrace(err))
	}
	l.room.Close()
	if l.host != nil {
		l.host.Close()
	}
	h.opts.Storage.AuditLog(ctx, "ROOM_UNLOAD", storage.AuditRoomUnload{
		Caller: callerOf(ctx),
		Room:   id,
	})
	return true
}

// Close unloads every room. Rooms can't be loaded afterwards.
func (h *Hotel) Close(ctx context.Context) {
	h.loadMu.Lock()
	h.closing = true
	h.loadMu.Unlock()
	for _, id := range h.Rooms() {
		h.UnloadRoom(ctx, id)
	}
	h.cancel()
}
