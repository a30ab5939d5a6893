// Package room runs a single room: its floor, occupants, furniture and the
// logic loop every mutation goes through.
package room

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/delay"
	"github.com/zond/juiceroom/events"
	"github.com/zond/juiceroom/grid"
	"github.com/zond/juiceroom/structs"
	"github.com/zond/juiceroom/wired"
)

const (
	defaultInboxSize = 256
)

var (
	ErrClosed = errors.New("room closed")
)

// KV is the string store persistent variables are written through.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

type Options struct {
	Name      string
	Heightmap string
	Config    *structs.RoomConfig
	// Storage backs persistent room, user and furni variables.
	Storage KV
	// Global backs persistent global variables.
	Global    KV
	InboxSize int
	// Logf receives handler failures and other diagnostics. Defaults to log.Printf.
	Logf func(format string, args ...any)
}

// Room owns all mutable state of one room. Everything except the loop methods
// (Start, Do, Post, Close) must be called from the room loop, or before Start.
type Room struct {
	id     int
	name   string
	grid   *grid.Grid
	config *structs.RoomConfig
	logf   func(format string, args ...any)

	events   *events.Bus
	wired    *wired.Bridge
	ticks    *delay.Scheduler
	millis   *delay.Scheduler
	commands *Commands

	storage KV
	global  KV

	entities       map[int]*structs.Entity
	entitiesByName map[string]*structs.Entity
	nextEntityID   int
	furnis         map[int]*structs.Furni
	nextFurniID    int

	variables map[structs.VariableScope]map[string]*structs.Variable
	values    map[string]string

	tick    uint64
	elapsed time.Duration

	inbox     chan func(*Room)
	stop      chan struct{}
	done      chan struct{}
	started   atomic.Bool
	closeOnce sync.Once
}

func New(id int, opts Options) (*Room, error) {
	g, err := grid.Parse(opts.Heightmap)
	if err != nil {
		return nil, juiceroom.WithStack(errors.Wrapf(err, "room %d", id))
	}
	if opts.Config == nil {
		opts.Config = structs.NewRoomConfig()
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	r := &Room{
		id:             id,
		name:           opts.Name,
		grid:           g,
		config:         opts.Config,
		logf:           opts.Logf,
		events:         events.NewBus(),
		wired:          wired.New(),
		ticks:          delay.New(),
		millis:         delay.New(),
		commands:       NewCommands(),
		storage:        opts.Storage,
		global:         opts.Global,
		entities:       map[int]*structs.Entity{},
		entitiesByName: map[string]*structs.Entity{},
		furnis:         map[int]*structs.Furni{},
		variables:      map[structs.VariableScope]map[string]*structs.Variable{},
		values:         map[string]string{},
		inbox:          make(chan func(*Room), opts.InboxSize),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	r.events.OnError = func(kind events.Kind, err error) {
		r.logf("room %d: %v handler: %v\n%s", r.id, kind, err, juiceroom.StackTrace(err))
	}
	r.wired.OnError = func(name string, err error) {
		r.logf("room %d: wired %q listener: %v\n%s", r.id, name, err, juiceroom.StackTrace(err))
	}
	onDelayError := func(err error) {
		r.logf("room %d: %v\n%s", r.id, err, juiceroom.StackTrace(err))
	}
	r.ticks.OnError = onDelayError
	r.millis.OnError = onDelayError
	r.commands.OnError = func(name string, err error) {
		r.logf("room %d: command %q: %v\n%s", r.id, name, err, juiceroom.StackTrace(err))
	}
	return r, nil
}

func (r *Room) ID() int {
	return r.id
}

func (r *Room) Name() string {
	return r.name
}

func (r *Room) Grid() *grid.Grid {
	return r.grid
}

func (r *Room) Config() *structs.RoomConfig {
	return r.config
}

func (r *Room) Events() *events.Bus {
	return r.events
}

func (r *Room) Wired() *wired.Bridge {
	return r.wired
}

func (r *Room) Commands() *Commands {
	return r.commands
}

// Ticks schedules callbacks in room ticks.
func (r *Room) Ticks() *delay.Scheduler {
	return r.ticks
}

// Millis schedules callbacks in milliseconds, advanced by short ticks.
func (r *Room) Millis() *delay.Scheduler {
	return r.millis
}

func (r *Room) CurrentTick() uint64 {
	return r.tick
}

func (r *Room) String() string {
	return fmt.Sprintf("room %d (%s)", r.id, r.name)
}

// Tick runs one logic step: walking, idle tracking, due tick delays and the
// tick event, in that order.
func (r *Room) Tick() {
	r.tick++
	r.walkAll()
	r.ageAll()
	r.ticks.Advance(r.tick)
	r.events.Emit(events.TickEvent{Tick: r.tick})
}

// ShortTick advances the millisecond clock.
func (r *Room) ShortTick(elapsed time.Duration) {
	r.elapsed += elapsed
	millis := uint64(r.elapsed.Milliseconds())
	r.millis.Advance(millis)
	r.events.Emit(events.ShortTickEvent{Millis: millis})
}

// Load announces that the room is ready, after scripts have registered.
func (r *Room) Load() {
	r.events.Emit(events.LoadEvent{})
}

// DeliverServerMessage emits a message sent from another room.
func (r *Room) DeliverServerMessage(fromRoom int, event, data string) {
	r.events.Emit(events.ServerMessageEvent{
		FromRoom: fromRoom,
		Event:    event,
		Data:     data,
	})
}

// Start runs the room loop until ctx is done or Close is called.
func (r *Room) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.loop(ctx)
}

func (r *Room) loop(ctx context.Context) {
	defer close(r.done)
	tick := time.NewTicker(r.config.GetTickInterval())
	defer tick.Stop()
	shortTick := time.NewTicker(r.config.GetShortTickInterval())
	defer shortTick.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			r.dispose()
			return
		case <-r.stop:
			r.drain()
			r.dispose()
			return
		case f := <-r.inbox:
			r.run(f)
		case <-tick.C:
			r.Tick()
		case now := <-shortTick.C:
			r.ShortTick(now.Sub(last))
			last = now
		}
	}
}

// drain runs what was posted before Close.
func (r *Room) drain() {
	for {
		select {
		case f := <-r.inbox:
			r.run(f)
		default:
			return
		}
	}
}

func (r *Room) run(f func(*Room)) {
	defer func() {
		if e := recover(); e != nil {
			err := juiceroom.WithStack(fmt.Errorf("panic: %v", e))
			r.logf("room %d: %v\n%s", r.id, err, juiceroom.StackTrace(err))
		}
	}()
	f(r)
}

func (r *Room) dispose() {
	r.Unbind()
}

// Unbind fires the dispose event and then drops every event handler, wired
// listener, command and pending delay. Used when a room script is replaced.
func (r *Room) Unbind() {
	r.events.Emit(events.DisposeEvent{})
	r.ticks.CancelAll()
	r.millis.CancelAll()
	r.events.Clear()
	r.wired.Clear()
	r.commands.Clear()
}

// Do runs f on the room loop and waits for it to finish.
func (r *Room) Do(ctx context.Context, f func(*Room) error) error {
	result := make(chan error, 1)
	call := func(r *Room) {
		var err error
		defer func() {
			if e := recover(); e != nil {
				err = juiceroom.WithStack(fmt.Errorf("panic: %v", e))
			}
			result <- err
		}()
		err = f(r)
	}
	select {
	case <-r.done:
		return juiceroom.WithStack(ErrClosed)
	case <-r.stop:
		return juiceroom.WithStack(ErrClosed)
	case <-ctx.Done():
		return ctx.Err()
	case r.inbox <- call:
	}
	select {
	case err := <-result:
		return err
	case <-r.done:
		select {
		case err := <-result:
			return err
		default:
			return juiceroom.WithStack(ErrClosed)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues f on the room loop without waiting. Returns false if the room is
// closed or its inbox is full.
func (r *Room) Post(f func(*Room)) bool {
	select {
	case <-r.stop:
		return false
	default:
	}
	select {
	case r.inbox <- f:
		return true
	default:
		return false
	}
}

// Close disposes the room and stops the loop. Safe to call more than once.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		if r.started.CompareAndSwap(false, true) {
			r.dispose()
			close(r.stop)
			close(r.done)
			return
		}
		close(r.stop)
	})
	<-r.done
}

// Done is closed when the loop has stopped.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func sortedIDs[V any](m map[int]V) []int {
	result := make([]int, 0, len(m))
	for id := range m {
		result = append(result, id)
	}
	slices.Sort(result)
	return result
}
