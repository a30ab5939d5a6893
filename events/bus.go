package events

import (
	"fmt"
	"log"
	"slices"

	"github.com/pkg/errors"
	"github.com/zond/juiceroom"
)

// HandlerID identifies a registration for later removal.
type HandlerID uint64

type Handler func(Event) error

type registration struct {
	id      HandlerID
	handler Handler
}

type watcher struct {
	id uint64
	f  func(Event)
}

// Bus dispatches room events to handlers in registration order. It is owned by
// a single room loop and is not safe for concurrent use.
type Bus struct {
	handlers    [kindCount][]registration
	kinds       map[HandlerID]Kind
	nextID      HandlerID
	watchers    []watcher
	nextWatcher uint64
	// OnError receives errors and panics from handlers. Defaults to logging.
	OnError func(Kind, error)
}

func NewBus() *Bus {
	return &Bus{
		kinds: map[HandlerID]Kind{},
	}
}

// On registers handler for kind. Unknown kinds are ignored and return 0.
func (b *Bus) On(kind Kind, handler Handler) HandlerID {
	if !kind.Valid() || handler == nil {
		return 0
	}
	b.nextID++
	id := b.nextID
	b.handlers[kind] = append(b.handlers[kind], registration{id: id, handler: handler})
	b.kinds[id] = kind
	return id
}

// Subscribe registers a handler typed to a single payload type.
func Subscribe[E Event](b *Bus, f func(E) error) HandlerID {
	var zero E
	return b.On(zero.Kind(), func(ev Event) error {
		typed, ok := ev.(E)
		if !ok {
			return errors.Errorf("%v handler got %T", zero.Kind(), ev)
		}
		return f(typed)
	})
}

// Off removes a registration. Returns false if it was already gone.
func (b *Bus) Off(id HandlerID) bool {
	kind, found := b.kinds[id]
	if !found {
		return false
	}
	delete(b.kinds, id)
	regs := b.handlers[kind]
	for i, reg := range regs {
		if reg.id == id {
			b.handlers[kind] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	return true
}

func (b *Bus) Count(kind Kind) int {
	if !kind.Valid() {
		return 0
	}
	return len(b.handlers[kind])
}

// Clear drops every registration.
func (b *Bus) Clear() {
	b.handlers = [kindCount][]registration{}
	b.kinds = map[HandlerID]Kind{}
}

// Emit runs every handler registered for the event kind. A failing handler
// does not prevent the rest from running. Handlers registered during Emit
// see the next event, not this one.
func (b *Bus) Emit(ev Event) int {
	kind := ev.Kind()
	if !kind.Valid() {
		return 0
	}
	regs := b.handlers[kind]
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)
	failures := 0
	for _, reg := range snapshot {
		if _, live := b.kinds[reg.id]; !live {
			continue
		}
		if err := call(reg.handler, ev); err != nil {
			failures++
			b.report(kind, err)
		}
	}
	for _, w := range slices.Clone(b.watchers) {
		f := w.f
		if err := call(func(ev Event) error {
			f(ev)
			return nil
		}, ev); err != nil {
			b.report(kind, err)
		}
	}
	return failures
}

// Watch observes every event after its handlers have run. Watchers are not
// dropped by Clear. The returned func stops watching.
func (b *Bus) Watch(f func(Event)) func() {
	b.nextWatcher++
	id := b.nextWatcher
	b.watchers = append(b.watchers, watcher{id: id, f: f})
	return func() {
		for i, w := range b.watchers {
			if w.id == id {
				b.watchers = append(b.watchers[:i:i], b.watchers[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) report(kind Kind, err error) {
	if b.OnError != nil {
		b.OnError(kind, err)
		return
	}
	log.Printf("%v handler failed: %v\n%s", kind, err, juiceroom.StackTrace(err))
}

func call(handler Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = juiceroom.WithStack(fmt.Errorf("panic: %v", r))
		}
	}()
	return handler(ev)
}
