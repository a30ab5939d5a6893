// Package wired connects room scripts with the visual logic blocks placed in
// a room. It is a dispatch namespace separate from room events.
package wired

import (
	"fmt"
	"log"
	"strings"

	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/structs"
)

// Trigger is the context a wired block fires with. Every field except Name is
// optional; Entities and Furnis carry the result of a selector block.
type Trigger struct {
	Name     string           `json:"name"`
	Entity   *structs.Entity  `json:"entity,omitempty"`
	Furni    *structs.Furni   `json:"furni,omitempty"`
	Entities structs.Entities `json:"entities,omitempty"`
	Furnis   structs.Furnis   `json:"furnis,omitempty"`
}

type ListenerID uint64

type Handler func(Trigger) error

type listener struct {
	id      ListenerID
	handler Handler
}

// Bridge holds wired listeners and the wired memory register. It belongs to a
// single room loop and is not safe for concurrent use.
type Bridge struct {
	listeners map[string][]listener
	names     map[ListenerID]string
	memory    map[string]string
	nextID    ListenerID
	// OnError receives errors and panics from listeners. Defaults to logging.
	OnError func(name string, err error)
}

func New() *Bridge {
	return &Bridge{
		listeners: map[string][]listener{},
		names:     map[ListenerID]string{},
		memory:    map[string]string{},
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// On listens for triggers with the given name, compared case-insensitively.
func (b *Bridge) On(name string, handler Handler) ListenerID {
	name = normalize(name)
	if name == "" || handler == nil {
		return 0
	}
	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], listener{id: id, handler: handler})
	b.names[id] = name
	return id
}

func (b *Bridge) Off(id ListenerID) bool {
	name, found := b.names[id]
	if !found {
		return false
	}
	delete(b.names, id)
	ls := b.listeners[name]
	for i, l := range ls {
		if l.id == id {
			ls = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(ls) == 0 {
		delete(b.listeners, name)
	} else {
		b.listeners[name] = ls
	}
	return true
}

// Has returns whether anything listens for name.
func (b *Bridge) Has(name string) bool {
	return len(b.listeners[normalize(name)]) > 0
}

// Trigger runs every listener for t.Name in registration order and returns
// false if there were none. Failing listeners do not stop the rest.
func (b *Bridge) Trigger(t Trigger) bool {
	name := normalize(t.Name)
	ls := b.listeners[name]
	if len(ls) == 0 {
		return false
	}
	snapshot := make([]listener, len(ls))
	copy(snapshot, ls)
	for _, l := range snapshot {
		if _, live := b.names[l.id]; !live {
			continue
		}
		if err := call(l.handler, t); err != nil {
			if b.OnError != nil {
				b.OnError(name, err)
			} else {
				log.Printf("wired %q listener failed: %v\n%s", name, err, juiceroom.StackTrace(err))
			}
		}
	}
	return true
}

func call(handler Handler, t Trigger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = juiceroom.WithStack(fmt.Errorf("panic: %v", r))
		}
	}()
	return handler(t)
}

func (b *Bridge) SetMemoryValue(key, value string) {
	b.memory[key] = value
}

func (b *Bridge) GetMemoryValue(key string) (string, bool) {
	v, found := b.memory[key]
	return v, found
}

func (b *Bridge) DeleteMemoryValue(key string) bool {
	_, found := b.memory[key]
	delete(b.memory, key)
	return found
}

// Clear drops listeners and memory.
func (b *Bridge) Clear() {
	b.listeners = map[string][]listener{}
	b.names = map[ListenerID]string{}
	b.memory = map[string]string{}
}
