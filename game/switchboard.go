package game

import (
	"io"
	"slices"
	"sync"

	"golang.org/x/term"
)

const (
	// consoleHistory is the number of lines kept per room, replayed to
	// wizards attaching to the console.
	consoleHistory = 64
)

// history is a ring of the latest console lines of a room.
type history struct {
	lines [][]byte
	next  int
}

func (h *history) add(b []byte) {
	line := slices.Clone(b)
	if len(h.lines) < consoleHistory {
		h.lines = append(h.lines, line)
		return
	}
	h.lines[h.next] = line
	h.next = (h.next + 1) % consoleHistory
}

func (h *history) all() [][]byte {
	result := make([][]byte, 0, len(h.lines))
	result = append(result, h.lines[h.next:]...)
	return append(result, h.lines[:h.next]...)
}

// Switchboard routes the script consoles of rooms to the terminals of attached
// wizards.
type Switchboard struct {
	mu        sync.Mutex
	terminals map[int]map[*term.Terminal]bool
	histories map[int]*history
}

func NewSwitchboard() *Switchboard {
	return &Switchboard{
		terminals: map[int]map[*term.Terminal]bool{},
		histories: map[int]*history{},
	}
}

// Attach makes t receive the console of the room, and returns the buffered
// history. Nil terminals are ignored.
func (s *Switchboard) Attach(roomID int, t *term.Terminal) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t != nil {
		if s.terminals[roomID] == nil {
			s.terminals[roomID] = map[*term.Terminal]bool{}
		}
		s.terminals[roomID][t] = true
	}
	if h := s.histories[roomID]; h != nil {
		return h.all()
	}
	return nil
}

func (s *Switchboard) Detach(roomID int, t *term.Terminal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detach(roomID, t)
}

func (s *Switchboard) detach(roomID int, t *term.Terminal) {
	if terms := s.terminals[roomID]; terms != nil {
		delete(terms, t)
		if len(terms) == 0 {
			delete(s.terminals, roomID)
		}
	}
}

// DetachAll removes t from every room, returning the rooms it was attached to.
func (s *Switchboard) DetachAll(t *term.Terminal) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := []int{}
	for roomID, terms := range s.terminals {
		if terms[t] {
			result = append(result, roomID)
			s.detach(roomID, t)
		}
	}
	slices.Sort(result)
	return result
}

func (s *Switchboard) Attached(roomID int, t *term.Terminal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminals[roomID][t]
}

// Writer returns the console of a room, suitable as a script console.
func (s *Switchboard) Writer(roomID int) io.Writer {
	return &console{s: s, roomID: roomID}
}

type console struct {
	s      *Switchboard
	roomID int
}

// Write never fails. Terminals failing to receive the line are detached.
// Terminals are written to without holding the lock, so a terminal detached
// during a write may still see that line.
func (c *console) Write(b []byte) (int, error) {
	c.s.mu.Lock()
	h := c.s.histories[c.roomID]
	if h == nil {
		h = &history{}
		c.s.histories[c.roomID] = h
	}
	h.add(b)
	terms := make([]*term.Terminal, 0, len(c.s.terminals[c.roomID]))
	for t := range c.s.terminals[c.roomID] {
		terms = append(terms, t)
	}
	c.s.mu.Unlock()

	failed := []*term.Terminal{}
	for _, t := range terms {
		if _, err := t.Write(b); err != nil {
			failed = append(failed, t)
		}
	}
	if len(failed) > 0 {
		c.s.mu.Lock()
		for _, t := range failed {
			c.s.detach(c.roomID, t)
		}
		c.s.mu.Unlock()
	}
	return len(b), nil
}
