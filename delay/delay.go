// Package delay schedules callbacks against a room clock. The room advances
// one scheduler per tick and another per elapsed millisecond.
package delay

import (
	"fmt"
	"log"

	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/heap"
)

type TaskID uint64

type task struct {
	id        TaskID
	at        uint64
	every     uint64
	seq       uint64
	f         func()
	cancelled bool
}

// Scheduler is owned by a single room loop and is not safe for concurrent use.
type Scheduler struct {
	now     uint64
	seq     uint64
	nextID  TaskID
	queue   *heap.Heap[*task]
	tasks   map[TaskID]*task
	running bool
	OnError func(error)
}

func New() *Scheduler {
	return &Scheduler{
		queue: heap.New(func(a, b *task) bool {
			if a.at != b.at {
				return a.at < b.at
			}
			return a.seq < b.seq
		}),
		tasks: map[TaskID]*task{},
	}
}

// Now returns the clock value of the last Advance.
func (s *Scheduler) Now() uint64 {
	return s.now
}

func (s *Scheduler) schedule(after, every uint64, f func()) TaskID {
	s.nextID++
	s.seq++
	at := s.now + after
	if s.running {
		// Never due within the Advance that scheduled it.
		at = max(at, s.now+1)
	}
	t := &task{
		id:    s.nextID,
		at:    at,
		every: every,
		seq:   s.seq,
		f:     f,
	}
	s.tasks[t.id] = t
	s.queue.Push(t)
	return t.id
}

// Wait runs f once the clock has advanced by after.
func (s *Scheduler) Wait(after uint64, f func()) TaskID {
	return s.schedule(after, 0, f)
}

// Interval runs f every time the clock has advanced by every, until cancelled.
func (s *Scheduler) Interval(every uint64, f func()) TaskID {
	every = max(every, 1)
	return s.schedule(every, every, f)
}

// Cancel prevents a pending task from running again. Returns false if the task
// already ran to completion or was cancelled.
func (s *Scheduler) Cancel(id TaskID) bool {
	t, found := s.tasks[id]
	if !found {
		return false
	}
	t.cancelled = true
	delete(s.tasks, id)
	return true
}

func (s *Scheduler) CancelAll() {
	for _, t := range s.tasks {
		t.cancelled = true
	}
	s.tasks = map[TaskID]*task{}
	s.queue.Clear()
}

// Pending returns the number of tasks that may still run.
func (s *Scheduler) Pending() int {
	return len(s.tasks)
}

// Advance moves the clock to now and runs every task due, in deadline order.
// Tasks scheduled by running tasks are due at the earliest on the next clock
// value, so every call terminates.
func (s *Scheduler) Advance(now uint64) int {
	if now > s.now {
		s.now = now
	}
	s.running = true
	defer func() { s.running = false }()
	ran := 0
	for {
		next, found := s.queue.Peek()
		if !found || next.at > s.now {
			return ran
		}
		s.queue.Pop()
		if next.cancelled {
			continue
		}
		if next.every == 0 {
			delete(s.tasks, next.id)
		}
		s.run(next)
		ran++
		if next.every > 0 && !next.cancelled {
			next.at += next.every
			s.seq++
			next.seq = s.seq
			s.queue.Push(next)
		}
	}
}

func (s *Scheduler) run(t *task) {
	defer func() {
		if r := recover(); r != nil {
			err := juiceroom.WithStack(fmt.Errorf("delayed task %v panicked: %v", t.id, r))
			if s.OnError != nil {
				s.OnError(err)
			} else {
				log.Printf("%v\n%s", err, juiceroom.StackTrace(err))
			}
		}
	}()
	t.f()
}
