// Package path finds the next step towards a goal on a room floor with A*.
package path

import (
	"github.com/zond/juiceroom/heap"
)

const (
	straightCost = 10
	diagonalCost = 14

	// DefaultMaxExpansions bounds the work done per call.
	DefaultMaxExpansions = 4096
)

type Point struct {
	X, Y int
}

// Map answers whether a single step is allowed. final is true when to is the
// goal of the search, which lets maps accept seats and beds as destinations.
type Map interface {
	Steppable(from, to Point, final bool) bool
}

var (
	axisSteps = []Point{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}
	diagSteps = []Point{{1, -1}, {1, 1}, {-1, 1}, {-1, -1}}
)

type node struct {
	p        Point
	g        int
	h        int
	diagonal bool
	seq      int
	parent   *node
}

func (n *node) f() int {
	return n.g + n.h
}

// less orders by total cost, then axis aligned steps before diagonal ones,
// then by closeness to the goal, then by discovery order.
func less(a, b *node) bool {
	if af, bf := a.f(), b.f(); af != bf {
		return af < bf
	}
	if a.diagonal != b.diagonal {
		return !a.diagonal
	}
	if a.h != b.h {
		return a.h < b.h
	}
	return a.seq < b.seq
}

func heuristic(a, b Point, diagonal bool) int {
	dx, dy := abs(a.X-b.X), abs(a.Y-b.Y)
	if !diagonal {
		return straightCost * (dx + dy)
	}
	return straightCost*(dx+dy) + (diagonalCost-2*straightCost)*min(dx, dy)
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// Finder runs bounded A* searches.
type Finder struct {
	MaxExpansions int
}

// NextStep returns the first step of a shortest path from start to goal, or
// nil if start is the goal or no path exists. Callers consult it once per
// tick and walk one step at a time.
func NextStep(m Map, start, goal Point, diagonal bool) []Point {
	return Finder{}.NextStep(m, start, goal, diagonal)
}

// Find returns the full path from start (exclusive) to goal (inclusive).
func Find(m Map, start, goal Point, diagonal bool) []Point {
	return Finder{}.Find(m, start, goal, diagonal)
}

func (f Finder) NextStep(m Map, start, goal Point, diagonal bool) []Point {
	last := f.search(m, start, goal, diagonal)
	if last == nil || last.parent == nil {
		return nil
	}
	for last.parent.parent != nil {
		last = last.parent
	}
	return []Point{last.p}
}

func (f Finder) Find(m Map, start, goal Point, diagonal bool) []Point {
	last := f.search(m, start, goal, diagonal)
	if last == nil {
		return nil
	}
	result := []Point{}
	for n := last; n.parent != nil; n = n.parent {
		result = append(result, n.p)
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

func (f Finder) canStep(m Map, from, to, goal Point, diag bool) bool {
	final := to == goal
	if !m.Steppable(from, to, final) {
		return false
	}
	if diag {
		// No cutting corners.
		if !m.Steppable(from, Point{to.X, from.Y}, false) || !m.Steppable(from, Point{from.X, to.Y}, false) {
			return false
		}
	}
	return true
}

func (f Finder) search(m Map, start, goal Point, diagonal bool) *node {
	maxExpansions := f.MaxExpansions
	if maxExpansions <= 0 {
		maxExpansions = DefaultMaxExpansions
	}
	if start == goal {
		return &node{p: start}
	}
	seq := 0
	open := heap.New(less)
	open.Push(&node{p: start, h: heuristic(start, goal, diagonal)})
	best := map[Point]int{start: 0}
	closed := map[Point]bool{}
	steps := axisSteps
	if diagonal {
		steps = append(append([]Point{}, axisSteps...), diagSteps...)
	}
	for expansions := 0; open.Len() > 0 && expansions < maxExpansions; {
		current, _ := open.Pop()
		if current.p == goal {
			return current
		}
		if closed[current.p] {
			continue
		}
		closed[current.p] = true
		expansions++
		for i, step := range steps {
			diag := i >= len(axisSteps)
			next := Point{current.p.X + step.X, current.p.Y + step.Y}
			if closed[next] {
				continue
			}
			if !f.canStep(m, current.p, next, goal, diag) {
				continue
			}
			cost := straightCost
			if diag {
				cost = diagonalCost
			}
			g := current.g + cost
			if prev, found := best[next]; found && prev <= g {
				continue
			}
			best[next] = g
			seq++
			open.Push(&node{
				p:        next,
				g:        g,
				h:        heuristic(next, goal, diagonal),
				diagonal: diag,
				seq:      seq,
				parent:   current,
			})
		}
	}
	return nil
}
