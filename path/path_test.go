package path

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// asciiMap treats '#' as blocked and anything else inside the bounds as open.
type asciiMap []string

func (a asciiMap) open(p Point) bool {
	if p.Y < 0 || p.Y >= len(a) || p.X < 0 || p.X >= len(a[p.Y]) {
		return false
	}
	return a[p.Y][p.X] != '#'
}

func (a asciiMap) Steppable(from, to Point, final bool) bool {
	return a.open(to)
}

func newMap(s string) asciiMap {
	return asciiMap(strings.Split(strings.TrimSpace(s), "\n"))
}

func TestStraightCorridor(t *testing.T) {
	m := newMap(`
............
............
............
............
............
............
`)
	pos := Point{5, 5}
	goal := Point{10, 5}
	steps := 0
	for pos != goal {
		next := NextStep(m, pos, goal, false)
		if len(next) != 1 {
			t.Fatalf("got %v at %v, want one step", next, pos)
		}
		if next[0].Y != 5 || next[0].X != pos.X+1 {
			t.Fatalf("got %v from %v, want straight east", next[0], pos)
		}
		pos = next[0]
		steps++
	}
	if steps != 5 {
		t.Errorf("got %v steps, want 5", steps)
	}
	if next := NextStep(m, goal, goal, false); next != nil {
		t.Errorf("got %v at goal, want nil", next)
	}
}

func TestDetour(t *testing.T) {
	m := newMap(`
.....
.###.
.#...
.#.#.
...#.
`)
	got := Find(m, Point{2, 2}, Point{0, 0}, false)
	want := []Point{{3, 2}, {4, 2}, {4, 1}, {4, 0}, {3, 0}, {2, 0}, {1, 0}, {0, 0}}
	alt := []Point{{2, 3}, {2, 4}, {1, 4}, {0, 4}, {0, 3}, {0, 2}, {0, 1}, {0, 0}}
	if cmp.Diff(want, got) != "" && cmp.Diff(alt, got) != "" {
		t.Errorf("got %v, want %v or %v", got, want, alt)
	}
}

func TestNoCornerCutting(t *testing.T) {
	m := newMap(`
.#
..
`)
	got := Find(m, Point{0, 0}, Point{1, 1}, true)
	want := []Point{{0, 1}, {1, 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cut a corner: %v", diff)
	}
}

func TestDiagonal(t *testing.T) {
	m := newMap(`
....
....
....
....
`)
	got := Find(m, Point{0, 0}, Point{3, 3}, true)
	want := []Point{{1, 1}, {2, 2}, {3, 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diagonal path: %v", diff)
	}
	if got := Find(m, Point{0, 0}, Point{3, 3}, false); len(got) != 6 {
		t.Errorf("got %v, want 6 axis steps", got)
	}
}

func TestPrefersAxisAlignedOnTie(t *testing.T) {
	m := newMap(`
...
...
`)
	got := NextStep(m, Point{0, 0}, Point{2, 1}, true)
	if diff := cmp.Diff([]Point{{1, 0}}, got); diff != "" {
		t.Errorf("tie-break: %v", diff)
	}
}

func TestUnreachable(t *testing.T) {
	m := newMap(`
..#..
..#..
..#..
`)
	if got := NextStep(m, Point{0, 0}, Point{4, 0}, true); got != nil {
		t.Errorf("got %v, want nil", got)
	}
	if got := (Finder{MaxExpansions: 1}).Find(m, Point{0, 0}, Point{1, 2}, false); got != nil {
		t.Errorf("got %v with exhausted budget, want nil", got)
	}
}
