package heap

import (
	"math/rand/v2"
	"sort"
	"testing"
)

func TestBasics(t *testing.T) {
	h := New(func(a, b int) bool {
		return a < b
	})
	h.Push(10)
	h.Push(4)
	h.Push(100)
	h.Push(8)
	h.Push(20)
	for _, i := range []int{4, 8, 10, 20, 100} {
		if top, found := h.Peek(); !found || top != i {
			t.Errorf("got %v, %v, want %v, true", top, found, i)
		}
		if top, found := h.Pop(); !found || top != i {
			t.Errorf("got %v, %v, want %v, true", top, found, i)
		}
	}
	if _, found := h.Peek(); found {
		t.Errorf("got %v, want false", found)
	}
	if _, found := h.Pop(); found {
		t.Errorf("got %v, want false", found)
	}
}

func TestRandomOrder(t *testing.T) {
	h := New(func(a, b int) bool {
		return a < b
	})
	want := []int{}
	for i := 0; i < 500; i++ {
		v := rand.IntN(1000)
		want = append(want, v)
		h.Push(v)
	}
	sort.Ints(want)
	if h.Len() != len(want) {
		t.Fatalf("got len %v, want %v", h.Len(), len(want))
	}
	for _, w := range want {
		if got, _ := h.Pop(); got != w {
			t.Fatalf("got %v, want %v", got, w)
		}
	}
}

func TestClear(t *testing.T) {
	h := New(func(a, b string) bool {
		return a < b
	})
	h.Push("b")
	h.Push("a")
	h.Clear()
	if h.Len() != 0 {
		t.Errorf("got len %v after Clear", h.Len())
	}
	h.Push("c")
	if got, _ := h.Peek(); got != "c" {
		t.Errorf("got %q, want c", got)
	}
}
