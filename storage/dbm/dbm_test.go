package dbm

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHash(t *testing.T) {
	WithHash(t, func(h *Hash) {
		if _, err := h.Get("a"); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("got %v, want %v", err, os.ErrNotExist)
		}
		if err := h.Set("a", []byte("1"), true); err != nil {
			t.Fatal(err)
		}
		if err := h.Set("a", []byte("2"), false); err == nil {
			t.Errorf("overwrote without permission")
		}
		got, err := h.Get("a")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "1" {
			t.Errorf("got %q, want 1", got)
		}
		if has, err := h.Has("a"); err != nil || !has {
			t.Errorf("got %v, %v", has, err)
		}
		if err := h.Del("a"); err != nil {
			t.Fatal(err)
		}
		if err := h.Del("a"); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("got %v, want %v", err, os.ErrNotExist)
		}
	})
}

func TestTreeEach(t *testing.T) {
	WithTree(t, func(tree *Tree) {
		want := []string{}
		for _, i := range rand.Perm(20) {
			key := fmt.Sprintf("a/%02d", i)
			if err := tree.Set(key, []byte{byte(i)}, true); err != nil {
				t.Fatal(err)
			}
		}
		for i := 0; i < 20; i++ {
			want = append(want, fmt.Sprintf("a/%02d", i))
		}
		for _, key := range []string{"b/1", "0"} {
			if err := tree.Set(key, nil, true); err != nil {
				t.Fatal(err)
			}
		}
		got := []string{}
		if err := tree.Each("a/", func(key string, value []byte) (bool, error) {
			got = append(got, key)
			return true, nil
		}); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("keys: %v", diff)
		}
		n, err := tree.DelPrefix("a/")
		if err != nil {
			t.Fatal(err)
		}
		if n != 20 {
			t.Errorf("deleted %v, want 20", n)
		}
		if count, err := tree.Count(); err != nil || count != 2 {
			t.Errorf("got %v, %v remaining, want 2", count, err)
		}
		if err := tree.Each("zz", func(string, []byte) (bool, error) {
			t.Errorf("visited key past end")
			return true, nil
		}); err != nil {
			t.Errorf("got %v iterating past end", err)
		}
	})
}
