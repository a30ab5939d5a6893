package events

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zond/juiceroom/structs"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, found := ParseKind(k.String())
		if !found || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, found)
		}
	}
	if _, found := ParseKind("nope"); found {
		t.Errorf("parsed unknown kind")
	}
	if len(Kinds()) != 26 {
		t.Errorf("got %v kinds, want 26", len(Kinds()))
	}
}

func TestEmitOrderAndIsolation(t *testing.T) {
	b := NewBus()
	got := []string{}
	errs := []Kind{}
	b.OnError = func(k Kind, err error) {
		errs = append(errs, k)
	}
	b.On(Say, func(ev Event) error {
		got = append(got, "first")
		return fmt.Errorf("broken")
	})
	b.On(Say, func(ev Event) error {
		got = append(got, "second")
		panic("very broken")
	})
	Subscribe(b, func(ev SayEvent) error {
		got = append(got, "third:"+ev.Message)
		return nil
	})
	b.On(Walk, func(ev Event) error {
		got = append(got, "walk")
		return nil
	})
	if failures := b.Emit(SayEvent{Entity: &structs.Entity{ID: 1}, Message: "hi"}); failures != 2 {
		t.Errorf("got %v failures, want 2", failures)
	}
	if diff := cmp.Diff([]string{"first", "second", "third:hi"}, got); diff != "" {
		t.Errorf("order: %v", diff)
	}
	if diff := cmp.Diff([]Kind{Say, Say}, errs); diff != "" {
		t.Errorf("errors: %v", diff)
	}
}

func TestOff(t *testing.T) {
	b := NewBus()
	calls := 0
	var second HandlerID
	b.On(Tick, func(ev Event) error {
		calls++
		b.Off(second)
		return nil
	})
	second = b.On(Tick, func(ev Event) error {
		calls += 10
		return nil
	})
	b.Emit(TickEvent{Tick: 1})
	if calls != 1 {
		t.Errorf("got %v calls, want handler removed mid-emit to be skipped", calls)
	}
	if b.Off(second) {
		t.Errorf("Off returned true twice")
	}
	if b.Count(Tick) != 1 {
		t.Errorf("got %v handlers, want 1", b.Count(Tick))
	}
	b.Clear()
	if b.Count(Tick) != 0 {
		t.Errorf("Clear left handlers")
	}
	if id := b.On(Kind(99), func(Event) error { return nil }); id != 0 {
		t.Errorf("registered unknown kind")
	}
}

func TestWatch(t *testing.T) {
	b := NewBus()
	seen := []Kind{}
	stop := b.Watch(func(ev Event) {
		seen = append(seen, ev.Kind())
	})
	b.Watch(func(Event) {
		panic("watcher panic")
	})
	failures := []Kind{}
	b.OnError = func(kind Kind, err error) {
		failures = append(failures, kind)
	}
	b.Emit(LoadEvent{})
	b.Clear()
	b.Emit(TickEvent{Tick: 1})
	stop()
	b.Emit(DisposeEvent{})
	if diff := cmp.Diff([]Kind{Load, Tick}, seen); diff != "" {
		t.Errorf("seen: %v", diff)
	}
	if len(failures) != 3 {
		t.Errorf("got %v watcher failures, want 3", failures)
	}
}
