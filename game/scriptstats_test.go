package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/js"
	"rogchap.com/v8go"
)

func TestClassifyError(t *testing.T) {
	for _, tc := range []struct {
		name     string
		err      error
		category ErrorCategory
		msg      string
	}{
		{
			name:     "js error with location",
			err:      &v8go.JSError{Message: "ReferenceError: x is not defined", Location: "room-1.js:3:1"},
			category: CategoryJS,
			msg:      "ReferenceError: x is not defined at room-1.js:3:1",
		},
		{
			name:     "wrapped js error",
			err:      juiceroom.WithStack(&v8go.JSError{Message: "boom"}),
			category: CategoryJS,
			msg:      "boom",
		},
		{
			name:     "timeout",
			err:      juiceroom.WithStack(js.ErrTimeout),
			category: CategoryTimeout,
			msg:      "script timeout",
		},
		{
			name:     "other",
			err:      context.Canceled,
			category: CategoryOther,
			msg:      "context canceled",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			category, msg := classifyError(tc.err)
			if category != tc.category || msg != tc.msg {
				t.Errorf("classifyError(%v) = %q, %q, want %q, %q", tc.err, category, msg, tc.category, tc.msg)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("å", 100)
	got := truncate(long, 20)
	if len(got) > 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate gave %q (%d bytes)", got, len(got))
	}
}

func TestScriptStatsRecord(t *testing.T) {
	s := NewScriptStats()
	s.RecordExecution(1, 10*time.Millisecond, nil)
	s.RecordExecution(1, 60*time.Millisecond, nil)
	s.RecordExecution(1, 20*time.Millisecond, &v8go.JSError{Message: "boom"})
	got, found := s.Room(1)
	if !found {
		t.Fatal("no stats for room 1")
	}
	want := RoomScriptStats{
		Room:       1,
		Executions: 3,
		TotalTime:  90 * time.Millisecond,
		MaxTime:    60 * time.Millisecond,
		SlowCount:  1,
		Errors:     1,
		ByCategory: map[ErrorCategory]uint64{CategoryJS: 1},
		LastError:  "boom",
	}
	if diff := cmp.Diff(want, got, cmp.FilterPath(func(p cmp.Path) bool {
		name := p.Last().String()
		return name == ".LastErrorAt" || name == ".LastExecution"
	}, cmp.Ignore())); diff != "" {
		t.Errorf("Room(1) mismatch (-want +got):\n%s", diff)
	}
	if got.Average() != 30*time.Millisecond {
		t.Errorf("Average() = %v, want 30ms", got.Average())
	}
	if _, found := s.Room(2); found {
		t.Error("found stats for room 2")
	}
}

func TestScriptStatsRoomIsCopy(t *testing.T) {
	s := NewScriptStats()
	s.RecordExecution(1, time.Millisecond, js.ErrTimeout)
	got, _ := s.Room(1)
	got.ByCategory[CategoryJS] = 100
	again, _ := s.Room(1)
	if again.ByCategory[CategoryJS] != 0 {
		t.Errorf("mutating a snapshot changed the stats: %+v", again.ByCategory)
	}
}

func TestScriptStatsTop(t *testing.T) {
	s := NewScriptStats()
	s.RecordExecution(1, 5*time.Millisecond, nil)
	s.RecordExecution(2, 1*time.Millisecond, nil)
	s.RecordExecution(2, 1*time.Millisecond, fmt.Errorf("x"))
	s.RecordExecution(2, 1*time.Millisecond, fmt.Errorf("y"))
	s.RecordExecution(3, 2*time.Millisecond, nil)

	rooms := func(stats []RoomScriptStats) []int {
		result := []int{}
		for _, s := range stats {
			result = append(result, s.Room)
		}
		return result
	}
	for _, tc := range []struct {
		by   StatsSortField
		n    int
		want []int
	}{
		{by: SortByTime, want: []int{1, 2, 3}},
		{by: SortByExecutions, want: []int{2, 1, 3}},
		{by: SortByErrors, n: 2, want: []int{2, 1}},
	} {
		if diff := cmp.Diff(tc.want, rooms(s.Top(tc.by, tc.n))); diff != "" {
			t.Errorf("Top(%v, %v) mismatch (-want +got):\n%s", tc.by, tc.n, diff)
		}
	}
	s.Reset()
	if top := s.Top(SortByTime, 0); len(top) != 0 {
		t.Errorf("got %v after Reset", top)
	}
}

func TestScriptStatsConcurrent(t *testing.T) {
	s := NewScriptStats()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(room int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.RecordExecution(room%3, time.Microsecond, nil)
				s.Top(SortByExecutions, 1)
			}
		}(i)
	}
	wg.Wait()
	total := uint64(0)
	for _, r := range s.Top(SortByTime, 0) {
		total += r.Executions
	}
	if total != 1000 {
		t.Errorf("got %v executions, want 1000", total)
	}
}
