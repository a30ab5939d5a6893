package game

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/zond/juiceroom/js"
	"rogchap.com/v8go"
)

const (
	// slowExecutionThreshold defines executions considered "slow".
	slowExecutionThreshold = 50 * time.Millisecond
	// maxErrorMessageLength is the maximum length of error messages stored.
	maxErrorMessageLength = 128
)

type ErrorCategory string

const (
	CategoryJS      ErrorCategory = "js"
	CategoryTimeout ErrorCategory = "timeout"
	CategoryOther   ErrorCategory = "other"
)

func classifyError(err error) (ErrorCategory, string) {
	var jsErr *v8go.JSError
	switch {
	case errors.As(err, &jsErr):
		if jsErr.Location != "" {
			return CategoryJS, fmt.Sprintf("%s at %s", jsErr.Message, jsErr.Location)
		}
		return CategoryJS, jsErr.Message
	case errors.Is(err, js.ErrTimeout):
		return CategoryTimeout, "script timeout"
	}
	return CategoryOther, err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	for len(string(runes)) > n-3 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

// RoomScriptStats is the execution record of the script of one room.
type RoomScriptStats struct {
	Room          int
	Executions    uint64
	TotalTime     time.Duration
	MaxTime       time.Duration
	SlowCount     uint64
	Errors        uint64
	ByCategory    map[ErrorCategory]uint64
	LastError     string
	LastErrorAt   time.Time
	LastExecution time.Time
}

func (s RoomScriptStats) Average() time.Duration {
	if s.Executions == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Executions)
}

// ScriptStats collects script execution times per room. Safe for concurrent
// use by every room loop.
type ScriptStats struct {
	mu    sync.Mutex
	rooms map[int]*RoomScriptStats
}

func NewScriptStats() *ScriptStats {
	return &ScriptStats{
		rooms: map[int]*RoomScriptStats{},
	}
}

func (s *ScriptStats) RecordExecution(roomID int, duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.rooms[roomID]
	if stats == nil {
		stats = &RoomScriptStats{Room: roomID, ByCategory: map[ErrorCategory]uint64{}}
		s.rooms[roomID] = stats
	}
	now := time.Now()
	stats.Executions++
	stats.TotalTime += duration
	stats.MaxTime = max(stats.MaxTime, duration)
	stats.LastExecution = now
	if duration >= slowExecutionThreshold {
		stats.SlowCount++
	}
	if err != nil {
		category, msg := classifyError(err)
		stats.Errors++
		stats.ByCategory[category]++
		stats.LastError = truncate(msg, maxErrorMessageLength)
		stats.LastErrorAt = now
	}
}

// Room returns a copy of the stats of a room.
func (s *ScriptStats) Room(roomID int) (RoomScriptStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, found := s.rooms[roomID]
	if !found {
		return RoomScriptStats{}, false
	}
	result := *stats
	result.ByCategory = map[ErrorCategory]uint64{}
	for k, v := range stats.ByCategory {
		result.ByCategory[k] = v
	}
	return result, true
}

type StatsSortField int

const (
	SortByTime StatsSortField = iota
	SortByExecutions
	SortByErrors
)

// Top returns copies of the n busiest rooms, n <= 0 meaning all.
func (s *ScriptStats) Top(by StatsSortField, n int) []RoomScriptStats {
	s.mu.Lock()
	result := make([]RoomScriptStats, 0, len(s.rooms))
	for _, stats := range s.rooms {
		result = append(result, *stats)
	}
	s.mu.Unlock()
	key := func(r RoomScriptStats) int64 {
		switch by {
		case SortByExecutions:
			return int64(r.Executions)
		case SortByErrors:
			return int64(r.Errors)
		}
		return int64(r.TotalTime)
	}
	slices.SortFunc(result, func(a, b RoomScriptStats) int {
		if ka, kb := key(a), key(b); ka != kb {
			if ka > kb {
				return -1
			}
			return 1
		}
		return a.Room - b.Room
	})
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result
}

// Reset forgets the stats of every room.
func (s *ScriptStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = map[int]*RoomScriptStats{}
}
