package structs

import (
	"sync"
	"time"

	goccy "github.com/goccy/go-json"
)

const (
	DefaultTickInterval      = 500 * time.Millisecond
	DefaultShortTickInterval = 50 * time.Millisecond
	DefaultScriptTimeout     = 200 * time.Millisecond
	DefaultMaxStepHeight     = 1.5
	DefaultIdleTicks         = 600
)

// RoomConfig holds per-room settings with thread-safe access.
// All fields are private and accessed via getters/setters that handle locking.
type RoomConfig struct {
	mu                sync.RWMutex
	diagonal          bool
	walkthrough       bool
	door              Position
	doorRotation      Rotation
	maxStepHeight     float64
	idleTicks         int
	tickInterval      time.Duration
	shortTickInterval time.Duration
	scriptTimeout     time.Duration
}

// NewRoomConfig creates a RoomConfig with default values.
func NewRoomConfig() *RoomConfig {
	return &RoomConfig{
		diagonal:          true,
		doorRotation:      South,
		maxStepHeight:     DefaultMaxStepHeight,
		idleTicks:         DefaultIdleTicks,
		tickInterval:      DefaultTickInterval,
		shortTickInterval: DefaultShortTickInterval,
		scriptTimeout:     DefaultScriptTimeout,
	}
}

func (c *RoomConfig) GetDiagonal() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.diagonal
}

func (c *RoomConfig) SetDiagonal(b bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagonal = b
}

func (c *RoomConfig) GetWalkthrough() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.walkthrough
}

func (c *RoomConfig) SetWalkthrough(b bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.walkthrough = b
}

// GetDoor returns the tile and rotation new entities spawn with.
func (c *RoomConfig) GetDoor() (Position, Rotation) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.door, c.doorRotation
}

func (c *RoomConfig) SetDoor(p Position, r Rotation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.door = p
	c.doorRotation = r.Normalize()
}

func (c *RoomConfig) GetMaxStepHeight() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxStepHeight
}

func (c *RoomConfig) SetMaxStepHeight(h float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxStepHeight = h
}

// GetIdleTicks returns the number of inactive ticks before an entity idles.
// Zero disables idling.
func (c *RoomConfig) GetIdleTicks() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idleTicks
}

func (c *RoomConfig) SetIdleTicks(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idleTicks = n
}

func (c *RoomConfig) GetTickInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tickInterval
}

func (c *RoomConfig) SetTickInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickInterval = d
}

func (c *RoomConfig) GetShortTickInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shortTickInterval
}

func (c *RoomConfig) SetShortTickInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shortTickInterval = d
}

func (c *RoomConfig) GetScriptTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scriptTimeout
}

func (c *RoomConfig) SetScriptTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scriptTimeout = d
}

// roomConfigJSON is the JSON serialization format for RoomConfig.
// Durations are stored as milliseconds.
type roomConfigJSON struct {
	Diagonal    bool
	Walkthrough bool
	Door        struct {
		Position Position
		Rotation Rotation
	}
	MaxStepHeight       float64
	IdleTicks           int
	TickIntervalMS      int64
	ShortTickIntervalMS int64
	ScriptTimeoutMS     int64
}

// MarshalJSON implements json.Marshaler for RoomConfig.
func (c *RoomConfig) MarshalJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	j := roomConfigJSON{
		Diagonal:            c.diagonal,
		Walkthrough:         c.walkthrough,
		MaxStepHeight:       c.maxStepHeight,
		IdleTicks:           c.idleTicks,
		TickIntervalMS:      c.tickInterval.Milliseconds(),
		ShortTickIntervalMS: c.shortTickInterval.Milliseconds(),
		ScriptTimeoutMS:     c.scriptTimeout.Milliseconds(),
	}
	j.Door.Position = c.door
	j.Door.Rotation = c.doorRotation

	return goccy.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler for RoomConfig.
// Missing or zero durations fall back to the defaults.
func (c *RoomConfig) UnmarshalJSON(data []byte) error {
	defaults := NewRoomConfig()
	j := roomConfigJSON{
		Diagonal:      defaults.diagonal,
		MaxStepHeight: defaults.maxStepHeight,
		IdleTicks:     defaults.idleTicks,
	}
	j.Door.Rotation = defaults.doorRotation
	if err := goccy.Unmarshal(data, &j); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.diagonal = j.Diagonal
	c.walkthrough = j.Walkthrough
	c.door = j.Door.Position
	c.doorRotation = j.Door.Rotation.Normalize()
	c.maxStepHeight = j.MaxStepHeight
	c.idleTicks = j.IdleTicks
	c.tickInterval = orDefault(time.Duration(j.TickIntervalMS)*time.Millisecond, DefaultTickInterval)
	c.shortTickInterval = orDefault(time.Duration(j.ShortTickIntervalMS)*time.Millisecond, DefaultShortTickInterval)
	c.scriptTimeout = orDefault(time.Duration(j.ScriptTimeoutMS)*time.Millisecond, DefaultScriptTimeout)

	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
