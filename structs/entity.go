package structs

import (
	"fmt"
	"strings"
)

type EntityKind int

const (
	PlayerEntity EntityKind = iota
	BotEntity
	PetEntity
	FakePlayerEntity
	FakeBotEntity
)

var entityKindNames = map[EntityKind]string{
	PlayerEntity:     "player",
	BotEntity:        "bot",
	PetEntity:        "pet",
	FakePlayerEntity: "fakePlayer",
	FakeBotEntity:    "fakeBot",
}

func (k EntityKind) String() string {
	if name, found := entityKindNames[k]; found {
		return name
	}
	return "unknown"
}

func (k EntityKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EntityKind) UnmarshalText(b []byte) error {
	for kind, name := range entityKindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown entity kind %q", b)
}

// Fake kinds are owned by room scripts and have no persistent record.
func (k EntityKind) Fake() bool {
	return k == FakePlayerEntity || k == FakeBotEntity
}

// Statuses shown above entities.
const (
	StatusMove = "mv"
	StatusSit  = "sit"
	StatusLay  = "lay"
	StatusSign = "sign"
)

// Entity is a live occupant of a room.
type Entity struct {
	ID           int               `json:"id"`
	Kind         EntityKind        `json:"kind"`
	UserID       int64             `json:"userId,omitempty"`
	Username     string            `json:"username"`
	Figure       string            `json:"figure,omitempty"`
	Motto        string            `json:"motto,omitempty"`
	Position     Position          `json:"position"`
	BodyRotation Rotation          `json:"bodyRotation"`
	HeadRotation Rotation          `json:"headRotation"`
	Effect       int               `json:"effect"`
	HandItem     int               `json:"handItem"`
	Dance        int               `json:"dance"`
	Sign         int               `json:"sign"`
	Frozen       bool              `json:"frozen"`
	Idle         bool              `json:"idle"`
	Goal         *Position         `json:"goal,omitempty"`
	Statuses     map[string]string `json:"statuses,omitempty"`

	idleTicks int
}

// Equals compares identity, not state.
func (e *Entity) Equals(o *Entity) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.ID == o.ID
}

func (e *Entity) IsWalking() bool {
	return e.Goal != nil
}

// LowerUsername is the key entities are indexed by.
func (e *Entity) LowerUsername() string {
	return strings.ToLower(e.Username)
}

func (e *Entity) SetStatus(key, value string) {
	if e.Statuses == nil {
		e.Statuses = map[string]string{}
	}
	e.Statuses[key] = value
}

func (e *Entity) ClearStatus(key string) {
	delete(e.Statuses, key)
}

func (e *Entity) HasStatus(key string) bool {
	_, found := e.Statuses[key]
	return found
}

// Activity resets the idle counter and returns true if the entity was idle.
func (e *Entity) Activity() bool {
	e.idleTicks = 0
	wasIdle := e.Idle
	e.Idle = false
	return wasIdle
}

// Age advances the idle counter and returns true the tick the entity turns idle.
func (e *Entity) Age(idleAfter int) bool {
	if e.Idle || idleAfter <= 0 {
		return false
	}
	e.idleTicks++
	if e.idleTicks >= idleAfter {
		e.Idle = true
		return true
	}
	return false
}

// Snapshot returns a copy safe to hand outside the room loop.
func (e *Entity) Snapshot() *Entity {
	cpy := *e
	if e.Goal != nil {
		goal := *e.Goal
		cpy.Goal = &goal
	}
	if e.Statuses != nil {
		cpy.Statuses = make(map[string]string, len(e.Statuses))
		for k, v := range e.Statuses {
			cpy.Statuses[k] = v
		}
	}
	return &cpy
}

type Entities []*Entity

func (e Entities) IDs() []int {
	result := make([]int, len(e))
	for i := range e {
		result[i] = e[i].ID
	}
	return result
}

func (e Entities) Usernames() []string {
	result := make([]string, len(e))
	for i := range e {
		result[i] = e[i].Username
	}
	return result
}
