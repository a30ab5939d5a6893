// Package events defines the room event kinds and their payloads.
package events

import (
	"fmt"

	"github.com/zond/juiceroom/structs"
)

type Kind int

const (
	UserJoin Kind = iota
	UserLeave
	UserIdle
	UserWakeUp
	Say
	StepOn
	StepOff
	Interact
	FurniSelected
	PlayerSelected
	FakePlayerSelected
	BotSelected
	FloorClicked
	FloorItemPlaced
	FloorItemPickedup
	FloorItemMoved
	ServerMessage
	UIMessage
	KeyDown
	KeyUp
	Walk
	Cannon
	Tick
	ShortTick
	Load
	Dispose
	kindCount
)

var kindNames = [kindCount]string{
	UserJoin:           "userJoin",
	UserLeave:          "userLeave",
	UserIdle:           "userIdle",
	UserWakeUp:         "userWakeUp",
	Say:                "say",
	StepOn:             "stepOn",
	StepOff:            "stepOff",
	Interact:           "interact",
	FurniSelected:      "furniSelected",
	PlayerSelected:     "playerSelected",
	FakePlayerSelected: "fakePlayerSelected",
	BotSelected:        "botSelected",
	FloorClicked:       "floorClicked",
	FloorItemPlaced:    "floorItemPlaced",
	FloorItemPickedup:  "floorItemPickedup",
	FloorItemMoved:     "floorItemMoved",
	ServerMessage:      "serverMessage",
	UIMessage:          "uiMessage",
	KeyDown:            "keyDown",
	KeyUp:              "keyUp",
	Walk:               "walk",
	Cannon:             "cannon",
	Tick:               "tick",
	ShortTick:          "shortTick",
	Load:               "load",
	Dispose:            "dispose",
}

func (k Kind) String() string {
	if k >= 0 && k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k Kind) Valid() bool {
	return k >= 0 && k < kindCount
}

// ParseKind resolves an event name as used by room scripts.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	result := make([]Kind, kindCount)
	for i := range result {
		result[i] = Kind(i)
	}
	return result
}

// Event is implemented by every payload type. Kind must have a value receiver
// so that the zero value of a payload type knows its kind.
type Event interface {
	Kind() Kind
}

type UserJoinEvent struct {
	Entity *structs.Entity `json:"entity"`
}

func (UserJoinEvent) Kind() Kind { return UserJoin }

type UserLeaveEvent struct {
	Entity *structs.Entity `json:"entity"`
}

func (UserLeaveEvent) Kind() Kind { return UserLeave }

type UserIdleEvent struct {
	Entity *structs.Entity `json:"entity"`
}

func (UserIdleEvent) Kind() Kind { return UserIdle }

type UserWakeUpEvent struct {
	Entity *structs.Entity `json:"entity"`
}

func (UserWakeUpEvent) Kind() Kind { return UserWakeUp }

type SayEvent struct {
	Entity  *structs.Entity `json:"entity"`
	Message string          `json:"message"`
	Shout   bool            `json:"shout,omitempty"`
}

func (SayEvent) Kind() Kind { return Say }

type StepOnEvent struct {
	Entity *structs.Entity `json:"entity"`
	Furni  *structs.Furni  `json:"furni"`
}

func (StepOnEvent) Kind() Kind { return StepOn }

type StepOffEvent struct {
	Entity *structs.Entity `json:"entity"`
	Furni  *structs.Furni  `json:"furni"`
}

func (StepOffEvent) Kind() Kind { return StepOff }

type InteractEvent struct {
	Entity *structs.Entity `json:"entity"`
	Furni  *structs.Furni  `json:"furni"`
}

func (InteractEvent) Kind() Kind { return Interact }

type FurniSelectedEvent struct {
	Entity *structs.Entity `json:"entity"`
	Furni  *structs.Furni  `json:"furni"`
}

func (FurniSelectedEvent) Kind() Kind { return FurniSelected }

type PlayerSelectedEvent struct {
	Entity *structs.Entity `json:"entity"`
	Target *structs.Entity `json:"target"`
}

func (PlayerSelectedEvent) Kind() Kind { return PlayerSelected }

type FakePlayerSelectedEvent struct {
	Entity *structs.Entity `json:"entity"`
	Target *structs.Entity `json:"target"`
}

func (FakePlayerSelectedEvent) Kind() Kind { return FakePlayerSelected }

type BotSelectedEvent struct {
	Entity *structs.Entity `json:"entity"`
	Target *structs.Entity `json:"target"`
}

func (BotSelectedEvent) Kind() Kind { return BotSelected }

type FloorClickedEvent struct {
	Entity *structs.Entity `json:"entity"`
	X      int             `json:"x"`
	Y      int             `json:"y"`
}

func (FloorClickedEvent) Kind() Kind { return FloorClicked }

type FloorItemPlacedEvent struct {
	Entity *structs.Entity `json:"entity,omitempty"`
	Furni  *structs.Furni  `json:"furni"`
}

func (FloorItemPlacedEvent) Kind() Kind { return FloorItemPlaced }

type FloorItemPickedupEvent struct {
	Entity *structs.Entity `json:"entity,omitempty"`
	Furni  *structs.Furni  `json:"furni"`
}

func (FloorItemPickedupEvent) Kind() Kind { return FloorItemPickedup }

type FloorItemMovedEvent struct {
	Entity *structs.Entity  `json:"entity,omitempty"`
	Furni  *structs.Furni   `json:"furni"`
	From   structs.Position `json:"from"`
}

func (FloorItemMovedEvent) Kind() Kind { return FloorItemMoved }

// ServerMessageEvent is delivered from another room. Data is opaque,
// conventionally JSON.
type ServerMessageEvent struct {
	FromRoom int    `json:"fromRoom"`
	Event    string `json:"event"`
	Data     string `json:"data"`
}

func (ServerMessageEvent) Kind() Kind { return ServerMessage }

type UIMessageEvent struct {
	Entity *structs.Entity `json:"entity"`
	Event  string          `json:"event"`
	Data   string          `json:"data"`
}

func (UIMessageEvent) Kind() Kind { return UIMessage }

type KeyDownEvent struct {
	Entity *structs.Entity `json:"entity"`
	Key    string          `json:"key"`
}

func (KeyDownEvent) Kind() Kind { return KeyDown }

type KeyUpEvent struct {
	Entity *structs.Entity `json:"entity"`
	Key    string          `json:"key"`
}

func (KeyUpEvent) Kind() Kind { return KeyUp }

type WalkEvent struct {
	Entity *structs.Entity  `json:"entity"`
	From   structs.Position `json:"from"`
	To     structs.Position `json:"to"`
}

func (WalkEvent) Kind() Kind { return Walk }

type CannonEvent struct {
	Entity *structs.Entity `json:"entity,omitempty"`
	Furni  *structs.Furni  `json:"furni"`
}

func (CannonEvent) Kind() Kind { return Cannon }

type TickEvent struct {
	Tick uint64 `json:"tick"`
}

func (TickEvent) Kind() Kind { return Tick }

type ShortTickEvent struct {
	Millis uint64 `json:"millis"`
}

func (ShortTickEvent) Kind() Kind { return ShortTick }

type LoadEvent struct{}

func (LoadEvent) Kind() Kind { return Load }

type DisposeEvent struct{}

func (DisposeEvent) Kind() Kind { return Dispose }
