package structs

import (
	"fmt"
)

type VariableScope int

const (
	UserVariable VariableScope = iota
	FurniVariable
	RoomVariable
	GlobalVariable
)

func (s VariableScope) String() string {
	switch s {
	case UserVariable:
		return "user"
	case FurniVariable:
		return "furni"
	case RoomVariable:
		return "room"
	case GlobalVariable:
		return "global"
	}
	return "unknown"
}

func ParseVariableScope(s string) (VariableScope, error) {
	for _, scope := range []VariableScope{UserVariable, FurniVariable, RoomVariable, GlobalVariable} {
		if scope.String() == s {
			return scope, nil
		}
	}
	return 0, fmt.Errorf("unknown variable scope %q", s)
}

type VariableType int

const (
	NumberVariable VariableType = iota
	StringVariable
)

type Availability int

const (
	// Temporary values vanish when the room unloads.
	Temporary Availability = iota
	// Persistent values are written through to room storage.
	Persistent
)

// Variable describes a named memory cell. Values live in the room, keyed by
// holder (entity user id, furni id, or 0 for room and global scope).
type Variable struct {
	Name                string        `json:"name"`
	Scope               VariableScope `json:"scope"`
	Type                VariableType  `json:"type"`
	Availability        Availability  `json:"availability"`
	CanWriteTo          bool          `json:"canWriteTo"`
	CanInterceptChanges bool          `json:"canInterceptChanges"`
	Default             string        `json:"default,omitempty"`
}

// Key identifies a single value of the variable.
func (v *Variable) Key(holder int64) string {
	return fmt.Sprintf("var/%s/%s/%d", v.Scope, v.Name, holder)
}
