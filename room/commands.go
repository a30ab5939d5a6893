package room

import (
	"fmt"
	"slices"
	"strings"

	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/structs"
)

type CommandID uint64

// Callback receives the speaking entity and the message without the alias.
type Callback func(e *structs.Entity, rest string) error

type command struct {
	id        CommandID
	names     []string
	mustStart bool
	callback  Callback
}

func (c *command) matches(words []string) (int, bool) {
	for i, word := range words {
		if i > 0 && c.mustStart {
			break
		}
		if slices.Contains(c.names, strings.ToLower(word)) {
			return i, true
		}
	}
	return 0, false
}

// Commands dispatches chat messages to registered callbacks.
type Commands struct {
	commands []*command
	nextID   CommandID
	OnError  func(name string, err error)
}

func NewCommands() *Commands {
	return &Commands{}
}

// Register adds a command answering to every alias in names. mustStart
// commands only match the first word of a message. Returns 0 if names holds
// no usable alias.
func (c *Commands) Register(names []string, mustStart bool, callback Callback) CommandID {
	aliases := []string{}
	for _, name := range names {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" && !slices.Contains(aliases, name) {
			aliases = append(aliases, name)
		}
	}
	if len(aliases) == 0 || callback == nil {
		return 0
	}
	c.nextID++
	c.commands = append(c.commands, &command{
		id:        c.nextID,
		names:     aliases,
		mustStart: mustStart,
		callback:  callback,
	})
	return c.nextID
}

// Unregister removes the latest registration answering to name, so that
// registering and unregistering a name restores the previous behavior.
func (c *Commands) Unregister(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := len(c.commands) - 1; i >= 0; i-- {
		if slices.Contains(c.commands[i].names, name) {
			c.commands = slices.Delete(c.commands, i, i+1)
			return true
		}
	}
	return false
}

func (c *Commands) Remove(id CommandID) bool {
	for i, cmd := range c.commands {
		if cmd.id == id {
			c.commands = slices.Delete(c.commands, i, i+1)
			return true
		}
	}
	return false
}

// Names returns the first alias of every command in registration order.
func (c *Commands) Names() []string {
	result := make([]string, len(c.commands))
	for i, cmd := range c.commands {
		result[i] = cmd.names[0]
	}
	return result
}

func (c *Commands) Clear() {
	c.commands = nil
}

// Dispatch runs the first command matching message and returns whether one
// matched. A failing callback still consumes the message.
func (c *Commands) Dispatch(e *structs.Entity, message string) bool {
	words := strings.Fields(message)
	if len(words) == 0 {
		return false
	}
	for _, cmd := range c.commands {
		index, found := cmd.matches(words)
		if !found {
			continue
		}
		rest := ""
		if index == 0 {
			rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(message), words[0]))
		} else {
			rest = strings.Join(slices.Delete(slices.Clone(words), index, index+1), " ")
		}
		if err := call(cmd.callback, e, rest); err != nil {
			if c.OnError != nil {
				c.OnError(cmd.names[0], err)
			}
		}
		return true
	}
	return false
}

func call(callback Callback, e *structs.Entity, rest string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = juiceroom.WithStack(fmt.Errorf("panic: %v", r))
		}
	}()
	return callback(e, rest)
}
