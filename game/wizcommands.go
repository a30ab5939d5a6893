package game

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/zond/juiceroom/hotel"
	"github.com/zond/juiceroom/room"
	"github.com/zond/juiceroom/structs"
)

// roomArg returns the room named by args[0], or the current room when args
// is empty.
func (c *Connection) roomArg(args []string) (int, bool) {
	if len(args) == 0 {
		if c.room == nil {
			return 0, false
		}
		return c.room.ID(), true
	}
	id, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
	return id, err == nil
}

func (c *Connection) setWizard(args []string, wizard bool) error {
	if len(args) != 1 {
		fmt.Fprintf(c.term, "usage: %s USER\n", map[bool]string{true: "/addwiz", false: "/delwiz"}[wizard])
		return nil
	}
	user, err := c.game.storage.LoadUser(c.ctx, args[0])
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(c.term, "No user %q.\n", args[0])
		return nil
	} else if err != nil {
		return err
	}
	user.Wizard = wizard
	if err := c.game.storage.UpdateUser(c.ctx, user); err != nil {
		return err
	}
	if online := c.game.Online(user.Name); online != nil {
		fmt.Fprintf(c.term, "%s has to reconnect for the change to take effect.\n", user.Name)
	}
	if wizard {
		fmt.Fprintf(c.term, "Granted wizard privileges to %q\n", user.Name)
	} else {
		fmt.Fprintf(c.term, "Revoked wizard privileges from %q\n", user.Name)
	}
	return nil
}

func (c *Connection) wizCommands() commands {
	return []command{
		{
			names: m("tp"),
			usage: "tp X Y",
			f: func(c *Connection, args []string, _ string) error {
				x, y, ok := coordinates(args)
				if !ok {
					fmt.Fprintln(c.term, "usage: tp X Y")
					return nil
				}
				moved := false
				if err := c.inRoom(func(r *room.Room, self *structs.Entity) error {
					moved = r.Teleport(self.ID, x, y)
					return nil
				}); err != nil {
					return err
				}
				if !moved && c.room != nil {
					fmt.Fprintln(c.term, "You can't stand there.")
					return nil
				}
				return c.look()
			},
		},
		{
			names: m("/console"),
			usage: "/console [ROOM [CODE]]",
			f: func(c *Connection, args []string, rest string) error {
				id, ok := c.roomArg(args)
				if !ok {
					fmt.Fprintln(c.term, "usage: /console [ROOM [CODE]]")
					return nil
				}
				if len(args) > 1 {
					code := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
					result, err := c.game.hotel.Eval(c.ctx, id, code)
					if err != nil {
						fmt.Fprintf(c.term, "Error: %v\n", err)
						return nil
					}
					fmt.Fprintln(c.term, result)
					return nil
				}
				for _, line := range c.game.switchboard.Attach(id, c.term) {
					c.term.Write(line)
				}
				fmt.Fprintf(c.term, "#%d connected to console\n", id)
				return nil
			},
		},
		{
			names: m("/unconsole"),
			usage: "/unconsole [ROOM]",
			f: func(c *Connection, args []string, _ string) error {
				if len(args) == 0 {
					for _, id := range c.game.switchboard.DetachAll(c.term) {
						fmt.Fprintf(c.term, "#%d disconnected from console\n", id)
					}
					return nil
				}
				id, ok := c.roomArg(args)
				if !ok {
					fmt.Fprintln(c.term, "usage: /unconsole [ROOM]")
					return nil
				}
				c.game.switchboard.Detach(id, c.term)
				fmt.Fprintf(c.term, "#%d disconnected from console\n", id)
				return nil
			},
		},
		{
			names: m("/reload"),
			usage: "/reload [ROOM]",
			f: func(c *Connection, args []string, _ string) error {
				id, ok := c.roomArg(args)
				if !ok {
					fmt.Fprintln(c.term, "usage: /reload [ROOM]")
					return nil
				}
				if err := c.game.hotel.ReloadScript(hotel.WithCaller(c.ctx, c.ref()), id); err != nil {
					fmt.Fprintf(c.term, "Error: %v\n", err)
					return nil
				}
				fmt.Fprintf(c.term, "Reloaded script of #%d\n", id)
				return nil
			},
		},
		{
			names: m("/unload"),
			usage: "/unload ROOM",
			f: func(c *Connection, args []string, _ string) error {
				id, ok := c.roomArg(args)
				if !ok || len(args) != 1 {
					fmt.Fprintln(c.term, "usage: /unload ROOM")
					return nil
				}
				if c.room != nil && c.room.ID() == id {
					if err := c.leave(); err != nil {
						return err
					}
				}
				if !c.game.hotel.UnloadRoom(hotel.WithCaller(c.ctx, c.ref()), id) {
					fmt.Fprintf(c.term, "#%d isn't loaded\n", id)
					return nil
				}
				fmt.Fprintf(c.term, "Unloaded #%d\n", id)
				return nil
			},
		},
		{
			names: m("/stats"),
			usage: "/stats [time|execs|errors|reset]",
			f: func(c *Connection, args []string, _ string) error {
				return c.listStats(args)
			},
		},
		{
			names: m("/addwiz"),
			usage: "/addwiz USER",
			f: func(c *Connection, args []string, _ string) error {
				return c.setWizard(args, true)
			},
		},
		{
			names: m("/delwiz"),
			usage: "/delwiz USER",
			f: func(c *Connection, args []string, _ string) error {
				return c.setWizard(args, false)
			},
		},
	}
}
