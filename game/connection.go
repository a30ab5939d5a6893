package game

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/buildkite/shellwords"
	"github.com/pkg/errors"
	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/events"
	"github.com/zond/juiceroom/hotel"
	"github.com/zond/juiceroom/lang"
	"github.com/zond/juiceroom/room"
	"github.com/zond/juiceroom/storage"
	"github.com/zond/juiceroom/structs"
	"golang.org/x/term"
)

var (
	ErrOperationAborted = fmt.Errorf("operation aborted")

	errQuit    = fmt.Errorf("quit")
	errOutside = fmt.Errorf("not in the room")

	whitespacePattern = regexp.MustCompile(`\s+`)
)

const (
	// outputBufferSize is the number of room messages a connection can lag
	// behind before messages are dropped.
	outputBufferSize = 256
)

type Connection struct {
	game   *Game
	term   *term.Terminal
	remote string
	user   *storage.User
	wiz    bool
	ctx    context.Context
	output chan string

	// Only touched from the connection goroutine.
	room   *room.Room
	entity int
	stop   func()
}

func (c *Connection) ref() storage.AuditRef {
	if c.user == nil {
		return storage.SystemRef()
	}
	return storage.Ref(c.user.ID, c.user.Name)
}

func (c *Connection) SelectExec(options map[string]func() error) error {
	commandNames := make(sort.StringSlice, 0, len(options))
	for name := range options {
		commandNames = append(commandNames, name)
	}
	sort.Sort(commandNames)
	prompt := fmt.Sprintf("%s\n", lang.Enumerator{Pattern: "[%s]", Operator: "or"}.Do(commandNames...))
	for {
		fmt.Fprint(c.term, prompt)
		line, err := c.term.ReadLine()
		if err != nil {
			return juiceroom.WithStack(err)
		}
		if cmd, found := options[strings.TrimSpace(line)]; found {
			return cmd()
		}
	}
}

func (c *Connection) SelectReturn(prompt string, options []string) (string, error) {
	for {
		fmt.Fprintf(c.term, "%s [%s]\n", prompt, strings.Join(options, "/"))
		line, err := c.term.ReadLine()
		if err != nil {
			return "", juiceroom.WithStack(err)
		}
		for _, option := range options {
			if strings.EqualFold(strings.TrimSpace(line), option) {
				return option, nil
			}
		}
	}
}

// pump writes room messages to the terminal until ctx is done, so that slow
// terminals never hold up a room loop.
func (c *Connection) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.output:
			fmt.Fprintln(c.term, msg)
		}
	}
}

// render returns a room watcher showing events as seen by the entity self.
// Runs on the room loop.
func (c *Connection) render(self int) func(events.Event) {
	return func(ev events.Event) {
		if msg := describe(self, ev); msg != "" {
			select {
			case c.output <- msg:
			default:
			}
		}
	}
}

func furniName(f *structs.Furni) string {
	if f.Definition != nil && f.Definition.Name != "" {
		return f.Definition.Name
	}
	return fmt.Sprintf("furni #%d", f.ID)
}

// describe returns the text the entity self sees for ev, or "" for events
// players don't notice.
func describe(self int, ev events.Event) string {
	switch ev := ev.(type) {
	case events.SayEvent:
		verb := "say"
		if ev.Shout {
			verb = "shout"
		}
		if ev.Entity.ID == self {
			return fmt.Sprintf("You %s: %s", verb, ev.Message)
		}
		return fmt.Sprintf("%s %ss: %s", ev.Entity.Username, verb, ev.Message)
	case events.UserJoinEvent:
		if ev.Entity.ID != self {
			return fmt.Sprintf("%s arrives.", ev.Entity.Username)
		}
	case events.UserLeaveEvent:
		if ev.Entity.ID != self {
			return fmt.Sprintf("%s leaves.", ev.Entity.Username)
		}
	case events.WalkEvent:
		if ev.Entity.ID == self && ev.Entity.Goal != nil && ev.To.Is(ev.Entity.Goal.X, ev.Entity.Goal.Y) {
			return fmt.Sprintf("You arrive at %d,%d.", ev.To.X, ev.To.Y)
		}
	case events.InteractEvent:
		if ev.Entity.ID == self {
			return fmt.Sprintf("You use the %s.", furniName(ev.Furni))
		}
		return fmt.Sprintf("%s uses the %s.", ev.Entity.Username, furniName(ev.Furni))
	case events.FloorItemPlacedEvent:
		return fmt.Sprintf("%s appears.", lang.Capitalize(lang.Indef(furniName(ev.Furni))))
	case events.FloorItemPickedupEvent:
		return fmt.Sprintf("The %s disappears.", furniName(ev.Furni))
	case events.UserIdleEvent:
		if ev.Entity.ID == self {
			return "You doze off."
		}
	}
	return ""
}

func (c *Connection) home() int {
	if c.user.HomeRoom != 0 {
		return c.user.HomeRoom
	}
	return c.game.homeRoom
}

// enter joins the player to a room, loading it if necessary.
func (c *Connection) enter(id int) error {
	r, err := c.game.hotel.LoadRoom(hotel.WithCaller(c.ctx, c.ref()), id)
	if err != nil {
		return err
	}
	e := &structs.Entity{
		Kind:     structs.PlayerEntity,
		UserID:   c.user.ID,
		Username: c.user.Name,
		Figure:   c.user.Figure,
		Motto:    c.user.Motto,
	}
	if err := r.Do(c.ctx, func(r *room.Room) error {
		if !r.Join(e) {
			return fmt.Errorf("unable to join %s", r.Name())
		}
		c.stop = r.Events().Watch(c.render(e.ID))
		return nil
	}); err != nil {
		return err
	}
	c.room, c.entity = r, e.ID
	return c.look()
}

// leave removes the player from the current room, if any.
func (c *Connection) leave() error {
	if c.room == nil {
		return nil
	}
	r, id, stop := c.room, c.entity, c.stop
	c.room, c.entity, c.stop = nil, 0, nil
	err := r.Do(context.WithoutCancel(c.ctx), func(r *room.Room) error {
		stop()
		r.RemoveEntity(id)
		return nil
	})
	if errors.Is(err, room.ErrClosed) {
		return nil
	}
	return err
}

// inRoom runs f on the loop of the current room with the entity of the player.
func (c *Connection) inRoom(f func(r *room.Room, self *structs.Entity) error) error {
	if c.room == nil {
		fmt.Fprintln(c.term, "You are not in a room. Try goto.")
		return nil
	}
	err := c.room.Do(c.ctx, func(r *room.Room) error {
		self := r.GetEntityByID(c.entity)
		if self == nil {
			return errOutside
		}
		return f(r, self)
	})
	if errors.Is(err, room.ErrClosed) || errors.Is(err, errOutside) {
		c.room, c.entity, c.stop = nil, 0, nil
		fmt.Fprintln(c.term, "The room fades away around you.")
		return nil
	}
	return err
}

func (c *Connection) look() error {
	var name, here, pos string
	var furnis int
	if err := c.inRoom(func(r *room.Room, self *structs.Entity) error {
		name = fmt.Sprintf("%s (#%d)", r.Name(), r.ID())
		others := []string{}
		for _, e := range r.Entities() {
			if e.ID != self.ID {
				others = append(others, e.Username)
			}
		}
		if len(others) > 0 {
			here = lang.Enumerator{Tense: lang.Present}.Do(others...) + " here."
		}
		furnis = len(r.Furnis())
		pos = fmt.Sprintf("%d,%d", self.Position.X, self.Position.Y)
		return nil
	}); err != nil || name == "" {
		return err
	}
	fmt.Fprintln(c.term, name)
	fmt.Fprintf(c.term, "You are at %s. You see %s.\n", pos, lang.Card(furnis, "item"))
	if here != "" {
		fmt.Fprintln(c.term, here)
	}
	return nil
}

// coordinates parses "X Y" from the arguments of a command.
func coordinates(args []string) (int, int, bool) {
	if len(args) != 2 {
		return 0, 0, false
	}
	x, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, false
	}
	y, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, false
	}
	return x, y, true
}

// findFurni identifies furni by id, or by name preferring the closest.
func findFurni(r *room.Room, self *structs.Entity, pattern string) *structs.Furni {
	if id, err := strconv.Atoi(strings.TrimPrefix(pattern, "#")); err == nil {
		return r.GetFurniByID(id)
	}
	var best *structs.Furni
	for _, f := range r.Furnis() {
		if !strings.EqualFold(furniName(f), pattern) {
			continue
		}
		if best == nil || self.Position.Distance(f.Position) < self.Position.Distance(best.Position) {
			best = f
		}
	}
	return best
}

type command struct {
	names map[string]bool
	usage string
	f     func(c *Connection, args []string, rest string) error
}

type commands []command

func (cmds commands) attempt(c *Connection, name string, line string) (bool, error) {
	for _, cmd := range cmds {
		if !cmd.names[name] {
			continue
		}
		parts, err := shellwords.SplitPosix(line)
		if err != nil || len(parts) == 0 {
			parts = whitespacePattern.Split(strings.TrimSpace(line), -1)
		}
		rest := ""
		if line = strings.TrimSpace(line); len(line) > len(name) {
			rest = strings.TrimSpace(line[len(name):])
		}
		return true, juiceroom.WithStack(cmd.f(c, parts[1:], rest))
	}
	return false, nil
}

func m(s ...string) map[string]bool {
	res := map[string]bool{}
	for _, p := range s {
		res[p] = true
	}
	return res
}

func (c *Connection) basicCommands() commands {
	return []command{
		{
			names: m("l", "look"),
			f: func(c *Connection, _ []string, _ string) error {
				return c.look()
			},
		},
		{
			names: m("walk"),
			usage: "walk X Y",
			f: func(c *Connection, args []string, _ string) error {
				x, y, ok := coordinates(args)
				if !ok {
					fmt.Fprintln(c.term, "usage: walk X Y")
					return nil
				}
				walked := false
				if err := c.inRoom(func(r *room.Room, self *structs.Entity) error {
					walked = r.Walk(self.ID, x, y)
					return nil
				}); err != nil {
					return err
				}
				if !walked && c.room != nil {
					fmt.Fprintln(c.term, "You can't get there.")
				}
				return nil
			},
		},
		{
			names: m("say"),
			usage: "say MESSAGE",
			f: func(c *Connection, _ []string, rest string) error {
				return c.say(rest, false)
			},
		},
		{
			names: m("shout"),
			usage: "shout MESSAGE",
			f: func(c *Connection, _ []string, rest string) error {
				return c.say(rest, true)
			},
		},
		{
			names: m("use"),
			usage: "use FURNI",
			f: func(c *Connection, args []string, rest string) error {
				if rest == "" {
					fmt.Fprintln(c.term, "usage: use FURNI")
					return nil
				}
				found := false
				if err := c.inRoom(func(r *room.Room, self *structs.Entity) error {
					if f := findFurni(r, self, rest); f != nil {
						found = r.Interact(self.ID, f.ID)
					}
					return nil
				}); err != nil {
					return err
				}
				if !found && c.room != nil {
					fmt.Fprintf(c.term, "You see no %s here.\n", rest)
				}
				return nil
			},
		},
		{
			names: m("goto"),
			usage: "goto ROOM",
			f: func(c *Connection, args []string, _ string) error {
				if len(args) != 1 {
					fmt.Fprintln(c.term, "usage: goto ROOM")
					return nil
				}
				id, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
				if err != nil {
					fmt.Fprintln(c.term, "usage: goto ROOM")
					return nil
				}
				if c.room != nil && c.room.ID() == id {
					return c.look()
				}
				if _, err := c.game.storage.LoadRoom(c.ctx, id); errors.Is(err, os.ErrNotExist) {
					fmt.Fprintf(c.term, "There is no room #%d.\n", id)
					return nil
				} else if err != nil {
					return err
				}
				if err := c.leave(); err != nil {
					return err
				}
				if err := c.enter(id); err != nil {
					fmt.Fprintf(c.term, "Unable to enter room #%d: %v\n", id, err)
				}
				return nil
			},
		},
		{
			names: m("rooms"),
			f: func(c *Connection, _ []string, _ string) error {
				return c.listRooms()
			},
		},
		{
			names: m("furni"),
			f: func(c *Connection, _ []string, _ string) error {
				return c.listFurni()
			},
		},
		{
			names: m("who"),
			f: func(c *Connection, _ []string, _ string) error {
				return c.listEntities()
			},
		},
		{
			names: m("help", "?"),
			f: func(c *Connection, _ []string, _ string) error {
				return c.help()
			},
		},
		{
			names: m("quit", "exit"),
			f: func(c *Connection, _ []string, _ string) error {
				return errQuit
			},
		},
	}
}

func (c *Connection) say(message string, shout bool) error {
	if message == "" {
		return nil
	}
	return c.inRoom(func(r *room.Room, self *structs.Entity) error {
		r.Say(self.ID, message, shout)
		return nil
	})
}

func (c *Connection) help() error {
	names := []string{}
	sets := []commands{c.basicCommands()}
	if c.wiz {
		sets = append(sets, c.wizCommands())
	}
	for _, set := range sets {
		for _, cmd := range set {
			if cmd.usage != "" {
				names = append(names, cmd.usage)
				continue
			}
			for name := range cmd.names {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	fmt.Fprintf(c.term, "Commands: %s.\n", lang.Enumerator{}.Do(names...))
	fmt.Fprintln(c.term, "Anything else is said out loud.")
	return nil
}

// handle runs a line of input, returning errQuit when the player is done.
func (c *Connection) handle(line string) error {
	line = strings.TrimSpace(line)
	words := whitespacePattern.Split(line, -1)
	if len(words) == 0 || words[0] == "" {
		return nil
	}
	sets := []commands{c.basicCommands()}
	if c.wiz {
		sets = append([]commands{c.wizCommands()}, sets...)
	}
	name := strings.ToLower(words[0])
	for _, set := range sets {
		if found, err := set.attempt(c, name, line); err != nil {
			if errors.Is(err, errQuit) {
				return errQuit
			}
			fmt.Fprintln(c.term, err)
			log.Printf("%s: %q: %v\n%s", c.user.Name, line, err, juiceroom.StackTrace(err))
			return nil
		} else if found {
			return nil
		}
	}
	if strings.HasPrefix(name, "/") {
		fmt.Fprintf(c.term, "Unknown command: %q\n", words[0])
		return nil
	}
	return c.say(line, false)
}

func (c *Connection) Process() error {
	if c.user == nil {
		return errors.New("can't process without user")
	}
	c.wiz = c.user.Wizard
	for {
		line, err := c.term.ReadLine()
		if err != nil {
			return juiceroom.WithStack(err)
		}
		if err := c.handle(line); errors.Is(err, errQuit) {
			fmt.Fprintln(c.term, "Bye!")
			return nil
		}
	}
}

func (c *Connection) Connect() error {
	// The session id is set before login, so that failed logins can be correlated.
	c.ctx = juiceroom.WithSessionID(c.ctx, juiceroom.NextUniqueID())
	go c.pump(c.ctx)
	fmt.Fprint(c.term, "Welcome to the hotel!\n\n")
	sel := func() error {
		return c.SelectExec(map[string]func() error{
			"login user":  c.loginUser,
			"create user": c.createUser,
		})
	}
	var err error
	for err = sel(); errors.Is(err, ErrOperationAborted); err = sel() {
	}
	if err != nil {
		return juiceroom.WithStack(err)
	}
	defer c.disconnect()
	if err := c.enter(c.home()); err != nil {
		fmt.Fprintf(c.term, "Unable to enter room #%d: %v\n", c.home(), err)
	}
	return c.Process()
}

// online registers the connection of the logged in user. Returns false if
// the user is already connected.
func (c *Connection) online() bool {
	_, stored := c.game.connections.SetIfMissing(strings.ToLower(c.user.Name), c)
	return stored
}

func (c *Connection) disconnect() {
	if err := c.leave(); err != nil {
		log.Printf("%s leaving room: %v\n%s", c.user.Name, err, juiceroom.StackTrace(err))
	}
	c.game.switchboard.DetachAll(c.term)
	c.game.connections.Del(strings.ToLower(c.user.Name))
	c.game.storage.AuditLog(c.ctx, "SESSION_END", storage.AuditSessionEnd{
		User: c.ref(),
	})
}

func (c *Connection) loginUser() error {
	fmt.Fprint(c.term, "** Login user **\n\n")
	for c.user == nil {
		fmt.Fprintln(c.term, "Enter username or [abort]:")
		username, err := c.term.ReadLine()
		if err != nil {
			return err
		}
		if username == "abort" {
			return juiceroom.WithStack(ErrOperationAborted)
		}

		c.game.loginRateLimiter.waitIfNeeded(username, c.term)

		fmt.Fprint(c.term, "Enter password or [abort]:\n")
		password, err := c.term.ReadPassword("> ")
		if err != nil {
			return err
		}
		if password == "abort" {
			return juiceroom.WithStack(ErrOperationAborted)
		}

		user, err := c.game.storage.LoadUser(c.ctx, username)
		if errors.Is(err, os.ErrNotExist) {
			c.game.loginRateLimiter.recordFailure(username)
			c.game.storage.AuditLog(c.ctx, "LOGIN_FAILED", storage.AuditLoginFailed{
				User:   storage.Ref(0, username),
				Remote: c.remote,
			})
			fmt.Fprintln(c.term, "Invalid credentials!")
			continue
		} else if err != nil {
			return juiceroom.WithStack(err)
		}

		if !verifyPassword(password, user.PasswordHash) {
			c.game.loginRateLimiter.recordFailure(user.Name)
			c.game.storage.AuditLog(c.ctx, "LOGIN_FAILED", storage.AuditLoginFailed{
				User:   storage.Ref(user.ID, user.Name),
				Remote: c.remote,
			})
			fmt.Fprintln(c.term, "Invalid credentials!")
			continue
		}
		c.game.loginRateLimiter.clearFailure(user.Name)
		c.user = user
		if !c.online() {
			c.user = nil
			fmt.Fprintln(c.term, "Already connected!")
			return juiceroom.WithStack(ErrOperationAborted)
		}
	}
	c.game.storage.AuditLog(c.ctx, "USER_LOGIN", storage.AuditUserLogin{
		User:   c.ref(),
		Remote: c.remote,
	})
	fmt.Fprintf(c.term, "Welcome back, %v!\n\n", c.user.Name)
	return nil
}

func (c *Connection) createUser() error {
	fmt.Fprint(c.term, "** Create user **\n\n")
	var user *storage.User
	for user == nil {
		fmt.Fprint(c.term, "Enter new username or [abort]:\n")
		username, err := c.term.ReadLine()
		if err != nil {
			return err
		}
		if username == "abort" {
			return juiceroom.WithStack(ErrOperationAborted)
		}
		if err := validateUsername(username); err != nil {
			fmt.Fprintln(c.term, err.Error())
			continue
		}
		if _, err = c.game.storage.LoadUser(c.ctx, username); errors.Is(err, os.ErrNotExist) {
			user = &storage.User{
				Name: username,
			}
		} else if err == nil {
			fmt.Fprintln(c.term, "Username already exists!")
		} else {
			return juiceroom.WithStack(err)
		}
	}
	for user.PasswordHash == "" {
		fmt.Fprintln(c.term, "Enter new password:")
		password, err := c.term.ReadPassword("> ")
		if err != nil {
			return err
		}
		if password == "abort" || password == "" {
			fmt.Fprintln(c.term, "Password can't be empty or 'abort'.")
			continue
		}
		fmt.Fprintln(c.term, "Repeat new password:")
		verification, err := c.term.ReadPassword("> ")
		if err != nil {
			return err
		}
		if password != verification {
			fmt.Fprintln(c.term, "Passwords don't match!")
			continue
		}
		selection, err := c.SelectReturn(fmt.Sprintf("Create user %q with provided password?", user.Name), []string{"y", "n", "abort"})
		if err != nil {
			return err
		}
		switch selection {
		case "abort":
			return juiceroom.WithStack(ErrOperationAborted)
		case "y":
			if user.PasswordHash, err = hashPassword(password); err != nil {
				return juiceroom.WithStack(err)
			}
		}
	}
	// The first user runs the place.
	count, err := c.game.storage.CountUsers(c.ctx)
	if err != nil {
		return juiceroom.WithStack(err)
	}
	user.Wizard = count == 0
	if err := c.game.storage.CreateUser(c.ctx, user); errors.Is(err, os.ErrExist) {
		fmt.Fprintln(c.term, "Username already exists!")
		return juiceroom.WithStack(ErrOperationAborted)
	} else if err != nil {
		return juiceroom.WithStack(err)
	}
	c.user = user
	if !c.online() {
		c.user = nil
		return juiceroom.WithStack(ErrOperationAborted)
	}
	c.game.storage.AuditLog(c.ctx, "USER_LOGIN", storage.AuditUserLogin{
		User:   c.ref(),
		Remote: c.remote,
	})
	fmt.Fprintf(c.term, "Welcome %s!\n\n", c.user.Name)
	return nil
}
