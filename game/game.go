// Package game serves players connecting over SSH, walking them between the
// rooms of a hotel.
package game

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/gliderlabs/ssh"
	"github.com/pkg/errors"
	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/hotel"
	"github.com/zond/juiceroom/storage"
	"golang.org/x/term"
)

type Options struct {
	Storage     *storage.Storage
	Hotel       *hotel.Hotel
	Switchboard *Switchboard
	// Stats should be the recorder given to the hotel, for /stats to show.
	Stats *ScriptStats
	// HomeRoom is where users without a home room of their own start.
	HomeRoom int
}

type Game struct {
	storage          *storage.Storage
	hotel            *hotel.Hotel
	switchboard      *Switchboard
	stats            *ScriptStats
	homeRoom         int
	loginRateLimiter *loginRateLimiter
	connections      *juiceroom.SyncMap[string, *Connection]
}

func New(ctx context.Context, opts Options) *Game {
	if opts.Switchboard == nil {
		opts.Switchboard = NewSwitchboard()
	}
	if opts.Stats == nil {
		opts.Stats = NewScriptStats()
	}
	return &Game{
		storage:          opts.Storage,
		hotel:            opts.Hotel,
		switchboard:      opts.Switchboard,
		stats:            opts.Stats,
		homeRoom:         opts.HomeRoom,
		loginRateLimiter: newLoginRateLimiter(ctx),
		connections:      juiceroom.NewSyncMap[string, *Connection](),
	}
}

func (g *Game) Switchboard() *Switchboard {
	return g.switchboard
}

func (g *Game) Stats() *ScriptStats {
	return g.stats
}

// Online returns the connection of a logged in user, or nil.
func (g *Game) Online(username string) *Connection {
	return g.connections.Get(strings.ToLower(username))
}

func (g *Game) HandleSession(sess ssh.Session) {
	c := g.newConnection(sess.Context(), sess, sess.RemoteAddr().String())
	if err := c.Connect(); err != nil {
		if !errors.Is(err, io.EOF) {
			fmt.Fprintf(c.term, "InternalServerError: %v\n", err)
			log.Println(err)
			log.Println(juiceroom.StackTrace(err))
		}
	}
}

func (g *Game) newConnection(ctx context.Context, rw io.ReadWriter, remote string) *Connection {
	return &Connection{
		game:   g,
		term:   term.NewTerminal(rw, "> "),
		remote: remote,
		ctx:    ctx,
		output: make(chan string, outputBufferSize),
	}
}
