package game

import (
	"fmt"
	"strconv"

	"github.com/rodaine/table"
	"github.com/zond/juiceroom/room"
	"github.com/zond/juiceroom/structs"
)

func (c *Connection) listRooms() error {
	rooms, err := c.game.storage.ListRooms(c.ctx)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		fmt.Fprintln(c.term, "The hotel has no rooms.")
		return nil
	}
	t := table.New("ID", "Name", "Users", "Here").WithWriter(c.term)
	for _, record := range rooms {
		users, here := "", ""
		if r := c.game.hotel.Room(record.ID); r != nil {
			count := 0
			if err := r.Do(c.ctx, func(r *room.Room) error {
				count = r.EntityCount()
				return nil
			}); err == nil {
				users = strconv.Itoa(count)
			}
		}
		if c.room != nil && c.room.ID() == record.ID {
			here = "*"
		}
		t.AddRow(record.ID, record.Name, users, here)
	}
	t.Print()
	return nil
}

type furniRow struct {
	id       int
	name     string
	position string
	state    string
}

func (c *Connection) listFurni() error {
	rows := []furniRow{}
	if err := c.inRoom(func(r *room.Room, _ *structs.Entity) error {
		for _, f := range r.Furnis() {
			rows = append(rows, furniRow{
				id:       f.ID,
				name:     furniName(f),
				position: fmt.Sprintf("%d,%d", f.Position.X, f.Position.Y),
				state:    f.State,
			})
		}
		return nil
	}); err != nil || c.room == nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(c.term, "The room is empty.")
		return nil
	}
	t := table.New("ID", "Name", "Position", "State").WithWriter(c.term)
	for _, row := range rows {
		t.AddRow(row.id, row.name, row.position, row.state)
	}
	t.Print()
	return nil
}

type entityRow struct {
	name     string
	kind     string
	position string
	status   string
}

func (c *Connection) listEntities() error {
	rows := []entityRow{}
	if err := c.inRoom(func(r *room.Room, self *structs.Entity) error {
		for _, e := range r.Entities() {
			status := e.Motto
			if e.Idle {
				status = "idle"
			} else if e.IsWalking() {
				status = "walking"
			}
			name := e.Username
			if e.ID == self.ID {
				name += " (you)"
			}
			rows = append(rows, entityRow{
				name:     name,
				kind:     e.Kind.String(),
				position: fmt.Sprintf("%d,%d", e.Position.X, e.Position.Y),
				status:   status,
			})
		}
		return nil
	}); err != nil || c.room == nil {
		return err
	}
	t := table.New("Name", "Kind", "Position", "Status").WithWriter(c.term)
	for _, row := range rows {
		t.AddRow(row.name, row.kind, row.position, row.status)
	}
	t.Print()
	return nil
}

func (c *Connection) listStats(args []string) error {
	by := SortByTime
	if len(args) > 0 {
		switch args[0] {
		case "time":
		case "execs":
			by = SortByExecutions
		case "errors":
			by = SortByErrors
		case "reset":
			c.game.stats.Reset()
			fmt.Fprintln(c.term, "Script stats reset.")
			return nil
		default:
			fmt.Fprintln(c.term, "usage: /stats [time|execs|errors|reset]")
			return nil
		}
	}
	top := c.game.stats.Top(by, 20)
	if len(top) == 0 {
		fmt.Fprintln(c.term, "No scripts have run yet.")
		return nil
	}
	t := table.New("Room", "Execs", "Avg(ms)", "Max(ms)", "Slow", "Errors", "Last error").WithWriter(c.term)
	for _, s := range top {
		t.AddRow(
			s.Room,
			s.Executions,
			fmt.Sprintf("%.2f", float64(s.Average().Microseconds())/1000),
			fmt.Sprintf("%.2f", float64(s.MaxTime.Microseconds())/1000),
			s.SlowCount,
			s.Errors,
			s.LastError,
		)
	}
	t.Print()
	return nil
}
