package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/structs"

	goccy "github.com/goccy/go-json"
)

// Room is the stored layout of a room.
type Room struct {
	ID        int    `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	OwnerID   int64  `db:"owner_id" json:"ownerId"`
	Heightmap string `db:"heightmap" json:"heightmap"`
	Script    string `db:"script" json:"script,omitempty"`
	Config    string `db:"config" json:"-"`
}

// RoomConfig decodes the stored settings on top of the defaults.
func (r *Room) RoomConfig() (*structs.RoomConfig, error) {
	config := structs.NewRoomConfig()
	if r.Config == "" {
		return config, nil
	}
	if err := goccy.Unmarshal([]byte(r.Config), config); err != nil {
		return nil, juiceroom.WithStack(err)
	}
	return config, nil
}

func (r *Room) SetRoomConfig(config *structs.RoomConfig) error {
	b, err := goccy.Marshal(config)
	if err != nil {
		return juiceroom.WithStack(err)
	}
	r.Config = string(b)
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return juiceroom.WithStack(os.ErrNotExist)
	}
	return juiceroom.WithStack(err)
}

// UpsertRoom inserts a room, assigning an id if it has none, or replaces it.
func (s *Storage) UpsertRoom(ctx context.Context, r *Room) error {
	if r.Config == "" {
		r.Config = "{}"
	}
	if r.ID == 0 {
		return juiceroom.WithStack(s.sql.QueryRowxContext(ctx, s.sql.Rebind(
			"INSERT INTO rooms (name, owner_id, heightmap, script, config) VALUES (?, ?, ?, ?, ?) RETURNING id"),
			r.Name, r.OwnerID, r.Heightmap, r.Script, r.Config).Scan(&r.ID))
	}
	_, err := s.sql.NamedExecContext(ctx, `
		INSERT INTO rooms (id, name, owner_id, heightmap, script, config)
		VALUES (:id, :name, :owner_id, :heightmap, :script, :config)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			owner_id = excluded.owner_id,
			heightmap = excluded.heightmap,
			script = excluded.script,
			config = excluded.config`, r)
	return juiceroom.WithStack(err)
}

// LoadRoom returns os.ErrNotExist for unknown rooms.
func (s *Storage) LoadRoom(ctx context.Context, id int) (*Room, error) {
	r := &Room{}
	if err := s.sql.GetContext(ctx, r, s.sql.Rebind("SELECT * FROM rooms WHERE id = ?"), id); err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (s *Storage) ListRooms(ctx context.Context) ([]Room, error) {
	result := []Room{}
	if err := s.sql.SelectContext(ctx, &result, "SELECT * FROM rooms ORDER BY id"); err != nil {
		return nil, juiceroom.WithStack(err)
	}
	return result, nil
}

func (s *Storage) SetRoomScript(ctx context.Context, id int, script string) error {
	res, err := s.sql.ExecContext(ctx, s.sql.Rebind("UPDATE rooms SET script = ? WHERE id = ?"), script, id)
	if err != nil {
		return juiceroom.WithStack(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return juiceroom.WithStack(err)
	} else if n == 0 {
		return juiceroom.WithStack(os.ErrNotExist)
	}
	return nil
}

// DeleteRoom removes the room, its furni, its key/value store and its
// document collections.
func (s *Storage) DeleteRoom(ctx context.Context, id int) error {
	tx, err := s.sql.BeginTxx(ctx, nil)
	if err != nil {
		return juiceroom.WithStack(err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM furni WHERE room_id = ?"), id); err != nil {
		return juiceroom.WithStack(err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM rooms WHERE id = ?"), id); err != nil {
		return juiceroom.WithStack(err)
	}
	if err := tx.Commit(); err != nil {
		return juiceroom.WithStack(err)
	}
	if _, err := s.RoomStorage(id).Clear(); err != nil {
		return err
	}
	return s.docs.DropRoom(ctx, id)
}

type furniRow struct {
	ID           int     `db:"id"`
	RoomID       int     `db:"room_id"`
	DefinitionID int     `db:"definition_id"`
	Kind         string  `db:"kind"`
	OwnerID      int64   `db:"owner_id"`
	X            int     `db:"x"`
	Y            int     `db:"y"`
	Z            float64 `db:"z"`
	Rotation     int     `db:"rotation"`
	State        string  `db:"state"`
	WallPosition string  `db:"wall_position"`
}

// LoadFurni returns the furni of a room with their definitions attached.
func (s *Storage) LoadFurni(ctx context.Context, roomID int) (structs.Furnis, error) {
	rows := []furniRow{}
	if err := s.sql.SelectContext(ctx, &rows, s.sql.Rebind("SELECT * FROM furni WHERE room_id = ? ORDER BY id"), roomID); err != nil {
		return nil, juiceroom.WithStack(err)
	}
	result := make(structs.Furnis, 0, len(rows))
	for _, row := range rows {
		kind, err := structs.ParseFurniKind(row.Kind)
		if err != nil {
			return nil, juiceroom.WithStack(err)
		}
		def, err := s.Definition(ctx, row.DefinitionID)
		if err != nil {
			return nil, juiceroom.WithStack(fmt.Errorf("furni %d: %w", row.ID, err))
		}
		result = append(result, &structs.Furni{
			ID:           row.ID,
			Kind:         kind,
			DefinitionID: row.DefinitionID,
			SpriteID:     def.SpriteID,
			OwnerID:      row.OwnerID,
			Position:     structs.Position{X: row.X, Y: row.Y, Z: row.Z},
			Rotation:     structs.Rotation(row.Rotation),
			State:        row.State,
			WallPosition: row.WallPosition,
			Definition:   def,
		})
	}
	return result, nil
}

// SaveFurni stores f in roomID, assigning an id if it has none. Fake furni
// are never stored.
func (s *Storage) SaveFurni(ctx context.Context, roomID int, f *structs.Furni) error {
	if f.Fake {
		return nil
	}
	row := furniRow{
		ID:           f.ID,
		RoomID:       roomID,
		DefinitionID: f.DefinitionID,
		Kind:         f.Kind.String(),
		OwnerID:      f.OwnerID,
		X:            f.Position.X,
		Y:            f.Position.Y,
		Z:            f.Position.Z,
		Rotation:     int(f.Rotation),
		State:        f.State,
		WallPosition: f.WallPosition,
	}
	if row.ID == 0 {
		return juiceroom.WithStack(s.sql.QueryRowxContext(ctx, s.sql.Rebind(`
			INSERT INTO furni (room_id, definition_id, kind, owner_id, x, y, z, rotation, state, wall_position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			row.RoomID, row.DefinitionID, row.Kind, row.OwnerID, row.X, row.Y, row.Z, row.Rotation, row.State, row.WallPosition).Scan(&f.ID))
	}
	_, err := s.sql.NamedExecContext(ctx, `
		INSERT INTO furni (id, room_id, definition_id, kind, owner_id, x, y, z, rotation, state, wall_position)
		VALUES (:id, :room_id, :definition_id, :kind, :owner_id, :x, :y, :z, :rotation, :state, :wall_position)
		ON CONFLICT (id) DO UPDATE SET
			room_id = excluded.room_id,
			definition_id = excluded.definition_id,
			kind = excluded.kind,
			owner_id = excluded.owner_id,
			x = excluded.x,
			y = excluded.y,
			z = excluded.z,
			rotation = excluded.rotation,
			state = excluded.state,
			wall_position = excluded.wall_position`, row)
	return juiceroom.WithStack(err)
}

func (s *Storage) DeleteFurni(ctx context.Context, id int) error {
	_, err := s.sql.ExecContext(ctx, s.sql.Rebind("DELETE FROM furni WHERE id = ?"), id)
	return juiceroom.WithStack(err)
}

// Definition returns catalog data, cached since it never changes while rooms run.
func (s *Storage) Definition(ctx context.Context, id int) (*structs.FurnitureDefinition, error) {
	if def, found := s.definitions.Get(id); found {
		return def, nil
	}
	def := &structs.FurnitureDefinition{}
	if err := s.sql.GetContext(ctx, def, s.sql.Rebind("SELECT * FROM furniture_definitions WHERE id = ?"), id); err != nil {
		return nil, notFound(err)
	}
	s.definitions.Set(id, def, 0)
	return def, nil
}

func (s *Storage) Definitions(ctx context.Context) ([]structs.FurnitureDefinition, error) {
	result := []structs.FurnitureDefinition{}
	if err := s.sql.SelectContext(ctx, &result, "SELECT * FROM furniture_definitions ORDER BY id"); err != nil {
		return nil, juiceroom.WithStack(err)
	}
	return result, nil
}

func (s *Storage) UpsertDefinition(ctx context.Context, def *structs.FurnitureDefinition) error {
	if def.ID == 0 {
		if err := s.sql.QueryRowxContext(ctx, s.sql.Rebind(`
			INSERT INTO furniture_definitions (sprite_id, name, width, length, stack_height, can_stack, can_sit, can_lay, can_walk, interaction_type, interaction_modes_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			def.SpriteID, def.Name, def.Width, def.Length, def.StackHeight, def.CanStack, def.CanSit, def.CanLay, def.CanWalk, def.InteractionType, def.InteractionModesCount).Scan(&def.ID); err != nil {
			return juiceroom.WithStack(err)
		}
		return nil
	}
	if _, err := s.sql.NamedExecContext(ctx, `
		INSERT INTO furniture_definitions (id, sprite_id, name, width, length, stack_height, can_stack, can_sit, can_lay, can_walk, interaction_type, interaction_modes_count)
		VALUES (:id, :sprite_id, :name, :width, :length, :stack_height, :can_stack, :can_sit, :can_lay, :can_walk, :interaction_type, :interaction_modes_count)
		ON CONFLICT (id) DO UPDATE SET
			sprite_id = excluded.sprite_id,
			name = excluded.name,
			width = excluded.width,
			length = excluded.length,
			stack_height = excluded.stack_height,
			can_stack = excluded.can_stack,
			can_sit = excluded.can_sit,
			can_lay = excluded.can_lay,
			can_walk = excluded.can_walk,
			interaction_type = excluded.interaction_type,
			interaction_modes_count = excluded.interaction_modes_count`, def); err != nil {
		return juiceroom.WithStack(err)
	}
	s.definitions.Invalidate(def.ID)
	return nil
}

// User is a registered player.
type User struct {
	ID           int64  `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	PasswordHash string `db:"password_hash" json:"-"`
	Wizard       bool   `db:"wizard" json:"wizard"`
	HomeRoom     int    `db:"home_room" json:"homeRoom"`
	Figure       string `db:"figure" json:"figure"`
	Motto        string `db:"motto" json:"motto"`
}

// CreateUser fails if the name is taken, ignoring case.
func (s *Storage) CreateUser(ctx context.Context, u *User) error {
	if _, err := s.LoadUser(ctx, u.Name); err == nil {
		return juiceroom.WithStack(os.ErrExist)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := s.sql.QueryRowxContext(ctx, s.sql.Rebind(`
		INSERT INTO users (name, password_hash, wizard, home_room, figure, motto)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		u.Name, u.PasswordHash, u.Wizard, u.HomeRoom, u.Figure, u.Motto).Scan(&u.ID); err != nil {
		return juiceroom.WithStack(err)
	}
	s.AuditLog(ctx, "USER_CREATE", AuditUserCreate{User: Ref(u.ID, u.Name)})
	return nil
}

// LoadUser ignores case and returns os.ErrNotExist for unknown names.
func (s *Storage) LoadUser(ctx context.Context, name string) (*User, error) {
	u := &User{}
	if err := s.sql.GetContext(ctx, u, s.sql.Rebind("SELECT * FROM users WHERE lower(name) = lower(?)"), name); err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Storage) UpdateUser(ctx context.Context, u *User) error {
	_, err := s.sql.NamedExecContext(ctx, `
		UPDATE users SET
			password_hash = :password_hash,
			wizard = :wizard,
			home_room = :home_room,
			figure = :figure,
			motto = :motto
		WHERE id = :id`, u)
	return juiceroom.WithStack(err)
}

func (s *Storage) CountUsers(ctx context.Context) (int, error) {
	n := 0
	if err := s.sql.GetContext(ctx, &n, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, juiceroom.WithStack(err)
	}
	return n, nil
}
