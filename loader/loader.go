// Package loader moves hotel content between storage and JSON dumps.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/storage"
	"github.com/zond/juiceroom/structs"

	goccy "github.com/goccy/go-json"
)

type Room struct {
	storage.Room
	// Config is the stored room config, verbatim.
	Config  goccy.RawMessage  `json:"config,omitempty"`
	Furni   []structs.Furni   `json:"furni"`
	Storage map[string]string `json:"storage,omitempty"`
}

type Data struct {
	Definitions []structs.FurnitureDefinition `json:"definitions"`
	Rooms       []Room                        `json:"rooms"`
	Global      map[string]string             `json:"global,omitempty"`
}

func dumpKV(kv *storage.KV) (map[string]string, error) {
	keys, err := kv.Keys("")
	if err != nil {
		return nil, err
	}
	result := map[string]string{}
	for _, key := range keys {
		value, found, err := kv.Get(key)
		if err != nil {
			return nil, err
		}
		if found {
			result[key] = value
		}
	}
	return result, nil
}

func restoreKV(kv *storage.KV, values map[string]string) error {
	for key, value := range values {
		if err := kv.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Backup collects the catalog, the rooms with their furni and key/value
// stores, and the global key/value store.
func Backup(ctx context.Context, s *storage.Storage) (*Data, error) {
	defs, err := s.Definitions(ctx)
	if err != nil {
		return nil, err
	}
	rooms, err := s.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	d := &Data{
		Definitions: defs,
		Rooms:       make([]Room, 0, len(rooms)),
	}
	for _, r := range rooms {
		furnis, err := s.LoadFurni(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		values, err := dumpKV(s.RoomStorage(r.ID))
		if err != nil {
			return nil, err
		}
		room := Room{
			Room:    r,
			Furni:   make([]structs.Furni, 0, len(furnis)),
			Storage: values,
		}
		if r.Config != "" {
			room.Config = goccy.RawMessage(r.Config)
		}
		for _, f := range furnis {
			room.Furni = append(room.Furni, *f)
		}
		d.Rooms = append(d.Rooms, room)
	}
	if d.Global, err = dumpKV(s.GlobalStorage()); err != nil {
		return nil, err
	}
	return d, nil
}

// Restore writes d to s, keeping all ids and replacing what's already there.
func Restore(ctx context.Context, s *storage.Storage, d *Data) error {
	for i := range d.Definitions {
		if err := s.UpsertDefinition(ctx, &d.Definitions[i]); err != nil {
			return juiceroom.WithStack(fmt.Errorf("definition %d: %w", d.Definitions[i].ID, err))
		}
	}
	for _, r := range d.Rooms {
		stored := r.Room
		if len(r.Config) > 0 {
			compact := &bytes.Buffer{}
			if err := goccy.Compact(compact, r.Config); err != nil {
				return juiceroom.WithStack(fmt.Errorf("room %d config: %w", r.ID, err))
			}
			stored.Config = compact.String()
		}
		if err := s.UpsertRoom(ctx, &stored); err != nil {
			return juiceroom.WithStack(fmt.Errorf("room %d: %w", r.ID, err))
		}
		for i := range r.Furni {
			if err := s.SaveFurni(ctx, stored.ID, &r.Furni[i]); err != nil {
				return juiceroom.WithStack(fmt.Errorf("room %d furni %d: %w", r.ID, r.Furni[i].ID, err))
			}
		}
		if err := restoreKV(s.RoomStorage(stored.ID), r.Storage); err != nil {
			return err
		}
	}
	return restoreKV(s.GlobalStorage(), d.Global)
}

func Write(w io.Writer, d *Data) error {
	b, err := goccy.MarshalIndent(d, "", "  ")
	if err != nil {
		return juiceroom.WithStack(err)
	}
	_, err = w.Write(b)
	return juiceroom.WithStack(err)
}

func Read(r io.Reader) (*Data, error) {
	d := &Data{}
	if err := goccy.NewDecoder(r).Decode(d); err != nil {
		return nil, juiceroom.WithStack(fmt.Errorf("decoding data: %w", err))
	}
	return d, nil
}
