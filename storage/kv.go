package storage

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zond/juiceroom/storage/dbm"
)

// KV is a flat string store sharing a tree with other stores under a prefix.
type KV struct {
	tree   *dbm.Tree
	prefix string
}

// RoomStorage is private to one room.
func (s *Storage) RoomStorage(roomID int) *KV {
	return &KV{tree: s.kv, prefix: fmt.Sprintf("room/%d/", roomID)}
}

// GlobalStorage is shared by every room.
func (s *Storage) GlobalStorage() *KV {
	return &KV{tree: s.kv, prefix: "global/"}
}

// Get returns false if the key is missing.
func (k *KV) Get(key string) (string, bool, error) {
	b, err := k.tree.Get(k.prefix + key)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (k *KV) Set(key, value string) error {
	return k.tree.Set(k.prefix+key, []byte(value), true)
}

// Delete is a no-op for missing keys.
func (k *KV) Delete(key string) error {
	if err := k.tree.Del(k.prefix + key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Keys returns every key with prefix, in order.
func (k *KV) Keys(prefix string) ([]string, error) {
	result := []string{}
	if err := k.tree.Each(k.prefix+prefix, func(key string, _ []byte) (bool, error) {
		result = append(result, strings.TrimPrefix(key, k.prefix))
		return true, nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// Clear removes every key and returns how many there were.
func (k *KV) Clear() (int, error) {
	return k.tree.DelPrefix(k.prefix)
}
