package dbm

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/estraier/tkrzw-go"
	"github.com/zond/juiceroom"
)

type Hash struct {
	dbm   *tkrzw.DBM
	mutex *sync.RWMutex
}

func (h *Hash) Get(k string) ([]byte, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	b, stat := h.dbm.Get(k)
	if stat.GetCode() == tkrzw.StatusNotFoundError {
		return nil, juiceroom.WithStack(os.ErrNotExist)
	} else if !stat.IsOK() {
		return nil, juiceroom.WithStack(stat)
	}
	return b, nil
}

func (h *Hash) Has(k string) (bool, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, stat := h.dbm.Get(k)
	if stat.GetCode() == tkrzw.StatusNotFoundError {
		return false, nil
	} else if !stat.IsOK() {
		return false, juiceroom.WithStack(stat)
	}
	return true, nil
}

func (h *Hash) Set(k string, v []byte, overwrite bool) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if stat := h.dbm.Set(k, v, overwrite); !stat.IsOK() {
		return juiceroom.WithStack(stat)
	}
	return nil
}

// Del returns os.ErrNotExist if k is missing.
func (h *Hash) Del(k string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if stat := h.dbm.Remove(k); stat.GetCode() == tkrzw.StatusNotFoundError {
		return juiceroom.WithStack(os.ErrNotExist)
	} else if !stat.IsOK() {
		return juiceroom.WithStack(stat)
	}
	return nil
}

func (h *Hash) Count() (int64, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	n, stat := h.dbm.Count()
	if !stat.IsOK() {
		return 0, juiceroom.WithStack(stat)
	}
	return n, nil
}

func (h *Hash) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if stat := h.dbm.Close(); !stat.IsOK() {
		return juiceroom.WithStack(stat)
	}
	return nil
}

// Tree is a Hash with keys in lexical order.
type Tree struct {
	*Hash
}

// Each calls f for every key with prefix, in key order, until f returns false.
func (t *Tree) Each(prefix string, f func(key string, value []byte) (bool, error)) error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	iter := t.dbm.MakeIterator()
	defer iter.Destruct()
	stat := iter.Jump(prefix)
	for ; stat.IsOK(); stat = iter.Next() {
		key, value, getStat := iter.Get()
		if getStat.GetCode() == tkrzw.StatusNotFoundError {
			return nil
		} else if !getStat.IsOK() {
			return juiceroom.WithStack(getStat)
		}
		if !strings.HasPrefix(string(key), prefix) {
			return nil
		}
		cont, err := f(string(key), value)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	if stat.GetCode() == tkrzw.StatusNotFoundError {
		return nil
	}
	return juiceroom.WithStack(stat)
}

// DelPrefix removes every key with prefix and returns how many there were.
func (t *Tree) DelPrefix(prefix string) (int, error) {
	keys := []string{}
	if err := t.Each(prefix, func(key string, _ []byte) (bool, error) {
		keys = append(keys, key)
		return true, nil
	}); err != nil {
		return 0, err
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	pairs := make([]tkrzw.KeyProcPair, len(keys))
	for index, key := range keys {
		pairs[index] = tkrzw.KeyProcPair{
			Key: key,
			Proc: func(key []byte, value []byte) any {
				return tkrzw.RemoveBytes
			},
		}
	}
	if stat := t.dbm.ProcessMulti(pairs, true); !stat.IsOK() {
		return 0, juiceroom.WithStack(stat)
	}
	return len(keys), nil
}

func OpenHash(path string) (*Hash, error) {
	dbm := tkrzw.NewDBM()
	stat := dbm.Open(fmt.Sprintf("%s.tkh", path), true, map[string]string{
		"update_mode":      "UPDATE_APPENDING",
		"record_comp_mode": "RECORD_COMP_NONE",
		"restore_mode":     "RESTORE_SYNC|RESTORE_NO_SHORTCUTS|RESTORE_WITH_HARDSYNC",
	})
	if !stat.IsOK() {
		return nil, juiceroom.WithStack(stat)
	}
	return &Hash{dbm, &sync.RWMutex{}}, nil
}

func OpenTree(path string) (*Tree, error) {
	dbm := tkrzw.NewDBM()
	stat := dbm.Open(fmt.Sprintf("%s.tkt", path), true, map[string]string{
		"update_mode":      "UPDATE_APPENDING",
		"record_comp_mode": "RECORD_COMP_NONE",
		"key_comparator":   "LexicalKeyComparator",
	})
	if !stat.IsOK() {
		return nil, juiceroom.WithStack(stat)
	}
	return &Tree{&Hash{dbm, &sync.RWMutex{}}}, nil
}
