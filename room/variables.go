package room

import (
	"slices"
	"strconv"
	"strings"

	"github.com/zond/juiceroom/structs"
	"github.com/zond/juiceroom/wired"
)

// InterceptPrefix prefixes the wired trigger fired when an intercepted
// variable changes.
const InterceptPrefix = "variable:"

// HolderOf returns the holder id user variables of e are stored under. Fake
// entities have no user record and hold values under their negated entity id.
func HolderOf(e *structs.Entity) int64 {
	if e.Kind.Fake() || e.UserID == 0 {
		return -int64(e.ID)
	}
	return e.UserID
}

// DefineVariable adds or replaces a variable definition. Existing values are kept.
func (r *Room) DefineVariable(v structs.Variable) bool {
	v.Name = strings.TrimSpace(v.Name)
	if v.Name == "" || v.Scope < structs.UserVariable || v.Scope > structs.GlobalVariable {
		return false
	}
	if r.variables[v.Scope] == nil {
		r.variables[v.Scope] = map[string]*structs.Variable{}
	}
	r.variables[v.Scope][v.Name] = &v
	return true
}

func (r *Room) UndefineVariable(scope structs.VariableScope, name string) bool {
	if _, found := r.variables[scope][name]; !found {
		return false
	}
	delete(r.variables[scope], name)
	return true
}

func (r *Room) Variable(scope structs.VariableScope, name string) *structs.Variable {
	return r.variables[scope][name]
}

// Variables returns the definitions of a scope ordered by name.
func (r *Room) Variables(scope structs.VariableScope) []structs.Variable {
	result := make([]structs.Variable, 0, len(r.variables[scope]))
	for _, v := range r.variables[scope] {
		result = append(result, *v)
	}
	slices.SortFunc(result, func(a, b structs.Variable) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result
}

func (r *Room) storeFor(v *structs.Variable) KV {
	if v.Availability != structs.Persistent {
		return nil
	}
	if v.Scope == structs.GlobalVariable {
		return r.global
	}
	return r.storage
}

// shared values live in storage every loaded room writes to, so they are
// read from it each time.
func shared(v *structs.Variable) bool {
	return v.Scope == structs.GlobalVariable && v.Availability == structs.Persistent
}

// GetVariable returns the value held by holder and whether one was set. Unset
// values read as the variable default.
func (r *Room) GetVariable(scope structs.VariableScope, name string, holder int64) (string, bool) {
	v := r.variables[scope][name]
	if v == nil {
		return "", false
	}
	key := v.Key(holder)
	if !shared(v) {
		if value, found := r.values[key]; found {
			return value, true
		}
	}
	if store := r.storeFor(v); store != nil {
		value, found, err := store.Get(key)
		if err != nil {
			r.logf("room %d: reading %v: %v", r.id, key, err)
		} else if found {
			if !shared(v) {
				r.values[key] = value
			}
			return value, true
		}
	}
	return v.Default, false
}

// SetVariable stores a value. Fails if the variable is undefined, read only,
// or value doesn't parse as the variable type.
func (r *Room) SetVariable(scope structs.VariableScope, name string, holder int64, value string) bool {
	v := r.variables[scope][name]
	if v == nil || !v.CanWriteTo {
		return false
	}
	if v.Type == structs.NumberVariable {
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return false
		}
	}
	key := v.Key(holder)
	old, _ := r.GetVariable(scope, name, holder)
	if store := r.storeFor(v); store != nil {
		if err := store.Set(key, value); err != nil {
			r.logf("room %d: writing %v: %v", r.id, key, err)
			return false
		}
	}
	if !shared(v) {
		r.values[key] = value
	}
	if old != value {
		r.intercept(v, holder)
	}
	return true
}

func (r *Room) DeleteVariable(scope structs.VariableScope, name string, holder int64) bool {
	v := r.variables[scope][name]
	if v == nil || !v.CanWriteTo {
		return false
	}
	key := v.Key(holder)
	_, found := r.GetVariable(scope, name, holder)
	if !found {
		return false
	}
	if store := r.storeFor(v); store != nil {
		if err := store.Delete(key); err != nil {
			r.logf("room %d: deleting %v: %v", r.id, key, err)
			return false
		}
	}
	delete(r.values, key)
	r.intercept(v, holder)
	return true
}

func (r *Room) intercept(v *structs.Variable, holder int64) {
	if !v.CanInterceptChanges {
		return
	}
	t := wired.Trigger{Name: InterceptPrefix + v.Name}
	switch v.Scope {
	case structs.UserVariable:
		for _, e := range r.entities {
			if HolderOf(e) == holder {
				t.Entity = e
				break
			}
		}
	case structs.FurniVariable:
		t.Furni = r.furnis[int(holder)]
	}
	r.wired.Trigger(t)
}
