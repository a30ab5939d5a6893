// Package js runs room scripts in a v8 isolate owned by the room loop.
package js

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"github.com/zond/juiceroom"
	"github.com/zond/juiceroom/room"
	"github.com/zond/juiceroom/storage/docdb"
	"github.com/zond/juiceroom/structs"
	"rogchap.com/v8go"

	goccy "github.com/goccy/go-json"
)

var (
	ErrTimeout = fmt.Errorf("script timeout")
	ErrClosed  = fmt.Errorf("script host closed")
)

// KV is a string store exposed to scripts.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

type Options struct {
	Room          *room.Room
	RoomStorage   KV
	GlobalStorage KV
	// Database is optional, scripts see a Database namespace that fails every call without it.
	Database *docdb.DB
	// Definition looks up catalog entries for fake furni.
	Definition func(ctx context.Context, id int) (*structs.FurnitureDefinition, error)
	// SendMessage delivers a server message to another room.
	SendMessage func(to int, event, data string) bool
	Console     io.Writer
	// Timeout bounds every entry into the isolate. Defaults to the room config.
	Timeout time.Duration
	// Stats is optional.
	Stats Recorder
}

// Recorder receives the duration and outcome of every outermost entry into a
// script.
type Recorder interface {
	RecordExecution(roomID int, duration time.Duration, err error)
}

type delayRef struct {
	millis bool
	id     uint64
}

// Host is a single room script. Everything except Close must be called from
// the room loop.
type Host struct {
	opts     Options
	room     *room.Room
	iso      *v8go.Isolate
	vctx     *v8go.Context
	fallback *v8go.Value

	delays      map[int]delayRef
	nextDelayID int

	mu      sync.Mutex
	running bool
	depth   int
	closed  bool
}

func New(opts Options) (*Host, error) {
	if opts.Room == nil {
		return nil, juiceroom.WithStack(fmt.Errorf("no room"))
	}
	if opts.Timeout <= 0 {
		opts.Timeout = opts.Room.Config().GetScriptTimeout()
	}
	h := &Host{
		opts:   opts,
		room:   opts.Room,
		iso:    v8go.NewIsolate(),
		delays: map[int]delayRef{},
	}
	h.vctx = v8go.NewContext(h.iso)
	var err error
	if h.fallback, err = v8go.NewValue(h.iso, "unable to generate exception"); err != nil {
		h.Close()
		return nil, juiceroom.WithStack(err)
	}
	if err := h.install(); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// Close releases the isolate. Safe to call more than once.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.vctx.Close()
	h.iso.Dispose()
}

func (h *Host) Room() *room.Room {
	return h.room
}

func (h *Host) log(format string, args ...any) {
	if h.opts.Console != nil {
		log.New(h.opts.Console, "", 0).Printf(format, args...)
	} else {
		log.Printf("room %d: "+format, append([]any{h.room.ID()}, args...)...)
	}
}

func (h *Host) report(origin string, err error) {
	h.log("-- error in %s --\n%v", origin, err)
}

// Run executes source, typically the room script, under the timeout.
func (h *Host) Run(source, origin string) error {
	_, err := h.guard(func() (*v8go.Value, error) {
		return h.vctx.RunScript(source, origin)
	})
	if err != nil {
		h.report(origin, err)
	}
	return err
}

// Eval runs a snippet and returns its JSON encoded result. Used by script consoles.
func (h *Host) Eval(source string) (string, error) {
	val, err := h.guard(func() (*v8go.Value, error) {
		return h.vctx.RunScript(source, "console")
	})
	if err != nil {
		return "", err
	}
	if val == nil || val.IsUndefined() {
		return "undefined", nil
	}
	if val.IsFunction() {
		return val.String(), nil
	}
	s, err := v8go.JSONStringify(h.vctx, val)
	if err != nil {
		return val.String(), nil
	}
	return s, nil
}

// guard runs f with the execution timeout armed. Nested entries, a script
// triggering handlers of its own, share the outermost deadline.
func (h *Host) guard(f func() (*v8go.Value, error)) (*v8go.Value, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, juiceroom.WithStack(ErrClosed)
	}
	h.depth++
	outer := h.depth == 1
	if outer {
		h.running = true
	}
	h.mu.Unlock()
	timedOut := false
	var timer *time.Timer
	start := time.Now()
	if outer {
		timer = time.AfterFunc(h.opts.Timeout, func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.running && !h.closed {
				timedOut = true
				h.iso.TerminateExecution()
			}
		})
	}
	val, err := f()
	h.mu.Lock()
	h.depth--
	if outer {
		h.running = false
		timer.Stop()
	}
	expired := timedOut
	h.mu.Unlock()
	if expired {
		val, err = nil, ErrTimeout
	}
	err = juiceroom.WithStack(err)
	if outer && h.opts.Stats != nil {
		h.opts.Stats.RecordExecution(h.room.ID(), time.Since(start), err)
	}
	return val, err
}

// call invokes a script function with Go values converted to JS.
func (h *Host) call(fn *v8go.Function, args ...any) error {
	values := make([]v8go.Valuer, len(args))
	for i, arg := range args {
		v, err := h.toJS(arg)
		if err != nil {
			return err
		}
		values[i] = v
	}
	_, err := h.guard(func() (*v8go.Value, error) {
		return fn.Call(h.vctx.Global(), values...)
	})
	return err
}

func (h *Host) str(s string) *v8go.Value {
	if res, err := v8go.NewValue(h.iso, s); err == nil {
		return res
	}
	return h.fallback
}

func (h *Host) throw(format string, args ...any) *v8go.Value {
	return h.iso.ThrowException(h.str(fmt.Sprintf(format, args...)))
}

// toJS converts primitives directly and everything else through JSON.
// Typed nil pointers become null.
func (h *Host) toJS(v any) (*v8go.Value, error) {
	var (
		val *v8go.Value
		err error
	)
	switch v := v.(type) {
	case nil:
		return v8go.Undefined(h.iso), nil
	case *v8go.Value:
		return v, nil
	case bool:
		val, err = v8go.NewValue(h.iso, v)
	case string:
		val, err = v8go.NewValue(h.iso, v)
	case float64:
		val, err = v8go.NewValue(h.iso, v)
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			val, err = v8go.NewValue(h.iso, int32(v))
		} else {
			val, err = v8go.NewValue(h.iso, float64(v))
		}
	default:
		b, merr := goccy.Marshal(v)
		if merr != nil {
			return nil, juiceroom.WithStack(merr)
		}
		val, err = v8go.JSONParse(h.vctx, string(b))
	}
	return val, juiceroom.WithStack(err)
}

// fromJS decodes v into target through JSON. Null and undefined leave target untouched.
func (h *Host) fromJS(v *v8go.Value, target any) error {
	if v == nil || v.IsNullOrUndefined() {
		return nil
	}
	s, err := v8go.JSONStringify(h.vctx, v)
	if err != nil {
		return juiceroom.WithStack(err)
	}
	return juiceroom.WithStack(goccy.Unmarshal([]byte(s), target))
}

// binding implements a namespace function. Returning untyped nil yields undefined.
type binding func(a args) (any, error)

func (h *Host) wrap(name string, f binding) v8go.FunctionCallback {
	return func(info *v8go.FunctionCallbackInfo) (result *v8go.Value) {
		defer func() {
			if e := recover(); e != nil {
				err := juiceroom.WithStack(fmt.Errorf("panic: %v", e))
				log.Printf("%s: %v\n%s", name, err, juiceroom.StackTrace(err))
				result = h.throw("%s: internal error", name)
			}
		}()
		res, err := f(args{h: h, values: info.Args()})
		if err != nil {
			return h.throw("%s: %v", name, err)
		}
		val, err := h.toJS(res)
		if err != nil {
			return h.throw("%s: %v", name, err)
		}
		return val
	}
}

func (h *Host) namespace(name string, funcs map[string]binding) error {
	tmpl := v8go.NewObjectTemplate(h.iso)
	for fname, f := range funcs {
		if err := tmpl.Set(fname, v8go.NewFunctionTemplate(h.iso, h.wrap(name+"."+fname, f))); err != nil {
			return juiceroom.WithStack(err)
		}
	}
	obj, err := tmpl.NewInstance(h.vctx)
	if err != nil {
		return juiceroom.WithStack(err)
	}
	return juiceroom.WithStack(h.vctx.Global().Set(name, obj))
}

// args wraps the arguments of a binding call.
type args struct {
	h      *Host
	values []*v8go.Value
}

func (a args) get(i int) *v8go.Value {
	if i < len(a.values) && a.values[i] != nil && !a.values[i].IsNullOrUndefined() {
		return a.values[i]
	}
	return nil
}

func (a args) present(i int) bool {
	return a.get(i) != nil
}

func (a args) number(i int) (float64, error) {
	v := a.get(i)
	if v == nil || !v.IsNumber() {
		return 0, fmt.Errorf("argument %d must be a number", i)
	}
	return v.Number(), nil
}

func (a args) integer(i int) (int, error) {
	n, err := a.number(i)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (a args) text(i int) (string, error) {
	v := a.get(i)
	if v == nil {
		return "", fmt.Errorf("argument %d must be a string", i)
	}
	return v.String(), nil
}

func (a args) flag(i int) bool {
	v := a.get(i)
	return v != nil && v.Boolean()
}

func (a args) function(i int) (*v8go.Function, error) {
	v := a.get(i)
	if v == nil || !v.IsFunction() {
		return nil, fmt.Errorf("argument %d must be a function", i)
	}
	return v.AsFunction()
}

// id accepts either a number or an object with an id field, such as an
// entity or furni snapshot.
func (a args) id(i int) (int, error) {
	v := a.get(i)
	if v == nil {
		return 0, fmt.Errorf("argument %d must be an id or an object with an id", i)
	}
	if v.IsNumber() {
		return int(v.Number()), nil
	}
	if v.IsObject() {
		obj, err := v.AsObject()
		if err != nil {
			return 0, err
		}
		idVal, err := obj.Get("id")
		if err != nil {
			return 0, err
		}
		if idVal.IsNumber() {
			return int(idVal.Number()), nil
		}
	}
	return 0, fmt.Errorf("argument %d must be an id or an object with an id", i)
}

// ids accepts an array of ids or objects with ids.
func (a args) ids(i int) ([]int, error) {
	v := a.get(i)
	if v == nil {
		return nil, nil
	}
	if !v.IsArray() {
		return nil, fmt.Errorf("argument %d must be an array", i)
	}
	raw := []goccy.RawMessage{}
	if err := a.h.fromJS(v, &raw); err != nil {
		return nil, err
	}
	result := make([]int, 0, len(raw))
	for _, elem := range raw {
		var n float64
		if err := goccy.Unmarshal(elem, &n); err == nil {
			result = append(result, int(n))
			continue
		}
		obj := struct {
			ID *float64 `json:"id"`
		}{}
		if err := goccy.Unmarshal(elem, &obj); err != nil || obj.ID == nil {
			return nil, fmt.Errorf("argument %d must contain ids or objects with ids", i)
		}
		result = append(result, int(*obj.ID))
	}
	return result, nil
}

// strings accepts a string or an array of strings.
func (a args) strings(i int) ([]string, error) {
	v := a.get(i)
	if v == nil {
		return nil, fmt.Errorf("argument %d must be a string or an array of strings", i)
	}
	if !v.IsArray() {
		return []string{v.String()}, nil
	}
	result := []string{}
	if err := a.h.fromJS(v, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (a args) decode(i int, target any) error {
	return a.h.fromJS(a.get(i), target)
}
