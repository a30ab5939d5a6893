package juiceroom

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	goccy "github.com/goccy/go-json"
)

type contextKey int

var (
	mainContext    contextKey = 0
	sessionContext contextKey = 1
)

func IsMainContext(ctx context.Context) bool {
	val := ctx.Value(mainContext)
	if val == nil {
		return false
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return false
}

func MakeMainContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, mainContext, true)
}

// WithSessionID tags ctx with the id of the client session it runs on behalf of.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionContext, id)
}

func SessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionContext).(string)
	return id, ok
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func WithStack(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(stackTracer); !ok {
		return errors.WithStack(err)
	}
	return err
}

func StackTrace(err error) string {
	buf := &bytes.Buffer{}
	if err, ok := err.(stackTracer); ok {
		for _, f := range err.StackTrace() {
			fmt.Fprintf(buf, "%+v\n", f)
		}
	}
	return buf.String()
}

// Errs collects errors from operations that keep going after a failure.
type Errs []error

func (e Errs) Error() string {
	return fmt.Sprintf("%+v", []error(e))
}

// Err returns nil for an empty collection.
func (e Errs) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

type SyncMap[K comparable, V any] struct {
	m     map[K]V
	mutex sync.RWMutex
}

func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{
		m: map[K]V{},
	}
}

func (s *SyncMap[K, V]) Clone() map[K]V {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	result := map[K]V{}
	for k, v := range s.m {
		result[k] = v
	}
	return result
}

func (s *SyncMap[K, V]) MarshalJSON() ([]byte, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return goccy.Marshal(s.m)
}

func (s *SyncMap[K, V]) UnmarshalJSON(b []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.m = map[K]V{}
	return goccy.Unmarshal(b, &s.m)
}

func (s *SyncMap[K, V]) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.m)
}

func (s *SyncMap[K, V]) Values() iter.Seq[V] {
	return func(yield func(v V) bool) {
		for _, v := range s.Clone() {
			if !yield(v) {
				return
			}
		}
	}
}

func (s *SyncMap[K, V]) Each() iter.Seq2[K, V] {
	return func(yield func(k K, v V) bool) {
		for k, v := range s.Clone() {
			if !yield(k, v) {
				return
			}
		}
	}
}

func (s *SyncMap[K, V]) GetHas(key K) (V, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	v, found := s.m[key]
	return v, found
}

func (s *SyncMap[K, V]) Get(key K) V {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.m[key]
}

func (s *SyncMap[K, V]) Set(key K, value V) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.m[key] = value
}

// SetIfMissing stores value unless key is present, and returns the stored value.
func (s *SyncMap[K, V]) SetIfMissing(key K, value V) (V, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if existing, found := s.m[key]; found {
		return existing, false
	}
	s.m[key] = value
	return value, true
}

func (s *SyncMap[K, V]) Del(key K) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.m, key)
}

// Pop removes and returns the value stored under key.
func (s *SyncMap[K, V]) Pop(key K) (V, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	v, found := s.m[key]
	delete(s.m, key)
	return v, found
}

func (s *SyncMap[K, V]) Has(key K) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, found := s.m[key]
	return found
}

func Increment(prevPointer *uint64) uint64 {
	next := uint64(0)
	for {
		next = uint64(time.Now().UnixNano())
		previous := atomic.LoadUint64(prevPointer)
		if next > previous && atomic.CompareAndSwapUint64(prevPointer, previous, next) {
			break
		}
	}
	return next
}

var (
	lastUniqueCounter uint64 = 0
	uniqueEncoding           = base64.RawURLEncoding
)

// NextUniqueID returns a string id ordered by creation time.
func NextUniqueID() string {
	counter := Increment(&lastUniqueCounter)
	result := make([]byte, 16)
	binary.BigEndian.PutUint64(result, counter)
	if _, err := rand.Read(result[8:]); err != nil {
		panic(err)
	}
	return uniqueEncoding.EncodeToString(result)
}
