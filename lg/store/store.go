// Package store keeps namespaced, JSON-encoded records on top of a key/value
// Backend and offers read-modify-write updates that never interleave.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("store: record not found")

// Record is implemented by every value kept in the store. The type tag is
// part of the key, so it must be stable across releases.
type Record interface {
	RecordType() string
}

// Identified records are stored once per item id under their type tag.
// Records that don't implement it are singletons within a namespace.
type Identified interface {
	RecordID() string
}

// DecodeError reports a persisted record that could not be decoded into the
// requested type.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("store: decode %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Store serializes records into a Backend. Writes go through a guard; the
// default guard is shared by every caller that does not pass WithGuard.
type Store struct {
	backend Backend
	guard   sync.Locker
}

// New wraps a backend with the default process-wide guard.
func New(backend Backend) *Store {
	return &Store{backend: backend, guard: &sync.Mutex{}}
}

// Close releases the backend.
func (s *Store) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// Option tunes a single store call.
type Option func(*callOptions)

type callOptions struct {
	guard sync.Locker
}

// WithGuard replaces the default guard for one call. Every caller touching
// the same records must use the same guard, or updates may interleave.
func WithGuard(l sync.Locker) Option {
	return func(o *callOptions) { o.guard = l }
}

func (s *Store) lockerFor(opts []Option) sync.Locker {
	o := callOptions{guard: s.guard}
	for _, opt := range opts {
		opt(&o)
	}
	return o.guard
}

const sep = 0x00

func prefixFor(ns, tag string) []byte {
	b := make([]byte, 0, len(ns)+len(tag)+2)
	b = append(b, ns...)
	b = append(b, sep)
	b = append(b, tag...)
	b = append(b, sep)
	return b
}

func keyFor[T Record](ns string, v T) []byte {
	k := prefixFor(ns, v.RecordType())
	if id, ok := any(v).(Identified); ok {
		k = append(k, id.RecordID()...)
	}
	return k
}

func tagOf[T Record]() string {
	var zero T
	return zero.RecordType()
}

func singleton[T Record]() bool {
	var zero T
	_, ok := any(zero).(Identified)
	return !ok
}

type entry[T Record] struct {
	key   []byte
	value T
}

func decode[T Record](key, raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, &DecodeError{Key: string(key), Err: err}
	}
	return v, nil
}

func scan[T Record](ctx context.Context, s *Store, ns string, pred func(T) bool) ([]entry[T], error) {
	if singleton[T]() {
		k := prefixFor(ns, tagOf[T]())
		raw, err := s.backend.Get(ctx, k)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		v, err := decode[T](k, raw)
		if err != nil {
			return nil, err
		}
		if pred != nil && !pred(v) {
			return nil, nil
		}
		return []entry[T]{{key: k, value: v}}, nil
	}

	var out []entry[T]
	err := s.backend.Scan(ctx, prefixFor(ns, tagOf[T]()), func(key, raw []byte) error {
		v, err := decode[T](key, raw)
		if err != nil {
			return err
		}
		if pred == nil || pred(v) {
			out = append(out, entry[T]{key: key, value: v})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the first record of type T in ns matching pred (nil matches
// everything). It returns ErrNotFound when nothing matches.
func Get[T Record](ctx context.Context, s *Store, ns string, pred func(T) bool) (T, error) {
	var zero T
	entries, err := scan(ctx, s, ns, pred)
	if err != nil {
		return zero, err
	}
	if len(entries) == 0 {
		return zero, ErrNotFound
	}
	return entries[0].value, nil
}

// GetAll returns every record of type T in ns matching pred, in key order.
func GetAll[T Record](ctx context.Context, s *Store, ns string, pred func(T) bool) ([]T, error) {
	entries, err := scan(ctx, s, ns, pred)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.value)
	}
	return out, nil
}

// Put upserts v under (ns, type tag, record id).
func Put[T Record](ctx context.Context, s *Store, ns string, v T, opts ...Option) error {
	g := s.lockerFor(opts)
	g.Lock()
	defer g.Unlock()
	return put(ctx, s, ns, v)
}

func put[T Record](ctx context.Context, s *Store, ns string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", v.RecordType(), err)
	}
	return s.backend.Set(ctx, keyFor(ns, v), raw)
}

// Insert builds a record from the records of type T in ns matching pred and
// stores it. The scan and the write happen under the guard, so a record
// derived from its siblings never races another Insert.
func Insert[T Record](ctx context.Context, s *Store, ns string, pred func(T) bool, build func([]T) T, opts ...Option) (T, error) {
	var zero T
	g := s.lockerFor(opts)
	g.Lock()
	defer g.Unlock()
	entries, err := scan(ctx, s, ns, pred)
	if err != nil {
		return zero, err
	}
	siblings := make([]T, 0, len(entries))
	for _, e := range entries {
		siblings = append(siblings, e.value)
	}
	next := build(siblings)
	if err := put(ctx, s, ns, next); err != nil {
		return zero, err
	}
	return next, nil
}

// Remove deletes every record of type T in ns matching pred and returns how
// many were removed.
func Remove[T Record](ctx context.Context, s *Store, ns string, pred func(T) bool, opts ...Option) (int, error) {
	g := s.lockerFor(opts)
	g.Lock()
	defer g.Unlock()
	entries, err := scan(ctx, s, ns, pred)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := s.backend.Delete(ctx, e.key); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// Update applies fn once to every record of type T in ns matching pred and
// writes the results back. The read and the write happen under the guard,
// so concurrent updates of the same record serialize. It returns the
// updated values.
func Update[T Record](ctx context.Context, s *Store, ns string, pred func(T) bool, fn func(T) T, opts ...Option) ([]T, error) {
	g := s.lockerFor(opts)
	g.Lock()
	defer g.Unlock()
	entries, err := scan(ctx, s, ns, pred)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		next, err := rewrite(ctx, s, ns, e, fn)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
	}
	return out, nil
}

// UpdateOrCreate behaves like Update, but when nothing matches it applies fn
// to init() and stores the result. It returns the last written value.
func UpdateOrCreate[T Record](ctx context.Context, s *Store, ns string, pred func(T) bool, init func() T, fn func(T) T, opts ...Option) (T, error) {
	var zero T
	g := s.lockerFor(opts)
	g.Lock()
	defer g.Unlock()
	entries, err := scan(ctx, s, ns, pred)
	if err != nil {
		return zero, err
	}
	if len(entries) == 0 {
		next := fn(init())
		if err := put(ctx, s, ns, next); err != nil {
			return zero, err
		}
		return next, nil
	}
	var last T
	for _, e := range entries {
		last, err = rewrite(ctx, s, ns, e, fn)
		if err != nil {
			return zero, err
		}
	}
	return last, nil
}

func rewrite[T Record](ctx context.Context, s *Store, ns string, e entry[T], fn func(T) T) (T, error) {
	next := fn(e.value)
	if err := put(ctx, s, ns, next); err != nil {
		return next, err
	}
	if k := keyFor(ns, next); !bytes.Equal(k, e.key) {
		if err := s.backend.Delete(ctx, e.key); err != nil {
			return next, err
		}
	}
	return next, nil
}
