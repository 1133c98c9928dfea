package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
)

// PebbleBackend persists records in a PebbleDB directory.
type PebbleBackend struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) the database living directly in dir.
func OpenPebble(dir string) (*PebbleBackend, error) {
	if dir == "" {
		return nil, errors.New("store: pebble directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}
	return &PebbleBackend{db: db}, nil
}

func (p *PebbleBackend) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(data), nil
}

func (p *PebbleBackend) Set(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.Set(key, value, pebble.Sync)
}

func (p *PebbleBackend) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.Delete(key, pebble.Sync)
}

func (p *PebbleBackend) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	it, err := p.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()
	return drain(ctx, it, fn)
}

// iterator is the part of *pebble.Iterator that drain walks.
type iterator interface {
	First() bool
	Valid() bool
	Next() bool
	Key() []byte
	ValueAndErr() ([]byte, error)
	Error() error
}

// drain feeds every entry of it to fn. A positioning error ends the loop
// like exhaustion does, so it is reported once the loop is done.
func drain(ctx context.Context, it iterator, fn func(key, value []byte) error) error {
	for it.First(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		val, err := it.ValueAndErr()
		if err != nil {
			return err
		}
		// The iterator reuses its buffers once it moves on.
		if err := fn(bytes.Clone(it.Key()), bytes.Clone(val)); err != nil {
			return err
		}
	}
	return it.Error()
}

func (p *PebbleBackend) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// prefixEnd returns the smallest key greater than every key with prefix, or
// nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
