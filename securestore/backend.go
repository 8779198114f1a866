package securestore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Backend when a key has no value.
var ErrNotFound = errors.New("record not found")

// Backend is the raw byte store underneath the encrypted envelope layer.
// A single logical writer per key is assumed; backends do not implement
// distributed locking.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Change describes a modification made by another execution context
// (another process or another store instance sharing the backend).
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Watcher is implemented by backends that can report external changes.
// The store re-verifies every incoming value and treats verification
// failure as a tamper signal.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Change, error)
}
