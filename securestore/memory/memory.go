// Package memory provides an in-memory securestore backend, used in tests
// and as the change-feed reference implementation.
package memory

import (
	"context"
	"sync"

	"github.com/pawsy/sessiond/internal/util"
	"github.com/pawsy/sessiond/securestore"
)

// Backend is a map-backed store. External writes can be simulated with
// Inject, which delivers a change notification without going through Put.
type Backend struct {
	mu       sync.RWMutex
	data     map[string][]byte
	watchers []chan securestore.Change
}

var _ securestore.Backend = (*Backend)(nil)
var _ securestore.Watcher = (*Backend)(nil)

// New creates an empty Backend.
func New() *Backend {
	return &Backend{data: make(map[string][]byte)}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	value, ok := b.data[key]
	if !ok {
		return nil, securestore.ErrNotFound
	}
	return util.CopyBytes(value), nil
}

func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = util.CopyBytes(value)
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[key]; !ok {
		return securestore.ErrNotFound
	}
	delete(b.data, key)
	return nil
}

func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Watch returns a channel of changes made via Inject. The channel closes
// when ctx is cancelled.
func (b *Backend) Watch(ctx context.Context) (<-chan securestore.Change, error) {
	ch := make(chan securestore.Change, 16)
	b.mu.Lock()
	b.watchers = append(b.watchers, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, w := range b.watchers {
			if w == ch {
				b.watchers = append(b.watchers[:i], b.watchers[i+1:]...)
				close(ch)
				break
			}
		}
	}()
	return ch, nil
}

// Inject writes a raw value as if another execution context modified the
// backend, then notifies watchers.
func (b *Backend) Inject(key string, value []byte) {
	b.mu.Lock()
	b.data[key] = util.CopyBytes(value)
	watchers := make([]chan securestore.Change, len(b.watchers))
	copy(watchers, b.watchers)
	b.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- securestore.Change{Key: key, Value: util.CopyBytes(value)}:
		default:
		}
	}
}
