// Package redis provides a Redis-backed securestore backend for deployments
// where several gateway instances share persisted state. Writes are announced
// on a pub/sub channel so every instance can re-verify records modified by
// its peers.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pawsy/sessiond/securestore"
)

const (
	keyPrefix     = "sessiond:record:"
	changeChannel = "sessiond:changes"
)

// Backend implements securestore.Backend and securestore.Watcher on Redis.
type Backend struct {
	client *redis.Client
}

var _ securestore.Backend = (*Backend)(nil)
var _ securestore.Watcher = (*Backend)(nil)

// New returns a Backend over client.
func New(client *redis.Client) *Backend {
	return &Backend{client: client}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, securestore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	if err := b.client.Publish(ctx, changeChannel, key).Err(); err != nil {
		return fmt.Errorf("publishing change for %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	deleted, err := b.client.Del(ctx, keyPrefix+key).Result()
	if err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	if deleted == 0 {
		return securestore.ErrNotFound
	}
	return nil
}

func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	full, err := b.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys: %w", err)
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, k[len(keyPrefix):])
	}
	return keys, nil
}

// Watch subscribes to the change channel and resolves each announcement to
// the current value so the store can re-verify it.
func (b *Backend) Watch(ctx context.Context) (<-chan securestore.Change, error) {
	sub := b.client.Subscribe(ctx, changeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribing to change channel: %w", err)
	}

	out := make(chan securestore.Change, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				key := msg.Payload
				value, err := b.Get(ctx, key)
				change := securestore.Change{Key: key, Value: value}
				if errors.Is(err, securestore.ErrNotFound) {
					change.Deleted = true
				} else if err != nil {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
