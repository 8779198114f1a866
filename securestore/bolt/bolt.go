// Package bolt provides a BBolt-backed securestore backend.
package bolt

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/pawsy/sessiond/internal/util"
	"github.com/pawsy/sessiond/securestore"
)

var recordsBucket = []byte("records")

// Backend implements securestore.Backend on a BBolt database.
type Backend struct {
	db *bbolt.DB
}

var _ securestore.Backend = (*Backend)(nil)

// New returns a Backend over an already-open BBolt database.
func New(db *bbolt.DB) (*Backend, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating records bucket: %w", err)
	}
	return &Backend{db: db}, nil
}

// NewFromFile opens a BBolt database at path and returns a Backend.
func NewFromFile(path string, options *bbolt.Options) (*Backend, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return New(db)
}

// Close closes the underlying BBolt database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(recordsBucket).Get([]byte(key))
		if data == nil {
			return securestore.ErrNotFound
		}
		value = util.CopyBytes(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte(key), value)
	})
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(recordsBucket)
		if bucket.Get([]byte(key)) == nil {
			return securestore.ErrNotFound
		}
		return bucket.Delete([]byte(key))
	})
}

func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(k, v []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
