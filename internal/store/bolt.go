package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	playerBucket = []byte("player")
	sharedBucket = []byte("shared")
)

// Bolt stores values in a single bbolt file with one bucket per namespace.
type Bolt struct {
	db *bolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{playerBucket, sharedBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return b.get(ctx, playerBucket, key)
}

func (b *Bolt) Set(ctx context.Context, key string, value []byte) error {
	return b.set(ctx, playerBucket, key, value)
}

func (b *Bolt) GetShared(ctx context.Context, key string) ([]byte, bool, error) {
	return b.get(ctx, sharedBucket, key)
}

func (b *Bolt) SetShared(ctx context.Context, key string, value []byte) error {
	return b.set(ctx, sharedBucket, key, value)
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) get(ctx context.Context, bucket []byte, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v != nil {
			// Values are only valid for the life of the transaction.
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (b *Bolt) set(ctx context.Context, bucket []byte, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), value)
	})
}
