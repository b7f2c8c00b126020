package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketTabStorage = []byte("tab_storage")

// BoltBackend stores tab entries in a single bbolt bucket.
//
// Key layout: <scope> 0x00 <key>; values are JSON records carrying their expiry.
type BoltBackend struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time

	mu sync.RWMutex
}

type boltRecord struct {
	Value     string    `json:"v"`
	ExpiresAt time.Time `json:"exp"`
}

// OpenBoltBackend opens (or creates) the database file at cfg.BoltPath.
func OpenBoltBackend(cfg BackendConfig) (*BoltBackend, error) {
	if strings.TrimSpace(cfg.BoltPath) == "" {
		return nil, fmt.Errorf("%w: bolt path required", ErrConfig)
	}
	db, err := bolt.Open(cfg.BoltPath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	b, err := NewBoltBackend(db, cfg.TTL)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// NewBoltBackend wraps an open database and creates the bucket if needed.
func NewBoltBackend(db *bolt.DB, ttl time.Duration) (*BoltBackend, error) {
	if err := db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(bucketTabStorage)
		return createErr
	}); err != nil {
		return nil, fmt.Errorf("failed to create tab storage bucket: %w", err)
	}
	return &BoltBackend{
		db:  db,
		ttl: ttlOrDefault(ttl),
		now: time.Now,
	}, nil
}

func boltKey(scope, key string) []byte {
	return []byte(scope + "\x00" + key)
}

// Get returns the live entry; expired records read as missing.
func (b *BoltBackend) Get(ctx context.Context, scope, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var (
		rec   boltRecord
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTabStorage).Get(boltKey(scope, key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if !found || !rec.ExpiresAt.After(b.now()) {
		return "", false, nil
	}
	return rec.Value, true, nil
}

// Set writes the record with a fresh expiry.
func (b *BoltBackend) Set(ctx context.Context, scope, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := json.Marshal(boltRecord{Value: value, ExpiresAt: b.now().Add(b.ttl)})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTabStorage).Put(boltKey(scope, key), data)
	})
}

// Remove deletes the record.
func (b *BoltBackend) Remove(ctx context.Context, scope, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTabStorage).Delete(boltKey(scope, key))
	})
}

// Sweep deletes expired records and returns how many were removed.
func (b *BoltBackend) Sweep(now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketTabStorage)
		var stale [][]byte
		if err := bk.ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil || !rec.ExpiresAt.After(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := bk.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// Ping reports whether the database is still open.
func (b *BoltBackend) Ping(_ context.Context) error {
	return b.db.View(func(*bolt.Tx) error { return nil })
}

// Close closes the database file.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
