// Package bolt stores the ledger state in a bbolt database file.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/davebekker/signal-budget-bot/internal/interfaces"
	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/davebekker/signal-budget-bot/internal/storage"
	bolt "go.etcd.io/bbolt"
)

// Bucket and key names.
const (
	BucketPot = "pot"
	KeyState  = "state"
)

// Store represents the bbolt database wrapper.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path and initialises the bucket.
// bbolt holds an exclusive file lock, so a second process waits up to one
// second and then fails.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketPot)); err != nil {
			return fmt.Errorf("create bucket %s: %w", BucketPot, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the state record.
func (s *Store) Load(ctx context.Context) (models.LedgerState, error) {
	if err := ctx.Err(); err != nil {
		return models.LedgerState{}, err
	}
	var state models.LedgerState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketPot))
		if b == nil {
			return fmt.Errorf("bucket %s not found", BucketPot)
		}
		data := b.Get([]byte(KeyState))
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return models.LedgerState{}, err
	}
	return state, nil
}

// Save writes the state record in a single update transaction.
func (s *Store) Save(ctx context.Context, state models.LedgerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("bolt: encode state: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketPot))
		if b == nil {
			return fmt.Errorf("bolt: bucket %s not found", BucketPot)
		}
		return b.Put([]byte(KeyState), data)
	})
}

var _ interfaces.StateStore = (*Store)(nil)
