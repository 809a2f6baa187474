package memory

import (
	"context"
	"sync"

	"github.com/davebekker/signal-budget-bot/internal/interfaces"
	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/davebekker/signal-budget-bot/internal/storage"
)

// MemoryStateStore keeps the ledger state in process memory. It is used by
// tests and by dry runs where nothing should touch the disk.
type MemoryStateStore struct {
	mu    sync.Mutex
	state *models.LedgerState
	saves int
}

// NewMemoryStateStore returns an empty store; Load reports storage.ErrNotFound
// until the first Save.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

// Load returns a copy of the stored state.
func (m *MemoryStateStore) Load(ctx context.Context) (models.LedgerState, error) {
	if err := ctx.Err(); err != nil {
		return models.LedgerState{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return models.LedgerState{}, storage.ErrNotFound
	}
	return m.state.Clone(), nil // copy so callers can't modify internal state
}

// Save replaces the stored state with a copy of state.
func (m *MemoryStateStore) Save(ctx context.Context, state models.LedgerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := state.Clone()
	m.state = &copied
	m.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (m *MemoryStateStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *MemoryStateStore) Close() error { return nil }

// Compile-time check: ensure MemoryStateStore implements StateStore interface
var _ interfaces.StateStore = (*MemoryStateStore)(nil)
