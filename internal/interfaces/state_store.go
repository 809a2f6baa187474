package interfaces

import (
	"context"

	"github.com/davebekker/signal-budget-bot/internal/models"
)

// StateStore persists the whole ledger state. Load returns storage.ErrNotFound
// when nothing has been saved yet.
type StateStore interface {
	Load(ctx context.Context) (models.LedgerState, error)
	Save(ctx context.Context, state models.LedgerState) error
	Close() error
}
