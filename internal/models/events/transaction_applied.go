package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionApplied is published after a transaction has been persisted.
type TransactionApplied struct {
	TransactionID string          `json:"transaction_id"`
	Seq           int64           `json:"seq"`
	Delta         decimal.Decimal `json:"delta"`
	Balance       decimal.Decimal `json:"balance"`
	Comment       string          `json:"comment,omitempty"`
	Source        string          `json:"source"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
