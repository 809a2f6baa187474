package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source records what produced a transaction.
type Source string

const (
	SourceUserCommand        Source = "user-command"
	SourceScheduledAllowance Source = "scheduled-allowance"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	return s == SourceUserCommand || s == SourceScheduledAllowance
}

// Transaction is a single immutable change to the pot balance.
type Transaction struct {
	ID        string          `json:"id"`        // unique identifier
	Seq       int64           `json:"seq"`       // position in the log, starts at 1
	Timestamp time.Time       `json:"timestamp"` // when it was applied
	Delta     decimal.Decimal `json:"delta"`     // positive for add/allowance, negative for sub
	Comment   string          `json:"comment"`
	Source    Source          `json:"source"`
}
