package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerState is the whole persisted state of the pot.
//
// Balance always equals ArchivedTotal plus the sum of the retained
// Transactions. ArchivedTotal holds the deltas of transactions that fell out
// of the retention window.
type LedgerState struct {
	Balance         decimal.Decimal `json:"balance"`
	AllowanceAmount decimal.Decimal `json:"allowance_amount"`
	ArchivedTotal   decimal.Decimal `json:"archived_total"`
	NextSeq         int64           `json:"next_seq"`
	Transactions    []Transaction   `json:"transactions"` // oldest first
	LastAccrual     time.Time       `json:"last_accrual"`
}

// NewLedgerState returns the zero state used on first start.
func NewLedgerState(allowance decimal.Decimal, now time.Time) LedgerState {
	return LedgerState{
		Balance:         decimal.Zero,
		AllowanceAmount: allowance,
		ArchivedTotal:   decimal.Zero,
		NextSeq:         1,
		Transactions:    []Transaction{},
		LastAccrual:     now,
	}
}

// Clone returns a copy that shares no mutable memory with s.
func (s LedgerState) Clone() LedgerState {
	out := s
	out.Transactions = make([]Transaction, len(s.Transactions))
	copy(out.Transactions, s.Transactions)
	return out
}

// Sum returns ArchivedTotal plus every retained delta.
func (s LedgerState) Sum() decimal.Decimal {
	total := s.ArchivedTotal
	for _, tx := range s.Transactions {
		total = total.Add(tx.Delta)
	}
	return total
}

// Recent returns up to n of the most recent transactions, newest first.
func (s LedgerState) Recent(n int) []Transaction {
	if n > len(s.Transactions) {
		n = len(s.Transactions)
	}
	if n <= 0 {
		return []Transaction{}
	}
	out := make([]Transaction, 0, n)
	for i := len(s.Transactions) - 1; i >= len(s.Transactions)-n; i-- {
		out = append(out, s.Transactions[i])
	}
	return out
}
