package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCloneDoesNotShareTransactions(t *testing.T) {
	s := NewLedgerState(decimal.RequireFromString("1.00"), time.Now())
	s.Transactions = append(s.Transactions, Transaction{Seq: 1, Delta: decimal.RequireFromString("2")})

	c := s.Clone()
	c.Transactions[0].Comment = "changed"
	c.Transactions = append(c.Transactions, Transaction{Seq: 2})

	if s.Transactions[0].Comment != "" || len(s.Transactions) != 1 {
		t.Fatalf("clone mutated original: %+v", s.Transactions)
	}
}

func TestSumIncludesArchivedTotal(t *testing.T) {
	s := LedgerState{
		ArchivedTotal: decimal.RequireFromString("10.00"),
		Transactions: []Transaction{
			{Delta: decimal.RequireFromString("0.10")},
			{Delta: decimal.RequireFromString("0.20")},
			{Delta: decimal.RequireFromString("-5.55")},
		},
	}
	if got := s.Sum(); !got.Equal(decimal.RequireFromString("4.75")) {
		t.Fatalf("Sum = %s, want 4.75", got)
	}
}

func TestSourceValid(t *testing.T) {
	for _, s := range []Source{SourceUserCommand, SourceScheduledAllowance} {
		if !s.Valid() {
			t.Errorf("%q not valid", s)
		}
	}
	if Source("manual").Valid() || Source("").Valid() {
		t.Error("unknown source reported valid")
	}
}

func TestLedgerStateJSONKeepsExactAmounts(t *testing.T) {
	s := NewLedgerState(decimal.RequireFromString("1.00"), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s.Balance = decimal.RequireFromString("0.30")

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"balance":"0.3"`) {
		t.Fatalf("balance not encoded as a decimal string: %s", data)
	}

	var back LedgerState
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Balance.Equal(s.Balance) || !back.AllowanceAmount.Equal(s.AllowanceAmount) {
		t.Fatalf("decoded %+v", back)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := LedgerState{Transactions: []Transaction{{Seq: 1}, {Seq: 2}, {Seq: 3}}}

	tests := []struct {
		n    int
		want []int64
	}{
		{2, []int64{3, 2}},
		{10, []int64{3, 2, 1}},
		{0, []int64{}},
	}
	for _, tt := range tests {
		got := s.Recent(tt.n)
		if len(got) != len(tt.want) {
			t.Fatalf("Recent(%d) = %+v", tt.n, got)
		}
		for i, seq := range tt.want {
			if got[i].Seq != seq {
				t.Fatalf("Recent(%d)[%d].Seq = %d, want %d", tt.n, i, got[i].Seq, seq)
			}
		}
	}

	if got := (LedgerState{}).Recent(5); got == nil || len(got) != 0 {
		t.Fatalf("Recent on empty state = %#v, want empty slice", got)
	}
}
