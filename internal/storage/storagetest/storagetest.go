// Package storagetest checks that a StateStore implementation round-trips the
// ledger state exactly.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/davebekker/signal-budget-bot/internal/interfaces"
	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/davebekker/signal-budget-bot/internal/storage"
	"github.com/shopspring/decimal"
)

// Opener opens the store under test at path. Each subtest gets a fresh path;
// opening the same path again must reopen the same underlying storage.
type Opener func(t *testing.T, path string) interfaces.StateStore

// base is millisecond aligned so every backend can store it exactly.
var base = time.Date(2026, 2, 2, 10, 30, 0, 0, time.UTC)

// State builds a state with n transactions of 1.25 each starting at seq first.
func State(first int64, n int) models.LedgerState {
	state := models.NewLedgerState(decimal.RequireFromString("1.00"), base)
	state.NextSeq = first
	if first > 1 {
		state.ArchivedTotal = decimal.RequireFromString("1.25").Mul(decimal.NewFromInt(first - 1))
		state.Balance = state.ArchivedTotal
	}
	for i := 0; i < n; i++ {
		seq := state.NextSeq
		delta := decimal.RequireFromString("1.25")
		state.Transactions = append(state.Transactions, models.Transaction{
			ID:        fmt.Sprintf("00000000-0000-4000-8000-%012d", seq),
			Seq:       seq,
			Timestamp: base.Add(time.Duration(seq) * time.Minute),
			Delta:     delta,
			Comment:   fmt.Sprintf("entry %d", seq),
			Source:    models.SourceUserCommand,
		})
		state.Balance = state.Balance.Add(delta)
		state.NextSeq++
	}
	return state
}

// Run exercises the store returned by open. Volatile stores skip the reopen
// check.
func Run(t *testing.T, open Opener, volatile bool) {
	t.Helper()

	t.Run("load empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state")
		s := open(t, path)
		if _, err := s.Load(context.Background()); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("Load on empty store = %v, want ErrNotFound", err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state")
		s := open(t, path)
		ctx := context.Background()

		want := State(1, 3)
		want.Transactions[1].Delta = decimal.RequireFromString("-0.10")
		want.Transactions[1].Comment = ""
		want.Transactions[2].Source = models.SourceScheduledAllowance
		want.Balance = want.Sum()
		want.LastAccrual = base.Add(7 * 24 * time.Hour)

		if err := s.Save(ctx, want); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		Equal(t, got, want)
	})

	t.Run("append and trim", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state")
		s := open(t, path)
		ctx := context.Background()

		if err := s.Save(ctx, State(1, 4)); err != nil {
			t.Fatalf("Save: %v", err)
		}
		// Seqs 1-2 fall out of the window and 5-6 are new.
		next := State(3, 4)
		if err := s.Save(ctx, next); err != nil {
			t.Fatalf("Save trimmed: %v", err)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		Equal(t, got, next)
	})

	t.Run("empty window after trim", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state")
		s := open(t, path)
		ctx := context.Background()

		if err := s.Save(ctx, State(1, 2)); err != nil {
			t.Fatalf("Save: %v", err)
		}
		next := State(3, 0)
		if err := s.Save(ctx, next); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		Equal(t, got, next)
	})

	t.Run("survives reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state")
		s := open(t, path)
		want := State(1, 2)
		if err := s.Save(context.Background(), want); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		if volatile {
			return
		}
		reopened := open(t, path)
		got, err := reopened.Load(context.Background())
		if err != nil {
			t.Fatalf("Load after reopen: %v", err)
		}
		Equal(t, got, want)
	})
}

// Equal fails t unless got and want describe the same ledger.
func Equal(t *testing.T, got, want models.LedgerState) {
	t.Helper()
	if !got.Balance.Equal(want.Balance) {
		t.Errorf("Balance = %s, want %s", got.Balance, want.Balance)
	}
	if !got.AllowanceAmount.Equal(want.AllowanceAmount) {
		t.Errorf("AllowanceAmount = %s, want %s", got.AllowanceAmount, want.AllowanceAmount)
	}
	if !got.ArchivedTotal.Equal(want.ArchivedTotal) {
		t.Errorf("ArchivedTotal = %s, want %s", got.ArchivedTotal, want.ArchivedTotal)
	}
	if got.NextSeq != want.NextSeq {
		t.Errorf("NextSeq = %d, want %d", got.NextSeq, want.NextSeq)
	}
	if !got.LastAccrual.Equal(want.LastAccrual) {
		t.Errorf("LastAccrual = %v, want %v", got.LastAccrual, want.LastAccrual)
	}
	if len(got.Transactions) != len(want.Transactions) {
		t.Fatalf("len(Transactions) = %d, want %d", len(got.Transactions), len(want.Transactions))
	}
	for i := range want.Transactions {
		g, w := got.Transactions[i], want.Transactions[i]
		if g.ID != w.ID || g.Seq != w.Seq || g.Comment != w.Comment || g.Source != w.Source {
			t.Errorf("Transactions[%d] = %+v, want %+v", i, g, w)
		}
		if !g.Delta.Equal(w.Delta) || !g.Timestamp.Equal(w.Timestamp) {
			t.Errorf("Transactions[%d] delta/time = %s %v, want %s %v", i, g.Delta, g.Timestamp, w.Delta, w.Timestamp)
		}
	}
}
