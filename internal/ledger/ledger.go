package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/davebekker/signal-budget-bot/internal/interfaces"
	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/davebekker/signal-budget-bot/internal/models/events"
	"github.com/davebekker/signal-budget-bot/internal/observability/metrics"
	"github.com/davebekker/signal-budget-bot/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllowanceComment is the comment recorded on scheduled allowance credits.
const AllowanceComment = "auto-allowance"

// DefaultRetention is how many transactions are kept when no retention is configured.
const DefaultRetention = 100

// Ledger owns the pot state. Every mutation holds mu for the whole
// read-modify-persist cycle, so callers observe a strict total order and
// memory is only updated once the store accepted the new state.
type Ledger struct {
	mu     sync.Mutex
	state  models.LedgerState
	closed bool

	store     interfaces.StateStore
	publisher interfaces.EventPublisher
	topic     string
	retention int
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPublisher publishes a TransactionApplied event on topic after every
// persisted transaction.
func WithPublisher(p interfaces.EventPublisher, topic string) Option {
	return func(l *Ledger) {
		l.publisher = p
		l.topic = topic
	}
}

// WithRetention sets how many recent transactions are kept in the state.
func WithRetention(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.retention = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLedger loads the persisted state from store. On first start it creates
// and persists a zero state with defaultAllowance and the accrual clock set to now.
func NewLedger(ctx context.Context, store interfaces.StateStore, defaultAllowance decimal.Decimal, opts ...Option) (*Ledger, error) {
	if defaultAllowance.IsNegative() {
		return nil, &ValidationError{Field: "allowance", Message: "must not be negative"}
	}
	l := &Ledger{
		store:     store,
		retention: DefaultRetention,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	state, err := store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		state = models.NewLedgerState(defaultAllowance, l.now().UTC())
		if err := store.Save(ctx, state); err != nil {
			return nil, &PersistenceError{Op: "initialise state", Err: err}
		}
		l.logger.Info("initialised new ledger", "allowance", defaultAllowance.StringFixed(2))
	case err != nil:
		return nil, fmt.Errorf("ledger: load state: %w", err)
	default:
		if state.LastAccrual.IsZero() {
			return nil, ErrNoAccrualTime
		}
		state = normalise(state)
		if !state.Balance.Equal(state.Sum()) {
			l.logger.Warn("persisted balance does not match transaction log",
				"balance", state.Balance.String(), "sum", state.Sum().String())
		}
	}

	l.state = state
	metrics.SetBalance(state.Balance.InexactFloat64())
	metrics.SetAllowance(state.AllowanceAmount.InexactFloat64())
	return l, nil
}

// normalise fills in fields missing from state written by older versions.
func normalise(state models.LedgerState) models.LedgerState {
	if state.Transactions == nil {
		state.Transactions = []models.Transaction{}
	}
	var last int64
	if n := len(state.Transactions); n > 0 {
		last = state.Transactions[n-1].Seq
	}
	if state.NextSeq <= last {
		state.NextSeq = last + 1
	}
	return state
}

// Apply appends a transaction of delta and persists the new state before
// returning the new balance. The balance may go negative.
func (l *Ledger) Apply(ctx context.Context, delta decimal.Decimal, comment string, source models.Source) (decimal.Decimal, error) {
	if !source.Valid() {
		return decimal.Zero, ErrInvalidSource
	}
	start := time.Now()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return decimal.Zero, ErrClosed
	}
	next := l.state.Clone()
	tx := l.appendTx(&next, delta, comment, source)
	if err := l.commit(ctx, next, "apply transaction"); err != nil {
		l.mu.Unlock()
		metrics.ObserveApply(metrics.ResultError, time.Since(start))
		return decimal.Zero, err
	}
	balance := next.Balance
	l.mu.Unlock()

	metrics.ObserveApply(metrics.ResultSuccess, time.Since(start))
	l.publish(ctx, tx, balance)
	return balance, nil
}

// Accrue credits one period of allowance if at least one whole period has
// elapsed since the last accrual. The credit and the advance of LastAccrual by
// exactly one period are persisted together. It reports false when nothing
// was due.
func (l *Ledger) Accrue(ctx context.Context, amount decimal.Decimal, period time.Duration) (models.Transaction, bool, error) {
	if amount.IsNegative() {
		return models.Transaction{}, false, &ValidationError{Field: "allowance", Message: "must not be negative"}
	}
	if period <= 0 {
		return models.Transaction{}, false, &ValidationError{Field: "period", Message: "must be positive"}
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return models.Transaction{}, false, ErrClosed
	}
	if l.now().Sub(l.state.LastAccrual) < period {
		l.mu.Unlock()
		return models.Transaction{}, false, nil
	}
	next := l.state.Clone()
	tx := l.appendTx(&next, amount, AllowanceComment, models.SourceScheduledAllowance)
	next.LastAccrual = next.LastAccrual.Add(period)
	if err := l.commit(ctx, next, "accrue allowance"); err != nil {
		l.mu.Unlock()
		return models.Transaction{}, false, err
	}
	balance := next.Balance
	l.mu.Unlock()

	l.publish(ctx, tx, balance)
	return tx, true, nil
}

// SetAllowanceAmount changes the amount credited every period.
func (l *Ledger) SetAllowanceAmount(ctx context.Context, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return &ValidationError{Field: "allowance", Message: "must not be negative"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	next := l.state.Clone()
	next.AllowanceAmount = amount
	return l.commit(ctx, next, "set allowance")
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() models.LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// Balance returns the current balance.
func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Balance
}

// RecentHistory returns up to n of the most recent transactions, newest first.
func (l *Ledger) RecentHistory(n int) []models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Recent(n)
}

// Close stops accepting mutations. It waits for an in-flight mutation,
// including its durable write, to finish. The store is not closed.
func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

// appendTx adds a transaction to next and trims the log to the retention
// window, folding dropped deltas into ArchivedTotal. Must hold mu.
func (l *Ledger) appendTx(next *models.LedgerState, delta decimal.Decimal, comment string, source models.Source) models.Transaction {
	tx := models.Transaction{
		ID:        uuid.NewString(),
		Seq:       next.NextSeq,
		Timestamp: l.now().UTC(),
		Delta:     delta,
		Comment:   comment,
		Source:    source,
	}
	next.NextSeq++
	next.Transactions = append(next.Transactions, tx)
	next.Balance = next.Balance.Add(delta)

	if l.retention > 0 && len(next.Transactions) > l.retention {
		drop := len(next.Transactions) - l.retention
		for _, old := range next.Transactions[:drop] {
			next.ArchivedTotal = next.ArchivedTotal.Add(old.Delta)
		}
		next.Transactions = append([]models.Transaction(nil), next.Transactions[drop:]...)
	}
	return tx
}

// commit persists next and, only on success, makes it the current state.
// The write is detached from ctx cancellation so shutdown cannot interrupt
// it half way. Must hold mu.
func (l *Ledger) commit(ctx context.Context, next models.LedgerState, op string) error {
	if err := l.store.Save(context.WithoutCancel(ctx), next); err != nil {
		l.logger.Error("ledger persistence failed, change discarded", "op", op, "error", err)
		return &PersistenceError{Op: op, Err: err}
	}
	l.state = next
	metrics.SetBalance(next.Balance.InexactFloat64())
	metrics.SetAllowance(next.AllowanceAmount.InexactFloat64())
	return nil
}

func (l *Ledger) publish(ctx context.Context, tx models.Transaction, balance decimal.Decimal) {
	if l.publisher == nil {
		return
	}
	event := events.TransactionApplied{
		TransactionID: tx.ID,
		Seq:           tx.Seq,
		Delta:         tx.Delta,
		Balance:       balance,
		Comment:       tx.Comment,
		Source:        string(tx.Source),
		OccurredAt:    tx.Timestamp,
	}
	if err := l.publisher.Publish(ctx, l.topic, tx.ID, event); err != nil {
		l.logger.Warn("publish transaction event", "transaction_id", tx.ID, "error", err)
	}
}
