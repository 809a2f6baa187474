// Package scheduler credits the weekly allowance in the background.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/davebekker/signal-budget-bot/internal/observability/metrics"
	"github.com/shopspring/decimal"
)

const (
	// Period is the length of one allowance period.
	Period = 7 * 24 * time.Hour
	// DefaultCheckInterval is how often the scheduler looks for due periods.
	DefaultCheckInterval = time.Hour
)

// State is the scheduler's current activity.
type State int32

const (
	Idle State = iota
	Accruing
)

func (s State) String() string {
	if s == Accruing {
		return "accruing"
	}
	return "idle"
}

// Ledger is what the scheduler needs from the ledger.
type Ledger interface {
	Snapshot() models.LedgerState
	Accrue(ctx context.Context, amount decimal.Decimal, period time.Duration) (models.Transaction, bool, error)
}

// Config configures an AllowanceScheduler.
type Config struct {
	Period        time.Duration // defaults to Period
	CheckInterval time.Duration // defaults to DefaultCheckInterval
	Now           func() time.Time
	Logger        *slog.Logger
}

// AllowanceScheduler credits one allowance transaction for every whole period
// elapsed since the persisted last accrual. Because the elapsed time is
// computed from the persisted timestamp, periods missed while the process was
// down are caught up on the next check.
type AllowanceScheduler struct {
	ledger   Ledger
	period   time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	state    atomic.Int32
}

// NewAllowanceScheduler constructs an AllowanceScheduler.
func NewAllowanceScheduler(l Ledger, cfg Config) *AllowanceScheduler {
	if cfg.Period <= 0 {
		cfg.Period = Period
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AllowanceScheduler{
		ledger:   l,
		period:   cfg.Period,
		interval: cfg.CheckInterval,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
}

// State returns whether the scheduler is idle or accruing.
func (s *AllowanceScheduler) State() State {
	return State(s.state.Load())
}

// Start checks immediately and then on every interval until ctx is done.
func (s *AllowanceScheduler) Start(ctx context.Context) {
	if s == nil || s.ledger == nil {
		return
	}
	s.check(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *AllowanceScheduler) check(ctx context.Context) {
	if _, err := s.CheckOnce(ctx); err != nil {
		s.logger.Error("allowance accrual failed, will retry on next check", "error", err)
	}
}

// CheckOnce credits every due period and returns how many were credited. On
// error the periods already credited stay credited and the rest are retried
// on the next check.
func (s *AllowanceScheduler) CheckOnce(ctx context.Context) (int, error) {
	snap := s.ledger.Snapshot()
	due := int(s.now().Sub(snap.LastAccrual) / s.period)
	if due < 1 {
		return 0, nil
	}
	amount := snap.AllowanceAmount

	s.state.Store(int32(Accruing))
	defer s.state.Store(int32(Idle))

	credited := 0
	defer func() { metrics.AddAccruedPeriods(credited) }()

	for i := 0; i < due; i++ {
		if err := ctx.Err(); err != nil {
			return credited, err
		}
		_, ok, err := s.ledger.Accrue(ctx, amount, s.period)
		if err != nil {
			return credited, err
		}
		if !ok {
			break
		}
		credited++
	}

	s.logger.Info("allowance credited", "periods", credited, "amount", amount.StringFixed(2))
	return credited, nil
}
