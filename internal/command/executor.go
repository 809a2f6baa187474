package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/davebekker/signal-budget-bot/internal/ledger"
	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/davebekker/signal-budget-bot/internal/observability/metrics"
	"github.com/shopspring/decimal"
)

// HistorySize is how many transactions /history shows.
const HistorySize = 10

// LedgerService is the part of the ledger the executor needs.
type LedgerService interface {
	Apply(ctx context.Context, delta decimal.Decimal, comment string, source models.Source) (decimal.Decimal, error)
	SetAllowanceAmount(ctx context.Context, amount decimal.Decimal) error
	Balance() decimal.Decimal
	RecentHistory(n int) []models.Transaction
}

// Executor applies commands to the ledger and builds the chat reply. Each
// Execute makes at most one ledger call.
type Executor struct {
	ledger   LedgerService
	symbol   string
	location *time.Location
	logger   *slog.Logger
}

// ExecutorConfig holds presentation settings.
type ExecutorConfig struct {
	CurrencySymbol string         // defaults to "£"
	Location       *time.Location // history timestamps, defaults to UTC
	Logger         *slog.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(l LedgerService, cfg ExecutorConfig) *Executor {
	if cfg.CurrencySymbol == "" {
		cfg.CurrencySymbol = "£"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		ledger:   l,
		symbol:   cfg.CurrencySymbol,
		location: cfg.Location,
		logger:   cfg.Logger,
	}
}

// Execute runs cmd on behalf of sender and returns the reply text.
func (e *Executor) Execute(ctx context.Context, cmd Command, sender string) string {
	metrics.IncCommand(cmd.Kind())

	switch c := cmd.(type) {
	case Balance:
		return "Balance: " + e.money(e.ledger.Balance())

	case Add:
		balance, err := e.ledger.Apply(ctx, c.Amount, c.Comment, models.SourceUserCommand)
		if err != nil {
			return e.failure(err, cmd, sender)
		}
		return fmt.Sprintf("Added %s. New balance: %s", e.money(c.Amount), e.money(balance))

	case Sub:
		// No floor: the pot is allowed to go negative.
		balance, err := e.ledger.Apply(ctx, c.Amount.Neg(), c.Comment, models.SourceUserCommand)
		if err != nil {
			return e.failure(err, cmd, sender)
		}
		return fmt.Sprintf("Subtracted %s. New balance: %s", e.money(c.Amount), e.money(balance))

	case History:
		return FormatHistory(e.ledger.RecentHistory(HistorySize), e.location)

	case SetAllowance:
		if err := e.ledger.SetAllowanceAmount(ctx, c.Amount); err != nil {
			return e.failure(err, cmd, sender)
		}
		return "Weekly allowance set to " + e.money(c.Amount)

	case Usage:
		return UsageText

	case Unrecognized:
		return e.explain(c)

	default:
		panic(fmt.Sprintf("command: unhandled command type %T", cmd))
	}
}

func (e *Executor) money(d decimal.Decimal) string {
	return FormatMoney(e.symbol, d)
}

func (e *Executor) explain(c Unrecognized) string {
	var verr *ledger.ValidationError
	switch {
	case errors.As(c.Err, &verr):
		return fmt.Sprintf("Invalid %s: %s.", verr.Field, verr.Message)
	case errors.Is(c.Err, ErrMissingAmount):
		return "Missing amount. Use: /add 5.00 chocolate"
	case errors.Is(c.Err, ErrInvalidAmount):
		return "Invalid amount. Use: /add 5.00 chocolate"
	case errors.Is(c.Err, ErrTooPrecise):
		return "Invalid amount: use at most two decimal places."
	default:
		return fmt.Sprintf("Unknown command %q.\n\n%s", c.Raw, UsageText)
	}
}

// failure turns a ledger error into a reply. Persistence failures are already
// logged by the ledger; the user only gets a generic message.
func (e *Executor) failure(err error, cmd Command, sender string) string {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		return fmt.Sprintf("Invalid %s: %s.", verr.Field, verr.Message)
	case errors.Is(err, ledger.ErrClosed):
		return "The bot is shutting down, please try again in a moment."
	case ledger.IsPersistence(err):
		e.logger.Error("command not saved", "command", cmd.Kind(), "sender", sender, "error", err)
		return "Sorry, that could not be saved. Nothing was changed."
	default:
		e.logger.Error("command failed", "command", cmd.Kind(), "sender", sender, "error", err)
		return "Sorry, something went wrong. Nothing was changed."
	}
}
