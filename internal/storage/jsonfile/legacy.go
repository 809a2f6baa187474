package jsonfile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Layouts of the dates written by the earlier bot, in local time.
const (
	legacyDayLayout   = "2006-01-02"
	legacyEntryLayout = "2006-01-02 15:04"
)

// legacyState is the budget_state.json document written before transactions
// carried sequence numbers. Amounts were floats and are rounded to pence.
type legacyState struct {
	Balance          decimal.Decimal  `json:"balance"`
	WeeklyAmount     *decimal.Decimal `json:"weekly_amount"`
	LastWeeklyUpdate string           `json:"last_weekly_update"`
	History          []legacyEntry    `json:"history"`
}

type legacyEntry struct {
	Date    string          `json:"date"`
	Amount  decimal.Decimal `json:"amount"`
	Comment string          `json:"comment"`
}

// isLegacy reports whether data is an earlier-format document.
func isLegacy(data []byte) bool {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return false
	}
	_, current := keys["last_accrual"]
	_, legacy := keys["last_weekly_update"]
	return legacy && !current
}

// migrateLegacy converts an earlier-format document. Entries get sequence
// numbers in file order and IDs derived from their position, so loading the
// same file twice yields the same state.
func migrateLegacy(data []byte, loc *time.Location) (models.LedgerState, error) {
	var old legacyState
	if err := json.Unmarshal(data, &old); err != nil {
		return models.LedgerState{}, fmt.Errorf("decode legacy state: %w", err)
	}
	if old.WeeklyAmount == nil {
		return models.LedgerState{}, fmt.Errorf("legacy state has no weekly_amount")
	}
	lastUpdate, err := time.ParseInLocation(legacyDayLayout, old.LastWeeklyUpdate, loc)
	if err != nil {
		return models.LedgerState{}, fmt.Errorf("legacy last_weekly_update %q: %w", old.LastWeeklyUpdate, err)
	}

	state := models.NewLedgerState(old.WeeklyAmount.Round(2), lastUpdate.UTC())
	state.Balance = old.Balance.Round(2)

	retained := decimal.Zero
	for i, entry := range old.History {
		at, err := time.ParseInLocation(legacyEntryLayout, entry.Date, loc)
		if err != nil {
			return models.LedgerState{}, fmt.Errorf("legacy history entry %d date %q: %w", i, entry.Date, err)
		}
		seq := int64(i + 1)
		delta := entry.Amount.Round(2)
		source := models.SourceUserCommand
		if strings.HasPrefix(entry.Comment, "Auto-allowance") {
			source = models.SourceScheduledAllowance
		}
		state.Transactions = append(state.Transactions, models.Transaction{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("budget_state/%d/%s/%s", seq, entry.Date, delta))).String(),
			Seq:       seq,
			Timestamp: at.UTC(),
			Delta:     delta,
			Comment:   entry.Comment,
			Source:    source,
		})
		retained = retained.Add(delta)
	}
	state.NextSeq = int64(len(state.Transactions)) + 1
	// Only the last ten entries were kept; the rest of the balance is archived.
	state.ArchivedTotal = state.Balance.Sub(retained)
	return state, nil
}
