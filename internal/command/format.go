package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/shopspring/decimal"
)

const timestampLayout = "2006-01-02 15:04"

// UsageText lists every command and its syntax.
const UsageText = `Budget bot commands:
/balance - show the current balance
/add <amount> [comment] - add money, e.g. /add 10.50 birthday
/sub <amount> [comment] - take money out, e.g. /sub 5 coffee
/history - show the last 10 transactions
/set <amount> - change the weekly allowance
/usage - show this message`

// FormatMoney renders an amount with two decimals, e.g. "£14.50" or "-£3.00".
func FormatMoney(symbol string, amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "-" + symbol + amount.Neg().StringFixed(2)
	}
	return symbol + amount.StringFixed(2)
}

// formatDelta renders a signed delta, e.g. "+20.00" or "-5.50".
func formatDelta(delta decimal.Decimal) string {
	if delta.IsNegative() {
		return delta.StringFixed(2)
	}
	return "+" + delta.StringFixed(2)
}

// FormatHistory renders transactions as "[timestamp] delta comment" lines in
// the order given.
func FormatHistory(txs []models.Transaction, loc *time.Location) string {
	if len(txs) == 0 {
		return "No transactions yet."
	}
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	b.WriteString("Recent history:")
	for _, tx := range txs {
		fmt.Fprintf(&b, "\n[%s] %s", tx.Timestamp.In(loc).Format(timestampLayout), formatDelta(tx.Delta))
		if tx.Comment != "" {
			b.WriteString(" ")
			b.WriteString(tx.Comment)
		}
	}
	return b.String()
}

// StartupNotice is sent when the bot comes online.
func StartupNotice(symbol string, balance, allowance decimal.Decimal) string {
	return fmt.Sprintf("Budget bot is online.\nBalance: %s\nWeekly allowance: %s",
		FormatMoney(symbol, balance), FormatMoney(symbol, allowance))
}
