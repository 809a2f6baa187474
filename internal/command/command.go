// Package command turns chat text into typed commands and applies them to the
// ledger.
package command

import "github.com/shopspring/decimal"

// Command is one of Balance, Add, Sub, History, SetAllowance, Usage or
// Unrecognized. The set is closed: only this package can add variants.
type Command interface {
	Kind() string
	isCommand()
}

// Balance shows the current balance.
type Balance struct{}

// Add credits Amount to the pot.
type Add struct {
	Amount  decimal.Decimal
	Comment string
}

// Sub debits Amount from the pot.
type Sub struct {
	Amount  decimal.Decimal
	Comment string
}

// History lists the most recent transactions.
type History struct{}

// SetAllowance changes the per-period allowance.
type SetAllowance struct {
	Amount decimal.Decimal
}

// Usage lists the available commands.
type Usage struct{}

// Unrecognized is prefixed text that could not be parsed. Err says why.
type Unrecognized struct {
	Raw string
	Err error
}

func (Balance) Kind() string      { return "balance" }
func (Add) Kind() string          { return "add" }
func (Sub) Kind() string          { return "sub" }
func (History) Kind() string      { return "history" }
func (SetAllowance) Kind() string { return "set" }
func (Usage) Kind() string        { return "usage" }
func (Unrecognized) Kind() string { return "unrecognized" }

func (Balance) isCommand()      {}
func (Add) isCommand()          {}
func (Sub) isCommand()          {}
func (History) isCommand()      {}
func (SetAllowance) isCommand() {}
func (Usage) isCommand()        {}
func (Unrecognized) isCommand() {}
