package command

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/davebekker/signal-budget-bot/internal/ledger"
	"github.com/shopspring/decimal"
)

// Prefix marks a chat message as a command.
const Prefix = "/"

// amountPlaces is the finest precision accepted for amounts.
const amountPlaces = 2

// amountPattern is a plain decimal with at most nine integer digits. It is
// checked before any decimal arithmetic, so exponent notation never reaches
// Round.
var amountPattern = regexp.MustCompile(`^-?[0-9]{1,9}(\.[0-9]+)?$`)

var (
	ErrNotCommand     = errors.New("command: text does not start with " + Prefix)
	ErrUnknownCommand = errors.New("command: unknown command")
	ErrMissingAmount  = errors.New("command: missing amount")
	ErrInvalidAmount  = errors.New("command: invalid amount")
	ErrTooPrecise     = fmt.Errorf("command: amount has more than %d decimal places", amountPlaces)
)

// IsCommand reports whether text should be handed to Parse at all.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), Prefix)
}

// Parse maps raw chat text to a Command. It never fails: anything it cannot
// understand becomes Unrecognized with the original text and the reason.
func Parse(raw string) Command {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, Prefix) {
		return Unrecognized{Raw: raw, Err: ErrNotCommand}
	}
	fields := strings.Fields(strings.TrimPrefix(text, Prefix))
	if len(fields) == 0 {
		return Unrecognized{Raw: raw, Err: ErrUnknownCommand}
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "balance":
		return Balance{}
	case "history":
		return History{}
	case "usage":
		return Usage{}
	case "add", "sub":
		amount, err := parseAmount(args)
		if err != nil {
			return Unrecognized{Raw: raw, Err: err}
		}
		comment := strings.Join(args[1:], " ")
		if name == "add" {
			return Add{Amount: amount, Comment: comment}
		}
		return Sub{Amount: amount, Comment: comment}
	case "set":
		amount, err := parseAmount(args)
		if err != nil {
			return Unrecognized{Raw: raw, Err: err}
		}
		return SetAllowance{Amount: amount}
	default:
		return Unrecognized{Raw: raw, Err: ErrUnknownCommand}
	}
}

// parseAmount reads args[0] as a non-negative plain decimal with at most two
// decimal places. Negative amounts are a *ledger.ValidationError so the reply
// can state the constraint.
func parseAmount(args []string) (decimal.Decimal, error) {
	if len(args) == 0 {
		return decimal.Zero, ErrMissingAmount
	}
	if !amountPattern.MatchString(args[0]) {
		return decimal.Zero, fmt.Errorf("%w %q", ErrInvalidAmount, args[0])
	}
	amount, err := decimal.NewFromString(args[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w %q", ErrInvalidAmount, args[0])
	}
	if amount.IsNegative() {
		return decimal.Zero, &ledger.ValidationError{Field: "amount", Message: "must not be negative"}
	}
	if !amount.Equal(amount.Round(amountPlaces)) {
		return decimal.Zero, ErrTooPrecise
	}
	return amount, nil
}
