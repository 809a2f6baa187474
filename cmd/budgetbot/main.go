// Package main is the entry point for the budget bot.
package main

import (
	"os"

	"github.com/davebekker/signal-budget-bot/cmd/budgetbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
