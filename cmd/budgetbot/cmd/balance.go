package cmd

import (
	"errors"
	"fmt"

	"github.com/davebekker/signal-budget-bot/internal/command"
	"github.com/davebekker/signal-budget-bot/internal/scheduler"
	"github.com/davebekker/signal-budget-bot/internal/storage"
	"github.com/spf13/cobra"
)

// balanceCmd prints the stored pot without starting the bot.
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the balance, allowance and recent history from the store",
	RunE:  runBalance,
}

func runBalance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateStore(); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	state, err := store.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintln(cmd.OutOrStdout(), "No pot has been created yet.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	symbol := cfg.Ledger.CurrencySymbol
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Balance:          %s\n", command.FormatMoney(symbol, state.Balance))
	fmt.Fprintf(out, "Weekly allowance: %s\n", command.FormatMoney(symbol, state.AllowanceAmount))
	fmt.Fprintf(out, "Next allowance:   %s\n", state.LastAccrual.Add(scheduler.Period).In(loc).Format("2006-01-02 15:04"))
	fmt.Fprintln(out)
	fmt.Fprintln(out, command.FormatHistory(state.Recent(command.HistorySize), loc))
	return nil
}

