// Package cmd provides CLI commands for the budget bot.
package cmd

import (
	"log/slog"
	"os"

	"github.com/davebekker/signal-budget-bot/internal/config"
	"github.com/spf13/cobra"
)

var (
	envFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "budgetbot",
	Short: "Shared pocket-money pot driven by Signal chat commands",
	Long: `budgetbot keeps a shared money pot whose balance changes only through
chat commands sent over Signal, and credits a weekly allowance automatically.

Example:
  budgetbot run
  budgetbot balance --env prod.env`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if debug || os.Getenv("DEBUG") == "true" {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(balanceCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(envFile)
}
