package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/davebekker/signal-budget-bot/internal/command"
	"github.com/davebekker/signal-budget-bot/internal/config"
	"github.com/davebekker/signal-budget-bot/internal/dispatcher"
	"github.com/davebekker/signal-budget-bot/internal/events/kafka"
	"github.com/davebekker/signal-budget-bot/internal/ledger"
	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/davebekker/signal-budget-bot/internal/observability/metrics"
	"github.com/davebekker/signal-budget-bot/internal/scheduler"
	signalapi "github.com/davebekker/signal-budget-bot/internal/transport/signal"
	"github.com/spf13/cobra"
)

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll Signal for commands and credit the weekly allowance",
	Long: `Run the bot until interrupted.

This command:
1. Loads the pot from the configured store (or creates it)
2. Announces itself in the primary conversation
3. Polls Signal and answers commands from permitted senders
4. Credits the weekly allowance, catching up any missed weeks

The process exits non-zero when the Signal API stays unreachable, so a
supervisor can restart it.`,
	RunE: runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	allowance, err := cfg.Allowance()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	opts := []ledger.Option{
		ledger.WithRetention(cfg.Ledger.HistoryLimit),
		ledger.WithLogger(logger),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := kafka.NewPublisher(cfg.Kafka.Brokers)
		defer publisher.Close()
		opts = append(opts, ledger.WithPublisher(publisher, cfg.Kafka.Topic))
		logger.Info("publishing transaction events", "topic", cfg.Kafka.Topic)
	}

	book, err := ledger.NewLedger(ctx, store, allowance, opts...)
	if err != nil {
		return err
	}

	executor := command.NewExecutor(book, command.ExecutorConfig{
		CurrencySymbol: cfg.Ledger.CurrencySymbol,
		Location:       loc,
		Logger:         logger,
	})
	transport := signalapi.NewClient(signalapi.ClientConfig{
		APIURL: cfg.Signal.APIURL,
		Number: cfg.Signal.Number,
		Logger: logger,
	})
	allow := dispatcher.NewAllowList(cfg.Signal.Primary, cfg.Signal.GroupMembers, cfg.Signal.GroupID)
	disp := dispatcher.New(transport, executor, allow, dispatcher.Config{
		PollInterval: cfg.Signal.PollInterval,
		Logger:       logger,
	})
	sched := scheduler.NewAllowanceScheduler(book, scheduler.Config{
		CheckInterval: cfg.Ledger.AccrualCheckInterval,
		Logger:        logger,
	})

	if cfg.StartupNotice {
		snap := book.Snapshot()
		notice := command.StartupNotice(cfg.Ledger.CurrencySymbol, snap.Balance, snap.AllowanceAmount)
		if err := disp.Announce(ctx, noticeConversation(cfg), notice); err != nil {
			logger.Warn("startup notice not sent", "error", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(runCtx)
	}()
	if cfg.Metrics.PushURL != "" {
		pusher := metrics.NewPusher(cfg.Metrics.PushURL, cfg.Metrics.Job, cfg.Metrics.PushInterval, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pusher.Run(runCtx)
		}()
	}

	logger.Info("budget bot running", "number", cfg.Signal.Number, "store", cfg.Store.Driver)
	runErr := disp.Run(runCtx)

	cancel()
	wg.Wait()
	book.Close()

	if runErr != nil {
		logger.Error("dispatcher stopped", "error", runErr)
		return runErr
	}
	logger.Info("budget bot stopped")
	return nil
}

// noticeConversation is the group when one is configured, otherwise a direct
// chat with the primary identity.
func noticeConversation(cfg *config.Config) models.Conversation {
	if cfg.Signal.GroupID != "" {
		return models.Conversation{ID: cfg.Signal.GroupID, IsGroup: true}
	}
	return models.Conversation{ID: cfg.Signal.Primary}
}
