// Package dispatcher polls the chat transport and routes permitted commands
// to the executor.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/davebekker/signal-budget-bot/internal/command"
	"github.com/davebekker/signal-budget-bot/internal/interfaces"
	"github.com/davebekker/signal-budget-bot/internal/models"
	"github.com/davebekker/signal-budget-bot/internal/observability/metrics"
)

const (
	// DefaultPollInterval is the pause between two polls.
	DefaultPollInterval = 2 * time.Second

	// replyGrace bounds a reply that is still being sent when shutdown starts.
	replyGrace = 15 * time.Second
)

// TransportError reports a terminal transport failure. It ends Run.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dispatcher: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Executor runs a parsed command and returns the reply.
type Executor interface {
	Execute(ctx context.Context, cmd command.Command, sender string) string
}

// Config configures a Dispatcher.
type Config struct {
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Dispatcher handles inbound messages strictly one at a time, in the order
// the transport returned them.
type Dispatcher struct {
	transport interfaces.Transport
	executor  Executor
	allow     AllowList
	interval  time.Duration
	logger    *slog.Logger
}

// New constructs a Dispatcher.
func New(transport interfaces.Transport, executor Executor, allow AllowList, cfg Config) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		transport: transport,
		executor:  executor,
		allow:     allow,
		interval:  cfg.PollInterval,
		logger:    cfg.Logger,
	}
}

// Run polls until ctx is done, returning nil, or until the transport reports
// a terminal failure, returning a *TransportError.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := d.transport.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &TransportError{Op: "poll", Err: err}
		}

		for i, msg := range msgs {
			if ctx.Err() != nil {
				d.logger.Warn("shutdown started, leaving messages unprocessed", "count", len(msgs)-i)
				return nil
			}
			if err := d.Handle(ctx, msg); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.interval):
		}
	}
}

// Handle processes one message: non-commands and messages from senders not
// on the allow-list are dropped without a reply.
func (d *Dispatcher) Handle(ctx context.Context, msg models.InboundMessage) error {
	if !command.IsCommand(msg.Text) {
		metrics.IncDropped("not_command")
		return nil
	}
	if !d.allow.Permits(msg) {
		metrics.IncDropped("sender")
		d.logger.Debug("ignoring message from unknown sender", "sender", msg.Sender)
		return nil
	}

	cmd := command.Parse(msg.Text)
	reply := d.executor.Execute(ctx, cmd, msg.Sender)
	d.logger.Debug("command handled", "command", cmd.Kind(), "sender", msg.Sender)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyGrace)
	defer cancel()
	if err := d.transport.Send(sendCtx, msg.Conversation, reply); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Announce sends text to a conversation outside of any command, e.g. the
// startup notice.
func (d *Dispatcher) Announce(ctx context.Context, to models.Conversation, text string) error {
	if err := d.transport.Send(ctx, to, text); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}
