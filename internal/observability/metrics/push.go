package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus/push"
)

// Pusher sends the registry to a Prometheus Pushgateway. The bot never
// listens on a port, so metrics are pushed rather than scraped.
type Pusher struct {
	pusher   *push.Pusher
	interval time.Duration
	logger   *slog.Logger
}

// NewPusher returns a Pusher for url. Init must have been called.
func NewPusher(url, job string, interval time.Duration, logger *slog.Logger) *Pusher {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pusher{
		pusher:   push.New(url, job).Gatherer(Init()),
		interval: interval,
		logger:   logger,
	}
}

// Run pushes on every interval until ctx is done, then pushes a final time.
func (p *Pusher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			p.pushOnce(final)
			cancel()
			return
		case <-ticker.C:
			p.pushOnce(ctx)
		}
	}
}

func (p *Pusher) pushOnce(ctx context.Context) {
	if err := p.pusher.PushContext(ctx); err != nil {
		p.logger.Warn("push metrics", "error", err)
	}
}
