package interfaces

import (
	"context"

	"github.com/davebekker/signal-budget-bot/internal/models"
)

// Transport is the chat backend. Implementations retry transient failures
// themselves; an error returned from Poll or Send is terminal.
type Transport interface {
	Poll(ctx context.Context) ([]models.InboundMessage, error)
	Send(ctx context.Context, to models.Conversation, text string) error
}
