// Package signal implements the chat transport on top of signal-cli-rest-api.
package signal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/davebekker/signal-budget-bot/internal/interfaces"
	"github.com/davebekker/signal-budget-bot/internal/models"
)

// ClientConfig represents the configuration for the Signal REST client.
type ClientConfig struct {
	APIURL     string
	Number     string        // the bot's registered account
	Timeout    time.Duration // per request, default 30 seconds
	MaxElapsed time.Duration // total retry budget per call, default 5 minutes
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to signal-cli-rest-api. Transient failures (network errors,
// 5xx, 429) are retried with exponential backoff; an error returned to the
// caller means the retry budget is exhausted or the request is invalid.
type Client struct {
	httpClient *http.Client
	baseURL    string
	number     string
	maxElapsed time.Duration
	logger     *slog.Logger
}

// NewClient creates a new Signal REST client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	maxElapsed := cfg.MaxElapsed
	if maxElapsed == 0 {
		maxElapsed = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		number:     cfg.Number,
		maxElapsed: maxElapsed,
		logger:     logger,
	}
}

// statusError is a non-2xx response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("signal api status %d: %s", e.Code, e.Body)
}

// Poll fetches and consumes pending messages for the account.
func (c *Client) Poll(ctx context.Context) ([]models.InboundMessage, error) {
	items, err := backoff.Retry(ctx, func() ([]receiveItem, error) {
		return c.receive(ctx)
	}, c.retryOptions("receive")...)
	if err != nil {
		return nil, fmt.Errorf("signal: receive: %w", err)
	}

	msgs := make([]models.InboundMessage, 0, len(items))
	for _, item := range items {
		if msg, ok := c.toMessage(item); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

// Send delivers text to a direct chat or a group.
func (c *Client) Send(ctx context.Context, to models.Conversation, text string) error {
	if to.ID == "" {
		return errors.New("signal: send: empty recipient")
	}
	recipient := to.ID
	if to.IsGroup {
		recipient = GroupRecipient(to.ID)
	}
	body, err := json.Marshal(sendRequest{
		Message:    text,
		Number:     c.number,
		Recipients: []string{recipient},
	})
	if err != nil {
		return fmt.Errorf("signal: encode send request: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.send(ctx, body)
	}, c.retryOptions("send")...)
	if err != nil {
		return fmt.Errorf("signal: send: %w", err)
	}
	return nil
}

// GroupRecipient converts a group id as received into the form /v2/send expects.
func GroupRecipient(groupID string) string {
	return "group." + base64.StdEncoding.EncodeToString([]byte(groupID))
}

func (c *Client) retryOptions(op string) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(c.maxElapsed),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("signal request failed, retrying", "op", op, "error", err, "wait", wait)
		}),
	}
}

func (c *Client) receive(ctx context.Context) ([]receiveItem, error) {
	endpoint := fmt.Sprintf("%s/v1/receive/%s", c.baseURL, url.PathEscape(c.number))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("make request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, data); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var items []receiveItem
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return items, nil
}

func (c *Client) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/send", bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("make request: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	return checkStatus(resp.StatusCode, data)
}

// checkStatus maps a response status to an error; client errors other than
// 429 are not retried.
func checkStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := &statusError{Code: code, Body: strings.TrimSpace(string(body))}
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

// toMessage extracts the text, sender and reply conversation from an
// envelope. Messages the owner sent from another device arrive as sync
// messages and are attributed to the account itself.
func (c *Client) toMessage(item receiveItem) (models.InboundMessage, bool) {
	env := item.Envelope
	msg := models.InboundMessage{ReceivedAt: time.UnixMilli(env.Timestamp).UTC()}

	switch {
	case env.DataMessage != nil && env.DataMessage.Message != "":
		msg.Text = env.DataMessage.Message
		msg.Sender = firstNonEmpty(env.SourceNumber, env.Source, env.SourceUUID)
		msg.Conversation = models.Conversation{ID: msg.Sender}
		if gi := env.DataMessage.GroupInfo; gi != nil && gi.GroupID != "" {
			msg.Conversation = models.Conversation{ID: gi.GroupID, IsGroup: true}
		}
	case env.SyncMessage != nil && env.SyncMessage.SentMessage != nil && env.SyncMessage.SentMessage.Message != "":
		sent := env.SyncMessage.SentMessage
		msg.Text = sent.Message
		msg.Sender = firstNonEmpty(item.Account, c.number)
		msg.Conversation = models.Conversation{ID: msg.Sender}
		if gi := sent.GroupInfo; gi != nil && gi.GroupID != "" {
			msg.Conversation = models.Conversation{ID: gi.GroupID, IsGroup: true}
		}
	default:
		return models.InboundMessage{}, false
	}
	return msg, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ interfaces.Transport = (*Client)(nil)
