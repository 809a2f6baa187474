package kafka

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/davebekker/signal-budget-bot/internal/models/events"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// TestPublishRoundTrip needs a broker that auto-creates topics, e.g.
// BUDGETBOT_TEST_KAFKA_BROKERS=localhost:9092
func TestPublishRoundTrip(t *testing.T) {
	brokers := os.Getenv("BUDGETBOT_TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("BUDGETBOT_TEST_KAFKA_BROKERS not set")
	}
	addrs := strings.Split(brokers, ",")
	topic := "budget.transactions.test-" + uuid.NewString()[:8]

	conn, err := kafka.Dial("tcp", addrs[0])
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	err = conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	conn.Close()
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}

	pub := NewPublisher(addrs)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	want := events.TransactionApplied{
		TransactionID: uuid.NewString(),
		Seq:           7,
		Delta:         decimal.RequireFromString("-5.50"),
		Balance:       decimal.RequireFromString("14.50"),
		Comment:       "bus",
		Source:        "user-command",
		OccurredAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := pub.Publish(ctx, topic, want.TransactionID, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{Brokers: addrs, Topic: topic, Partition: 0})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(msg.Key) != want.TransactionID {
		t.Fatalf("key = %q, want %q", msg.Key, want.TransactionID)
	}
	var got events.TransactionApplied
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TransactionID != want.TransactionID || !got.Balance.Equal(want.Balance) || !got.Delta.Equal(want.Delta) {
		t.Fatalf("event = %+v, want %+v", got, want)
	}
}
