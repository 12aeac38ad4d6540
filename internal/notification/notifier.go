// Package notification publishes user-facing messages to per-user channels.
// Every publisher is best-effort; callers log and swallow their errors.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ekyc/internal/platform/kafka/producer"
	"ekyc/pkg/domain"
)

// Channel returns the channel name messages for userID are published on.
func Channel(userID domain.UserID) string {
	return "user_" + userID.String()
}

// Envelope is the wire form of a notification.
type Envelope struct {
	Type    string    `json:"type"`
	Channel string    `json:"channel"`
	UserID  string    `json:"user_id"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

func newEnvelope(userID domain.UserID, message string, now time.Time) Envelope {
	return Envelope{
		Type:    "notification",
		Channel: Channel(userID),
		UserID:  userID.String(),
		Message: message,
		SentAt:  now.UTC(),
	}
}

// LogNotifier writes notifications to the structured log. Used when no
// broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, userID domain.UserID, message string) error {
	n.logger.InfoContext(ctx, "notification",
		"channel", Channel(userID),
		"message", message,
	)
	return nil
}

// Producer is the subset of the Kafka producer the notifier needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaNotifier publishes envelopes to a topic keyed by channel, so every
// message for one user lands on the same partition in order.
type KafkaNotifier struct {
	producer Producer
	topic    string
	timeout  time.Duration
	now      func() time.Time
}

func NewKafkaNotifier(p Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: p, topic: topic, timeout: 5 * time.Second, now: time.Now}
}

func (n *KafkaNotifier) Notify(ctx context.Context, userID domain.UserID, message string) error {
	env := newEnvelope(userID, message, n.now())
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	return n.producer.Produce(ctx, &producer.Message{
		Topic:   n.topic,
		Key:     []byte(env.Channel),
		Value:   payload,
		Headers: map[string]string{"channel": env.Channel},
	})
}

// RedisNotifier publishes envelopes with PUBLISH on the user's channel.
type RedisNotifier struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisNotifier(client redis.UniversalClient) *RedisNotifier {
	return &RedisNotifier{client: client, now: time.Now}
}

func (n *RedisNotifier) Notify(ctx context.Context, userID domain.UserID, message string) error {
	env := newEnvelope(userID, message, n.now())
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.client.Publish(ctx, env.Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
