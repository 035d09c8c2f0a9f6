package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"relaychat/internal/config"
	"relaychat/internal/events"
)

// NotificationQueue publishes queued notifications to the notifications
// topic, keyed by recipient so one recipient's notifications stay ordered.
type NotificationQueue struct {
	producer MessageProducer
	topic    string
}

// NewNotificationQueue creates a NotificationQueue on top of a producer.
func NewNotificationQueue(producer MessageProducer, cfg config.KafkaConfig) *NotificationQueue {
	return &NotificationQueue{producer: producer, topic: cfg.NotificationsTopic}
}

// Enqueue publishes one notification.
func (q *NotificationQueue) Enqueue(ctx context.Context, n events.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	key := []byte(strconv.FormatUint(uint64(n.RecipientID), 10))
	return q.producer.SendMessage(ctx, q.topic, key, payload)
}

// NotificationHandler decodes consumed notification messages and hands them
// to deliver. Undecodable messages are dropped with a committed offset.
func NotificationHandler(deliver func(ctx context.Context, n events.Notification)) MessageHandler {
	return func(ctx context.Context, msg *confluentKafka.Message) error {
		var n events.Notification
		if err := json.Unmarshal(msg.Value, &n); err != nil {
			// Bad payload; commit and move on.
			return nil
		}
		deliver(ctx, n)
		return nil
	}
}
