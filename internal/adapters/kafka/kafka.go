package kafka

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"geofeed/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer exports committed feed events to a Kafka topic for downstream
// consumers (analytics, digests). It satisfies realtime.EventExporter.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{}, // keep one author's events on one partition
		// The realtime path must not stall on the broker.
		Async:        true,
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Error("Kafka delivery failed", "messages", len(messages), "error", err)
			}
		},
	}
	return &Producer{writer: writer}
}

type messageCreatedEvent struct {
	Event     string  `json:"event"`
	MessageID string  `json:"messageId"`
	UserID    string  `json:"userId"`
	Username  string  `json:"username"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	SentAt    int64   `json:"sentAt"`
}

func (p *Producer) MessageCreated(ctx context.Context, message *models.Message) error {
	payload, err := json.Marshal(messageCreatedEvent{
		Event:     "message.created",
		MessageID: message.ID,
		UserID:    message.UserID,
		Username:  message.Username,
		Latitude:  message.Latitude,
		Longitude: message.Longitude,
		SentAt:    message.SentAt.UnixMilli(),
	})
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(message.UserID),
		Value: payload,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
