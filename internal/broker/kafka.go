package broker

import (
	"context"
	"encoding/json"
	"time"

	"frostflow/internal/models"
	"frostflow/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Consumer reads row-change events from the change topic. The backend's
// trigger/CDC pipeline is the producer; this service only consumes.
type Consumer struct {
	reader *kafka.Reader
	logger *zap.Logger
}

// NewConsumer creates a consumer-group reader for the change topic.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &Consumer{reader: reader, logger: util.GetLogger()}
}

// EventHandler processes one decoded change event. Returning an error leaves
// the message uncommitted so it is redelivered; handlers must therefore be
// idempotent.
type EventHandler func(ctx context.Context, event models.ChangeEvent) error

// StartConsuming fetches, decodes, and dispatches change events until the
// context is canceled. Malformed messages are committed and dropped, they
// would never decode on redelivery either.
func (c *Consumer) StartConsuming(ctx context.Context, handler EventHandler) error {
	c.logger.Info("Starting change consumer", zap.String("topic", c.reader.Config().Topic))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Change consumer context cancelled, stopping")
			return ctx.Err()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("Error fetching change event", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			var event models.ChangeEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				c.logger.Error("Dropping malformed change event",
					zap.Int64("offset", msg.Offset),
					zap.Error(err))
				_ = c.reader.CommitMessages(ctx, msg)
				continue
			}

			if err := handler(ctx, event); err != nil {
				c.logger.Error("Error handling change event",
					zap.String("event_id", event.EventID),
					zap.Error(err))
				continue
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Error("Error committing change event", zap.Error(err))
			}
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
