package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the subset of kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer holds the connection to the Kafka server.
type Consumer struct {
	reader  Reader
	topic   string
	groupID string
	// HandlerTimeout bounds a single handler invocation.
	HandlerTimeout time.Duration
	// RetryBackoff is how long to wait after a fetch error.
	RetryBackoff time.Duration
}

// Handler processes one message. Returning an error leaves the offset
// uncommitted so the message is redelivered.
type Handler func(ctx context.Context, key []byte, value []byte) error

// NewConsumer creates a group consumer. Every replica sharing groupID splits
// the partitions instead of all of them processing the same message.
func NewConsumer(brokers []string, topic string, groupID string) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumerWithReader(r, topic, groupID)
}

// NewConsumerWithReader allows injecting a test reader.
func NewConsumerWithReader(r Reader, topic, groupID string) *Consumer {
	return &Consumer{
		reader:         r,
		topic:          topic,
		groupID:        groupID,
		HandlerTimeout: 10 * time.Second,
		RetryBackoff:   time.Second,
	}
}

// Start runs the fetch/handle/commit loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handler Handler) {
	log.Printf("Kafka consumer started. Topic: %s, Group: %s", c.topic, c.groupID)

	for {
		if ctx.Err() != nil {
			return
		}

		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error fetching message: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.RetryBackoff):
			}
			continue
		}

		processCtx, cancel := context.WithTimeout(ctx, c.HandlerTimeout)
		err = handler(processCtx, m.Key, m.Value)
		cancel()

		if err != nil {
			// not committed: kafka redelivers it
			log.Printf("Processing failed (Offset %d): %v", m.Offset, err)
			continue
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Printf("Failed to commit offset %d: %v", m.Offset, err)
		}
	}
}

// Close disconnects from the server.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
