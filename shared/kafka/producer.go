package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	skafka "github.com/segmentio/kafka-go"
)

// Header names set on every event.
const (
	HeaderEventType   = "event-type"
	HeaderContentType = "content-type"
)

// Writer is the part of kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Named events carry their name in the event-type header so consumers can
// filter without decoding the body.
type Named interface {
	EventName() string
}

// EventProducer writes JSON events to one topic. Events sharing a key (the
// order id) go to the same partition and keep their order.
type EventProducer struct {
	writer Writer
	now    func() time.Time
}

func NewEventProducer(brokerURL, topic string) *EventProducer {
	return NewEventProducerWithWriter(&skafka.Writer{
		Addr:         skafka.TCP(brokerURL),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	})
}

func NewEventProducerWithWriter(w Writer) *EventProducer {
	return &EventProducer{writer: w, now: time.Now}
}

func (p *EventProducer) Publish(ctx context.Context, key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kafka: encode event %s: %w", key, err)
	}

	headers := []skafka.Header{{Key: HeaderContentType, Value: []byte("application/json")}}
	if n, ok := value.(Named); ok {
		headers = append(headers, skafka.Header{Key: HeaderEventType, Value: []byte(n.EventName())})
	}

	err = p.writer.WriteMessages(ctx, skafka.Message{
		Key:     []byte(key),
		Value:   body,
		Headers: headers,
		Time:    p.now(),
	})
	if err != nil {
		return fmt.Errorf("kafka: write event %s: %w", key, err)
	}
	return nil
}

func (p *EventProducer) Close() error {
	return p.writer.Close()
}
