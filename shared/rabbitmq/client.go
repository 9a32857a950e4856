package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the client uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

// DeadLetterSuffix names the queue that collects messages a consumer rejected
// without requeue.
const DeadLetterSuffix = ".dead"

type RabbitmqClient struct {
	conn *amqp.Connection // nil when built around a test channel
	chn  Channel
}

// NewClient dials the broker and opens one channel on the connection.
func NewClient(url string) (*RabbitmqClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	chn, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	return &RabbitmqClient{
		conn: conn,
		chn:  chn,
	}, nil
}

// NewClientWithChannel wraps an already open channel.
func NewClientWithChannel(chn Channel) *RabbitmqClient {
	return &RabbitmqClient{chn: chn}
}

// Close cleans up the channel and then the connection.
func (r *RabbitmqClient) Close() error {
	if err := r.chn.Close(); err != nil {
		return err
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// CreateQueue declares a durable queue together with its dead-letter queue.
func (r *RabbitmqClient) CreateQueue(queueName string) error {
	dead := queueName + DeadLetterSuffix
	if _, err := r.chn.QueueDeclare(dead, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare queue %s: %w", dead, err)
	}
	_, err := r.chn.QueueDeclare(
		queueName, //name of queue
		true,      //durable
		false,     //delete when unused
		false,     //exclusive
		false,     //no-wait
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dead,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: declare queue %s: %w", queueName, err)
	}
	return nil
}

// SetPrefetch caps unacknowledged deliveries per consumer on this channel.
func (r *RabbitmqClient) SetPrefetch(count int) error {
	if err := r.chn.Qos(count, 0, false); err != nil {
		return fmt.Errorf("rabbitmq: set prefetch: %w", err)
	}
	return nil
}

// Publish sends a persistent JSON message to a specific queue.
func (r *RabbitmqClient) Publish(ctx context.Context, queueName string, body []byte) error {
	return r.chn.PublishWithContext(
		ctx,
		"",        //exchange
		queueName, //routing key (queue name)
		false,     //mandatory
		false,     //immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// PublishJSON marshals v and publishes it to queueName.
func (r *RabbitmqClient) PublishJSON(ctx context.Context, queueName string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal message: %w", err)
	}
	return r.Publish(ctx, queueName, body)
}

// Consume starts listening on a queue with manual acks and returns the delivery channel.
func (r *RabbitmqClient) Consume(queueName string) (<-chan amqp.Delivery, error) {
	msgs, err := r.chn.Consume(
		queueName, //queue
		"",        //consumer
		false,     //auto-ack
		false,     //exclusive
		false,     //no-local
		false,     //no-wait
		nil,       //args
	)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: consume %s: %w", queueName, err)
	}
	return msgs, nil
}
