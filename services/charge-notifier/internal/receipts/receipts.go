// Package receipts turns charge events into receipt emails.
package receipts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rfay/uc-stripe/shared/contracts"
	pkgkafka "github.com/rfay/uc-stripe/shared/kafka"
	"github.com/rfay/uc-stripe/shared/money"
)

const (
	ReceiptQueue    = "receipt_jobs"
	ReceiptEmailJob = "receipt_email"
)

// JobPublisher puts a job on a queue.
type JobPublisher interface {
	PublishJSON(ctx context.Context, queueName string, v interface{}) error
}

// NewBridgeHandler translates charge events from kafka into receipt jobs.
// Failed charges produce no job. Undecodable messages are logged and skipped,
// a publish failure is returned so the event is redelivered.
func NewBridgeHandler(pub JobPublisher) pkgkafka.Handler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var event contracts.ChargeEvent
		if err := json.Unmarshal(value, &event); err != nil {
			log.Printf("Bridge: skipping undecodable charge event (key %s): %v", key, err)
			return nil
		}
		if event.Event != contracts.EventChargeSucceeded || !event.Success {
			return nil
		}
		if event.Email == "" {
			log.Printf("Bridge: order %s has no email, no receipt sent", event.OrderID)
			return nil
		}

		job := contracts.ReceiptJob{Type: ReceiptEmailJob, Payload: event}
		if err := pub.PublishJSON(ctx, ReceiptQueue, job); err != nil {
			return fmt.Errorf("publish receipt job for order %s: %w", event.OrderID, err)
		}
		log.Printf("Bridge: receipt job queued for order %s", event.OrderID)
		return nil
	}
}

// Email is one outgoing receipt.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers an email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// LogSender writes emails to the log instead of a mail provider.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, e Email) error {
	log.Printf("📧 to=%s subject=%q body=%q", e.To, e.Subject, e.Body)
	return nil
}

// BuildReceipt renders the receipt for a successful charge.
func BuildReceipt(job contracts.ReceiptJob) (Email, error) {
	ev := job.Payload
	if job.Type != ReceiptEmailJob {
		return Email{}, fmt.Errorf("unknown job type %q", job.Type)
	}
	if ev.Email == "" {
		return Email{}, fmt.Errorf("order %s: no recipient", ev.OrderID)
	}
	amount := money.FromMinorUnits(ev.AmountMinor, ev.Currency)
	body := fmt.Sprintf("Credit card charged: %s", money.Format(amount, ev.Currency))
	if ev.Reference != "" {
		body += fmt.Sprintf(" (reference %s)", ev.Reference)
	}
	return Email{
		To:      ev.Email,
		Subject: fmt.Sprintf("Receipt for order %s", ev.OrderID),
		Body:    body,
	}, nil
}

// RunEmailWorker drains receipt deliveries until ctx is cancelled or the
// channel closes. Rejected deliveries, and sends that fail twice, go to the
// dead-letter queue.
func RunEmailWorker(ctx context.Context, msgs <-chan amqp.Delivery, sender Sender, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Println("Email Worker: received stop signal, shutting down...")
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}
			handleDelivery(ctx, d, sender)
		}
	}
}

func handleDelivery(ctx context.Context, d amqp.Delivery, sender Sender) {
	var job contracts.ReceiptJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("Email Worker: dropping undecodable job: %v", err)
		d.Nack(false, false)
		return
	}
	email, err := BuildReceipt(job)
	if err != nil {
		log.Printf("Email Worker: dropping job: %v", err)
		d.Nack(false, false)
		return
	}
	if err := sender.Send(ctx, email); err != nil {
		log.Printf("Email Worker: send failed for order %s: %v", job.Payload.OrderID, err)
		d.Nack(false, !d.Redelivered)
		return
	}
	if err := d.Ack(false); err != nil {
		log.Printf("Email Worker: failed to acknowledge message: %v", err)
	}
	log.Printf("✅ Email Worker: receipt sent for order %s", job.Payload.OrderID)
}
