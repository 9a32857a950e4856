// shared/contracts/charge_event.go
package contracts

import "time"

// Charge event names carried on the charge events topic.
const (
	EventChargeSucceeded = "charge.succeeded"
	EventChargeFailed    = "charge.failed"
)

// ChargeEvent is the message the checkout service publishes after every charge
// attempt. The charge notifier consumes it to queue receipts.
type ChargeEvent struct {
	Event       string    `json:"event"`
	OrderID     string    `json:"order_id"`
	AccountID   string    `json:"account_id"`
	Email       string    `json:"email"`
	Success     bool      `json:"success"`
	Reason      string    `json:"reason"`
	AmountMinor int64     `json:"amount_minor"` // amount in the currency's minor unit (cents)
	Currency    string    `json:"currency"`
	Reference   string    `json:"reference,omitempty"` // stripe charge id on success
	OccurredAt  time.Time `json:"occurred_at"`
}

func (e ChargeEvent) EventName() string { return e.Event }

// ReceiptJob is the unit of work placed on the receipt queue.
type ReceiptJob struct {
	Type    string      `json:"type"`
	Payload ChargeEvent `json:"payload"`
}
