// services/checkout-service/internal/payment/webhook.types.go
package payment

import "github.com/google/uuid"

// NormalizedEvent is a processor callback reduced to what the order trail
// needs, whatever provider sent it.
type NormalizedEvent struct {
	EventID           string        // provider event id, used for dedupe
	Provider          string        // e.g. "Stripe"
	Type              string        // provider event type, e.g. "charge.refunded"
	ProviderPaymentID string        // e.g. "ch_3M..."
	OrderID           uuid.UUID     // from charge metadata; uuid.Nil when absent
	AccountID         uuid.UUID     // from charge metadata; uuid.Nil when absent
	Status            PaymentStatus // SUCCEEDED, FAILED, REFUNDED
	AmountMinor       int64
	Currency          string
	ErrorCode         *string // e.g. "card_declined"
	ErrorMessage      *string // e.g. "Your card has insufficient funds."
}
