// services/checkout-service/internal/payment/webhook/stripe/processor.stripeWebhook.go
package stripe

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/payment"
)

const (
	ProviderName    = "stripe"
	SignatureHeader = "Stripe-Signature"
)

type Processor struct {
	secret string
}

func New(secret string) *Processor {
	return &Processor{secret: secret}
}

func (p *Processor) Provider() string {
	return ProviderName
}

func (p *Processor) VerifyAndParse(payload []byte, headers map[string]string) (*payment.NormalizedEvent, error) {
	event, err := webhook.ConstructEventWithOptions(
		payload,
		headers[SignatureHeader],
		p.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, fmt.Errorf("stripe signature invalid: %w", err)
	}

	var status payment.PaymentStatus
	switch event.Type {
	case "charge.succeeded", "charge.captured":
		status = payment.PaymentSucceeded
	case "charge.failed":
		status = payment.PaymentFailed
	case "charge.refunded":
		status = payment.PaymentRefunded
	default:
		return nil, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("stripe event %s has no data", event.ID)
	}
	var ch stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
		return nil, fmt.Errorf("decode charge in event %s: %w", event.ID, err)
	}

	out := &payment.NormalizedEvent{
		EventID:           event.ID,
		Provider:          ProviderName,
		Type:              string(event.Type),
		ProviderPaymentID: ch.ID,
		Status:            status,
		AmountMinor:       ch.Amount,
		Currency:          strings.ToUpper(string(ch.Currency)),
		OrderID:           metadataUUID(ch.Metadata, "order_id"),
		AccountID:         metadataUUID(ch.Metadata, "account_id"),
	}
	if status == payment.PaymentRefunded {
		out.AmountMinor = ch.AmountRefunded
	}
	if status == payment.PaymentFailed {
		if ch.FailureCode != "" {
			c := ch.FailureCode
			out.ErrorCode = &c
		}
		if ch.FailureMessage != "" {
			m := ch.FailureMessage
			out.ErrorMessage = &m
		}
	}
	return out, nil
}

func metadataUUID(md map[string]string, key string) uuid.UUID {
	id, err := uuid.Parse(md[key])
	if err != nil {
		return uuid.Nil
	}
	return id
}
