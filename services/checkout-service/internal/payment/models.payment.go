// services/checkout-service/internal/payment/models.payment.go
package payment

import (
	"errors"
	"fmt"
)

// Request validation errors. These are caught before any network call.
var (
	ErrInvalidAmount     = errors.New("invalid payment amount")
	ErrMissingSource     = errors.New("card token is required to create a customer")
	ErrMissingCustomer   = errors.New("customer id is required to charge")
	ErrMissingReference  = errors.New("charge id is required to capture")
	ErrMissingCurrency   = errors.New("currency is required")
	ErrUnexpectedPayload = errors.New("unexpected response from payment processor")
)

// ErrorKind separates failures the customer caused from everything else.
type ErrorKind string

const (
	// KindDeclined covers card errors: declines, expired cards, bad CVC.
	KindDeclined ErrorKind = "declined"
	// KindProcessor covers network failures, timeouts, 5xx, auth and invalid
	// request errors.
	KindProcessor ErrorKind = "processor"
)

// GatewayError is the only error type a Gateway returns for remote failures.
// Code and Message are the processor's own, meant for admin comments.
type GatewayError struct {
	Kind        ErrorKind
	Code        string
	DeclineCode string
	Message     string
	HTTPStatus  int
	Err         error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// CustomerRequest creates a reusable remote customer from a one-time card token.
type CustomerRequest struct {
	Source      string // single-use card token from the checkout page
	Description string // "OrderID: <id>"
	Email       string
	Metadata    map[string]string
}

// ChargeRequest is a one-time charge against a stored customer's default card.
type ChargeRequest struct {
	CustomerID     string
	AmountMinor    int64
	Currency       string
	Capture        bool // false leaves the charge as an authorization
	Description    string
	Metadata       map[string]string // order_id and account_id, read back by webhooks
	IdempotencyKey string
}

// CaptureRequest captures a prior authorization. AmountMinor of zero captures
// the full authorized amount.
type CaptureRequest struct {
	ChargeID       string
	AmountMinor    int64
	IdempotencyKey string
}

// ChargeResult is what a successful charge or capture returns.
type ChargeResult struct {
	ChargeID    string
	Status      PaymentStatus
	Captured    bool
	AmountMinor int64
	Currency    string
	RawResponse string
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentSucceeded     PaymentStatus = "SUCCEEDED"
	PaymentFailed        PaymentStatus = "FAILED"
	PaymentRefunded      PaymentStatus = "REFUNDED"
	PaymentStatusUnknown PaymentStatus = "UNKNOWN"
)
