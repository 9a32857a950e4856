// services/checkout-service/internal/payment/payment.interfaces.go
package payment

import (
	"context"
)

// Gateway abstracts the remote card processor. Every call takes a context so
// the caller's timeout bounds the network round trip.
type Gateway interface {
	// CreateCustomer turns a single-use card token into a reusable customer
	// and returns its id.
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Capture(ctx context.Context, req CaptureRequest) (*ChargeResult, error)
	DeleteCustomer(ctx context.Context, customerID string) error
}

// GatewayFactory builds a Gateway for a secret key. Keys are read per charge,
// so the gateway is built per charge as well.
type GatewayFactory func(secretKey string) Gateway
