//services/checkout-service/internal/payment/retry_policy.go

package payment

import (
	"errors"
	"net"
	"syscall"

	"github.com/stripe/stripe-go/v79"
)

// IsRetryAbleError reports whether a failed call is worth repeating later.
// Charges are never retried; background jobs like orphan cleanup are.
func IsRetryAbleError(err error) bool {
	if err == nil {
		return false
	}
	return isRetryAbleStripeError(err) || isRetryAbleNetworkError(err) || isRetryAbleSystemError(err)
}

// IsResourceMissing reports whether Stripe answered that the object does not
// exist, e.g. a customer that was already deleted.
func IsResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Code == stripe.ErrorCodeResourceMissing
}

func isRetryAbleStripeError(err error) bool {
	var stripeError *stripe.Error
	if !errors.As(err, &stripeError) {
		return false
	}
	// 5xx means Stripe is having trouble; 4xx is on us.
	if stripeError.HTTPStatusCode >= 500 && stripeError.HTTPStatusCode < 600 {
		return true
	}
	switch stripeError.Code {
	case stripe.ErrorCodeRateLimit,
		stripe.ErrorCodeLockTimeout:
		return true
	}
	return false
}

func isRetryAbleNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var ge *GatewayError
	if errors.As(err, &ge) && ge.Code == "timeout" {
		return true
	}
	return false
}

func isRetryAbleSystemError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
