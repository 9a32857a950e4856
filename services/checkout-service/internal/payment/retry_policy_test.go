package payment

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v79"
)

func TestIsRetryAbleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"stripe 503", &stripe.Error{HTTPStatusCode: 503}, true},
		{"rate limited", &stripe.Error{HTTPStatusCode: 429, Code: stripe.ErrorCodeRateLimit}, true},
		{"card declined", &stripe.Error{HTTPStatusCode: 402, Code: stripe.ErrorCodeCardDeclined}, false},
		{"wrapped in gateway error", &GatewayError{Kind: KindProcessor, Err: &stripe.Error{HTTPStatusCode: 500}}, true},
		{"gateway timeout", &GatewayError{Kind: KindProcessor, Code: "timeout"}, true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryAbleError(tt.err))
		})
	}
}

func TestIsResourceMissing(t *testing.T) {
	missing := &GatewayError{Err: &stripe.Error{HTTPStatusCode: 404, Code: stripe.ErrorCodeResourceMissing}}
	assert.True(t, IsResourceMissing(missing))
	assert.False(t, IsResourceMissing(&stripe.Error{HTTPStatusCode: 404}))
	assert.False(t, IsResourceMissing(errors.New("x")))
}
