//services/checkout-service/internal/payment/stripe_gateway.go

package payment

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeGateway implements Gateway with the Charges and Customers APIs.
// It owns its client.API so two gateways with different keys never share state.
type StripeGateway struct {
	client *client.API
}

// NewStripeGateway creates a gateway for the given secret key.
func NewStripeGateway(apiKey string) *StripeGateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeGateway{client: sc}
}

// NewStripeGatewayWithBackends lets callers point the client somewhere other
// than api.stripe.com, e.g. an httptest server.
func NewStripeGatewayWithBackends(apiKey string, backends *stripe.Backends) *StripeGateway {
	sc := &client.API{}
	sc.Init(apiKey, backends)
	return &StripeGateway{client: sc}
}

// StripeGatewayFactory is the GatewayFactory used in production.
func StripeGatewayFactory(secretKey string) Gateway {
	return NewStripeGateway(secretKey)
}

func (sg *StripeGateway) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	if req.Source == "" {
		return "", ErrMissingSource
	}
	params := &stripe.CustomerParams{
		Source:      stripe.String(req.Source),
		Description: stripe.String(req.Description),
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	cus, err := sg.client.Customers.New(params)
	if err != nil {
		return "", sg.mapStripeError(err)
	}
	if cus == nil || cus.ID == "" {
		return "", &GatewayError{Kind: KindProcessor, Message: "customer created without an id", Err: ErrUnexpectedPayload}
	}
	return cus.ID, nil
}

func (sg *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.AmountMinor <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.CustomerID == "" {
		return nil, ErrMissingCustomer
	}
	if req.Currency == "" {
		return nil, ErrMissingCurrency
	}

	params := &stripe.ChargeParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		Customer: stripe.String(req.CustomerID),
		Capture:  stripe.Bool(req.Capture),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	ch, err := sg.client.Charges.New(params)
	if err != nil {
		return nil, sg.mapStripeError(err)
	}
	return chargeResult(ch)
}

func (sg *StripeGateway) Capture(ctx context.Context, req CaptureRequest) (*ChargeResult, error) {
	if req.ChargeID == "" {
		return nil, ErrMissingReference
	}
	if req.AmountMinor < 0 {
		return nil, ErrInvalidAmount
	}

	params := &stripe.ChargeCaptureParams{}
	if req.AmountMinor > 0 {
		params.Amount = stripe.Int64(req.AmountMinor)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	params.Context = ctx

	ch, err := sg.client.Charges.Capture(req.ChargeID, params)
	if err != nil {
		return nil, sg.mapStripeError(err)
	}
	return chargeResult(ch)
}

func (sg *StripeGateway) DeleteCustomer(ctx context.Context, customerID string) error {
	if customerID == "" {
		return ErrMissingCustomer
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if _, err := sg.client.Customers.Del(customerID, params); err != nil {
		return sg.mapStripeError(err)
	}
	return nil
}

func chargeResult(ch *stripe.Charge) (*ChargeResult, error) {
	if ch == nil || ch.ID == "" {
		return nil, &GatewayError{Kind: KindProcessor, Message: "charge returned without an id", Err: ErrUnexpectedPayload}
	}
	// A 200 with status=failed still means no money moved.
	if ch.Status == stripe.ChargeStatusFailed {
		return nil, &GatewayError{
			Kind:    KindDeclined,
			Code:    ch.FailureCode,
			Message: ch.FailureMessage,
			Err:     ErrUnexpectedPayload,
		}
	}

	res := &ChargeResult{
		ChargeID:    ch.ID,
		Status:      PaymentSucceeded,
		Captured:    ch.Captured,
		AmountMinor: ch.Amount,
		Currency:    strings.ToUpper(string(ch.Currency)),
	}
	if ch.Status == stripe.ChargeStatusPending {
		res.Status = PaymentStatusPending
	}
	if ch.LastResponse != nil {
		res.RawResponse = string(ch.LastResponse.RawJSON)
	}
	return res, nil
}

// mapStripeError converts stripe-go errors into *GatewayError so stripe types
// stay inside this package.
func (sg *StripeGateway) mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		ge := &GatewayError{
			Kind:        KindProcessor,
			Code:        string(stripeErr.Code),
			DeclineCode: string(stripeErr.DeclineCode),
			Message:     stripeErr.Msg,
			HTTPStatus:  stripeErr.HTTPStatusCode,
			Err:         err,
		}
		if stripeErr.Type == stripe.ErrorTypeCard || stripeErr.DeclineCode != "" {
			ge.Kind = KindDeclined
		}
		switch stripeErr.Code {
		case stripe.ErrorCodeCardDeclined,
			stripe.ErrorCodeExpiredCard,
			stripe.ErrorCodeIncorrectCVC:
			ge.Kind = KindDeclined
		}
		if ge.Message == "" {
			ge.Message = http.StatusText(stripeErr.HTTPStatusCode)
		}
		return ge
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &GatewayError{Kind: KindProcessor, Code: "timeout", Message: "payment processor did not respond in time", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &GatewayError{Kind: KindProcessor, Code: "canceled", Message: "request to payment processor was canceled", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &GatewayError{Kind: KindProcessor, Code: "timeout", Message: "payment processor did not respond in time", Err: err}
	}
	return &GatewayError{Kind: KindProcessor, Code: "api_connection_error", Message: err.Error(), Err: err}
}
