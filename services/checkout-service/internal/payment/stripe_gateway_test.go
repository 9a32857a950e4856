package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

// newTestGateway points a StripeGateway at an httptest server.
func newTestGateway(t *testing.T, mux *http.ServeMux) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewStripeGatewayWithBackends("sk_test_123", &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
}

func readForm(t *testing.T, r *http.Request) url.Values {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	v, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	return v
}

func TestStripeGateway_CreateCustomer(t *testing.T) {
	var got url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/customers", func(w http.ResponseWriter, r *http.Request) {
		got = readForm(t, r)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"cus_123","object":"customer"}`)
	})
	gw := newTestGateway(t, mux)

	id, err := gw.CreateCustomer(context.Background(), CustomerRequest{
		Source:      "tok_visa",
		Description: "OrderID: 42",
		Email:       "buyer@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_123", id)
	assert.Equal(t, "tok_visa", got.Get("source"))
	assert.Equal(t, "OrderID: 42", got.Get("description"))
	assert.Equal(t, "buyer@example.com", got.Get("email"))
}

func TestStripeGateway_CreateCustomerRequiresSource(t *testing.T) {
	gw := NewStripeGateway("sk_test_123")
	_, err := gw.CreateCustomer(context.Background(), CustomerRequest{})
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestStripeGateway_Charge(t *testing.T) {
	var got url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/charges", func(w http.ResponseWriter, r *http.Request) {
		got = readForm(t, r)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"ch_1","object":"charge","amount":1234,"currency":"usd","captured":false,"status":"succeeded"}`)
	})
	gw := newTestGateway(t, mux)

	res, err := gw.Charge(context.Background(), ChargeRequest{
		CustomerID:  "cus_123",
		AmountMinor: 1234,
		Currency:    "USD",
		Capture:     false,
		Metadata:    map[string]string{"order_id": "o-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ch_1", res.ChargeID)
	assert.Equal(t, PaymentSucceeded, res.Status)
	assert.False(t, res.Captured)
	assert.Equal(t, int64(1234), res.AmountMinor)
	assert.Equal(t, "USD", res.Currency)

	assert.Equal(t, "1234", got.Get("amount"))
	assert.Equal(t, "usd", got.Get("currency"))
	assert.Equal(t, "cus_123", got.Get("customer"))
	assert.Equal(t, "false", got.Get("capture"))
	assert.Equal(t, "o-1", got.Get("metadata[order_id]"))
}

func TestStripeGateway_ChargeValidation(t *testing.T) {
	gw := NewStripeGateway("sk_test_123")
	ctx := context.Background()

	_, err := gw.Charge(ctx, ChargeRequest{CustomerID: "cus_1", Currency: "USD"})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = gw.Charge(ctx, ChargeRequest{AmountMinor: 100, Currency: "USD"})
	assert.ErrorIs(t, err, ErrMissingCustomer)

	_, err = gw.Charge(ctx, ChargeRequest{CustomerID: "cus_1", AmountMinor: 100})
	assert.ErrorIs(t, err, ErrMissingCurrency)
}

func TestStripeGateway_Capture(t *testing.T) {
	var got url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/charges/ch_auth/capture", func(w http.ResponseWriter, r *http.Request) {
		got = readForm(t, r)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"ch_auth","object":"charge","amount":1000,"currency":"usd","captured":true,"status":"succeeded"}`)
	})
	gw := newTestGateway(t, mux)

	res, err := gw.Capture(context.Background(), CaptureRequest{ChargeID: "ch_auth", AmountMinor: 1000})
	require.NoError(t, err)
	assert.True(t, res.Captured)
	assert.Equal(t, "1000", got.Get("amount"))

	_, err = gw.Capture(context.Background(), CaptureRequest{})
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestStripeGateway_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind ErrorKind
		wantCode string
	}{
		{
			name:     "card declined",
			status:   http.StatusPaymentRequired,
			body:     `{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`,
			wantKind: KindDeclined,
			wantCode: "card_declined",
		},
		{
			name:     "invalid request",
			status:   http.StatusBadRequest,
			body:     `{"error":{"type":"invalid_request_error","code":"parameter_missing","message":"Missing required param: amount."}}`,
			wantKind: KindProcessor,
			wantCode: "parameter_missing",
		},
		{
			name:     "stripe outage",
			status:   http.StatusInternalServerError,
			body:     `{"error":{"type":"api_error","message":"Something went wrong."}}`,
			wantKind: KindProcessor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/v1/charges", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			gw := newTestGateway(t, mux)

			_, err := gw.Charge(context.Background(), ChargeRequest{CustomerID: "cus_1", AmountMinor: 100, Currency: "USD", Capture: true})
			require.Error(t, err)

			var ge *GatewayError
			require.True(t, errors.As(err, &ge), "got %T", err)
			assert.Equal(t, tt.wantKind, ge.Kind)
			assert.Equal(t, tt.wantCode, ge.Code)
			assert.Equal(t, tt.status, ge.HTTPStatus)
			assert.NotEmpty(t, ge.Message)
		})
	}
}

func TestStripeGateway_TimeoutIsProcessorError(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/charges", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	gw := newTestGateway(t, mux)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := gw.Charge(ctx, ChargeRequest{CustomerID: "cus_1", AmountMinor: 100, Currency: "USD", Capture: true})
	require.Error(t, err)
	var ge *GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, KindProcessor, ge.Kind)
}

func TestStripeGateway_DeleteCustomer(t *testing.T) {
	var method string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/customers/cus_gone", func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"cus_gone","object":"customer","deleted":true}`)
	})
	gw := newTestGateway(t, mux)

	require.NoError(t, gw.DeleteCustomer(context.Background(), "cus_gone"))
	assert.Equal(t, http.MethodDelete, method)
}
