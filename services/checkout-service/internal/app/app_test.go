package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/app"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/charge"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/config"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/ledger"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/payment"
	sharedconfig "github.com/rfay/uc-stripe/shared/config"
)

// FakeGateway accepts every card.
type FakeGateway struct {
	mu        sync.Mutex
	customers int
	charges   int
}

func (g *FakeGateway) CreateCustomer(ctx context.Context, req payment.CustomerRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customers++
	return fmt.Sprintf("cus_%d", g.customers), nil
}

func (g *FakeGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges++
	return &payment.ChargeResult{
		ChargeID:    fmt.Sprintf("ch_%d", g.charges),
		Status:      payment.PaymentSucceeded,
		Captured:    req.Capture,
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
	}, nil
}

func (g *FakeGateway) Capture(ctx context.Context, req payment.CaptureRequest) (*payment.ChargeResult, error) {
	return &payment.ChargeResult{ChargeID: req.ChargeID, Status: payment.PaymentSucceeded, Captured: true}, nil
}

func (g *FakeGateway) DeleteCustomer(ctx context.Context, customerID string) error {
	return nil
}

func startApp(t *testing.T, gw *FakeGateway) *app.App {
	t.Helper()
	cfg := &config.CheckoutConfig{
		CommonConfig: &sharedconfig.CommonConfig{},
		Gateway: config.GatewayConfig{
			TestMode:           true,
			TestSecretKey:      "sk_test_app",
			TestPublishableKey: "pk_test_app",
		},
		HTTPAddr:          "127.0.0.1:0",
		StoreBackend:      "mem",
		ChargeTimeout:     5 * time.Second,
		TokenTTL:          time.Minute,
		ReconcileInterval: time.Hour,
	}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	a := app.NewApp(logger, cfg, app.WithGatewayFactory(func(string) payment.Gateway { return gw }))
	require.NoError(t, a.Start())
	t.Cleanup(a.Shutdown)
	return a
}

func send(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestApp_CheckoutFlow(t *testing.T) {
	gw := &FakeGateway{}
	a := startApp(t, gw)
	base := "http://" + a.Addr

	resp := send(t, http.MethodGet, base+"/-/live", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = send(t, http.MethodGet, base+"/-/ready", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	orderID := uuid.New()
	owner := uuid.New()
	resp = send(t, http.MethodPut, base+"/orders/"+orderID.String(),
		fmt.Sprintf(`{"owner_id":%q,"email":"buyer@example.com","total":"12.34","currency":"USD"}`, owner), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = send(t, http.MethodPut, base+"/checkout/sessions/s1/token", `{"token":"tok_visa"}`, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	chargePath := base + "/orders/" + orderID.String() + "/charges"
	headers := map[string]string{"X-Account-ID": owner.String(), "X-Checkout-Session": "s1"}

	resp = send(t, http.MethodPost, chargePath, "", headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out charge.Outcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Success)
	require.Equal(t, int64(1234), out.AmountMinor)
	require.Equal(t, "ch_1", out.Reference)

	// The token is spent but the customer mapping is reused.
	resp = send(t, http.MethodPost, chargePath, `{"amount":"1.00"}`, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, gw.customers)
	require.Equal(t, 2, gw.charges)

	resp = send(t, http.MethodGet, base+"/orders/"+orderID.String()+"/comments", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var comments []ledger.Comment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&comments))
	require.Len(t, comments, 2)
	require.Equal(t, "Credit card charged: $12.34", comments[0].Text)
	require.Equal(t, "Credit card charged: $1.00", comments[1].Text)
}

func TestApp_UnsupportedBackend(t *testing.T) {
	cfg := &config.CheckoutConfig{StoreBackend: "sqlite", HTTPAddr: "127.0.0.1:0"}
	a := app.NewApp(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), cfg)
	require.Error(t, a.Start())
}

func TestApp_PostgresNeedsDatabaseSettings(t *testing.T) {
	cfg := &config.CheckoutConfig{
		CommonConfig: &sharedconfig.CommonConfig{},
		StoreBackend: "pg",
		HTTPAddr:     "127.0.0.1:0",
	}
	a := app.NewApp(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), cfg)
	require.Error(t, a.Start())
}
