package worker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"golang.org/x/exp/slog"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/config"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/customer"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/payment"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/token"
)

type MockGateway struct {
	payment.Gateway // only DeleteCustomer is used

	mu       sync.Mutex
	deleted  []string
	errs     map[string]error
	attempts map[string]int
}

func (m *MockGateway) DeleteCustomer(ctx context.Context, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempts == nil {
		m.attempts = make(map[string]int)
	}
	m.attempts[customerID]++
	if err, ok := m.errs[customerID]; ok {
		return err
	}
	m.deleted = append(m.deleted, customerID)
	return nil
}

func newReconciler(orphans customer.OrphanStore, tokens token.Store, gw *MockGateway, cfg config.GatewayConfig) *Reconciler {
	return NewReconciler(
		orphans,
		tokens,
		config.StaticProvider{Config: cfg},
		func(string) payment.Gateway { return gw },
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		time.Minute,
	)
}

var keys = config.GatewayConfig{TestMode: true, TestSecretKey: "sk_test_1"}

func TestReconciler_DeletesOrphans(t *testing.T) {
	ctx := context.Background()
	orphans := customer.NewMemoryOrphanStore()
	for _, id := range []string{"cus_1", "cus_2", "cus_gone", "cus_down"} {
		require.NoError(t, orphans.RecordOrphan(ctx, customer.Orphan{CustomerID: id, OrderID: uuid.New()}))
	}
	gw := &MockGateway{errs: map[string]error{
		"cus_gone": &payment.GatewayError{Kind: payment.KindProcessor, Err: &stripe.Error{HTTPStatusCode: 404, Code: stripe.ErrorCodeResourceMissing}},
		"cus_down": &payment.GatewayError{Kind: payment.KindProcessor, Err: &stripe.Error{HTTPStatusCode: 503}},
	}}

	newReconciler(orphans, token.NewMemoryStore(time.Minute), gw, keys).RunOnce(ctx)

	assert.ElementsMatch(t, []string{"cus_1", "cus_2"}, gw.deleted)

	left, err := orphans.ListOrphans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "cus_down", left[0].CustomerID)
	assert.Empty(t, orphans.Parked())
}

func TestReconciler_ParksRefusedDeletions(t *testing.T) {
	ctx := context.Background()
	orphans := customer.NewMemoryOrphanStore()
	gw := &MockGateway{errs: map[string]error{}}

	// A full batch and then some that Stripe will never delete, all older
	// than the one orphan that can be cleaned up.
	start := time.Now().Add(-time.Hour)
	for i := 0; i < 60; i++ {
		id := fmt.Sprintf("cus_locked_%02d", i)
		gw.errs[id] = &payment.GatewayError{Kind: payment.KindProcessor, Err: &stripe.Error{HTTPStatusCode: 400, Code: stripe.ErrorCodeParameterInvalidEmpty, Msg: "customer is locked"}}
		require.NoError(t, orphans.RecordOrphan(ctx, customer.Orphan{CustomerID: id, CreatedAt: start.Add(time.Duration(i) * time.Second)}))
	}
	require.NoError(t, orphans.RecordOrphan(ctx, customer.Orphan{CustomerID: "cus_ok", CreatedAt: time.Now()}))
	r := newReconciler(orphans, token.NewMemoryStore(time.Minute), gw, keys)

	r.RunOnce(ctx)
	r.RunOnce(ctx)
	r.RunOnce(ctx)

	assert.Equal(t, []string{"cus_ok"}, gw.deleted)
	left, err := orphans.ListOrphans(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, left)

	parked := orphans.Parked()
	require.Len(t, parked, 60)
	assert.Contains(t, parked[0].LastError, "customer is locked")
	for id, n := range gw.attempts {
		assert.Equal(t, 1, n, "%s was attempted more than once", id)
	}
}

func TestReconciler_KeepsRetryableFailuresQueued(t *testing.T) {
	ctx := context.Background()
	orphans := customer.NewMemoryOrphanStore()
	require.NoError(t, orphans.RecordOrphan(ctx, customer.Orphan{CustomerID: "cus_down"}))
	gw := &MockGateway{errs: map[string]error{
		"cus_down": &payment.GatewayError{Kind: payment.KindProcessor, Code: "timeout", Err: context.DeadlineExceeded},
	}}
	r := newReconciler(orphans, token.NewMemoryStore(time.Minute), gw, keys)

	r.RunOnce(ctx)
	r.RunOnce(ctx)

	assert.Equal(t, 2, gw.attempts["cus_down"])
	assert.Empty(t, orphans.Parked())
	left, err := orphans.ListOrphans(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestReconciler_SkipsWithoutKeys(t *testing.T) {
	ctx := context.Background()
	orphans := customer.NewMemoryOrphanStore()
	require.NoError(t, orphans.RecordOrphan(ctx, customer.Orphan{CustomerID: "cus_1"}))
	gw := &MockGateway{}

	newReconciler(orphans, token.NewMemoryStore(time.Minute), gw, config.GatewayConfig{TestMode: true}).RunOnce(ctx)

	assert.Empty(t, gw.deleted)
	left, _ := orphans.ListOrphans(ctx, 0)
	assert.Len(t, left, 1)
}

func TestReconciler_PurgesExpiredTokens(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tokens := token.NewMemoryStore(time.Minute).WithClock(func() time.Time { return now })
	require.NoError(t, tokens.Put(ctx, "sess-1", "tok_1"))
	now = now.Add(2 * time.Minute)

	newReconciler(customer.NewMemoryOrphanStore(), tokens, &MockGateway{}, keys).RunOnce(ctx)

	n, err := tokens.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReconciler_StartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := newReconciler(customer.NewMemoryOrphanStore(), token.NewMemoryStore(time.Minute), &MockGateway{}, keys)

	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}
