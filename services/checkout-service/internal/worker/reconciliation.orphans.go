//services/checkout-service/internal/worker/reconciliation.orphans.go

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v79"
	"golang.org/x/exp/slog"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/config"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/customer"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/payment"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/token"
)

// Reconciler cleans up after checkouts that never completed.
//
// When two first-time checkouts for one account race, both create a Stripe
// customer but only one mapping is stored. The loser's customer is queued as
// an orphan; each tick deletes a batch of them at Stripe and drops the queue
// row once Stripe confirms. A deletion Stripe refuses outright parks the row so
// it stops occupying the batch. Expired card tokens are purged on the same tick.
type Reconciler struct {
	orphans  customer.OrphanStore
	tokens   token.Store
	config   config.Provider
	gateways payment.GatewayFactory
	logger   *slog.Logger

	interval    time.Duration
	batchSize   int // orphans per tick
	workerCount int // concurrent Stripe deletes
	callTimeout time.Duration
}

func NewReconciler(
	orphans customer.OrphanStore,
	tokens token.Store,
	cfg config.Provider,
	gateways payment.GatewayFactory,
	logger *slog.Logger,
	interval time.Duration,
) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{
		orphans:     orphans,
		tokens:      tokens,
		config:      cfg,
		gateways:    gateways,
		logger:      logger.With(slog.String("component", "reconciler")),
		interval:    interval,
		batchSize:   50,
		workerCount: 5,
		callTimeout: 30 * time.Second,
	}
}

// Start runs the worker loop. Blocking call.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.logger.Info("reconciler started", slog.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconciliation cycle.
func (r *Reconciler) RunOnce(ctx context.Context) {
	if n, err := r.tokens.PurgeExpired(ctx); err != nil {
		r.logger.Error("token purge failed", slog.Any("err", err))
	} else if n > 0 {
		r.logger.Info("expired card tokens purged", slog.Int("count", n))
	}
	r.processBatch(ctx)
}

// processBatch fans one batch of orphans out to a small worker pool.
func (r *Reconciler) processBatch(ctx context.Context) {
	orphans, err := r.orphans.ListOrphans(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("listing orphan customers failed", slog.Any("err", err))
		return
	}
	if len(orphans) == 0 {
		return
	}

	gwCfg, err := r.config.GatewayConfig(ctx)
	if err == nil {
		err = gwCfg.CheckActive()
	}
	if err != nil {
		r.logger.Error("cannot delete orphan customers without stripe keys", slog.Any("err", err))
		return
	}
	gw := r.gateways(gwCfg.SecretKey())

	r.logger.Info("deleting orphan customers", slog.Int("count", len(orphans)))

	jobs := make(chan customer.Orphan, len(orphans))
	var wg sync.WaitGroup
	for w := 0; w < r.workerCount; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for o := range jobs {
				err := r.deleteOrphan(ctx, gw, o)
				if err == nil {
					continue
				}
				if refusedByStripe(err) {
					r.park(ctx, o, err)
					continue
				}
				r.logger.Warn("orphan customer not deleted, will retry",
					slog.Int("worker", id),
					slog.String("customer_id", o.CustomerID),
					slog.Any("err", err))
			}
		}(w)
	}
	for _, o := range orphans {
		jobs <- o
	}
	close(jobs)
	wg.Wait()
}

func (r *Reconciler) park(ctx context.Context, o customer.Orphan, cause error) {
	if err := r.orphans.ParkOrphan(ctx, o.CustomerID, cause.Error()); err != nil {
		r.logger.Error("orphan customer not parked", slog.String("customer_id", o.CustomerID), slog.Any("err", err))
		return
	}
	r.logger.Error("orphan customer parked, stripe refused the deletion",
		slog.String("customer_id", o.CustomerID),
		slog.String("order_id", o.OrderID.String()),
		slog.Any("err", cause))
}

// refusedByStripe reports an answer from Stripe that a retry will not change.
func refusedByStripe(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && !payment.IsRetryAbleError(err)
}

func (r *Reconciler) deleteOrphan(ctx context.Context, gw payment.Gateway, o customer.Orphan) error {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	err := gw.DeleteCustomer(callCtx, o.CustomerID)
	// Already gone at Stripe counts as done.
	if err != nil && !payment.IsResourceMissing(err) {
		return fmt.Errorf("delete stripe customer %s: %w", o.CustomerID, err)
	}
	if err := r.orphans.RemoveOrphan(ctx, o.CustomerID); err != nil {
		return fmt.Errorf("remove orphan row %s: %w", o.CustomerID, err)
	}
	r.logger.Info("orphan customer deleted",
		slog.String("customer_id", o.CustomerID),
		slog.String("order_id", o.OrderID.String()))
	return nil
}
