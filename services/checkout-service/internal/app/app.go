// Package app wires the checkout service together and runs it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/api"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/charge"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/config"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/customer"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/ledger"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/order"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/payment"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/payment/webhook"
	stripewebhook "github.com/rfay/uc-stripe/services/checkout-service/internal/payment/webhook/stripe"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/store/postgres"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/token"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/worker"
	pkgkafka "github.com/rfay/uc-stripe/shared/kafka"
)

// stores is one backend's set of repositories.
type stores struct {
	orders    order.Store
	directory customer.Directory
	tokens    token.Store
	ledger    ledger.Ledger
	orphans   customer.OrphanStore
	events    payment.EventLog
	ping      func(ctx context.Context) error
	db        *sql.DB
}

// App is the checkout service: HTTP API, orphan reconciler and the charge
// event producer.
type App struct {
	srv    *http.Server
	wg     *sync.WaitGroup
	cancel context.CancelFunc
	Addr   string

	logger   *slog.Logger
	config   *config.CheckoutConfig
	gateways payment.GatewayFactory
	stores   *stores
	producer *pkgkafka.EventProducer
}

type Option func(*App)

// WithGatewayFactory replaces the Stripe gateway, for tests.
func WithGatewayFactory(f payment.GatewayFactory) Option {
	return func(a *App) { a.gateways = f }
}

func NewApp(logger *slog.Logger, cfg *config.CheckoutConfig, opts ...Option) *App {
	a := &App{
		wg:       &sync.WaitGroup{},
		logger:   logger.With(slog.String("app", "checkout-service")),
		config:   cfg,
		gateways: payment.StripeGatewayFactory,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) Start() error {
	a.logger.Info("starting app...", slog.String("backend", a.config.StoreBackend), slog.String("mode", a.config.Gateway.Mode()))

	if err := a.config.Gateway.CheckActive(); err != nil {
		// Charges will fail with a configuration error until keys are set.
		a.logger.Warn("stripe keys are not configured", slog.Any("err", err))
	}

	st, err := a.openStores()
	if err != nil {
		return err
	}
	a.stores = st

	cfgProvider := config.StaticProvider{Config: a.config.Gateway}

	opts := []charge.Option{
		charge.WithOrphanRecorder(st.orphans),
		charge.WithChargeTimeout(a.config.ChargeTimeout),
	}
	if a.config.CommonConfig != nil && a.config.CommonConfig.HasKafka() {
		a.producer = pkgkafka.NewEventProducer(a.config.CommonConfig.KAFKA_BROKER, a.config.CommonConfig.KAFKA_TOPIC)
		opts = append(opts, charge.WithEventPublisher(a.producer))
		a.logger.Info("publishing charge events", slog.String("topic", a.config.CommonConfig.KAFKA_TOPIC))
	}
	orchestrator := charge.NewOrchestrator(cfgProvider, a.gateways, st.directory, st.tokens, st.ledger, a.logger, opts...)

	registry := webhook.NewRegistry(stripewebhook.New(a.config.Gateway.WebhookSecret))
	webhooks := payment.NewWebhookHandler(st.ledger, st.events, a.logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(api.NewStructuredLogger(a.logger))
	router.Use(middleware.Recoverer)
	api.NewAPI(st.orders, orchestrator, st.tokens, st.ledger, cfgProvider, registry, webhooks, a.logger).AppendRoutes(router)
	api.AppendHealth(router, st.ping)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	reconciler := worker.NewReconciler(st.orphans, st.tokens, cfgProvider, a.gateways, a.logger, a.config.ReconcileInterval)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		reconciler.Start(ctx)
	}()

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		cancel()
		return fmt.Errorf("listening tcp port: %w", err)
	}
	a.Addr = l.Addr().String()
	a.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("http server started", slog.String("addr", a.Addr))
		if err := a.srv.Serve(l); err != nil && err != http.ErrServerClosed {
			a.logger.Error("starting http server", "err", err)
		}
		a.logger.Info("http server stopped")
	}()

	return nil
}

func (a *App) openStores() (*stores, error) {
	switch a.config.StoreBackend {
	case "mem":
		return &stores{
			orders:    order.NewMemoryStore(),
			directory: customer.NewMemoryDirectory(),
			tokens:    token.NewMemoryStore(a.config.TokenTTL),
			ledger:    ledger.NewMemoryLedger(),
			orphans:   customer.NewMemoryOrphanStore(),
			events:    payment.NewMemoryEventLog(),
		}, nil
	case "pg":
		if a.config.CommonConfig == nil || !a.config.CommonConfig.HasDatabase() {
			return nil, fmt.Errorf("DB_HOST and DB_NAME are required for pg backend")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		dsn := a.config.CommonConfig.GetDBURL()
		if err := postgres.Migrate(ctx, dsn); err != nil {
			return nil, err
		}
		db, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return &stores{
			orders:    postgres.NewOrderStore(db),
			directory: postgres.NewCustomerDirectory(db),
			tokens:    postgres.NewTokenStore(db, a.config.TokenTTL),
			ledger:    postgres.NewOrderLedger(db),
			orphans:   postgres.NewOrphanStore(db),
			events:    postgres.NewWebhookEventLog(db),
			ping:      db.PingContext,
			db:        db,
		}, nil
	}
	return nil, fmt.Errorf("unsupported STORE_BACKEND=%s", a.config.StoreBackend)
}

// Shutdown drains in-flight requests, stops the reconciler and closes
// connections.
func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(ctx); err != nil {
			a.logger.Error("shutting down http server", "err", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("closing kafka producer", "err", err)
		}
	}
	if a.stores != nil && a.stores.db != nil {
		a.stores.db.Close()
	}

	a.logger.Info("app stopped")
}
