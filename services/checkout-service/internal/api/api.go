// Package api exposes the checkout workflow over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/charge"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/config"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/ledger"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/order"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/payment"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/payment/webhook"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/token"
)

const (
	HeaderAccountID = "X-Account-ID"
	HeaderSession   = "X-Checkout-Session"
	HeaderRole      = "X-Role"

	maxWebhookBody = 64 << 10
)

type Charger interface {
	Charge(ctx context.Context, req charge.Request) charge.Outcome
}

type AsyncResultHandler interface {
	HandleAsyncResult(ctx context.Context, event payment.NormalizedEvent) error
}

// API is the HTTP API of the checkout service.
type API struct {
	orders   order.Store
	charges  Charger
	tokens   token.Store
	ledger   ledger.Ledger
	config   config.Provider
	webhooks *webhook.Registry
	async    AsyncResultHandler
	logger   *slog.Logger
}

func NewAPI(
	orders order.Store,
	charges Charger,
	tokens token.Store,
	l ledger.Ledger,
	cfg config.Provider,
	webhooks *webhook.Registry,
	async AsyncResultHandler,
	logger *slog.Logger,
) *API {
	return &API{
		orders:   orders,
		charges:  charges,
		tokens:   tokens,
		ledger:   l,
		config:   cfg,
		webhooks: webhooks,
		async:    async,
		logger:   logger.With(slog.String("component", "api")),
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Put("/checkout/sessions/{sessionID}/token", a.putToken)
	r.Route("/orders/{orderID}", func(r chi.Router) {
		r.Put("/", a.putOrder)
		r.Post("/charges", a.chargeOrder)
		r.Get("/comments", a.listComments)
	})
	r.Post("/admin/gateway/keys/validate", a.validateKeys)
	r.Post("/webhooks/{provider}", a.receiveWebhook)
}

// AppendHealth mounts liveness and readiness checks. ready may be nil.
func AppendHealth(r chi.Router, ready func(ctx context.Context) error) {
	r.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

type putTokenRequest struct {
	Token string `json:"token"`
}

func (a *API) putToken(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var body putTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.tokens.Put(r.Context(), sessionID, strings.TrimSpace(body.Token)); err != nil {
		if errors.Is(err, token.ErrEmptyToken) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.logger.Error("storing card token", slog.String("session_id", sessionID), slog.Any("err", err))
		http.Error(w, "could not store card token", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type putOrderRequest struct {
	OwnerID  uuid.UUID       `json:"owner_id"`
	Email    string          `json:"email"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// putOrder syncs the order view pushed by the host cart.
func (a *API) putOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}
	var body putOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.OwnerID == uuid.Nil || body.Currency == "" {
		http.Error(w, "owner_id and currency are required", http.StatusBadRequest)
		return
	}

	o := order.Order{
		ID:       orderID,
		OwnerID:  body.OwnerID,
		Email:    body.Email,
		Total:    body.Total,
		Currency: strings.ToUpper(body.Currency),
	}
	if err := a.orders.SaveOrder(r.Context(), o); err != nil {
		a.logger.Error("saving order", slog.String("order_id", orderID.String()), slog.Any("err", err))
		http.Error(w, "could not save order", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type chargeRequest struct {
	Amount         *decimal.Decimal `json:"amount,omitempty"` // defaults to the order total
	TxnType        string           `json:"txn_type,omitempty"`
	PriorReference string           `json:"prior_reference,omitempty"`
}

func (a *API) chargeOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}
	acting, err := uuid.Parse(r.Header.Get(HeaderAccountID))
	if err != nil {
		http.Error(w, HeaderAccountID+" header must be a uuid", http.StatusBadRequest)
		return
	}

	var body chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ord, err := a.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		a.logger.Error("loading order", slog.String("order_id", orderID.String()), slog.Any("err", err))
		http.Error(w, "could not load order", http.StatusInternalServerError)
		return
	}

	txn := charge.AuthCapture
	if body.TxnType != "" {
		txn = charge.TxnType(strings.ToUpper(body.TxnType))
	}
	amount := ord.Total
	if body.Amount != nil {
		amount = *body.Amount
	}

	out := a.charges.Charge(r.Context(), charge.Request{
		Order:           *ord,
		Amount:          amount,
		TxnType:         txn,
		ActingAccountID: acting,
		SessionID:       r.Header.Get(HeaderSession),
		PriorReference:  body.PriorReference,
	})

	writeJSON(w, statusFor(out.Reason), customerView(out))
}

// customerView strips the ledger text and the processor code from failures.
// Both are for staff only; the reason and message remain.
func customerView(out charge.Outcome) charge.Outcome {
	if !out.Success {
		out.Comment = ""
		out.Code = ""
	}
	return out
}

func statusFor(reason charge.Reason) int {
	switch reason {
	case charge.ReasonOK:
		return http.StatusOK
	case charge.ReasonDeclinedError:
		return http.StatusPaymentRequired
	case charge.ReasonConflictError:
		return http.StatusConflict
	case charge.ReasonMissingTokenError, charge.ReasonInvalidAmount, charge.ReasonInvalidRequest:
		return http.StatusUnprocessableEntity
	case charge.ReasonProcessorError, charge.ReasonCustomerCreationError:
		return http.StatusBadGateway
	case charge.ReasonConfigurationError, charge.ReasonStorageError:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (a *API) listComments(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	comments, err := a.ledger.List(r.Context(), orderID)
	if err != nil {
		a.logger.Error("listing order comments", slog.String("order_id", orderID.String()), slog.Any("err", err))
		http.Error(w, "could not list comments", http.StatusInternalServerError)
		return
	}

	staff := r.Header.Get(HeaderRole) == "admin"
	visible := make([]ledger.Comment, 0, len(comments))
	for _, c := range comments {
		if c.Channel == ledger.ChannelAdmin && !staff {
			continue
		}
		visible = append(visible, c)
	}
	writeJSON(w, http.StatusOK, visible)
}

type validateKeysResponse struct {
	Valid  bool              `json:"valid"`
	Mode   string            `json:"mode"`
	Errors []config.KeyError `json:"errors"`
}

// validateKeys checks either the submitted key set or, with an empty body,
// the configured one.
func (a *API) validateKeys(w http.ResponseWriter, r *http.Request) {
	var submitted struct {
		TestMode           *bool  `json:"test_mode"`
		TestSecretKey      string `json:"test_secret_key"`
		TestPublishableKey string `json:"test_publishable_key"`
		LiveSecretKey      string `json:"live_secret_key"`
		LivePublishableKey string `json:"live_publishable_key"`
	}
	err := json.NewDecoder(r.Body).Decode(&submitted)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var g config.GatewayConfig
	if errors.Is(err, io.EOF) {
		g, err = a.config.GatewayConfig(r.Context())
		if err != nil {
			a.logger.Error("reading gateway config", slog.Any("err", err))
			http.Error(w, "could not read gateway config", http.StatusServiceUnavailable)
			return
		}
	} else {
		g = config.GatewayConfig{
			TestMode:           submitted.TestMode == nil || *submitted.TestMode,
			TestSecretKey:      config.SanitizeKey(submitted.TestSecretKey),
			TestPublishableKey: config.SanitizeKey(submitted.TestPublishableKey),
			LiveSecretKey:      config.SanitizeKey(submitted.LiveSecretKey),
			LivePublishableKey: config.SanitizeKey(submitted.LivePublishableKey),
		}
	}

	keyErrors := config.ValidateGatewayKeys(g)
	status := http.StatusOK
	if len(keyErrors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, validateKeysResponse{
		Valid:  len(keyErrors) == 0,
		Mode:   g.Mode(),
		Errors: keyErrors,
	})
}

func (a *API) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	proc, err := a.webhooks.Get(provider)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	event, err := proc.VerifyAndParse(payload, headers)
	if err != nil {
		a.logger.Warn("rejected webhook", slog.String("provider", provider), slog.Any("err", err))
		http.Error(w, "invalid webhook", http.StatusBadRequest)
		return
	}
	if event == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := a.async.HandleAsyncResult(r.Context(), *event); err != nil {
		if errors.Is(err, payment.ErrEventWithoutOrder) {
			// Not one of ours; acknowledge so the processor stops retrying.
			a.logger.Info("webhook event without order", slog.String("event_id", event.EventID))
			w.WriteHeader(http.StatusOK)
			return
		}
		a.logger.Error("applying webhook event", slog.String("event_id", event.EventID), slog.Any("err", err))
		http.Error(w, "could not apply event", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
