// services/checkout-service/internal/charge/orchestrator.go
package charge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/singleflight"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/config"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/customer"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/ledger"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/payment"
	"github.com/rfay/uc-stripe/services/checkout-service/internal/token"
	"github.com/rfay/uc-stripe/shared/contracts"
	"github.com/rfay/uc-stripe/shared/money"
)

const (
	DefaultChargeTimeout  = 30 * time.Second
	DefaultPublishTimeout = 5 * time.Second
	ZeroAmountReference   = "zero-amount"

	msgNotConfigured = "Stripe API not found. Contact the site administrator."
	msgMissingToken  = "Your card details were not received. Please re-enter them and submit again."
	msgChargeFailed  = "Credit card charge failed."
	msgChargeOK      = "Credit card payment processed successfully."
)

// EventPublisher receives a charge event after every attempt that got past
// validation, configuration and token checks. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// Orchestrator runs the charge workflow: resolve the remote customer, consume
// the card token when a customer must be created, charge, and record the result
// in the order ledger.
type Orchestrator struct {
	config         config.Provider
	gateways       payment.GatewayFactory
	directory      customer.Directory
	tokens         token.Store
	ledger         ledger.Ledger
	orphans        customer.OrphanRecorder
	events         EventPublisher
	logger         *slog.Logger
	timeout        time.Duration
	publishTimeout time.Duration
	now            func() time.Time

	// Concurrent duplicate submissions share one execution.
	sf singleflight.Group
}

type Option func(*Orchestrator)

func WithEventPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

func WithOrphanRecorder(r customer.OrphanRecorder) Option {
	return func(o *Orchestrator) { o.orphans = r }
}

// WithChargeTimeout bounds each remote call. Non-positive values are ignored.
func WithChargeTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithPublishTimeout bounds each event publish. Non-positive values are ignored.
func WithPublishTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.publishTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(
	cfg config.Provider,
	gateways payment.GatewayFactory,
	directory customer.Directory,
	tokens token.Store,
	l ledger.Ledger,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		config:         cfg,
		gateways:       gateways,
		directory:      directory,
		tokens:         tokens,
		ledger:         l,
		logger:         logger.With(slog.String("component", "charge")),
		timeout:        DefaultChargeTimeout,
		publishTimeout: DefaultPublishTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Charge runs one charge attempt and always returns a fully populated Outcome.
// It never returns an error and never panics.
func (o *Orchestrator) Charge(ctx context.Context, req Request) Outcome {
	v, _, _ := o.sf.Do(req.flightKey(), func() (interface{}, error) {
		out := o.safeProcess(ctx, req)
		o.publish(ctx, req, out)
		return out, nil
	})
	return v.(Outcome)
}

func (o *Orchestrator) safeProcess(ctx context.Context, req Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("charge panicked", slog.String("order_id", req.Order.ID.String()), slog.Any("panic", r))
			out = o.failure(req, 0, "", ReasonProcessorError, "internal_error", msgChargeFailed, fmt.Sprintf("internal error: %v", r))
		}
	}()
	return o.process(ctx, req)
}

func (o *Orchestrator) process(ctx context.Context, req Request) Outcome {
	log := o.logger.With(
		slog.String("order_id", req.Order.ID.String()),
		slog.String("txn_type", string(req.TxnType)),
	)

	if _, err := ParseTxnType(string(req.TxnType)); err != nil {
		return o.failure(req, 0, "", ReasonInvalidRequest, "", err.Error(), err.Error())
	}
	if req.TxnType == PriorAuthCapture && req.PriorReference == "" {
		msg := "a prior authorization reference is required to capture"
		return o.failure(req, 0, "", ReasonInvalidRequest, "", msg, msg)
	}
	currency, err := money.NormalizeCurrency(req.Order.Currency)
	if err != nil {
		return o.failure(req, 0, "", ReasonInvalidRequest, "", err.Error(), err.Error())
	}
	amountMinor, err := money.ToMinorUnits(req.Amount, currency)
	if err != nil {
		return o.failure(req, 0, currency, ReasonInvalidAmount, "", err.Error(), err.Error())
	}

	// Configuration is read on every charge; keys can change between calls.
	gwCfg, err := o.config.GatewayConfig(ctx)
	if err == nil {
		err = gwCfg.CheckActive()
	}
	if err != nil {
		log.Error("stripe keys are not configured, payments cannot be made", slog.Any("err", err))
		return o.failure(req, amountMinor, currency, ReasonConfigurationError, "", msgNotConfigured, "Stripe API not found.")
	}

	formatted := money.Format(req.Amount, currency)

	gw := o.gateways(gwCfg.SecretKey())

	// Capturing needs only the authorization's charge id. A zero amount
	// captures the full authorized amount.
	if req.TxnType == PriorAuthCapture {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		res, err := gw.Capture(callCtx, payment.CaptureRequest{ChargeID: req.PriorReference, AmountMinor: amountMinor})
		if err != nil {
			return o.remoteFailure(ctx, req, amountMinor, currency, err)
		}
		captured := res.AmountMinor
		if captured == 0 {
			captured = amountMinor
		}
		comment := fmt.Sprintf("Credit card charged: %s", money.Format(money.FromMinorUnits(captured, currency), currency))
		o.appendComment(ctx, req, ledger.ChannelCustomer, comment)
		return o.success(req, captured, currency, res.ChargeID, comment)
	}

	// Stripe refuses zero-amount charges; there is nothing to collect anyway.
	if amountMinor == 0 {
		comment := fmt.Sprintf("Credit card charged: %s", formatted)
		o.appendComment(ctx, req, ledger.ChannelCustomer, comment)
		return o.success(req, amountMinor, currency, ZeroAmountReference, comment)
	}

	customerID, out, ok := o.resolveCustomer(ctx, req, gw, amountMinor, currency)
	if !ok {
		return out
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	res, err := gw.Charge(callCtx, payment.ChargeRequest{
		CustomerID:  customerID,
		AmountMinor: amountMinor,
		Currency:    currency,
		Capture:     req.TxnType == AuthCapture,
		Description: fmt.Sprintf("OrderID: %s", req.Order.ID),
		Metadata:    o.metadata(req),
	})
	if err != nil {
		return o.remoteFailure(ctx, req, amountMinor, currency, err)
	}

	comment := fmt.Sprintf("Credit card charged: %s", formatted)
	if req.TxnType == AuthOnly {
		comment = fmt.Sprintf("Credit card authorized: %s", formatted)
	}
	o.appendComment(ctx, req, ledger.ChannelCustomer, comment)
	log.Info("charge succeeded", slog.String("charge_id", res.ChargeID), slog.Int64("amount_minor", amountMinor))
	return o.success(req, amountMinor, currency, res.ChargeID, comment)
}

// resolveCustomer finds the owner's remote customer or creates one from the
// session's card token. When ok is false the returned Outcome is final.
func (o *Orchestrator) resolveCustomer(ctx context.Context, req Request, gw payment.Gateway, amountMinor int64, currency string) (string, Outcome, bool) {
	owner := req.Order.OwnerID

	customerID, found, err := o.directory.Lookup(ctx, owner)
	if err != nil {
		o.logger.Error("customer lookup failed", slog.String("account_id", owner.String()), slog.Any("err", err))
		return "", o.failure(req, amountMinor, currency, ReasonStorageError, "", msgChargeFailed, "customer lookup failed"), false
	}
	if found && customerID != "" {
		return customerID, Outcome{}, true
	}

	// From here on the token is consumed whatever happens next.
	cardToken, ok, err := o.tokens.Take(ctx, req.SessionID)
	if err != nil {
		o.logger.Error("token take failed", slog.String("session_id", req.SessionID), slog.Any("err", err))
		return "", o.failure(req, amountMinor, currency, ReasonStorageError, "", msgChargeFailed, "card token lookup failed"), false
	}
	if !ok || cardToken == "" {
		return "", o.failure(req, amountMinor, currency, ReasonMissingTokenError, "", msgMissingToken, "Token not found"), false
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	newID, err := gw.CreateCustomer(callCtx, payment.CustomerRequest{
		Source:      cardToken,
		Description: fmt.Sprintf("OrderID: %s", req.Order.ID),
		Email:       req.Order.Email,
		Metadata:    o.metadata(req),
	})
	if err != nil {
		code, detail := gatewayDetail(err)
		comment := fmt.Sprintf("Stripe Customer Creation Failed for order %s: %s", req.Order.ID, detail)
		o.appendComment(ctx, req, ledger.ChannelAdmin, comment)
		o.logger.Warn("failed stripe customer creation", slog.String("order_id", req.Order.ID.String()), slog.String("code", code))
		return "", o.failure(req, amountMinor, currency, ReasonCustomerCreationError, code, msgChargeFailed, comment), false
	}

	if err := o.directory.Store(ctx, owner, newID); err != nil {
		o.queueOrphan(ctx, req, newID)
		if errors.Is(err, customer.ErrConflict) {
			comment := fmt.Sprintf("Stripe customer %s for order %s was not saved: account %s is already linked to another customer", newID, req.Order.ID, owner)
			o.appendComment(ctx, req, ledger.ChannelAdmin, comment)
			return "", o.failure(req, amountMinor, currency, ReasonConflictError, "", msgChargeFailed, comment), false
		}
		o.logger.Error("customer store failed", slog.String("account_id", owner.String()), slog.Any("err", err))
		comment := fmt.Sprintf("Stripe customer %s for order %s could not be saved", newID, req.Order.ID)
		o.appendComment(ctx, req, ledger.ChannelAdmin, comment)
		return "", o.failure(req, amountMinor, currency, ReasonStorageError, "", msgChargeFailed, comment), false
	}

	return newID, Outcome{}, true
}

func (o *Orchestrator) remoteFailure(ctx context.Context, req Request, amountMinor int64, currency string, err error) Outcome {
	reason := ReasonProcessorError
	var ge *payment.GatewayError
	if errors.As(err, &ge) && ge.Kind == payment.KindDeclined {
		reason = ReasonDeclinedError
	}
	code, detail := gatewayDetail(err)
	comment := fmt.Sprintf("Credit card charge failed for order %s: %s", req.Order.ID, detail)
	if code != "" {
		comment = fmt.Sprintf("%s (%s)", comment, code)
	}
	o.appendComment(ctx, req, ledger.ChannelAdmin, comment)
	o.logger.Warn("charge failed",
		slog.String("order_id", req.Order.ID.String()),
		slog.String("reason", string(reason)),
		slog.String("code", code))
	return o.failure(req, amountMinor, currency, reason, code, msgChargeFailed, comment)
}

func gatewayDetail(err error) (code, message string) {
	var ge *payment.GatewayError
	if errors.As(err, &ge) {
		return ge.Code, ge.Message
	}
	return "", err.Error()
}

func (o *Orchestrator) queueOrphan(ctx context.Context, req Request, customerID string) {
	if o.orphans == nil {
		o.logger.Warn("orphan stripe customer not queued, no recorder configured", slog.String("customer_id", customerID))
		return
	}
	err := o.orphans.RecordOrphan(ctx, customer.Orphan{
		CustomerID: customerID,
		AccountID:  req.Order.OwnerID,
		OrderID:    req.Order.ID,
		CreatedAt:  o.now(),
	})
	if err != nil {
		o.logger.Error("orphan stripe customer not queued", slog.String("customer_id", customerID), slog.Any("err", err))
	}
}

// appendComment never fails the charge. Money may already have moved.
func (o *Orchestrator) appendComment(ctx context.Context, req Request, ch ledger.Channel, text string) {
	err := o.ledger.Append(ctx, ledger.Comment{
		OrderID:   req.Order.ID,
		AccountID: req.ActingAccountID,
		Channel:   ch,
		Text:      text,
		CreatedAt: o.now(),
	})
	if err != nil {
		o.logger.Error("order comment not saved",
			slog.String("order_id", req.Order.ID.String()),
			slog.String("channel", string(ch)),
			slog.Any("err", err))
	}
}

func (o *Orchestrator) metadata(req Request) map[string]string {
	md := map[string]string{"order_id": req.Order.ID.String()}
	if req.ActingAccountID != uuid.Nil {
		md["account_id"] = req.ActingAccountID.String()
	}
	return md
}

func (o *Orchestrator) success(req Request, amountMinor int64, currency, reference, comment string) Outcome {
	return Outcome{
		Success:     true,
		Reason:      ReasonOK,
		Message:     msgChargeOK,
		Comment:     comment,
		OrderID:     req.Order.ID,
		AccountID:   req.ActingAccountID,
		Reference:   reference,
		AmountMinor: amountMinor,
		Currency:    currency,
	}
}

func (o *Orchestrator) failure(req Request, amountMinor int64, currency string, reason Reason, code, message, comment string) Outcome {
	return Outcome{
		Success:     false,
		Reason:      reason,
		Code:        code,
		Message:     message,
		Comment:     comment,
		OrderID:     req.Order.ID,
		AccountID:   req.ActingAccountID,
		AmountMinor: amountMinor,
		Currency:    currency,
	}
}

// announced reports whether an outcome is worth an event. Requests rejected
// before any processor call stay silent.
func announced(r Reason) bool {
	switch r {
	case ReasonConfigurationError, ReasonMissingTokenError, ReasonInvalidAmount, ReasonInvalidRequest:
		return false
	}
	return true
}

func (o *Orchestrator) publish(ctx context.Context, req Request, out Outcome) {
	if o.events == nil || !announced(out.Reason) {
		return
	}
	ev := contracts.ChargeEvent{
		Event:       contracts.EventChargeFailed,
		OrderID:     req.Order.ID.String(),
		AccountID:   out.AccountID.String(),
		Email:       req.Order.Email,
		Success:     out.Success,
		Reason:      string(out.Reason),
		AmountMinor: out.AmountMinor,
		Currency:    out.Currency,
		Reference:   out.Reference,
		OccurredAt:  o.now().UTC(),
	}
	if out.Success {
		ev.Event = contracts.EventChargeSucceeded
	}
	// Detached from the caller's cancellation, bounded on its own.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.publishTimeout)
	defer cancel()
	if err := o.events.Publish(pubCtx, ev.OrderID, ev); err != nil {
		o.logger.Warn("charge event not published", slog.String("order_id", ev.OrderID), slog.Any("err", err))
	}
}
