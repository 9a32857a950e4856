//services/checkout-service/internal/payment/webhookLogic.payment.go

package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/ledger"
	"github.com/rfay/uc-stripe/shared/money"
)

var ErrEventWithoutOrder = errors.New("event carries no order_id metadata")

// EventLog remembers which provider events were already applied.
// MarkProcessed returns false when the event was seen before.
type EventLog interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type MemoryEventLog struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{seen: make(map[string]struct{})}
}

func (l *MemoryEventLog) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := provider + "/" + eventID
	if _, ok := l.seen[key]; ok {
		return false, nil
	}
	l.seen[key] = struct{}{}
	return true, nil
}

// WebhookHandler writes asynchronous processor events into the order's admin
// trail. Redelivered events are applied once.
type WebhookHandler struct {
	ledger ledger.Ledger
	events EventLog
	logger *slog.Logger
}

func NewWebhookHandler(l ledger.Ledger, events EventLog, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ledger: l,
		events: events,
		logger: logger.With(slog.String("component", "webhook")),
	}
}

// HandleAsyncResult applies one verified event.
func (h *WebhookHandler) HandleAsyncResult(ctx context.Context, event NormalizedEvent) error {
	if event.OrderID == uuid.Nil {
		return fmt.Errorf("%w: %s %s", ErrEventWithoutOrder, event.Type, event.ProviderPaymentID)
	}

	if event.EventID != "" {
		first, err := h.events.MarkProcessed(ctx, event.Provider, event.EventID)
		if err != nil {
			return fmt.Errorf("record webhook event %s: %w", event.EventID, err)
		}
		if !first {
			h.logger.Info("duplicate webhook event ignored",
				slog.String("event_id", event.EventID), slog.String("type", event.Type))
			return nil
		}
	}

	c := ledger.Comment{
		OrderID:   event.OrderID,
		AccountID: event.AccountID,
		Channel:   ledger.ChannelAdmin,
		Text:      describeEvent(event),
	}
	if err := h.ledger.Append(ctx, c); err != nil {
		return fmt.Errorf("append webhook comment for order %s: %w", event.OrderID, err)
	}
	h.logger.Info("webhook event applied",
		slog.String("event_id", event.EventID),
		slog.String("type", event.Type),
		slog.String("order_id", event.OrderID.String()))
	return nil
}

func describeEvent(e NormalizedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s event %s for charge %s", e.Provider, e.Type, e.ProviderPaymentID)
	if e.AmountMinor > 0 && e.Currency != "" {
		fmt.Fprintf(&b, ": %s", money.Format(money.FromMinorUnits(e.AmountMinor, e.Currency), e.Currency))
	}
	if e.ErrorCode != nil || e.ErrorMessage != nil {
		b.WriteString(" (")
		if e.ErrorCode != nil {
			b.WriteString(*e.ErrorCode)
		}
		if e.ErrorMessage != nil {
			if e.ErrorCode != nil {
				b.WriteString(": ")
			}
			b.WriteString(*e.ErrorMessage)
		}
		b.WriteString(")")
	}
	return b.String()
}
