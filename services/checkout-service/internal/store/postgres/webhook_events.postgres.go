package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// WebhookEventLog implements payment.EventLog on the webhook_events table.
type WebhookEventLog struct {
	db *sql.DB
}

func NewWebhookEventLog(db *sql.DB) *WebhookEventLog {
	return &WebhookEventLog{db: db}
}

func (l *WebhookEventLog) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO webhook_events (provider, event_id) VALUES ($1, $2)
		ON CONFLICT (provider, event_id) DO NOTHING`, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("db: mark webhook event: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
