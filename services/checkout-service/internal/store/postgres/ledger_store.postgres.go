// services/checkout-service/internal/store/postgres/ledger_store.postgres.go

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/ledger"
)

// OrderLedger implements ledger.Ledger on the order_comments table.
type OrderLedger struct {
	db *sql.DB
}

func NewOrderLedger(db *sql.DB) *OrderLedger {
	return &OrderLedger{db: db}
}

// Append is idempotent on the comment id: replaying the same comment is a
// silent no-op.
func (store *OrderLedger) Append(ctx context.Context, c ledger.Comment) error {
	if err := ledger.Prepare(&c, time.Now()); err != nil {
		return err
	}
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO order_comments (comment_id, order_id, account_id, channel, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (comment_id) DO NOTHING`,
		c.ID,
		c.OrderID,
		nullableUUID(c.AccountID),
		string(c.Channel),
		c.Text,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db: append order comment: %w", err)
	}
	return nil
}

func (store *OrderLedger) List(ctx context.Context, orderID uuid.UUID) ([]ledger.Comment, error) {
	rows, err := store.db.QueryContext(ctx, `
		SELECT comment_id, order_id, account_id, channel, body, created_at
		FROM order_comments
		WHERE order_id = $1
		ORDER BY created_at ASC, comment_id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("db: list order comments: %w", err)
	}
	defer rows.Close()

	var comments []ledger.Comment
	for rows.Next() {
		var c ledger.Comment
		var account uuid.NullUUID
		var channel string
		if err := rows.Scan(&c.ID, &c.OrderID, &account, &channel, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("db: scan order comment: %w", err)
		}
		c.AccountID = account.UUID
		c.Channel = ledger.Channel(channel)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
