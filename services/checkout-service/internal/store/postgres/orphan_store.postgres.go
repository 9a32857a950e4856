package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/customer"
)

// OrphanStore implements customer.OrphanStore on the orphan_customers table.
type OrphanStore struct {
	db *sql.DB
}

func NewOrphanStore(db *sql.DB) *OrphanStore {
	return &OrphanStore{db: db}
}

func (s *OrphanStore) RecordOrphan(ctx context.Context, o customer.Orphan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orphan_customers (customer_id, account_id, order_id, created_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		ON CONFLICT (customer_id) DO NOTHING`,
		o.CustomerID,
		nullableUUID(o.AccountID),
		nullableUUID(o.OrderID),
		sql.NullTime{Time: o.CreatedAt, Valid: !o.CreatedAt.IsZero()},
	)
	if err != nil {
		return fmt.Errorf("db: record orphan customer: %w", err)
	}
	return nil
}

// ListOrphans returns the oldest unparked orphans first.
func (s *OrphanStore) ListOrphans(ctx context.Context, limit int) ([]customer.Orphan, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_id, account_id, order_id, created_at
		FROM orphan_customers
		WHERE parked_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list orphan customers: %w", err)
	}
	defer rows.Close()

	var out []customer.Orphan
	for rows.Next() {
		var o customer.Orphan
		var account, ord uuid.NullUUID
		if err := rows.Scan(&o.CustomerID, &account, &ord, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("db: scan orphan customer: %w", err)
		}
		o.AccountID = account.UUID
		o.OrderID = ord.UUID
		out = append(out, o)
	}
	return out, rows.Err()
}

// ParkOrphan takes the orphan out of the deletion queue and keeps the reason.
func (s *OrphanStore) ParkOrphan(ctx context.Context, customerID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orphan_customers SET parked_at = NOW(), last_error = $2
		WHERE customer_id = $1`, customerID, reason)
	if err != nil {
		return fmt.Errorf("db: park orphan customer: %w", err)
	}
	return nil
}

func (s *OrphanStore) RemoveOrphan(ctx context.Context, customerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM orphan_customers WHERE customer_id = $1`, customerID); err != nil {
		return fmt.Errorf("db: remove orphan customer: %w", err)
	}
	return nil
}
