package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/order"
)

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) GetOrder(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	var o order.Order
	err := s.db.QueryRowContext(ctx,
		`SELECT order_id, owner_id, email, total, currency FROM orders WHERE order_id = $1`, orderID,
	).Scan(&o.ID, &o.OwnerID, &o.Email, &o.Total, &o.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get order: %w", err)
	}
	return &o, nil
}

func (s *OrderStore) SaveOrder(ctx context.Context, o order.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, owner_id, email, total, currency)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id, email = EXCLUDED.email,
		    total = EXCLUDED.total, currency = EXCLUDED.currency`,
		o.ID, o.OwnerID, o.Email, o.Total, o.Currency,
	)
	if err != nil {
		return fmt.Errorf("db: save order: %w", err)
	}
	return nil
}
