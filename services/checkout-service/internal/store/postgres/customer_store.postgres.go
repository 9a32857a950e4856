package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/customer"
)

// CustomerDirectory implements customer.Directory on the stripe_customers table.
type CustomerDirectory struct {
	db *sql.DB
}

func NewCustomerDirectory(db *sql.DB) *CustomerDirectory {
	return &CustomerDirectory{db: db}
}

func (d *CustomerDirectory) Lookup(ctx context.Context, accountID uuid.UUID) (string, bool, error) {
	var customerID string
	err := d.db.QueryRowContext(ctx,
		`SELECT customer_id FROM stripe_customers WHERE account_id = $1`, accountID,
	).Scan(&customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("db: lookup stripe customer: %w", err)
	}
	return customerID, true, nil
}

// Store inserts the mapping unless the account already has one. A row with a
// blank customer id, from before the column check existed, is replaced. A
// zero-row insert is read back: the same id is a no-op, anything else a
// conflict.
func (d *CustomerDirectory) Store(ctx context.Context, accountID uuid.UUID, customerID string) error {
	if customerID == "" {
		return customer.ErrEmptyCustomerID
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO stripe_customers (account_id, customer_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id) DO UPDATE
			SET customer_id = EXCLUDED.customer_id, created_at = EXCLUDED.created_at
			WHERE stripe_customers.customer_id = ''`,
		accountID, customerID,
	)
	if err != nil {
		// customer_id is unique too; another account already owns it.
		if isUniqueViolation(err) {
			return customer.ErrConflict
		}
		return fmt.Errorf("db: store stripe customer: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}

	existing, found, err := d.Lookup(ctx, accountID)
	if err != nil {
		return err
	}
	if found && existing == customerID {
		return nil
	}
	return customer.ErrConflict
}
