// Package customer maps local accounts to their Stripe customer ids.
package customer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConflict is returned by Store when the account already maps to a
// different customer id. The existing mapping is left untouched.
var ErrConflict = errors.New("account already mapped to a different customer")

// ErrEmptyCustomerID is returned by Store for a blank customer id.
var ErrEmptyCustomerID = errors.New("customer id is empty")

// Record is one account to customer mapping.
type Record struct {
	AccountID  uuid.UUID
	CustomerID string
	CreatedAt  time.Time
}

// Directory is the persistent account to customer mapping. Store is an atomic
// insert-if-absent: storing the same value twice is a no-op. Blank customer
// ids are refused with ErrEmptyCustomerID.
type Directory interface {
	Lookup(ctx context.Context, accountID uuid.UUID) (customerID string, found bool, err error)
	Store(ctx context.Context, accountID uuid.UUID, customerID string) error
}

type MemoryDirectory struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
	now     func() time.Time
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		records: make(map[uuid.UUID]Record),
		now:     time.Now,
	}
}

func (d *MemoryDirectory) Lookup(ctx context.Context, accountID uuid.UUID) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.records[accountID]
	if !ok {
		return "", false, nil
	}
	return r.CustomerID, true, nil
}

func (d *MemoryDirectory) Store(ctx context.Context, accountID uuid.UUID, customerID string) error {
	if customerID == "" {
		return ErrEmptyCustomerID
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.records[accountID]; ok {
		if existing.CustomerID == customerID {
			return nil
		}
		return ErrConflict
	}
	d.records[accountID] = Record{AccountID: accountID, CustomerID: customerID, CreatedAt: d.now()}
	return nil
}
