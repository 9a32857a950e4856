package order

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrOrderNotFound = errors.New("order not found")

// Order is the read-only view of a host order that a charge needs.
type Order struct {
	ID       uuid.UUID       `json:"id"`
	OwnerID  uuid.UUID       `json:"owner_id"` // account that placed the order
	Email    string          `json:"email"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// Reader loads orders by id.
type Reader interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error)
}

// Writer is used by the service and tests to seed orders; the host cart owns
// the canonical copy.
type Writer interface {
	SaveOrder(ctx context.Context, o Order) error
}

type Store interface {
	Reader
	Writer
}

// MemoryStore is an in-process Reader and Writer.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[uuid.UUID]Order)}
}

func (s *MemoryStore) GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (s *MemoryStore) SaveOrder(ctx context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}
