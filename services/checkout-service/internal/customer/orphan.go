package customer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Orphan is a remote customer created by a checkout that lost the race to
// store its mapping. Nothing references it, so it is deleted at Stripe later.
type Orphan struct {
	CustomerID string
	AccountID  uuid.UUID
	OrderID    uuid.UUID
	CreatedAt  time.Time

	// Set once Stripe has refused the deletion for good.
	ParkedAt  time.Time
	LastError string
}

// OrphanRecorder queues orphans for deletion.
type OrphanRecorder interface {
	RecordOrphan(ctx context.Context, o Orphan) error
}

// OrphanStore is the reconciler's view of the queue. ListOrphans skips parked
// orphans; they stay stored for an operator to look at.
type OrphanStore interface {
	OrphanRecorder
	ListOrphans(ctx context.Context, limit int) ([]Orphan, error)
	RemoveOrphan(ctx context.Context, customerID string) error
	ParkOrphan(ctx context.Context, customerID, reason string) error
}

type MemoryOrphanStore struct {
	mu      sync.Mutex
	orphans map[string]Orphan
}

func NewMemoryOrphanStore() *MemoryOrphanStore {
	return &MemoryOrphanStore{orphans: make(map[string]Orphan)}
}

func (s *MemoryOrphanStore) RecordOrphan(ctx context.Context, o Orphan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	if _, ok := s.orphans[o.CustomerID]; !ok {
		s.orphans[o.CustomerID] = o
	}
	return nil
}

// ListOrphans returns up to limit unparked orphans, oldest first.
func (s *MemoryOrphanStore) ListOrphans(ctx context.Context, limit int) ([]Orphan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Orphan, 0, len(s.orphans))
	for _, o := range s.orphans {
		if o.ParkedAt.IsZero() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryOrphanStore) RemoveOrphan(ctx context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orphans, customerID)
	return nil
}

func (s *MemoryOrphanStore) ParkOrphan(ctx context.Context, customerID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orphans[customerID]
	if !ok {
		return nil
	}
	o.ParkedAt = time.Now()
	o.LastError = reason
	s.orphans[customerID] = o
	return nil
}

// Parked returns the parked orphans, oldest first.
func (s *MemoryOrphanStore) Parked() []Orphan {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Orphan
	for _, o := range s.orphans {
		if !o.ParkedAt.IsZero() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
