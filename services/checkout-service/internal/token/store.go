// Package token holds the single-use card tokens produced by checkout pages
// until a charge consumes them.
package token

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrEmptyToken = errors.New("card token must not be empty")

// Store keeps at most one pending token per checkout session.
//
// Take is destructive: it returns the token and clears the slot in one atomic
// step, so of any number of concurrent Takes exactly one sees the token.
// Expired tokens are reported as absent.
type Store interface {
	Put(ctx context.Context, sessionID, token string) error
	Take(ctx context.Context, sessionID string) (string, bool, error)
	PurgeExpired(ctx context.Context) (int, error)
}

type entry struct {
	token     string
	expiresAt time.Time
}

type MemoryStore struct {
	mu    sync.Mutex
	slots map[string]entry
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore keeps tokens for ttl after the last Put.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		slots: make(map[string]entry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithClock swaps the time source; used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Put(ctx context.Context, sessionID, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[sessionID] = entry{token: token, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Take(ctx context.Context, sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.slots[sessionID]
	if !ok {
		return "", false, nil
	}
	delete(s.slots, sessionID)
	if !s.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.token, true, nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, e := range s.slots {
		if !now.Before(e.expiresAt) {
			delete(s.slots, id)
			n++
		}
	}
	return n, nil
}
