package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidChannel = errors.New("invalid comment channel")

// Ledger is the order comment log. Comments are append-only.
type Ledger interface {
	Append(ctx context.Context, c Comment) error
	List(ctx context.Context, orderID uuid.UUID) ([]Comment, error)
}

// Prepare fills the id and timestamp of a comment and checks its channel.
// Store implementations call it before persisting.
func Prepare(c *Comment, now time.Time) error {
	if !c.Channel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, c.Channel)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	return nil
}

type MemoryLedger struct {
	mu       sync.RWMutex
	comments map[uuid.UUID][]Comment
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{comments: make(map[uuid.UUID][]Comment)}
}

func (l *MemoryLedger) Append(ctx context.Context, c Comment) error {
	if err := Prepare(&c, time.Now()); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.comments[c.OrderID] = append(l.comments[c.OrderID], c)
	return nil
}

// List returns the order's comments oldest first.
func (l *MemoryLedger) List(ctx context.Context, orderID uuid.UUID) ([]Comment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Comment, len(l.comments[orderID]))
	copy(out, l.comments[orderID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
