package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rfay/uc-stripe/services/checkout-service/internal/token"
)

// TokenStore implements token.Store on the checkout_tokens table.
type TokenStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewTokenStore(db *sql.DB, ttl time.Duration) *TokenStore {
	return &TokenStore{db: db, ttl: ttl, now: time.Now}
}

func (s *TokenStore) Put(ctx context.Context, sessionID, tok string) error {
	if tok == "" {
		return token.ErrEmptyToken
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkout_tokens (session_id, token, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE
		SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at`,
		sessionID, tok, s.now().Add(s.ttl),
	)
	if err != nil {
		return fmt.Errorf("db: put checkout token: %w", err)
	}
	return nil
}

// Take deletes and returns the row in one statement, so only one caller can
// ever see a given token.
func (s *TokenStore) Take(ctx context.Context, sessionID string) (string, bool, error) {
	var tok string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM checkout_tokens WHERE session_id = $1 RETURNING token, expires_at`, sessionID,
	).Scan(&tok, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("db: take checkout token: %w", err)
	}
	if !s.now().Before(expiresAt) {
		return "", false, nil
	}
	return tok, true, nil
}

func (s *TokenStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkout_tokens WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("db: purge checkout tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
