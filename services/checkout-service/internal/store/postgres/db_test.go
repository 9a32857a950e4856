package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"duplicate key", &pq.Error{Code: "23505"}, true},
		{"wrapped duplicate key", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), true},
		{"check violation", &pq.Error{Code: "23514"}, false},
		{"plain error", errors.New("connection reset"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestMigrateError_NamesSQLState(t *testing.T) {
	cause := &pgconn.PgError{Code: "42501", Message: "permission denied for schema public"}

	err := migrateError(fmt.Errorf("exec: %w", cause))

	assert.EqualError(t, err, "db: migrate: permission denied for schema public (SQLSTATE 42501): exec: "+cause.Error())
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "42501", pgErr.Code)

	assert.EqualError(t, migrateError(errors.New("conn closed")), "db: migrate: conn closed")
}

func TestMigrate_RejectsBadConnectionString(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := Migrate(ctx, "postgres://user@localhost:notaport/checkout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: migrate: connect")
}
