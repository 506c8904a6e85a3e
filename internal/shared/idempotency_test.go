package shared

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyClaim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewIdempotencyStore(mock)

	mock.ExpectExec(`INSERT INTO idempotency_keys`).
		WithArgs("key-1", "notifications", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO idempotency_keys`).
		WithArgs("key-1", "notifications", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	require.NoError(t, store.Claim(context.Background(), nil, "key-1", "notifications"))
	err = store.Claim(context.Background(), mock, "key-1", "notifications")
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyClaimRequiresKey(t *testing.T) {
	store := NewIdempotencyStore(nil)
	err := store.Claim(context.Background(), nil, "", "notifications")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIdempotencyCleanup(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore(mock)
	store.now = func() time.Time { return fixed }

	mock.ExpectExec(`DELETE FROM idempotency_keys`).
		WithArgs(fixed.Add(-24 * time.Hour)).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	removed, err := store.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}
