package rbac

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

func TestPgStoreRoleForUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPgStore(mock)

	mock.ExpectQuery(`SELECT r\.id, r\.name, r\.version, u\.is_active\s+FROM users u`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "version", "is_active"}).
			AddRow(int64(2), "manager", int64(4), true))
	mock.ExpectQuery(`FROM users u`).
		WithArgs(int64(6)).
		WillReturnError(pgx.ErrNoRows)

	ref, err := store.RoleForUser(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, RoleRef{ID: 2, Name: "manager", Version: 4, Active: true}, ref)

	_, err = store.RoleForUser(context.Background(), 6)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreRoleByName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPgStore(mock)
	mock.ExpectQuery(`SELECT id, name, version FROM roles WHERE name = \$1`).
		WithArgs("admin").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "version"}).AddRow(int64(1), "admin", int64(1)))

	ref, err := store.RoleByName(context.Background(), "admin")
	require.NoError(t, err)
	assert.True(t, ref.Active)
	assert.Equal(t, int64(1), ref.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreLoadGrant(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPgStore(mock)
	mock.ExpectQuery(`array_agg\(p\.name ORDER BY p\.name\)`).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"version", "permissions"}).
			AddRow(int64(3), []string{"manage_products", "view_users"}))
	mock.ExpectQuery(`array_agg`).
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	grant, err := store.LoadGrant(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), grant.Version)
	assert.True(t, grant.Has("view_users"))
	assert.False(t, grant.Has("manage_roles"))

	_, err = store.LoadGrant(context.Background(), 9)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
