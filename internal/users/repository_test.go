package users

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

var userRowColumns = []string{"id", "email", "name", "role_id", "name", "is_active", "created_at", "updated_at"}

func newPgRepository(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock, audit.NewRecorder(mock)), mock
}

func TestRepositoryListUsersFilters(t *testing.T) {
	repo, mock := newPgRepository(t)
	now := time.Now()
	active := true

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users u JOIN roles r ON r\.id = u\.role_id WHERE \(r\.name = \$1 AND u\.is_active = \$2\)`).
		WithArgs("admin", true).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`FROM users u JOIN roles r ON r\.id = u\.role_id WHERE \(r\.name = \$1 AND u\.is_active = \$2\) ORDER BY u\.id LIMIT 10 OFFSET 10`).
		WithArgs("admin", true).
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow(int64(11), "a@example.com", "A", int64(1), "admin", true, now, now))

	users, total, err := repo.ListUsers(context.Background(), ListFilters{Role: "admin", IsActive: &active}, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0].RoleName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetUserNotFound(t *testing.T) {
	repo, mock := newPgRepository(t)

	mock.ExpectQuery(`FROM users u JOIN roles r ON r\.id = u\.role_id WHERE u\.id = \$1`).
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetUser(context.Background(), 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryAssignRoleCommitsWithAudit(t *testing.T) {
	repo, mock := newPgRepository(t)
	svc := NewService(repo, "")
	now := time.Now()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`WHERE u\.id = \$1 FOR UPDATE OF u`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow(int64(5), "e@example.com", "E", int64(3), "user", true, now, now))
	mock.ExpectQuery(`SELECT id, name FROM roles WHERE name = \$1`).
		WithArgs("manager").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow(int64(2), "manager"))
	mock.ExpectExec(`UPDATE users SET role_id = \$1, updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs(int64(2), int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO audit_log`).
		WithArgs(pgtype.Int8{Int64: 1, Valid: true}, audit.ActionAssignRole,
			pgtype.Text{String: `Assigned role "manager" to user "e@example.com" (was "user")`, Valid: true}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))
	mock.ExpectCommit()

	u, err := svc.AssignRole(context.Background(), 1, 5, "manager")
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.RoleID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryInsertDuplicateEmail(t *testing.T) {
	repo, mock := newPgRepository(t)
	svc := NewService(repo, "")
	svc.hashCost = 4

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`SELECT id, name FROM roles WHERE name = \$1`).
		WithArgs("user").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow(int64(3), "user"))
	mock.ExpectQuery(`INSERT INTO users \(email,name,password_hash,role_id\) VALUES \(\$1,\$2,\$3,\$4\) RETURNING id, is_active, created_at, updated_at`).
		WithArgs("a@example.com", "A", pgxmock.AnyArg(), int64(3)).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := svc.Signup(context.Background(), SignupInput{Email: "a@example.com", Name: "A", Password: "password1"})
	assert.ErrorIs(t, err, shared.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}
