package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/db"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

var userColumns = []string{"u.id", "u.email", "u.name", "u.role_id", "r.name", "u.is_active", "u.created_at", "u.updated_at"}

// RoleRef identifies a role by id and name.
type RoleRef struct {
	ID   int64
	Name string
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool     db.Pool
	recorder *audit.Recorder
	builder  squirrel.StatementBuilderType
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool, recorder *audit.Recorder) *Repository {
	return &Repository{
		pool:     pool,
		recorder: recorder,
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	RoleByID(ctx context.Context, id int64) (RoleRef, error)
	RoleByName(ctx context.Context, name string) (RoleRef, error)
	LockUser(ctx context.Context, id int64) (User, error)
	InsertUser(ctx context.Context, u newUser) (User, error)
	UpdateRole(ctx context.Context, userID, roleID int64) error
	UpdateActive(ctx context.Context, userID int64, active bool) error
	RecordAudit(ctx context.Context, actorID int64, action, details string) error
}

type txRepo struct {
	tx       pgx.Tx
	recorder *audit.Recorder
	builder  squirrel.StatementBuilderType
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, recorder: r.recorder, builder: r.builder})
	})
}

// ListUsers returns a page of users ordered by id together with the total count.
func (r *Repository) ListUsers(ctx context.Context, filters ListFilters, limit, offset int) ([]User, int, error) {
	where := squirrel.And{}
	if search := strings.TrimSpace(filters.Search); search != "" {
		pattern := "%" + search + "%"
		where = append(where, squirrel.Or{
			squirrel.ILike{"u.email": pattern},
			squirrel.ILike{"u.name": pattern},
		})
	}
	if role := strings.TrimSpace(filters.Role); role != "" {
		where = append(where, squirrel.Eq{"r.name": role})
	}
	if filters.IsActive != nil {
		where = append(where, squirrel.Eq{"u.is_active": *filters.IsActive})
	}

	countStmt, countArgs, err := r.builder.Select("COUNT(*)").
		From("users u").
		Join("roles r ON r.id = u.role_id").
		Where(where).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count users sql: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countStmt, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	stmt, args, err := r.builder.Select(userColumns...).
		From("users u").
		Join("roles r ON r.id = u.role_id").
		Where(where).
		OrderBy("u.id").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list users sql: %w", err)
	}
	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0, limit)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.RoleID, &u.RoleName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return users, total, nil
}

// GetUser returns a user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	return findUser(ctx, r.pool, r.builder, id, false)
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

func (t *txRepo) RoleByID(ctx context.Context, id int64) (RoleRef, error) {
	return t.findRole(ctx, squirrel.Eq{"id": id})
}

func (t *txRepo) RoleByName(ctx context.Context, name string) (RoleRef, error) {
	return t.findRole(ctx, squirrel.Eq{"name": name})
}

func (t *txRepo) findRole(ctx context.Context, where squirrel.Eq) (RoleRef, error) {
	stmt, args, err := t.builder.Select("id", "name").From("roles").Where(where).ToSql()
	if err != nil {
		return RoleRef{}, fmt.Errorf("build find role sql: %w", err)
	}
	var ref RoleRef
	if err := t.tx.QueryRow(ctx, stmt, args...).Scan(&ref.ID, &ref.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleRef{}, fmt.Errorf("%w: role", shared.ErrNotFound)
		}
		return RoleRef{}, fmt.Errorf("find role: %w", err)
	}
	return ref, nil
}

func (t *txRepo) LockUser(ctx context.Context, id int64) (User, error) {
	return findUser(ctx, t.tx, t.builder, id, true)
}

func (t *txRepo) InsertUser(ctx context.Context, u newUser) (User, error) {
	stmt, args, err := t.builder.Insert("users").
		Columns("email", "name", "password_hash", "role_id").
		Values(u.Email, u.Name, u.PasswordHash, u.RoleID).
		Suffix("RETURNING id, is_active, created_at, updated_at").
		ToSql()
	if err != nil {
		return User{}, fmt.Errorf("build insert user sql: %w", err)
	}
	out := User{Email: u.Email, Name: u.Name, RoleID: u.RoleID}
	if err := t.tx.QueryRow(ctx, stmt, args...).Scan(&out.ID, &out.IsActive, &out.CreatedAt, &out.UpdatedAt); err != nil {
		switch {
		case db.IsUniqueViolation(err, ""):
			return User{}, fmt.Errorf("%w: email %q already registered", shared.ErrConflict, u.Email)
		case db.IsForeignKeyViolation(err, ""):
			return User{}, fmt.Errorf("%w: unknown role", shared.ErrValidation)
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return out, nil
}

func (t *txRepo) UpdateRole(ctx context.Context, userID, roleID int64) error {
	return t.update(ctx, userID, "role_id", roleID)
}

func (t *txRepo) UpdateActive(ctx context.Context, userID int64, active bool) error {
	return t.update(ctx, userID, "is_active", active)
}

func (t *txRepo) update(ctx context.Context, userID int64, column string, value any) error {
	stmt, args, err := t.builder.Update("users").
		Set(column, value).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}
	tag, err := t.tx.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update user %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, userID)
	}
	return nil
}

func (t *txRepo) RecordAudit(ctx context.Context, actorID int64, action, details string) error {
	_, err := t.recorder.RecordTx(ctx, t.tx, actorID, action, details)
	return err
}

func findUser(ctx context.Context, q db.Querier, builder squirrel.StatementBuilderType, id int64, lock bool) (User, error) {
	query := builder.Select(userColumns...).
		From("users u").
		Join("roles r ON r.id = u.role_id").
		Where(squirrel.Eq{"u.id": id})
	if lock {
		query = query.Suffix("FOR UPDATE OF u")
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return User{}, fmt.Errorf("build find user sql: %w", err)
	}
	var u User
	if err := q.QueryRow(ctx, stmt, args...).Scan(&u.ID, &u.Email, &u.Name, &u.RoleID, &u.RoleName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}
