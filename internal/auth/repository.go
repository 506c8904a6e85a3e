package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/AmirIqbalKhan/dashboard/internal/platform/db"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	q       db.Querier
	builder squirrel.StatementBuilderType
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(q db.Querier) *PGRepository {
	return &PGRepository{q: q, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	stmt, args, err := r.builder.Select("u.id", "u.email", "u.password_hash", "r.name", "u.is_active").
		From("users u").
		Join("roles r ON r.id = u.role_id").
		Where(squirrel.Eq{"u.email": strings.ToLower(strings.TrimSpace(email))}).
		ToSql()
	if err != nil {
		return Account{}, fmt.Errorf("build find account sql: %w", err)
	}
	var a Account
	if err := r.q.QueryRow(ctx, stmt, args...).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.RoleName, &a.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

var _ Repository = (*PGRepository)(nil)
