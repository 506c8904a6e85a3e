package roles

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/db"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

var roleColumns = []string{"id", "name", "COALESCE(description, '')", "version", "created_at", "updated_at"}

// Repository provides PostgreSQL backed persistence for roles and permissions.
type Repository struct {
	pool     db.Pool
	recorder *audit.Recorder
	builder  squirrel.StatementBuilderType
}

// NewRepository constructs a repository. Audit entries for role mutations are
// written through recorder inside the mutation's transaction.
func NewRepository(pool db.Pool, recorder *audit.Recorder) *Repository {
	return &Repository{
		pool:     pool,
		recorder: recorder,
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	// Role operations
	LockRole(ctx context.Context, id int64) (Role, error)
	FindRoleByName(ctx context.Context, name string) (Role, error)
	InsertRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	CountUsers(ctx context.Context, roleID int64) (int64, error)

	// Permission operations
	PermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error)
	UpsertPermission(ctx context.Context, name, description string) (Permission, error)
	ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

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

// ============================================================================
// READ OPERATIONS
// ============================================================================

// ListRoles returns all roles with their permissions, ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	stmt, args, err := r.builder.Select(roleColumns...).From("roles").OrderBy("name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}
	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := make([]Role, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Version, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		role.Permissions = []Permission{}
		roles = append(roles, role)
		ids = append(ids, role.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	if len(ids) == 0 {
		return roles, nil
	}

	perms, err := permissionsFor(ctx, r.pool, r.builder, ids)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		if p, ok := perms[roles[i].ID]; ok {
			roles[i].Permissions = p
		}
	}
	return roles, nil
}

// GetRole returns a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return findRole(ctx, r.pool, r.builder, squirrel.Eq{"id": id}, false)
}

// FindByName returns a role by its unique name.
func (r *Repository) FindByName(ctx context.Context, name string) (Role, error) {
	return findRole(ctx, r.pool, r.builder, squirrel.Eq{"name": name}, false)
}

// ListPermissions returns persisted permissions ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	stmt, args, err := r.builder.Select("id", "name", "COALESCE(description, '')").
		From("permissions").
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list permissions sql: %w", err)
	}
	return scanPermissions(ctx, r.pool, stmt, args...)
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

func (t *txRepo) LockRole(ctx context.Context, id int64) (Role, error) {
	return findRole(ctx, t.tx, t.builder, squirrel.Eq{"id": id}, true)
}

func (t *txRepo) FindRoleByName(ctx context.Context, name string) (Role, error) {
	return findRole(ctx, t.tx, t.builder, squirrel.Eq{"name": name}, false)
}

func (t *txRepo) InsertRole(ctx context.Context, name, description string) (Role, error) {
	stmt, args, err := t.builder.Insert("roles").
		Columns("name", "description").
		Values(name, description).
		Suffix("RETURNING id, version, created_at, updated_at").
		ToSql()
	if err != nil {
		return Role{}, fmt.Errorf("build insert role sql: %w", err)
	}
	role := Role{Name: name, Description: description, Permissions: []Permission{}}
	if err := t.tx.QueryRow(ctx, stmt, args...).Scan(&role.ID, &role.Version, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err, "") {
			return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, name)
		}
		return Role{}, fmt.Errorf("insert role: %w", err)
	}
	return role, nil
}

func (t *txRepo) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	stmt, args, err := t.builder.Update("roles").
		Set("name", name).
		Set("description", description).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING version, created_at, updated_at").
		ToSql()
	if err != nil {
		return Role{}, fmt.Errorf("build update role sql: %w", err)
	}
	role := Role{ID: id, Name: name, Description: description}
	if err := t.tx.QueryRow(ctx, stmt, args...).Scan(&role.Version, &role.CreatedAt, &role.UpdatedAt); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return Role{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, id)
		case db.IsUniqueViolation(err, ""):
			return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, name)
		}
		return Role{}, fmt.Errorf("update role: %w", err)
	}
	return role, nil
}

func (t *txRepo) DeleteRole(ctx context.Context, id int64) error {
	stmt, args, err := t.builder.Delete("roles").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete role sql: %w", err)
	}
	tag, err := t.tx.Exec(ctx, stmt, args...)
	if err != nil {
		if db.IsForeignKeyViolation(err, "") {
			return fmt.Errorf("%w: role %d is still assigned", shared.ErrConflict, id)
		}
		return fmt.Errorf("delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: role %d", shared.ErrNotFound, id)
	}
	return nil
}

func (t *txRepo) CountUsers(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, roleID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count role users: %w", err)
	}
	return count, nil
}

func (t *txRepo) PermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error) {
	if len(ids) == 0 {
		return []Permission{}, nil
	}
	stmt, args, err := t.builder.Select("id", "name", "COALESCE(description, '')").
		From("permissions").
		Where("id = ANY(?)", ids).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permissions by id sql: %w", err)
	}
	return scanPermissions(ctx, t.tx, stmt, args...)
}

func (t *txRepo) UpsertPermission(ctx context.Context, name, description string) (Permission, error) {
	stmt, args, err := t.builder.Insert("permissions").
		Columns("name", "description").
		Values(name, description).
		Suffix("ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description RETURNING id, name, COALESCE(description, '')").
		ToSql()
	if err != nil {
		return Permission{}, fmt.Errorf("build upsert permission sql: %w", err)
	}
	var p Permission
	if err := t.tx.QueryRow(ctx, stmt, args...).Scan(&p.ID, &p.Name, &p.Description); err != nil {
		return Permission{}, fmt.Errorf("upsert permission: %w", err)
	}
	return p, nil
}

// ReplacePermissions swaps the role's whole permission set.
func (t *txRepo) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clear role permissions: %w", err)
	}
	if len(permissionIDs) == 0 {
		return nil
	}
	insert := t.builder.Insert("role_permissions").Columns("role_id", "permission_id")
	for _, id := range permissionIDs {
		insert = insert.Values(roleID, id)
	}
	stmt, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build attach permissions sql: %w", err)
	}
	if _, err := t.tx.Exec(ctx, stmt, args...); err != nil {
		if db.IsForeignKeyViolation(err, "") {
			return fmt.Errorf("%w: unknown permission", shared.ErrValidation)
		}
		return fmt.Errorf("attach role permissions: %w", err)
	}
	return nil
}

func (t *txRepo) RecordAudit(ctx context.Context, actorID int64, action, details string) error {
	_, err := t.recorder.RecordTx(ctx, t.tx, actorID, action, details)
	return err
}

// ============================================================================
// HELPERS
// ============================================================================

func findRole(ctx context.Context, q db.Querier, builder squirrel.StatementBuilderType, where squirrel.Sqlizer, lock bool) (Role, error) {
	query := builder.Select(roleColumns...).From("roles").Where(where)
	if lock {
		query = query.Suffix("FOR UPDATE")
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return Role{}, fmt.Errorf("build find role sql: %w", err)
	}
	var role Role
	if err := q.QueryRow(ctx, stmt, args...).Scan(&role.ID, &role.Name, &role.Description, &role.Version, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("%w: role", shared.ErrNotFound)
		}
		return Role{}, fmt.Errorf("find role: %w", err)
	}
	perms, err := permissionsFor(ctx, q, builder, []int64{role.ID})
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms[role.ID]
	if role.Permissions == nil {
		role.Permissions = []Permission{}
	}
	return role, nil
}

func permissionsFor(ctx context.Context, q db.Querier, builder squirrel.StatementBuilderType, roleIDs []int64) (map[int64][]Permission, error) {
	stmt, args, err := builder.Select("rp.role_id", "p.id", "p.name", "COALESCE(p.description, '')").
		From("role_permissions rp").
		Join("permissions p ON p.id = rp.permission_id").
		Where("rp.role_id = ANY(?)", roleIDs).
		OrderBy("p.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build role permissions sql: %w", err)
	}
	rows, err := q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query role permissions: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]Permission, len(roleIDs))
	for rows.Next() {
		var (
			roleID int64
			p      Permission
		)
		if err := rows.Scan(&roleID, &p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("scan role permission: %w", err)
		}
		out[roleID] = append(out[roleID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role permissions: %w", err)
	}
	return out, nil
}

func scanPermissions(ctx context.Context, q db.Querier, stmt string, args ...any) ([]Permission, error) {
	rows, err := q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	perms := make([]Permission, 0)
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return perms, nil
}
