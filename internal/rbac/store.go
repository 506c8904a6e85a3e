package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/AmirIqbalKhan/dashboard/internal/platform/db"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// Store reads the persisted role graph. It is the only source consulted when
// authorizing.
type Store interface {
	RoleForUser(ctx context.Context, userID int64) (RoleRef, error)
	RoleByName(ctx context.Context, name string) (RoleRef, error)
	LoadGrant(ctx context.Context, roleID int64) (Grant, error)
}

const (
	roleForUserSQL = `SELECT r.id, r.name, r.version, u.is_active
FROM users u
JOIN roles r ON r.id = u.role_id
WHERE u.id = $1`

	roleByNameSQL = `SELECT id, name, version FROM roles WHERE name = $1`

	// Version and permission names are read in one statement so a grant is
	// never assembled from two different role versions.
	loadGrantSQL = `SELECT r.version,
       COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE r.id = $1
GROUP BY r.id, r.version`
)

// PgStore implements Store on PostgreSQL.
type PgStore struct {
	q db.Querier
}

// NewPgStore constructs a PgStore.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

// RoleForUser resolves the user's current role.
func (s *PgStore) RoleForUser(ctx context.Context, userID int64) (RoleRef, error) {
	var ref RoleRef
	err := s.q.QueryRow(ctx, roleForUserSQL, userID).Scan(&ref.ID, &ref.Name, &ref.Version, &ref.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleRef{}, fmt.Errorf("%w: user %d", shared.ErrNotFound, userID)
		}
		return RoleRef{}, fmt.Errorf("rbac: resolve user role: %w", err)
	}
	return ref, nil
}

// RoleByName resolves a role by its unique name.
func (s *PgStore) RoleByName(ctx context.Context, name string) (RoleRef, error) {
	ref := RoleRef{Active: true}
	err := s.q.QueryRow(ctx, roleByNameSQL, name).Scan(&ref.ID, &ref.Name, &ref.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleRef{}, fmt.Errorf("%w: role %q", shared.ErrNotFound, name)
		}
		return RoleRef{}, fmt.Errorf("rbac: resolve role: %w", err)
	}
	return ref, nil
}

// LoadGrant reads the role's permission names together with its version.
func (s *PgStore) LoadGrant(ctx context.Context, roleID int64) (Grant, error) {
	g := Grant{RoleID: roleID}
	err := s.q.QueryRow(ctx, loadGrantSQL, roleID).Scan(&g.Version, &g.Permissions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grant{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
		}
		return Grant{}, fmt.Errorf("rbac: load grant: %w", err)
	}
	return g, nil
}
