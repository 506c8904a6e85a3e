package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/catalog"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	FindByName(ctx context.Context, name string) (Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// Service handles role business logic. Every mutation commits together with
// its audit entry.
type Service struct {
	repo        RepositoryPort
	defaultRole string
}

// NewService builds Service instance. defaultRole names the role assigned on
// signup; it can never be deleted.
func NewService(repo RepositoryPort, defaultRole string) *Service {
	if defaultRole == "" {
		defaultRole = catalog.RoleUser
	}
	return &Service{repo: repo, defaultRole: defaultRole}
}

// ListRoles returns all roles with their permissions.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole returns a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// FindByName returns a role by name.
func (s *Service) FindByName(ctx context.Context, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role", shared.ErrNotFound)
	}
	return s.repo.FindByName(ctx, name)
}

// ListPermissions returns the persisted permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreateRole inserts a role with the given permission set.
func (s *Service) CreateRole(ctx context.Context, actorID int64, in RoleInput) (Role, error) {
	name, ids, err := normalizeInput(in)
	if err != nil {
		return Role{}, err
	}

	var created Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		perms, err := resolvePermissions(ctx, tx, ids)
		if err != nil {
			return err
		}
		role, err := tx.InsertRole(ctx, name, strings.TrimSpace(in.Description))
		if err != nil {
			return err
		}
		if err := tx.ReplacePermissions(ctx, role.ID, ids); err != nil {
			return err
		}
		role.Permissions = perms
		details := fmt.Sprintf("Created role %q with %d permissions", role.Name, len(perms))
		if err := tx.RecordAudit(ctx, actorID, audit.ActionCreateRole, details); err != nil {
			return err
		}
		created = role
		return nil
	})
	if err != nil {
		return Role{}, fmt.Errorf("create role: %w", err)
	}
	return created, nil
}

// UpdateRole renames the role and replaces its permission set. The role row
// is locked for the duration and its version is bumped, so cached grants for
// the previous version are never consulted again.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, in RoleInput) (Role, error) {
	name, ids, err := normalizeInput(in)
	if err != nil {
		return Role{}, err
	}

	var updated Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockRole(ctx, id)
		if err != nil {
			return err
		}
		if current.Name == s.defaultRole && name != current.Name {
			return fmt.Errorf("%w: the default role %q cannot be renamed", shared.ErrConflict, current.Name)
		}
		perms, err := resolvePermissions(ctx, tx, ids)
		if err != nil {
			return err
		}
		role, err := tx.UpdateRole(ctx, id, name, strings.TrimSpace(in.Description))
		if err != nil {
			return err
		}
		if err := tx.ReplacePermissions(ctx, id, ids); err != nil {
			return err
		}
		role.Permissions = perms
		details := fmt.Sprintf("Updated role %q with %d permissions", role.Name, len(perms))
		if err := tx.RecordAudit(ctx, actorID, audit.ActionUpdateRole, details); err != nil {
			return err
		}
		updated = role
		return nil
	})
	if err != nil {
		return Role{}, fmt.Errorf("update role: %w", err)
	}
	return updated, nil
}

// DeleteRole removes a role that no user references. The default signup role
// is never deleted.
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.LockRole(ctx, id)
		if err != nil {
			return err
		}
		if role.Name == s.defaultRole {
			return fmt.Errorf("%w: the default role %q cannot be deleted", shared.ErrConflict, role.Name)
		}
		count, err := tx.CountUsers(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: role %q is assigned to %d users", shared.ErrConflict, role.Name, count)
		}
		if err := tx.DeleteRole(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, actorID, audit.ActionDeleteRole, fmt.Sprintf("Deleted role %q", role.Name))
	})
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}

// EnsurePermission creates or describes a catalog permission. Names outside
// the catalog are rejected.
func (s *Service) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	if !catalog.Known(name) {
		return Permission{}, fmt.Errorf("%w: %q is not a catalog permission", shared.ErrValidation, name)
	}
	var perm Permission
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		perm, err = tx.UpsertPermission(ctx, name, description)
		return err
	})
	if err != nil {
		return Permission{}, fmt.Errorf("ensure permission: %w", err)
	}
	return perm, nil
}

// SeedResult reports what Seed changed.
type SeedResult struct {
	Permissions  int
	CreatedRoles []string
}

// Seed upserts the catalog permissions and creates the default roles that do
// not exist yet. Existing roles keep their permission sets.
func (s *Service) Seed(ctx context.Context) (SeedResult, error) {
	var result SeedResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ids := make(map[string]int64, len(catalog.Names()))
		for _, p := range catalog.Permissions() {
			perm, err := tx.UpsertPermission(ctx, p.Name, p.Description)
			if err != nil {
				return err
			}
			ids[perm.Name] = perm.ID
		}
		result.Permissions = len(ids)

		for _, tmpl := range catalog.DefaultRoles() {
			_, err := tx.FindRoleByName(ctx, tmpl.Name)
			if err == nil {
				continue
			}
			if !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			role, err := tx.InsertRole(ctx, tmpl.Name, tmpl.Description)
			if err != nil {
				return err
			}
			permIDs := make([]int64, 0, len(tmpl.Permissions))
			for _, name := range tmpl.Permissions {
				permIDs = append(permIDs, ids[name])
			}
			if err := tx.ReplacePermissions(ctx, role.ID, permIDs); err != nil {
				return err
			}
			details := fmt.Sprintf("Created role %q with %d permissions", role.Name, len(permIDs))
			if err := tx.RecordAudit(ctx, 0, audit.ActionCreateRole, details); err != nil {
				return err
			}
			result.CreatedRoles = append(result.CreatedRoles, role.Name)
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, fmt.Errorf("seed roles: %w", err)
	}
	return result, nil
}

func normalizeInput(in RoleInput) (string, []int64, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", nil, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	seen := make(map[int64]struct{}, len(in.PermissionIDs))
	ids := make([]int64, 0, len(in.PermissionIDs))
	for _, id := range in.PermissionIDs {
		if id <= 0 {
			return "", nil, fmt.Errorf("%w: invalid permission id %d", shared.ErrValidation, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return name, ids, nil
}

// resolvePermissions loads ids and checks that each exists and belongs to
// the catalog.
func resolvePermissions(ctx context.Context, tx TxRepository, ids []int64) ([]Permission, error) {
	perms, err := tx.PermissionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(perms) != len(ids) {
		return nil, fmt.Errorf("%w: unknown permission id", shared.ErrValidation)
	}
	for _, p := range perms {
		if !catalog.Known(p.Name) {
			return nil, fmt.Errorf("%w: %q is not a catalog permission", shared.ErrValidation, p.Name)
		}
	}
	return perms, nil
}
