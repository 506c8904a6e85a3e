package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/catalog"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListUsers(ctx context.Context, filters ListFilters, limit, offset int) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
}

// Service handles user business logic.
type Service struct {
	repo        RepositoryPort
	defaultRole string
	hashCost    int
}

// NewService builds Service instance. defaultRole is assigned on signup.
func NewService(repo RepositoryPort, defaultRole string) *Service {
	if defaultRole == "" {
		defaultRole = catalog.RoleUser
	}
	return &Service{repo: repo, defaultRole: defaultRole, hashCost: bcrypt.DefaultCost}
}

// ListUsers returns a page of users.
func (s *Service) ListUsers(ctx context.Context, filters ListFilters) ([]User, shared.Pagination, error) {
	page, perPage := shared.NormalizePage(filters.Page, filters.PerPage, 20, 100)
	p := shared.Pagination{Page: page, PerPage: perPage}
	users, total, err := s.repo.ListUsers(ctx, filters, perPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(page, perPage, total), nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// Signup registers a user with the default role.
func (s *Service) Signup(ctx context.Context, in SignupInput) (User, error) {
	email := normalizeEmail(in.Email)
	hash, err := s.hash(in.Password)
	if err != nil {
		return User{}, err
	}

	var created User
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.RoleByName(ctx, s.defaultRole)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("default role %q is not seeded", s.defaultRole)
			}
			return err
		}
		u, err := tx.InsertUser(ctx, newUser{Email: email, Name: strings.TrimSpace(in.Name), PasswordHash: hash, RoleID: role.ID})
		if err != nil {
			return err
		}
		u.RoleName = role.Name
		if err := tx.RecordAudit(ctx, u.ID, audit.ActionSignup, fmt.Sprintf("User %q signed up", u.Email)); err != nil {
			return err
		}
		created = u
		return nil
	})
	if err != nil {
		return User{}, fmt.Errorf("signup: %w", err)
	}
	return created, nil
}

// Create adds a user with an explicit role on behalf of actorID. Roles other
// than the default need grantRoles.
func (s *Service) Create(ctx context.Context, actorID int64, in CreateInput, grantRoles bool) (User, error) {
	email := normalizeEmail(in.Email)
	hash, err := s.hash(in.Password)
	if err != nil {
		return User{}, err
	}

	var created User
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.RoleByID(ctx, in.RoleID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: unknown role %d", shared.ErrValidation, in.RoleID)
			}
			return err
		}
		if role.Name != s.defaultRole && !grantRoles {
			return fmt.Errorf("%w: role %q requires %s", shared.ErrForbidden, role.Name, catalog.ManageRoles)
		}
		u, err := tx.InsertUser(ctx, newUser{Email: email, Name: strings.TrimSpace(in.Name), PasswordHash: hash, RoleID: role.ID})
		if err != nil {
			return err
		}
		u.RoleName = role.Name
		details := fmt.Sprintf("Created user %q with role %q", u.Email, role.Name)
		if err := tx.RecordAudit(ctx, actorID, audit.ActionCreateUser, details); err != nil {
			return err
		}
		created = u
		return nil
	})
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// AssignRole moves a user to roleName. The change applies to the user's live
// sessions on their next request.
func (s *Service) AssignRole(ctx context.Context, actorID, userID int64, roleName string) (User, error) {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return User{}, fmt.Errorf("%w: role required", shared.ErrValidation)
	}

	var updated User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		u, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		role, err := tx.RoleByName(ctx, roleName)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: unknown role %q", shared.ErrValidation, roleName)
			}
			return err
		}
		if err := tx.UpdateRole(ctx, userID, role.ID); err != nil {
			return err
		}
		details := fmt.Sprintf("Assigned role %q to user %q (was %q)", role.Name, u.Email, u.RoleName)
		if err := tx.RecordAudit(ctx, actorID, audit.ActionAssignRole, details); err != nil {
			return err
		}
		u.RoleID, u.RoleName = role.ID, role.Name
		updated = u
		return nil
	})
	if err != nil {
		return User{}, fmt.Errorf("assign role: %w", err)
	}
	return updated, nil
}

// SetActive enables or disables a user. Actors cannot disable themselves.
func (s *Service) SetActive(ctx context.Context, actorID, userID int64, active bool) (User, error) {
	if !active && actorID == userID {
		return User{}, fmt.Errorf("%w: cannot deactivate your own account", shared.ErrValidation)
	}

	var updated User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		u, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.UpdateActive(ctx, userID, active); err != nil {
			return err
		}
		state := "deactivated"
		if active {
			state = "activated"
		}
		if err := tx.RecordAudit(ctx, actorID, audit.ActionSetUserStatus, fmt.Sprintf("User %q %s", u.Email, state)); err != nil {
			return err
		}
		u.IsActive = active
		updated = u
		return nil
	})
	if err != nil {
		return User{}, fmt.Errorf("set user status: %w", err)
	}
	return updated, nil
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("%w: password must be at least 8 characters", shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
