package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// ErrInvalidCredentials is returned for any failed login.
var ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", shared.ErrUnauthorized)

// Sessions stores authenticated principals.
type Sessions interface {
	Put(ctx context.Context, p shared.Principal) (string, error)
	Revoke(ctx context.Context, id string) error
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	sessions Sessions
}

// NewService constructs a new Service.
func NewService(repo Repository, sessions Sessions) *Service {
	return &Service{repo: repo, sessions: sessions}
}

// Login validates credentials and opens a session. The returned principal
// carries the role at login time; authorization re-reads it on every check.
func (s *Service) Login(ctx context.Context, in LoginInput) (string, shared.Principal, error) {
	account, err := s.repo.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", shared.Principal{}, ErrInvalidCredentials
		}
		return "", shared.Principal{}, err
	}
	if !account.IsActive {
		return "", shared.Principal{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(in.Password)); err != nil {
		return "", shared.Principal{}, ErrInvalidCredentials
	}
	p := shared.Principal{UserID: account.ID, Email: account.Email, RoleName: account.RoleName}
	id, err := s.sessions.Put(ctx, p)
	if err != nil {
		return "", shared.Principal{}, err
	}
	return id, p, nil
}

// Logout removes a session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID)
}
