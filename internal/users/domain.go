package users

import "time"

// User represents a user account for management.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	RoleID    int64     `json:"roleId"`
	RoleName  string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SignupInput is a self-service registration.
type SignupInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// CreateInput is an administrative account creation.
type CreateInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	RoleID   int64  `json:"roleId" validate:"required,gt=0"`
}

// ListFilters narrows a user listing.
type ListFilters struct {
	Search   string
	Role     string
	IsActive *bool
	Page     int
	PerPage  int
}

type newUser struct {
	Email        string
	Name         string
	PasswordHash string
	RoleID       int64
}
