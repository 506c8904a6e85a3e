package roles

import "time"

// Permission is a persisted catalog permission.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Role is a named permission set. Version increases with every mutation.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Version     int64        `json:"version"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// PermissionNames returns the names of the role's permissions.
func (r Role) PermissionNames() []string {
	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// RoleInput carries the fields of a create or full update. PermissionIDs
// replaces the role's permission set.
type RoleInput struct {
	Name          string  `json:"name" validate:"required,min=2,max=64"`
	Description   string  `json:"description" validate:"max=255"`
	PermissionIDs []int64 `json:"permissionIds" validate:"dive,gt=0"`
}
