package catalog

// Default role names.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// RoleTemplate describes a role created when the database is seeded.
// Templates are not consulted when authorizing requests.
type RoleTemplate struct {
	Name        string
	Description string
	Permissions []string
}

// DefaultRoles returns the roles seeded into a fresh database.
func DefaultRoles() []RoleTemplate {
	managerDenied := map[string]bool{
		ManageRoles:     true,
		ViewRoles:       true,
		ManageAuditLogs: true,
		ManageAnalytics: true,
	}
	manager := make([]string, 0, len(permissions))
	for _, name := range Names() {
		if !managerDenied[name] {
			manager = append(manager, name)
		}
	}
	return []RoleTemplate{
		{Name: RoleAdmin, Description: "Full access", Permissions: Names()},
		{Name: RoleManager, Description: "Manages content, users and products", Permissions: manager},
		{Name: RoleUser, Description: "Default role for new accounts", Permissions: []string{
			ViewCalendar,
			ViewDashboard,
			ViewNews,
			ViewProducts,
		}},
	}
}
