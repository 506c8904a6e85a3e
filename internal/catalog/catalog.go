// Package catalog holds the fixed set of permissions the dashboard understands
// and the naming convention that maps them to capability flags.
package catalog

import "sort"

// Permission is a named, grantable right.
type Permission struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Permission names.
const (
	ViewDashboard    = "view_dashboard"
	ViewUsers        = "view_users"
	ManageUsers      = "manage_users"
	ViewRoles        = "view_roles"
	ManageRoles      = "manage_roles"
	ViewAnalytics    = "view_analytics"
	ManageAnalytics  = "manage_analytics"
	ViewNews         = "view_news"
	ManageNews       = "manage_news"
	ViewSettings     = "view_settings"
	ManageSettings   = "manage_settings"
	ViewCalendar     = "view_calendar"
	ManageCalendar   = "manage_calendar"
	ViewAuditLogs    = "view_audit_logs"
	ManageAuditLogs  = "manage_audit_logs"
	ViewProducts     = "view_products"
	ManageProducts   = "manage_products"
	ViewOnboarding   = "view_onboarding"
	ManageOnboarding = "manage_onboarding"
)

var permissions = []Permission{
	{ViewDashboard, "Can view dashboard"},
	{ViewUsers, "Can view users"},
	{ManageUsers, "Can manage users"},
	{ViewRoles, "Can view roles"},
	{ManageRoles, "Can manage roles"},
	{ViewAnalytics, "Can view analytics"},
	{ManageAnalytics, "Can manage analytics"},
	{ViewNews, "Can view news"},
	{ManageNews, "Can manage news"},
	{ViewSettings, "Can view settings"},
	{ManageSettings, "Can manage settings"},
	{ViewCalendar, "Can view calendar"},
	{ManageCalendar, "Can manage calendar"},
	{ViewAuditLogs, "Can view audit logs"},
	{ManageAuditLogs, "Can manage audit logs"},
	{ViewProducts, "Can view products"},
	{ManageProducts, "Can manage products"},
	{ViewOnboarding, "Can view onboarding"},
	{ManageOnboarding, "Can manage onboarding"},
}

var known = func() map[string]Permission {
	m := make(map[string]Permission, len(permissions))
	for _, p := range permissions {
		m[p.Name] = p
	}
	return m
}()

// Permissions returns the catalog ordered lexicographically by name.
func Permissions() []Permission {
	out := make([]Permission, len(permissions))
	copy(out, permissions)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the sorted permission names.
func Names() []string {
	perms := Permissions()
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return names
}

// Known reports whether name is a catalog permission.
func Known(name string) bool {
	_, ok := known[name]
	return ok
}

// Lookup returns the catalog entry for name.
func Lookup(name string) (Permission, bool) {
	p, ok := known[name]
	return p, ok
}
