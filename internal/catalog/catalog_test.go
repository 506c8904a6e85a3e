package catalog

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionsSortedAndUnique(t *testing.T) {
	perms := Permissions()
	require.Len(t, perms, 19)

	names := make([]string, len(perms))
	seen := map[string]bool{}
	for i, p := range perms {
		names[i] = p.Name
		assert.False(t, seen[p.Name], "duplicate %s", p.Name)
		seen[p.Name] = true
		assert.NotEmpty(t, p.Description)
	}
	assert.True(t, sort.StringsAreSorted(names))
	assert.Equal(t, names, Names())
}

func TestCapabilityNameRoundTrip(t *testing.T) {
	assert.Equal(t, "canViewUsers", CapabilityName(ViewUsers))
	assert.Equal(t, "canManageAuditLogs", CapabilityName(ManageAuditLogs))

	for _, name := range Names() {
		assert.Equal(t, name, Normalize(CapabilityName(name)), name)
		assert.Equal(t, name, Normalize(name), name)
	}
}

func TestNormalizeRejectsUnknown(t *testing.T) {
	for _, id := range []string{"", "  ", "canFly", "can", "cannot_view", "view_everything", "canviewUsers", "delete_users"} {
		assert.Empty(t, Normalize(id), id)
	}
	assert.Equal(t, ViewUsers, Normalize(" VIEW_USERS "))
}

func TestFlagsFailClosed(t *testing.T) {
	flags := NoCapabilities()
	require.Len(t, flags, 19)
	for name, v := range flags {
		assert.False(t, v, name)
	}

	flags = Flags([]string{ViewUsers, ManageProducts, "not_in_catalog"})
	assert.True(t, flags["canViewUsers"])
	assert.True(t, flags["canManageProducts"])
	assert.False(t, flags["canManageRoles"])
	_, present := flags["canNotInCatalog"]
	assert.False(t, present)
}

func TestDefaultRolesStayInsideCatalog(t *testing.T) {
	roles := DefaultRoles()
	require.Len(t, roles, 3)
	for _, r := range roles {
		for _, p := range r.Permissions {
			assert.True(t, Known(p), "%s grants unknown %s", r.Name, p)
		}
	}

	byName := map[string]RoleTemplate{}
	for _, r := range roles {
		byName[r.Name] = r
	}
	assert.Len(t, byName[RoleAdmin].Permissions, 19)
	assert.NotContains(t, byName[RoleManager].Permissions, ManageRoles)
	assert.NotContains(t, byName[RoleManager].Permissions, ManageAuditLogs)
	assert.Contains(t, byName[RoleManager].Permissions, ManageUsers)
	assert.ElementsMatch(t, []string{ViewCalendar, ViewDashboard, ViewNews, ViewProducts}, byName[RoleUser].Permissions)
}
