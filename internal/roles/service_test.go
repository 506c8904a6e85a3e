package roles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/catalog"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockState struct {
	roles       map[int64]Role
	attachments map[int64][]int64
	audits      []string
	nextRoleID  int64
	nextPermID  int64
	permissions map[int64]Permission
}

func (s mockState) clone() mockState {
	out := mockState{
		roles:       make(map[int64]Role, len(s.roles)),
		attachments: make(map[int64][]int64, len(s.attachments)),
		audits:      append([]string(nil), s.audits...),
		nextRoleID:  s.nextRoleID,
		nextPermID:  s.nextPermID,
		permissions: make(map[int64]Permission, len(s.permissions)),
	}
	for k, v := range s.roles {
		out.roles[k] = v
	}
	for k, v := range s.attachments {
		out.attachments[k] = append([]int64(nil), v...)
	}
	for k, v := range s.permissions {
		out.permissions[k] = v
	}
	return out
}

type mockRepository struct {
	state      mockState
	userCounts map[int64]int64

	// Error injection
	txError      error
	auditError   error
	replaceError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		state: mockState{
			roles:       make(map[int64]Role),
			attachments: make(map[int64][]int64),
			permissions: make(map[int64]Permission),
			nextRoleID:  1,
			nextPermID:  1,
		},
		userCounts: make(map[int64]int64),
	}
}

func (m *mockRepository) seedPermissions(names ...string) map[string]int64 {
	ids := make(map[string]int64, len(names))
	for _, name := range names {
		id := m.state.nextPermID
		m.state.nextPermID++
		m.state.permissions[id] = Permission{ID: id, Name: name}
		ids[name] = id
	}
	return ids
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	snapshot := m.state.clone()
	if err := fn(ctx, &mockTxRepo{mock: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *mockRepository) withPermissions(role Role) Role {
	role.Permissions = []Permission{}
	for _, id := range m.state.attachments[role.ID] {
		role.Permissions = append(role.Permissions, m.state.permissions[id])
	}
	sort.Slice(role.Permissions, func(i, j int) bool { return role.Permissions[i].Name < role.Permissions[j].Name })
	return role
}

func (m *mockRepository) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(m.state.roles))
	for _, r := range m.state.roles {
		out = append(out, m.withPermissions(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	r, ok := m.state.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role", shared.ErrNotFound)
	}
	return m.withPermissions(r), nil
}

func (m *mockRepository) FindByName(ctx context.Context, name string) (Role, error) {
	for _, r := range m.state.roles {
		if r.Name == name {
			return m.withPermissions(r), nil
		}
	}
	return Role{}, fmt.Errorf("%w: role", shared.ErrNotFound)
}

func (m *mockRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(m.state.permissions))
	for _, p := range m.state.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) LockRole(ctx context.Context, id int64) (Role, error) {
	return t.mock.GetRole(ctx, id)
}

func (t *mockTxRepo) FindRoleByName(ctx context.Context, name string) (Role, error) {
	return t.mock.FindByName(ctx, name)
}

func (t *mockTxRepo) InsertRole(ctx context.Context, name, description string) (Role, error) {
	if _, err := t.mock.FindByName(ctx, name); err == nil {
		return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, name)
	}
	id := t.mock.state.nextRoleID
	t.mock.state.nextRoleID++
	role := Role{ID: id, Name: name, Description: description, Version: 1, Permissions: []Permission{}}
	t.mock.state.roles[id] = role
	return role, nil
}

func (t *mockTxRepo) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	role, ok := t.mock.state.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, id)
	}
	for otherID, other := range t.mock.state.roles {
		if otherID != id && other.Name == name {
			return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, name)
		}
	}
	role.Name = name
	role.Description = description
	role.Version++
	t.mock.state.roles[id] = role
	return role, nil
}

func (t *mockTxRepo) DeleteRole(ctx context.Context, id int64) error {
	delete(t.mock.state.roles, id)
	delete(t.mock.state.attachments, id)
	return nil
}

func (t *mockTxRepo) CountUsers(ctx context.Context, roleID int64) (int64, error) {
	return t.mock.userCounts[roleID], nil
}

func (t *mockTxRepo) PermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error) {
	out := make([]Permission, 0, len(ids))
	for _, id := range ids {
		if p, ok := t.mock.state.permissions[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *mockTxRepo) UpsertPermission(ctx context.Context, name, description string) (Permission, error) {
	for id, p := range t.mock.state.permissions {
		if p.Name == name {
			p.Description = description
			t.mock.state.permissions[id] = p
			return p, nil
		}
	}
	id := t.mock.state.nextPermID
	t.mock.state.nextPermID++
	p := Permission{ID: id, Name: name, Description: description}
	t.mock.state.permissions[id] = p
	return p, nil
}

func (t *mockTxRepo) ReplacePermissions(ctx context.Context, roleID int64, ids []int64) error {
	t.mock.state.attachments[roleID] = nil
	if t.mock.replaceError != nil {
		return t.mock.replaceError
	}
	t.mock.state.attachments[roleID] = append([]int64(nil), ids...)
	return nil
}

func (t *mockTxRepo) RecordAudit(ctx context.Context, actorID int64, action, details string) error {
	if t.mock.auditError != nil {
		return t.mock.auditError
	}
	t.mock.state.audits = append(t.mock.state.audits, action+": "+details)
	return nil
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateRole(t *testing.T) {
	repo := newMockRepository()
	ids := repo.seedPermissions(catalog.ViewUsers, catalog.ManageProducts)
	svc := NewService(repo, catalog.RoleUser)

	role, err := svc.CreateRole(context.Background(), 1, RoleInput{
		Name:          " editor ",
		Description:   "Edits products",
		PermissionIDs: []int64{ids[catalog.ViewUsers], ids[catalog.ManageProducts], ids[catalog.ViewUsers]},
	})
	require.NoError(t, err)
	assert.Equal(t, "editor", role.Name)
	assert.ElementsMatch(t, []string{catalog.ViewUsers, catalog.ManageProducts}, role.PermissionNames())
	assert.Equal(t, []string{`CREATE_ROLE: Created role "editor" with 2 permissions`}, repo.state.audits)
}

func TestCreateRoleValidation(t *testing.T) {
	repo := newMockRepository()
	ids := repo.seedPermissions(catalog.ViewUsers, "legacy_reports")
	svc := NewService(repo, catalog.RoleUser)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, 1, RoleInput{Name: "  "})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRole(ctx, 1, RoleInput{Name: "editor", PermissionIDs: []int64{999}})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRole(ctx, 1, RoleInput{Name: "editor", PermissionIDs: []int64{ids["legacy_reports"]}})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRole(ctx, 1, RoleInput{Name: "editor", PermissionIDs: []int64{-1}})
	assert.ErrorIs(t, err, shared.ErrValidation)

	assert.Empty(t, repo.state.roles)
	assert.Empty(t, repo.state.audits)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, catalog.RoleUser)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, 1, RoleInput{Name: "editor"})
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, 1, RoleInput{Name: "editor"})
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Len(t, repo.state.roles, 1)
}

func TestUpdateRoleReplacesPermissionSet(t *testing.T) {
	repo := newMockRepository()
	ids := repo.seedPermissions(catalog.ViewUsers, catalog.ManageProducts, catalog.ViewNews)
	svc := NewService(repo, catalog.RoleUser)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, 1, RoleInput{Name: "manager", PermissionIDs: []int64{ids[catalog.ViewUsers], ids[catalog.ManageProducts]}})
	require.NoError(t, err)

	updated, err := svc.UpdateRole(ctx, 1, role.ID, RoleInput{Name: "manager", PermissionIDs: []int64{ids[catalog.ViewNews]}})
	require.NoError(t, err)
	assert.Equal(t, []string{catalog.ViewNews}, updated.PermissionNames())
	assert.Equal(t, role.Version+1, updated.Version)

	stored, err := svc.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{catalog.ViewNews}, stored.PermissionNames())

	emptied, err := svc.UpdateRole(ctx, 1, role.ID, RoleInput{Name: "manager"})
	require.NoError(t, err)
	assert.Empty(t, emptied.Permissions)
	assert.Len(t, repo.state.audits, 3)
}

func TestUpdateRoleRollsBackOnFailure(t *testing.T) {
	repo := newMockRepository()
	ids := repo.seedPermissions(catalog.ViewUsers, catalog.ViewNews)
	svc := NewService(repo, catalog.RoleUser)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, 1, RoleInput{Name: "manager", PermissionIDs: []int64{ids[catalog.ViewUsers]}})
	require.NoError(t, err)

	repo.replaceError = errors.New("connection reset")
	_, err = svc.UpdateRole(ctx, 1, role.ID, RoleInput{Name: "manager", PermissionIDs: []int64{ids[catalog.ViewNews]}})
	require.Error(t, err)
	repo.replaceError = nil

	stored, err := svc.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{catalog.ViewUsers}, stored.PermissionNames())
	assert.Equal(t, role.Version, stored.Version)

	repo.auditError = errors.New("audit insert failed")
	_, err = svc.UpdateRole(ctx, 1, role.ID, RoleInput{Name: "renamed", PermissionIDs: []int64{ids[catalog.ViewNews]}})
	require.Error(t, err)

	stored, err = svc.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, "manager", stored.Name)
	assert.Equal(t, []string{catalog.ViewUsers}, stored.PermissionNames())
	assert.Len(t, repo.state.audits, 1)
}

func TestUpdateRoleMissing(t *testing.T) {
	svc := NewService(newMockRepository(), catalog.RoleUser)
	_, err := svc.UpdateRole(context.Background(), 1, 42, RoleInput{Name: "ghost"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteRolePolicy(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, catalog.RoleUser)
	ctx := context.Background()

	defaultRole, err := svc.CreateRole(ctx, 1, RoleInput{Name: catalog.RoleUser})
	require.NoError(t, err)
	inUse, err := svc.CreateRole(ctx, 1, RoleInput{Name: "support"})
	require.NoError(t, err)
	unused, err := svc.CreateRole(ctx, 1, RoleInput{Name: "temp"})
	require.NoError(t, err)
	repo.userCounts[inUse.ID] = 3

	assert.ErrorIs(t, svc.DeleteRole(ctx, 1, defaultRole.ID), shared.ErrConflict)
	assert.ErrorIs(t, svc.DeleteRole(ctx, 1, inUse.ID), shared.ErrConflict)
	assert.ErrorIs(t, svc.DeleteRole(ctx, 1, 999), shared.ErrNotFound)

	require.NoError(t, svc.DeleteRole(ctx, 1, unused.ID))
	_, err = svc.GetRole(ctx, unused.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, `DELETE_ROLE: Deleted role "temp"`, repo.state.audits[len(repo.state.audits)-1])
}

func TestDefaultRoleCannotBeRenamed(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, catalog.RoleUser)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, 1, RoleInput{Name: catalog.RoleUser})
	require.NoError(t, err)
	_, err = svc.UpdateRole(ctx, 1, role.ID, RoleInput{Name: "member"})
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.UpdateRole(ctx, 1, role.ID, RoleInput{Name: catalog.RoleUser, Description: "Everyone"})
	assert.NoError(t, err)
}

func TestEnsurePermissionRestrictedToCatalog(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, catalog.RoleUser)
	ctx := context.Background()

	_, err := svc.EnsurePermission(ctx, "launch_missiles", "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	p, err := svc.EnsurePermission(ctx, catalog.ViewNews, "Read news")
	require.NoError(t, err)
	assert.Equal(t, catalog.ViewNews, p.Name)
	again, err := svc.EnsurePermission(ctx, catalog.ViewNews, "Read the news")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
}

func TestSeedIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, catalog.RoleUser)
	ctx := context.Background()

	first, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(catalog.Names()), first.Permissions)
	assert.ElementsMatch(t, []string{catalog.RoleAdmin, catalog.RoleManager, catalog.RoleUser}, first.CreatedRoles)

	admin, err := svc.FindByName(ctx, catalog.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, admin.Permissions, len(catalog.Names()))

	second, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.CreatedRoles)
	assert.Len(t, repo.state.roles, 3)

	for _, line := range repo.state.audits {
		assert.Contains(t, line, audit.ActionCreateRole)
	}
}

func TestTransactionFailureSurfaces(t *testing.T) {
	repo := newMockRepository()
	repo.txError = fmt.Errorf("%w: begin tx", shared.ErrTransaction)
	svc := NewService(repo, catalog.RoleUser)

	_, err := svc.CreateRole(context.Background(), 1, RoleInput{Name: "editor"})
	assert.ErrorIs(t, err, shared.ErrTransaction)
}
