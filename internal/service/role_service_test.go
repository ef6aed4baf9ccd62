package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/authz"
	"storefront/internal/metrics"
	"storefront/internal/model"
	ws "storefront/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roleFixture struct {
	svc    *roleService
	roles  *fakeRoleRepo
	users  *fakeUserRepo
	audit  *fakeAuditRepo
	events *recordingPublisher
}

func newRoleFixture() *roleFixture {
	f := &roleFixture{
		roles:  newFakeRoleRepo(),
		users:  newFakeUserRepo(),
		audit:  &fakeAuditRepo{},
		events: &recordingPublisher{},
	}
	f.roles.addPermission(authz.ViewProducts, "products", true)
	f.roles.addPermission(authz.EditProducts, "products", true)
	f.roles.addPermission(authz.DeleteProducts, "products", true)
	f.roles.addPermission(authz.ViewOrders, "orders", true)
	f.roles.addPermission("export_reports", "analytics", false)

	svc := NewRoleService(f.roles, f.users, f.audit, &fakeTx{}, f.events, nopLog, metrics.NewAuthzMetrics(nil), time.Minute)
	f.svc = svc.(*roleService)
	return f
}

func TestCreateRoleDerivesName(t *testing.T) {
	f := newRoleFixture()

	role, err := f.svc.CreateRole(context.Background(), "", CreateRoleRequest{
		DisplayName: "Store  Manager",
		Permissions: []string{authz.ViewProducts, authz.ViewProducts},
	})
	require.NoError(t, err)

	assert.Equal(t, "STORE_MANAGER", role.Name)
	assert.Equal(t, []string{authz.ViewProducts}, role.Permissions)
	assert.False(t, role.IsSystem)
	assert.Equal(t, []string{model.ActionCreateRole}, f.audit.actions())
	require.Len(t, f.events.events, 1)
	assert.Equal(t, ws.EventRolesChanged, f.events.events[0].name)
}

func TestCreateRoleValidation(t *testing.T) {
	f := newRoleFixture()
	ctx := context.Background()

	_, err := f.svc.CreateRole(ctx, "", CreateRoleRequest{DisplayName: "  ", Permissions: []string{authz.ViewProducts}})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.CreateRole(ctx, "", CreateRoleRequest{DisplayName: "Packer"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.CreateRole(ctx, "", CreateRoleRequest{DisplayName: "Packer", Permissions: []string{"fly_drones"}})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, err.Error(), "fly_drones")

	assert.Empty(t, f.roles.roles, "no write on rejected input")
	assert.Empty(t, f.audit.entries)
}

func TestCreateRoleConflict(t *testing.T) {
	f := newRoleFixture()
	f.roles.addRole("STORE_MANAGER", 20, false, authz.ViewProducts)

	_, err := f.svc.CreateRole(context.Background(), "", CreateRoleRequest{
		DisplayName: "store manager",
		Permissions: []string{authz.ViewOrders},
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestUpdateSystemRole(t *testing.T) {
	f := newRoleFixture()
	admin := f.roles.addRole("ADMIN", 90, true, authz.ViewProducts)
	ctx := context.Background()

	_, err := f.svc.UpdateRole(ctx, "", admin.ID.String(), UpdateRoleRequest{
		Name:        "OWNER",
		DisplayName: admin.DisplayName,
		Permissions: []string{authz.ViewProducts},
	})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.UpdateRole(ctx, "", admin.ID.String(), UpdateRoleRequest{
		DisplayName: "Owner",
		Permissions: []string{authz.ViewProducts},
	})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	updated, err := f.svc.UpdateRole(ctx, "", admin.ID.String(), UpdateRoleRequest{
		Name:        "ADMIN",
		DisplayName: admin.DisplayName,
		Description: "runs the shop",
		Color:       "#000000",
		Permissions: []string{authz.ViewProducts, authz.ViewOrders},
	})
	require.NoError(t, err)
	assert.Equal(t, "ADMIN", updated.Name)
	assert.Equal(t, "runs the shop", updated.Description)
	assert.ElementsMatch(t, []string{authz.ViewProducts, authz.ViewOrders}, updated.Permissions)
	assert.Equal(t, 90, updated.Priority, "priority untouched when omitted")
}

func TestUpdateCustomRoleKeepsName(t *testing.T) {
	f := newRoleFixture()
	role := f.roles.addRole("PACKER", 5, false, authz.ViewOrders)

	_, err := f.svc.UpdateRole(context.Background(), "", role.ID.String(), UpdateRoleRequest{
		Name:        "SHIPPER",
		DisplayName: "Shipper",
		Permissions: []string{authz.ViewOrders},
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	prio := 7
	updated, err := f.svc.UpdateRole(context.Background(), "", role.ID.String(), UpdateRoleRequest{
		DisplayName: "Senior Packer",
		Priority:    &prio,
		Permissions: []string{authz.ViewOrders},
	})
	require.NoError(t, err)
	assert.Equal(t, "PACKER", updated.Name)
	assert.Equal(t, "Senior Packer", updated.DisplayName)
	assert.Equal(t, 7, updated.Priority)
}

func TestDeleteRole(t *testing.T) {
	f := newRoleFixture()
	system := f.roles.addRole("STAFF", 10, true, authz.ViewProducts)
	custom := f.roles.addRole("PACKER", 5, false, authz.ViewOrders)
	f.users.add(model.User{Username: "sam", Role: "PACKER"})
	ctx := context.Background()

	err := f.svc.DeleteRole(ctx, "", system.ID.String())
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	// in-use roles are still deleted
	require.NoError(t, f.svc.DeleteRole(ctx, "", custom.ID.String()))
	_, ok := f.roles.roles[custom.ID]
	assert.False(t, ok)
	assert.Equal(t, []string{model.ActionDeleteRole}, f.audit.actions())

	err = f.svc.DeleteRole(ctx, "", custom.ID.String())
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	err = f.svc.DeleteRole(ctx, "", "not-a-uuid")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestListRolesOrdering(t *testing.T) {
	f := newRoleFixture()
	f.roles.addRole("STAFF", 10, true, authz.ViewProducts)
	f.roles.addRole("ADMIN", 90, true, authz.ViewProducts)
	f.roles.addRole("AUDITOR", 10, false, authz.ViewOrders)

	roles, err := f.svc.ListRoles(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"ADMIN", "AUDITOR", "STAFF"}, names)
}

func TestToggleRoleCategory(t *testing.T) {
	f := newRoleFixture()
	role := f.roles.addRole("CLERK", 5, false, authz.ViewOrders, authz.ViewProducts)
	ctx := context.Background()

	// partial selection: select all
	got, err := f.svc.ToggleRoleCategory(ctx, "", role.ID.String(), "products")
	require.NoError(t, err)
	assert.Equal(t, []string{authz.ViewOrders, authz.ViewProducts, authz.DeleteProducts, authz.EditProducts}, got.Permissions)

	// full selection: deselect all
	got, err = f.svc.ToggleRoleCategory(ctx, "", role.ID.String(), "products")
	require.NoError(t, err)
	assert.Equal(t, []string{authz.ViewOrders}, got.Permissions)

	// would leave the role empty
	_, err = f.svc.ToggleRoleCategory(ctx, "", role.ID.String(), "orders")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.ToggleRoleCategory(ctx, "", role.ID.String(), "spaceships")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestPermissionLifecycle(t *testing.T) {
	f := newRoleFixture()
	ctx := context.Background()

	_, err := f.svc.CreatePermission(ctx, "", CreatePermissionRequest{Name: authz.ViewOrders, DisplayName: "x", Category: "orders"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	perm, err := f.svc.CreatePermission(ctx, "", CreatePermissionRequest{Name: "print_labels", DisplayName: "Print labels", Category: "orders"})
	require.NoError(t, err)
	assert.False(t, perm.IsSystem)

	updated, err := f.svc.UpdatePermission(ctx, "", "print_labels", UpdatePermissionRequest{DisplayName: "Print shipping labels", Category: "shipping"})
	require.NoError(t, err)
	assert.Equal(t, "print_labels", updated.Name)
	assert.Equal(t, "shipping", updated.Category)

	grouped, err := f.svc.ListPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, grouped["products"], 3)
	assert.Equal(t, authz.DeleteProducts, grouped["products"][0].Name)
	assert.Len(t, grouped["shipping"], 1)

	f.roles.addRole("SHIPPER", 5, false, "print_labels")
	err = f.svc.DeletePermission(ctx, "", "print_labels")
	assert.ErrorIs(t, err, apperror.ErrConflict)

	err = f.svc.DeletePermission(ctx, "", authz.ViewProducts)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	require.NoError(t, f.svc.DeletePermission(ctx, "", "export_reports"))
	err = f.svc.DeletePermission(ctx, "", "export_reports")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetUserPermissions(t *testing.T) {
	f := newRoleFixture()
	f.roles.addRole("MANAGER", 50, true, authz.ViewProducts, authz.EditProducts)
	ctx := context.Background()

	byRole := f.users.add(model.User{Username: "ann", Role: "MANAGER"})
	custom := f.users.add(model.User{Username: "bob", Role: "MANAGER", Permissions: []string{authz.ViewOrders}})
	orphan := f.users.add(model.User{Username: "cy", Role: "GHOST"})

	perms, err := f.svc.GetUserPermissions(ctx, byRole.ID.String())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{authz.ViewProducts, authz.EditProducts}, perms)

	perms, err = f.svc.GetUserPermissions(ctx, custom.ID.String())
	require.NoError(t, err)
	assert.Equal(t, []string{authz.ViewOrders}, perms, "override replaces the role set")

	perms, err = f.svc.GetUserPermissions(ctx, orphan.ID.String())
	require.NoError(t, err)
	assert.Empty(t, perms)

	ok, err := f.svc.HasPermission(ctx, custom.ID.String(), authz.EditProducts)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.GetUserPermissions(ctx, "8d4b4b4e-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRolePermissionsCache(t *testing.T) {
	f := newRoleFixture()
	role := f.roles.addRole("CLERK", 5, false, authz.ViewProducts)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	_, err := f.svc.RolePermissions(ctx, "CLERK")
	require.NoError(t, err)
	_, err = f.svc.RolePermissions(ctx, "CLERK")
	require.NoError(t, err)
	assert.Equal(t, 1, f.roles.permLookups)

	// role writes invalidate
	_, err = f.svc.UpdateRole(ctx, "", role.ID.String(), UpdateRoleRequest{
		DisplayName: role.DisplayName,
		Permissions: []string{authz.ViewOrders},
	})
	require.NoError(t, err)
	perms, err := f.svc.RolePermissions(ctx, "CLERK")
	require.NoError(t, err)
	assert.Equal(t, []string{authz.ViewOrders}, perms)
	assert.Equal(t, 2, f.roles.permLookups)

	// expiry
	now = now.Add(2 * time.Minute)
	_, err = f.svc.RolePermissions(ctx, "CLERK")
	require.NoError(t, err)
	assert.Equal(t, 3, f.roles.permLookups)
}

func TestRolePermissionsAfterRoleCreated(t *testing.T) {
	f := newRoleFixture()
	ctx := context.Background()

	perms, err := f.svc.RolePermissions(ctx, "PACKER")
	require.NoError(t, err)
	assert.Empty(t, perms)

	_, err = f.svc.CreateRole(ctx, "", CreateRoleRequest{
		DisplayName: "Packer",
		Permissions: []string{authz.ViewProducts},
	})
	require.NoError(t, err)

	perms, err = f.svc.RolePermissions(ctx, "PACKER")
	require.NoError(t, err)
	assert.Equal(t, []string{authz.ViewProducts}, perms)
}

func TestRolePermissionsAfterSeed(t *testing.T) {
	f := newRoleFixture()
	ctx := context.Background()

	perms, err := f.svc.RolePermissions(ctx, "STAFF")
	require.NoError(t, err)
	assert.Empty(t, perms)

	require.NoError(t, f.svc.SeedDefaults(ctx))

	perms, err = f.svc.RolePermissions(ctx, "STAFF")
	require.NoError(t, err)
	assert.NotEmpty(t, perms)
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	f := newRoleFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.SeedDefaults(ctx))
	assert.Len(t, f.roles.roles, len(authz.DefaultRoles()))

	admin, err := f.roles.FindByName(ctx, "SUPER_ADMIN")
	require.NoError(t, err)
	assert.True(t, admin.IsSystem)
	assert.Len(t, admin.Permissions, len(authz.DefaultPermissions()))

	// admin edits survive a second seed
	require.NoError(t, f.roles.ReplacePermissions(ctx, admin, admin.Permissions[:1]))
	require.NoError(t, f.svc.SeedDefaults(ctx))
	again, err := f.roles.FindByName(ctx, "SUPER_ADMIN")
	require.NoError(t, err)
	assert.Len(t, again.Permissions, 1)
	assert.Len(t, f.roles.roles, len(authz.DefaultRoles()))
}
