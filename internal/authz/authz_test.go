package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveRoleName(t *testing.T) {
	assert.Equal(t, "STORE_MANAGER", DeriveRoleName("Store Manager"))
	assert.Equal(t, "NIGHT_SHIFT_LEAD", DeriveRoleName("  night \t shift   lead "))
	assert.Equal(t, "", DeriveRoleName("   "))
}

func TestEffectivePermissions(t *testing.T) {
	roles := RoleTable{
		"MANAGER": {ViewProducts, EditProducts},
		"STAFF":   {ViewOrders},
	}

	t.Run("Custom override replaces role set", func(t *testing.T) {
		p := Principal{Role: "MANAGER", Permissions: []string{ViewAudit}}
		assert.Equal(t, []string{ViewAudit}, EffectivePermissions(p, roles))
		assert.False(t, HasPermission(p, roles, EditProducts))
		assert.True(t, HasPermission(p, roles, ViewAudit))
	})

	t.Run("Role set when no override", func(t *testing.T) {
		p := Principal{Role: "MANAGER"}
		assert.ElementsMatch(t, []string{ViewProducts, EditProducts}, EffectivePermissions(p, roles))
		assert.True(t, HasPermission(p, roles, EditProducts))
	})

	t.Run("Unknown role fails closed", func(t *testing.T) {
		p := Principal{Role: "GHOST"}
		assert.Empty(t, EffectivePermissions(p, roles))
		assert.False(t, HasPermission(p, roles, ViewProducts))
	})

	t.Run("Result does not alias the role table", func(t *testing.T) {
		got := EffectivePermissions(Principal{Role: "STAFF"}, roles)
		got[0] = "mutated"
		assert.Equal(t, ViewOrders, roles["STAFF"][0])
	})
}

func TestToggleCategory(t *testing.T) {
	category := []string{ViewProducts, EditProducts, DeleteProducts}

	t.Run("Partial selection selects all, second call deselects all", func(t *testing.T) {
		selected := []string{ViewOrders, EditProducts}

		once := ToggleCategory(selected, category)
		assert.Equal(t, []string{ViewOrders, EditProducts, ViewProducts, DeleteProducts}, once)

		twice := ToggleCategory(once, category)
		assert.Equal(t, []string{ViewOrders}, twice)
	})

	t.Run("Empty selection selects all", func(t *testing.T) {
		assert.Equal(t, category, ToggleCategory(nil, category))
	})

	t.Run("Full selection deselects all", func(t *testing.T) {
		assert.Empty(t, ToggleCategory(category, category))
	})

	t.Run("Input is not modified", func(t *testing.T) {
		selected := []string{EditProducts}
		_ = ToggleCategory(selected, category)
		assert.Equal(t, []string{EditProducts}, selected)
	})
}

func TestSortRoles(t *testing.T) {
	roles := []Role{
		{Name: "STAFF", Priority: 10},
		{Name: "B_TEAM", Priority: 50},
		{Name: "SUPER_ADMIN", Priority: 100},
		{Name: "A_TEAM", Priority: 50},
	}
	SortRoles(roles)

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"SUPER_ADMIN", "A_TEAM", "B_TEAM", "STAFF"}, names)
}

func TestGroupByCategory(t *testing.T) {
	groups := GroupByCategory([]Permission{
		{Name: EditProducts, Category: "products"},
		{Name: ViewOrders, Category: "orders"},
		{Name: DeleteProducts, Category: "products"},
	})

	assert.Len(t, groups, 2)
	assert.Equal(t, DeleteProducts, groups["products"][0].Name)
	assert.Equal(t, EditProducts, groups["products"][1].Name)
}

func TestDefaultRolesReferenceCatalog(t *testing.T) {
	known := map[string]bool{}
	for _, p := range DefaultPermissions() {
		known[p.Name] = true
	}
	for _, r := range DefaultRoles() {
		assert.NotEmpty(t, r.Permissions, r.Name)
		assert.Equal(t, r.Name, DeriveRoleName(r.DisplayName))
		for _, p := range r.Permissions {
			assert.True(t, known[p], "%s references unknown permission %s", r.Name, p)
		}
	}
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Dedupe([]string{"a", " ", "b", "a", ""}))
}
