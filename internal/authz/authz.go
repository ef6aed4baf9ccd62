// Package authz holds the permission rules of the storefront: which permissions a
// principal effectively holds, how role names are derived and how category
// selections are toggled in the role editor. It has no storage of its own.
package authz

import (
	"sort"
	"strings"
)

// Permission is an atomic named capability, e.g. "view_products".
type Permission struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	IsSystem    bool   `json:"is_system"`
}

// Role is a named, prioritized bundle of permissions.
type Role struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Color       string   `json:"color"`
	Priority    int      `json:"priority"`
	IsSystem    bool     `json:"is_system"`
	Permissions []string `json:"permissions"`
}

// Principal is whoever asks for access: a role name and an optional custom
// permission list that replaces the role's set when non-empty.
type Principal struct {
	Role        string
	Permissions []string
}

// RoleLookup resolves a role name to its permission names.
type RoleLookup interface {
	RolePermissions(name string) ([]string, bool)
}

// RoleTable is an in-memory RoleLookup keyed by role name.
type RoleTable map[string][]string

func (t RoleTable) RolePermissions(name string) ([]string, bool) {
	perms, ok := t[name]
	return perms, ok
}

// DeriveRoleName turns a display name into a role identifier:
// "Store Manager" becomes "STORE_MANAGER".
func DeriveRoleName(displayName string) string {
	return strings.ToUpper(strings.Join(strings.Fields(displayName), "_"))
}

// EffectivePermissions returns the custom override verbatim when present,
// otherwise the permissions of the principal's role. Unknown roles grant nothing.
func EffectivePermissions(p Principal, roles RoleLookup) []string {
	if len(p.Permissions) > 0 {
		return append([]string(nil), p.Permissions...)
	}
	if roles == nil || p.Role == "" {
		return []string{}
	}
	perms, ok := roles.RolePermissions(p.Role)
	if !ok {
		return []string{}
	}
	return append([]string(nil), perms...)
}

// HasPermission reports whether name is among the principal's effective permissions.
func HasPermission(p Principal, roles RoleLookup, name string) bool {
	for _, perm := range EffectivePermissions(p, roles) {
		if perm == name {
			return true
		}
	}
	return false
}

// ToggleCategory implements the role editor's select-all-or-none switch. When
// every name of the category is already selected all of them are removed,
// otherwise the missing ones are appended in category order.
func ToggleCategory(selected, category []string) []string {
	if len(category) == 0 {
		return append([]string(nil), selected...)
	}

	have := make(map[string]bool, len(selected))
	for _, s := range selected {
		have[s] = true
	}

	allSelected := true
	for _, c := range category {
		if !have[c] {
			allSelected = false
			break
		}
	}

	if allSelected {
		drop := make(map[string]bool, len(category))
		for _, c := range category {
			drop[c] = true
		}
		out := make([]string, 0, len(selected))
		for _, s := range selected {
			if !drop[s] {
				out = append(out, s)
			}
		}
		return out
	}

	out := append([]string(nil), selected...)
	for _, c := range category {
		if !have[c] {
			out = append(out, c)
			have[c] = true
		}
	}
	return out
}

// GroupByCategory buckets permissions by category, each bucket sorted by name.
func GroupByCategory(perms []Permission) map[string][]Permission {
	groups := make(map[string][]Permission)
	for _, p := range perms {
		groups[p.Category] = append(groups[p.Category], p)
	}
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].Name < g[j].Name })
	}
	return groups
}

// SortRoles orders roles by priority descending, ties broken by name ascending.
func SortRoles(roles []Role) {
	sort.SliceStable(roles, func(i, j int) bool { return RoleLess(roles[i], roles[j]) })
}

// RoleLess is the display order used by SortRoles.
func RoleLess(a, b Role) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Name < b.Name
}

// Dedupe drops empty and repeated names, keeping first occurrence order.
func Dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
