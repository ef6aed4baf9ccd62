package authz

// Permission names checked by the API.
const (
	ViewDashboard   = "view_dashboard"
	ViewAnalytics   = "view_analytics"
	ViewProducts    = "view_products"
	EditProducts    = "edit_products"
	DeleteProducts  = "delete_products"
	ManageInventory = "manage_inventory"
	ViewOrders      = "view_orders"
	EditOrders      = "edit_orders"
	ViewCustomers   = "view_customers"
	EditCustomers   = "edit_customers"
	ViewSuppliers   = "view_suppliers"
	EditSuppliers   = "edit_suppliers"
	ViewUsers       = "view_users"
	ManageUsers     = "manage_users"
	ManageRoles     = "manage_roles"
	ViewAudit       = "view_audit"
	ManageSettings  = "manage_settings"
)

// DefaultPermissions is the seeded permission catalog. Every entry is a system permission.
func DefaultPermissions() []Permission {
	return []Permission{
		{Name: ViewDashboard, DisplayName: "View Dashboard", Description: "Open the admin dashboard", Category: "dashboard"},
		{Name: ViewAnalytics, DisplayName: "View Analytics", Description: "Sales and traffic reports", Category: "analytics"},
		{Name: ViewProducts, DisplayName: "View Products", Description: "Browse the product catalog in admin", Category: "products"},
		{Name: EditProducts, DisplayName: "Edit Products", Description: "Create and update products", Category: "products"},
		{Name: DeleteProducts, DisplayName: "Delete Products", Description: "Remove products from the catalog", Category: "products"},
		{Name: ManageInventory, DisplayName: "Manage Inventory", Description: "Adjust stock levels", Category: "inventory"},
		{Name: ViewOrders, DisplayName: "View Orders", Description: "List and inspect orders", Category: "orders"},
		{Name: EditOrders, DisplayName: "Edit Orders", Description: "Change order status", Category: "orders"},
		{Name: ViewCustomers, DisplayName: "View Customers", Description: "List customers", Category: "customers"},
		{Name: EditCustomers, DisplayName: "Edit Customers", Description: "Update customer records", Category: "customers"},
		{Name: ViewSuppliers, DisplayName: "View Suppliers", Description: "List suppliers", Category: "suppliers"},
		{Name: EditSuppliers, DisplayName: "Edit Suppliers", Description: "Create and update suppliers", Category: "suppliers"},
		{Name: ViewUsers, DisplayName: "View Users", Description: "List staff accounts", Category: "users"},
		{Name: ManageUsers, DisplayName: "Manage Users", Description: "Create, edit and delete staff accounts", Category: "users"},
		{Name: ManageRoles, DisplayName: "Manage Roles", Description: "Edit roles and permissions", Category: "roles"},
		{Name: ViewAudit, DisplayName: "View Audit Log", Description: "Read the activity history", Category: "settings"},
		{Name: ManageSettings, DisplayName: "Manage Settings", Description: "Change store settings", Category: "settings"},
	}
}

// DefaultRoles is the seeded set of system roles.
func DefaultRoles() []Role {
	all := make([]string, 0, len(DefaultPermissions()))
	for _, p := range DefaultPermissions() {
		all = append(all, p.Name)
	}

	return []Role{
		{
			Name: "SUPER_ADMIN", DisplayName: "Super Admin", Color: "#b91c1c", Priority: 100,
			Description: "Full access to the store",
			Permissions: all,
		},
		{
			Name: "ADMIN", DisplayName: "Admin", Color: "#c2410c", Priority: 90,
			Description: "Runs the store, cannot change settings",
			Permissions: []string{
				ViewDashboard, ViewAnalytics,
				ViewProducts, EditProducts, DeleteProducts, ManageInventory,
				ViewOrders, EditOrders, ViewCustomers, EditCustomers,
				ViewSuppliers, EditSuppliers, ViewUsers, ManageUsers, ManageRoles, ViewAudit,
			},
		},
		{
			Name: "MANAGER", DisplayName: "Manager", Color: "#1d4ed8", Priority: 50,
			Description: "Catalog, orders and inventory",
			Permissions: []string{
				ViewDashboard, ViewAnalytics,
				ViewProducts, EditProducts, ManageInventory,
				ViewOrders, EditOrders, ViewCustomers, ViewSuppliers, EditSuppliers, ViewAudit,
			},
		},
		{
			Name: "STAFF", DisplayName: "Staff", Color: "#15803d", Priority: 10,
			Description: "Day to day order handling",
			Permissions: []string{ViewDashboard, ViewProducts, ViewOrders, EditOrders, ViewCustomers},
		},
	}
}
