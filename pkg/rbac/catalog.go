package rbac

// Permission names of the built-in catalog
const (
	PermContractCreate  = "contract.create"
	PermContractViewAll = "contract.view.all"
	PermContractViewOwn = "contract.view.own"
	PermContractUpdate  = "contract.update"
	PermContractDelete  = "contract.delete"
	PermDashboardView   = "dashboard.view"

	PermRoleCreate = "role.create"
	PermRoleRead   = "role.read"
	PermRoleUpdate = "role.update"
	PermRoleDelete = "role.delete"

	PermUserRead        = "user.read"
	PermUserManageRoles = "user.manage_roles"

	PermBillingView   = "billing.view"
	PermBillingManage = "billing.manage"

	PermOrganizationRead = "organization.read"
)

// CatalogEntry is a permission name with its description
type CatalogEntry struct {
	ActionName  string
	Description string
}

// Catalog lists every permission the application checks
var Catalog = []CatalogEntry{
	{PermContractCreate, "Create contracts"},
	{PermContractViewAll, "View every contract of the organization"},
	{PermContractViewOwn, "View contracts you created"},
	{PermContractUpdate, "Edit contracts"},
	{PermContractDelete, "Delete contracts"},
	{PermDashboardView, "View the risk dashboard"},
	{PermRoleCreate, "Create custom roles"},
	{PermRoleRead, "View custom roles and the permission catalog"},
	{PermRoleUpdate, "Edit custom roles"},
	{PermRoleDelete, "Delete custom roles"},
	{PermUserRead, "List organization members"},
	{PermUserManageRoles, "Assign custom roles to members"},
	{PermBillingView, "View the subscription"},
	{PermBillingManage, "Change the subscription plan"},
	{PermOrganizationRead, "View organization details"},
}

// IsCatalogPermission reports whether name is a built-in permission
func IsCatalogPermission(name string) bool {
	for _, e := range Catalog {
		if e.ActionName == name {
			return true
		}
	}
	return false
}
