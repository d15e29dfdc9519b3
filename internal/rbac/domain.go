package rbac

import (
	"sort"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// Permissions checked by route groups.
const (
	PermInventoryView   = "inventory.view"
	PermInventoryEdit   = "inventory.edit"
	PermSalesCreate     = "sales.create"
	PermSalesVoid       = "sales.void"
	PermProcurement     = "procurement.manage"
	PermMasterView      = "master.view"
	PermMasterEdit      = "master.edit"
	PermSettingsManage  = "settings.manage"
	PermUsersManage     = "users.manage"
	PermTransferManage  = "transfer.manage"
	PermPermissionsView = "permissions.view"
)

var staffGrants = []string{
	PermInventoryView,
	PermSalesCreate,
	PermMasterView,
	PermPermissionsView,
}

var managerGrants = append([]string{
	PermInventoryEdit,
	PermSalesVoid,
	PermProcurement,
	PermMasterEdit,
}, staffGrants...)

var adminGrants = append([]string{
	PermSettingsManage,
	PermUsersManage,
	PermTransferManage,
}, managerGrants...)

// Grants returns the permissions held by role, sorted.
func Grants(role string) []string {
	var src []string
	switch role {
	case shared.RoleAdmin:
		src = adminGrants
	case shared.RoleManager:
		src = managerGrants
	case shared.RoleStaff:
		src = staffGrants
	}
	out := append([]string(nil), src...)
	sort.Strings(out)
	return out
}
