package shared

// Permission administration scopes guarding the HTTP surface.
const (
	PermPermissionsView   = "PERMISSIONS.VIEW"
	PermPermissionsManage = "PERMISSIONS.MANAGE"
	PermRolesManage       = "ROLES.MANAGE"
	PermUsersPermissions  = "USERS.PERMISSIONS.MANAGE"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermPermissionsView,
		PermPermissionsManage,
		PermRolesManage,
		PermUsersPermissions,
	}
}
