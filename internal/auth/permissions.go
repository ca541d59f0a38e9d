package auth

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermDeviceRead      Permission = "device:read"
	PermDeviceOperate   Permission = "device:operate"
	PermTransfer        Permission = "device:transfer"
	PermDiscoveryManage Permission = "discovery:manage"
	PermAuditRead       Permission = "audit:read"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermDeviceRead,
		PermAuditRead,
	},
	RoleOperator: {
		PermDeviceRead,
		PermDeviceOperate,
		PermTransfer,
		PermAuditRead,
	},
	RoleAdmin: {
		PermDeviceRead,
		PermDeviceOperate,
		PermTransfer,
		PermDiscoveryManage,
		PermAuditRead,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}
