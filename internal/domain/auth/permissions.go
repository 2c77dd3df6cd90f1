package auth

const (
	PermLeaveApply    = "leave.apply"
	PermLeaveReadOwn  = "leave.read.own"
	PermLeaveDecide   = "leave.decide"
	PermLeaveHistory  = "leave.history"
	PermLeaveReadAll  = "leave.read.all"
	PermLeaveOverride = "leave.override"
)

var DefaultPermissions = []string{
	PermLeaveApply,
	PermLeaveReadOwn,
	PermLeaveDecide,
	PermLeaveHistory,
	PermLeaveReadAll,
	PermLeaveOverride,
}

// RolePermissions is fixed: managers decide pending requests, HR sees and
// overrides everything. Managers and HR do not apply for leave through this API.
var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermLeaveApply,
		PermLeaveReadOwn,
	},
	RoleManager: {
		PermLeaveDecide,
		PermLeaveHistory,
	},
	RoleHR: {
		PermLeaveHistory,
		PermLeaveReadAll,
		PermLeaveOverride,
	},
}

func HasPermission(roleName, permission string) bool {
	for _, perm := range RolePermissions[roleName] {
		if perm == permission {
			return true
		}
	}
	return false
}
