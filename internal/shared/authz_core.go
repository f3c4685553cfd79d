package shared

// Modules of the platform that carry permissions.
const (
	ModuleDashboard          = "dashboard"
	ModuleUserManagement     = "user_management"
	ModulePropertyManagement = "property_management"
	ModuleOwnerManagement    = "owner_management"
	ModuleRolePermission     = "role_permission"
)

// Actions shared across modules.
const (
	ActionView      = "view"
	ActionViewAdmin = "view_admin"
	ActionCreate    = "create"
	ActionUpdate    = "update"
	ActionDelete    = "delete"
	ActionActivate  = "activate"
	ActionApprove   = "approve"
	ActionAssign    = "assign"
)
