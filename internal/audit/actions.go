package audit

// Action codes written to the audit log.
const (
	ActionLogin     = "LOGIN"
	ActionLogout    = "LOGOUT"
	ActionLogoutAll = "LOGOUT_ALL"
	ActionRegister  = "REGISTER"

	ActionCreateUser     = "CREATE_USER"
	ActionUpdateUser     = "UPDATE_USER"
	ActionDeleteUser     = "DELETE_USER"
	ActionCreateRole     = "CREATE_ROLE"
	ActionUpdateRole     = "UPDATE_ROLE"
	ActionDeleteRole     = "DELETE_ROLE"
	ActionUpdateSettings = "UPDATE_SYSTEM_SETTINGS"

	ActionCreateAsset         = "CREATE_ASSET"
	ActionUpdateAsset         = "UPDATE_ASSET"
	ActionDeleteAsset         = "DELETE_ASSET"
	ActionAssignAsset         = "ASSIGN_ASSET"
	ActionUnassignAsset       = "UNASSIGN_ASSET"
	ActionScheduleMaintenance = "SCHEDULE_MAINTENANCE"
	ActionCreateAssetCategory = "CREATE_ASSET_CATEGORY"
	ActionCreateLocation      = "CREATE_LOCATION"

	ActionCreateItem   = "CREATE_INVENTORY_ITEM"
	ActionUpdateItem   = "UPDATE_INVENTORY_ITEM"
	ActionDeleteItem   = "DELETE_INVENTORY_ITEM"
	ActionAdjustStock  = "ADJUST_STOCK"
	ActionResolveAlert = "RESOLVE_STOCK_ALERT"

	ActionCreateRequest       = "CREATE_REQUEST"
	ActionUpdateRequest       = "UPDATE_REQUEST"
	ActionDeleteRequest       = "DELETE_REQUEST"
	ActionAssignRequest       = "ASSIGN_REQUEST"
	ActionUpdateRequestStatus = "UPDATE_REQUEST_STATUS"
	ActionAddRequestComment   = "ADD_REQUEST_COMMENT"

	ActionCreateIssue      = "CREATE_ISSUE"
	ActionUpdateIssue      = "UPDATE_ISSUE"
	ActionDeleteIssue      = "DELETE_ISSUE"
	ActionAssignIssue      = "ASSIGN_ISSUE"
	ActionUnassignIssue    = "UNASSIGN_ISSUE"
	ActionCloseIssue       = "CLOSE_ISSUE"
	ActionReopenIssue      = "REOPEN_ISSUE"
	ActionAddIssueLabel    = "ADD_ISSUE_LABEL"
	ActionRemoveIssueLabel = "REMOVE_ISSUE_LABEL"
	ActionAddIssueComment  = "ADD_ISSUE_COMMENT"

	ActionCreateRelease      = "CREATE_RELEASE"
	ActionUpdateRelease      = "UPDATE_RELEASE"
	ActionDeleteRelease      = "DELETE_RELEASE"
	ActionLinkReleaseIssue   = "LINK_RELEASE_ISSUE"
	ActionUnlinkReleaseIssue = "UNLINK_RELEASE_ISSUE"
)

// Resource types.
const (
	ResourceAuth          = "Auth"
	ResourceUser          = "User"
	ResourceRole          = "Role"
	ResourceSettings      = "SystemSettings"
	ResourceAsset         = "Asset"
	ResourceMaintenance   = "MaintenanceSchedule"
	ResourceAssetCategory = "AssetCategory"
	ResourceLocation      = "Location"
	ResourceInventoryItem = "InventoryItem"
	ResourceStockAlert    = "StockAlert"
	ResourceRequest       = "Request"
	ResourceIssue         = "Issue"
	ResourceRelease       = "Release"
)
