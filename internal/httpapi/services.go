package httpapi

import (
	"context"

	"itdesk.org/internal/admin"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/inventory"
	"itdesk.org/internal/issues"
	"itdesk.org/internal/paging"
	"itdesk.org/internal/releases"
	"itdesk.org/internal/requests"
	"itdesk.org/internal/warehouse"
)

// AuthService is satisfied by *auth.Service.
type AuthService interface {
	Login(ctx context.Context, email, password string, client auth.ClientInfo) (auth.LoginResult, error)
	Register(ctx context.Context, in auth.RegisterInput, client auth.ClientInfo) (auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (auth.RefreshResult, error)
	Logout(ctx context.Context, userID, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) error
	Authenticate(ctx context.Context, accessToken string) (auth.Principal, error)
	Profile(ctx context.Context, userID string) (auth.Profile, error)
}

// AdminService is satisfied by *admin.Service.
type AdminService interface {
	Users(ctx context.Context, f admin.UserFilter) ([]auth.User, int, error)
	User(ctx context.Context, id string) (auth.User, error)
	CreateUser(ctx context.Context, actorID string, in admin.NewUser) (auth.User, error)
	UpdateUser(ctx context.Context, actorID, id string, upd admin.UserUpdate) (auth.User, error)
	DeleteUser(ctx context.Context, actorID, id string) error
	Roles(ctx context.Context) ([]auth.Role, error)
	Role(ctx context.Context, id string) (auth.Role, error)
	CreateRole(ctx context.Context, actorID string, in admin.NewRole) (auth.Role, error)
	UpdateRole(ctx context.Context, actorID, id string, upd admin.RoleUpdate) (auth.Role, error)
	DeleteRole(ctx context.Context, actorID, id string) error
	Permissions(ctx context.Context) ([]auth.Permission, error)
	Settings(ctx context.Context) (admin.Settings, error)
	UpdateSettings(ctx context.Context, actorID string, values admin.Settings) (admin.Settings, error)
	AuditLogs(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error)
	Stats(ctx context.Context) (admin.Stats, error)
}

// InventoryService is satisfied by *inventory.Service.
type InventoryService interface {
	CreateAsset(ctx context.Context, actorID string, in inventory.NewAsset) (inventory.Asset, error)
	Asset(ctx context.Context, id string) (inventory.Asset, error)
	ListAssets(ctx context.Context, f inventory.AssetFilter) ([]inventory.Asset, int, error)
	UpdateAsset(ctx context.Context, actorID, id string, upd inventory.AssetUpdate) (inventory.Asset, error)
	DeleteAsset(ctx context.Context, actorID, id string) error
	AssignAsset(ctx context.Context, actorID, id, userID string) (inventory.Asset, error)
	UnassignAsset(ctx context.Context, actorID, id string) (inventory.Asset, error)
	ScheduleMaintenance(ctx context.Context, actorID string, in inventory.NewMaintenance) (inventory.MaintenanceSchedule, error)
	Maintenance(ctx context.Context, assetID string, upcoming bool) ([]inventory.MaintenanceSchedule, error)
	Categories(ctx context.Context) ([]inventory.Category, error)
	CreateCategory(ctx context.Context, actorID, name, description string) (inventory.Category, error)
	Locations(ctx context.Context) ([]inventory.Location, error)
	CreateLocation(ctx context.Context, actorID string, in inventory.Location) (inventory.Location, error)
	Stats(ctx context.Context) (inventory.Stats, error)
}

// WarehouseService is satisfied by *warehouse.Service.
type WarehouseService interface {
	CreateItem(ctx context.Context, actorID string, in warehouse.NewItem) (warehouse.Item, error)
	Item(ctx context.Context, id string) (warehouse.Item, error)
	Items(ctx context.Context, f warehouse.ItemFilter) ([]warehouse.Item, int, error)
	UpdateItem(ctx context.Context, actorID, id string, upd warehouse.ItemUpdate) (warehouse.Item, error)
	DeleteItem(ctx context.Context, actorID, id string) error
	AdjustStock(ctx context.Context, actorID, itemID string, req warehouse.StockRequest) (warehouse.StockResult, error)
	Movements(ctx context.Context, itemID string, p paging.Params) ([]warehouse.Movement, int, error)
	StockHistory(ctx context.Context, itemID string, days int) ([]warehouse.StockPoint, error)
	Alerts(ctx context.Context, resolved *bool) ([]warehouse.Alert, error)
	ResolveAlert(ctx context.Context, actorID, id string) (warehouse.Alert, error)
	Categories(ctx context.Context) ([]warehouse.Category, error)
	Suppliers(ctx context.Context) ([]warehouse.Supplier, error)
	Stats(ctx context.Context) (warehouse.Stats, error)
}

// RequestService is satisfied by *requests.Service.
type RequestService interface {
	Create(ctx context.Context, requesterID string, in requests.NewRequest) (requests.Request, error)
	Get(ctx context.Context, id string) (requests.Request, error)
	List(ctx context.Context, f requests.Filter) ([]requests.Request, int, error)
	Mine(ctx context.Context, userID string, f requests.Filter) ([]requests.Request, int, error)
	Assigned(ctx context.Context, userID string, f requests.Filter) ([]requests.Request, int, error)
	Update(ctx context.Context, actorID, id string, upd requests.Update) (requests.Request, error)
	Delete(ctx context.Context, actorID, id string) error
	Assign(ctx context.Context, actorID, id, assigneeID, notes string) (requests.Request, error)
	UpdateStatus(ctx context.Context, actorID, id string, status requests.Status, notes string) (requests.Request, error)
	AddComment(ctx context.Context, authorID, requestID, content string) (requests.Comment, error)
	Comments(ctx context.Context, requestID string, p paging.Params) ([]requests.Comment, int, error)
	Stats(ctx context.Context, requesterID string) (requests.Stats, error)
}

// IssueService is satisfied by *issues.Service.
type IssueService interface {
	Create(ctx context.Context, reporterID string, in issues.NewIssue) (issues.Issue, error)
	Get(ctx context.Context, id string) (issues.Issue, error)
	List(ctx context.Context, f issues.Filter) ([]issues.Issue, int, error)
	Update(ctx context.Context, actorID, id string, upd issues.Update) (issues.Issue, error)
	Delete(ctx context.Context, actorID, id string) error
	Assign(ctx context.Context, actorID, id, assigneeID string) (issues.Issue, error)
	Unassign(ctx context.Context, actorID, id string) (issues.Issue, error)
	Close(ctx context.Context, actorID, id string) (issues.Issue, error)
	Reopen(ctx context.Context, actorID, id string) (issues.Issue, error)
	AddLabel(ctx context.Context, actorID, id, label string) (issues.Issue, error)
	RemoveLabel(ctx context.Context, actorID, id, label string) (issues.Issue, error)
	Labels(ctx context.Context) ([]issues.LabelCount, error)
	AddComment(ctx context.Context, authorID, issueID, content string) (issues.Comment, error)
	Comments(ctx context.Context, issueID string, p paging.Params) ([]issues.Comment, int, error)
	Stats(ctx context.Context) (issues.Stats, error)
}

// ReleaseService is satisfied by *releases.Service.
type ReleaseService interface {
	Create(ctx context.Context, actorID string, in releases.NewRelease) (releases.Release, error)
	Get(ctx context.Context, id string) (releases.Release, error)
	List(ctx context.Context, f releases.Filter) ([]releases.Release, int, error)
	Latest(ctx context.Context, limit int) ([]releases.Release, error)
	Update(ctx context.Context, actorID, id string, upd releases.Update) (releases.Release, error)
	Delete(ctx context.Context, actorID, id string) error
	LinkIssue(ctx context.Context, actorID, releaseID, issueID string) (releases.IssueRef, error)
	UnlinkIssue(ctx context.Context, actorID, releaseID, issueID string) error
	Stats(ctx context.Context) (releases.Stats, error)
}

// Services groups the domain services the API dispatches to.
type Services struct {
	Auth      AuthService
	Admin     AdminService
	Inventory InventoryService
	Warehouse WarehouseService
	Requests  RequestService
	Issues    IssueService
	Releases  ReleaseService
}

var (
	_ AuthService      = (*auth.Service)(nil)
	_ AdminService     = (*admin.Service)(nil)
	_ InventoryService = (*inventory.Service)(nil)
	_ WarehouseService = (*warehouse.Service)(nil)
	_ RequestService   = (*requests.Service)(nil)
	_ IssueService     = (*issues.Service)(nil)
	_ ReleaseService   = (*releases.Service)(nil)
)
