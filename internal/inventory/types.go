// Package inventory tracks physical IT assets, their assignment to users and
// scheduled maintenance.
package inventory

import (
	"time"

	"itdesk.org/internal/audit"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/paging"
)

// AssetStatus is the lifecycle state of an asset.
type AssetStatus string

const (
	StatusAvailable   AssetStatus = "AVAILABLE"
	StatusAssigned    AssetStatus = "ASSIGNED"
	StatusMaintenance AssetStatus = "MAINTENANCE"
	StatusRetired     AssetStatus = "RETIRED"
)

// Valid reports whether s is a known status.
func (s AssetStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusAssigned, StatusMaintenance, StatusRetired:
		return true
	}
	return false
}

// MaintenanceType classifies a maintenance schedule.
type MaintenanceType string

const (
	MaintenancePreventive MaintenanceType = "PREVENTIVE"
	MaintenanceCorrective MaintenanceType = "CORRECTIVE"
	MaintenanceInspection MaintenanceType = "INSPECTION"
)

func (t MaintenanceType) Valid() bool {
	switch t {
	case MaintenancePreventive, MaintenanceCorrective, MaintenanceInspection:
		return true
	}
	return false
}

// MaintenanceStatus is the state of a maintenance schedule.
type MaintenanceStatus string

const (
	MaintenanceScheduled  MaintenanceStatus = "SCHEDULED"
	MaintenanceInProgress MaintenanceStatus = "IN_PROGRESS"
	MaintenanceCompleted  MaintenanceStatus = "COMPLETED"
	MaintenanceCancelled  MaintenanceStatus = "CANCELLED"
)

// Category groups assets and seeds their tag prefix.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AssetCount  int    `json:"assetCount"`
}

// Location is where an asset physically lives.
type Location struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Address     string `json:"address,omitempty"`
	Description string `json:"description,omitempty"`
	AssetCount  int    `json:"assetCount"`
}

// Asset is a tracked piece of equipment.
type Asset struct {
	ID             string                `json:"id"`
	AssetTag       string                `json:"assetTag"`
	Name           string                `json:"name"`
	Description    string                `json:"description,omitempty"`
	CategoryID     string                `json:"categoryId"`
	CategoryName   string                `json:"categoryName,omitempty"`
	LocationID     string                `json:"locationId"`
	LocationName   string                `json:"locationName,omitempty"`
	SerialNumber   string                `json:"serialNumber,omitempty"`
	Model          string                `json:"model,omitempty"`
	Manufacturer   string                `json:"manufacturer,omitempty"`
	PurchaseDate   *time.Time            `json:"purchaseDate,omitempty"`
	PurchasePrice  *float64              `json:"purchasePrice,omitempty"`
	WarrantyExpiry *time.Time            `json:"warrantyExpiryDate,omitempty"`
	Status         AssetStatus           `json:"status"`
	Notes          string                `json:"notes,omitempty"`
	AssignedTo     *auth.UserRef         `json:"assignedTo,omitempty"`
	AssignedAt     *time.Time            `json:"assignedAt,omitempty"`
	CreatedByID    string                `json:"createdById"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
	Maintenance    []MaintenanceSchedule `json:"maintenanceSchedules,omitempty"`
}

func (a Asset) snapshot() audit.Snapshot {
	s := audit.Snapshot{
		"assetTag":     a.AssetTag,
		"name":         a.Name,
		"description":  a.Description,
		"categoryId":   a.CategoryID,
		"locationId":   a.LocationID,
		"serialNumber": a.SerialNumber,
		"model":        a.Model,
		"manufacturer": a.Manufacturer,
		"status":       string(a.Status),
		"notes":        a.Notes,
	}
	if a.PurchasePrice != nil {
		s["purchasePrice"] = *a.PurchasePrice
	}
	if a.AssignedTo != nil {
		s["assignedToId"] = a.AssignedTo.ID
	}
	return s
}

// NewAsset carries the fields accepted when registering an asset.
type NewAsset struct {
	Name           string
	AssetTag       string
	Description    string
	CategoryID     string
	LocationID     string
	SerialNumber   string
	Model          string
	Manufacturer   string
	PurchaseDate   *time.Time
	PurchasePrice  *float64
	WarrantyExpiry *time.Time
	Status         AssetStatus
	Notes          string
}

// AssetUpdate holds optional field changes; nil leaves a field untouched.
type AssetUpdate struct {
	Name           *string
	Description    *string
	CategoryID     *string
	LocationID     *string
	SerialNumber   *string
	Model          *string
	Manufacturer   *string
	PurchaseDate   *time.Time
	PurchasePrice  *float64
	WarrantyExpiry *time.Time
	Status         *AssetStatus
	Notes          *string
}

// AssetFilter narrows asset listings.
type AssetFilter struct {
	Search       string
	CategoryID   string
	LocationID   string
	Status       AssetStatus
	AssignedToID string
	SortBy       string
	SortDesc     bool
	Page         paging.Params
}

// MaintenanceSchedule is planned work against an asset.
type MaintenanceSchedule struct {
	ID            string            `json:"id"`
	AssetID       string            `json:"assetId"`
	AssetName     string            `json:"assetName,omitempty"`
	AssetTag      string            `json:"assetTag,omitempty"`
	Type          MaintenanceType   `json:"type"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	ScheduledDate time.Time         `json:"scheduledDate"`
	Status        MaintenanceStatus `json:"status"`
	AssignedTo    *auth.UserRef     `json:"assignedTo,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	CreatedByID   string            `json:"createdById"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// NewMaintenance carries the fields accepted when scheduling maintenance.
type NewMaintenance struct {
	AssetID       string
	Type          MaintenanceType
	Title         string
	Description   string
	ScheduledDate time.Time
	AssignedToID  string
	Notes         string
}

// MaintenanceFilter narrows maintenance listings. Upcoming keeps only
// SCHEDULED entries dated at or after Now.
type MaintenanceFilter struct {
	AssetID  string
	Upcoming bool
	Now      time.Time
}

// Stats summarises the asset inventory.
type Stats struct {
	TotalAssets         int             `json:"totalAssets"`
	AvailableAssets     int             `json:"availableAssets"`
	AssignedAssets      int             `json:"assignedAssets"`
	MaintenanceAssets   int             `json:"maintenanceAssets"`
	RetiredAssets       int             `json:"retiredAssets"`
	UpcomingMaintenance int             `json:"upcomingMaintenance"`
	ByCategory          []CategoryCount `json:"byCategory"`
}

// CategoryCount is the number of assets in one category.
type CategoryCount struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}
