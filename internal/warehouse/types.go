// Package warehouse manages consumable stock: items, movements and
// low-stock alerts.
package warehouse

import (
	"time"

	"itdesk.org/internal/audit"
	"itdesk.org/internal/paging"
)

// Item is a stocked consumable.
type Item struct {
	ID              string     `json:"id"`
	SKU             string     `json:"sku"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	CategoryID      string     `json:"categoryId"`
	CategoryName    string     `json:"categoryName,omitempty"`
	LocationID      string     `json:"locationId"`
	LocationName    string     `json:"locationName,omitempty"`
	SupplierID      string     `json:"supplierId,omitempty"`
	SupplierName    string     `json:"supplierName,omitempty"`
	CurrentStock    int        `json:"currentStock"`
	MinStockLevel   int        `json:"minStockLevel"`
	MaxStockLevel   *int       `json:"maxStockLevel,omitempty"`
	UnitPrice       *float64   `json:"unitPrice,omitempty"`
	Unit            string     `json:"unit,omitempty"`
	Barcode         string     `json:"barcode,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	LastStockUpdate *time.Time `json:"lastStockUpdate,omitempty"`
	CreatedByID     string     `json:"createdById"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	Movements       []Movement `json:"stockMovements,omitempty"`
}

func (i Item) snapshot() audit.Snapshot {
	s := audit.Snapshot{
		"sku":           i.SKU,
		"name":          i.Name,
		"description":   i.Description,
		"categoryId":    i.CategoryID,
		"locationId":    i.LocationID,
		"supplierId":    i.SupplierID,
		"currentStock":  i.CurrentStock,
		"minStockLevel": i.MinStockLevel,
		"unit":          i.Unit,
		"barcode":       i.Barcode,
		"notes":         i.Notes,
	}
	if i.MaxStockLevel != nil {
		s["maxStockLevel"] = *i.MaxStockLevel
	}
	if i.UnitPrice != nil {
		s["unitPrice"] = *i.UnitPrice
	}
	return s
}

// NewItem carries the fields accepted when creating an item.
type NewItem struct {
	Name          string
	SKU           string
	Description   string
	CategoryID    string
	LocationID    string
	SupplierID    string
	CurrentStock  int
	MinStockLevel int
	MaxStockLevel *int
	UnitPrice     *float64
	Unit          string
	Barcode       string
	Notes         string
}

// ItemUpdate holds optional field changes. Stock is only changed through
// movements.
type ItemUpdate struct {
	Name          *string
	Description   *string
	CategoryID    *string
	LocationID    *string
	SupplierID    *string
	MinStockLevel *int
	MaxStockLevel *int
	UnitPrice     *float64
	Unit          *string
	Barcode       *string
	Notes         *string
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	Search     string
	CategoryID string
	LocationID string
	SupplierID string
	LowStock   bool
	SortBy     string
	SortDesc   bool
	Page       paging.Params
}

// Movement is one recorded change to an item's stock.
type Movement struct {
	ID              string       `json:"id"`
	ItemID          string       `json:"inventoryItemId"`
	ItemName        string       `json:"itemName,omitempty"`
	ItemSKU         string       `json:"itemSku,omitempty"`
	Type            MovementType `json:"type"`
	Quantity        int          `json:"quantity"`
	PreviousStock   int          `json:"previousStock"`
	NewStock        int          `json:"newStock"`
	Reason          string       `json:"reason,omitempty"`
	ReferenceNumber string       `json:"referenceNumber,omitempty"`
	UserID          string       `json:"userId"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// Alert flags an item whose stock fell to or below its minimum. At most one
// unresolved alert exists per item.
type Alert struct {
	ID           string     `json:"id"`
	ItemID       string     `json:"inventoryItemId"`
	ItemName     string     `json:"itemName,omitempty"`
	ItemSKU      string     `json:"itemSku,omitempty"`
	Message      string     `json:"message"`
	CurrentStock int        `json:"currentStock"`
	MinLevel     int        `json:"minLevel"`
	IsResolved   bool       `json:"resolved"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
	ResolvedByID string     `json:"resolvedById,omitempty"`
	CreatedByID  string     `json:"createdById,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// StockRequest is a caller's requested movement.
type StockRequest struct {
	Type            MovementType
	Quantity        int
	Reason          string
	ReferenceNumber string
}

// StockChange is what the store needs to apply a movement atomically. The
// store locks the item, calls Apply with the locked stock level, writes the
// new level and movement, and inserts AlertID as a low-stock alert when the
// new level is low and no unresolved alert exists.
type StockChange struct {
	ItemID          string
	MovementID      string
	AlertID         string
	Type            MovementType
	Reason          string
	ReferenceNumber string
	UserID          string
	At              time.Time
	Apply           func(current int) (Outcome, error)
}

// StockResult is the committed outcome of a stock change. Alert is set only
// when this change created a new alert.
type StockResult struct {
	Item     Item     `json:"item"`
	Movement Movement `json:"movement"`
	Alert    *Alert   `json:"alert,omitempty"`
}

// Category groups warehouse items.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ItemCount   int    `json:"itemCount"`
}

// Supplier provides warehouse items.
type Supplier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContactName string `json:"contactName,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	ItemCount   int    `json:"itemCount"`
}

// Stats summarises warehouse state.
type Stats struct {
	TotalItems      int     `json:"totalItems"`
	TotalStockUnits int     `json:"totalStockUnits"`
	TotalStockValue float64 `json:"totalStockValue"`
	LowStockItems   int     `json:"lowStockItems"`
	OutOfStockItems int     `json:"outOfStockItems"`
	PendingAlerts   int     `json:"pendingAlerts"`
	RecentMovements int     `json:"recentMovements"`
}

// StockPoint is one sample in an item's stock history.
type StockPoint struct {
	At       time.Time    `json:"createdAt"`
	NewStock int          `json:"newStock"`
	Type     MovementType `json:"type"`
	Quantity int          `json:"quantity"`
}
