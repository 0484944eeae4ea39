package httpapi

import (
	"net/http"
	"strings"
	"time"

	"itdesk.org/internal/inventory"
)

type createAssetRequest struct {
	Name           string     `json:"name" validate:"required,max=200"`
	AssetTag       string     `json:"assetTag" validate:"max=50"`
	Description    string     `json:"description" validate:"max=2000"`
	CategoryID     string     `json:"categoryId" validate:"required"`
	LocationID     string     `json:"locationId" validate:"required"`
	SerialNumber   string     `json:"serialNumber" validate:"max=100"`
	Model          string     `json:"model" validate:"max=100"`
	Manufacturer   string     `json:"manufacturer" validate:"max=100"`
	PurchaseDate   *time.Time `json:"purchaseDate"`
	PurchasePrice  *float64   `json:"purchasePrice" validate:"omitempty,gte=0"`
	WarrantyExpiry *time.Time `json:"warrantyExpiryDate"`
	Status         string     `json:"status" validate:"omitempty,oneof=AVAILABLE ASSIGNED MAINTENANCE RETIRED"`
	Notes          string     `json:"notes" validate:"max=2000"`
}

type updateAssetRequest struct {
	Name           *string    `json:"name" validate:"omitempty,min=1,max=200"`
	Description    *string    `json:"description" validate:"omitempty,max=2000"`
	CategoryID     *string    `json:"categoryId" validate:"omitempty,min=1"`
	LocationID     *string    `json:"locationId" validate:"omitempty,min=1"`
	SerialNumber   *string    `json:"serialNumber" validate:"omitempty,max=100"`
	Model          *string    `json:"model" validate:"omitempty,max=100"`
	Manufacturer   *string    `json:"manufacturer" validate:"omitempty,max=100"`
	PurchaseDate   *time.Time `json:"purchaseDate"`
	PurchasePrice  *float64   `json:"purchasePrice" validate:"omitempty,gte=0"`
	WarrantyExpiry *time.Time `json:"warrantyExpiryDate"`
	Status         *string    `json:"status" validate:"omitempty,oneof=AVAILABLE ASSIGNED MAINTENANCE RETIRED"`
	Notes          *string    `json:"notes" validate:"omitempty,max=2000"`
}

type assignAssetRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type scheduleMaintenanceRequest struct {
	Type          string    `json:"type" validate:"required,oneof=PREVENTIVE CORRECTIVE INSPECTION"`
	Title         string    `json:"title" validate:"required,max=200"`
	Description   string    `json:"description" validate:"max=2000"`
	ScheduledDate time.Time `json:"scheduledDate" validate:"required"`
	AssignedToID  string    `json:"assignedToId"`
	Notes         string    `json:"notes" validate:"max=2000"`
}

type createCategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=255"`
}

type createLocationRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Address     string `json:"address" validate:"max=255"`
	Description string `json:"description" validate:"max=255"`
}

func (a *API) handleInventoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Inventory.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleListAssetCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.svc.Inventory.Categories(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (a *API) handleCreateAssetCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	cat, err := a.svc.Inventory.CreateCategory(r.Context(), actorID(r), req.Name, req.Description)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cat)
}

func (a *API) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := a.svc.Inventory.Locations(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locs)
}

func (a *API) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	loc, err := a.svc.Inventory.CreateLocation(r.Context(), actorID(r), inventory.Location{
		Name:        req.Name,
		Address:     req.Address,
		Description: req.Description,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

// handleListMaintenance lists upcoming schedules unless upcoming=false.
func (a *API) handleListMaintenance(w http.ResponseWriter, r *http.Request) {
	upcoming, err := queryBool(r, "upcoming")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	onlyUpcoming := upcoming == nil || *upcoming
	list, err := a.svc.Inventory.Maintenance(r.Context(), strings.TrimSpace(r.URL.Query().Get("assetId")), onlyUpcoming)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleListAssets(w http.ResponseWriter, r *http.Request) {
	p, err := a.page(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	sortBy, desc := sortParams(r)
	assets, total, err := a.svc.Inventory.ListAssets(r.Context(), inventory.AssetFilter{
		Search:       strings.TrimSpace(q.Get("search")),
		CategoryID:   strings.TrimSpace(q.Get("categoryId")),
		LocationID:   strings.TrimSpace(q.Get("locationId")),
		Status:       inventory.AssetStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		AssignedToID: strings.TrimSpace(q.Get("assignedTo")),
		SortBy:       sortBy,
		SortDesc:     desc,
		Page:         p,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	listResponse(w, assets, p, total)
}

func (a *API) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := a.svc.Inventory.Asset(r.Context(), pathVar(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (a *API) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	asset, err := a.svc.Inventory.CreateAsset(r.Context(), actorID(r), inventory.NewAsset{
		Name:           req.Name,
		AssetTag:       req.AssetTag,
		Description:    req.Description,
		CategoryID:     req.CategoryID,
		LocationID:     req.LocationID,
		SerialNumber:   req.SerialNumber,
		Model:          req.Model,
		Manufacturer:   req.Manufacturer,
		PurchaseDate:   req.PurchaseDate,
		PurchasePrice:  req.PurchasePrice,
		WarrantyExpiry: req.WarrantyExpiry,
		Status:         inventory.AssetStatus(req.Status),
		Notes:          req.Notes,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/inventory/assets/"+asset.ID)
	writeJSON(w, http.StatusCreated, asset)
}

func (a *API) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	var req updateAssetRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	upd := inventory.AssetUpdate{
		Name:           req.Name,
		Description:    req.Description,
		CategoryID:     req.CategoryID,
		LocationID:     req.LocationID,
		SerialNumber:   req.SerialNumber,
		Model:          req.Model,
		Manufacturer:   req.Manufacturer,
		PurchaseDate:   req.PurchaseDate,
		PurchasePrice:  req.PurchasePrice,
		WarrantyExpiry: req.WarrantyExpiry,
		Notes:          req.Notes,
	}
	if req.Status != nil {
		st := inventory.AssetStatus(*req.Status)
		upd.Status = &st
	}
	asset, err := a.svc.Inventory.UpdateAsset(r.Context(), actorID(r), pathVar(r, "id"), upd)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (a *API) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Inventory.DeleteAsset(r.Context(), actorID(r), pathVar(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAssignAsset(w http.ResponseWriter, r *http.Request) {
	var req assignAssetRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	asset, err := a.svc.Inventory.AssignAsset(r.Context(), actorID(r), pathVar(r, "id"), req.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (a *API) handleUnassignAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := a.svc.Inventory.UnassignAsset(r.Context(), actorID(r), pathVar(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (a *API) handleScheduleMaintenance(w http.ResponseWriter, r *http.Request) {
	var req scheduleMaintenanceRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	m, err := a.svc.Inventory.ScheduleMaintenance(r.Context(), actorID(r), inventory.NewMaintenance{
		AssetID:       pathVar(r, "id"),
		Type:          inventory.MaintenanceType(req.Type),
		Title:         req.Title,
		Description:   req.Description,
		ScheduledDate: req.ScheduledDate,
		AssignedToID:  req.AssignedToID,
		Notes:         req.Notes,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}
