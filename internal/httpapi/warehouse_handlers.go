package httpapi

import (
	"net/http"
	"strings"

	"itdesk.org/internal/warehouse"
)

type createItemRequest struct {
	Name          string   `json:"name" validate:"required,max=200"`
	SKU           string   `json:"sku" validate:"max=50"`
	Description   string   `json:"description" validate:"max=2000"`
	CategoryID    string   `json:"categoryId" validate:"required"`
	LocationID    string   `json:"locationId" validate:"required"`
	SupplierID    string   `json:"supplierId"`
	CurrentStock  int      `json:"currentStock" validate:"gte=0"`
	MinStockLevel int      `json:"minStockLevel" validate:"gte=0"`
	MaxStockLevel *int     `json:"maxStockLevel" validate:"omitempty,gte=0"`
	UnitPrice     *float64 `json:"unitPrice" validate:"omitempty,gte=0"`
	Unit          string   `json:"unit" validate:"max=20"`
	Barcode       string   `json:"barcode" validate:"max=100"`
	Notes         string   `json:"notes" validate:"max=2000"`
}

type updateItemRequest struct {
	Name          *string  `json:"name" validate:"omitempty,min=1,max=200"`
	Description   *string  `json:"description" validate:"omitempty,max=2000"`
	CategoryID    *string  `json:"categoryId" validate:"omitempty,min=1"`
	LocationID    *string  `json:"locationId" validate:"omitempty,min=1"`
	SupplierID    *string  `json:"supplierId"`
	MinStockLevel *int     `json:"minStockLevel" validate:"omitempty,gte=0"`
	MaxStockLevel *int     `json:"maxStockLevel" validate:"omitempty,gte=0"`
	UnitPrice     *float64 `json:"unitPrice" validate:"omitempty,gte=0"`
	Unit          *string  `json:"unit" validate:"omitempty,max=20"`
	Barcode       *string  `json:"barcode" validate:"omitempty,max=100"`
	Notes         *string  `json:"notes" validate:"omitempty,max=2000"`
}

// stockRequest carries a movement. Quantity is the amount for STOCK_IN and
// STOCK_OUT and the absolute target for ADJUSTMENT.
type stockRequest struct {
	Type            string `json:"type" validate:"required,oneof=STOCK_IN STOCK_OUT ADJUSTMENT"`
	Quantity        *int   `json:"quantity" validate:"required,gte=0"`
	Reason          string `json:"reason" validate:"max=500"`
	ReferenceNumber string `json:"referenceNumber" validate:"max=100"`
}

func (a *API) handleWarehouseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Warehouse.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	resolved, err := queryBool(r, "resolved")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	alerts, err := a.svc.Warehouse.Alerts(r.Context(), resolved)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (a *API) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := a.svc.Warehouse.ResolveAlert(r.Context(), actorID(r), pathVar(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (a *API) handleListItemCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.svc.Warehouse.Categories(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (a *API) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	sups, err := a.svc.Warehouse.Suppliers(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sups)
}

func (a *API) handleListMovements(w http.ResponseWriter, r *http.Request) {
	p, err := a.page(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	moves, total, err := a.svc.Warehouse.Movements(r.Context(), strings.TrimSpace(r.URL.Query().Get("itemId")), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	listResponse(w, moves, p, total)
}

func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	p, err := a.page(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	low, err := queryBool(r, "lowStock")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	sortBy, desc := sortParams(r)
	items, total, err := a.svc.Warehouse.Items(r.Context(), warehouse.ItemFilter{
		Search:     strings.TrimSpace(q.Get("search")),
		CategoryID: strings.TrimSpace(q.Get("categoryId")),
		LocationID: strings.TrimSpace(q.Get("locationId")),
		SupplierID: strings.TrimSpace(q.Get("supplierId")),
		LowStock:   low != nil && *low,
		SortBy:     sortBy,
		SortDesc:   desc,
		Page:       p,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	listResponse(w, items, p, total)
}

func (a *API) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := a.svc.Warehouse.Item(r.Context(), pathVar(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	item, err := a.svc.Warehouse.CreateItem(r.Context(), actorID(r), warehouse.NewItem{
		Name:          req.Name,
		SKU:           req.SKU,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		LocationID:    req.LocationID,
		SupplierID:    req.SupplierID,
		CurrentStock:  req.CurrentStock,
		MinStockLevel: req.MinStockLevel,
		MaxStockLevel: req.MaxStockLevel,
		UnitPrice:     req.UnitPrice,
		Unit:          req.Unit,
		Barcode:       req.Barcode,
		Notes:         req.Notes,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/warehouse/items/"+item.ID)
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	item, err := a.svc.Warehouse.UpdateItem(r.Context(), actorID(r), pathVar(r, "id"), warehouse.ItemUpdate{
		Name:          req.Name,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		LocationID:    req.LocationID,
		SupplierID:    req.SupplierID,
		MinStockLevel: req.MinStockLevel,
		MaxStockLevel: req.MaxStockLevel,
		UnitPrice:     req.UnitPrice,
		Unit:          req.Unit,
		Barcode:       req.Barcode,
		Notes:         req.Notes,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Warehouse.DeleteItem(r.Context(), actorID(r), pathVar(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAdjustStock responds with the updated item carrying the recorded movement.
func (a *API) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.svc.Warehouse.AdjustStock(r.Context(), actorID(r), pathVar(r, "id"), warehouse.StockRequest{
		Type:            warehouse.MovementType(req.Type),
		Quantity:        *req.Quantity,
		Reason:          req.Reason,
		ReferenceNumber: req.ReferenceNumber,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	item := res.Item
	item.Movements = []warehouse.Movement{res.Movement}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	points, err := a.svc.Warehouse.StockHistory(r.Context(), pathVar(r, "id"), days)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}
