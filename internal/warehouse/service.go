package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/ids"
	"itdesk.org/internal/obs"
	"itdesk.org/internal/paging"
)

const (
	recentMovementWindow = 24 * time.Hour
	itemDetailMovements  = 20
	defaultHistoryDays   = 30
	maxHistoryDays       = 365
)

// Store persists warehouse state.
type Store interface {
	// CreateItem inserts the item, its opening STOCK_IN movement (when
	// non-nil) and its low-stock alert (when non-nil) in one transaction.
	CreateItem(ctx context.Context, item Item, opening *Movement, alert *Alert) (Item, error)
	ItemByID(ctx context.Context, id string) (Item, error)
	ListItems(ctx context.Context, f ItemFilter) ([]Item, int, error)
	UpdateItem(ctx context.Context, id string, upd ItemUpdate) (Item, error)
	// DeleteItem removes an item with zero stock; stock > 0 yields ErrInvalidState.
	DeleteItem(ctx context.Context, id string) error

	AdjustStock(ctx context.Context, change StockChange) (StockResult, error)
	ListMovements(ctx context.Context, itemID string, p paging.Params) ([]Movement, int, error)
	StockHistory(ctx context.Context, itemID string, since time.Time) ([]StockPoint, error)

	ListAlerts(ctx context.Context, resolved *bool) ([]Alert, error)
	// ResolveAlert marks an unresolved alert resolved; an already resolved
	// alert yields ErrInvalidState.
	ResolveAlert(ctx context.Context, id, userID string, at time.Time) (Alert, error)
	// CreateAlert inserts alert unless the item already has an unresolved one.
	CreateAlert(ctx context.Context, alert Alert) (bool, error)
	LowStockWithoutAlert(ctx context.Context) ([]Item, error)

	ListCategories(ctx context.Context) ([]Category, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)
	WarehouseStats(ctx context.Context, since time.Time) (Stats, error)
}

// Service implements warehouse operations.
type Service struct {
	store   Store
	auditor audit.Auditor
	now     func() time.Time
}

// NewService constructs Service.
func NewService(store Store, auditor audit.Auditor) *Service {
	return &Service{store: store, auditor: auditor, now: time.Now}
}

// CreateItem adds an item. Opening stock is recorded as a STOCK_IN movement.
func (s *Service) CreateItem(ctx context.Context, actorID string, in NewItem) (Item, error) {
	in.Name = strings.TrimSpace(in.Name)
	fields := map[string]string{}
	if in.Name == "" {
		fields["name"] = "is required"
	}
	if strings.TrimSpace(in.CategoryID) == "" {
		fields["categoryId"] = "is required"
	}
	if strings.TrimSpace(in.LocationID) == "" {
		fields["locationId"] = "is required"
	}
	if in.CurrentStock < 0 {
		fields["currentStock"] = "must not be negative"
	}
	if in.MinStockLevel < 0 {
		fields["minStockLevel"] = "must not be negative"
	}
	if in.MaxStockLevel != nil && *in.MaxStockLevel < in.MinStockLevel {
		fields["maxStockLevel"] = "must not be below minStockLevel"
	}
	if in.UnitPrice != nil && *in.UnitPrice < 0 {
		fields["unitPrice"] = "must not be negative"
	}
	if len(fields) > 0 {
		return Item{}, apperr.NewValidation(fields)
	}

	now := s.now().UTC()
	sku := strings.ToUpper(strings.TrimSpace(in.SKU))
	if sku == "" {
		sku = ids.Code(in.Name)
	}
	item := Item{
		ID:            ids.New(),
		SKU:           sku,
		Name:          in.Name,
		Description:   strings.TrimSpace(in.Description),
		CategoryID:    in.CategoryID,
		LocationID:    in.LocationID,
		SupplierID:    strings.TrimSpace(in.SupplierID),
		CurrentStock:  in.CurrentStock,
		MinStockLevel: in.MinStockLevel,
		MaxStockLevel: in.MaxStockLevel,
		UnitPrice:     in.UnitPrice,
		Unit:          strings.TrimSpace(in.Unit),
		Barcode:       strings.TrimSpace(in.Barcode),
		Notes:         in.Notes,
		CreatedByID:   actorID,
	}
	if in.CurrentStock > 0 {
		item.LastStockUpdate = &now
	}

	var opening *Movement
	if in.CurrentStock > 0 {
		opening = &Movement{
			ID:            ids.New(),
			ItemID:        item.ID,
			Type:          MovementIn,
			Quantity:      in.CurrentStock,
			PreviousStock: 0,
			NewStock:      in.CurrentStock,
			Reason:        "Initial stock",
			UserID:        actorID,
			CreatedAt:     now,
		}
	}
	var alert *Alert
	if IsLow(item.CurrentStock, item.MinStockLevel) {
		alert = s.newAlert(item.ID, item.CurrentStock, item.MinStockLevel, actorID, now)
	}

	created, err := s.store.CreateItem(ctx, item, opening, alert)
	if err != nil {
		return Item{}, err
	}
	if alert != nil {
		obs.ObserveStockAlert("create")
	}
	s.record(ctx, actorID, audit.ActionCreateItem, audit.ResourceInventoryItem, created.ID, nil, created.snapshot())
	return created, nil
}

// Item returns one item with its most recent movements.
func (s *Service) Item(ctx context.Context, id string) (Item, error) {
	item, err := s.store.ItemByID(ctx, id)
	if err != nil {
		return Item{}, err
	}
	moves, _, err := s.store.ListMovements(ctx, id, paging.Params{Page: 1, Limit: itemDetailMovements})
	if err != nil {
		return Item{}, err
	}
	item.Movements = moves
	return item, nil
}

func (s *Service) Items(ctx context.Context, f ItemFilter) ([]Item, int, error) {
	return s.store.ListItems(ctx, f)
}

// UpdateItem changes descriptive fields and thresholds.
func (s *Service) UpdateItem(ctx context.Context, actorID, id string, upd ItemUpdate) (Item, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return Item{}, apperr.FieldError("name", "must not be empty")
	}
	if upd.MinStockLevel != nil && *upd.MinStockLevel < 0 {
		return Item{}, apperr.FieldError("minStockLevel", "must not be negative")
	}
	if upd.UnitPrice != nil && *upd.UnitPrice < 0 {
		return Item{}, apperr.FieldError("unitPrice", "must not be negative")
	}
	before, err := s.store.ItemByID(ctx, id)
	if err != nil {
		return Item{}, err
	}
	after, err := s.store.UpdateItem(ctx, id, upd)
	if err != nil {
		return Item{}, err
	}
	oldV, newV := audit.Diff(before.snapshot(), after.snapshot())
	s.record(ctx, actorID, audit.ActionUpdateItem, audit.ResourceInventoryItem, id, oldV, newV)
	return after, nil
}

// DeleteItem removes an item that holds no stock.
func (s *Service) DeleteItem(ctx context.Context, actorID, id string) error {
	before, err := s.store.ItemByID(ctx, id)
	if err != nil {
		return err
	}
	if before.CurrentStock > 0 {
		return fmt.Errorf("%w: cannot delete item with current stock", apperr.ErrInvalidState)
	}
	if err := s.store.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, audit.ActionDeleteItem, audit.ResourceInventoryItem, id, before.snapshot(), nil)
	return nil
}

// AdjustStock applies one movement under a row lock and raises a low-stock
// alert if none is open for the item.
func (s *Service) AdjustStock(ctx context.Context, actorID, itemID string, req StockRequest) (StockResult, error) {
	if err := req.validate(); err != nil {
		return StockResult{}, err
	}

	kind, qty := req.Type, req.Quantity
	res, err := s.store.AdjustStock(ctx, StockChange{
		ItemID:          itemID,
		MovementID:      ids.New(),
		AlertID:         ids.New(),
		Type:            kind,
		Reason:          strings.TrimSpace(req.Reason),
		ReferenceNumber: strings.TrimSpace(req.ReferenceNumber),
		UserID:          actorID,
		At:              s.now().UTC(),
		Apply: func(current int) (Outcome, error) {
			return Apply(current, kind, qty)
		},
	})
	if err != nil {
		return StockResult{}, err
	}
	if res.Alert != nil {
		obs.ObserveStockAlert("adjustment")
	}
	s.record(ctx, actorID, audit.ActionAdjustStock, audit.ResourceInventoryItem, itemID,
		audit.Snapshot{"currentStock": res.Movement.PreviousStock},
		audit.Snapshot{
			"currentStock": res.Movement.NewStock,
			"type":         string(res.Movement.Type),
			"quantity":     res.Movement.Quantity,
		})
	return res, nil
}

// Movements lists stock movements, newest first, optionally for one item.
func (s *Service) Movements(ctx context.Context, itemID string, p paging.Params) ([]Movement, int, error) {
	return s.store.ListMovements(ctx, itemID, p)
}

// StockHistory returns the item's stock level after each movement in the last days.
func (s *Service) StockHistory(ctx context.Context, itemID string, days int) ([]StockPoint, error) {
	if days <= 0 {
		days = defaultHistoryDays
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}
	if _, err := s.store.ItemByID(ctx, itemID); err != nil {
		return nil, err
	}
	since := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	return s.store.StockHistory(ctx, itemID, since)
}

// Alerts lists low-stock alerts; resolved filters when non-nil.
func (s *Service) Alerts(ctx context.Context, resolved *bool) ([]Alert, error) {
	return s.store.ListAlerts(ctx, resolved)
}

// ResolveAlert closes an open alert.
func (s *Service) ResolveAlert(ctx context.Context, actorID, id string) (Alert, error) {
	alert, err := s.store.ResolveAlert(ctx, id, actorID, s.now().UTC())
	if err != nil {
		return Alert{}, err
	}
	s.record(ctx, actorID, audit.ActionResolveAlert, audit.ResourceStockAlert, id,
		audit.Snapshot{"resolved": false},
		audit.Snapshot{"resolved": true, "inventoryItemId": alert.ItemID})
	return alert, nil
}

func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *Service) Suppliers(ctx context.Context) ([]Supplier, error) {
	return s.store.ListSuppliers(ctx)
}

// Stats summarises stock levels, open alerts and movements in the last 24 hours.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.store.WarehouseStats(ctx, s.now().UTC().Add(-recentMovementWindow))
}

func (s *Service) newAlert(itemID string, stock, minLevel int, actorID string, at time.Time) *Alert {
	return &Alert{
		ID:           ids.New(),
		ItemID:       itemID,
		Message:      LowStockMessage(stock, minLevel),
		CurrentStock: stock,
		MinLevel:     minLevel,
		CreatedByID:  actorID,
		CreatedAt:    at,
	}
}

func (s *Service) record(ctx context.Context, actorID, action, resource, id string, oldV, newV audit.Snapshot) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, actorID, action, resource, id, oldV, newV)
}
