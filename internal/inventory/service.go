package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/ids"
)

const upcomingWindow = 30 * 24 * time.Hour

// Store persists assets, maintenance schedules, categories and locations.
type Store interface {
	CreateAsset(ctx context.Context, a Asset) (Asset, error)
	AssetByID(ctx context.Context, id string) (Asset, error)
	ListAssets(ctx context.Context, f AssetFilter) ([]Asset, int, error)
	UpdateAsset(ctx context.Context, id string, upd AssetUpdate) (Asset, error)
	// DeleteAsset removes an unassigned asset. An assigned asset yields ErrInvalidState.
	DeleteAsset(ctx context.Context, id string) error
	// AssignAsset moves an AVAILABLE asset to ASSIGNED in one conditional update.
	AssignAsset(ctx context.Context, id, userID string, at time.Time) (Asset, error)
	// UnassignAsset moves an ASSIGNED asset back to AVAILABLE.
	UnassignAsset(ctx context.Context, id string) (Asset, error)

	CreateMaintenance(ctx context.Context, m MaintenanceSchedule) (MaintenanceSchedule, error)
	ListMaintenance(ctx context.Context, f MaintenanceFilter) ([]MaintenanceSchedule, error)

	CategoryByID(ctx context.Context, id string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, c Category) (Category, error)
	ListLocations(ctx context.Context) ([]Location, error)
	CreateLocation(ctx context.Context, l Location) (Location, error)

	InventoryStats(ctx context.Context, now, horizon time.Time) (Stats, error)
}

// Service implements asset and maintenance operations.
type Service struct {
	store   Store
	auditor audit.Auditor
	now     func() time.Time
}

// NewService constructs Service.
func NewService(store Store, auditor audit.Auditor) *Service {
	return &Service{store: store, auditor: auditor, now: time.Now}
}

// CreateAsset registers an asset. A missing tag is generated from the category name.
func (s *Service) CreateAsset(ctx context.Context, actorID string, in NewAsset) (Asset, error) {
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
	if in.Status == "" {
		in.Status = StatusAvailable
	}
	if !in.Status.Valid() || in.Status == StatusAssigned {
		fields["status"] = "must be one of AVAILABLE, MAINTENANCE, RETIRED"
	}
	if in.PurchasePrice != nil && *in.PurchasePrice < 0 {
		fields["purchasePrice"] = "must not be negative"
	}
	if len(fields) > 0 {
		return Asset{}, apperr.NewValidation(fields)
	}

	tag := strings.ToUpper(strings.TrimSpace(in.AssetTag))
	if tag == "" {
		cat, err := s.store.CategoryByID(ctx, in.CategoryID)
		if err != nil {
			return Asset{}, fmt.Errorf("category %s: %w", in.CategoryID, err)
		}
		tag = ids.Code(cat.Name)
	}

	asset, err := s.store.CreateAsset(ctx, Asset{
		ID:             ids.New(),
		AssetTag:       tag,
		Name:           in.Name,
		Description:    strings.TrimSpace(in.Description),
		CategoryID:     in.CategoryID,
		LocationID:     in.LocationID,
		SerialNumber:   strings.TrimSpace(in.SerialNumber),
		Model:          strings.TrimSpace(in.Model),
		Manufacturer:   strings.TrimSpace(in.Manufacturer),
		PurchaseDate:   in.PurchaseDate,
		PurchasePrice:  in.PurchasePrice,
		WarrantyExpiry: in.WarrantyExpiry,
		Status:         in.Status,
		Notes:          in.Notes,
		CreatedByID:    actorID,
	})
	if err != nil {
		return Asset{}, err
	}
	s.record(ctx, actorID, audit.ActionCreateAsset, asset.ID, nil, asset.snapshot())
	return asset, nil
}

// Asset returns one asset with its maintenance schedules.
func (s *Service) Asset(ctx context.Context, id string) (Asset, error) {
	asset, err := s.store.AssetByID(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	schedules, err := s.store.ListMaintenance(ctx, MaintenanceFilter{AssetID: id})
	if err != nil {
		return Asset{}, err
	}
	asset.Maintenance = schedules
	return asset, nil
}

// ListAssets returns a page of assets.
func (s *Service) ListAssets(ctx context.Context, f AssetFilter) ([]Asset, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.FieldError("status", "unknown asset status")
	}
	return s.store.ListAssets(ctx, f)
}

// UpdateAsset changes asset fields. Assignment is managed by Assign/Unassign,
// so status may not be set to ASSIGNED nor moved off ASSIGNED here.
func (s *Service) UpdateAsset(ctx context.Context, actorID, id string, upd AssetUpdate) (Asset, error) {
	before, err := s.store.AssetByID(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return Asset{}, apperr.FieldError("name", "must not be empty")
	}
	if upd.Status != nil {
		switch {
		case !upd.Status.Valid():
			return Asset{}, apperr.FieldError("status", "unknown asset status")
		case *upd.Status == StatusAssigned && before.Status != StatusAssigned:
			return Asset{}, fmt.Errorf("%w: use the assign operation to assign an asset", apperr.ErrInvalidState)
		case before.Status == StatusAssigned && *upd.Status != StatusAssigned:
			return Asset{}, fmt.Errorf("%w: unassign the asset before changing its status", apperr.ErrInvalidState)
		}
	}
	after, err := s.store.UpdateAsset(ctx, id, upd)
	if err != nil {
		return Asset{}, err
	}
	oldV, newV := audit.Diff(before.snapshot(), after.snapshot())
	s.record(ctx, actorID, audit.ActionUpdateAsset, id, oldV, newV)
	return after, nil
}

// DeleteAsset removes an asset that is not assigned to anyone.
func (s *Service) DeleteAsset(ctx context.Context, actorID, id string) error {
	before, err := s.store.AssetByID(ctx, id)
	if err != nil {
		return err
	}
	if before.AssignedTo != nil || before.Status == StatusAssigned {
		return fmt.Errorf("%w: cannot delete an assigned asset", apperr.ErrInvalidState)
	}
	if err := s.store.DeleteAsset(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, audit.ActionDeleteAsset, id, before.snapshot(), nil)
	return nil
}

// AssignAsset hands an AVAILABLE asset to a user.
func (s *Service) AssignAsset(ctx context.Context, actorID, id, userID string) (Asset, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Asset{}, apperr.FieldError("assignedToId", "is required")
	}
	asset, err := s.store.AssignAsset(ctx, id, userID, s.now().UTC())
	if err != nil {
		return Asset{}, err
	}
	s.record(ctx, actorID, audit.ActionAssignAsset, id,
		audit.Snapshot{"status": string(StatusAvailable)},
		audit.Snapshot{"status": string(asset.Status), "assignedToId": userID})
	return asset, nil
}

// UnassignAsset returns an ASSIGNED asset to the pool.
func (s *Service) UnassignAsset(ctx context.Context, actorID, id string) (Asset, error) {
	before, err := s.store.AssetByID(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	if before.Status != StatusAssigned {
		return Asset{}, fmt.Errorf("%w: asset is not assigned", apperr.ErrInvalidState)
	}
	asset, err := s.store.UnassignAsset(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	prev := audit.Snapshot{"status": string(before.Status)}
	if before.AssignedTo != nil {
		prev["assignedToId"] = before.AssignedTo.ID
	}
	s.record(ctx, actorID, audit.ActionUnassignAsset, id, prev, audit.Snapshot{"status": string(asset.Status)})
	return asset, nil
}

// ScheduleMaintenance plans maintenance for an existing asset.
func (s *Service) ScheduleMaintenance(ctx context.Context, actorID string, in NewMaintenance) (MaintenanceSchedule, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.AssetID) == "" {
		fields["assetId"] = "is required"
	}
	if !in.Type.Valid() {
		fields["type"] = "must be one of PREVENTIVE, CORRECTIVE, INSPECTION"
	}
	if strings.TrimSpace(in.Title) == "" {
		fields["title"] = "is required"
	}
	if in.ScheduledDate.IsZero() {
		fields["scheduledDate"] = "is required"
	}
	if len(fields) > 0 {
		return MaintenanceSchedule{}, apperr.NewValidation(fields)
	}
	if _, err := s.store.AssetByID(ctx, in.AssetID); err != nil {
		return MaintenanceSchedule{}, err
	}
	m := MaintenanceSchedule{
		ID:            ids.New(),
		AssetID:       in.AssetID,
		Type:          in.Type,
		Title:         strings.TrimSpace(in.Title),
		Description:   strings.TrimSpace(in.Description),
		ScheduledDate: in.ScheduledDate.UTC(),
		Status:        MaintenanceScheduled,
		Notes:         in.Notes,
		CreatedByID:   actorID,
	}
	if in.AssignedToID != "" {
		m.AssignedTo = &auth.UserRef{ID: in.AssignedToID}
	}
	created, err := s.store.CreateMaintenance(ctx, m)
	if err != nil {
		return MaintenanceSchedule{}, err
	}
	s.record(ctx, actorID, audit.ActionScheduleMaintenance, created.ID, nil, audit.Snapshot{
		"assetId":       created.AssetID,
		"type":          string(created.Type),
		"scheduledDate": created.ScheduledDate,
	})
	return created, nil
}

// Maintenance lists schedules, optionally only upcoming ones.
func (s *Service) Maintenance(ctx context.Context, assetID string, upcoming bool) ([]MaintenanceSchedule, error) {
	return s.store.ListMaintenance(ctx, MaintenanceFilter{AssetID: assetID, Upcoming: upcoming, Now: s.now().UTC()})
}

func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.store.ListCategories(ctx)
}

// CreateCategory adds an asset category. Names are unique.
func (s *Service) CreateCategory(ctx context.Context, actorID, name, description string) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, apperr.FieldError("name", "is required")
	}
	cat, err := s.store.CreateCategory(ctx, Category{ID: ids.New(), Name: name, Description: strings.TrimSpace(description)})
	if errors.Is(err, apperr.ErrConflict) {
		return Category{}, fmt.Errorf("%w: category %q already exists", apperr.ErrConflict, name)
	}
	if err != nil {
		return Category{}, err
	}
	s.record(ctx, actorID, audit.ActionCreateAssetCategory, cat.ID, nil,
		audit.Snapshot{"name": cat.Name, "description": cat.Description})
	return cat, nil
}

func (s *Service) Locations(ctx context.Context) ([]Location, error) {
	return s.store.ListLocations(ctx)
}

// CreateLocation adds a location. Names are unique.
func (s *Service) CreateLocation(ctx context.Context, actorID string, in Location) (Location, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Location{}, apperr.FieldError("name", "is required")
	}
	in.ID = ids.New()
	loc, err := s.store.CreateLocation(ctx, in)
	if errors.Is(err, apperr.ErrConflict) {
		return Location{}, fmt.Errorf("%w: location %q already exists", apperr.ErrConflict, in.Name)
	}
	if err != nil {
		return Location{}, err
	}
	s.record(ctx, actorID, audit.ActionCreateLocation, loc.ID, nil,
		audit.Snapshot{"name": loc.Name, "address": loc.Address})
	return loc, nil
}

// Stats counts assets per status and maintenance due in the next 30 days.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	now := s.now().UTC()
	return s.store.InventoryStats(ctx, now, now.Add(upcomingWindow))
}

func (s *Service) record(ctx context.Context, actorID, action, id string, oldV, newV audit.Snapshot) {
	if s.auditor == nil {
		return
	}
	resource := audit.ResourceAsset
	switch action {
	case audit.ActionScheduleMaintenance:
		resource = audit.ResourceMaintenance
	case audit.ActionCreateAssetCategory:
		resource = audit.ResourceAssetCategory
	case audit.ActionCreateLocation:
		resource = audit.ResourceLocation
	}
	s.auditor.Record(ctx, actorID, action, resource, id, oldV, newV)
}
