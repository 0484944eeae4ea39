package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/audit/audittest"
	"itdesk.org/internal/auth"
)

type stubStore struct {
	Store

	createAssetFn   func(ctx context.Context, a Asset) (Asset, error)
	assetByIDFn     func(ctx context.Context, id string) (Asset, error)
	updateAssetFn   func(ctx context.Context, id string, upd AssetUpdate) (Asset, error)
	deleteAssetFn   func(ctx context.Context, id string) error
	assignAssetFn   func(ctx context.Context, id, userID string, at time.Time) (Asset, error)
	unassignAssetFn func(ctx context.Context, id string) (Asset, error)
	categoryByIDFn  func(ctx context.Context, id string) (Category, error)
	createMaintFn   func(ctx context.Context, m MaintenanceSchedule) (MaintenanceSchedule, error)
	createCatFn     func(ctx context.Context, c Category) (Category, error)
	createLocFn     func(ctx context.Context, l Location) (Location, error)
}

func (s *stubStore) CreateCategory(ctx context.Context, c Category) (Category, error) {
	return s.createCatFn(ctx, c)
}

func (s *stubStore) CreateLocation(ctx context.Context, l Location) (Location, error) {
	return s.createLocFn(ctx, l)
}

func (s *stubStore) CreateAsset(ctx context.Context, a Asset) (Asset, error) {
	return s.createAssetFn(ctx, a)
}

func (s *stubStore) AssetByID(ctx context.Context, id string) (Asset, error) {
	return s.assetByIDFn(ctx, id)
}

func (s *stubStore) UpdateAsset(ctx context.Context, id string, upd AssetUpdate) (Asset, error) {
	return s.updateAssetFn(ctx, id, upd)
}

func (s *stubStore) DeleteAsset(ctx context.Context, id string) error {
	return s.deleteAssetFn(ctx, id)
}

func (s *stubStore) AssignAsset(ctx context.Context, id, userID string, at time.Time) (Asset, error) {
	return s.assignAssetFn(ctx, id, userID, at)
}

func (s *stubStore) UnassignAsset(ctx context.Context, id string) (Asset, error) {
	return s.unassignAssetFn(ctx, id)
}

func (s *stubStore) CategoryByID(ctx context.Context, id string) (Category, error) {
	return s.categoryByIDFn(ctx, id)
}

func (s *stubStore) CreateMaintenance(ctx context.Context, m MaintenanceSchedule) (MaintenanceSchedule, error) {
	return s.createMaintFn(ctx, m)
}

func TestCreateAssetGeneratesTagFromCategory(t *testing.T) {
	rec := &audittest.Recorder{}
	store := &stubStore{
		categoryByIDFn: func(_ context.Context, id string) (Category, error) {
			return Category{ID: id, Name: "Laptops"}, nil
		},
		createAssetFn: func(_ context.Context, a Asset) (Asset, error) { return a, nil },
	}
	svc := NewService(store, rec)

	asset, err := svc.CreateAsset(context.Background(), "admin", NewAsset{Name: "ThinkPad", CategoryID: "c1", LocationID: "l1"})
	require.NoError(t, err)
	assert.Regexp(t, `^LAPT-[2-9A-HJ-NP-Z]{6}$`, asset.AssetTag)
	assert.Equal(t, StatusAvailable, asset.Status)
	assert.Equal(t, "admin", asset.CreatedByID)
	assert.Equal(t, []string{audit.ActionCreateAsset}, rec.Actions())
}

func TestCreateAssetValidation(t *testing.T) {
	svc := NewService(&stubStore{}, nil)
	_, err := svc.CreateAsset(context.Background(), "admin", NewAsset{Status: StatusAssigned})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	details := apperr.Details(err)
	for _, f := range []string{"name", "categoryId", "locationId", "status"} {
		assert.Contains(t, details, f)
	}
}

func TestAssignAssetNotAvailableWritesNoAudit(t *testing.T) {
	rec := &audittest.Recorder{}
	store := &stubStore{
		assignAssetFn: func(context.Context, string, string, time.Time) (Asset, error) {
			return Asset{}, fmt.Errorf("%w: asset is not available for assignment", apperr.ErrInvalidState)
		},
	}
	svc := NewService(store, rec)

	_, err := svc.AssignAsset(context.Background(), "admin", "a1", "u1")
	require.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Empty(t, rec.Actions())

	_, err = svc.AssignAsset(context.Background(), "admin", "a1", " ")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestAssignAssetRecordsAudit(t *testing.T) {
	rec := &audittest.Recorder{}
	store := &stubStore{
		assignAssetFn: func(_ context.Context, id, userID string, at time.Time) (Asset, error) {
			return Asset{ID: id, Status: StatusAssigned, AssignedTo: &auth.UserRef{ID: userID}, AssignedAt: &at}, nil
		},
	}
	svc := NewService(store, rec)

	asset, err := svc.AssignAsset(context.Background(), "admin", "a1", "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, asset.Status)

	e, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, audit.ActionAssignAsset, e.Action)
	assert.Equal(t, "a1", e.ResourceID)
	assert.Equal(t, "u1", e.NewValues["assignedToId"])
}

func TestDeleteAssignedAssetRejected(t *testing.T) {
	rec := &audittest.Recorder{}
	deleted := false
	store := &stubStore{
		assetByIDFn: func(_ context.Context, id string) (Asset, error) {
			return Asset{ID: id, Status: StatusAssigned, AssignedTo: &auth.UserRef{ID: "u1"}}, nil
		},
		deleteAssetFn: func(context.Context, string) error { deleted = true; return nil },
	}
	svc := NewService(store, rec)

	err := svc.DeleteAsset(context.Background(), "admin", "a1")
	require.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.False(t, deleted)
	assert.Empty(t, rec.Actions())
}

func TestUnassignRequiresAssigned(t *testing.T) {
	store := &stubStore{
		assetByIDFn: func(_ context.Context, id string) (Asset, error) {
			return Asset{ID: id, Status: StatusAvailable}, nil
		},
	}
	_, err := NewService(store, nil).UnassignAsset(context.Background(), "admin", "a1")
	require.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestUpdateAssetStatusGuards(t *testing.T) {
	rec := &audittest.Recorder{}
	current := Asset{ID: "a1", Name: "Old", Status: StatusAssigned, AssignedTo: &auth.UserRef{ID: "u1"}}
	store := &stubStore{
		assetByIDFn: func(context.Context, string) (Asset, error) { return current, nil },
		updateAssetFn: func(_ context.Context, _ string, upd AssetUpdate) (Asset, error) {
			out := current
			if upd.Name != nil {
				out.Name = *upd.Name
			}
			return out, nil
		},
	}
	svc := NewService(store, rec)

	retired := StatusRetired
	_, err := svc.UpdateAsset(context.Background(), "admin", "a1", AssetUpdate{Status: &retired})
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	name := "New"
	out, err := svc.UpdateAsset(context.Background(), "admin", "a1", AssetUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "New", out.Name)

	e, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, audit.Snapshot{"name": "Old"}, e.OldValues)
	assert.Equal(t, audit.Snapshot{"name": "New"}, e.NewValues)
}

func TestScheduleMaintenanceRequiresAsset(t *testing.T) {
	store := &stubStore{
		assetByIDFn: func(context.Context, string) (Asset, error) { return Asset{}, apperr.ErrNotFound },
	}
	_, err := NewService(store, nil).ScheduleMaintenance(context.Background(), "admin", NewMaintenance{
		AssetID: "missing", Type: MaintenancePreventive, Title: "Dust", ScheduledDate: time.Now(),
	})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateCategoryAndLocationRecordAudit(t *testing.T) {
	rec := &audittest.Recorder{}
	store := &stubStore{
		createCatFn: func(_ context.Context, c Category) (Category, error) { return c, nil },
		createLocFn: func(_ context.Context, l Location) (Location, error) { return l, nil },
	}
	svc := NewService(store, rec)

	cat, err := svc.CreateCategory(context.Background(), "admin", " Monitors ", "")
	require.NoError(t, err)
	loc, err := svc.CreateLocation(context.Background(), "admin", Location{Name: "HQ 3rd floor", Address: "Main st 1"})
	require.NoError(t, err)

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionCreateAssetCategory, entries[0].Action)
	assert.Equal(t, audit.ResourceAssetCategory, entries[0].ResourceType)
	assert.Equal(t, cat.ID, entries[0].ResourceID)
	assert.Equal(t, "Monitors", entries[0].NewValues["name"])
	assert.Equal(t, audit.ActionCreateLocation, entries[1].Action)
	assert.Equal(t, audit.ResourceLocation, entries[1].ResourceType)
	assert.Equal(t, loc.ID, entries[1].ResourceID)
	assert.Equal(t, "admin", entries[1].ActorID)
}

func TestCreateCategoryConflictWritesNoAudit(t *testing.T) {
	rec := &audittest.Recorder{}
	store := &stubStore{createCatFn: func(context.Context, Category) (Category, error) {
		return Category{}, apperr.ErrConflict
	}}

	_, err := NewService(store, rec).CreateCategory(context.Background(), "admin", "Laptops", "")
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Empty(t, rec.Entries())
}
