package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/inventory"
	"itdesk.org/internal/issues"
	"itdesk.org/internal/releases"
	"itdesk.org/internal/warehouse"
)

// stubWarehouse keeps one item's stock and applies movements with the
// same arithmetic as the service.
type stubWarehouse struct {
	WarehouseService

	stock int
	calls int
}

func (s *stubWarehouse) AdjustStock(_ context.Context, _, itemID string, req warehouse.StockRequest) (warehouse.StockResult, error) {
	s.calls++
	out, err := warehouse.Apply(s.stock, req.Type, req.Quantity)
	if err != nil {
		return warehouse.StockResult{}, err
	}
	s.stock = out.New
	return warehouse.StockResult{
		Item: warehouse.Item{ID: itemID, CurrentStock: out.New},
		Movement: warehouse.Movement{
			ItemID:        itemID,
			Type:          req.Type,
			Quantity:      out.Quantity,
			PreviousStock: out.Previous,
			NewStock:      out.New,
		},
	}, nil
}

func TestAdjustStockReturnsItemWithMovement(t *testing.T) {
	wh := &stubWarehouse{stock: 5}
	api := newTestAPI(t, Services{Warehouse: wh})
	token := api.grant("clerk", auth.PermStockUpdate)

	resp := api.do(http.MethodPut, "/warehouse/items/item-1/stock", token, map[string]any{
		"type": "STOCK_OUT", "quantity": 3, "reason": "handed out",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	item := decode[warehouse.Item](t, resp)
	assert.Equal(t, 2, item.CurrentStock)
	require.Len(t, item.Movements, 1)
	assert.Equal(t, 5, item.Movements[0].PreviousStock)
	assert.Equal(t, 2, item.Movements[0].NewStock)
}

func TestAdjustStockInsufficient(t *testing.T) {
	wh := &stubWarehouse{stock: 2}
	api := newTestAPI(t, Services{Warehouse: wh})
	token := api.grant("clerk", auth.PermStockUpdate)

	resp := api.do(http.MethodPut, "/warehouse/items/item-1/stock", token, map[string]any{
		"type": "STOCK_OUT", "quantity": 3,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Contains(t, body.Message, "insufficient stock")
	assert.Equal(t, 2, wh.stock)
}

func TestAdjustStockRequiresKnownTypeAndQuantity(t *testing.T) {
	wh := &stubWarehouse{}
	api := newTestAPI(t, Services{Warehouse: wh})
	token := api.grant("clerk", auth.PermStockUpdate)

	resp := api.do(http.MethodPut, "/warehouse/items/item-1/stock", token, map[string]any{"type": "TRANSFER"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Contains(t, body.Details, "type")
	assert.Contains(t, body.Details, "quantity")
	assert.Zero(t, wh.calls)
}

func TestAdjustStockNeedsStockPermission(t *testing.T) {
	wh := &stubWarehouse{stock: 5}
	api := newTestAPI(t, Services{Warehouse: wh})
	token := api.grant("viewer", auth.PermInventoryRead, auth.PermInventoryUpdate)

	resp := api.do(http.MethodPut, "/warehouse/items/item-1/stock", token, map[string]any{"type": "STOCK_IN", "quantity": 1})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, wh.calls)
}

type stubInventory struct {
	InventoryService

	status inventory.AssetStatus
	actor  string
}

func (s *stubInventory) AssignAsset(_ context.Context, _, id, userID string) (inventory.Asset, error) {
	if s.status != inventory.StatusAvailable {
		return inventory.Asset{}, fmt.Errorf("%w: asset is not available for assignment", apperr.ErrInvalidState)
	}
	s.status = inventory.StatusAssigned
	return inventory.Asset{ID: id, Status: s.status}, nil
}

func (s *stubInventory) CreateCategory(_ context.Context, actorID, name, _ string) (inventory.Category, error) {
	s.actor = actorID
	return inventory.Category{ID: "cat-1", Name: name}, nil
}

func TestCreateCategoryPassesActor(t *testing.T) {
	inv := &stubInventory{}
	api := newTestAPI(t, Services{Inventory: inv})
	token := api.grant("admin-3", auth.PermInventoryCreate)

	resp := api.do(http.MethodPost, "/inventory/categories", token, map[string]any{"name": "Docks"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "admin-3", inv.actor)
}

func TestAssignAssetNotAvailable(t *testing.T) {
	inv := &stubInventory{status: inventory.StatusMaintenance}
	api := newTestAPI(t, Services{Inventory: inv})
	token := api.grant("tech", auth.PermAssetsAssign)

	resp := api.do(http.MethodPut, "/inventory/assets/a-1/assign", token, map[string]any{"userId": "u-7"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, inventory.StatusMaintenance, inv.status)
}

func TestAssignAssetAvailable(t *testing.T) {
	inv := &stubInventory{status: inventory.StatusAvailable}
	api := newTestAPI(t, Services{Inventory: inv})
	token := api.grant("tech", auth.PermAssetsAssign)

	resp := api.do(http.MethodPut, "/inventory/assets/a-1/assign", token, map[string]any{"userId": "u-7"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	asset := decode[inventory.Asset](t, resp)
	assert.Equal(t, inventory.StatusAssigned, asset.Status)
}

type stubIssues struct {
	IssueService

	filter issues.Filter
}

func (s *stubIssues) List(_ context.Context, f issues.Filter) ([]issues.Issue, int, error) {
	s.filter = f
	return []issues.Issue{{ID: "i-1"}}, 21, nil
}

func TestListIssuesParsesFilter(t *testing.T) {
	st := &stubIssues{}
	api := newTestAPI(t, Services{Issues: st})
	token := api.grant("dev", auth.PermIssuesRead)

	resp := api.do(http.MethodGet, "/issues?type=bug&labels=ui,%20backend&labels=ops&createdAfter=2026-03-01&sortBy=priority&sortOrder=asc&limit=10&page=3", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, issues.Type("BUG"), st.filter.Type)
	assert.Equal(t, []string{"ui", "backend", "ops"}, st.filter.Labels)
	require.NotNil(t, st.filter.CreatedAfter)
	assert.Equal(t, time.March, st.filter.CreatedAfter.Month())
	assert.Equal(t, "priority", st.filter.SortBy)
	assert.False(t, st.filter.SortDesc)
	assert.Equal(t, 3, st.filter.Page.Page)

	body := decode[map[string]any](t, resp)
	pg := body["pagination"].(map[string]any)
	assert.Equal(t, float64(21), pg["total"])
	assert.Equal(t, float64(3), pg["pages"])
}

func TestListIssuesRejectsBadDate(t *testing.T) {
	api := newTestAPI(t, Services{Issues: &stubIssues{}})
	token := api.grant("dev", auth.PermIssuesRead)

	resp := api.do(http.MethodGet, "/issues?createdAfter=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListIssuesRejectsOverflowingPage(t *testing.T) {
	st := &stubIssues{}
	api := newTestAPI(t, Services{Issues: st})
	token := api.grant("dev", auth.PermIssuesRead)

	resp := api.do(http.MethodGet, "/issues?page=9223372036854775807&limit=100", token, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Contains(t, body.Details, "page")
	assert.Zero(t, st.filter.Page.Page)
}

type stubReleases struct {
	ReleaseService

	linked []string
}

func (s *stubReleases) LinkIssue(_ context.Context, _, releaseID, issueID string) (releases.IssueRef, error) {
	for _, id := range s.linked {
		if id == issueID {
			return releases.IssueRef{}, fmt.Errorf("%w: issue already linked", apperr.ErrConflict)
		}
	}
	s.linked = append(s.linked, issueID)
	return releases.IssueRef{ID: issueID, Title: "crash on login", Status: "RESOLVED"}, nil
}

func TestLinkReleaseIssue(t *testing.T) {
	rel := &stubReleases{}
	api := newTestAPI(t, Services{Releases: rel})
	token := api.grant("rm", auth.PermReleasesUpdate)

	resp := api.do(http.MethodPost, "/releases/r-1/issues", token, map[string]any{"issueId": "i-4"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ref := decode[releases.IssueRef](t, resp)
	assert.Equal(t, "i-4", ref.ID)

	resp = api.do(http.MethodPost, "/releases/r-1/issues", token, map[string]any{"issueId": "i-4"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
