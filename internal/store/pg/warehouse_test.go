package pg

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/warehouse"
)

var stockAt = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func warehouseChange(itemID string, qty int) warehouse.StockChange {
	return warehouse.StockChange{
		ItemID:     itemID,
		MovementID: "mov-1",
		AlertID:    "alr-1",
		Type:       warehouse.MovementOut,
		Reason:     "issued to desk 4",
		UserID:     "usr-1",
		At:         stockAt,
		Apply: func(current int) (warehouse.Outcome, error) {
			return warehouse.Apply(current, warehouse.MovementOut, qty)
		},
	}
}

func itemRows(stock, minLevel int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "sku", "name", "description", "category_id", "category", "location_id",
		"location", "supplier_id", "supplier", "current_stock", "min_stock_level", "max_stock_level", "unit_price",
		"unit", "barcode", "notes", "last_stock_update", "created_by_id", "created_at", "updated_at"}).
		AddRow("item-1", "TONER-01", "Toner", "", "icat-1", "Printing", "loc-1", "HQ", "", "", stock, minLevel,
			nil, 42.5, "pcs", "", "", stockAt, "usr-1", stockAt, stockAt)
}

func TestAdjustStockCreatesAlertWhenLow(t *testing.T) {
	db, mock := newMock(t)
	s := NewWarehouseStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("select current_stock, min_stock_level from inventory_items where id = $1 for update")).
		WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows([]string{"current_stock", "min_stock_level"}).AddRow(5, 3))
	mock.ExpectExec("update inventory_items set current_stock").
		WithArgs("item-1", 2, stockAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into stock_movements").
		WithArgs("mov-1", "item-1", "STOCK_OUT", 3, 5, 2, "issued to desk 4", nil, "usr-1", stockAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("on conflict (item_id) where not is_resolved do nothing")).
		WithArgs("alr-1", "item-1", warehouse.LowStockMessage(2, 3), 2, 3, "usr-1", stockAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("alr-1"))
	mock.ExpectQuery("from inventory_items i").WithArgs("item-1").WillReturnRows(itemRows(2, 3))
	mock.ExpectCommit()

	res, err := s.AdjustStock(context.Background(), warehouseChange("item-1", 3))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Item.CurrentStock)
	assert.Equal(t, 5, res.Movement.PreviousStock)
	assert.Equal(t, "Toner", res.Movement.ItemName)
	require.NotNil(t, res.Alert)
	assert.Equal(t, "alr-1", res.Alert.ID)
	assert.Equal(t, "TONER-01", res.Alert.ItemSKU)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustStockSkipsAlertWhenOneIsOpen(t *testing.T) {
	db, mock := newMock(t)
	s := NewWarehouseStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("for update").
		WillReturnRows(sqlmock.NewRows([]string{"current_stock", "min_stock_level"}).AddRow(3, 3))
	mock.ExpectExec("update inventory_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into stock_movements").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("insert into stock_alerts").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("from inventory_items i").WillReturnRows(itemRows(2, 3))
	mock.ExpectCommit()

	res, err := s.AdjustStock(context.Background(), warehouseChange("item-1", 1))
	require.NoError(t, err)
	assert.Nil(t, res.Alert)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustStockInsufficientRollsBack(t *testing.T) {
	db, mock := newMock(t)
	s := NewWarehouseStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("for update").
		WillReturnRows(sqlmock.NewRows([]string{"current_stock", "min_stock_level"}).AddRow(2, 1))
	mock.ExpectRollback()

	_, err := s.AdjustStock(context.Background(), warehouseChange("item-1", 5))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustStockMissingItem(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("for update").WillReturnRows(sqlmock.NewRows([]string{"current_stock", "min_stock_level"}))
	mock.ExpectRollback()

	_, err := NewWarehouseStore(db).AdjustStock(context.Background(), warehouseChange("nope", 1))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResolveAlertAlreadyResolved(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("update stock_alerts set is_resolved = true").
		WithArgs("alr-1", "usr-1", stockAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("from stock_alerts a").WithArgs("alr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "item_id", "name", "sku", "message", "current_stock", "min_level",
			"is_resolved", "resolved_at", "resolved_by_id", "created_by_id", "created_at"}).
			AddRow("alr-1", "item-1", "Toner", "TONER-01", "low", 1, 3, true, stockAt, "usr-2", "", stockAt))

	_, err := NewWarehouseStore(db).ResolveAlert(context.Background(), "alr-1", "usr-1", stockAt)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestDeleteItemWithStock(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("delete from inventory_items").WithArgs("item-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select exists").WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := NewWarehouseStore(db).DeleteItem(context.Background(), "item-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}
