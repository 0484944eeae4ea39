package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/paging"
	"itdesk.org/internal/warehouse"
)

// WarehouseStore persists stock items, movements and low-stock alerts.
type WarehouseStore struct {
	db *sql.DB
}

func NewWarehouseStore(db *sql.DB) *WarehouseStore { return &WarehouseStore{db: db} }

const itemSelect = `
	select i.id, i.sku, i.name, coalesce(i.description, ''), i.category_id, c.name, i.location_id, l.name,
		coalesce(i.supplier_id, ''), coalesce(s.name, ''), i.current_stock, i.min_stock_level, i.max_stock_level,
		i.unit_price::float8, coalesce(i.unit, ''), coalesce(i.barcode, ''), coalesce(i.notes, ''),
		i.last_stock_update, coalesce(i.created_by_id, ''), i.created_at, i.updated_at
	from inventory_items i
	join item_categories c on c.id = i.category_id
	join locations l on l.id = i.location_id
	left join suppliers s on s.id = i.supplier_id`

func scanItem(row rowScanner) (warehouse.Item, error) {
	var (
		it          warehouse.Item
		maxLevel    sql.NullInt64
		price       sql.NullFloat64
		lastUpdated sql.NullTime
	)
	if err := row.Scan(&it.ID, &it.SKU, &it.Name, &it.Description, &it.CategoryID, &it.CategoryName,
		&it.LocationID, &it.LocationName, &it.SupplierID, &it.SupplierName, &it.CurrentStock, &it.MinStockLevel,
		&maxLevel, &price, &it.Unit, &it.Barcode, &it.Notes, &lastUpdated, &it.CreatedByID,
		&it.CreatedAt, &it.UpdatedAt); err != nil {
		return warehouse.Item{}, err
	}
	it.MaxStockLevel = intPtr(maxLevel)
	it.UnitPrice = floatPtr(price)
	it.LastStockUpdate = timePtr(lastUpdated)
	return it, nil
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func itemByID(ctx context.Context, q querier, id string) (warehouse.Item, error) {
	it, err := scanItem(q.QueryRowContext(ctx, itemSelect+` where i.id = $1`, id))
	if err != nil {
		return warehouse.Item{}, mapErr(err, "inventory item")
	}
	return it, nil
}

func insertMovement(ctx context.Context, q querier, m warehouse.Movement) error {
	_, err := q.ExecContext(ctx, `
		insert into stock_movements (id, item_id, type, quantity, previous_stock, new_stock, reason,
			reference_number, user_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.ItemID, string(m.Type), m.Quantity, m.PreviousStock, m.NewStock, nullIfEmpty(m.Reason),
		nullIfEmpty(m.ReferenceNumber), nullIfEmpty(m.UserID), m.CreatedAt)
	return mapErr(err, "stock movement")
}

// insertOpenAlert relies on stock_alerts_open_uidx: when the item already has
// an unresolved alert nothing is inserted and false is returned.
func insertOpenAlert(ctx context.Context, q querier, a warehouse.Alert) (bool, error) {
	var id string
	err := q.QueryRowContext(ctx, `
		insert into stock_alerts (id, item_id, message, current_stock, min_level, is_resolved, created_by_id, created_at)
		values ($1, $2, $3, $4, $5, false, $6, $7)
		on conflict (item_id) where not is_resolved do nothing
		returning id
	`, a.ID, a.ItemID, a.Message, a.CurrentStock, a.MinLevel, nullIfEmpty(a.CreatedByID), a.CreatedAt).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapErr(err, "stock alert")
	}
	return true, nil
}

func (s *WarehouseStore) CreateItem(ctx context.Context, it warehouse.Item, opening *warehouse.Movement, alert *warehouse.Alert) (warehouse.Item, error) {
	var out warehouse.Item
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into inventory_items (id, sku, name, description, category_id, location_id, supplier_id,
				current_stock, min_stock_level, max_stock_level, unit_price, unit, barcode, notes,
				last_stock_update, created_by_id, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
		`, it.ID, it.SKU, it.Name, nullIfEmpty(it.Description), it.CategoryID, it.LocationID,
			nullIfEmpty(it.SupplierID), it.CurrentStock, it.MinStockLevel, nullInt(it.MaxStockLevel),
			nullFloat(it.UnitPrice), nullIfEmpty(it.Unit), nullIfEmpty(it.Barcode), nullIfEmpty(it.Notes),
			nullTime(it.LastStockUpdate), nullIfEmpty(it.CreatedByID), it.CreatedAt); err != nil {
			return mapErr(err, "inventory item")
		}
		if opening != nil {
			if err := insertMovement(ctx, tx, *opening); err != nil {
				return err
			}
		}
		if alert != nil {
			if _, err := insertOpenAlert(ctx, tx, *alert); err != nil {
				return err
			}
		}
		var err error
		out, err = itemByID(ctx, tx, it.ID)
		return err
	})
	if err != nil {
		return warehouse.Item{}, err
	}
	return out, nil
}

func (s *WarehouseStore) ItemByID(ctx context.Context, id string) (warehouse.Item, error) {
	if s.db == nil {
		return warehouse.Item{}, errUnavailable
	}
	return itemByID(ctx, s.db, id)
}

var itemSortColumns = map[string]string{
	"createdAt":    "i.created_at",
	"updatedAt":    "i.updated_at",
	"name":         "i.name",
	"sku":          "i.sku",
	"currentStock": "i.current_stock",
}

func (s *WarehouseStore) ListItems(ctx context.Context, f warehouse.ItemFilter) ([]warehouse.Item, int, error) {
	if s.db == nil {
		return nil, 0, errUnavailable
	}
	var w where
	if f.Search != "" {
		p := w.arg(likePattern(f.Search))
		w.add(fmt.Sprintf("(i.name ilike %[1]s or i.sku ilike %[1]s or i.barcode ilike %[1]s)", p))
	}
	if f.CategoryID != "" {
		w.add("i.category_id = " + w.arg(f.CategoryID))
	}
	if f.LocationID != "" {
		w.add("i.location_id = " + w.arg(f.LocationID))
	}
	if f.SupplierID != "" {
		w.add("i.supplier_id = " + w.arg(f.SupplierID))
	}
	if f.LowStock {
		w.add("i.current_stock <= i.min_stock_level")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from inventory_items i`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	p := f.Page.Normalize(paging.DefaultLimit, paging.MaxLimit)
	args := append(append([]any{}, w.args...), p.Limit, p.Offset())
	desc := f.SortDesc || f.SortBy == ""
	query := itemSelect + w.String() + orderBy(itemSortColumns, f.SortBy, "i.created_at", desc) +
		fmt.Sprintf(" limit $%d offset $%d", len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []warehouse.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, it)
	}
	return out, total, rows.Err()
}

func (s *WarehouseStore) UpdateItem(ctx context.Context, id string, upd warehouse.ItemUpdate) (warehouse.Item, error) {
	if s.db == nil {
		return warehouse.Item{}, errUnavailable
	}
	var u setter
	if upd.Name != nil {
		u.set("name", *upd.Name)
	}
	if upd.Description != nil {
		u.set("description", nullIfEmpty(*upd.Description))
	}
	if upd.CategoryID != nil {
		u.set("category_id", *upd.CategoryID)
	}
	if upd.LocationID != nil {
		u.set("location_id", *upd.LocationID)
	}
	if upd.SupplierID != nil {
		u.set("supplier_id", nullIfEmpty(*upd.SupplierID))
	}
	if upd.MinStockLevel != nil {
		u.set("min_stock_level", *upd.MinStockLevel)
	}
	if upd.MaxStockLevel != nil {
		u.set("max_stock_level", *upd.MaxStockLevel)
	}
	if upd.UnitPrice != nil {
		u.set("unit_price", *upd.UnitPrice)
	}
	if upd.Unit != nil {
		u.set("unit", nullIfEmpty(*upd.Unit))
	}
	if upd.Barcode != nil {
		u.set("barcode", nullIfEmpty(*upd.Barcode))
	}
	if upd.Notes != nil {
		u.set("notes", nullIfEmpty(*upd.Notes))
	}
	u.raw("updated_at = now()")
	query, args := u.update("inventory_items", id)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return warehouse.Item{}, mapErr(err, "inventory item")
	}
	if err := requireAffected(res, "inventory item"); err != nil {
		return warehouse.Item{}, err
	}
	return itemByID(ctx, s.db, id)
}

// DeleteItem removes an item whose stock is zero.
func (s *WarehouseStore) DeleteItem(ctx context.Context, id string) error {
	if s.db == nil {
		return errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from inventory_items where id = $1 and current_stock = 0`, id)
	if err != nil {
		return mapErr(err, "inventory item")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists(select 1 from inventory_items where id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: inventory item not found", apperr.ErrNotFound)
	}
	return fmt.Errorf("%w: cannot delete item with remaining stock", apperr.ErrInvalidState)
}

// AdjustStock applies one movement under a row lock so concurrent movements
// on the same item serialise. The stock update, movement row and any new
// low-stock alert commit together.
func (s *WarehouseStore) AdjustStock(ctx context.Context, ch warehouse.StockChange) (warehouse.StockResult, error) {
	var res warehouse.StockResult
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var current, minLevel int
		err := tx.QueryRowContext(ctx, `
			select current_stock, min_stock_level from inventory_items where id = $1 for update
		`, ch.ItemID).Scan(&current, &minLevel)
		if err != nil {
			return mapErr(err, "inventory item")
		}

		out, err := ch.Apply(current)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			update inventory_items set current_stock = $2, last_stock_update = $3, updated_at = $3 where id = $1
		`, ch.ItemID, out.New, ch.At); err != nil {
			return mapErr(err, "inventory item")
		}

		mv := warehouse.Movement{
			ID:              ch.MovementID,
			ItemID:          ch.ItemID,
			Type:            ch.Type,
			Quantity:        out.Quantity,
			PreviousStock:   out.Previous,
			NewStock:        out.New,
			Reason:          ch.Reason,
			ReferenceNumber: ch.ReferenceNumber,
			UserID:          ch.UserID,
			CreatedAt:       ch.At,
		}
		if err := insertMovement(ctx, tx, mv); err != nil {
			return err
		}

		if warehouse.IsLow(out.New, minLevel) && ch.AlertID != "" {
			alert := warehouse.Alert{
				ID:           ch.AlertID,
				ItemID:       ch.ItemID,
				Message:      warehouse.LowStockMessage(out.New, minLevel),
				CurrentStock: out.New,
				MinLevel:     minLevel,
				CreatedByID:  ch.UserID,
				CreatedAt:    ch.At,
			}
			created, err := insertOpenAlert(ctx, tx, alert)
			if err != nil {
				return err
			}
			if created {
				res.Alert = &alert
			}
		}

		item, err := itemByID(ctx, tx, ch.ItemID)
		if err != nil {
			return err
		}
		mv.ItemName, mv.ItemSKU = item.Name, item.SKU
		if res.Alert != nil {
			res.Alert.ItemName, res.Alert.ItemSKU = item.Name, item.SKU
		}
		res.Item, res.Movement = item, mv
		return nil
	})
	if err != nil {
		return warehouse.StockResult{}, err
	}
	return res, nil
}

func (s *WarehouseStore) ListMovements(ctx context.Context, itemID string, p paging.Params) ([]warehouse.Movement, int, error) {
	if s.db == nil {
		return nil, 0, errUnavailable
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from stock_movements where item_id = $1`, itemID).Scan(&total); err != nil {
		return nil, 0, err
	}
	p = p.Normalize(paging.DefaultLimit, paging.MaxLimit)
	rows, err := s.db.QueryContext(ctx, `
		select m.id, m.item_id, i.name, i.sku, m.type, m.quantity, m.previous_stock, m.new_stock,
			coalesce(m.reason, ''), coalesce(m.reference_number, ''), coalesce(m.user_id, ''), m.created_at
		from stock_movements m
		join inventory_items i on i.id = m.item_id
		where m.item_id = $1
		order by m.created_at desc
		limit $2 offset $3
	`, itemID, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []warehouse.Movement
	for rows.Next() {
		var m warehouse.Movement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.ItemName, &m.ItemSKU, &m.Type, &m.Quantity, &m.PreviousStock,
			&m.NewStock, &m.Reason, &m.ReferenceNumber, &m.UserID, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// StockHistory returns the stock level after each movement since the given
// time, oldest first.
func (s *WarehouseStore) StockHistory(ctx context.Context, itemID string, since time.Time) ([]warehouse.StockPoint, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select created_at, new_stock, type, quantity
		from stock_movements
		where item_id = $1 and created_at >= $2
		order by created_at asc
	`, itemID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []warehouse.StockPoint{}
	for rows.Next() {
		var p warehouse.StockPoint
		if err := rows.Scan(&p.At, &p.NewStock, &p.Type, &p.Quantity); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const alertSelect = `
	select a.id, a.item_id, i.name, i.sku, a.message, a.current_stock, a.min_level, a.is_resolved,
		a.resolved_at, coalesce(a.resolved_by_id, ''), coalesce(a.created_by_id, ''), a.created_at
	from stock_alerts a
	join inventory_items i on i.id = a.item_id`

func scanAlert(row rowScanner) (warehouse.Alert, error) {
	var (
		a          warehouse.Alert
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.ItemID, &a.ItemName, &a.ItemSKU, &a.Message, &a.CurrentStock, &a.MinLevel,
		&a.IsResolved, &resolvedAt, &a.ResolvedByID, &a.CreatedByID, &a.CreatedAt); err != nil {
		return warehouse.Alert{}, err
	}
	a.ResolvedAt = timePtr(resolvedAt)
	return a, nil
}

// ListAlerts returns alerts newest first; resolved filters by state when set.
func (s *WarehouseStore) ListAlerts(ctx context.Context, resolved *bool) ([]warehouse.Alert, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	var w where
	if resolved != nil {
		w.add("a.is_resolved = " + w.arg(*resolved))
	}
	rows, err := s.db.QueryContext(ctx, alertSelect+w.String()+` order by a.created_at desc`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []warehouse.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *WarehouseStore) ResolveAlert(ctx context.Context, id, userID string, at time.Time) (warehouse.Alert, error) {
	if s.db == nil {
		return warehouse.Alert{}, errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update stock_alerts set is_resolved = true, resolved_at = $3, resolved_by_id = $2
		where id = $1 and not is_resolved
	`, id, nullIfEmpty(userID), at)
	if err != nil {
		return warehouse.Alert{}, mapErr(err, "stock alert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return warehouse.Alert{}, err
	}
	a, err := scanAlert(s.db.QueryRowContext(ctx, alertSelect+` where a.id = $1`, id))
	if err != nil {
		return warehouse.Alert{}, mapErr(err, "stock alert")
	}
	if n == 0 {
		return warehouse.Alert{}, fmt.Errorf("%w: alert is already resolved", apperr.ErrInvalidState)
	}
	return a, nil
}

func (s *WarehouseStore) CreateAlert(ctx context.Context, a warehouse.Alert) (bool, error) {
	if s.db == nil {
		return false, errUnavailable
	}
	return insertOpenAlert(ctx, s.db, a)
}

// LowStockWithoutAlert returns items at or below their minimum that have no
// unresolved alert.
func (s *WarehouseStore) LowStockWithoutAlert(ctx context.Context) ([]warehouse.Item, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, itemSelect+`
		where i.current_stock <= i.min_stock_level
		and not exists (select 1 from stock_alerts a where a.item_id = i.id and not a.is_resolved)
		order by i.current_stock asc, i.name asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []warehouse.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *WarehouseStore) ListCategories(ctx context.Context) ([]warehouse.Category, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select c.id, c.name, coalesce(c.description, ''), count(i.id)
		from item_categories c
		left join inventory_items i on i.category_id = c.id
		group by c.id
		order by c.name asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []warehouse.Category
	for rows.Next() {
		var c warehouse.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.ItemCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *WarehouseStore) ListSuppliers(ctx context.Context) ([]warehouse.Supplier, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select s.id, s.name, coalesce(s.contact_name, ''), coalesce(s.email, ''), coalesce(s.phone, ''), count(i.id)
		from suppliers s
		left join inventory_items i on i.supplier_id = s.id
		group by s.id
		order by s.name asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []warehouse.Supplier
	for rows.Next() {
		var sp warehouse.Supplier
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.ContactName, &sp.Email, &sp.Phone, &sp.ItemCount); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// WarehouseStats counts items and stock; RecentMovements counts movements
// since the given time.
func (s *WarehouseStore) WarehouseStats(ctx context.Context, since time.Time) (warehouse.Stats, error) {
	if s.db == nil {
		return warehouse.Stats{}, errUnavailable
	}
	var st warehouse.Stats
	err := s.db.QueryRowContext(ctx, `
		select
			count(*),
			coalesce(sum(current_stock), 0),
			coalesce(sum(current_stock * coalesce(unit_price, 0)), 0)::float8,
			count(*) filter (where current_stock <= min_stock_level),
			count(*) filter (where current_stock = 0),
			(select count(*) from stock_alerts where not is_resolved),
			(select count(*) from stock_movements where created_at >= $1)
		from inventory_items
	`, since).Scan(&st.TotalItems, &st.TotalStockUnits, &st.TotalStockValue, &st.LowStockItems,
		&st.OutOfStockItems, &st.PendingAlerts, &st.RecentMovements)
	if err != nil {
		return warehouse.Stats{}, err
	}
	return st, nil
}

var _ warehouse.Store = (*WarehouseStore)(nil)
