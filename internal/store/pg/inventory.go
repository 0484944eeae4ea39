package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/inventory"
	"itdesk.org/internal/paging"
)

// InventoryStore persists assets, maintenance schedules and their reference data.
type InventoryStore struct {
	db *sql.DB
}

func NewInventoryStore(db *sql.DB) *InventoryStore { return &InventoryStore{db: db} }

const assetSelect = `
	select a.id, a.asset_tag, a.name, coalesce(a.description, ''), a.category_id, c.name,
		a.location_id, l.name, coalesce(a.serial_number, ''), coalesce(a.model, ''),
		coalesce(a.manufacturer, ''), a.purchase_date, a.purchase_price::float8, a.warranty_expiry,
		a.status, coalesce(a.notes, ''), a.assigned_to_id, coalesce(u.email, ''),
		coalesce(u.first_name, ''), coalesce(u.last_name, ''), a.assigned_at,
		coalesce(a.created_by_id, ''), a.created_at, a.updated_at
	from assets a
	join categories c on c.id = a.category_id
	join locations l on l.id = a.location_id
	left join users u on u.id = a.assigned_to_id`

func scanAsset(row rowScanner) (inventory.Asset, error) {
	var (
		a                              inventory.Asset
		purchase, warranty, assignedAt sql.NullTime
		price                          sql.NullFloat64
		assigneeID                     sql.NullString
		email, first, last             string
	)
	err := row.Scan(&a.ID, &a.AssetTag, &a.Name, &a.Description, &a.CategoryID, &a.CategoryName,
		&a.LocationID, &a.LocationName, &a.SerialNumber, &a.Model, &a.Manufacturer,
		&purchase, &price, &warranty, &a.Status, &a.Notes, &assigneeID, &email,
		&first, &last, &assignedAt, &a.CreatedByID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return inventory.Asset{}, err
	}
	a.PurchaseDate = timePtr(purchase)
	a.PurchasePrice = floatPtr(price)
	a.WarrantyExpiry = timePtr(warranty)
	a.AssignedAt = timePtr(assignedAt)
	if assigneeID.Valid {
		a.AssignedTo = &auth.UserRef{ID: assigneeID.String, Email: email, FirstName: first, LastName: last}
	}
	return a, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func (s *InventoryStore) CreateAsset(ctx context.Context, a inventory.Asset) (inventory.Asset, error) {
	if s.db == nil {
		return inventory.Asset{}, errUnavailable
	}
	_, err := s.db.ExecContext(ctx, `
		insert into assets (id, asset_tag, name, description, category_id, location_id, serial_number,
			model, manufacturer, purchase_date, purchase_price, warranty_expiry, status, notes,
			created_by_id, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
	`, a.ID, a.AssetTag, a.Name, nullIfEmpty(a.Description), a.CategoryID, a.LocationID,
		nullIfEmpty(a.SerialNumber), nullIfEmpty(a.Model), nullIfEmpty(a.Manufacturer),
		nullTime(a.PurchaseDate), nullFloat(a.PurchasePrice), nullTime(a.WarrantyExpiry),
		string(a.Status), nullIfEmpty(a.Notes), nullIfEmpty(a.CreatedByID), a.CreatedAt)
	if err != nil {
		return inventory.Asset{}, mapErr(err, "asset")
	}
	return s.AssetByID(ctx, a.ID)
}

func (s *InventoryStore) AssetByID(ctx context.Context, id string) (inventory.Asset, error) {
	if s.db == nil {
		return inventory.Asset{}, errUnavailable
	}
	a, err := scanAsset(s.db.QueryRowContext(ctx, assetSelect+` where a.id = $1`, id))
	if err != nil {
		return inventory.Asset{}, mapErr(err, "asset")
	}
	return a, nil
}

var assetSortColumns = map[string]string{
	"createdAt":    "a.created_at",
	"updatedAt":    "a.updated_at",
	"name":         "a.name",
	"assetTag":     "a.asset_tag",
	"status":       "a.status",
	"purchaseDate": "a.purchase_date",
}

func (s *InventoryStore) ListAssets(ctx context.Context, f inventory.AssetFilter) ([]inventory.Asset, int, error) {
	if s.db == nil {
		return nil, 0, errUnavailable
	}
	var w where
	if f.Search != "" {
		p := w.arg(likePattern(f.Search))
		w.add(fmt.Sprintf("(a.name ilike %[1]s or a.asset_tag ilike %[1]s or a.serial_number ilike %[1]s or a.model ilike %[1]s)", p))
	}
	if f.CategoryID != "" {
		w.add("a.category_id = " + w.arg(f.CategoryID))
	}
	if f.LocationID != "" {
		w.add("a.location_id = " + w.arg(f.LocationID))
	}
	if f.Status != "" {
		w.add("a.status = " + w.arg(string(f.Status)))
	}
	if f.AssignedToID != "" {
		w.add("a.assigned_to_id = " + w.arg(f.AssignedToID))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from assets a`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	p := f.Page.Normalize(paging.DefaultLimit, paging.MaxLimit)
	args := append(append([]any{}, w.args...), p.Limit, p.Offset())
	desc := f.SortDesc || f.SortBy == ""
	query := assetSelect + w.String() + orderBy(assetSortColumns, f.SortBy, "a.created_at", desc) +
		fmt.Sprintf(" limit $%d offset $%d", len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []inventory.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (s *InventoryStore) UpdateAsset(ctx context.Context, id string, upd inventory.AssetUpdate) (inventory.Asset, error) {
	if s.db == nil {
		return inventory.Asset{}, errUnavailable
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
	if upd.SerialNumber != nil {
		u.set("serial_number", nullIfEmpty(*upd.SerialNumber))
	}
	if upd.Model != nil {
		u.set("model", nullIfEmpty(*upd.Model))
	}
	if upd.Manufacturer != nil {
		u.set("manufacturer", nullIfEmpty(*upd.Manufacturer))
	}
	if upd.PurchaseDate != nil {
		u.set("purchase_date", *upd.PurchaseDate)
	}
	if upd.PurchasePrice != nil {
		u.set("purchase_price", *upd.PurchasePrice)
	}
	if upd.WarrantyExpiry != nil {
		u.set("warranty_expiry", *upd.WarrantyExpiry)
	}
	if upd.Status != nil {
		u.set("status", string(*upd.Status))
	}
	if upd.Notes != nil {
		u.set("notes", nullIfEmpty(*upd.Notes))
	}
	u.raw("updated_at = now()")
	query, args := u.update("assets", id)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return inventory.Asset{}, mapErr(err, "asset")
	}
	if err := requireAffected(res, "asset"); err != nil {
		return inventory.Asset{}, err
	}
	return s.AssetByID(ctx, id)
}

// DeleteAsset removes an asset that nobody holds.
func (s *InventoryStore) DeleteAsset(ctx context.Context, id string) error {
	if s.db == nil {
		return errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from assets where id = $1 and assigned_to_id is null`, id)
	if err != nil {
		return mapErr(err, "asset")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missingOr(ctx, id, "asset is assigned")
	}
	return nil
}

// missingOr resolves a conditional write that matched no row: NotFound when
// the asset does not exist, otherwise ErrInvalidState with reason.
func (s *InventoryStore) missingOr(ctx context.Context, id, reason string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists(select 1 from assets where id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: asset not found", apperr.ErrNotFound)
	}
	return fmt.Errorf("%w: %s", apperr.ErrInvalidState, reason)
}

// AssignAsset is a compare-and-set on status: only an AVAILABLE asset moves to
// ASSIGNED, so two concurrent assignments cannot both succeed.
func (s *InventoryStore) AssignAsset(ctx context.Context, id, userID string, at time.Time) (inventory.Asset, error) {
	if s.db == nil {
		return inventory.Asset{}, errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update assets
		set status = 'ASSIGNED', assigned_to_id = $2, assigned_at = $3, updated_at = $3
		where id = $1 and status = 'AVAILABLE'
	`, id, userID, at)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return inventory.Asset{}, fmt.Errorf("%w: user not found", apperr.ErrNotFound)
		}
		return inventory.Asset{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return inventory.Asset{}, err
	}
	if n == 0 {
		return inventory.Asset{}, s.missingOr(ctx, id, "asset is not available for assignment")
	}
	return s.AssetByID(ctx, id)
}

func (s *InventoryStore) UnassignAsset(ctx context.Context, id string) (inventory.Asset, error) {
	if s.db == nil {
		return inventory.Asset{}, errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update assets
		set status = 'AVAILABLE', assigned_to_id = null, assigned_at = null, updated_at = now()
		where id = $1 and status = 'ASSIGNED'
	`, id)
	if err != nil {
		return inventory.Asset{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return inventory.Asset{}, err
	}
	if n == 0 {
		return inventory.Asset{}, s.missingOr(ctx, id, "asset is not assigned")
	}
	return s.AssetByID(ctx, id)
}

const maintenanceSelect = `
	select m.id, m.asset_id, a.name, a.asset_tag, m.type, m.title, coalesce(m.description, ''),
		m.scheduled_date, m.status, m.assigned_to_id, coalesce(u.email, ''), coalesce(u.first_name, ''),
		coalesce(u.last_name, ''), coalesce(m.notes, ''), coalesce(m.created_by_id, ''), m.created_at
	from maintenance_schedules m
	join assets a on a.id = m.asset_id
	left join users u on u.id = m.assigned_to_id`

func scanMaintenance(row rowScanner) (inventory.MaintenanceSchedule, error) {
	var (
		m                  inventory.MaintenanceSchedule
		assigneeID         sql.NullString
		email, first, last string
	)
	if err := row.Scan(&m.ID, &m.AssetID, &m.AssetName, &m.AssetTag, &m.Type, &m.Title, &m.Description,
		&m.ScheduledDate, &m.Status, &assigneeID, &email, &first, &last, &m.Notes, &m.CreatedByID, &m.CreatedAt); err != nil {
		return inventory.MaintenanceSchedule{}, err
	}
	if assigneeID.Valid {
		m.AssignedTo = &auth.UserRef{ID: assigneeID.String, Email: email, FirstName: first, LastName: last}
	}
	return m, nil
}

func (s *InventoryStore) CreateMaintenance(ctx context.Context, m inventory.MaintenanceSchedule) (inventory.MaintenanceSchedule, error) {
	if s.db == nil {
		return inventory.MaintenanceSchedule{}, errUnavailable
	}
	var assigneeID string
	if m.AssignedTo != nil {
		assigneeID = m.AssignedTo.ID
	}
	_, err := s.db.ExecContext(ctx, `
		insert into maintenance_schedules (id, asset_id, type, title, description, scheduled_date, status,
			assigned_to_id, notes, created_by_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, m.ID, m.AssetID, string(m.Type), m.Title, nullIfEmpty(m.Description), m.ScheduledDate, string(m.Status),
		nullIfEmpty(assigneeID), nullIfEmpty(m.Notes), nullIfEmpty(m.CreatedByID), m.CreatedAt)
	if err != nil {
		return inventory.MaintenanceSchedule{}, mapErr(err, "maintenance schedule")
	}
	out, err := scanMaintenance(s.db.QueryRowContext(ctx, maintenanceSelect+` where m.id = $1`, m.ID))
	if err != nil {
		return inventory.MaintenanceSchedule{}, mapErr(err, "maintenance schedule")
	}
	return out, nil
}

func (s *InventoryStore) ListMaintenance(ctx context.Context, f inventory.MaintenanceFilter) ([]inventory.MaintenanceSchedule, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	var w where
	if f.AssetID != "" {
		w.add("m.asset_id = " + w.arg(f.AssetID))
	}
	if f.Upcoming {
		w.add("m.status = 'SCHEDULED'")
		w.add("m.scheduled_date >= " + w.arg(f.Now))
	}
	rows, err := s.db.QueryContext(ctx, maintenanceSelect+w.String()+` order by m.scheduled_date asc`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.MaintenanceSchedule
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *InventoryStore) CategoryByID(ctx context.Context, id string) (inventory.Category, error) {
	if s.db == nil {
		return inventory.Category{}, errUnavailable
	}
	var c inventory.Category
	err := s.db.QueryRowContext(ctx, `
		select c.id, c.name, coalesce(c.description, ''), (select count(*) from assets a where a.category_id = c.id)
		from categories c where c.id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Description, &c.AssetCount)
	if err != nil {
		return inventory.Category{}, mapErr(err, "category")
	}
	return c, nil
}

func (s *InventoryStore) ListCategories(ctx context.Context) ([]inventory.Category, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select c.id, c.name, coalesce(c.description, ''), count(a.id)
		from categories c
		left join assets a on a.category_id = c.id
		group by c.id
		order by c.name asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.Category
	for rows.Next() {
		var c inventory.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.AssetCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *InventoryStore) CreateCategory(ctx context.Context, c inventory.Category) (inventory.Category, error) {
	if s.db == nil {
		return inventory.Category{}, errUnavailable
	}
	if _, err := s.db.ExecContext(ctx, `insert into categories (id, name, description) values ($1, $2, $3)`,
		c.ID, c.Name, nullIfEmpty(c.Description)); err != nil {
		return inventory.Category{}, mapErr(err, "category")
	}
	return c, nil
}

func (s *InventoryStore) ListLocations(ctx context.Context) ([]inventory.Location, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select l.id, l.name, coalesce(l.address, ''), coalesce(l.description, ''), count(a.id)
		from locations l
		left join assets a on a.location_id = l.id
		group by l.id
		order by l.name asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.Location
	for rows.Next() {
		var l inventory.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Address, &l.Description, &l.AssetCount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *InventoryStore) CreateLocation(ctx context.Context, l inventory.Location) (inventory.Location, error) {
	if s.db == nil {
		return inventory.Location{}, errUnavailable
	}
	if _, err := s.db.ExecContext(ctx, `insert into locations (id, name, address, description) values ($1, $2, $3, $4)`,
		l.ID, l.Name, nullIfEmpty(l.Address), nullIfEmpty(l.Description)); err != nil {
		return inventory.Location{}, mapErr(err, "location")
	}
	return l, nil
}

// InventoryStats counts assets by status and SCHEDULED maintenance dated in
// [now, horizon].
func (s *InventoryStore) InventoryStats(ctx context.Context, now, horizon time.Time) (inventory.Stats, error) {
	if s.db == nil {
		return inventory.Stats{}, errUnavailable
	}
	var st inventory.Stats
	err := s.db.QueryRowContext(ctx, `
		select
			count(*),
			count(*) filter (where status = 'AVAILABLE'),
			count(*) filter (where status = 'ASSIGNED'),
			count(*) filter (where status = 'MAINTENANCE'),
			count(*) filter (where status = 'RETIRED'),
			(select count(*) from maintenance_schedules
			 where status = 'SCHEDULED' and scheduled_date between $1 and $2)
		from assets
	`, now, horizon).Scan(&st.TotalAssets, &st.AvailableAssets, &st.AssignedAssets, &st.MaintenanceAssets,
		&st.RetiredAssets, &st.UpcomingMaintenance)
	if err != nil {
		return inventory.Stats{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select c.id, c.name, count(a.id)
		from categories c
		left join assets a on a.category_id = c.id
		group by c.id
		order by count(a.id) desc, c.name asc
	`)
	if err != nil {
		return inventory.Stats{}, err
	}
	defer rows.Close()
	st.ByCategory = []inventory.CategoryCount{}
	for rows.Next() {
		var cc inventory.CategoryCount
		if err := rows.Scan(&cc.ID, &cc.Name, &cc.Count); err != nil {
			return inventory.Stats{}, err
		}
		st.ByCategory = append(st.ByCategory, cc)
	}
	return st, rows.Err()
}

var _ inventory.Store = (*InventoryStore)(nil)
