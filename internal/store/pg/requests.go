package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/paging"
	"itdesk.org/internal/requests"
)

// RequestStore persists service requests, their linked assets and comments.
type RequestStore struct {
	db *sql.DB
}

func NewRequestStore(db *sql.DB) *RequestStore { return &RequestStore{db: db} }

const requestSelect = `
	select r.id, r.title, r.description, r.type, r.priority, r.status, coalesce(r.department, ''),
		r.due_date, rq.id, rq.email, rq.first_name, rq.last_name,
		r.assignee_id, coalesce(asg.email, ''), coalesce(asg.first_name, ''), coalesce(asg.last_name, ''),
		(select count(*) from comments c where c.request_id = r.id),
		r.closed_at, r.created_at, r.updated_at
	from requests r
	join users rq on rq.id = r.requester_id
	left join users asg on asg.id = r.assignee_id`

func scanRequest(row rowScanner) (requests.Request, error) {
	var (
		r                  requests.Request
		due, closed        sql.NullTime
		assigneeID         sql.NullString
		email, first, last string
	)
	if err := row.Scan(&r.ID, &r.Title, &r.Description, &r.Type, &r.Priority, &r.Status, &r.Department,
		&due, &r.Requester.ID, &r.Requester.Email, &r.Requester.FirstName, &r.Requester.LastName,
		&assigneeID, &email, &first, &last, &r.CommentCount, &closed, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return requests.Request{}, err
	}
	r.DueDate = timePtr(due)
	r.ClosedAt = timePtr(closed)
	if assigneeID.Valid {
		r.Assignee = &auth.UserRef{ID: assigneeID.String, Email: email, FirstName: first, LastName: last}
	}
	return r, nil
}

func (s *RequestStore) requestAssets(ctx context.Context, id string) ([]requests.AssetRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		select a.id, a.name, a.asset_tag, coalesce(ra.notes, '')
		from request_assets ra
		join assets a on a.id = ra.asset_id
		where ra.request_id = $1
		order by a.asset_tag asc
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []requests.AssetRef
	for rows.Next() {
		var a requests.AssetRef
		if err := rows.Scan(&a.ID, &a.Name, &a.AssetTag, &a.Notes); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateRequest inserts the request and its asset links in one transaction.
func (s *RequestStore) CreateRequest(ctx context.Context, r requests.Request) (requests.Request, error) {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into requests (id, title, description, type, priority, status, department, due_date, requester_id)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, r.ID, r.Title, r.Description, string(r.Type), string(r.Priority), string(r.Status),
			nullIfEmpty(r.Department), nullTime(r.DueDate), r.Requester.ID); err != nil {
			return mapErr(err, "request")
		}
		for _, a := range r.Assets {
			if _, err := tx.ExecContext(ctx, `
				insert into request_assets (request_id, asset_id, notes) values ($1, $2, $3)
				on conflict do nothing
			`, r.ID, a.ID, nullIfEmpty(a.Notes)); err != nil {
				if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
					return fmt.Errorf("%w: asset %s not found", apperr.ErrNotFound, a.ID)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return requests.Request{}, err
	}
	return s.RequestByID(ctx, r.ID)
}

// RequestByID returns the request with its linked assets.
func (s *RequestStore) RequestByID(ctx context.Context, id string) (requests.Request, error) {
	if s.db == nil {
		return requests.Request{}, errUnavailable
	}
	r, err := scanRequest(s.db.QueryRowContext(ctx, requestSelect+` where r.id = $1`, id))
	if err != nil {
		return requests.Request{}, mapErr(err, "request")
	}
	if r.Assets, err = s.requestAssets(ctx, id); err != nil {
		return requests.Request{}, err
	}
	return r, nil
}

var requestSortColumns = map[string]string{
	"createdAt": "r.created_at",
	"updatedAt": "r.updated_at",
	"title":     "r.title",
	"priority":  "r.priority",
	"status":    "r.status",
	"dueDate":   "r.due_date",
}

func (s *RequestStore) ListRequests(ctx context.Context, f requests.Filter) ([]requests.Request, int, error) {
	if s.db == nil {
		return nil, 0, errUnavailable
	}
	var w where
	if f.Search != "" {
		p := w.arg(likePattern(f.Search))
		w.add(fmt.Sprintf("(r.title ilike %[1]s or r.description ilike %[1]s)", p))
	}
	if f.Status != "" {
		w.add("r.status = " + w.arg(string(f.Status)))
	}
	if f.Priority != "" {
		w.add("r.priority = " + w.arg(string(f.Priority)))
	}
	if f.Type != "" {
		w.add("r.type = " + w.arg(string(f.Type)))
	}
	if f.AssigneeID != "" {
		w.add("r.assignee_id = " + w.arg(f.AssigneeID))
	}
	if f.RequesterID != "" {
		w.add("r.requester_id = " + w.arg(f.RequesterID))
	}
	if f.Department != "" {
		w.add("r.department = " + w.arg(f.Department))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from requests r`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	p := f.Page.Normalize(paging.DefaultLimit, paging.MaxLimit)
	args := append(append([]any{}, w.args...), p.Limit, p.Offset())
	desc := f.SortDesc || f.SortBy == ""
	query := requestSelect + w.String() + orderBy(requestSortColumns, f.SortBy, "r.created_at", desc) +
		fmt.Sprintf(" limit $%d offset $%d", len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []requests.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func (s *RequestStore) UpdateRequest(ctx context.Context, id string, upd requests.Update) (requests.Request, error) {
	if s.db == nil {
		return requests.Request{}, errUnavailable
	}
	var u setter
	if upd.Title != nil {
		u.set("title", *upd.Title)
	}
	if upd.Description != nil {
		u.set("description", *upd.Description)
	}
	if upd.Type != nil {
		u.set("type", string(*upd.Type))
	}
	if upd.Priority != nil {
		u.set("priority", string(*upd.Priority))
	}
	if upd.Department != nil {
		u.set("department", nullIfEmpty(*upd.Department))
	}
	if upd.DueDate != nil {
		u.set("due_date", *upd.DueDate)
	}
	u.raw("updated_at = now()")
	query, args := u.update("requests", id)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return requests.Request{}, mapErr(err, "request")
	}
	if err := requireAffected(res, "request"); err != nil {
		return requests.Request{}, err
	}
	return s.RequestByID(ctx, id)
}

func (s *RequestStore) DeleteRequest(ctx context.Context, id string) error {
	if s.db == nil {
		return errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from requests where id = $1 and status <> 'IN_PROGRESS'`, id)
	if err != nil {
		return mapErr(err, "request")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.RequestByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot delete request that is in progress", apperr.ErrInvalidState)
}

// AssignRequest sets the assignee and moves the request to IN_PROGRESS.
func (s *RequestStore) AssignRequest(ctx context.Context, id, assigneeID string, at time.Time) (requests.Request, error) {
	if s.db == nil {
		return requests.Request{}, errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update requests set assignee_id = $2, status = 'IN_PROGRESS', updated_at = $3
		where id = $1 and status not in ('COMPLETED', 'REJECTED', 'CANCELLED')
	`, id, assigneeID, at)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return requests.Request{}, fmt.Errorf("%w: assignee not found", apperr.ErrNotFound)
		}
		return requests.Request{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return requests.Request{}, err
	}
	r, err := s.RequestByID(ctx, id)
	if err != nil {
		return requests.Request{}, err
	}
	if n == 0 {
		return requests.Request{}, fmt.Errorf("%w: request is %s", apperr.ErrInvalidState, r.Status)
	}
	return r, nil
}

// SetStatus writes status and closed_at. A nil closedAt clears it.
func (s *RequestStore) SetStatus(ctx context.Context, id string, status requests.Status, closedAt *time.Time, at time.Time) (requests.Request, error) {
	if s.db == nil {
		return requests.Request{}, errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update requests set status = $2, closed_at = $3, updated_at = $4 where id = $1
	`, id, string(status), nullTime(closedAt), at)
	if err != nil {
		return requests.Request{}, mapErr(err, "request")
	}
	if err := requireAffected(res, "request"); err != nil {
		return requests.Request{}, err
	}
	return s.RequestByID(ctx, id)
}

func (s *RequestStore) AddComment(ctx context.Context, c requests.Comment) (requests.Comment, error) {
	row, err := insertComment(ctx, s.db, "request_id", commentRow{
		ID: c.ID, ParentID: c.RequestID, Content: c.Content, Author: c.Author, CreatedAt: c.CreatedAt,
	})
	if err != nil {
		return requests.Comment{}, err
	}
	return requests.Comment{ID: row.ID, RequestID: row.ParentID, Content: row.Content, Author: row.Author, CreatedAt: row.CreatedAt}, nil
}

func (s *RequestStore) ListComments(ctx context.Context, requestID string, p paging.Params) ([]requests.Comment, int, error) {
	rows, total, err := listComments(ctx, s.db, "request_id", requestID, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]requests.Comment, 0, len(rows))
	for _, row := range rows {
		out = append(out, requests.Comment{ID: row.ID, RequestID: row.ParentID, Content: row.Content, Author: row.Author, CreatedAt: row.CreatedAt})
	}
	return out, total, nil
}

// RequestStats counts requests, limited to requesterID when set. Overdue
// requests are open ones whose due date has passed.
func (s *RequestStore) RequestStats(ctx context.Context, requesterID string, now time.Time) (requests.Stats, error) {
	if s.db == nil {
		return requests.Stats{}, errUnavailable
	}
	var w where
	nowArg := w.arg(now)
	if requesterID != "" {
		w.add("requester_id = " + w.arg(requesterID))
	}
	var st requests.Stats
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		select
			count(*),
			count(*) filter (where status = 'PENDING'),
			count(*) filter (where status = 'IN_PROGRESS'),
			count(*) filter (where status = 'COMPLETED'),
			count(*) filter (where priority in ('HIGH', 'CRITICAL')),
			count(*) filter (where due_date < %s and status not in ('COMPLETED', 'REJECTED', 'CANCELLED'))
		from requests%s
	`, nowArg, w.String()), w.args...).Scan(&st.TotalRequests, &st.PendingRequests, &st.InProgressRequests,
		&st.CompletedRequests, &st.HighPriorityRequests, &st.Overdue)
	if err != nil {
		return requests.Stats{}, err
	}
	return st, nil
}

var _ requests.Store = (*RequestStore)(nil)
