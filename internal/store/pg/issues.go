package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/issues"
	"itdesk.org/internal/paging"
)

// IssueStore persists issues, their labels and comments.
type IssueStore struct {
	db *sql.DB
}

func NewIssueStore(db *sql.DB) *IssueStore { return &IssueStore{db: db} }

const issueSelect = `
	select i.id, i.title, i.description, i.type, i.priority, i.status, i.labels,
		rp.id, rp.email, rp.first_name, rp.last_name,
		i.assignee_id, coalesce(asg.email, ''), coalesce(asg.first_name, ''), coalesce(asg.last_name, ''),
		(select count(*) from comments c where c.issue_id = i.id),
		i.closed_at, i.created_at, i.updated_at
	from issues i
	join users rp on rp.id = i.reporter_id
	left join users asg on asg.id = i.assignee_id`

func scanIssue(row rowScanner) (issues.Issue, error) {
	var (
		is                 issues.Issue
		closed             sql.NullTime
		assigneeID         sql.NullString
		email, first, last string
	)
	if err := row.Scan(&is.ID, &is.Title, &is.Description, &is.Type, &is.Priority, &is.Status,
		textArrayScanner(&is.Labels), &is.Reporter.ID, &is.Reporter.Email, &is.Reporter.FirstName,
		&is.Reporter.LastName, &assigneeID, &email, &first, &last, &is.CommentCount,
		&closed, &is.CreatedAt, &is.UpdatedAt); err != nil {
		return issues.Issue{}, err
	}
	if is.Labels == nil {
		is.Labels = []string{}
	}
	is.ClosedAt = timePtr(closed)
	if assigneeID.Valid {
		is.Assignee = &auth.UserRef{ID: assigneeID.String, Email: email, FirstName: first, LastName: last}
	}
	return is, nil
}

func assigneeFK(err error) error {
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return fmt.Errorf("%w: assignee not found", apperr.ErrNotFound)
	}
	return mapErr(err, "issue")
}

func (s *IssueStore) CreateIssue(ctx context.Context, is issues.Issue) (issues.Issue, error) {
	if s.db == nil {
		return issues.Issue{}, errUnavailable
	}
	var assigneeID string
	if is.Assignee != nil {
		assigneeID = is.Assignee.ID
	}
	_, err := s.db.ExecContext(ctx, `
		insert into issues (id, title, description, type, priority, status, labels, reporter_id, assignee_id)
		values ($1, $2, $3, $4, $5, $6, $7::text[], $8, $9)
	`, is.ID, is.Title, is.Description, string(is.Type), string(is.Priority), string(is.Status),
		textArray(is.Labels), is.Reporter.ID, nullIfEmpty(assigneeID))
	if err != nil {
		return issues.Issue{}, assigneeFK(err)
	}
	return s.IssueByID(ctx, is.ID)
}

func (s *IssueStore) IssueByID(ctx context.Context, id string) (issues.Issue, error) {
	if s.db == nil {
		return issues.Issue{}, errUnavailable
	}
	is, err := scanIssue(s.db.QueryRowContext(ctx, issueSelect+` where i.id = $1`, id))
	if err != nil {
		return issues.Issue{}, mapErr(err, "issue")
	}
	return is, nil
}

var issueSortColumns = map[string]string{
	"createdAt": "i.created_at",
	"updatedAt": "i.updated_at",
	"title":     "i.title",
	"priority":  "i.priority",
	"status":    "i.status",
	"type":      "i.type",
}

func (s *IssueStore) ListIssues(ctx context.Context, f issues.Filter) ([]issues.Issue, int, error) {
	if s.db == nil {
		return nil, 0, errUnavailable
	}
	var w where
	if f.Search != "" {
		p := w.arg(likePattern(f.Search))
		w.add(fmt.Sprintf("(i.title ilike %[1]s or i.description ilike %[1]s)", p))
	}
	if f.Type != "" {
		w.add("i.type = " + w.arg(string(f.Type)))
	}
	if f.Priority != "" {
		w.add("i.priority = " + w.arg(string(f.Priority)))
	}
	if f.Status != "" {
		w.add("i.status = " + w.arg(string(f.Status)))
	}
	if f.AssigneeID != "" {
		w.add("i.assignee_id = " + w.arg(f.AssigneeID))
	}
	if f.ReporterID != "" {
		w.add("i.reporter_id = " + w.arg(f.ReporterID))
	}
	if len(f.Labels) > 0 {
		w.add("i.labels && " + w.arg(textArray(f.Labels)) + "::text[]")
	}
	if f.CreatedAfter != nil {
		w.add("i.created_at >= " + w.arg(*f.CreatedAfter))
	}
	if f.CreatedBefore != nil {
		w.add("i.created_at <= " + w.arg(*f.CreatedBefore))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from issues i`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	p := f.Page.Normalize(paging.DefaultLimit, paging.MaxLimit)
	args := append(append([]any{}, w.args...), p.Limit, p.Offset())
	desc := f.SortDesc || f.SortBy == ""
	query := issueSelect + w.String() + orderBy(issueSortColumns, f.SortBy, "i.created_at", desc) +
		fmt.Sprintf(" limit $%d offset $%d", len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []issues.Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, is)
	}
	return out, total, rows.Err()
}

func (s *IssueStore) UpdateIssue(ctx context.Context, id string, upd issues.Update, at time.Time) (issues.Issue, error) {
	if s.db == nil {
		return issues.Issue{}, errUnavailable
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
	if upd.Labels != nil {
		u.setExpr("labels", "%s::text[]", textArray(*upd.Labels))
	}
	if upd.Status != nil {
		u.set("status", string(*upd.Status))
		if *upd.Status == issues.StatusClosed {
			u.setExpr("closed_at", "coalesce(closed_at, %s)", at)
		} else {
			u.raw("closed_at = null")
		}
	}
	u.set("updated_at", at)
	query, args := u.update("issues", id)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return issues.Issue{}, mapErr(err, "issue")
	}
	if err := requireAffected(res, "issue"); err != nil {
		return issues.Issue{}, err
	}
	return s.IssueByID(ctx, id)
}

func (s *IssueStore) DeleteIssue(ctx context.Context, id string) error {
	if s.db == nil {
		return errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from issues where id = $1`, id)
	if err != nil {
		return mapErr(err, "issue")
	}
	return requireAffected(res, "issue")
}

func (s *IssueStore) AssignIssue(ctx context.Context, id, assigneeID string, at time.Time) (issues.Issue, error) {
	if s.db == nil {
		return issues.Issue{}, errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update issues set assignee_id = $2, status = 'IN_PROGRESS', closed_at = null, updated_at = $3
		where id = $1 and status <> 'CLOSED'
	`, id, assigneeID, at)
	if err != nil {
		return issues.Issue{}, assigneeFK(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return issues.Issue{}, err
	}
	is, err := s.IssueByID(ctx, id)
	if err != nil {
		return issues.Issue{}, err
	}
	if n == 0 {
		return issues.Issue{}, fmt.Errorf("%w: cannot assign a closed issue", apperr.ErrInvalidState)
	}
	return is, nil
}

func (s *IssueStore) UnassignIssue(ctx context.Context, id string, at time.Time) (issues.Issue, error) {
	if s.db == nil {
		return issues.Issue{}, errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update issues
		set assignee_id = null,
			status = case when status = 'IN_PROGRESS' then 'OPEN' else status end,
			updated_at = $2
		where id = $1
	`, id, at)
	if err != nil {
		return issues.Issue{}, mapErr(err, "issue")
	}
	if err := requireAffected(res, "issue"); err != nil {
		return issues.Issue{}, err
	}
	return s.IssueByID(ctx, id)
}

func (s *IssueStore) SetStatus(ctx context.Context, id string, status issues.Status, closedAt *time.Time, at time.Time) (issues.Issue, error) {
	if s.db == nil {
		return issues.Issue{}, errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update issues set status = $2, closed_at = $3, updated_at = $4 where id = $1
	`, id, string(status), nullTime(closedAt), at)
	if err != nil {
		return issues.Issue{}, mapErr(err, "issue")
	}
	if err := requireAffected(res, "issue"); err != nil {
		return issues.Issue{}, err
	}
	return s.IssueByID(ctx, id)
}

func (s *IssueStore) SetLabels(ctx context.Context, id string, labels []string, at time.Time) (issues.Issue, error) {
	if s.db == nil {
		return issues.Issue{}, errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update issues set labels = $2::text[], updated_at = $3 where id = $1
	`, id, textArray(labels), at)
	if err != nil {
		return issues.Issue{}, mapErr(err, "issue")
	}
	if err := requireAffected(res, "issue"); err != nil {
		return issues.Issue{}, err
	}
	return s.IssueByID(ctx, id)
}

func (s *IssueStore) AddComment(ctx context.Context, c issues.Comment) (issues.Comment, error) {
	row, err := insertComment(ctx, s.db, "issue_id", commentRow{
		ID: c.ID, ParentID: c.IssueID, Content: c.Content, Author: c.Author, CreatedAt: c.CreatedAt,
	})
	if err != nil {
		return issues.Comment{}, err
	}
	return issues.Comment{ID: row.ID, IssueID: row.ParentID, Content: row.Content, Author: row.Author, CreatedAt: row.CreatedAt}, nil
}

func (s *IssueStore) ListComments(ctx context.Context, issueID string, p paging.Params) ([]issues.Comment, int, error) {
	rows, total, err := listComments(ctx, s.db, "issue_id", issueID, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]issues.Comment, 0, len(rows))
	for _, row := range rows {
		out = append(out, issues.Comment{ID: row.ID, IssueID: row.ParentID, Content: row.Content, Author: row.Author, CreatedAt: row.CreatedAt})
	}
	return out, total, nil
}

// IssueReleases lists the releases an issue is linked to, newest first.
func (s *IssueStore) IssueReleases(ctx context.Context, issueID string) ([]issues.ReleaseRef, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.version, r.title, r.release_date
		from release_issues ri
		join releases r on r.id = ri.release_id
		where ri.issue_id = $1
		order by r.release_date desc
	`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []issues.ReleaseRef
	for rows.Next() {
		var (
			r  issues.ReleaseRef
			at time.Time
		)
		if err := rows.Scan(&r.ID, &r.Version, &r.Title, &at); err != nil {
			return nil, err
		}
		r.ReleaseDate = &at
		out = append(out, r)
	}
	return out, rows.Err()
}

// LabelCounts returns every label in use with the number of issues carrying it.
func (s *IssueStore) LabelCounts(ctx context.Context) ([]issues.LabelCount, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select label, count(*)
		from issues, unnest(labels) as label
		group by label
		order by count(*) desc, label asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []issues.LabelCount{}
	for rows.Next() {
		var lc issues.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func (s *IssueStore) IssueStats(ctx context.Context) (issues.Stats, error) {
	if s.db == nil {
		return issues.Stats{}, errUnavailable
	}
	var st issues.Stats
	err := s.db.QueryRowContext(ctx, `
		select
			count(*),
			count(*) filter (where status = 'OPEN'),
			count(*) filter (where status = 'IN_PROGRESS'),
			count(*) filter (where status = 'RESOLVED'),
			count(*) filter (where status = 'CLOSED'),
			count(*) filter (where priority in ('HIGH', 'CRITICAL')),
			count(*) filter (where type = 'BUG'),
			count(*) filter (where type = 'FEATURE_REQUEST')
		from issues
	`).Scan(&st.TotalIssues, &st.OpenIssues, &st.InProgressIssues, &st.ResolvedIssues, &st.ClosedIssues,
		&st.HighPriorityIssues, &st.BugCount, &st.FeatureRequestCount)
	if err != nil {
		return issues.Stats{}, err
	}
	return st, nil
}

var _ issues.Store = (*IssueStore)(nil)
