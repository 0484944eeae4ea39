package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/paging"
	"itdesk.org/internal/releases"
)

// ReleaseStore persists releases and their issue links.
type ReleaseStore struct {
	db *sql.DB
}

func NewReleaseStore(db *sql.DB) *ReleaseStore { return &ReleaseStore{db: db} }

const releaseSelect = `
	select r.id, r.version, r.title, coalesce(r.description, ''), r.release_date, r.is_prerelease,
		coalesce(r.changelog, ''), (select count(*) from release_issues ri where ri.release_id = r.id),
		r.created_at, r.updated_at
	from releases r`

func scanRelease(row rowScanner) (releases.Release, error) {
	var r releases.Release
	err := row.Scan(&r.ID, &r.Version, &r.Title, &r.Description, &r.ReleaseDate, &r.IsPrerelease,
		&r.Changelog, &r.IssueCount, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *ReleaseStore) collect(rows *sql.Rows) ([]releases.Release, error) {
	defer rows.Close()
	var out []releases.Release
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *ReleaseStore) CreateRelease(ctx context.Context, r releases.Release) (releases.Release, error) {
	if s.db == nil {
		return releases.Release{}, errUnavailable
	}
	_, err := s.db.ExecContext(ctx, `
		insert into releases (id, version, title, description, release_date, is_prerelease, changelog)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.Version, r.Title, nullIfEmpty(r.Description), r.ReleaseDate, r.IsPrerelease, nullIfEmpty(r.Changelog))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return releases.Release{}, fmt.Errorf("%w: release version %s already exists", apperr.ErrConflict, r.Version)
		}
		return releases.Release{}, err
	}
	return s.ReleaseByID(ctx, r.ID)
}

func (s *ReleaseStore) ReleaseByID(ctx context.Context, id string) (releases.Release, error) {
	if s.db == nil {
		return releases.Release{}, errUnavailable
	}
	r, err := scanRelease(s.db.QueryRowContext(ctx, releaseSelect+` where r.id = $1`, id))
	if err != nil {
		return releases.Release{}, mapErr(err, "release")
	}
	return r, nil
}

var releaseSortColumns = map[string]string{
	"releaseDate": "r.release_date",
	"createdAt":   "r.created_at",
	"version":     "r.version",
	"title":       "r.title",
}

func (s *ReleaseStore) ListReleases(ctx context.Context, f releases.Filter) ([]releases.Release, int, error) {
	if s.db == nil {
		return nil, 0, errUnavailable
	}
	var w where
	if f.Search != "" {
		p := w.arg(likePattern(f.Search))
		w.add(fmt.Sprintf("(r.version ilike %[1]s or r.title ilike %[1]s or r.description ilike %[1]s)", p))
	}
	if f.IsPrerelease != nil {
		w.add("r.is_prerelease = " + w.arg(*f.IsPrerelease))
	}
	if f.ReleasedAfter != nil {
		w.add("r.release_date >= " + w.arg(*f.ReleasedAfter))
	}
	if f.ReleasedBefore != nil {
		w.add("r.release_date <= " + w.arg(*f.ReleasedBefore))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from releases r`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	p := f.Page.Normalize(paging.DefaultLimit, paging.MaxLimit)
	args := append(append([]any{}, w.args...), p.Limit, p.Offset())
	query := releaseSelect + w.String() + orderBy(releaseSortColumns, f.SortBy, "r.release_date", f.SortDesc) +
		fmt.Sprintf(" limit $%d offset $%d", len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := s.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *ReleaseStore) UpdateRelease(ctx context.Context, id string, upd releases.Update, at time.Time) (releases.Release, error) {
	if s.db == nil {
		return releases.Release{}, errUnavailable
	}
	var u setter
	if upd.Version != nil {
		u.set("version", *upd.Version)
	}
	if upd.Title != nil {
		u.set("title", *upd.Title)
	}
	if upd.Description != nil {
		u.set("description", nullIfEmpty(*upd.Description))
	}
	if upd.ReleaseDate != nil {
		u.set("release_date", *upd.ReleaseDate)
	}
	if upd.IsPrerelease != nil {
		u.set("is_prerelease", *upd.IsPrerelease)
	}
	if upd.Changelog != nil {
		u.set("changelog", nullIfEmpty(*upd.Changelog))
	}
	u.set("updated_at", at)
	query, args := u.update("releases", id)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return releases.Release{}, mapErr(err, "release version")
	}
	if err := requireAffected(res, "release"); err != nil {
		return releases.Release{}, err
	}
	return s.ReleaseByID(ctx, id)
}

func (s *ReleaseStore) DeleteRelease(ctx context.Context, id string) error {
	if s.db == nil {
		return errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from releases where id = $1`, id)
	if err != nil {
		return mapErr(err, "release")
	}
	return requireAffected(res, "release")
}

func (s *ReleaseStore) LinkIssue(ctx context.Context, releaseID, issueID string, at time.Time) (releases.IssueRef, error) {
	if s.db == nil {
		return releases.IssueRef{}, errUnavailable
	}
	_, err := s.db.ExecContext(ctx, `
		insert into release_issues (release_id, issue_id, created_at) values ($1, $2, $3)
	`, releaseID, issueID, at)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return releases.IssueRef{}, fmt.Errorf("%w: issue is already linked to this release", apperr.ErrConflict)
			case pgErrForeignKeyViolation:
				return releases.IssueRef{}, fmt.Errorf("%w: issue not found", apperr.ErrNotFound)
			}
		}
		return releases.IssueRef{}, err
	}
	var ref releases.IssueRef
	err = s.db.QueryRowContext(ctx, `
		select i.id, i.title, i.type, i.priority, i.status, ri.created_at
		from release_issues ri
		join issues i on i.id = ri.issue_id
		where ri.release_id = $1 and ri.issue_id = $2
	`, releaseID, issueID).Scan(&ref.ID, &ref.Title, &ref.Type, &ref.Priority, &ref.Status, &ref.LinkedAt)
	if err != nil {
		return releases.IssueRef{}, mapErr(err, "issue")
	}
	return ref, nil
}

func (s *ReleaseStore) UnlinkIssue(ctx context.Context, releaseID, issueID string) (bool, error) {
	if s.db == nil {
		return false, errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from release_issues where release_id = $1 and issue_id = $2`, releaseID, issueID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReleaseIssues lists linked issues in link order.
func (s *ReleaseStore) ReleaseIssues(ctx context.Context, releaseID string) ([]releases.IssueRef, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select i.id, i.title, i.type, i.priority, i.status, ri.created_at
		from release_issues ri
		join issues i on i.id = ri.issue_id
		where ri.release_id = $1
		order by ri.created_at asc
	`, releaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []releases.IssueRef
	for rows.Next() {
		var ref releases.IssueRef
		if err := rows.Scan(&ref.ID, &ref.Title, &ref.Type, &ref.Priority, &ref.Status, &ref.LinkedAt); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (s *ReleaseStore) LatestReleases(ctx context.Context, limit int) ([]releases.Release, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, releaseSelect+` order by r.release_date desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	return s.collect(rows)
}

// ReleaseStats counts releases; RecentReleases are those dated on or after
// since. ReleasesByMonth covers the twelve months up to now.
func (s *ReleaseStore) ReleaseStats(ctx context.Context, since time.Time) (releases.Stats, error) {
	if s.db == nil {
		return releases.Stats{}, errUnavailable
	}
	var st releases.Stats
	err := s.db.QueryRowContext(ctx, `
		select
			count(*),
			count(*) filter (where is_prerelease),
			count(*) filter (where release_date >= $1),
			(select count(distinct issue_id) from release_issues)
		from releases
	`, since).Scan(&st.TotalReleases, &st.Prereleases, &st.RecentReleases, &st.IssuesInReleases)
	if err != nil {
		return releases.Stats{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select to_char(date_trunc('month', release_date), 'YYYY-MM') as month, count(*)
		from releases
		where release_date >= date_trunc('month', now()) - interval '11 months'
		group by month
		order by month asc
	`)
	if err != nil {
		return releases.Stats{}, err
	}
	defer rows.Close()
	st.ReleasesByMonth = []releases.MonthCount{}
	for rows.Next() {
		var mc releases.MonthCount
		if err := rows.Scan(&mc.Month, &mc.Count); err != nil {
			return releases.Stats{}, err
		}
		st.ReleasesByMonth = append(st.ReleasesByMonth, mc)
	}
	return st, rows.Err()
}

var _ releases.Store = (*ReleaseStore)(nil)
