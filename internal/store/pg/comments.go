package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"itdesk.org/internal/auth"
	"itdesk.org/internal/paging"
)

// commentRow is a comment attached to either a request or an issue.
type commentRow struct {
	ID        string
	ParentID  string
	Content   string
	Author    auth.UserRef
	CreatedAt time.Time
}

// insertComment stores a comment under parentColumn (request_id or issue_id)
// and returns it with the author's public fields.
func insertComment(ctx context.Context, db *sql.DB, parentColumn string, c commentRow) (commentRow, error) {
	if db == nil {
		return commentRow{}, errUnavailable
	}
	query := fmt.Sprintf(`
		with inserted as (
			insert into comments (id, content, author_id, %s, created_at)
			values ($1, $2, $3, $4, $5)
			returning id, content, author_id, created_at
		)
		select ins.id, ins.content, u.id, u.email, u.first_name, u.last_name, ins.created_at
		from inserted ins
		join users u on u.id = ins.author_id
	`, parentColumn)
	out := commentRow{ParentID: c.ParentID}
	err := db.QueryRowContext(ctx, query, c.ID, c.Content, c.Author.ID, c.ParentID, c.CreatedAt).Scan(
		&out.ID, &out.Content, &out.Author.ID, &out.Author.Email, &out.Author.FirstName, &out.Author.LastName, &out.CreatedAt)
	if err != nil {
		return commentRow{}, mapErr(err, "comment")
	}
	return out, nil
}

// listComments pages the comments under parentColumn, newest first.
func listComments(ctx context.Context, db *sql.DB, parentColumn, parentID string, p paging.Params) ([]commentRow, int, error) {
	if db == nil {
		return nil, 0, errUnavailable
	}
	var total int
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`select count(*) from comments where %s = $1`, parentColumn), parentID).Scan(&total); err != nil {
		return nil, 0, err
	}
	p = p.Normalize(paging.DefaultLimit, paging.MaxLimit)
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		select c.id, c.content, u.id, u.email, u.first_name, u.last_name, c.created_at
		from comments c
		join users u on u.id = c.author_id
		where c.%s = $1
		order by c.created_at desc
		limit $2 offset $3
	`, parentColumn), parentID, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []commentRow
	for rows.Next() {
		c := commentRow{ParentID: parentID}
		if err := rows.Scan(&c.ID, &c.Content, &c.Author.ID, &c.Author.Email, &c.Author.FirstName, &c.Author.LastName, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}
