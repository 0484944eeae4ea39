package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"itdesk.org/internal/audit"
	"itdesk.org/internal/paging"
)

// InsertAuditLog appends one audit row. Empty snapshots are stored as NULL.
func (s *Store) InsertAuditLog(ctx context.Context, e audit.Entry) error {
	if s.db == nil {
		return errUnavailable
	}
	oldJSON, err := snapshotJSON(e.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := snapshotJSON(e.NewValues)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_logs (id, user_id, action, resource_type, resource_id, old_values, new_values,
			request_id, ip_address, user_agent, trace_id, created_at)
		values ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10, $11, $12)
	`, e.ID, nullIfEmpty(e.ActorID), e.Action, e.ResourceType, nullIfEmpty(e.ResourceID), oldJSON, newJSON,
		nullIfEmpty(e.RequestID), nullIfEmpty(e.IPAddress), nullIfEmpty(e.UserAgent), nullIfEmpty(e.TraceID), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func snapshotJSON(s audit.Snapshot) (sql.NullString, error) {
	if len(s) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode audit snapshot: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeSnapshot(raw []byte) (audit.Snapshot, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s audit.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode audit snapshot: %w", err)
	}
	return s, nil
}

// ListAuditLogs returns audit rows newest first. f is expected to be
// normalized by the caller.
func (s *Store) ListAuditLogs(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	if s.db == nil {
		return nil, 0, errUnavailable
	}
	var w where
	if f.ActorID != "" {
		w.add("a.user_id = " + w.arg(f.ActorID))
	}
	if f.Action != "" {
		w.add("a.action = " + w.arg(f.Action))
	}
	if f.ResourceType != "" {
		w.add("a.resource_type = " + w.arg(f.ResourceType))
	}
	if f.ResourceID != "" {
		w.add("a.resource_id = " + w.arg(f.ResourceID))
	}
	if f.From != nil {
		w.add("a.created_at >= " + w.arg(*f.From))
	}
	if f.To != nil {
		w.add("a.created_at <= " + w.arg(*f.To))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from audit_logs a`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	p := f.Page.Normalize(paging.DefaultLimit, paging.MaxLimit)
	args := append(append([]any{}, w.args...), p.Limit, p.Offset())
	query := fmt.Sprintf(`
		select a.id, coalesce(a.user_id, ''), coalesce(u.email, ''), a.action, a.resource_type,
			coalesce(a.resource_id, ''), a.old_values, a.new_values, coalesce(a.request_id, ''),
			coalesce(a.ip_address, ''), coalesce(a.user_agent, ''), coalesce(a.trace_id, ''), a.created_at
		from audit_logs a
		left join users u on u.id = a.user_id%s
		order by a.created_at desc
		limit $%d offset $%d
	`, w.String(), len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e              audit.Entry
			oldRaw, newRaw []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorEmail, &e.Action, &e.ResourceType, &e.ResourceID,
			&oldRaw, &newRaw, &e.RequestID, &e.IPAddress, &e.UserAgent, &e.TraceID, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if e.OldValues, err = decodeSnapshot(oldRaw); err != nil {
			return nil, 0, err
		}
		if e.NewValues, err = decodeSnapshot(newRaw); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

var _ audit.Store = (*Store)(nil)
