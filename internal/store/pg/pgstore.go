// Package pg implements the domain store interfaces on PostgreSQL through
// database/sql and the pgx driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/jackc/pgx/v5/stdlib"

	"itdesk.org/internal/apperr"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
)

var errUnavailable = errors.New("database connection unavailable")

// PoolConfig tunes the connection pool. Zero values keep the defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Store holds identity, audit and administration data. Domain stores for
// inventory, warehouse, requests, issues and releases share its pool.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL. The connection is verified lazily; call Ping
// to check readiness.
func Open(dsn string, cfg PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 15 * time.Minute
	}
	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = 5 * time.Minute
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errUnavailable
	}
	return s.db.PingContext(ctx)
}

// Inventory returns the asset store.
func (s *Store) Inventory() *InventoryStore { return &InventoryStore{db: s.db} }

// Warehouse returns the stock store.
func (s *Store) Warehouse() *WarehouseStore { return &WarehouseStore{db: s.db} }

// Requests returns the service request store.
func (s *Store) Requests() *RequestStore { return &RequestStore{db: s.db} }

// Issues returns the issue tracker store.
func (s *Store) Issues() *IssueStore { return &IssueStore{db: s.db} }

// Releases returns the release store.
func (s *Store) Releases() *ReleaseStore { return &ReleaseStore{db: s.db} }

func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	if db == nil {
		return errUnavailable
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapErr translates driver errors into the apperr taxonomy; what names the
// record for messages.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s not found", apperr.ErrNotFound, what)
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s already exists", apperr.ErrConflict, what)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: referenced record does not exist (%s)", apperr.ErrNotFound, pgErr.ConstraintName)
		case pgErrCheckViolation:
			return fmt.Errorf("%w: %s violates %s", apperr.ErrInvalidState, what, pgErr.ConstraintName)
		}
	}
	return err
}

func requireAffected(res sql.Result, what string) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("%w: %s not found", apperr.ErrNotFound, what)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func intPtr(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}

// textArray renders a PostgreSQL text[] literal; bind it with a ::text[] cast.
func textArray(vals []string) string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `"`, `\"`)
		quoted[i] = `"` + v + `"`
	}
	return "{" + strings.Join(quoted, ",") + "}"
}

var typeMap = pgtype.NewMap()

// textArrayScanner scans a text[] column into dst.
func textArrayScanner(dst *[]string) sql.Scanner {
	return typeMap.SQLScanner(dst)
}

// where accumulates filter clauses with positional arguments.
type where struct {
	clauses []string
	args    []any
}

// arg binds v and returns its placeholder.
func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) add(clause string) { w.clauses = append(w.clauses, clause) }

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " where " + strings.Join(w.clauses, " and ")
}

// likePattern escapes s for an ILIKE substring match.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(s)) + "%"
}

// orderBy resolves a client sort key against allowed columns.
func orderBy(allowed map[string]string, key, fallback string, desc bool) string {
	col, ok := allowed[key]
	if !ok {
		col = fallback
	}
	dir := "asc"
	if desc {
		dir = "desc"
	}
	return fmt.Sprintf(" order by %s %s", col, dir)
}

// setter builds the set list of a partial update.
type setter struct {
	sets []string
	args []any
}

func (u *setter) set(column string, v any) {
	u.args = append(u.args, v)
	u.sets = append(u.sets, fmt.Sprintf("%s = $%d", column, len(u.args)))
}

// setExpr binds v into expr, whose %s marks the placeholder.
func (u *setter) setExpr(column, expr string, v any) {
	u.args = append(u.args, v)
	u.sets = append(u.sets, column+" = "+fmt.Sprintf(expr, fmt.Sprintf("$%d", len(u.args))))
}

func (u *setter) raw(clause string) { u.sets = append(u.sets, clause) }

// update renders "update table set ... where id = $n".
func (u *setter) update(table, id string) (string, []any) {
	args := append(u.args, id)
	return fmt.Sprintf("update %s set %s where id = $%d", table, strings.Join(u.sets, ", "), len(args)), args
}
