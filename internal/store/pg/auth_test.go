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
	"itdesk.org/internal/audit"
)

var userCols = []string{"id", "email", "username", "password_hash", "first_name", "last_name",
	"department", "is_active", "is_verified", "last_login_at", "created_at", "updated_at"}

func TestUserByEmailLoadsRoles(t *testing.T) {
	db, mock := newMock(t)
	s := New(db)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("from users u where u.email = $1")).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("usr-1", "ada@example.com", "ada", "hash", "Ada", "Lovelace", "IT", true, false, nil, now, now))
	mock.ExpectQuery("from user_roles ur").
		WithArgs("{\"usr-1\"}").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "id", "name", "description", "created_at", "updated_at"}).
			AddRow("usr-1", "role-admin", "Admin", "", now, now))

	u, err := s.UserByEmail(context.Background(), "  Ada@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "usr-1", u.ID)
	assert.Nil(t, u.LastLoginAt)
	require.Len(t, u.Roles, 1)
	assert.Equal(t, "Admin", u.Roles[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("from users u where u.id").WillReturnRows(sqlmock.NewRows(userCols))

	_, err := New(db).UserByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRevokeSessionReportsWhetherActive(t *testing.T) {
	db, mock := newMock(t)
	at := time.Now().UTC()
	mock.ExpectExec("update sessions set is_active = false").
		WithArgs("usr-1", "hash", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	revoked, err := New(db).RevokeSession(context.Background(), "usr-1", "hash", at)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestInsertAuditLogStoresEmptySnapshotsAsNull(t *testing.T) {
	db, mock := newMock(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("insert into audit_logs").
		WithArgs("aud-1", "usr-1", "DELETE_ASSET", "Asset", "ast-1",
			`{"name":"Laptop"}`, nil, "req-1", nil, nil, nil, at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := New(db).InsertAuditLog(context.Background(), audit.Entry{
		ID:           "aud-1",
		ActorID:      "usr-1",
		Action:       "DELETE_ASSET",
		ResourceType: "Asset",
		ResourceID:   "ast-1",
		OldValues:    audit.Snapshot{"name": "Laptop"},
		RequestID:    "req-1",
		CreatedAt:    at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAuditLogsDecodesSnapshots(t *testing.T) {
	db, mock := newMock(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	from := at.Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("select count(*) from audit_logs a where a.action = $1 and a.created_at >= $2")).
		WithArgs("LOGIN", from).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("order by a.created_at desc").
		WithArgs("LOGIN", from, 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "email", "action", "resource_type", "resource_id",
			"old_values", "new_values", "request_id", "ip_address", "user_agent", "trace_id", "created_at"}).
			AddRow("aud-1", "usr-1", "ada@example.com", "LOGIN", "Auth", "", nil, []byte(`{"email":"ada@example.com"}`),
				"", "10.0.0.1", "", "", at))

	f := audit.Filter{Action: "LOGIN", From: &from}.Normalize(100)
	entries, total, err := New(db).ListAuditLogs(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].OldValues)
	assert.Equal(t, "ada@example.com", entries[0].NewValues["email"])
	assert.Equal(t, "ada@example.com", entries[0].ActorEmail)
}
