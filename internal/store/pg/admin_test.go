package pg

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itdesk.org/internal/admin"
	"itdesk.org/internal/apperr"
)

func TestDeleteRoleInUseIsForbidden(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("delete from roles").WithArgs("role-user").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	err := New(db).DeleteRole(context.Background(), "role-user")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestCreateRoleRejectsUnprovisionedPermission(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into roles").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("delete from role_permissions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into role_permissions").
		WithArgs(sqlmock.AnyArg(), `{"assets:read","issues:read"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := New(db).CreateRole(context.Background(), admin.NewRole{
		Name:        "Auditor",
		Permissions: []string{"assets:read", "issues:read"},
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSettingsWritesInKeyOrder(t *testing.T) {
	db, mock := newMock(t)
	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("on conflict (key) do update")).
		WithArgs("mail.from", "it@example.com", "usr-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("on conflict (key) do update")).
		WithArgs("site.name", "IT Desk", "usr-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := New(db).UpsertSettings(context.Background(), admin.Settings{
		"site.name": "IT Desk",
		"mail.from": "it@example.com",
	}, "usr-1", at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminStats(t *testing.T) {
	db, mock := newMock(t)
	active := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 5, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("select count").WithArgs(active, recent).
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d", "e"}).AddRow(12, 9, 4, 40, 77))

	st, err := New(db).AdminStats(context.Background(), active, recent)
	require.NoError(t, err)
	assert.Equal(t, admin.Stats{TotalUsers: 12, ActiveUsers: 9, TotalRoles: 4, TotalPermissions: 40, RecentAuditLogs: 77}, st)
}
