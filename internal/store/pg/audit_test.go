package pg

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"itdesk.org/internal/audit"
)

func TestAuditRowWrittenAfterClientDisconnect(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("insert into audit_logs").
		WithArgs(sqlmock.AnyArg(), "usr-1", audit.ActionDeleteUser, audit.ResourceUser, "usr-2",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	logger, hook := logtest.NewNullLogger()
	rec := audit.NewRecorder(New(db), logger)

	ctx, cancel := context.WithCancel(audit.WithRequestMeta(context.Background(), audit.RequestMeta{RequestID: "req-5"}))
	cancel()
	rec.Record(ctx, "usr-1", audit.ActionDeleteUser, audit.ResourceUser, "usr-2", audit.Snapshot{"email": "a@b.c"}, nil)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "audit", hook.LastEntry().Message)
}
