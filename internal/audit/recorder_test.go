package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	insertFn func(ctx context.Context, entry Entry) error
	entries  []Entry
}

func (s *stubStore) InsertAuditLog(ctx context.Context, entry Entry) error {
	if s.insertFn != nil {
		if err := s.insertFn(ctx, entry); err != nil {
			return err
		}
	}
	s.entries = append(s.entries, entry)
	return nil
}

func TestRecordPersistsEntryWithRequestMeta(t *testing.T) {
	store := &stubStore{}
	logger, hook := logtest.NewNullLogger()
	rec := NewRecorder(store, logger)

	ctx := WithRequestMeta(context.Background(), RequestMeta{RequestID: "req-123", IPAddress: "10.0.0.1", UserAgent: "curl"})
	rec.Record(ctx, "user-42", ActionCreateUser, ResourceUser, "user-7", nil, Snapshot{"email": "a@b.c"})

	require.Len(t, store.entries, 1)
	e := store.entries[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "user-42", e.ActorID)
	assert.Equal(t, ActionCreateUser, e.Action)
	assert.Equal(t, ResourceUser, e.ResourceType)
	assert.Equal(t, "user-7", e.ResourceID)
	assert.Nil(t, e.OldValues)
	assert.Equal(t, "a@b.c", e.NewValues["email"])
	assert.Equal(t, "req-123", e.RequestID)
	assert.Equal(t, "10.0.0.1", e.IPAddress)
	assert.False(t, e.CreatedAt.IsZero())

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "audit", last.Message)
	assert.Equal(t, logrus.InfoLevel, last.Level)
	assert.Equal(t, "req-123", last.Data["request_id"])
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	store := &stubStore{insertFn: func(context.Context, Entry) error { return errors.New("db down") }}
	logger, hook := logtest.NewNullLogger()
	rec := NewRecorder(store, logger)

	rec.Record(context.Background(), "u", ActionDeleteRole, ResourceRole, "r", Snapshot{"name": "Ops"}, nil)

	assert.Empty(t, store.entries)
	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.WarnLevel, last.Level)
	assert.Equal(t, "audit_write_failed", last.Message)
}

func TestRecordSurvivesCancelledRequest(t *testing.T) {
	store := &stubStore{insertFn: func(ctx context.Context, _ Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	}}
	logger, hook := logtest.NewNullLogger()
	rec := NewRecorder(store, logger)

	ctx, cancel := context.WithCancel(WithRequestMeta(context.Background(), RequestMeta{RequestID: "req-9"}))
	cancel()
	rec.Record(ctx, "usr-1", ActionDeleteUser, ResourceUser, "usr-2", Snapshot{"email": "x@y.z"}, nil)

	require.Len(t, store.entries, 1)
	assert.Equal(t, "req-9", store.entries[0].RequestID)
	assert.Equal(t, "audit", hook.LastEntry().Message)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	rec.Record(context.Background(), "u", ActionLogin, ResourceAuth, "u", nil, nil)
}

func TestDiffKeepsChangedFields(t *testing.T) {
	before := Snapshot{"name": "Laptop", "status": "AVAILABLE", "cost": 100}
	after := Snapshot{"name": "Laptop", "status": "ASSIGNED", "notes": "new"}

	oldV, newV := Diff(before, after)
	assert.Equal(t, Snapshot{"status": "AVAILABLE"}, oldV)
	assert.Equal(t, Snapshot{"status": "ASSIGNED", "notes": "new"}, newV)

	oldV, newV = Diff(before, Snapshot{"name": "Laptop"})
	assert.Nil(t, oldV)
	assert.Nil(t, newV)
}
