package issues

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/audit/audittest"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/paging"
)

type stubStore struct {
	Store

	issues   map[string]Issue
	comments []Comment
	deleted  []string
	lastList Filter
}

func newStubStore(issues ...Issue) *stubStore {
	s := &stubStore{issues: map[string]Issue{}}
	for _, i := range issues {
		s.issues[i.ID] = i
	}
	return s
}

func (s *stubStore) CreateIssue(_ context.Context, i Issue) (Issue, error) {
	s.issues[i.ID] = i
	return i, nil
}

func (s *stubStore) IssueByID(_ context.Context, id string) (Issue, error) {
	i, ok := s.issues[id]
	if !ok {
		return Issue{}, apperr.ErrNotFound
	}
	return i, nil
}

func (s *stubStore) ListIssues(_ context.Context, f Filter) ([]Issue, int, error) {
	s.lastList = f
	return nil, 0, nil
}

func (s *stubStore) UpdateIssue(_ context.Context, id string, upd Update, at time.Time) (Issue, error) {
	i := s.issues[id]
	if upd.Title != nil {
		i.Title = *upd.Title
	}
	if upd.Labels != nil {
		i.Labels = *upd.Labels
	}
	if upd.Status != nil {
		i.Status = *upd.Status
		if i.Status == StatusClosed {
			i.ClosedAt = &at
		} else {
			i.ClosedAt = nil
		}
	}
	s.issues[id] = i
	return i, nil
}

func (s *stubStore) DeleteIssue(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	delete(s.issues, id)
	return nil
}

func (s *stubStore) AssignIssue(_ context.Context, id, assigneeID string, _ time.Time) (Issue, error) {
	i := s.issues[id]
	i.Assignee = &auth.UserRef{ID: assigneeID}
	i.Status = StatusInProgress
	s.issues[id] = i
	return i, nil
}

func (s *stubStore) UnassignIssue(_ context.Context, id string, _ time.Time) (Issue, error) {
	i := s.issues[id]
	i.Assignee = nil
	if i.Status == StatusInProgress {
		i.Status = StatusOpen
	}
	s.issues[id] = i
	return i, nil
}

func (s *stubStore) SetStatus(_ context.Context, id string, status Status, closedAt *time.Time, _ time.Time) (Issue, error) {
	i := s.issues[id]
	i.Status = status
	i.ClosedAt = closedAt
	s.issues[id] = i
	return i, nil
}

func (s *stubStore) SetLabels(_ context.Context, id string, labels []string, _ time.Time) (Issue, error) {
	i := s.issues[id]
	i.Labels = labels
	s.issues[id] = i
	return i, nil
}

func (s *stubStore) AddComment(_ context.Context, c Comment) (Comment, error) {
	s.comments = append(s.comments, c)
	return c, nil
}

func (s *stubStore) ListComments(_ context.Context, issueID string, _ paging.Params) ([]Comment, int, error) {
	var out []Comment
	for _, c := range s.comments {
		if c.IssueID == issueID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (s *stubStore) IssueReleases(_ context.Context, issueID string) ([]ReleaseRef, error) {
	if issueID == "i1" {
		return []ReleaseRef{{ID: "rel1", Version: "1.2.0"}}, nil
	}
	return nil, nil
}

func TestNormalizeLabels(t *testing.T) {
	got := NormalizeLabels([]string{"Needs Triage", "needs-triage", " ", "UI/UX", "backend"})
	assert.Equal(t, []string{"needs-triage", "ui-ux", "backend"}, got)
}

func TestCreateNormalizesLabels(t *testing.T) {
	store := newStubStore()
	rec := &audittest.Recorder{}
	svc := NewService(store, rec)

	issue, err := svc.Create(context.Background(), "u1", NewIssue{
		Title:       "Login page crashes",
		Description: "500 on submit",
		Type:        TypeBug,
		Labels:      []string{"Auth", "auth", "Front End"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, issue.Status)
	assert.Equal(t, PriorityMedium, issue.Priority)
	assert.Equal(t, []string{"auth", "front-end"}, issue.Labels)
	assert.Nil(t, issue.Assignee)
	assert.Equal(t, []string{audit.ActionCreateIssue}, rec.Actions())
}

func TestCreateValidation(t *testing.T) {
	_, err := NewService(newStubStore(), nil).Create(context.Background(), "u1", NewIssue{Type: "EPIC"})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	details := apperr.Details(err)
	for _, f := range []string{"title", "description", "type"} {
		assert.Contains(t, details, f)
	}
}

func TestGetIncludesReleasesAndComments(t *testing.T) {
	store := newStubStore(Issue{ID: "i1", Status: StatusOpen})
	store.comments = []Comment{{ID: "c1", IssueID: "i1", Content: "repro attached"}}
	issue, err := NewService(store, nil).Get(context.Background(), "i1")
	require.NoError(t, err)
	require.Len(t, issue.Releases, 1)
	assert.Equal(t, "1.2.0", issue.Releases[0].Version)
	require.Len(t, issue.Comments, 1)
}

func TestListRejectsInvertedRange(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, nil)
	after := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before := after.Add(-24 * time.Hour)

	_, _, err := svc.List(context.Background(), Filter{CreatedAfter: &after, CreatedBefore: &before})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, _, err = svc.List(context.Background(), Filter{Labels: []string{"Front End"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"front-end"}, store.lastList.Labels)
}

func TestDeleteInProgressRejected(t *testing.T) {
	store := newStubStore(Issue{ID: "busy", Status: StatusInProgress}, Issue{ID: "idle", Status: StatusOpen})
	rec := &audittest.Recorder{}
	svc := NewService(store, rec)

	require.ErrorIs(t, svc.Delete(context.Background(), "u1", "busy"), apperr.ErrInvalidState)
	require.NoError(t, svc.Delete(context.Background(), "u1", "idle"))
	assert.Equal(t, []string{"idle"}, store.deleted)
	assert.Equal(t, []string{audit.ActionDeleteIssue}, rec.Actions())
}

func TestAssignAndUnassign(t *testing.T) {
	store := newStubStore(Issue{ID: "i1", Status: StatusOpen}, Issue{ID: "closed", Status: StatusClosed})
	rec := &audittest.Recorder{}
	svc := NewService(store, rec)
	ctx := context.Background()

	issue, err := svc.Assign(ctx, "lead", "i1", "dev")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, issue.Status)
	assert.Equal(t, "dev", issue.Assignee.ID)

	e, _ := rec.Last()
	assert.Equal(t, "dev", e.NewValues["assigneeId"])
	assert.Equal(t, string(StatusOpen), e.OldValues["status"])

	_, err = svc.Assign(ctx, "lead", "closed", "dev")
	require.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = svc.Assign(ctx, "lead", "i1", " ")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	issue, err = svc.Unassign(ctx, "lead", "i1")
	require.NoError(t, err)
	assert.Nil(t, issue.Assignee)
	assert.Equal(t, StatusOpen, issue.Status)

	_, err = svc.Unassign(ctx, "lead", "i1")
	require.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, []string{audit.ActionAssignIssue, audit.ActionUnassignIssue}, rec.Actions())
}

func TestCloseAndReopen(t *testing.T) {
	store := newStubStore(Issue{ID: "i1", Status: StatusResolved})
	rec := &audittest.Recorder{}
	svc := NewService(store, rec)
	fixed := time.Date(2026, 6, 2, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	issue, err := svc.Close(ctx, "lead", "i1")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, issue.Status)
	require.NotNil(t, issue.ClosedAt)
	assert.True(t, issue.ClosedAt.Equal(fixed))

	_, err = svc.Close(ctx, "lead", "i1")
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	issue, err = svc.Reopen(ctx, "lead", "i1")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, issue.Status)
	assert.Nil(t, issue.ClosedAt)

	_, err = svc.Reopen(ctx, "lead", "i1")
	require.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, []string{audit.ActionCloseIssue, audit.ActionReopenIssue}, rec.Actions())
}

func TestUpdateStatusClosedStampsClosedAt(t *testing.T) {
	store := newStubStore(Issue{ID: "i1", Title: "old", Status: StatusOpen})
	rec := &audittest.Recorder{}
	svc := NewService(store, rec)

	closed := StatusClosed
	issue, err := svc.Update(context.Background(), "lead", "i1", Update{Status: &closed})
	require.NoError(t, err)
	require.NotNil(t, issue.ClosedAt)

	e, _ := rec.Last()
	assert.Equal(t, audit.Snapshot{"status": string(StatusOpen)}, e.OldValues)
	assert.Equal(t, audit.Snapshot{"status": string(StatusClosed)}, e.NewValues)

	empty := "  "
	_, err = svc.Update(context.Background(), "lead", "i1", Update{Title: &empty})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestLabels(t *testing.T) {
	store := newStubStore(Issue{ID: "i1", Status: StatusOpen, Labels: []string{"backend"}})
	rec := &audittest.Recorder{}
	svc := NewService(store, rec)
	ctx := context.Background()

	issue, err := svc.AddLabel(ctx, "u1", "i1", "Needs Review")
	require.NoError(t, err)
	assert.Equal(t, []string{"backend", "needs-review"}, issue.Labels)

	issue, err = svc.AddLabel(ctx, "u1", "i1", "needs-review")
	require.NoError(t, err)
	assert.Equal(t, []string{"backend", "needs-review"}, issue.Labels)

	issue, err = svc.RemoveLabel(ctx, "u1", "i1", "Backend")
	require.NoError(t, err)
	assert.Equal(t, []string{"needs-review"}, issue.Labels)

	_, err = svc.RemoveLabel(ctx, "u1", "i1", "backend")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.AddLabel(ctx, "u1", "i1", "!!!")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	assert.Equal(t, []string{audit.ActionAddIssueLabel, audit.ActionRemoveIssueLabel}, rec.Actions())
}

func TestAddCommentRecordsAudit(t *testing.T) {
	store := newStubStore(Issue{ID: "i1", Status: StatusOpen})
	rec := &audittest.Recorder{}
	svc := NewService(store, rec)

	c, err := svc.AddComment(context.Background(), "dev-1", "i1", "stack trace attached")
	require.NoError(t, err)
	require.Len(t, store.comments, 1)

	e, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, audit.ActionAddIssueComment, e.Action)
	assert.Equal(t, audit.ResourceIssue, e.ResourceType)
	assert.Equal(t, "i1", e.ResourceID)
	assert.Equal(t, c.ID, e.NewValues["commentId"])

	_, err = svc.AddComment(context.Background(), "dev-1", "i1", "   ")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Len(t, rec.Entries(), 1)
}
