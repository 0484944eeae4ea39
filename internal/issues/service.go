package issues

import (
	"context"
	"fmt"
	"strings"
	"time"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/ids"
	"itdesk.org/internal/paging"
)

// Store persists issues, labels and comments.
type Store interface {
	CreateIssue(ctx context.Context, i Issue) (Issue, error)
	IssueByID(ctx context.Context, id string) (Issue, error)
	ListIssues(ctx context.Context, f Filter) ([]Issue, int, error)
	// UpdateIssue applies upd. A status change to CLOSED stamps closed_at
	// with at unless already set; any other status clears it.
	UpdateIssue(ctx context.Context, id string, upd Update, at time.Time) (Issue, error)
	DeleteIssue(ctx context.Context, id string) error
	AssignIssue(ctx context.Context, id, assigneeID string, at time.Time) (Issue, error)
	// UnassignIssue clears the assignee and moves IN_PROGRESS back to OPEN.
	UnassignIssue(ctx context.Context, id string, at time.Time) (Issue, error)
	SetStatus(ctx context.Context, id string, status Status, closedAt *time.Time, at time.Time) (Issue, error)
	SetLabels(ctx context.Context, id string, labels []string, at time.Time) (Issue, error)
	AddComment(ctx context.Context, c Comment) (Comment, error)
	ListComments(ctx context.Context, issueID string, p paging.Params) ([]Comment, int, error)
	IssueReleases(ctx context.Context, issueID string) ([]ReleaseRef, error)
	LabelCounts(ctx context.Context) ([]LabelCount, error)
	IssueStats(ctx context.Context) (Stats, error)
}

// Service implements issue tracking.
type Service struct {
	store   Store
	auditor audit.Auditor
	now     func() time.Time
}

// NewService constructs Service.
func NewService(store Store, auditor audit.Auditor) *Service {
	return &Service{store: store, auditor: auditor, now: time.Now}
}

// Create files an issue reported by reporterID.
func (s *Service) Create(ctx context.Context, reporterID string, in NewIssue) (Issue, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	fields := map[string]string{}
	if in.Title == "" {
		fields["title"] = "is required"
	}
	if in.Description == "" {
		fields["description"] = "is required"
	}
	if !in.Type.Valid() {
		fields["type"] = "unknown issue type"
	}
	if !in.Priority.Valid() {
		fields["priority"] = "unknown priority"
	}
	if len(fields) > 0 {
		return Issue{}, apperr.NewValidation(fields)
	}

	issue := Issue{
		ID:          ids.New(),
		Title:       in.Title,
		Description: in.Description,
		Type:        in.Type,
		Priority:    in.Priority,
		Status:      StatusOpen,
		Labels:      NormalizeLabels(in.Labels),
		Reporter:    auth.UserRef{ID: reporterID},
	}
	if a := strings.TrimSpace(in.AssigneeID); a != "" {
		issue.Assignee = &auth.UserRef{ID: a}
	}
	created, err := s.store.CreateIssue(ctx, issue)
	if err != nil {
		return Issue{}, err
	}
	s.record(ctx, reporterID, audit.ActionCreateIssue, created.ID, nil, created.snapshot())
	return created, nil
}

// Get returns an issue with its comments and linked releases.
func (s *Service) Get(ctx context.Context, id string) (Issue, error) {
	issue, err := s.store.IssueByID(ctx, id)
	if err != nil {
		return Issue{}, err
	}
	comments, _, err := s.store.ListComments(ctx, id, paging.Params{Page: 1, Limit: paging.MaxLimit})
	if err != nil {
		return Issue{}, err
	}
	releases, err := s.store.IssueReleases(ctx, id)
	if err != nil {
		return Issue{}, err
	}
	issue.Comments = comments
	issue.Releases = releases
	return issue, nil
}

// List returns a page of issues matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Issue, int, error) {
	fields := map[string]string{}
	if f.Status != "" && !f.Status.Valid() {
		fields["status"] = "unknown status"
	}
	if f.Priority != "" && !f.Priority.Valid() {
		fields["priority"] = "unknown priority"
	}
	if f.Type != "" && !f.Type.Valid() {
		fields["type"] = "unknown issue type"
	}
	if f.CreatedAfter != nil && f.CreatedBefore != nil && f.CreatedBefore.Before(*f.CreatedAfter) {
		fields["createdBefore"] = "must not precede createdAfter"
	}
	if len(fields) > 0 {
		return nil, 0, apperr.NewValidation(fields)
	}
	f.Labels = NormalizeLabels(f.Labels)
	return s.store.ListIssues(ctx, f)
}

// Update applies a partial change.
func (s *Service) Update(ctx context.Context, actorID, id string, upd Update) (Issue, error) {
	fields := map[string]string{}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		fields["title"] = "must not be empty"
	}
	if upd.Description != nil && strings.TrimSpace(*upd.Description) == "" {
		fields["description"] = "must not be empty"
	}
	if upd.Type != nil && !upd.Type.Valid() {
		fields["type"] = "unknown issue type"
	}
	if upd.Priority != nil && !upd.Priority.Valid() {
		fields["priority"] = "unknown priority"
	}
	if upd.Status != nil && !upd.Status.Valid() {
		fields["status"] = "unknown status"
	}
	if len(fields) > 0 {
		return Issue{}, apperr.NewValidation(fields)
	}
	if upd.Labels != nil {
		labels := NormalizeLabels(*upd.Labels)
		upd.Labels = &labels
	}
	before, err := s.store.IssueByID(ctx, id)
	if err != nil {
		return Issue{}, err
	}
	after, err := s.store.UpdateIssue(ctx, id, upd, s.now().UTC())
	if err != nil {
		return Issue{}, err
	}
	oldV, newV := audit.Diff(before.snapshot(), after.snapshot())
	s.record(ctx, actorID, audit.ActionUpdateIssue, id, oldV, newV)
	return after, nil
}

// Delete removes an issue unless someone is working on it.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	before, err := s.store.IssueByID(ctx, id)
	if err != nil {
		return err
	}
	if before.Status == StatusInProgress {
		return fmt.Errorf("%w: cannot delete issue that is in progress", apperr.ErrInvalidState)
	}
	if err := s.store.DeleteIssue(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, audit.ActionDeleteIssue, id, before.snapshot(), nil)
	return nil
}

// Assign hands the issue to assigneeID and starts work on it.
func (s *Service) Assign(ctx context.Context, actorID, id, assigneeID string) (Issue, error) {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return Issue{}, apperr.FieldError("assigneeId", "is required")
	}
	before, err := s.store.IssueByID(ctx, id)
	if err != nil {
		return Issue{}, err
	}
	if before.Status == StatusClosed {
		return Issue{}, fmt.Errorf("%w: issue is closed", apperr.ErrInvalidState)
	}
	after, err := s.store.AssignIssue(ctx, id, assigneeID, s.now().UTC())
	if err != nil {
		return Issue{}, err
	}
	oldV, newV := audit.Diff(before.snapshot(), after.snapshot())
	s.record(ctx, actorID, audit.ActionAssignIssue, id, oldV, newV)
	return after, nil
}

// Unassign removes the assignee.
func (s *Service) Unassign(ctx context.Context, actorID, id string) (Issue, error) {
	before, err := s.store.IssueByID(ctx, id)
	if err != nil {
		return Issue{}, err
	}
	if before.Assignee == nil {
		return Issue{}, fmt.Errorf("%w: issue has no assignee", apperr.ErrInvalidState)
	}
	after, err := s.store.UnassignIssue(ctx, id, s.now().UTC())
	if err != nil {
		return Issue{}, err
	}
	oldV, newV := audit.Diff(before.snapshot(), after.snapshot())
	s.record(ctx, actorID, audit.ActionUnassignIssue, id, oldV, newV)
	return after, nil
}

// Close marks the issue CLOSED and stamps closedAt.
func (s *Service) Close(ctx context.Context, actorID, id string) (Issue, error) {
	before, err := s.store.IssueByID(ctx, id)
	if err != nil {
		return Issue{}, err
	}
	if before.Status == StatusClosed {
		return Issue{}, fmt.Errorf("%w: issue is already closed", apperr.ErrInvalidState)
	}
	now := s.now().UTC()
	after, err := s.store.SetStatus(ctx, id, StatusClosed, &now, now)
	if err != nil {
		return Issue{}, err
	}
	s.record(ctx, actorID, audit.ActionCloseIssue, id,
		audit.Snapshot{"status": string(before.Status)},
		audit.Snapshot{"status": string(StatusClosed), "closedAt": now})
	return after, nil
}

// Reopen moves a resolved or closed issue back to OPEN.
func (s *Service) Reopen(ctx context.Context, actorID, id string) (Issue, error) {
	before, err := s.store.IssueByID(ctx, id)
	if err != nil {
		return Issue{}, err
	}
	if before.Status != StatusClosed && before.Status != StatusResolved {
		return Issue{}, fmt.Errorf("%w: issue is %s", apperr.ErrInvalidState, before.Status)
	}
	after, err := s.store.SetStatus(ctx, id, StatusOpen, nil, s.now().UTC())
	if err != nil {
		return Issue{}, err
	}
	s.record(ctx, actorID, audit.ActionReopenIssue, id,
		audit.Snapshot{"status": string(before.Status)},
		audit.Snapshot{"status": string(StatusOpen)})
	return after, nil
}

// AddLabel tags the issue. Adding a label that is already present is a no-op.
func (s *Service) AddLabel(ctx context.Context, actorID, id, label string) (Issue, error) {
	label = NormalizeLabel(label)
	if label == "" {
		return Issue{}, apperr.FieldError("label", "is required")
	}
	before, err := s.store.IssueByID(ctx, id)
	if err != nil {
		return Issue{}, err
	}
	if before.HasLabel(label) {
		return before, nil
	}
	labels := append(append([]string{}, before.Labels...), label)
	after, err := s.store.SetLabels(ctx, id, labels, s.now().UTC())
	if err != nil {
		return Issue{}, err
	}
	s.record(ctx, actorID, audit.ActionAddIssueLabel, id,
		audit.Snapshot{"labels": before.Labels},
		audit.Snapshot{"labels": after.Labels, "label": label})
	return after, nil
}

// RemoveLabel untags the issue.
func (s *Service) RemoveLabel(ctx context.Context, actorID, id, label string) (Issue, error) {
	label = NormalizeLabel(label)
	if label == "" {
		return Issue{}, apperr.FieldError("label", "is required")
	}
	before, err := s.store.IssueByID(ctx, id)
	if err != nil {
		return Issue{}, err
	}
	if !before.HasLabel(label) {
		return Issue{}, fmt.Errorf("%w: label %q not on issue", apperr.ErrNotFound, label)
	}
	labels := make([]string, 0, len(before.Labels))
	for _, l := range before.Labels {
		if l != label {
			labels = append(labels, l)
		}
	}
	after, err := s.store.SetLabels(ctx, id, labels, s.now().UTC())
	if err != nil {
		return Issue{}, err
	}
	s.record(ctx, actorID, audit.ActionRemoveIssueLabel, id,
		audit.Snapshot{"labels": before.Labels, "label": label},
		audit.Snapshot{"labels": after.Labels})
	return after, nil
}

// Labels returns every label in use with its issue count.
func (s *Service) Labels(ctx context.Context) ([]LabelCount, error) {
	return s.store.LabelCounts(ctx)
}

// AddComment appends a note to an issue.
func (s *Service) AddComment(ctx context.Context, authorID, issueID, content string) (Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, apperr.FieldError("content", "is required")
	}
	if _, err := s.store.IssueByID(ctx, issueID); err != nil {
		return Comment{}, err
	}
	c, err := s.store.AddComment(ctx, Comment{
		ID:        ids.New(),
		IssueID:   issueID,
		Content:   content,
		Author:    auth.UserRef{ID: authorID},
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return Comment{}, err
	}
	s.record(ctx, authorID, audit.ActionAddIssueComment, issueID, nil, audit.Snapshot{"commentId": c.ID})
	return c, nil
}

// Comments lists an issue's comments, newest first.
func (s *Service) Comments(ctx context.Context, issueID string, p paging.Params) ([]Comment, int, error) {
	if _, err := s.store.IssueByID(ctx, issueID); err != nil {
		return nil, 0, err
	}
	return s.store.ListComments(ctx, issueID, p)
}

// Stats counts issues by status, priority and type.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.store.IssueStats(ctx)
}

func (s *Service) record(ctx context.Context, actorID, action, id string, oldV, newV audit.Snapshot) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, actorID, action, audit.ResourceIssue, id, oldV, newV)
}
