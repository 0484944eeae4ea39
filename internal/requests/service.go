package requests

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

// Store persists requests and their comments.
type Store interface {
	CreateRequest(ctx context.Context, r Request) (Request, error)
	RequestByID(ctx context.Context, id string) (Request, error)
	ListRequests(ctx context.Context, f Filter) ([]Request, int, error)
	UpdateRequest(ctx context.Context, id string, upd Update) (Request, error)
	// DeleteRequest removes a request that is not IN_PROGRESS.
	DeleteRequest(ctx context.Context, id string) error
	AssignRequest(ctx context.Context, id, assigneeID string, at time.Time) (Request, error)
	SetStatus(ctx context.Context, id string, status Status, closedAt *time.Time, at time.Time) (Request, error)
	AddComment(ctx context.Context, c Comment) (Comment, error)
	ListComments(ctx context.Context, requestID string, p paging.Params) ([]Comment, int, error)
	RequestStats(ctx context.Context, requesterID string, now time.Time) (Stats, error)
}

// Service implements request workflows.
type Service struct {
	store   Store
	auditor audit.Auditor
	now     func() time.Time
}

// NewService constructs Service.
func NewService(store Store, auditor audit.Auditor) *Service {
	return &Service{store: store, auditor: auditor, now: time.Now}
}

// Create raises a request on behalf of requesterID.
func (s *Service) Create(ctx context.Context, requesterID string, in NewRequest) (Request, error) {
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
		fields["type"] = "unknown request type"
	}
	if !in.Priority.Valid() {
		fields["priority"] = "unknown priority"
	}
	for i, a := range in.Assets {
		if strings.TrimSpace(a.ID) == "" {
			fields[fmt.Sprintf("assets[%d].assetId", i)] = "is required"
		}
	}
	if len(fields) > 0 {
		return Request{}, apperr.NewValidation(fields)
	}

	req, err := s.store.CreateRequest(ctx, Request{
		ID:          ids.New(),
		Title:       in.Title,
		Description: in.Description,
		Type:        in.Type,
		Priority:    in.Priority,
		Status:      StatusPending,
		Department:  strings.TrimSpace(in.Department),
		DueDate:     in.DueDate,
		Requester:   auth.UserRef{ID: requesterID},
		Assets:      in.Assets,
	})
	if err != nil {
		return Request{}, err
	}
	s.record(ctx, requesterID, audit.ActionCreateRequest, req.ID, nil, audit.Snapshot{
		"title":    req.Title,
		"type":     string(req.Type),
		"priority": string(req.Priority),
	})
	return req, nil
}

// Get returns a request with its comments.
func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	req, err := s.store.RequestByID(ctx, id)
	if err != nil {
		return Request{}, err
	}
	comments, _, err := s.store.ListComments(ctx, id, paging.Params{Page: 1, Limit: paging.MaxLimit})
	if err != nil {
		return Request{}, err
	}
	req.Comments = comments
	return req, nil
}

// List returns a page of requests matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Request, int, error) {
	fields := map[string]string{}
	if f.Status != "" && !f.Status.Valid() {
		fields["status"] = "unknown status"
	}
	if f.Priority != "" && !f.Priority.Valid() {
		fields["priority"] = "unknown priority"
	}
	if f.Type != "" && !f.Type.Valid() {
		fields["type"] = "unknown request type"
	}
	if len(fields) > 0 {
		return nil, 0, apperr.NewValidation(fields)
	}
	return s.store.ListRequests(ctx, f)
}

// Mine lists requests raised by userID.
func (s *Service) Mine(ctx context.Context, userID string, f Filter) ([]Request, int, error) {
	f.RequesterID = userID
	return s.List(ctx, f)
}

// Assigned lists requests assigned to userID.
func (s *Service) Assigned(ctx context.Context, userID string, f Filter) ([]Request, int, error) {
	f.AssigneeID = userID
	return s.List(ctx, f)
}

// Update changes descriptive fields.
func (s *Service) Update(ctx context.Context, actorID, id string, upd Update) (Request, error) {
	fields := map[string]string{}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		fields["title"] = "must not be empty"
	}
	if upd.Type != nil && !upd.Type.Valid() {
		fields["type"] = "unknown request type"
	}
	if upd.Priority != nil && !upd.Priority.Valid() {
		fields["priority"] = "unknown priority"
	}
	if len(fields) > 0 {
		return Request{}, apperr.NewValidation(fields)
	}
	before, err := s.store.RequestByID(ctx, id)
	if err != nil {
		return Request{}, err
	}
	after, err := s.store.UpdateRequest(ctx, id, upd)
	if err != nil {
		return Request{}, err
	}
	oldV, newV := audit.Diff(before.snapshot(), after.snapshot())
	s.record(ctx, actorID, audit.ActionUpdateRequest, id, oldV, newV)
	return after, nil
}

// Delete removes a request unless work on it is in progress.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	before, err := s.store.RequestByID(ctx, id)
	if err != nil {
		return err
	}
	if before.Status == StatusInProgress {
		return fmt.Errorf("%w: cannot delete request that is in progress", apperr.ErrInvalidState)
	}
	if err := s.store.DeleteRequest(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, audit.ActionDeleteRequest, id, audit.Snapshot{"title": before.Title, "status": string(before.Status)}, nil)
	return nil
}

// Assign hands a request to assigneeID and moves it to IN_PROGRESS.
func (s *Service) Assign(ctx context.Context, actorID, id, assigneeID, notes string) (Request, error) {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return Request{}, apperr.FieldError("assigneeId", "is required")
	}
	before, err := s.store.RequestByID(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if before.Status.Closed() {
		return Request{}, fmt.Errorf("%w: request is %s", apperr.ErrInvalidState, before.Status)
	}
	after, err := s.store.AssignRequest(ctx, id, assigneeID, s.now().UTC())
	if err != nil {
		return Request{}, err
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		if _, err := s.addComment(ctx, actorID, id, notes); err != nil {
			return Request{}, err
		}
	}
	prev := audit.Snapshot{"status": string(before.Status)}
	if before.Assignee != nil {
		prev["assigneeId"] = before.Assignee.ID
	}
	s.record(ctx, actorID, audit.ActionAssignRequest, id, prev, audit.Snapshot{
		"assigneeId": assigneeID,
		"status":     string(after.Status),
	})
	return after, nil
}

// UpdateStatus moves a request to status. COMPLETED stamps closedAt; notes
// are kept as a comment.
func (s *Service) UpdateStatus(ctx context.Context, actorID, id string, status Status, notes string) (Request, error) {
	if !status.Valid() {
		return Request{}, apperr.FieldError("status", "unknown status")
	}
	before, err := s.store.RequestByID(ctx, id)
	if err != nil {
		return Request{}, err
	}
	now := s.now().UTC()
	var closedAt *time.Time
	if status == StatusCompleted {
		closedAt = &now
	}
	after, err := s.store.SetStatus(ctx, id, status, closedAt, now)
	if err != nil {
		return Request{}, err
	}
	notes = strings.TrimSpace(notes)
	if notes != "" {
		if _, err := s.addComment(ctx, actorID, id, fmt.Sprintf("Status updated to %s: %s", status, notes)); err != nil {
			return Request{}, err
		}
	}
	newV := audit.Snapshot{"status": string(status)}
	if notes != "" {
		newV["notes"] = notes
	}
	s.record(ctx, actorID, audit.ActionUpdateRequestStatus, id, audit.Snapshot{"status": string(before.Status)}, newV)
	return after, nil
}

// AddComment appends a note to a request.
func (s *Service) AddComment(ctx context.Context, authorID, requestID, content string) (Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, apperr.FieldError("content", "is required")
	}
	if _, err := s.store.RequestByID(ctx, requestID); err != nil {
		return Comment{}, err
	}
	c, err := s.addComment(ctx, authorID, requestID, content)
	if err != nil {
		return Comment{}, err
	}
	s.record(ctx, authorID, audit.ActionAddRequestComment, requestID, nil, audit.Snapshot{"commentId": c.ID})
	return c, nil
}

func (s *Service) addComment(ctx context.Context, authorID, requestID, content string) (Comment, error) {
	return s.store.AddComment(ctx, Comment{
		ID:        ids.New(),
		RequestID: requestID,
		Content:   content,
		Author:    auth.UserRef{ID: authorID},
		CreatedAt: s.now().UTC(),
	})
}

// Comments lists a request's comments, newest first.
func (s *Service) Comments(ctx context.Context, requestID string, p paging.Params) ([]Comment, int, error) {
	if _, err := s.store.RequestByID(ctx, requestID); err != nil {
		return nil, 0, err
	}
	return s.store.ListComments(ctx, requestID, p)
}

// Stats counts requests; an empty requesterID counts across everyone.
func (s *Service) Stats(ctx context.Context, requesterID string) (Stats, error) {
	return s.store.RequestStats(ctx, requesterID, s.now().UTC())
}

func (s *Service) record(ctx context.Context, actorID, action, id string, oldV, newV audit.Snapshot) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, actorID, action, audit.ResourceRequest, id, oldV, newV)
}
