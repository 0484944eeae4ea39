package releases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/ids"
)

const (
	defaultLatest = 5
	maxLatest     = 50
	recentWindow  = 30 * 24 * time.Hour
)

// Store persists releases and their issue links. Version uniqueness is
// enforced by the store and reported as apperr.ErrConflict.
type Store interface {
	CreateRelease(ctx context.Context, r Release) (Release, error)
	ReleaseByID(ctx context.Context, id string) (Release, error)
	ListReleases(ctx context.Context, f Filter) ([]Release, int, error)
	UpdateRelease(ctx context.Context, id string, upd Update, at time.Time) (Release, error)
	DeleteRelease(ctx context.Context, id string) error
	// LinkIssue returns ErrConflict when the link exists and ErrNotFound
	// when the issue does not.
	LinkIssue(ctx context.Context, releaseID, issueID string, at time.Time) (IssueRef, error)
	UnlinkIssue(ctx context.Context, releaseID, issueID string) (bool, error)
	ReleaseIssues(ctx context.Context, releaseID string) ([]IssueRef, error)
	LatestReleases(ctx context.Context, limit int) ([]Release, error)
	ReleaseStats(ctx context.Context, since time.Time) (Stats, error)
}

// Service implements release management.
type Service struct {
	store   Store
	auditor audit.Auditor
	now     func() time.Time
}

// NewService constructs Service.
func NewService(store Store, auditor audit.Auditor) *Service {
	return &Service{store: store, auditor: auditor, now: time.Now}
}

// Create publishes a new release.
func (s *Service) Create(ctx context.Context, actorID string, in NewRelease) (Release, error) {
	in.Version = strings.TrimSpace(in.Version)
	in.Title = strings.TrimSpace(in.Title)
	fields := map[string]string{}
	if in.Version == "" {
		fields["version"] = "is required"
	}
	if in.Title == "" {
		fields["title"] = "is required"
	}
	if in.ReleaseDate.IsZero() {
		fields["releaseDate"] = "is required"
	}
	if len(fields) > 0 {
		return Release{}, apperr.NewValidation(fields)
	}
	rel, err := s.store.CreateRelease(ctx, Release{
		ID:           ids.New(),
		Version:      in.Version,
		Title:        in.Title,
		Description:  strings.TrimSpace(in.Description),
		ReleaseDate:  in.ReleaseDate.UTC(),
		IsPrerelease: in.IsPrerelease,
		Changelog:    in.Changelog,
	})
	if err != nil {
		return Release{}, err
	}
	s.record(ctx, actorID, audit.ActionCreateRelease, rel.ID, nil, rel.snapshot())
	return rel, nil
}

// Get returns a release with its linked issues.
func (s *Service) Get(ctx context.Context, id string) (Release, error) {
	rel, err := s.store.ReleaseByID(ctx, id)
	if err != nil {
		return Release{}, err
	}
	issues, err := s.store.ReleaseIssues(ctx, id)
	if err != nil {
		return Release{}, err
	}
	rel.Issues = issues
	rel.IssueCount = len(issues)
	return rel, nil
}

// List returns a page of releases, newest release date first by default.
func (s *Service) List(ctx context.Context, f Filter) ([]Release, int, error) {
	if f.ReleasedAfter != nil && f.ReleasedBefore != nil && f.ReleasedBefore.Before(*f.ReleasedAfter) {
		return nil, 0, apperr.FieldError("releasedBefore", "must not precede releasedAfter")
	}
	if f.SortBy == "" {
		f.SortBy = "releaseDate"
		f.SortDesc = true
	}
	return s.store.ListReleases(ctx, f)
}

// Latest returns the most recent releases.
func (s *Service) Latest(ctx context.Context, limit int) ([]Release, error) {
	if limit <= 0 {
		limit = defaultLatest
	}
	if limit > maxLatest {
		limit = maxLatest
	}
	return s.store.LatestReleases(ctx, limit)
}

// Update applies a partial change.
func (s *Service) Update(ctx context.Context, actorID, id string, upd Update) (Release, error) {
	fields := map[string]string{}
	if upd.Version != nil {
		v := strings.TrimSpace(*upd.Version)
		if v == "" {
			fields["version"] = "must not be empty"
		}
		upd.Version = &v
	}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		fields["title"] = "must not be empty"
	}
	if upd.ReleaseDate != nil && upd.ReleaseDate.IsZero() {
		fields["releaseDate"] = "must be a valid date"
	}
	if len(fields) > 0 {
		return Release{}, apperr.NewValidation(fields)
	}
	before, err := s.store.ReleaseByID(ctx, id)
	if err != nil {
		return Release{}, err
	}
	after, err := s.store.UpdateRelease(ctx, id, upd, s.now().UTC())
	if err != nil {
		return Release{}, err
	}
	oldV, newV := audit.Diff(before.snapshot(), after.snapshot())
	s.record(ctx, actorID, audit.ActionUpdateRelease, id, oldV, newV)
	return after, nil
}

// Delete removes a release and its issue links.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	before, err := s.store.ReleaseByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRelease(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, audit.ActionDeleteRelease, id, before.snapshot(), nil)
	return nil
}

// LinkIssue records that issueID ships in the release.
func (s *Service) LinkIssue(ctx context.Context, actorID, releaseID, issueID string) (IssueRef, error) {
	issueID = strings.TrimSpace(issueID)
	if issueID == "" {
		return IssueRef{}, apperr.FieldError("issueId", "is required")
	}
	if _, err := s.store.ReleaseByID(ctx, releaseID); err != nil {
		return IssueRef{}, err
	}
	ref, err := s.store.LinkIssue(ctx, releaseID, issueID, s.now().UTC())
	if err != nil {
		return IssueRef{}, err
	}
	s.record(ctx, actorID, audit.ActionLinkReleaseIssue, releaseID, nil, audit.Snapshot{"issueId": issueID})
	return ref, nil
}

// UnlinkIssue removes issueID from the release.
func (s *Service) UnlinkIssue(ctx context.Context, actorID, releaseID, issueID string) error {
	removed, err := s.store.UnlinkIssue(ctx, releaseID, issueID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: issue is not linked to this release", apperr.ErrNotFound)
	}
	s.record(ctx, actorID, audit.ActionUnlinkReleaseIssue, releaseID, audit.Snapshot{"issueId": issueID}, nil)
	return nil
}

// Stats summarises release activity over the last 30 days.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.store.ReleaseStats(ctx, s.now().UTC().Add(-recentWindow))
	if err != nil {
		return Stats{}, err
	}
	st.StableReleases = st.TotalReleases - st.Prereleases
	return st, nil
}

func (s *Service) record(ctx context.Context, actorID, action, id string, oldV, newV audit.Snapshot) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, actorID, action, audit.ResourceRelease, id, oldV, newV)
}
