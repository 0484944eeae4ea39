// Package issues tracks bugs, feature requests and tasks against the
// product, with labels and comments.
package issues

import (
	"time"

	"itdesk.org/internal/audit"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/paging"
)

type Type string

const (
	TypeBug            Type = "BUG"
	TypeFeatureRequest Type = "FEATURE_REQUEST"
	TypeImprovement    Type = "IMPROVEMENT"
	TypeTask           Type = "TASK"
)

func (t Type) Valid() bool {
	switch t {
	case TypeBug, TypeFeatureRequest, TypeImprovement, TypeTask:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusClosed     Status = "CLOSED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// ReleaseRef is a release an issue ships in.
type ReleaseRef struct {
	ID          string     `json:"id"`
	Version     string     `json:"version"`
	Title       string     `json:"title"`
	ReleaseDate *time.Time `json:"releaseDate,omitempty"`
}

// Issue is a tracked bug, feature request, improvement or task.
type Issue struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Type         Type          `json:"type"`
	Priority     Priority      `json:"priority"`
	Status       Status        `json:"status"`
	Labels       []string      `json:"labels"`
	Reporter     auth.UserRef  `json:"reporter"`
	Assignee     *auth.UserRef `json:"assignee,omitempty"`
	CommentCount int           `json:"commentCount"`
	ClosedAt     *time.Time    `json:"closedAt,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Releases     []ReleaseRef  `json:"releases,omitempty"`
	Comments     []Comment     `json:"comments,omitempty"`
}

func (i Issue) snapshot() audit.Snapshot {
	s := audit.Snapshot{
		"title":       i.Title,
		"description": i.Description,
		"type":        string(i.Type),
		"priority":    string(i.Priority),
		"status":      string(i.Status),
		"labels":      append([]string{}, i.Labels...),
	}
	if i.Assignee != nil {
		s["assigneeId"] = i.Assignee.ID
	}
	return s
}

// HasLabel reports whether label is set on the issue.
func (i Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// NewIssue carries the fields accepted when reporting an issue.
type NewIssue struct {
	Title       string
	Description string
	Type        Type
	Priority    Priority
	AssigneeID  string
	Labels      []string
}

// Update holds optional field changes.
type Update struct {
	Title       *string
	Description *string
	Type        *Type
	Priority    *Priority
	Status      *Status
	Labels      *[]string
}

// Filter narrows issue listings. Labels match issues carrying any of them.
type Filter struct {
	Search        string
	Type          Type
	Priority      Priority
	Status        Status
	AssigneeID    string
	ReporterID    string
	Labels        []string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	SortBy        string
	SortDesc      bool
	Page          paging.Params
}

// Comment is a note on an issue.
type Comment struct {
	ID        string       `json:"id"`
	IssueID   string       `json:"issueId"`
	Content   string       `json:"content"`
	Author    auth.UserRef `json:"author"`
	CreatedAt time.Time    `json:"createdAt"`
}

// LabelCount is how many issues carry a label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Stats counts issues by state and kind.
type Stats struct {
	TotalIssues         int `json:"totalIssues"`
	OpenIssues          int `json:"openIssues"`
	InProgressIssues    int `json:"inProgressIssues"`
	ResolvedIssues      int `json:"resolvedIssues"`
	ClosedIssues        int `json:"closedIssues"`
	HighPriorityIssues  int `json:"highPriorityIssues"`
	BugCount            int `json:"bugCount"`
	FeatureRequestCount int `json:"featureRequestCount"`
}
