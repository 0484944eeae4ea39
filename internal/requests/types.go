// Package requests handles service requests raised by staff: equipment,
// maintenance, software and access requests.
package requests

import (
	"time"

	"itdesk.org/internal/audit"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/paging"
)

type Type string

const (
	TypeEquipment   Type = "EQUIPMENT_REQUEST"
	TypeMaintenance Type = "MAINTENANCE_REQUEST"
	TypeSoftware    Type = "SOFTWARE_REQUEST"
	TypeAccess      Type = "ACCESS_REQUEST"
	TypeOther       Type = "OTHER"
)

func (t Type) Valid() bool {
	switch t {
	case TypeEquipment, TypeMaintenance, TypeSoftware, TypeAccess, TypeOther:
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
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusInProgress, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Closed reports whether the request has reached a final state.
func (s Status) Closed() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// AssetRef is an asset linked to a request.
type AssetRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AssetTag string `json:"assetTag"`
	Notes    string `json:"notes,omitempty"`
}

// Request is a service request.
type Request struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Type         Type          `json:"type"`
	Priority     Priority      `json:"priority"`
	Status       Status        `json:"status"`
	Department   string        `json:"department,omitempty"`
	DueDate      *time.Time    `json:"dueDate,omitempty"`
	Requester    auth.UserRef  `json:"requester"`
	Assignee     *auth.UserRef `json:"assignee,omitempty"`
	Assets       []AssetRef    `json:"assets,omitempty"`
	CommentCount int           `json:"commentCount"`
	ClosedAt     *time.Time    `json:"closedAt,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Comments     []Comment     `json:"comments,omitempty"`
}

func (r Request) snapshot() audit.Snapshot {
	s := audit.Snapshot{
		"title":       r.Title,
		"description": r.Description,
		"type":        string(r.Type),
		"priority":    string(r.Priority),
		"status":      string(r.Status),
		"department":  r.Department,
	}
	if r.DueDate != nil {
		s["dueDate"] = r.DueDate.UTC().Format(time.RFC3339)
	}
	if r.Assignee != nil {
		s["assigneeId"] = r.Assignee.ID
	}
	return s
}

// NewRequest carries the fields accepted when raising a request.
type NewRequest struct {
	Title       string
	Description string
	Type        Type
	Priority    Priority
	Department  string
	DueDate     *time.Time
	Assets      []AssetRef
}

// Update holds optional field changes. Status changes go through UpdateStatus.
type Update struct {
	Title       *string
	Description *string
	Type        *Type
	Priority    *Priority
	Department  *string
	DueDate     *time.Time
}

// Filter narrows request listings.
type Filter struct {
	Search      string
	Status      Status
	Priority    Priority
	Type        Type
	AssigneeID  string
	RequesterID string
	Department  string
	SortBy      string
	SortDesc    bool
	Page        paging.Params
}

// Comment is a note on a request.
type Comment struct {
	ID        string       `json:"id"`
	RequestID string       `json:"requestId"`
	Content   string       `json:"content"`
	Author    auth.UserRef `json:"author"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Stats counts requests by state.
type Stats struct {
	TotalRequests        int `json:"totalRequests"`
	PendingRequests      int `json:"pendingRequests"`
	InProgressRequests   int `json:"inProgressRequests"`
	CompletedRequests    int `json:"completedRequests"`
	HighPriorityRequests int `json:"highPriorityRequests"`
	Overdue              int `json:"overdue"`
}
