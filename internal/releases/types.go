// Package releases manages product releases and the issues shipped in them.
package releases

import (
	"time"

	"itdesk.org/internal/audit"
	"itdesk.org/internal/paging"
)

// Release is a published version of the product.
type Release struct {
	ID           string     `json:"id"`
	Version      string     `json:"version"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	ReleaseDate  time.Time  `json:"releaseDate"`
	IsPrerelease bool       `json:"isPrerelease"`
	Changelog    string     `json:"changelog,omitempty"`
	IssueCount   int        `json:"issueCount"`
	Issues       []IssueRef `json:"issues,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (r Release) snapshot() audit.Snapshot {
	return audit.Snapshot{
		"version":      r.Version,
		"title":        r.Title,
		"description":  r.Description,
		"releaseDate":  r.ReleaseDate.UTC().Format(time.RFC3339),
		"isPrerelease": r.IsPrerelease,
		"changelog":    r.Changelog,
	}
}

// IssueRef summarises an issue linked to a release.
type IssueRef struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Type     string    `json:"type"`
	Priority string    `json:"priority"`
	Status   string    `json:"status"`
	LinkedAt time.Time `json:"linkedAt"`
}

// NewRelease carries the fields accepted when creating a release.
type NewRelease struct {
	Version      string
	Title        string
	Description  string
	ReleaseDate  time.Time
	IsPrerelease bool
	Changelog    string
}

// Update holds optional field changes.
type Update struct {
	Version      *string
	Title        *string
	Description  *string
	ReleaseDate  *time.Time
	IsPrerelease *bool
	Changelog    *string
}

// Filter narrows release listings.
type Filter struct {
	Search         string
	IsPrerelease   *bool
	ReleasedAfter  *time.Time
	ReleasedBefore *time.Time
	SortBy         string
	SortDesc       bool
	Page           paging.Params
}

// MonthCount is the number of releases shipped in a YYYY-MM month.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Stats summarises release activity.
type Stats struct {
	TotalReleases    int          `json:"totalReleases"`
	Prereleases      int          `json:"prereleases"`
	StableReleases   int          `json:"stableReleases"`
	RecentReleases   int          `json:"recentReleases"`
	IssuesInReleases int          `json:"issuesInReleases"`
	ReleasesByMonth  []MonthCount `json:"releasesByMonth"`
}
