package audit

import (
	"time"

	"itdesk.org/internal/paging"
)

const defaultFilterLimit = 50

// Filter narrows audit log queries.
type Filter struct {
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	From         *time.Time
	To           *time.Time
	Page         paging.Params
}

// Normalize applies the audit page defaults.
func (f Filter) Normalize(maxLimit int) Filter {
	f.Page = f.Page.Normalize(defaultFilterLimit, maxLimit)
	return f
}
