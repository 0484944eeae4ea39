// Package audittest provides an in-memory audit.Auditor for tests.
package audittest

import (
	"context"
	"sync"

	"itdesk.org/internal/audit"
)

// Recorder captures audit entries in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

// Record implements audit.Auditor.
func (r *Recorder) Record(ctx context.Context, actorID, action, resourceType, resourceID string, oldValues, newValues audit.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, audit.Entry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
		RequestID:    audit.MetaFromContext(ctx).RequestID,
	})
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...)
}

// Actions lists recorded action codes in order.
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// Last returns the most recent entry.
func (r *Recorder) Last() (audit.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return audit.Entry{}, false
	}
	return r.entries[len(r.entries)-1], true
}
