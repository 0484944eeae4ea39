package audit

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"itdesk.org/internal/ids"
	"itdesk.org/internal/obs"
)

// Snapshot is a schema-less view of a record before or after a change.
type Snapshot map[string]any

// Entry is one immutable audit log row.
type Entry struct {
	ID           string    `json:"id"`
	ActorID      string    `json:"userId"`
	ActorEmail   string    `json:"userEmail,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource"`
	ResourceID   string    `json:"resourceId,omitempty"`
	OldValues    Snapshot  `json:"oldValues,omitempty"`
	NewValues    Snapshot  `json:"newValues,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	TraceID      string    `json:"traceId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// writeTimeout bounds a single audit insert once it is detached from the
// request context.
const writeTimeout = 5 * time.Second

// Store persists audit entries.
type Store interface {
	InsertAuditLog(ctx context.Context, entry Entry) error
}

// Recorder appends audit entries after successful mutations. Persistence
// failures are logged and counted but never surfaced to the caller, so a
// committed business change is never reported as failed.
type Recorder struct {
	store Store
	log   *logrus.Logger
	now   func() time.Time
}

// NewRecorder constructs a Recorder. A nil logger uses obs.Logger().
func NewRecorder(store Store, log *logrus.Logger) *Recorder {
	if log == nil {
		log = obs.Logger()
	}
	return &Recorder{store: store, log: log, now: time.Now}
}

// Record writes one audit entry.
func (r *Recorder) Record(ctx context.Context, actorID, action, resourceType, resourceID string, oldValues, newValues Snapshot) {
	if r == nil {
		return
	}
	meta := MetaFromContext(ctx)
	entry := Entry{
		ID:           ids.New(),
		ActorID:      strings.TrimSpace(actorID),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValues:    nilIfEmpty(oldValues),
		NewValues:    nilIfEmpty(newValues),
		RequestID:    meta.RequestID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		TraceID:      obs.TraceID(ctx),
		CreatedAt:    r.now().UTC(),
	}

	fields := logrus.Fields{
		"type":        "audit",
		"action":      entry.Action,
		"resource":    entry.ResourceType,
		"resource_id": entry.ResourceID,
		"user_id":     entry.ActorID,
		"request_id":  entry.RequestID,
	}
	if entry.TraceID != "" {
		fields["trace_id"] = entry.TraceID
	}

	if r.store != nil {
		// The business change is already committed; a client going away must
		// not drop its audit row.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		if err := r.store.InsertAuditLog(wctx, entry); err != nil {
			obs.ObserveAuditFailure()
			r.log.WithFields(fields).WithError(err).Warn("audit_write_failed")
			return
		}
	}
	r.log.WithFields(fields).Info("audit")
}

func nilIfEmpty(s Snapshot) Snapshot {
	if len(s) == 0 {
		return nil
	}
	return s
}

// Diff keeps only the keys whose values differ between before and after.
// Keys absent from after are treated as unchanged.
func Diff(before, after Snapshot) (Snapshot, Snapshot) {
	oldOut := Snapshot{}
	newOut := Snapshot{}
	for k, nv := range after {
		ov, ok := before[k]
		if ok && reflect.DeepEqual(ov, nv) {
			continue
		}
		if ok {
			oldOut[k] = ov
		}
		newOut[k] = nv
	}
	return nilIfEmpty(oldOut), nilIfEmpty(newOut)
}

// Auditor is the recording side of the audit log. *Recorder satisfies it.
type Auditor interface {
	Record(ctx context.Context, actorID, action, resourceType, resourceID string, oldValues, newValues Snapshot)
}
