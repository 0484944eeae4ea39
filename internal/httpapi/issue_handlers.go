package httpapi

import (
	"net/http"
	"strings"

	"itdesk.org/internal/issues"
)

type createIssueRequest struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"required,max=10000"`
	Type        string   `json:"type" validate:"required,oneof=BUG FEATURE_REQUEST IMPROVEMENT TASK"`
	Priority    string   `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	AssigneeID  string   `json:"assigneeId"`
	Labels      []string `json:"labels" validate:"max=20,dive,required,max=50"`
}

type updateIssueRequest struct {
	Title       *string   `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string   `json:"description" validate:"omitempty,max=10000"`
	Type        *string   `json:"type" validate:"omitempty,oneof=BUG FEATURE_REQUEST IMPROVEMENT TASK"`
	Priority    *string   `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Status      *string   `json:"status" validate:"omitempty,oneof=OPEN IN_PROGRESS RESOLVED CLOSED"`
	Labels      *[]string `json:"labels" validate:"omitempty,max=20,dive,required,max=50"`
}

type assignIssueRequest struct {
	AssigneeID string `json:"assigneeId" validate:"required"`
}

type labelRequest struct {
	Label string `json:"label" validate:"required,max=50"`
}

// queryList accepts both repeated and comma separated values.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func (a *API) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	issue, err := a.svc.Issues.Create(r.Context(), actorID(r), issues.NewIssue{
		Title:       req.Title,
		Description: req.Description,
		Type:        issues.Type(req.Type),
		Priority:    issues.Priority(req.Priority),
		AssigneeID:  req.AssigneeID,
		Labels:      req.Labels,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/issues/"+issue.ID)
	writeJSON(w, http.StatusCreated, issue)
}

func (a *API) handleListIssues(w http.ResponseWriter, r *http.Request) {
	p, err := a.page(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	after, err := queryTime(r, "createdAfter")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	before, err := queryTime(r, "createdBefore")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	sortBy, desc := sortParams(r)
	list, total, err := a.svc.Issues.List(r.Context(), issues.Filter{
		Search:        strings.TrimSpace(q.Get("search")),
		Type:          issues.Type(strings.ToUpper(strings.TrimSpace(q.Get("type")))),
		Priority:      issues.Priority(strings.ToUpper(strings.TrimSpace(q.Get("priority")))),
		Status:        issues.Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		AssigneeID:    strings.TrimSpace(q.Get("assignedTo")),
		ReporterID:    strings.TrimSpace(q.Get("reporterId")),
		Labels:        queryList(r, "labels"),
		CreatedAfter:  after,
		CreatedBefore: before,
		SortBy:        sortBy,
		SortDesc:      desc,
		Page:          p,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	listResponse(w, list, p, total)
}

func (a *API) handleIssueLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := a.svc.Issues.Labels(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

func (a *API) handleIssueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Issues.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := a.svc.Issues.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (a *API) handleUpdateIssue(w http.ResponseWriter, r *http.Request) {
	var req updateIssueRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	upd := issues.Update{
		Title:       req.Title,
		Description: req.Description,
		Labels:      req.Labels,
	}
	if req.Type != nil {
		t := issues.Type(*req.Type)
		upd.Type = &t
	}
	if req.Priority != nil {
		p := issues.Priority(*req.Priority)
		upd.Priority = &p
	}
	if req.Status != nil {
		s := issues.Status(*req.Status)
		upd.Status = &s
	}
	issue, err := a.svc.Issues.Update(r.Context(), actorID(r), pathVar(r, "id"), upd)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (a *API) handleDeleteIssue(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Issues.Delete(r.Context(), actorID(r), pathVar(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAssignIssue(w http.ResponseWriter, r *http.Request) {
	var req assignIssueRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	issue, err := a.svc.Issues.Assign(r.Context(), actorID(r), pathVar(r, "id"), req.AssigneeID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (a *API) handleUnassignIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := a.svc.Issues.Unassign(r.Context(), actorID(r), pathVar(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (a *API) handleCloseIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := a.svc.Issues.Close(r.Context(), actorID(r), pathVar(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (a *API) handleReopenIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := a.svc.Issues.Reopen(r.Context(), actorID(r), pathVar(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (a *API) handleAddIssueComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	c, err := a.svc.Issues.AddComment(r.Context(), actorID(r), pathVar(r, "id"), req.Content)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleListIssueComments(w http.ResponseWriter, r *http.Request) {
	p, err := a.page(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	list, total, err := a.svc.Issues.Comments(r.Context(), pathVar(r, "id"), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	listResponse(w, list, p, total)
}

func (a *API) handleAddIssueLabel(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	issue, err := a.svc.Issues.AddLabel(r.Context(), actorID(r), pathVar(r, "id"), req.Label)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (a *API) handleRemoveIssueLabel(w http.ResponseWriter, r *http.Request) {
	issue, err := a.svc.Issues.RemoveLabel(r.Context(), actorID(r), pathVar(r, "id"), pathVar(r, "label"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}
