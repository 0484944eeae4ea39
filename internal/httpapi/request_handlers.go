package httpapi

import (
	"net/http"
	"strings"
	"time"

	"itdesk.org/internal/requests"
)

type requestAssetInput struct {
	AssetID string `json:"assetId" validate:"required"`
	Notes   string `json:"notes" validate:"max=500"`
}

type createRequestRequest struct {
	Title       string              `json:"title" validate:"required,max=200"`
	Description string              `json:"description" validate:"required,max=5000"`
	Type        string              `json:"type" validate:"required,oneof=EQUIPMENT_REQUEST MAINTENANCE_REQUEST SOFTWARE_REQUEST ACCESS_REQUEST OTHER"`
	Priority    string              `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Department  string              `json:"department" validate:"max=100"`
	DueDate     *time.Time          `json:"dueDate"`
	Assets      []requestAssetInput `json:"assets" validate:"dive"`
}

type updateRequestRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Type        *string    `json:"type" validate:"omitempty,oneof=EQUIPMENT_REQUEST MAINTENANCE_REQUEST SOFTWARE_REQUEST ACCESS_REQUEST OTHER"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Department  *string    `json:"department" validate:"omitempty,max=100"`
	DueDate     *time.Time `json:"dueDate"`
}

type assignRequestRequest struct {
	AssigneeID string `json:"assigneeId" validate:"required"`
	Notes      string `json:"notes" validate:"max=2000"`
}

type requestStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING APPROVED IN_PROGRESS COMPLETED REJECTED CANCELLED"`
	Notes  string `json:"notes" validate:"max=2000"`
}

type commentRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

func (a *API) requestFilter(r *http.Request) (requests.Filter, error) {
	p, err := a.page(r)
	if err != nil {
		return requests.Filter{}, err
	}
	q := r.URL.Query()
	sortBy, desc := sortParams(r)
	return requests.Filter{
		Search:      strings.TrimSpace(q.Get("search")),
		Status:      requests.Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Priority:    requests.Priority(strings.ToUpper(strings.TrimSpace(q.Get("priority")))),
		Type:        requests.Type(strings.ToUpper(strings.TrimSpace(q.Get("type")))),
		AssigneeID:  strings.TrimSpace(q.Get("assignedTo")),
		RequesterID: strings.TrimSpace(q.Get("requesterId")),
		Department:  strings.TrimSpace(q.Get("department")),
		SortBy:      sortBy,
		SortDesc:    desc,
		Page:        p,
	}, nil
}

func (a *API) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req createRequestRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	assets := make([]requests.AssetRef, 0, len(req.Assets))
	for _, in := range req.Assets {
		assets = append(assets, requests.AssetRef{ID: in.AssetID, Notes: in.Notes})
	}
	created, err := a.svc.Requests.Create(r.Context(), actorID(r), requests.NewRequest{
		Title:       req.Title,
		Description: req.Description,
		Type:        requests.Type(req.Type),
		Priority:    requests.Priority(req.Priority),
		Department:  req.Department,
		DueDate:     req.DueDate,
		Assets:      assets,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/requests/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleListRequests(w http.ResponseWriter, r *http.Request) {
	f, err := a.requestFilter(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	list, total, err := a.svc.Requests.List(r.Context(), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	listResponse(w, list, f.Page, total)
}

func (a *API) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	f, err := a.requestFilter(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	list, total, err := a.svc.Requests.Mine(r.Context(), actorID(r), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	listResponse(w, list, f.Page, total)
}

func (a *API) handleAssignedRequests(w http.ResponseWriter, r *http.Request) {
	f, err := a.requestFilter(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	list, total, err := a.svc.Requests.Assigned(r.Context(), actorID(r), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	listResponse(w, list, f.Page, total)
}

// handleRequestStats counts the caller's own requests.
func (a *API) handleRequestStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Requests.Stats(r.Context(), actorID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleAllRequestStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Requests.Stats(r.Context(), "")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := a.svc.Requests.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (a *API) handleUpdateRequest(w http.ResponseWriter, r *http.Request) {
	var req updateRequestRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	upd := requests.Update{
		Title:       req.Title,
		Description: req.Description,
		Department:  req.Department,
		DueDate:     req.DueDate,
	}
	if req.Type != nil {
		t := requests.Type(*req.Type)
		upd.Type = &t
	}
	if req.Priority != nil {
		p := requests.Priority(*req.Priority)
		upd.Priority = &p
	}
	updated, err := a.svc.Requests.Update(r.Context(), actorID(r), pathVar(r, "id"), upd)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Requests.Delete(r.Context(), actorID(r), pathVar(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAssignRequest(w http.ResponseWriter, r *http.Request) {
	var req assignRequestRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	updated, err := a.svc.Requests.Assign(r.Context(), actorID(r), pathVar(r, "id"), req.AssigneeID, req.Notes)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	var req requestStatusRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	updated, err := a.svc.Requests.UpdateStatus(r.Context(), actorID(r), pathVar(r, "id"), requests.Status(req.Status), req.Notes)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleAddRequestComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	c, err := a.svc.Requests.AddComment(r.Context(), actorID(r), pathVar(r, "id"), req.Content)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleListRequestComments(w http.ResponseWriter, r *http.Request) {
	p, err := a.page(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	list, total, err := a.svc.Requests.Comments(r.Context(), pathVar(r, "id"), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	listResponse(w, list, p, total)
}
