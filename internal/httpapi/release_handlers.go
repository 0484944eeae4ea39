package httpapi

import (
	"net/http"
	"strings"
	"time"

	"itdesk.org/internal/releases"
)

type createReleaseRequest struct {
	Version      string    `json:"version" validate:"required,max=50"`
	Title        string    `json:"title" validate:"required,max=200"`
	Description  string    `json:"description" validate:"max=5000"`
	ReleaseDate  time.Time `json:"releaseDate" validate:"required"`
	IsPrerelease bool      `json:"isPrerelease"`
	Changelog    string    `json:"changelog" validate:"max=20000"`
}

type updateReleaseRequest struct {
	Version      *string    `json:"version" validate:"omitempty,min=1,max=50"`
	Title        *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string    `json:"description" validate:"omitempty,max=5000"`
	ReleaseDate  *time.Time `json:"releaseDate"`
	IsPrerelease *bool      `json:"isPrerelease"`
	Changelog    *string    `json:"changelog" validate:"omitempty,max=20000"`
}

type linkIssueRequest struct {
	IssueID string `json:"issueId" validate:"required"`
}

func (a *API) handleCreateRelease(w http.ResponseWriter, r *http.Request) {
	var req createReleaseRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	rel, err := a.svc.Releases.Create(r.Context(), actorID(r), releases.NewRelease{
		Version:      req.Version,
		Title:        req.Title,
		Description:  req.Description,
		ReleaseDate:  req.ReleaseDate,
		IsPrerelease: req.IsPrerelease,
		Changelog:    req.Changelog,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/releases/"+rel.ID)
	writeJSON(w, http.StatusCreated, rel)
}

func (a *API) handleListReleases(w http.ResponseWriter, r *http.Request) {
	p, err := a.page(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	pre, err := queryBool(r, "isPrerelease")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	after, err := queryTime(r, "releasedAfter")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	before, err := queryTime(r, "releasedBefore")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sortBy, desc := sortParams(r)
	list, total, err := a.svc.Releases.List(r.Context(), releases.Filter{
		Search:         strings.TrimSpace(r.URL.Query().Get("search")),
		IsPrerelease:   pre,
		ReleasedAfter:  after,
		ReleasedBefore: before,
		SortBy:         sortBy,
		SortDesc:       desc,
		Page:           p,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	listResponse(w, list, p, total)
}

func (a *API) handleLatestReleases(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	list, err := a.svc.Releases.Latest(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleReleaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Releases.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleGetRelease(w http.ResponseWriter, r *http.Request) {
	rel, err := a.svc.Releases.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (a *API) handleUpdateRelease(w http.ResponseWriter, r *http.Request) {
	var req updateReleaseRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	rel, err := a.svc.Releases.Update(r.Context(), actorID(r), pathVar(r, "id"), releases.Update{
		Version:      req.Version,
		Title:        req.Title,
		Description:  req.Description,
		ReleaseDate:  req.ReleaseDate,
		IsPrerelease: req.IsPrerelease,
		Changelog:    req.Changelog,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (a *API) handleDeleteRelease(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Releases.Delete(r.Context(), actorID(r), pathVar(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLinkReleaseIssue(w http.ResponseWriter, r *http.Request) {
	var req linkIssueRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	ref, err := a.svc.Releases.LinkIssue(r.Context(), actorID(r), pathVar(r, "id"), req.IssueID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

func (a *API) handleUnlinkReleaseIssue(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Releases.UnlinkIssue(r.Context(), actorID(r), pathVar(r, "id"), pathVar(r, "issueId")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
