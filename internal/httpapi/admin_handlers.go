package httpapi

import (
	"net/http"
	"strings"

	"itdesk.org/internal/admin"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/paging"
)

type createUserRequest struct {
	Email      string   `json:"email" validate:"required,email"`
	Username   string   `json:"username" validate:"omitempty,min=3,max=50"`
	Password   string   `json:"password" validate:"required,min=8,max=72"`
	FirstName  string   `json:"firstName" validate:"required,max=100"`
	LastName   string   `json:"lastName" validate:"required,max=100"`
	Department string   `json:"department" validate:"max=100"`
	IsActive   *bool    `json:"isActive"`
	RoleIDs    []string `json:"roleIds" validate:"dive,required"`
}

type updateUserRequest struct {
	Email      *string   `json:"email" validate:"omitempty,email"`
	Username   *string   `json:"username" validate:"omitempty,min=3,max=50"`
	Password   *string   `json:"password" validate:"omitempty,min=8,max=72"`
	FirstName  *string   `json:"firstName" validate:"omitempty,max=100"`
	LastName   *string   `json:"lastName" validate:"omitempty,max=100"`
	Department *string   `json:"department" validate:"omitempty,max=100"`
	IsActive   *bool     `json:"isActive"`
	RoleIDs    *[]string `json:"roleIds"`
}

type updateSettingsRequest struct {
	Settings map[string]string `json:"settings" validate:"required,min=1,dive,keys,required,max=100,endkeys"`
}

func (a *API) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Admin.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	p, err := a.page(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	active, err := queryBool(r, "isActive")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	users, total, err := a.svc.Admin.Users(r.Context(), admin.UserFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		IsActive: active,
		Role:     strings.TrimSpace(q.Get("role")),
		Page:     p,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	listResponse(w, users, p, total)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.Admin.User(r.Context(), pathVar(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	user, err := a.svc.Admin.CreateUser(r.Context(), actorID(r), admin.NewUser{
		Email:      req.Email,
		Username:   req.Username,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Department: req.Department,
		IsActive:   req.IsActive,
		RoleIDs:    req.RoleIDs,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/admin/users/"+user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	user, err := a.svc.Admin.UpdateUser(r.Context(), actorID(r), pathVar(r, "id"), admin.UserUpdate{
		Email:      req.Email,
		Username:   req.Username,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Department: req.Department,
		IsActive:   req.IsActive,
		RoleIDs:    req.RoleIDs,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Admin.DeleteUser(r.Context(), actorID(r), pathVar(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.svc.Admin.Settings(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	settings, err := a.svc.Admin.UpdateSettings(r.Context(), actorID(r), admin.Settings(req.Settings))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := paging.Parse(q.Get("page"), q.Get("limit"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	from, err := queryTime(r, "startDate")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	to, err := queryTime(r, "endDate")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	f := audit.Filter{
		ActorID:      strings.TrimSpace(q.Get("userId")),
		Action:       strings.TrimSpace(q.Get("action")),
		ResourceType: strings.TrimSpace(q.Get("resourceType")),
		ResourceID:   strings.TrimSpace(q.Get("resourceId")),
		From:         from,
		To:           to,
		Page:         p,
	}
	entries, total, err := a.svc.Admin.AuditLogs(r.Context(), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	listResponse(w, entries, f.Normalize(a.pageMax).Page, total)
}
