package httpapi

import (
	"net/http"

	"itdesk.org/internal/audit"
	"itdesk.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Username   string `json:"username" validate:"required,min=3,max=50"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
	FirstName  string `json:"firstName" validate:"required,max=100"`
	LastName   string `json:"lastName" validate:"required,max=100"`
	Department string `json:"department" validate:"max=100"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func clientInfo(r *http.Request) auth.ClientInfo {
	meta := audit.MetaFromContext(r.Context())
	ip := meta.IPAddress
	if ip == "" {
		ip = clientIP(r)
	}
	return auth.ClientInfo{UserAgent: r.UserAgent(), IPAddress: ip}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.svc.Auth.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.svc.Auth.Register(r.Context(), auth.RegisterInput{
		Email:      req.Email,
		Username:   req.Username,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Department: req.Department,
	}, clientInfo(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := bind(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.svc.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleLogout revokes the session named by the body's refresh token. An
// empty body is accepted and revokes nothing.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	if err := a.svc.Auth.Logout(r.Context(), actorID(r), req.RefreshToken); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Auth.LogoutAll(r.Context(), actorID(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out from all devices"})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := a.svc.Auth.Profile(r.Context(), actorID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
