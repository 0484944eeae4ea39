package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// currentRoute returns the table entry for the matched mux route.
func (a *API) currentRoute(r *http.Request) (route, bool) {
	cur := mux.CurrentRoute(r)
	if cur == nil {
		return route{}, false
	}
	rt, ok := a.routes[cur.GetName()]
	return rt, ok
}

// authenticate resolves the bearer token into a principal for every
// non-public route. Permissions are aggregated per request.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt, ok := a.currentRoute(r)
		if ok && rt.Public {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if a.svc.Auth == nil {
			a.fail(w, r, fmt.Errorf("%w: authentication unavailable", auth.ErrNoPrincipal))
			return
		}
		principal, err := a.svc.Auth.Authenticate(r.Context(), token)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authorize is the single permission interceptor. It checks the route's
// declared tags before any handler code runs; a route missing from the table
// is denied.
func (a *API) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt, ok := a.currentRoute(r)
		if !ok {
			obs.ObserveAuthzDenied(obs.RouteLabel(r))
			a.fail(w, r, fmt.Errorf("%w: route has no access policy", apperr.ErrForbidden))
			return
		}
		if rt.Public {
			next.ServeHTTP(w, r)
			return
		}
		principal, _ := auth.PrincipalFromContext(r.Context())
		if principal == nil {
			a.fail(w, r, auth.ErrNoPrincipal)
			return
		}
		if err := auth.Authorize(principal, rt.Tags); err != nil {
			obs.ObserveAuthzDenied(rt.Path)
			a.log.WithFields(logrus.Fields{
				"request_id": RequestIDFromContext(r.Context()),
				"user_id":    principal.User.ID,
				"route":      rt.Path,
				"method":     rt.Method,
			}).Warn("authorization denied")
			a.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthenticated)
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", fmt.Errorf("%w: invalid authorization scheme", apperr.ErrUnauthenticated)
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthenticated)
	}
	return token, nil
}
