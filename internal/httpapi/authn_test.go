package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/requests"
)

type stubRequests struct {
	RequestService

	deleted []string
	mine    int
	got     int
}

func (s *stubRequests) Delete(_ context.Context, _, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubRequests) Mine(_ context.Context, _ string, _ requests.Filter) ([]requests.Request, int, error) {
	s.mine++
	return []requests.Request{}, 0, nil
}

func (s *stubRequests) Get(_ context.Context, id string) (requests.Request, error) {
	s.got++
	return requests.Request{ID: id}, nil
}

func TestAuthorizeDeniesBeforeHandler(t *testing.T) {
	reqs := &stubRequests{}
	api := newTestAPI(t, Services{Requests: reqs})
	token := api.grant("reader", auth.PermRequestsRead)

	resp := api.do(http.MethodDelete, "/requests/r-1", token, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Contains(t, body.Message, auth.PermRequestsDelete)
	assert.Empty(t, reqs.deleted)
}

func TestAuthorizeAllowsHolderOfTag(t *testing.T) {
	reqs := &stubRequests{}
	api := newTestAPI(t, Services{Requests: reqs})
	token := api.grant("manager", auth.PermRequestsRead, auth.PermRequestsDelete)

	resp := api.do(http.MethodDelete, "/requests/r-1", token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"r-1"}, reqs.deleted)
}

func TestLiteralSegmentsWinOverIDRoutes(t *testing.T) {
	reqs := &stubRequests{}
	api := newTestAPI(t, Services{Requests: reqs})
	token := api.grant("reader", auth.PermRequestsRead)

	resp := api.do(http.MethodGet, "/requests/mine", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, reqs.mine)
	assert.Zero(t, reqs.got)
}

func TestGuardedRouteDeniesEmptyPermissionSet(t *testing.T) {
	api := newTestAPI(t, Services{})
	token := api.grant("nobody")

	resp := api.do(http.MethodGet, "/inventory/stats", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUnknownTokenIsUnauthenticated(t *testing.T) {
	api := newTestAPI(t, Services{})

	resp := api.do(http.MethodGet, "/requests/mine", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

type noStore struct{ auth.Store }

func TestRefreshTokenRejectedAsBearer(t *testing.T) {
	iss, err := auth.NewIssuer("access-secret", "refresh-secret")
	require.NoError(t, err)
	refresh, _, err := iss.IssueRefreshToken(auth.Identity{UserID: "u-1", Email: "u1@example.com"})
	require.NoError(t, err)

	api := newTestAPI(t, Services{Auth: auth.NewService(noStore{}, iss)})
	resp := api.do(http.MethodGet, "/auth/profile", refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"valid":        {header: "Bearer abc", token: "abc", ok: true},
		"case":         {header: "bearer abc", token: "abc", ok: true},
		"empty":        {header: "", ok: false},
		"basic scheme": {header: "Basic dXNlcjpwYXNz", ok: false},
		"no token":     {header: "Bearer   ", ok: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := extractBearerToken(tc.header)
			if !tc.ok {
				require.ErrorIs(t, err, apperr.ErrUnauthenticated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.token, got)
		})
	}
}

func TestStatusForTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: bad", apperr.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: state", apperr.ErrInvalidState), http.StatusBadRequest},
		{auth.ErrNoPrincipal, http.StatusUnauthorized},
		{apperr.ErrForbidden, http.StatusForbidden},
		{apperr.ErrNotFound, http.StatusNotFound},
		{apperr.ErrConflict, http.StatusConflict},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, statusFor(tc.err), tc.err.Error())
	}
}
