package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itdesk.org/internal/auth"
)

// stubAuth resolves bearer tokens from a fixed table.
type stubAuth struct {
	AuthService

	principals map[string]auth.Principal
}

func (s *stubAuth) Authenticate(_ context.Context, token string) (auth.Principal, error) {
	p, ok := s.principals[token]
	if !ok {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	return p, nil
}

type testAPI struct {
	t   *testing.T
	api *API
	srv *httptest.Server
}

func newTestAPI(t *testing.T, svc Services, opts ...Option) *testAPI {
	t.Helper()
	if svc.Auth == nil {
		svc.Auth = &stubAuth{principals: map[string]auth.Principal{}}
	}
	opts = append([]Option{WithRateLimit(1000, 1000), WithVersion("test")}, opts...)
	api := New(svc, opts...)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &testAPI{t: t, api: api, srv: srv}
}

// grant registers a bearer token for a user holding tags.
func (c *testAPI) grant(userID string, tags ...string) string {
	c.t.Helper()
	sa, ok := c.api.svc.Auth.(*stubAuth)
	require.True(c.t, ok, "grant needs the stub auth service")
	token := "token-" + userID
	sa.principals[token] = auth.NewPrincipal(auth.User{ID: userID, IsActive: true}, tags)
	return token
}

func (c *testAPI) do(method, path, token string, body any) *http.Response {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rd)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r.Body).Decode(&v))
	return v
}

func TestHealthzIsPublic(t *testing.T) {
	api := newTestAPI(t, Services{})

	resp := api.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, serviceName, body["service"])
	assert.Equal(t, "test", body["version"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyReportsProbeFailure(t *testing.T) {
	api := newTestAPI(t, Services{}, WithReadyProbe(ReadyProbe{DB: pingFunc(func(context.Context) error {
		return assert.AnError
	})}))

	resp := api.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "not_ready", body["status"])
}

func TestMissingTokenReturnsErrorBody(t *testing.T) {
	api := newTestAPI(t, Services{})

	req, err := http.NewRequest(http.MethodGet, api.srv.URL+"/inventory/assets", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusUnauthorized, body.StatusCode)
	assert.Equal(t, "Unauthorized", body.Error)
	assert.Equal(t, "/inventory/assets", body.Path)
	assert.Equal(t, http.MethodGet, body.Method)
	assert.Equal(t, "req-123", body.RequestID)
	assert.NotEmpty(t, body.Timestamp)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	api := newTestAPI(t, Services{})

	resp := api.do(http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "route not found", body.Message)
}

func TestRouteTableTagsAreInCatalog(t *testing.T) {
	api := New(Services{})
	for _, rt := range api.routeTable() {
		for _, tag := range rt.Tags {
			assert.Truef(t, auth.InCatalog(tag), "%s uses unknown tag %q", rt.name(), tag)
		}
		if rt.Public {
			assert.Emptyf(t, rt.Tags, "public route %s declares tags", rt.name())
		}
	}
}

func TestOnlyPlatformAndLoginRoutesArePublic(t *testing.T) {
	want := map[string]bool{
		"GET /healthz":        true,
		"GET /readyz":         true,
		"GET /v1/info":        true,
		"GET /metrics":        true,
		"POST /auth/login":    true,
		"POST /auth/register": true,
		"POST /auth/refresh":  true,
	}
	api := New(Services{})
	got := map[string]bool{}
	for _, rt := range api.routeTable() {
		if rt.Public {
			got[rt.name()] = true
		}
	}
	assert.Equal(t, want, got)
}

func TestMutatingRoutesDeclareTags(t *testing.T) {
	selfService := map[string]bool{
		"POST /auth/logout":     true,
		"POST /auth/logout-all": true,
	}
	api := New(Services{})
	seen := map[string]bool{}
	for _, rt := range api.routeTable() {
		require.Falsef(t, seen[rt.name()], "duplicate route %s", rt.name())
		seen[rt.name()] = true
		if rt.Public || rt.Method == http.MethodGet || selfService[rt.name()] {
			continue
		}
		assert.NotEmptyf(t, rt.Tags, "%s mutates without a permission", rt.name())
	}
}
