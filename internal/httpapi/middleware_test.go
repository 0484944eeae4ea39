package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itdesk.org/internal/audit"
	"itdesk.org/internal/obs"
)

func TestRateLimitExceeded(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequestID(RateLimit(base, 1, 1))

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req.Clone(context.Background()))
	require.Equal(t, http.StatusOK, rr1.Code)

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req.Clone(context.Background()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	assert.NotEmpty(t, rr2.Header().Get("Retry-After"))

	var body errorBody
	require.NoError(t, json.Unmarshal(rr2.Body.Bytes(), &body))
	assert.Equal(t, "rate limit exceeded", body.Message)
	assert.NotEmpty(t, body.RequestID)

	// another client keeps its own bucket
	other := req.Clone(context.Background())
	other.RemoteAddr = "10.0.0.2:1234"
	rr3 := httptest.NewRecorder()
	handler.ServeHTTP(rr3, other)
	assert.Equal(t, http.StatusOK, rr3.Code)
}

func TestRequestIDAttachesAuditMeta(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"192.0.2.0/24", "10.0.0.0/8"})
	require.NoError(t, err)
	var meta audit.RequestMeta
	handler := RealIP(RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta = audit.MetaFromContext(r.Context())
	})), proxies)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "192.0.2.10:4711"
	req.Header.Set("X-Request-ID", "abc-1")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "curl/8")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "abc-1", rr.Header().Get("X-Request-ID"))
	assert.Equal(t, audit.RequestMeta{RequestID: "abc-1", IPAddress: "203.0.113.7", UserAgent: "curl/8"}, meta)
}

func TestForwardedForIgnoredWithoutTrustedProxy(t *testing.T) {
	var meta audit.RequestMeta
	handler := RealIP(RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta = audit.MetaFromContext(r.Context())
	})), nil)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "198.51.100.4:5000"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.4", meta.IPAddress)
}

func TestSpoofedForwardedForDoesNotEscapeRateLimit(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RealIP(RequestID(RateLimit(base, 1, 1)), nil)

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/limited", nil)
		req.RemoteAddr = "198.51.100.4:5000"
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}
	assert.Equal(t, http.StatusOK, send("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("2.2.2.2"))
}

func TestForwardedForSkipsTrustedHops(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.1", "10.0.0.2"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.0.0.1:80"
	req.Header.Set("X-Forwarded-For", "6.6.6.6, 203.0.113.9, 10.0.0.2")
	assert.Equal(t, "203.0.113.9", resolveClientIP(req, proxies))

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestRequestIDReplacesOversizedHeader(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("a", 200))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	got := rr.Header().Get("X-Request-ID")
	assert.NotEmpty(t, got)
	assert.Len(t, got, 36)
}

func TestLoggingEmitsStructuredEntry(t *testing.T) {
	logger := obs.Logger()
	orig := logger.Out
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(orig) })

	r := mux.NewRouter()
	r.HandleFunc("/assets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Use(Logging)
	handler := RequestID(r)

	req := httptest.NewRequest(http.MethodGet, "/assets/a-1", nil)
	req.Header.Set("User-Agent", "middleware-test")
	req.RemoteAddr = "127.0.0.1:1234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	for _, key := range []string{"ts", "level", "msg", "request_id", "method", "path", "route", "status", "duration_ms"} {
		assert.Contains(t, entry, key)
	}
	assert.Equal(t, "request_complete", entry["msg"])
	assert.Equal(t, "/assets/{id}", entry["route"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, "warning", entry["level"])
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}), []string{"https://desk.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/issues", nil)
	req.Header.Set("Origin", "https://desk.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://desk.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	assert.False(t, called)

	req = httptest.NewRequest(http.MethodGet, "/issues", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, called)
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	handler := CORS(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}), []string{"*"})

	req := httptest.NewRequest(http.MethodGet, "/issues", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "https://anywhere.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}
