package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"itdesk.org/internal/apperr"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/obs"
	"itdesk.org/internal/paging"
)

const serviceName = "itdesk-api"

// Pinger is implemented by the store handle.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe reports whether dependencies are reachable.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// API is the HTTP layer.
type API struct {
	svc        Services
	readyProbe ReadyProbe
	version    string
	log        *logrus.Logger

	rateBurst    int
	ratePerSec   int
	corsOrigins  []string
	proxies      []*net.IPNet
	pageDefault  int
	pageMax      int
	maxBodyBytes int64

	routes map[string]route
}

// Option configures the API.
type Option func(*API)

func WithReadyProbe(rp ReadyProbe) Option { return func(a *API) { a.readyProbe = rp } }

func WithVersion(v string) Option { return func(a *API) { a.version = v } }

func WithLogger(l *logrus.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(burst, perSec int) Option {
	return func(a *API) {
		if burst > 0 && perSec > 0 {
			a.rateBurst, a.ratePerSec = burst, perSec
		}
	}
}

func WithCORSOrigins(origins []string) Option {
	return func(a *API) { a.corsOrigins = origins }
}

// WithTrustedProxies lists the reverse proxies whose X-Forwarded-For is
// believed.
func WithTrustedProxies(nets []*net.IPNet) Option {
	return func(a *API) { a.proxies = nets }
}

// WithPaging sets the default and maximum page sizes.
func WithPaging(def, max int) Option {
	return func(a *API) {
		if def > 0 {
			a.pageDefault = def
		}
		if max > 0 {
			a.pageMax = max
		}
	}
}

func New(svc Services, opts ...Option) *API {
	a := &API{
		svc:          svc,
		version:      "dev",
		log:          obs.Logger(),
		rateBurst:    40,
		ratePerSec:   20,
		pageDefault:  paging.DefaultLimit,
		pageMax:      paging.MaxLimit,
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully wrapped server handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.Router()
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = RequestID(h)
	h = RealIP(h, a.proxies)
	return otelhttp.NewHandler(h, serviceName)
}

// Router builds the mux router from the route table. Route middleware runs in
// order: metrics, request log, authentication, authorization.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, "route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	table := a.routeTable()
	a.routes = make(map[string]route, len(table))
	for _, rt := range table {
		name := rt.name()
		a.routes[name] = rt
		r.Handle(rt.Path, rt.Handler).Methods(rt.Method).Name(name)
	}
	r.Use(obs.Instrument, Logging, a.authenticate, a.authorize)
	return r
}

// --- platform ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		a.log.WithError(err).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	StatusCode int               `json:"statusCode"`
	Error      string            `json:"error"`
	Message    string            `json:"message"`
	Path       string            `json:"path"`
	Method     string            `json:"method"`
	Timestamp  string            `json:"timestamp"`
	RequestID  string            `json:"request_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string, details map[string]string) {
	writeJSON(w, code, errorBody{
		StatusCode: code,
		Error:      http.StatusText(code),
		Message:    msg,
		Path:       r.URL.Path,
		Method:     r.Method,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		RequestID:  RequestIDFromContext(r.Context()),
		Details:    details,
	})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput), errors.Is(err, apperr.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail renders err. Internal errors are logged and replaced with a generic message.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		a.log.WithError(err).WithFields(logrus.Fields{
			"request_id": RequestIDFromContext(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Error("request failed")
		writeError(w, r, code, "internal server error", nil)
		return
	}
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="itdesk"`)
	}
	writeError(w, r, code, err.Error(), apperr.Details(err))
}

func (a *API) page(r *http.Request) (paging.Params, error) {
	q := r.URL.Query()
	p, err := paging.Parse(q.Get("page"), q.Get("limit"))
	if err != nil {
		return paging.Params{}, err
	}
	return p.Normalize(a.pageDefault, a.pageMax), nil
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// actorID returns the authenticated user id; routes that reach a handler
// calling it have already passed authentication.
func actorID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.FieldError(name, "must be true or false")
	}
	return &v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperr.FieldError(name, "must be a non-negative integer")
	}
	return v, nil
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperr.FieldError(name, "must be an RFC 3339 timestamp or YYYY-MM-DD date")
}

// sortParams reads sortBy and sortOrder (asc|desc, default desc).
func sortParams(r *http.Request) (string, bool) {
	q := r.URL.Query()
	return strings.TrimSpace(q.Get("sortBy")), !strings.EqualFold(strings.TrimSpace(q.Get("sortOrder")), "asc")
}

func listResponse[T any](w http.ResponseWriter, items []T, p paging.Params, total int) {
	writeJSON(w, http.StatusOK, paging.NewResult(items, p, total))
}
