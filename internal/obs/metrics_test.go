package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

func TestRouteLabel(t *testing.T) {
	r := mux.NewRouter()
	var got string
	capture := func(w http.ResponseWriter, req *http.Request) { got = RouteLabel(req) }
	r.HandleFunc("/inventory/assets/{id}/assign", capture)
	r.HandleFunc("/metrics", capture)
	r.NotFoundHandler = http.HandlerFunc(capture)

	cases := map[string]string{
		"/inventory/assets/01HX/assign": "/inventory/assets/{id}/assign",
		"/inventory/assets/02AB/assign": "/inventory/assets/{id}/assign",
		"/metrics":                      "/metrics",
		"/nope":                         "unmatched",
	}
	for path, expected := range cases {
		got = ""
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		if got != expected {
			t.Fatalf("RouteLabel(%q)=%q, want %q", path, got, expected)
		}
	}
}

func TestInstrumentPreservesStatus(t *testing.T) {
	Init()
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rr.Code)
	}
}
