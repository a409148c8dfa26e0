package redirect

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Ethan-GoldS/ao-sub000/internal/determine"
	"github.com/Ethan-GoldS/ao-sub000/internal/hostpool"
	"github.com/Ethan-GoldS/ao-sub000/internal/lifecycle"
	"github.com/Ethan-GoldS/ao-sub000/internal/routes"
)

func pathParam(name string) func(*http.Request) (string, bool) {
	return func(r *http.Request) (string, bool) {
		v := r.PathValue(name)
		if v == "" {
			return "", false
		}
		return v, true
	}
}

func TestRedirectHandlerRedirectsToResolvedOrigin(t *testing.T) {
	pool, err := hostpool.New([]string{"https://a.example", "https://b.example"})
	if err != nil {
		t.Fatalf("hostpool.New: %v", err)
	}
	d := determine.New(pool, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /state/{processId}", Handler(d, pathParam("processId"), nil, lifecycle.NopSink{}))

	req := httptest.NewRequest("GET", "/state/P1?foo=bar", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if loc == "" {
		t.Fatalf("expected a Location header")
	}
	if loc[len(loc)-len("/state/P1?foo=bar"):] != "/state/P1?foo=bar" {
		t.Fatalf("expected Location to preserve path and query, got %q", loc)
	}
}

func TestRedirectHandlerMissingProcessIdReturns404(t *testing.T) {
	pool, err := hostpool.New([]string{"https://a.example"})
	if err != nil {
		t.Fatalf("hostpool.New: %v", err)
	}
	d := determine.New(pool, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /state/{processId}", Handler(d, func(*http.Request) (string, bool) { return "", false }, nil, lifecycle.NopSink{}))

	req := httptest.NewRequest("GET", "/state/anything", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRedirectHandlerNoHostAvailableReturns502(t *testing.T) {
	d := determine.New(&hostpool.Pool{}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /state/{processId}", Handler(d, pathParam("processId"), nil, lifecycle.NopSink{}))

	req := httptest.NewRequest("GET", "/state/P1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when the pool is empty, got %d", rec.Code)
	}
}

// TestRedirectHandlerRestreamsBodyForProcessId guards against redirect mode
// silently dropping a route's BodyRestreamer: the dry-run route's processId
// may live only in the JSON body (spec §6), and that must resolve under
// redirect exactly as it does under proxy mode.
func TestRedirectHandlerRestreamsBodyForProcessId(t *testing.T) {
	pool, err := hostpool.New([]string{"https://a.example"})
	if err != nil {
		t.Fatalf("hostpool.New: %v", err)
	}
	d := determine.New(pool, nil)

	dryRun := routes.CURoutes()[0]
	if dryRun.RouteLabel != "dry_run" {
		t.Fatalf("expected CURoutes()[0] to be the dry-run route, got %q", dryRun.RouteLabel)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(dryRun.Pattern, Handler(d, dryRun.ProcessId, dryRun.Restream, lifecycle.NopSink{}))

	req := httptest.NewRequest("POST", "/dry-run", strings.NewReader(`{"processId":"P1"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected a 302 resolving the body-sourced processId, got %d", rec.Code)
	}
}
