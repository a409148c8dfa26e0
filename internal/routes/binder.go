// Package routes implements the C7 Route Binder: per-AO-unit-role URL
// surfaces, each route supplying a processIdFromRequest strategy and an
// optional restreamBody strategy (spec §4.7). The binder itself is generic
// over the proxy engine's trampoline; cu.go and mu.go supply the two role
// profiles' route tables.
package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Ethan-GoldS/ao-sub000/internal/lifecycle"
	"github.com/Ethan-GoldS/ao-sub000/internal/proxy"
)

func contextWithBody(ctx context.Context, body []byte) context.Context {
	return context.WithValue(ctx, restreamedBodyCtxKey{}, body)
}

// ProcessIdExtractor pulls processId out of a request: path, query, or body.
// Returning ok=false means "not found" (spec §4.7 -> 404).
type ProcessIdExtractor func(r *http.Request) (processId string, ok bool)

// BodyRestreamer consumes r.Body once and returns a byte slice to be
// forwarded on every upstream attempt. Present only on routes whose
// processId extraction must inspect the body first (spec's "Dry-run").
type BodyRestreamer func(r *http.Request) ([]byte, error)

// Route is one mounted endpoint.
type Route struct {
	Method      string
	Pattern     string // net/http 1.22+ ServeMux pattern, e.g. "GET /state/{processId}"
	ProcessId   ProcessIdExtractor
	Restream    BodyRestreamer
	RouteLabel  string // low-cardinality label for metrics/logging
}

// Mount registers every route in rs against mux, wiring each to trampoline.
// sinkFor builds a per-route Sink (spec §4.9) so metrics/logs can be
// labeled by route without the binder needing to know how the caller
// composes its Sink implementations.
func Mount(mux *http.ServeMux, rs []Route, trampoline *proxy.Trampoline, sinkFor func(routeLabel string) lifecycle.Sink) {
	for _, rt := range rs {
		rt := rt
		sink := sinkFor(rt.RouteLabel)
		mux.HandleFunc(rt.Pattern, func(w http.ResponseWriter, r *http.Request) {
			handleRoute(w, r, rt, trampoline, sink)
		})
	}
}

func handleRoute(w http.ResponseWriter, r *http.Request, rt Route, trampoline *proxy.Trampoline, sink lifecycle.Sink) {
	var bufferedBody []byte
	if rt.Restream != nil {
		body, err := rt.Restream(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		bufferedBody = body
	}

	processId, ok := rt.ProcessId(r)
	if !ok || strings.TrimSpace(processId) == "" {
		writeJSONError(w, http.StatusNotFound, "Process id not found on request")
		if sink != nil {
			sink.OnFinish(r, lifecycle.ResultProcessIdMissing, 0)
		}
		return
	}

	trampoline.Run(w, r, processId, bufferedBody, sink)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// --- shared extractor/restreamer helpers, reused by both role profiles ---

// fromPathParam reads a {name} path parameter registered via the route pattern.
func fromPathParam(name string) ProcessIdExtractor {
	return func(r *http.Request) (string, bool) {
		v := r.PathValue(name)
		if strings.TrimSpace(v) == "" {
			return "", false
		}
		return v, true
	}
}

// fromQueryParam reads a query-string parameter.
func fromQueryParam(name string) ProcessIdExtractor {
	return func(r *http.Request) (string, bool) {
		v := strings.TrimSpace(r.URL.Query().Get(name))
		if v == "" {
			return "", false
		}
		return v, true
	}
}

// fromQueryThenBodyField tries a query parameter first, then falls back to a
// JSON body field of the same purpose — used by the dry-run route, whose
// processId may arrive either way (spec §6's CU route table).
func fromQueryThenBodyField(queryName, bodyField string) ProcessIdExtractor {
	return func(r *http.Request) (string, bool) {
		if v := strings.TrimSpace(r.URL.Query().Get(queryName)); v != "" {
			return v, true
		}
		body, ok := bufferedBodyFrom(r)
		if !ok {
			return "", false
		}
		var parsed map[string]any
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", false
		}
		v, _ := parsed[bodyField].(string)
		v = strings.TrimSpace(v)
		if v == "" {
			return "", false
		}
		return v, true
	}
}

type restreamedBodyCtxKey struct{}

// restreamJSONBody is the BodyRestreamer used by routes whose processId
// extraction must inspect the body (spec's dry-run route). It reads the
// full body once, stashes it on the request context so the paired
// ProcessIdExtractor can reuse it without a second read, and returns it for
// the proxy engine to replay on every attempt.
func restreamJSONBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	*r = *r.WithContext(contextWithBody(r.Context(), body))
	return body, nil
}

func bufferedBodyFrom(r *http.Request) ([]byte, bool) {
	v := r.Context().Value(restreamedBodyCtxKey{})
	if v == nil {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}
