// Package redirect implements the C8 Redirect Mode: instead of proxying,
// resolve the primary origin (attempt 0 only, no failover) and respond with
// an HTTP 302 to it. See spec §4.8.
package redirect

import (
	"net/http"
	"time"

	"github.com/Ethan-GoldS/ao-sub000/internal/determine"
	"github.com/Ethan-GoldS/ao-sub000/internal/lifecycle"
)

// Handler builds an http.HandlerFunc for one route in redirect mode.
// restream is optional (nil for routes whose processId never comes from the
// body): when set it is run before processId extraction, exactly as
// routes.Mount's handleRoute does for proxy mode, so a route like dry-run
// whose processId may live in the JSON body (spec §6) resolves the same way
// under redirect as it does under proxy — not re-reading the body is not a
// behavior difference a strategy switch should introduce.
func Handler(determiner *determine.Determiner, processId func(*http.Request) (string, bool), restream func(*http.Request) ([]byte, error), sink lifecycle.Sink) http.HandlerFunc {
	if sink == nil {
		sink = lifecycle.NopSink{}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := lifecycle.Now()

		if restream != nil {
			if _, err := restream(r); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid request body"}`))
				return
			}
		}

		pid, ok := processId(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Process id not found on request"}`))
			sink.OnFinish(r, lifecycle.ResultProcessIdMissing, 0)
			return
		}

		origin, ok := determiner.Determine(pid, 0)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"Proxy connection error","message":"no upstream available"}`))
			sink.OnFinish(r, lifecycle.ResultNoHostAvailable, time.Since(start).Milliseconds())
			return
		}

		sink.OnStart(r, pid, origin.String(), 0)

		location := origin.String() + r.URL.Path
		if r.URL.RawQuery != "" {
			location += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, location, http.StatusFound)

		sink.OnFinish(r, lifecycle.ResultSuccess, time.Since(start).Milliseconds())
	}
}
