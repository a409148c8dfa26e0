package applog

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// loggingResponseWriter captures the status code written by a handler, so
// WithRequestLogging can log the real outcome instead of assuming 200.
// Adapted from the ancestor proxy's upstream logging wrapper.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	n      int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.n += n
	return n, err
}

// WithRequestLogging logs one INFO line per request at entry and one at
// completion, plus a DEBUG line with full header detail. Prometheus scrapes
// are skipped so they don't flood the log stream.
func WithRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isMetricsScrape(r) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")

		labels := map[string]string{
			"method":     r.Method,
			"host":       MustHostname(),
			"url":        r.URL.RequestURI(),
			"request_id": reqID,
		}
		Emit("info", "router", labels, fmt.Sprintf("REQ method=%s url=%s req_id=%s", r.Method, r.URL.RequestURI(), reqID))
		Emit("debug", "router", labels, fmt.Sprintf("REQ remote=%s proto=%s headers=%v", r.RemoteAddr, r.Proto, r.Header))

		lrw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lrw, r)

		dur := time.Since(start)
		status := lrw.status
		if status == 0 {
			status = http.StatusOK
		}
		respLabels := map[string]string{
			"method":     r.Method,
			"status":     strconv.Itoa(status),
			"host":       MustHostname(),
			"url":        r.URL.RequestURI(),
			"request_id": reqID,
		}
		Emit("info", "router", respLabels, fmt.Sprintf("RESP status=%d bytes=%d dur=%s req_id=%s", status, lrw.n, dur, reqID))
	})
}

var requestCounter int64

// WithRequestID assigns a request ID if the client didn't supply one, so
// downstream logs and the X-Request-ID response header are consistent with
// what the failover trampoline and proxy engine already see.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = fmt.Sprintf("%d-%d", time.Now().UnixNano(), atomic.AddInt64(&requestCounter, 1))
			r.Header.Set("X-Request-ID", reqID)
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

// LogAttempt logs one upstream attempt at DEBUG level: which origin, which
// attempt index, and the outcome. Called from the route binder's lifecycle
// sink wiring, not from the proxy engine itself (spec §4.9: the lifecycle
// sink must not be the proxy's only observer of its own attempts, but
// logging is a legitimate Sink implementation alongside metrics).
func LogAttempt(processId, origin string, attemptIndex int, outcome string) {
	Emit("debug", "router", map[string]string{
		"process_id":    processId,
		"origin":        origin,
		"attempt_index": strconv.Itoa(attemptIndex),
		"outcome":       outcome,
	}, fmt.Sprintf("ATTEMPT process_id=%s origin=%s attempt=%d outcome=%s", processId, origin, attemptIndex, outcome))
}
