package lifecycle

import (
	"net/http"
	"time"

	"github.com/Ethan-GoldS/ao-sub000/internal/metrics"
)

// PrometheusSink is the default Sink: it records the request-level
// completion metric through internal/metrics. Per-attempt metrics (inflight
// gauge, upstream latency) are observed directly around the Forward call in
// the trampoline, which is the only place that knows when an attempt
// actually starts and ends; OnStart is a no-op here and OnFinish records the
// whole-request outcome. Per spec §4.9 this must never block the request path or mutate
// anything; a Prometheus observation is fixed-cost and lock-free, so it is
// safe to call inline rather than queue through a channel. route is supplied
// at construction because the lifecycle interface itself carries no notion
// of route identity.
type PrometheusSink struct {
	route string
}

// NewPrometheusSink builds a Sink that labels its metrics with route.
func NewPrometheusSink(route string) *PrometheusSink {
	return &PrometheusSink{route: route}
}

func (s *PrometheusSink) OnStart(*http.Request, string, string, int) {}

func (s *PrometheusSink) OnFinish(req *http.Request, result Result, durationMillis int64) {
	method := "UNKNOWN"
	if req != nil {
		method = req.Method
	}
	metrics.ObserveRequest(method, s.route, result.String(), time.Duration(durationMillis)*time.Millisecond)
}

var _ Sink = (*PrometheusSink)(nil)
