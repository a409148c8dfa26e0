package lifecycle

import (
	"net/http"

	applog "github.com/Ethan-GoldS/ao-sub000/internal/log"
)

// LogSink is a Sink that writes attempt/completion detail through the
// ambient logging layer. Typically composed with PrometheusSink via
// MultiSink and wrapped in a QueuedSink at the call site.
type LogSink struct{}

func (LogSink) OnStart(_ *http.Request, processId string, chosenOrigin string, attemptIndex int) {
	applog.LogAttempt(processId, chosenOrigin, attemptIndex, "start")
}

func (LogSink) OnFinish(req *http.Request, result Result, durationMillis int64) {
	reqID := ""
	if req != nil {
		reqID = req.Header.Get("X-Request-ID")
	}
	applog.Emit("info", "router", map[string]string{
		"request_id": reqID,
		"result":     result.String(),
	}, "request finished result="+result.String())
}

var _ Sink = LogSink{}

// MultiSink fans a lifecycle event out to every wrapped Sink in order.
type MultiSink []Sink

func (m MultiSink) OnStart(req *http.Request, processId string, chosenOrigin string, attemptIndex int) {
	for _, s := range m {
		s.OnStart(req, processId, chosenOrigin, attemptIndex)
	}
}

func (m MultiSink) OnFinish(req *http.Request, result Result, durationMillis int64) {
	for _, s := range m {
		s.OnFinish(req, result, durationMillis)
	}
}

var _ Sink = MultiSink(nil)
