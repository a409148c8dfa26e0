package proxy

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Ethan-GoldS/ao-sub000/internal/determine"
	"github.com/Ethan-GoldS/ao-sub000/internal/lifecycle"
	"github.com/Ethan-GoldS/ao-sub000/internal/metrics"
)

// Trampoline drives the Engine across attempts 0..N using the host
// determiner, until Success or exhaustion (spec §4.6). Despite the name it
// is a plain loop: the source's trampoline-of-thunks is an artifact of a
// host language without optimized tail calls and is not reproduced here
// (spec §9).
type Trampoline struct {
	engine     *Engine
	determiner *determine.Determiner
}

// NewTrampoline wires an Engine and Determiner together.
func NewTrampoline(engine *Engine, determiner *determine.Determiner) *Trampoline {
	return &Trampoline{engine: engine, determiner: determiner}
}

// Run executes the attempt loop for processId against req, writing the
// final response to w. bufferedBody, if non-nil, is replayed on every
// attempt (spec §4.7's restreamBody contract). sink is the Request
// Lifecycle Interface implementation for this route; pass lifecycle.NopSink{}
// if no collaborator is configured.
func (t *Trampoline) Run(w http.ResponseWriter, req *http.Request, processId string, bufferedBody []byte, sink lifecycle.Sink) {
	if sink == nil {
		sink = lifecycle.NopSink{}
	}
	start := lifecycle.Now()
	attempt := 0
	var lastErr error

	for {
		select {
		case <-req.Context().Done():
			// Client disconnected: abandon in-flight work, do not start a new attempt.
			sink.OnFinish(req, lifecycle.ResultClientCanceled, time.Since(start).Milliseconds())
			return
		default:
		}

		origin, ok := t.determiner.Determine(processId, attempt)
		if !ok {
			t.finishExhausted(w, req, start, attempt, lastErr, sink)
			return
		}

		sink.OnStart(req, processId, origin.String(), attempt)
		attemptStart := lifecycle.Now()
		metrics.UpstreamInflightInc(origin.String())
		result := t.engine.Forward(w, req, origin, bufferedBody)
		metrics.UpstreamInflightDec(origin.String())
		metrics.ObserveUpstreamDuration(origin.String(), time.Since(attemptStart))
		metrics.ObserveAttempt(attempt, outcomeLabel(result.Outcome))

		switch result.Outcome {
		case Success:
			metrics.ObserveAttemptsPerRequest(attempt + 1)
			sink.OnFinish(req, lifecycle.ResultSuccess, time.Since(start).Milliseconds())
			return
		case TransportError:
			lastErr = result.Err
			attempt++
			continue
		}
	}
}

// finishExhausted writes the 502 "no upstream available" response and fires
// onFinish exactly once, per spec §4.6/§6.
func (t *Trampoline) finishExhausted(w http.ResponseWriter, req *http.Request, start time.Time, attempts int, lastErr error, sink lifecycle.Sink) {
	metrics.ObserveAttemptsPerRequest(attempts)

	message := "no upstream available"
	if lastErr != nil {
		message = lastErr.Error()
	}
	writeJSONError(w, http.StatusBadGateway, "Proxy connection error", message)

	sink.OnFinish(req, lifecycle.ResultNoHostAvailable, time.Since(start).Milliseconds())
}

func outcomeLabel(o Outcome) string {
	switch o {
	case Success:
		return "success"
	case TransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

func writeJSONError(w http.ResponseWriter, status int, errMsg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q,"message":%q}`, errMsg, detail)
}
