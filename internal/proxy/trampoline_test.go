package proxy

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Ethan-GoldS/ao-sub000/internal/bailout"
	"github.com/Ethan-GoldS/ao-sub000/internal/determine"
	"github.com/Ethan-GoldS/ao-sub000/internal/hostpool"
	"github.com/Ethan-GoldS/ao-sub000/internal/lifecycle"
)

func mustPool(t *testing.T, origins ...string) *hostpool.Pool {
	t.Helper()
	p, err := hostpool.New(origins)
	if err != nil {
		t.Fatalf("hostpool.New: %v", err)
	}
	return p
}

// spySink records onStart/onFinish calls for assertions, per the Request
// Lifecycle Interface contract (spec §4.9, §8's "onFinish called exactly once").
type spySink struct {
	starts   int32
	finishes int32
	lastRes  lifecycle.Result
}

func (s *spySink) OnStart(*http.Request, string, string, int) { atomic.AddInt32(&s.starts, 1) }
func (s *spySink) OnFinish(_ *http.Request, result lifecycle.Result, _ int64) {
	atomic.AddInt32(&s.finishes, 1)
	s.lastRes = result
}

func newRequest(t *testing.T, method, target string, body string) *http.Request {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	return req
}

// TestSingleAttemptOnHashedPrimary covers spec §8 scenario 1: one successful
// attempt against the primary origin, no failover.
func TestSingleAttemptOnHashedPrimary(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer up.Close()

	pool := mustPool(t, up.URL)
	engine := NewEngine(DefaultTimeouts())
	tr := NewTrampoline(engine, determine.New(pool, nil))
	sink := &spySink{}

	req := newRequest(t, "GET", "/state/P1", "")
	rec := httptest.NewRecorder()
	tr.Run(rec, req, "P1", nil, sink)

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected response: %d %q", rec.Code, rec.Body.String())
	}
	if sink.starts != 1 {
		t.Fatalf("expected exactly 1 onStart, got %d", sink.starts)
	}
	if sink.finishes != 1 || sink.lastRes != lifecycle.ResultSuccess {
		t.Fatalf("expected exactly 1 onFinish(success), got %d calls, last=%v", sink.finishes, sink.lastRes)
	}
}

// TestSingleFailoverToSecondHost covers spec §8 scenario 2: A refuses the
// connection (TransportError), B returns 200; client sees B's response and
// onStart fires twice.
func TestSingleFailoverToSecondHost(t *testing.T) {
	// A deliberately-closed listener: connections are refused immediately.
	deadListener, err := nettest_listenAndClose()
	if err != nil {
		t.Fatalf("preparing dead origin: %v", err)
	}

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer good.Close()

	pool := mustPool(t, deadListener, good.URL)
	// Force attempt 0 -> deadListener, attempt 1 -> good, regardless of hash,
	// by overriding via the bailout processToHost shortcut.
	resolver := bailout.NewResolver(bailout.Config{
		ProcessToHost: map[string][]string{"P1": {deadListener, good.URL}},
	})
	engine := NewEngine(DefaultTimeouts())
	tr := NewTrampoline(engine, determine.New(pool, resolver))
	sink := &spySink{}

	req := newRequest(t, "GET", "/state/P1", "")
	rec := httptest.NewRecorder()
	tr.Run(rec, req, "P1", nil, sink)

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("expected successful failover to second host, got %d %q", rec.Code, rec.Body.String())
	}
	if sink.starts != 2 {
		t.Fatalf("expected onStart fired twice (A then B), got %d", sink.starts)
	}
	if sink.finishes != 1 || sink.lastRes != lifecycle.ResultSuccess {
		t.Fatalf("expected exactly 1 onFinish(success), got %d calls, last=%v", sink.finishes, sink.lastRes)
	}
}

// TestExhaustionReturns502 covers spec §8 scenario 3: every origin errors,
// client gets 502 with the last error's message, no extra attempt beyond
// pool length.
func TestExhaustionReturns502(t *testing.T) {
	deadA, err := nettest_listenAndClose()
	if err != nil {
		t.Fatalf("preparing dead origin A: %v", err)
	}
	deadB, err := nettest_listenAndClose()
	if err != nil {
		t.Fatalf("preparing dead origin B: %v", err)
	}

	pool := mustPool(t, deadA, deadB)
	engine := NewEngine(DefaultTimeouts())
	tr := NewTrampoline(engine, determine.New(pool, nil))
	sink := &spySink{}

	req := newRequest(t, "GET", "/state/P9", "")
	rec := httptest.NewRecorder()
	tr.Run(rec, req, "P9", nil, sink)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on exhaustion, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"Proxy connection error"`) {
		t.Fatalf("expected proxy connection error body, got %q", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"message":"upstream transport error: `) {
		t.Fatalf("expected the last transport error's message in the body, got %q", rec.Body.String())
	}
	if sink.starts != 2 {
		t.Fatalf("expected exactly 2 attempts for a 2-origin pool, got %d", sink.starts)
	}
	if sink.finishes != 1 || sink.lastRes != lifecycle.ResultNoHostAvailable {
		t.Fatalf("expected exactly 1 onFinish(no_host_available), got %d calls, last=%v", sink.finishes, sink.lastRes)
	}
}

// TestBackendErrorStatusIsNotRetried covers spec §8 scenario 4: a backend
// 500 is BackendStatusError, passed through verbatim, and the second origin
// is never contacted.
func TestBackendErrorStatusIsNotRetried(t *testing.T) {
	var bHits int32
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer a.Close()
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&bHits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer b.Close()

	pool := mustPool(t, a.URL, b.URL)
	resolver := bailout.NewResolver(bailout.Config{
		ProcessToHost: map[string][]string{"P2": {a.URL, b.URL}},
	})
	engine := NewEngine(DefaultTimeouts())
	tr := NewTrampoline(engine, determine.New(pool, resolver))
	sink := &spySink{}

	req := newRequest(t, "GET", "/state/P2", "")
	rec := httptest.NewRecorder()
	tr.Run(rec, req, "P2", nil, sink)

	if rec.Code != http.StatusInternalServerError || rec.Body.String() != "boom" {
		t.Fatalf("expected backend 500 passthrough, got %d %q", rec.Code, rec.Body.String())
	}
	if atomic.LoadInt32(&bHits) != 0 {
		t.Fatalf("expected B to never be contacted after A's non-2xx")
	}
	if sink.starts != 1 {
		t.Fatalf("expected exactly one onStart for the single contacted origin, got %d", sink.starts)
	}
}

// TestRestreamedBodyIsForwarded exercises the bufferedBody path used by
// routes whose processIdFromRequest strategy consumes the body first.
func TestRestreamedBodyIsForwarded(t *testing.T) {
	var gotBody string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	pool := mustPool(t, up.URL)
	engine := NewEngine(DefaultTimeouts())
	tr := NewTrampoline(engine, determine.New(pool, nil))

	req := newRequest(t, "POST", "/dry-run", "")
	rec := httptest.NewRecorder()
	tr.Run(rec, req, "P3", []byte(`{"processId":"P3"}`), lifecycle.NopSink{})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotBody != `{"processId":"P3"}` {
		t.Fatalf("expected buffered body to be forwarded verbatim, got %q", gotBody)
	}
}

// nettest_listenAndClose opens a TCP listener and closes it immediately,
// returning an origin URL that is guaranteed to refuse connections —
// deterministic TransportError without depending on external network state.
func nettest_listenAndClose() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	u := &url.URL{Scheme: "http", Host: addr}
	return u.String(), nil
}
