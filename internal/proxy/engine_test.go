package proxy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestForwardSetsContentLengthForBufferedBody(t *testing.T) {
	var gotLen string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLen = r.Header.Get("Content-Length")
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	origin, _ := url.Parse(up.URL)
	engine := NewEngine(DefaultTimeouts())

	req := httptest.NewRequest("POST", "/dry-run", nil)
	rec := httptest.NewRecorder()
	result := engine.Forward(rec, req, origin, []byte(`{"a":1}`))
	if result.Outcome != Success {
		t.Fatalf("expected Success, got %v (%v)", result.Outcome, result.Err)
	}
	if gotLen != "7" {
		t.Fatalf("expected Content-Length 7 for buffered body, got %q", gotLen)
	}
}

func TestForwardComputesContentLengthForJSONBodyMissingIt(t *testing.T) {
	var gotLen, gotBody string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLen = r.Header.Get("Content-Length")
		buf := make([]byte, 32)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	origin, _ := url.Parse(up.URL)
	engine := NewEngine(DefaultTimeouts())

	req := httptest.NewRequest("POST", "/dry-run", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = 0 // simulate a client that omitted Content-Length

	rec := httptest.NewRecorder()
	result := engine.Forward(rec, req, origin, nil)
	if result.Outcome != Success {
		t.Fatalf("expected Success, got %v (%v)", result.Outcome, result.Err)
	}
	if gotLen != "7" {
		t.Fatalf("expected computed Content-Length 7, got %q", gotLen)
	}
	if gotBody != `{"a":1}` {
		t.Fatalf("expected body to still reach upstream, got %q", gotBody)
	}
}

func TestForwardRewritesHostAndForwardedHeaders(t *testing.T) {
	var gotHost, gotXFH string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotXFH = r.Header.Get("X-Forwarded-Host")
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	origin, _ := url.Parse(up.URL)
	engine := NewEngine(DefaultTimeouts())

	req := httptest.NewRequest("GET", "/state/P1", nil)
	req.Host = "router.example"
	req.RemoteAddr = "10.0.0.5:1234"

	rec := httptest.NewRecorder()
	result := engine.Forward(rec, req, origin, nil)
	if result.Outcome != Success {
		t.Fatalf("expected Success, got %v (%v)", result.Outcome, result.Err)
	}
	if gotHost != origin.Host {
		t.Fatalf("expected upstream to see its own host %q, got %q", origin.Host, gotHost)
	}
	if gotXFH != "router.example" {
		t.Fatalf("expected X-Forwarded-Host to carry the original Host, got %q", gotXFH)
	}
}

func TestForwardStripsHopHeaders(t *testing.T) {
	var gotConnection string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotConnection = r.Header.Get("Connection")
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	origin, _ := url.Parse(up.URL)
	engine := NewEngine(DefaultTimeouts())

	req := httptest.NewRequest("GET", "/state/P1", nil)
	req.Header.Set("Connection", "keep-alive")

	rec := httptest.NewRecorder()
	engine.Forward(rec, req, origin, nil)
	if gotConnection != "" {
		t.Fatalf("expected Connection header to be stripped before forwarding, got %q", gotConnection)
	}
}

func TestForwardTransportErrorOnConnectionRefused(t *testing.T) {
	origin, _ := url.Parse("http://127.0.0.1:1") // reserved, nothing listens
	engine := NewEngine(DefaultTimeouts())

	req := httptest.NewRequest("GET", "/state/P1", nil)
	rec := httptest.NewRecorder()
	result := engine.Forward(rec, req, origin, nil)
	if result.Outcome != TransportError {
		t.Fatalf("expected TransportError for connection refused, got %v", result.Outcome)
	}
}

func TestForwardPassesThroughNon2xxAsSuccess(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	defer up.Close()

	origin, _ := url.Parse(up.URL)
	engine := NewEngine(DefaultTimeouts())

	req := httptest.NewRequest("GET", "/state/P1", nil)
	rec := httptest.NewRecorder()
	result := engine.Forward(rec, req, origin, nil)
	if result.Outcome != Success {
		t.Fatalf("expected a backend 404 to be classified Success (not retried), got %v", result.Outcome)
	}
	if rec.Code != http.StatusNotFound || rec.Body.String() != "missing" {
		t.Fatalf("expected passthrough of backend's 404, got %d %q", rec.Code, rec.Body.String())
	}
}
