// Package proxy implements the C5 Proxy Engine and C6 Failover Trampoline
// (spec §4.5, §4.6). Engine forwards one request to one origin and reports
// Success or TransportError; Trampoline drives Engine across attempts.
//
// Adapted from the ancestor reverse proxy's directRequest/serveUpstream: the
// header rewriting, hop-header stripping, and pooled keep-alive transport
// shape are kept; the load-balancer/cache layer they sat inside is gone —
// origin selection now comes from the host determiner, not a balancer pick.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Ethan-GoldS/ao-sub000/internal/routeerr"
)

// hopHeaders are stripped before forwarding, per RFC 7230.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Transfer-Encoding",
	"TE",
	"Trailer",
	"Upgrade",
	"Proxy-Authenticate",
	"Proxy-Authorization",
}

// Timeouts bundles the configurable caps from spec §4.5/§6.
type Timeouts struct {
	Connect time.Duration
	Socket  time.Duration
	Proxy   time.Duration
}

// DefaultTimeouts matches the spec's stated implementation defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect: 10 * time.Second,
		Socket:  8 * time.Second,
		Proxy:   20 * time.Second,
	}
}

// Outcome classifies how one attempt against one origin ended.
type Outcome int

const (
	Success Outcome = iota
	TransportError
)

// Result is what Engine.Forward returns for a single attempt.
type Result struct {
	Outcome Outcome
	// Err is populated on TransportError; its message (never internal detail
	// like stack traces) is what the trampoline may surface on exhaustion.
	Err error
	// StatusCode is populated on Success; the backend's status, headers and
	// body have already been written to the client by Forward — callers must
	// not write again.
	StatusCode int
}

// Engine forwards a single request to a single chosen origin.
type Engine struct {
	transport *http.Transport
	timeouts  Timeouts
}

// NewEngine builds an Engine with a pooled, keep-alive capable transport
// using verified TLS, matching the ancestor proxy's transport construction
// generalized to the spec's configurable timeouts.
func NewEngine(t Timeouts) *Engine {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   t.Connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   t.Connect,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: t.Socket,
	}
	return &Engine{transport: transport, timeouts: t}
}

// Forward proxies req to origin and writes the response to w exactly once.
// If bufferedBody is non-nil it is sent as the outbound body (with a
// recomputed Content-Length) instead of streaming req.Body directly — used
// by routes whose processIdFromRequest strategy must consume the body
// before the first attempt (spec §4.7's restreamBody).
func (e *Engine) Forward(w http.ResponseWriter, req *http.Request, origin *url.URL, bufferedBody []byte) Result {
	ctx, cancel := context.WithTimeout(req.Context(), e.timeouts.Proxy)
	defer cancel()

	outReq := req.Clone(ctx)
	directRequest(outReq, origin)

	if bufferedBody != nil {
		outReq.Body = io.NopCloser(bytes.NewReader(bufferedBody))
		outReq.ContentLength = int64(len(bufferedBody))
		outReq.Header.Set("Content-Length", strconv.Itoa(len(bufferedBody)))
	} else if isJSONRequest(outReq) && outReq.ContentLength <= 0 {
		// "For JSON bodies with missing/zero Content-Length, compute and set
		// it before forwarding" (spec §4.5) — requires buffering once here.
		body, err := io.ReadAll(outReq.Body)
		if err != nil {
			return Result{Outcome: TransportError, Err: fmt.Errorf("reading request body: %w: %w", routeerr.TransportError, err)}
		}
		outReq.Body = io.NopCloser(bytes.NewReader(body))
		outReq.ContentLength = int64(len(body))
		outReq.Header.Set("Content-Length", strconv.Itoa(len(body)))
	}

	upstreamResp, err := e.transport.RoundTrip(outReq)
	if err != nil {
		return Result{Outcome: TransportError, Err: fmt.Errorf("%w: %w", routeerr.TransportError, err)}
	}
	defer upstreamResp.Body.Close()

	// Backend status is Success regardless of class: non-2xx is
	// BackendStatusError, not retried, passed through verbatim (spec §4.5/§7).
	copyHeader(w.Header(), sanitizeResponseHeaders(upstreamResp.Header))
	w.WriteHeader(upstreamResp.StatusCode)
	_, _ = io.Copy(w, upstreamResp.Body)

	return Result{Outcome: Success, StatusCode: upstreamResp.StatusCode}
}

// directRequest rewrites outReq in place to target origin: URL, Host header,
// hop-header stripping, and X-Forwarded-* headers. Adapted verbatim in
// spirit from the ancestor proxy's directRequest.
func directRequest(outReq *http.Request, origin *url.URL) {
	outReq.URL.Scheme = origin.Scheme
	outReq.URL.Host = origin.Host
	outReq.URL.Path = singleJoiningSlash(origin.Path, outReq.URL.Path)

	for _, h := range hopHeaders {
		outReq.Header.Del(h)
	}

	if clientIP, _, err := net.SplitHostPort(outReq.RemoteAddr); err == nil && clientIP != "" {
		if xff := outReq.Header.Get("X-Forwarded-For"); xff == "" {
			outReq.Header.Set("X-Forwarded-For", clientIP)
		} else {
			outReq.Header.Set("X-Forwarded-For", xff+", "+clientIP)
		}
	}
	outReq.Header.Set("X-Forwarded-Proto", schemeOf(outReq))
	outReq.Header.Set("X-Forwarded-Host", outReq.Host)
	outReq.Host = origin.Host
}

func schemeOf(req *http.Request) string {
	if req.TLS != nil {
		return "https"
	}
	if sch := req.Header.Get("X-Forwarded-Proto"); sch != "" {
		return sch
	}
	return "http"
}

func isJSONRequest(req *http.Request) bool {
	return strings.Contains(strings.ToLower(req.Header.Get("Content-Type")), "application/json") && req.Body != nil
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	default:
		return a + b
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func sanitizeResponseHeaders(headers http.Header) http.Header {
	out := make(http.Header, len(headers))
	for k, vv := range headers {
		for _, v := range vv {
			out.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	return out
}
