// Package bailout implements the C3 Bailout Resolver: CU-only overlay that
// consults an external surrogate routing service to replace the default
// hash-based pool with an explicit origin sequence for a given processId.
// See spec §4.3.
package bailout

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ethan-GoldS/ao-sub000/internal/hostpool"
	applog "github.com/Ethan-GoldS/ao-sub000/internal/log"
	"github.com/Ethan-GoldS/ao-sub000/internal/metrics"
	"github.com/Ethan-GoldS/ao-sub000/internal/routeerr"
)

// surrogateResponse mirrors the JSON the surrogate returns:
// { "owner": "...", "hosts": ["...", ...] }. Only "hosts" is required.
type surrogateResponse struct {
	Owner string   `json:"owner"`
	Hosts []string `json:"hosts"`
}

// surrogateHTTPClient is a short-timeout client dedicated to bailout lookups,
// adapted from the teacher's internal/proxy/healthChecker.go pattern: a
// package-level http.Client with a tight timeout, used for an ancillary
// out-of-band GET that must never stall the request path. There it probed
// backend liveness for the load balancer (a feature spec §1 excludes as a
// Non-goal); here the same shape asks the surrogate to resolve processId.
var surrogateHTTPClient = &http.Client{
	Timeout: 2 * time.Second,
}

// Resolver is the C3 component. Construct with NewResolver; an empty surURL
// disables the surrogate call entirely (MU role, or CU with bailout off),
// leaving only the static overlays (if configured) in play.
type Resolver struct {
	surURL        string
	cache         *ttlLRU
	processToHost map[string][]string
	ownerToHost   map[string][]string
}

// Config mirrors spec §4.3/§6's configurable overlays plus cache policy.
type Config struct {
	SurrogateURL  string
	ProcessToHost map[string][]string
	OwnerToHost   map[string][]string
	CacheSize     int
	CacheTTL      time.Duration
}

// NewResolver builds a Resolver. A zero-value Config (no surrogate URL, no
// overlays) yields a Resolver whose Lookup always reports "no override".
// Static overlay lists are deduplicated once up front (see dedupeOrigins).
func NewResolver(cfg Config) *Resolver {
	processToHost := make(map[string][]string, len(cfg.ProcessToHost))
	for k, v := range cfg.ProcessToHost {
		processToHost[k] = dedupeOrigins(v)
	}
	ownerToHost := make(map[string][]string, len(cfg.OwnerToHost))
	for k, v := range cfg.OwnerToHost {
		ownerToHost[k] = dedupeOrigins(v)
	}
	return &Resolver{
		surURL:        strings.TrimRight(cfg.SurrogateURL, "/"),
		cache:         newTTLLRU(cfg.CacheSize, cfg.CacheTTL),
		processToHost: processToHost,
		ownerToHost:   ownerToHost,
	}
}

// dedupeOrigins collapses origins that hostpool.Same considers identical
// (same scheme/host/effective port, e.g. "https://a.example" vs
// "https://a.example:443"), keeping the first occurrence's exact string and
// its position. An override list is indexed directly by attempt (spec §4.4:
// "Default pool is ignored" — this never merges against the default pool,
// it only removes a surrogate or static overlay's own duplicate entries so
// an attempt index never wastes a retry re-contacting an origin it just
// tried). Entries that fail to parse are kept as-is and in place; the host
// determiner resolves no origin for an attempt that lands on such an entry
// (or on any entry without a scheme and host), so the request's attempt
// chain ends there.
func dedupeOrigins(hosts []string) []string {
	seen := make([]*url.URL, 0, len(hosts))
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		u, err := url.Parse(h)
		if err != nil {
			out = append(out, h)
			continue
		}
		duplicate := false
		for _, s := range seen {
			if hostpool.Same(s, u) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		seen = append(seen, u)
		out = append(out, h)
	}
	return out
}

// Lookup resolves processId to an effective origin sequence. The second
// return value is false when there is no override in play (default
// hash-based pool should be used); true with a possibly-empty slice means an
// override exists — an empty slice is exhaustion for this request (spec §8
// boundary behavior: "Bailout returns empty hosts: treat as exhaustion").
func (r *Resolver) Lookup(processId string) ([]string, bool) {
	if r == nil {
		return nil, false
	}

	// processToHost is a direct shortcut: bypasses both cache and surrogate.
	if hosts, ok := r.processToHost[processId]; ok {
		metrics.ObserveBailoutLookup("static_overlay")
		return hosts, true
	}

	if cached, ok := r.cache.get(processId); ok {
		if cached.Negative {
			metrics.ObserveBailoutLookup("cached_none")
			return nil, false
		}
		metrics.ObserveBailoutLookup("cached_override")
		return cached.Hosts, true
	}

	if r.surURL == "" {
		// No surrogate configured: nothing further to resolve.
		r.cache.set(processId, &entry{Negative: true})
		metrics.ObserveBailoutLookup("disabled")
		return nil, false
	}

	owner, hosts, err := r.callSurrogate(processId)
	if err != nil {
		err = fmt.Errorf("%w: %w", routeerr.BailoutLookupError, err)
		applog.Emit("error", "bailout", map[string]string{"process_id": processId}, err.Error())
		r.cache.set(processId, &entry{Negative: true})
		metrics.ObserveBailoutLookup("surrogate_error")
		return nil, false
	}

	if ownerHosts, ok := r.ownerToHost[owner]; owner != "" && ok {
		hosts = ownerHosts
	} else {
		hosts = dedupeOrigins(hosts)
	}

	r.cache.set(processId, &entry{Hosts: hosts, Owner: owner})
	metrics.ObserveBailoutLookup("surrogate_override")
	return hosts, true
}

// callSurrogate issues GET {surUrl}/processes/{processId} and parses the
// response. Any non-2xx status or malformed JSON is a BailoutLookupError,
// degraded here to (…, err) so the caller can cache "no override" and move
// on without surfacing anything to the client (spec §4.3/§7).
func (r *Resolver) callSurrogate(processId string) (owner string, hosts []string, err error) {
	endpoint := r.surURL + "/processes/" + url.PathEscape(processId)

	req, reqErr := http.NewRequest(http.MethodGet, endpoint, nil)
	if reqErr != nil {
		return "", nil, reqErr
	}

	resp, doErr := surrogateHTTPClient.Do(req)
	if doErr != nil {
		return "", nil, doErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, errStatus(resp.StatusCode)
	}

	var parsed surrogateResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&parsed); decodeErr != nil {
		return "", nil, decodeErr
	}
	return parsed.Owner, parsed.Hosts, nil
}

type statusError int

func (e statusError) Error() string {
	return "surrogate returned non-2xx status"
}

func errStatus(code int) error { return statusError(code) }
