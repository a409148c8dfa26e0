// Package hostpool holds the frozen, ordered list of backend origins for a
// single AO unit role (cu or mu). It is the C1 component of the router: a
// startup-time, read-only sequence with no mutation API.
package hostpool

import (
	"fmt"
	"net/url"
	"strings"
)

// ErrEmptyPool is returned by New when no origins are configured for the
// active role (spec §4.1's EmptyPool, a ConfigurationError).
var ErrEmptyPool = fmt.Errorf("hostpool: at least one origin is required")

// Pool is the frozen ordered sequence H = [h0, ..., h_{n-1}] from spec §3.
// Order is significant: it is the failover sequence absent a bailout
// override. Immutable after construction; safe for concurrent readers.
type Pool struct {
	origins []*url.URL
}

// New builds a Pool from raw origin strings (scheme + authority), rejecting
// anything that doesn't parse into an absolute URL. Returns ErrEmptyPool if
// raw is empty after trimming.
func New(raw []string) (*Pool, error) {
	origins := make([]*url.URL, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		u, err := url.Parse(r)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("hostpool: invalid origin %q: must include scheme and host", r)
		}
		origins = append(origins, u)
	}
	if len(origins) == 0 {
		return nil, ErrEmptyPool
	}
	return &Pool{origins: origins}, nil
}

// Length returns n, the number of origins in the pool.
func (p *Pool) Length() int {
	if p == nil {
		return 0
	}
	return len(p.origins)
}

// At returns the origin at index i. Callers must only call this with
// 0 <= i < Length(); it panics otherwise, matching the contract that
// attempt indices are always range-checked by the caller first.
func (p *Pool) At(i int) *url.URL {
	return p.origins[i]
}

// All returns a defensive copy of the pool's origins, in order.
func (p *Pool) All() []*url.URL {
	out := make([]*url.URL, len(p.origins))
	copy(out, p.origins)
	return out
}

// Same reports whether two origins identify the same backend: equal scheme,
// host (case-insensitive), and normalized port. Adapted from the teacher's
// balancer identity check, generalized from load-balancer state keys to
// general origin-list deduplication (used by the bailout resolver to drop
// duplicate entries within one override list; it never compares an override
// list against the default pool).
func Same(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	sa, sb := strings.ToLower(a.Scheme), strings.ToLower(b.Scheme)
	ha, hb := strings.ToLower(a.Hostname()), strings.ToLower(b.Hostname())
	pa, pb := a.Port(), b.Port()
	if pa == "" {
		pa = defaultPort(sa)
	}
	if pb == "" {
		pb = defaultPort(sb)
	}
	return sa == sb && ha == hb && pa == pb
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}
