// Package determine implements the C4 Host Determiner: composes the hash
// resolver (C2) and the bailout resolver (C3) into a single
// determineHost(processId, attemptIndex) contract. See spec §4.4.
package determine

import (
	"net/url"

	"github.com/Ethan-GoldS/ao-sub000/internal/bailout"
	"github.com/Ethan-GoldS/ao-sub000/internal/hashroute"
	"github.com/Ethan-GoldS/ao-sub000/internal/hostpool"
)

// Determiner composes a default hash-routed pool with an optional bailout
// overlay. bailoutResolver may be nil (MU role, or bailout disabled), in
// which case every lookup falls through to the default pool.
type Determiner struct {
	defaultPool *hostpool.Pool
	bailout     *bailout.Resolver
}

// New builds a Determiner over defaultPool. bailoutResolver is optional.
func New(defaultPool *hostpool.Pool, bailoutResolver *bailout.Resolver) *Determiner {
	return &Determiner{defaultPool: defaultPool, bailout: bailoutResolver}
}

// Determine returns the origin for this attempt, or ok=false once the
// effective pool (bailout override, if any, else the default pool) has been
// exhausted for this processId.
//
// Composition rule (spec §4.4): a bailout override, when present, replaces
// the default pool wholesale and is indexed directly by attemptIndex — no
// hash rotation, since it is already an explicit ordered list. Absent an
// override, attemptIndex drives the hash resolver against the default pool.
func (d *Determiner) Determine(processId string, attemptIndex int) (*url.URL, bool) {
	if hosts, overridden := d.bailout.Lookup(processId); overridden {
		if attemptIndex < 0 || attemptIndex >= len(hosts) {
			return nil, false
		}
		u, err := url.Parse(hosts[attemptIndex])
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, false
		}
		return u, true
	}
	return hashroute.Resolve(d.defaultPool, processId, attemptIndex)
}

// PoolSize reports the size of the effective pool for processId, used by
// callers that need to bound attempt counts without calling Determine
// (e.g. redirect mode, which only ever tries attempt 0).
func (d *Determiner) PoolSize(processId string) int {
	if hosts, overridden := d.bailout.Lookup(processId); overridden {
		return len(hosts)
	}
	return d.defaultPool.Length()
}
