// Package hashroute implements the C2 Hash Resolver: a deterministic
// mapping from (processId, attemptIndex) to a backend origin, with no
// external state. See spec §4.2.
package hashroute

import (
	"net/url"

	"github.com/cespare/xxhash/v2"

	"github.com/Ethan-GoldS/ao-sub000/internal/hostpool"
)

// Exhausted is returned (as the second value) once attemptIndex has walked
// past the pool's length; the caller must stop failing over.
//
// Resolve(processId, k) -> (origin, true) while k < n, else (nil, false).

// Hash32 computes the 32-bit hash H of processId's UTF-8 bytes used to pick
// the primary origin. Implemented with xxhash (already part of the
// dependency graph transitively via prometheus/common) truncated to its low
// 32 bits: xxhash has good avalanche behavior and the spec leaves the exact
// function to the implementer (§4.2, §9 Open Questions) as long as it is
// used consistently everywhere the process->host mapping is reasoned about.
func Hash32(processId string) uint32 {
	return uint32(xxhash.Sum64String(processId))
}

// Resolve implements the rotation rule from §4.2: the origin for attempt k
// is pool[(H+k) mod n] while k < n, otherwise Exhausted. This produces a
// permutation of the pool of length n with no repeats, stable across
// restarts because Hash32 is pure and the pool order is frozen.
func Resolve(pool *hostpool.Pool, processId string, attemptIndex int) (*url.URL, bool) {
	n := pool.Length()
	if n == 0 || attemptIndex < 0 || attemptIndex >= n {
		return nil, false
	}
	h := Hash32(processId)
	idx := (uint64(h) + uint64(attemptIndex)) % uint64(n)
	return pool.At(int(idx)), true
}
