// Package idgenerator hands out connection identifiers that are never reused
// for the lifetime of a process.
package idgenerator

import "sync/atomic"

// IdGenerator generates monotonically increasing uint64 IDs in a concurrency-safe
// manner. Zero is never returned by Next, so callers may use it as "no id".
//
// Operating system descriptor numbers are recycled as soon as a socket is
// closed; IDs from an IdGenerator are not, which makes them safe to use as keys
// that must outlive the descriptor they were assigned to.
type IdGenerator struct {
	id atomic.Uint64
}

// NewIdGenerator creates an IdGenerator whose first Next() returns startValue+1.
//
// Parameters:
//   - startValue: The value to initialize the counter to
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint64) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Next returns the next unique ID by atomically incrementing the internal
// counter. The counter skips zero if it ever wraps.
//
// Returns:
//   - The next uint64 ID
func (g *IdGenerator) Next() uint64 {
	for {
		if id := g.id.Add(1); id != 0 {
			return id
		}
	}
}
