// Package limits provides a saturating atomic counter used to track
// system-wide resource counts that must never go negative: the number
// of live user processes, for instance. Adapted from the teacher's
// Sysatomic_t (biscuit/src/limits), trimmed to the one counter type this
// kernel needs instead of biscuit's full table of per-resource limits
// (sockets, futexes, arp entries, ...), none of which this spec has.
package limits

import "sync/atomic"

// Counter is a resource count that can be given and taken atomically.
type Counter int64

// Given increases the count by delta.
func (c *Counter) Given(delta int64) {
	atomic.AddInt64((*int64)(c), delta)
}

// Taken decreases the count by delta, reporting whether the result
// stayed non-negative; if not, the decrement is undone.
func (c *Counter) Taken(delta int64) bool {
	if atomic.AddInt64((*int64)(c), -delta) >= 0 {
		return true
	}
	atomic.AddInt64((*int64)(c), delta)
	return false
}

// Get returns the current value.
func (c *Counter) Get() int64 {
	return atomic.LoadInt64((*int64)(c))
}
