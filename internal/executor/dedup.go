package executor

import (
	"sync"
	"time"
)

// Dedup refuses a second submission of the same order key while the first
// is still in flight. Entries expire after ttl so a call that never
// returned cannot block a key forever. It is safe for concurrent use.
type Dedup struct {
	inflight map[string]time.Time // key -> started
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

// NewDedup creates a Dedup whose entries expire after ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		inflight: make(map[string]time.Time),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Acquire records key and returns true, or returns false if key is
// already in flight and younger than the TTL.
func (d *Dedup) Acquire(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if started, ok := d.inflight[key]; ok && now.Sub(started) < d.ttl {
		return false
	}
	d.inflight[key] = now
	return true
}

// Release forgets key.
func (d *Dedup) Release(key string) {
	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()
}
