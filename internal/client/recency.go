package client

import "time"

// recency remembers when each key was last committed. Every entry lives for the
// same ttl, so insertion order is expiry order and purging only looks at the head.
// Not safe for concurrent use; the pipeline lock guards it.
type recency struct {
	ttl     time.Duration
	entries map[string]time.Time
	order   []recencyEntry
}

type recencyEntry struct {
	key       string
	committed time.Time
}

func newRecency(ttl time.Duration) *recency {
	return &recency{ttl: ttl, entries: make(map[string]time.Time)}
}

// put records a commit of key at t.
func (r *recency) put(key string, t time.Time) {
	r.entries[key] = t
	r.order = append(r.order, recencyEntry{key: key, committed: t})
}

// get returns the last commit time of key if it has not expired at now.
func (r *recency) get(key string, now time.Time) (time.Time, bool) {
	t, ok := r.entries[key]
	if !ok || now.Sub(t) >= r.ttl {
		return time.Time{}, false
	}
	return t, true
}

// purge drops every entry older than ttl at now.
func (r *recency) purge(now time.Time) {
	i := 0
	for ; i < len(r.order); i++ {
		e := r.order[i]
		if now.Sub(e.committed) < r.ttl {
			break
		}
		// A later put of the same key superseded this queue entry.
		if cur, ok := r.entries[e.key]; ok && cur.Equal(e.committed) {
			delete(r.entries, e.key)
		}
	}
	if i > 0 {
		r.order = append(r.order[:0:0], r.order[i:]...)
	}
}

func (r *recency) len() int {
	return len(r.entries)
}
