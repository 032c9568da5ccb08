package recognize

import (
	"hash/fnv"
	"sync"
	"time"
)

const debounceShards = 16

// Debouncer suppresses duplicate attendance events: the same identity is
// accepted at most once per window. State lives in process memory, sharded
// by identity id so concurrent recognitions rarely contend on one lock.
type Debouncer struct {
	window time.Duration
	shards [debounceShards]debounceShard
}

type debounceShard struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewDebouncer creates a debouncer with the given window. The window must be
// explicit; it materially changes attendance semantics.
func NewDebouncer(window time.Duration) *Debouncer {
	d := &Debouncer{window: window}
	for i := range d.shards {
		d.shards[i].last = make(map[string]time.Time)
	}
	return d
}

// Window returns the configured debounce window.
func (d *Debouncer) Window() time.Duration {
	return d.window
}

func (d *Debouncer) shard(id string) *debounceShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &d.shards[h.Sum32()%debounceShards]
}

// ShouldLog decides whether an attendance event for the identity at the
// given time is new or a duplicate of a very recent one. An accepted
// decision updates the identity's last-logged timestamp in the same critical
// section, so two racing calls for one identity cannot both be accepted.
func (d *Debouncer) ShouldLog(id string, now time.Time) bool {
	s := d.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.last[id]
	if ok && now.Sub(last) < d.window {
		return false
	}
	s.last[id] = now
	return true
}

// Prime seeds the identity's last-logged timestamp, typically from the
// persisted attendance log on startup. It never moves a timestamp backward.
func (d *Debouncer) Prime(id string, lastLoggedAt time.Time) {
	s := d.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.last[id]; ok && existing.After(lastLoggedAt) {
		return
	}
	s.last[id] = lastLoggedAt
}

// Forget drops the identity's debounce state, e.g. after un-enrollment.
func (d *Debouncer) Forget(id string) {
	s := d.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, id)
}
