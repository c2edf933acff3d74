package advance

import (
	"sort"
	"sync"
	"time"
)

// Progress is the last observed position of one dataset source.
type Progress struct {
	Source     string    `json:"source"`
	Seq        uint64    `json:"seq"`
	ObservedAt time.Time `json:"observedAt"`
}

// Tracker remembers per-source ingestion progress for the status
// endpoint and scopes caches to the dataset's overall sequence.
type Tracker struct {
	mu      sync.RWMutex
	sources map[string]Progress
	seq     uint64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sources: map[string]Progress{}}
}

// Record notes an advance. Sequences never move backward for a source;
// a stale advance only refreshes the observation time.
func (t *Tracker) Record(adv Advance) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.sources[adv.Source]
	p.Source = adv.Source
	if adv.Seq > p.Seq {
		p.Seq = adv.Seq
	}
	p.ObservedAt = time.Now()
	t.sources[adv.Source] = p

	t.seq++
}

// Seq returns a counter that increases with every recorded advance.
func (t *Tracker) Seq() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seq
}

// Snapshot returns the progress of all sources, sorted by source name.
func (t *Tracker) Snapshot() []Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Progress, 0, len(t.sources))
	for _, p := range t.sources {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
