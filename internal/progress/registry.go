package progress

import "sync"

// Registry indexes live trackers by run ID.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{trackers: make(map[string]*Tracker)}
}

// Add registers a tracker, replacing any previous one for the same run.
func (r *Registry) Add(runID string, t *Tracker) {
	r.mu.Lock()
	r.trackers[runID] = t
	r.mu.Unlock()
}

// Get returns the tracker for runID.
func (r *Registry) Get(runID string) (*Tracker, bool) {
	r.mu.RLock()
	t, ok := r.trackers[runID]
	r.mu.RUnlock()
	return t, ok
}

// Remove drops the tracker for runID.
func (r *Registry) Remove(runID string) {
	r.mu.Lock()
	delete(r.trackers, runID)
	r.mu.Unlock()
}

// Snapshots returns the current snapshot of every registered run.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.trackers))
	for _, t := range r.trackers {
		out = append(out, t.Snapshot())
	}
	return out
}
