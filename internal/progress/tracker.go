package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"aurax/internal/generation"
	"aurax/internal/stage"
)

// Snapshot is an immutable view of a run's progress.
type Snapshot struct {
	RunID        string               `json:"run_id"`
	Attempt      int                  `json:"attempt"`
	MaxAttempts  int                  `json:"max_attempts"`
	Stage        string               `json:"stage,omitempty"`
	StageIndex   int                  `json:"stage_index"`
	StageCount   int                  `json:"stage_count"`
	Status       generation.RunStatus `json:"status"`
	Threshold    float64              `json:"threshold"`
	TotalCost    float64              `json:"total_cost"`
	QualityScore *float64             `json:"quality_score,omitempty"`
	Error        string               `json:"error,omitempty"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Percent estimates overall completion from attempt and stage position.
// Terminal snapshots report 100.
func (s Snapshot) Percent() float64 {
	if s.Status.Terminal() {
		return 100
	}
	if s.MaxAttempts <= 0 || s.StageCount <= 0 || s.Attempt <= 0 {
		return 0
	}
	within := float64(s.StageIndex) / float64(s.StageCount)
	return 100 * within
}

// Tracker holds the latest snapshot of one run.
type Tracker struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// NewTracker starts a tracker in the pending state.
func NewTracker(runID string, maxAttempts int, threshold float64) *Tracker {
	t := &Tracker{now: time.Now}
	t.current.Store(&Snapshot{
		RunID:       runID,
		MaxAttempts: maxAttempts,
		StageCount:  len(stage.AttemptOrder()),
		Status:      generation.StatusPending,
		Threshold:   threshold,
		UpdatedAt:   t.now().UTC(),
	})
	return t
}

// Snapshot returns the latest published snapshot. It never blocks.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	return *t.current.Load()
}

// Update applies fn to a copy of the current snapshot and publishes it.
// Terminal snapshots are final: updates after a terminal status are dropped.
func (t *Tracker) Update(fn func(*Snapshot)) {
	if t == nil || fn == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.current.Load()
	if prev.Status.Terminal() {
		return
	}
	next := *prev
	if prev.QualityScore != nil {
		score := *prev.QualityScore
		next.QualityScore = &score
	}
	fn(&next)
	next.UpdatedAt = t.now().UTC()
	t.current.Store(&next)
}

// Observe publishes the run-owned attempt state as generating.
func (t *Tracker) Observe(state generation.AttemptState) {
	t.Update(func(s *Snapshot) {
		s.Attempt = state.Attempt
		s.MaxAttempts = state.MaxAttempts
		s.Threshold = state.Threshold
		s.TotalCost = state.TotalCost
		s.Stage = state.CurrentStage
		s.StageIndex = stage.Index(stage.Name(state.CurrentStage))
		s.Status = generation.StatusGenerating
	})
}

// Finish publishes the terminal status of the run.
func (t *Tracker) Finish(status generation.RunStatus, state generation.AttemptState, score *float64, errMsg string) {
	t.Update(func(s *Snapshot) {
		s.Attempt = state.Attempt
		s.MaxAttempts = state.MaxAttempts
		s.Threshold = state.Threshold
		s.TotalCost = state.TotalCost
		s.Status = status
		s.QualityScore = score
		s.Error = errMsg
		if status == generation.StatusCompleted || status == generation.StatusBestEffort {
			s.Stage = ""
			s.StageIndex = s.StageCount
		}
	})
}
