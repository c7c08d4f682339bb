package generation

import "math"

// AttemptState is the mutable state of a single run. It is owned by exactly
// one controller goroutine and never shared; observers receive copies.
type AttemptState struct {
	Attempt      int     `json:"attempt"`
	MaxAttempts  int     `json:"max_attempts"`
	Threshold    float64 `json:"threshold"`
	TotalCost    float64 `json:"total_cost"`
	CurrentStage string  `json:"current_stage,omitempty"`
}

// NewAttemptState starts a run at attempt 1 with the request's threshold.
func NewAttemptState(maxAttempts int, threshold float64) AttemptState {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return AttemptState{Attempt: 1, MaxAttempts: maxAttempts, Threshold: roundThreshold(threshold)}
}

// CeilingReached reports whether the current attempt is the last allowed.
func (s AttemptState) CeilingReached() bool {
	return s.Attempt >= s.MaxAttempts
}

// Advance moves to the next attempt, lowering the threshold by step with a
// floor of zero. It never raises the threshold and never exceeds the ceiling.
func (s *AttemptState) Advance(step float64) bool {
	if s.CeilingReached() {
		return false
	}
	s.Attempt++
	if step > 0 {
		s.Threshold = roundThreshold(math.Max(0, s.Threshold-step))
	}
	s.CurrentStage = ""
	return true
}

// AddCost accumulates non-negative stage costs.
func (s *AttemptState) AddCost(cost float64) {
	if cost > 0 {
		s.TotalCost += cost
	}
}

// roundThreshold keeps repeated subtraction of decimal steps from drifting
// (0.7 - 0.1 - 0.1 must compare equal to 0.5).
func roundThreshold(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}
