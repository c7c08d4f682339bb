package generation

import (
	"math"
	"time"
)

// Intent is the structured interpretation of a prompt produced by intent
// analysis. It belongs to a single attempt.
type Intent struct {
	EnhancedPrompt   string  `json:"enhanced_prompt"`
	Duration         float64 `json:"duration"`
	InferredStyle    string  `json:"inferred_style"`
	AlternativeStyle string  `json:"alternative_style"`
}

// Payload is the audio artifact passed between stages: inline bytes, a
// reference URL, or both.
type Payload struct {
	Data        []byte `json:"-"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size,omitempty"`
}

// Empty reports whether the payload carries neither data nor a reference.
func (p Payload) Empty() bool {
	return len(p.Data) == 0 && p.URL == ""
}

// Stem is one separated source track.
type Stem struct {
	Name    string  `json:"name"`
	Payload Payload `json:"payload"`
}

// StageStatus is the terminal status of a single stage invocation.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
)

// StageResult records the outcome and telemetry of one stage execution.
type StageResult struct {
	Stage          string        `json:"stage"`
	Status         StageStatus   `json:"status"`
	Payload        Payload       `json:"payload,omitempty"`
	Cost           float64       `json:"cost"`
	ProcessingTime time.Duration `json:"processing_time"`
	Tries          int           `json:"tries"`
	ErrorKind      string        `json:"error_kind,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
}

// QualityAssessment is the quality evaluator's verdict on a mastered payload.
type QualityAssessment struct {
	Score    float64            `json:"score"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Feedback string             `json:"feedback,omitempty"`
}

// Clamp bounds the score to [0, 1].
func (q QualityAssessment) Clamp() QualityAssessment {
	switch {
	case math.IsNaN(q.Score) || q.Score < 0:
		q.Score = 0
	case q.Score > 1:
		q.Score = 1
	}
	return q
}

// RunStatus is the lifecycle tag of a generation run.
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusGenerating RunStatus = "generating"
	StatusCompleted  RunStatus = "completed"
	StatusBestEffort RunStatus = "best_effort"
	StatusFailed     RunStatus = "failed"
	StatusCancelled  RunStatus = "cancelled"
)

// Terminal reports whether no further work will happen for the run.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusBestEffort, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// AttemptOutcome describes how one attempt ended.
type AttemptOutcome string

const (
	OutcomeAccepted    AttemptOutcome = "accepted"
	OutcomeRegenerate  AttemptOutcome = "regenerate"
	OutcomeCeiling     AttemptOutcome = "ceiling_reached"
	OutcomeAborted     AttemptOutcome = "aborted"
	OutcomeInterrupted AttemptOutcome = "interrupted"
)

// AttemptRecord is one entry of a run's per-attempt trail.
type AttemptRecord struct {
	Attempt    int                `json:"attempt"`
	Prompt     string             `json:"prompt"`
	Style      string             `json:"style"`
	Threshold  float64            `json:"threshold"`
	Intent     *Intent            `json:"intent,omitempty"`
	Stages     []StageResult      `json:"stages"`
	Assessment *QualityAssessment `json:"assessment,omitempty"`
	Outcome    AttemptOutcome     `json:"outcome"`
}

// Cost sums every stage cost in the attempt, including failed stages.
func (a AttemptRecord) Cost() float64 {
	total := 0.0
	for _, stage := range a.Stages {
		total += stage.Cost
	}
	return total
}

// Result is the terminal outcome of a run.
type Result struct {
	RunID        string          `json:"run_id,omitempty"`
	Status       RunStatus       `json:"status"`
	Payload      Payload         `json:"payload"`
	PayloadRef   string          `json:"payload_ref,omitempty"`
	Stems        []Stem          `json:"stems,omitempty"`
	QualityScore float64         `json:"quality_score"`
	Threshold    float64         `json:"threshold"`
	AttemptsUsed int             `json:"attempts_used"`
	TotalCost    float64         `json:"total_cost"`
	Elapsed      time.Duration   `json:"elapsed"`
	Attempts     []AttemptRecord `json:"attempts"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// SumCost recomputes the total cost from the attempt trail.
func (r Result) SumCost() float64 {
	total := 0.0
	for _, attempt := range r.Attempts {
		total += attempt.Cost()
	}
	return total
}
