package queue

import (
	"time"

	"aurax/internal/generation"
)

// CancelReason is the error message recorded for runs cancelled on request.
const CancelReason = "cancelled by user"

// Run is a persisted generation run.
type Run struct {
	ID              string
	Status          generation.RunStatus
	Request         generation.Request
	MaxAttempts     int
	Attempt         int
	Stage           string
	Threshold       float64
	TotalCost       float64
	QualityScore    *float64
	PayloadRef      string
	Result          *generation.Result
	ErrorKind       string
	ErrorMessage    string
	LogPath         string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	LastHeartbeat   *time.Time
}

// IsInFlight reports whether a worker currently owns the run.
func (r *Run) IsInFlight() bool {
	return r != nil && r.Status == generation.StatusGenerating
}

// Progress is the live state a worker publishes while a run executes.
type Progress struct {
	Attempt      int
	Stage        string
	Threshold    float64
	TotalCost    float64
	QualityScore *float64
}

// Stats counts runs per status.
type Stats map[generation.RunStatus]int

// Total sums every status.
func (s Stats) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// Active counts runs that are pending or generating.
func (s Stats) Active() int {
	return s[generation.StatusPending] + s[generation.StatusGenerating]
}

var terminalStatuses = []generation.RunStatus{
	generation.StatusCompleted,
	generation.StatusBestEffort,
	generation.StatusFailed,
	generation.StatusCancelled,
}
