package api

import (
	"time"

	"aurax/internal/generation"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SubmitRequest is the body of POST /api/runs.
type SubmitRequest struct {
	generation.Draft `yaml:",inline"`

	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
}

// SubmitResponse acknowledges a queued run.
type SubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Run describes a generation run in a transport-friendly format.
type Run struct {
	ID              string             `json:"id"`
	Status          string             `json:"status"`
	Request         generation.Request `json:"request"`
	MaxAttempts     int                `json:"max_attempts"`
	Attempt         int                `json:"attempt"`
	Stage           string             `json:"stage,omitempty"`
	Threshold       float64            `json:"threshold"`
	TotalCost       float64            `json:"total_cost"`
	QualityScore    *float64           `json:"quality_score,omitempty"`
	PayloadRef      string             `json:"payload_ref,omitempty"`
	Stems           []generation.Stem  `json:"stems,omitempty"`
	ErrorKind       string             `json:"error_kind,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	LogPath         string             `json:"log_path,omitempty"`
	CancelRequested bool               `json:"cancel_requested,omitempty"`
	AttemptsUsed    int                `json:"attempts_used,omitempty"`
	ElapsedSeconds  float64            `json:"elapsed_seconds,omitempty"`
	CreatedAt       string             `json:"created_at,omitempty"`
	UpdatedAt       string             `json:"updated_at,omitempty"`
	StartedAt       string             `json:"started_at,omitempty"`
	FinishedAt      string             `json:"finished_at,omitempty"`
}

// RunListResponse wraps a collection of runs.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// RunResponse wraps a single run with its attempt trail.
type RunResponse struct {
	Run      Run                        `json:"run"`
	Attempts []generation.AttemptRecord `json:"attempts,omitempty"`
}

// Progress is the live view of a run.
type Progress struct {
	RunID        string   `json:"run_id"`
	Status       string   `json:"status"`
	Attempt      int      `json:"attempt"`
	MaxAttempts  int      `json:"max_attempts"`
	Stage        string   `json:"stage,omitempty"`
	StageIndex   int      `json:"stage_index"`
	StageCount   int      `json:"stage_count"`
	Percent      float64  `json:"percent"`
	Threshold    float64  `json:"threshold"`
	TotalCost    float64  `json:"total_cost"`
	QualityScore *float64 `json:"quality_score,omitempty"`
	Error        string   `json:"error,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
}

// StageHealth mirrors readiness reporting for stage collaborators.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Workers     int            `json:"workers"`
	ActiveRuns  []string       `json:"active_runs,omitempty"`
	QueueStats  map[string]int `json:"queue_stats"`
	LastError   string         `json:"last_error,omitempty"`
	LastRunID   string         `json:"last_run_id,omitempty"`
	StageHealth []StageHealth  `json:"stage_health"`
}

// PreflightResult reports one startup check.
type PreflightResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool              `json:"running"`
	PID          int               `json:"pid"`
	QueueDBPath  string            `json:"queue_db_path"`
	LockFilePath string            `json:"lock_file_path"`
	Workflow     WorkflowStatus    `json:"workflow"`
	Preflight    []PreflightResult `json:"preflight,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// LogQuery selects a window of a run's log. Offset -1 returns the last Limit
// lines; Wait bounds how long the daemon holds the request open for new lines.
type LogQuery struct {
	Offset int64
	Limit  int
	Wait   time.Duration
}

// LogTail is one page of a run's log.
type LogTail struct {
	RunID  string   `json:"run_id"`
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
