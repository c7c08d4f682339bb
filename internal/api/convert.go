package api

import (
	"slices"
	"time"

	"aurax/internal/progress"
	"aurax/internal/queue"
	"aurax/internal/stage"
	"aurax/internal/workflow"
)

// FromRun converts a queue record to its API representation.
func FromRun(run *queue.Run) Run {
	if run == nil {
		return Run{}
	}
	dto := Run{
		ID:              run.ID,
		Status:          string(run.Status),
		Request:         run.Request,
		MaxAttempts:     run.MaxAttempts,
		Attempt:         run.Attempt,
		Stage:           run.Stage,
		Threshold:       run.Threshold,
		TotalCost:       run.TotalCost,
		QualityScore:    run.QualityScore,
		PayloadRef:      run.PayloadRef,
		ErrorKind:       run.ErrorKind,
		ErrorMessage:    run.ErrorMessage,
		LogPath:         run.LogPath,
		CancelRequested: run.CancelRequested,
		CreatedAt:       FormatTime(run.CreatedAt),
		UpdatedAt:       FormatTime(run.UpdatedAt),
		StartedAt:       formatTimePtr(run.StartedAt),
		FinishedAt:      formatTimePtr(run.FinishedAt),
	}
	if res := run.Result; res != nil {
		dto.Stems = res.Stems
		dto.AttemptsUsed = res.AttemptsUsed
		dto.ElapsedSeconds = res.Elapsed.Seconds()
	}
	return dto
}

// FromRuns converts a slice of queue records.
func FromRuns(runs []*queue.Run) []Run {
	out := make([]Run, 0, len(runs))
	for _, run := range runs {
		if run == nil {
			continue
		}
		out = append(out, FromRun(run))
	}
	return out
}

// FromSnapshot converts a progress snapshot to its API representation.
func FromSnapshot(snap progress.Snapshot) Progress {
	return Progress{
		RunID:        snap.RunID,
		Status:       string(snap.Status),
		Attempt:      snap.Attempt,
		MaxAttempts:  snap.MaxAttempts,
		Stage:        snap.Stage,
		StageIndex:   snap.StageIndex,
		StageCount:   snap.StageCount,
		Percent:      snap.Percent(),
		Threshold:    snap.Threshold,
		TotalCost:    snap.TotalCost,
		QualityScore: snap.QualityScore,
		Error:        snap.Error,
		UpdatedAt:    FormatTime(snap.UpdatedAt),
	}
}

// FromStatusSummary converts workflow diagnostics to the API shape.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	stats := make(map[string]int, len(summary.QueueStats))
	for status, count := range summary.QueueStats {
		stats[string(status)] = count
	}
	return WorkflowStatus{
		Running:     summary.Running,
		Workers:     summary.Workers,
		ActiveRuns:  summary.ActiveRuns,
		QueueStats:  stats,
		LastError:   summary.LastError,
		LastRunID:   summary.LastRunID,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
}

// StageHealthSlice converts a stage health map into a slice ordered by
// attempt position. Stages outside the attempt sort by name after it.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		ia, ib := stageRank(a), stageRank(b)
		if ia != ib {
			return ia - ib
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})

	out := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

func stageRank(name string) int {
	if idx := stage.Index(stage.Name(name)); idx > 0 {
		return idx
	}
	return len(stage.AttemptOrder()) + 1
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses a timestamp produced by FormatTime. Invalid or empty
// values yield the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}
