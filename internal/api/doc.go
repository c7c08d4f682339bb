// Package api defines wire-format types, converters, and an HTTP client for
// the daemon's run API. It translates queue records and workflow summaries
// into transport DTOs so the CLI never couples to internal types.
//
// # Key Types
//
// Run: transport representation of a generation run with its request,
// progress counters, and terminal result when one exists.
//
// Progress: live snapshot of a run with an estimated completion percent.
//
// WorkflowStatus / DaemonStatus: worker lanes, queue counts, stage health,
// and preflight results.
//
// # Converters
//
// FromRun: queue.Run -> Run.
//
// FromSnapshot: progress.Snapshot -> Progress.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// StageHealthSlice: deterministic ordering of the stage health map.
//
// # Client
//
// Client wraps the HTTP endpoints served by the daemon and maps error
// responses back onto the services error markers, so callers can test them
// with errors.Is.
//
// # Design Notes
//
// DTOs use snake_case JSON tags matching the request schema. Statuses are
// exposed as lowercase strings. Timestamps use RFC3339 with milliseconds.
package api
