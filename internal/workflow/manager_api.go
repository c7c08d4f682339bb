package workflow

import (
	"context"
	"errors"
	"fmt"

	"aurax/internal/generation"
	"aurax/internal/logging"
	"aurax/internal/progress"
	"aurax/internal/queue"
	"aurax/internal/stage"
)

// ErrRunBusy reports that a run was claimed by another worker.
var ErrRunBusy = errors.New("run already claimed")

// Submit resolves draft against the configured defaults and queues it.
// maxAttempts below 1 uses the configured ceiling.
func (m *Manager) Submit(ctx context.Context, draft generation.Draft, maxAttempts int) (*queue.Run, error) {
	req, err := draft.Resolve(RequestDefaults(m.cfg))
	if err != nil {
		return nil, err
	}
	if maxAttempts < 1 {
		maxAttempts = m.controller.cfg.MaxAttempts
	}
	run, err := m.store.NewRun(ctx, req, maxAttempts)
	if err != nil {
		return nil, err
	}
	m.logger.Info("run queued",
		logging.String(logging.FieldEventType, "run_queued"),
		logging.String(logging.FieldRunID, run.ID),
		logging.String("prompt", req.Prompt),
		logging.String("style", req.Style),
	)
	return run, nil
}

// Run submits draft and executes it on the calling goroutine. Cancelling ctx
// cancels the run.
func (m *Manager) Run(ctx context.Context, draft generation.Draft, maxAttempts int) (*queue.Run, generation.Result, error) {
	run, err := m.Submit(ctx, draft, maxAttempts)
	if err != nil {
		return nil, generation.Result{}, err
	}
	claimed, err := m.store.Claim(ctx, run.ID)
	if err != nil {
		return run, generation.Result{}, err
	}
	if claimed == nil {
		return run, generation.Result{}, fmt.Errorf("run %s: %w", run.ID, ErrRunBusy)
	}
	result, runErr := m.execute(ctx, m.logger, claimed, false)
	return claimed, result, runErr
}

// Get returns the stored record of a run.
func (m *Manager) Get(ctx context.Context, id string) (*queue.Run, error) {
	return m.store.Lookup(ctx, id)
}

// List returns runs filtered by status.
func (m *Manager) List(ctx context.Context, statuses ...generation.RunStatus) ([]*queue.Run, error) {
	return m.store.List(ctx, statuses...)
}

// Attempts returns the persisted attempt trail of a run.
func (m *Manager) Attempts(ctx context.Context, id string) ([]generation.AttemptRecord, error) {
	if _, err := m.store.Lookup(ctx, id); err != nil {
		return nil, err
	}
	return m.store.Attempts(ctx, id)
}

// Progress returns the live snapshot of a run executing in this process,
// or one rebuilt from the store otherwise.
func (m *Manager) Progress(ctx context.Context, id string) (progress.Snapshot, error) {
	if tracker, ok := m.registry.Get(id); ok {
		return tracker.Snapshot(), nil
	}
	run, err := m.store.Lookup(ctx, id)
	if err != nil {
		return progress.Snapshot{}, err
	}
	return SnapshotFromRun(run), nil
}

// Cancel requests cancellation of a run. Pending runs are cancelled at once;
// generating runs stop at the next stage boundary or when their worker sees
// the persisted flag.
func (m *Manager) Cancel(ctx context.Context, id string) (*queue.Run, error) {
	run, err := m.store.RequestCancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status == generation.StatusGenerating {
		if m.cancelActive(id) {
			m.logger.Info("cancelling in-flight run",
				logging.String(logging.FieldEventType, "run_cancel_requested"),
				logging.String(logging.FieldRunID, id),
			)
		}
	}
	return run, nil
}

// SnapshotFromRun builds a progress snapshot from a stored run.
func SnapshotFromRun(run *queue.Run) progress.Snapshot {
	if run == nil {
		return progress.Snapshot{}
	}
	snap := progress.Snapshot{
		RunID:        run.ID,
		Attempt:      run.Attempt,
		MaxAttempts:  run.MaxAttempts,
		Stage:        run.Stage,
		StageIndex:   stage.Index(stage.Name(run.Stage)),
		StageCount:   len(stage.AttemptOrder()),
		Status:       run.Status,
		Threshold:    run.Threshold,
		TotalCost:    run.TotalCost,
		QualityScore: run.QualityScore,
		Error:        run.ErrorMessage,
		UpdatedAt:    run.UpdatedAt,
	}
	if run.Status == generation.StatusCompleted || run.Status == generation.StatusBestEffort {
		snap.Stage = ""
		snap.StageIndex = snap.StageCount
	}
	return snap
}
