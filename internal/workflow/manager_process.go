package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"aurax/internal/filestore"
	"aurax/internal/generation"
	"aurax/internal/logging"
	"aurax/internal/progress"
	"aurax/internal/queue"
	"aurax/internal/services"
)

func (m *Manager) processRun(ctx context.Context, laneLogger *slog.Logger, run *queue.Run) {
	_, _ = m.execute(ctx, laneLogger, run, true)
}

// execute drives a claimed run to a terminal state and persists everything
// it produces. When requeueOnShutdown is set, a run interrupted by ctx
// ending (rather than by a cancel request) goes back to pending.
func (m *Manager) execute(parent context.Context, laneLogger *slog.Logger, run *queue.Run, requeueOnShutdown bool) (generation.Result, error) {
	runCtx, cancel := context.WithCancelCause(services.WithRunID(parent, run.ID))
	defer cancel(nil)

	runLog, closeLog := m.runLogger(runCtx, laneLogger, run)
	defer closeLog()
	runCtx = logging.ContextWithLogger(runCtx, runLog)
	logger := logging.WithContext(runCtx, runLog)
	persistCtx := context.WithoutCancel(runCtx)

	tracker := progress.NewTracker(run.ID, run.MaxAttempts, run.Request.QualityThreshold)
	m.trackActive(run.ID, &activeRun{tracker: tracker, cancel: cancel, started: time.Now()})
	defer m.untrackActive(run.ID)

	if run.CancelRequested {
		cancel(errCancelRequested)
	}

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.String("prompt", run.Request.Prompt),
		logging.Int("max_attempts", run.MaxAttempts),
		logging.Float64("threshold", run.Request.QualityThreshold),
	)

	var hbWG sync.WaitGroup
	hbCtx, stopHeartbeat := context.WithCancel(runCtx)
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, run.ID, cancel)

	var lastScore *float64
	result, err := m.controller.Run(runCtx, run.Request, RunOptions{
		RunID:       run.ID,
		MaxAttempts: run.MaxAttempts,
		Tracker:     tracker,
		OnAttempt: func(record generation.AttemptRecord) {
			if record.Assessment != nil {
				score := record.Assessment.Score
				lastScore = &score
			}
			if err := m.store.AppendAttempt(persistCtx, run.ID, record); err != nil {
				logger.Warn("failed to persist attempt record",
					logging.Error(err),
					logging.Int("attempt", record.Attempt),
					logging.String(logging.FieldEventType, "attempt_persist_failed"),
					logging.String(logging.FieldImpact, "attempt trail in the store may be incomplete"),
				)
			}
		},
		OnProgress: func(state generation.AttemptState) {
			if err := m.store.UpdateProgress(persistCtx, run.ID, queue.Progress{
				Attempt:      state.Attempt,
				Stage:        state.CurrentStage,
				Threshold:    state.Threshold,
				TotalCost:    state.TotalCost,
				QualityScore: lastScore,
			}); err != nil {
				logger.Debug("progress update failed", logging.Error(err))
			}
		},
	})
	stopHeartbeat()
	hbWG.Wait()

	userCancelled := errors.Is(context.Cause(runCtx), errCancelRequested)
	if result.Status == generation.StatusCancelled && !userCancelled && requeueOnShutdown && parent.Err() != nil {
		if rqErr := m.store.Requeue(persistCtx, run.ID); rqErr != nil {
			logger.Error("failed to requeue interrupted run",
				logging.Error(rqErr),
				logging.String(logging.FieldEventType, "run_requeue_failed"),
				logging.String(logging.FieldErrorHint, "the run will be reset on next start"),
			)
		} else {
			logger.Info("run interrupted by shutdown; returned to queue",
				logging.String(logging.FieldEventType, "run_requeued"),
			)
		}
		return result, err
	}
	if result.Status == generation.StatusCancelled && userCancelled {
		result.ErrorKind = services.KindCancelled
		result.ErrorMessage = queue.CancelReason
	}

	m.storeOutputs(persistCtx, logger, run.ID, &result)
	if finishErr := m.store.Finish(persistCtx, run.ID, result); finishErr != nil {
		logger.Error("failed to persist run result",
			logging.Error(finishErr),
			logging.String(logging.FieldEventType, "run_persist_failed"),
			logging.String(logging.FieldErrorHint, "check run database access"),
		)
		m.setLastError(finishErr)
	}
	m.setLastRun(run.ID)
	if result.Status == generation.StatusFailed && err != nil {
		m.setLastError(err)
	}

	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.String("status", string(result.Status)),
		logging.Int("attempts_used", result.AttemptsUsed),
		logging.Float64("total_cost", result.TotalCost),
		logging.Float64("quality_score", result.QualityScore),
		logging.Duration("elapsed", result.Elapsed),
	)
	m.notifyRunResult(persistCtx, run, result)
	m.checkQueueCompletion(persistCtx)
	return result, err
}

// storeOutputs writes the final payload and any stems to the file store and
// records their references on result. Storage failures leave the run's
// outcome unchanged.
func (m *Manager) storeOutputs(ctx context.Context, logger *slog.Logger, runID string, result *generation.Result) {
	if result.Status != generation.StatusCompleted && result.Status != generation.StatusBestEffort {
		return
	}
	if m.files == nil || len(result.Payload.Data) == 0 {
		if result.PayloadRef == "" {
			result.PayloadRef = result.Payload.URL
		}
	} else {
		ref, err := m.files.Put(ctx, filestore.MasterKey(runID, result.Payload), result.Payload)
		if err != nil {
			logging.WarnWithContext(logger, "failed to store final payload", "payload_store_failed",
				logging.String("backend", m.files.Backend()),
				logging.String(logging.FieldImpact, "result keeps only its upstream reference"),
				logging.Error(err),
			)
			result.PayloadRef = result.Payload.URL
		} else {
			result.PayloadRef = ref
			logger.Info("final payload stored",
				logging.String(logging.FieldEventType, "payload_stored"),
				logging.String("backend", m.files.Backend()),
				logging.String("ref", ref),
			)
		}
	}

	if m.files == nil {
		return
	}
	for i := range result.Stems {
		stem := &result.Stems[i]
		if len(stem.Payload.Data) == 0 {
			continue
		}
		ref, err := m.files.Put(ctx, filestore.StemKey(runID, stem.Name, stem.Payload), stem.Payload)
		if err != nil {
			logging.WarnWithContext(logger, "failed to store stem", "stem_store_failed",
				logging.String("stem", stem.Name),
				logging.String(logging.FieldImpact, "stem is not persisted"),
				logging.Error(err),
			)
			continue
		}
		stem.Payload.URL = ref
	}
}

func (m *Manager) trackActive(id string, run *activeRun) {
	m.registry.Add(id, run.tracker)
	m.mu.Lock()
	m.active[id] = run
	m.mu.Unlock()
}

func (m *Manager) untrackActive(id string) {
	m.registry.Remove(id)
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// cancelActive stops a run executing in this process. It reports whether
// the run was found.
func (m *Manager) cancelActive(id string) bool {
	m.mu.RLock()
	run, ok := m.active[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	run.cancel(errCancelRequested)
	return true
}
