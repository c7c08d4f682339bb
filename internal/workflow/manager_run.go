package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aurax/internal/logging"
	"aurax/internal/services"
)

// Start begins background processing. Runs left in flight by a previous
// process are returned to pending first.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.lanes) == 0 {
		m.mu.Unlock()
		return errors.New("workflow lanes not configured")
	}

	if reset, err := m.store.ResetInFlight(ctx); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("reset in-flight runs: %w", err)
	} else if reset > 0 {
		m.logger.Info("returned interrupted runs to the queue",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "runs_requeued"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for _, lane := range m.lanes {
		lane.logger = m.laneLogger(lane)
	}
	lanes := append([]*laneState(nil), m.lanes...)
	m.wg.Add(len(lanes))
	m.mu.Unlock()

	for _, lane := range lanes {
		go m.runLane(runCtx, lane)
	}
	return nil
}

// Stop terminates background processing and waits for in-flight runs to be
// handed back to the queue.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runLane(ctx context.Context, lane *laneState) {
	defer m.wg.Done()
	logger := lane.logger
	if logger == nil {
		logger = m.logger
	}
	ctx = services.WithLane(ctx, lane.name)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if lane.runReclaimer {
			if err := m.heartbeat.ReclaimStaleRuns(ctx, logger); err != nil && ctx.Err() == nil {
				logger.Warn("reclaim stale runs failed; stuck runs may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check run database access"),
				)
			}
		}

		run, err := m.store.NextPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleNextRunError(ctx, logger, err)
			continue
		}
		if run == nil {
			m.waitForRunOrShutdown(ctx)
			continue
		}

		m.onRunStarted(ctx)
		m.processRun(ctx, logger, run)
	}
}

func (m *Manager) handleNextRunError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to fetch next run",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check run database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForRunOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

func laneName(i int) string {
	return fmt.Sprintf("worker-%d", i+1)
}

