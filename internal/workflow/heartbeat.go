package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"aurax/internal/logging"
	"aurax/internal/queue"
)

// HeartbeatMonitor manages run heartbeats and stale run reclamation.
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStaleRuns returns generating runs whose heartbeat is older than the
// timeout to the queue.
func (h *HeartbeatMonitor) ReclaimStaleRuns(ctx context.Context, logger *slog.Logger) error {
	if h.heartbeatTimeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale runs",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "runs_reclaimed"),
		)
	}
	return nil
}

// StartLoop refreshes the heartbeat of runID until ctx ends. It also watches
// the persisted cancel flag so cancellations requested through another
// process reach the worker; cancel is invoked when the flag is seen.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, runID string, cancel context.CancelCauseFunc) {
	defer wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String("component", "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, runID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
				continue
			}
			run, err := h.store.GetByID(ctx, runID)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Warn("cancel flag check failed", logging.Error(err))
				}
				continue
			}
			if run != nil && run.CancelRequested && cancel != nil {
				logger.Info("cancel flag observed; stopping run",
					logging.String(logging.FieldEventType, "run_cancel_observed"),
				)
				cancel(errCancelRequested)
				return
			}
		}
	}
}
