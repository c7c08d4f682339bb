package workflow

import (
	"context"
	"errors"
	"time"

	"aurax/internal/generation"
	"aurax/internal/logging"
	"aurax/internal/notifications"
	"aurax/internal/queue"
)

func (m *Manager) notifyRunResult(ctx context.Context, run *queue.Run, result generation.Result) {
	if m.notifier == nil {
		return
	}
	var event notifications.Event
	switch result.Status {
	case generation.StatusCompleted:
		event = notifications.EventRunCompleted
	case generation.StatusBestEffort:
		event = notifications.EventRunBestEffort
	case generation.StatusFailed:
		event = notifications.EventRunFailed
	default:
		return
	}
	payload := notifications.Payload{
		"prompt":    run.Request.Prompt,
		"run_id":    run.ID,
		"score":     result.QualityScore,
		"attempts":  result.AttemptsUsed,
		"cost":      result.TotalCost,
		"threshold": result.Threshold,
	}
	if result.Status == generation.StatusFailed {
		payload["kind"] = result.ErrorKind
		payload["error"] = result.ErrorMessage
	}
	m.publish(ctx, event, payload)
}

func (m *Manager) onRunStarted(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not get queue stats for start notification")
		} else {
			m.logger.Warn("queue stats unavailable for start notification; notification skipped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_stats_failed"),
				logging.String(logging.FieldErrorHint, "check run database access"),
				logging.String(logging.FieldImpact, "start notification will not be sent"),
			)
		}
		return
	}
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = time.Now()
	m.mu.Unlock()

	m.publish(ctx, notifications.EventQueueStarted, notifications.Payload{"count": stats.Active()})
}

func (m *Manager) checkQueueCompletion(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("queue stats unavailable for completion notification; notification skipped",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_stats_failed"),
			logging.String(logging.FieldErrorHint, "check run database access"),
			logging.String(logging.FieldImpact, "completion notification will not be sent"),
		)
		return
	}
	if stats.Active() > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	m.queueActive = false
	m.queueStart = time.Time{}
	m.mu.Unlock()

	duration := time.Duration(0)
	if !start.IsZero() {
		duration = time.Since(start)
	}
	m.publish(ctx, notifications.EventQueueCompleted, notifications.Payload{
		"processed": stats[generation.StatusCompleted] + stats[generation.StatusBestEffort],
		"failed":    stats[generation.StatusFailed],
		"duration":  duration,
	})
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, notification dropped", logging.String("event", string(event)))
		} else {
			m.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
		}
	}
}
