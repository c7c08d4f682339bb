package workflow

import (
	"context"
	"slices"

	"aurax/internal/logging"
	"aurax/internal/queue"
	"aurax/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	Workers     int
	ActiveRuns  []string
	LastError   string
	LastRunID   string
	QueueStats  queue.Stats
	StageHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:   m.running,
		Workers:   len(m.lanes),
		LastRunID: m.lastRun,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	for id := range m.active {
		summary.ActiveRuns = append(summary.ActiveRuns, id)
	}
	m.mu.RUnlock()
	slices.Sort(summary.ActiveRuns)

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	summary.StageHealth = m.controller.Stages().Health(ctx)
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastRun(id string) {
	m.mu.Lock()
	m.lastRun = id
	m.mu.Unlock()
}
