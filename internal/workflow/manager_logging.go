package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"aurax/internal/logging"
	"aurax/internal/queue"
)

func (m *Manager) laneLogger(lane *laneState) *slog.Logger {
	if m.logger == nil {
		return logging.NewNop()
	}
	return logging.NewComponentLogger(m.logger, fmt.Sprintf("workflow-%s", lane.name))
}

// runLogger returns a logger that also writes to the run's own log file.
// The returned func closes the file.
func (m *Manager) runLogger(ctx context.Context, laneLogger *slog.Logger, run *queue.Run) (*slog.Logger, func()) {
	base := laneLogger
	if base == nil {
		base = m.logger
	}

	if m.cfg == nil || m.cfg.Paths.LogDir == "" {
		return base, func() {}
	}
	runLog, err := logging.OpenRunLog(base, filepath.Join(m.cfg.Paths.LogDir, "runs"), run.ID)
	if err != nil {
		base.Warn("run log unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "run_log_unavailable"),
			logging.String(logging.FieldImpact, "run output is only in the daemon log"),
		)
		return base, func() {}
	}
	if err := m.store.SetLogPath(context.WithoutCancel(ctx), run.ID, runLog.Path); err != nil {
		base.Debug("failed to record run log path", logging.Error(err))
	}
	return runLog.Logger, func() {
		if err := runLog.Close(); err != nil {
			base.Debug("failed to close run log", logging.Error(err))
		}
	}
}
