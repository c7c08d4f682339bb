package workflow

import (
	"context"
	"log/slog"
	"time"

	"aurax/internal/config"
	"aurax/internal/generation"
	"aurax/internal/progress"
)

type laneState struct {
	name         string
	logger       *slog.Logger
	runReclaimer bool
}

// activeRun is a run executing in this process.
type activeRun struct {
	tracker *progress.Tracker
	cancel  context.CancelCauseFunc
	started time.Time
}

// RequestDefaults derives request defaults from the pipeline config.
func RequestDefaults(cfg *config.Config) generation.Defaults {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	return generation.Defaults{
		Style:            cfg.Pipeline.DefaultStyle,
		Duration:         cfg.Pipeline.DefaultDuration,
		QualityThreshold: cfg.Pipeline.QualityThreshold,
		Temperature:      cfg.Pipeline.Temperature,
		TopK:             cfg.Pipeline.TopK,
	}
}
