package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aurax/internal/config"
	"aurax/internal/generation"
	"aurax/internal/logging"
	"aurax/internal/pipeline"
	"aurax/internal/progress"
	"aurax/internal/services"
	"aurax/internal/stage"
)

// ControllerConfig holds the regeneration loop parameters.
type ControllerConfig struct {
	MaxAttempts       int
	ThresholdStep     float64
	EnhancementSuffix string
}

// ControllerConfigFrom extracts loop parameters from the pipeline config.
func ControllerConfigFrom(cfg *config.Config) ControllerConfig {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	return ControllerConfig{
		MaxAttempts:       cfg.Pipeline.MaxAttempts,
		ThresholdStep:     cfg.Pipeline.ThresholdStep,
		EnhancementSuffix: cfg.Pipeline.EnhancementSuffix,
	}
}

// RunOptions carries per-run hooks. All fields are optional.
type RunOptions struct {
	RunID       string
	MaxAttempts int
	Tracker     *progress.Tracker
	// OnAttempt receives each finished attempt record in order.
	OnAttempt func(generation.AttemptRecord)
	// OnProgress receives the attempt state whenever it changes.
	OnProgress func(generation.AttemptState)
}

// Controller owns the bounded regeneration loop around the orchestrator.
type Controller struct {
	orch   *pipeline.Orchestrator
	cfg    ControllerConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewController builds a controller over orch.
func NewController(orch *pipeline.Orchestrator, cfg ControllerConfig, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.ThresholdStep < 0 {
		cfg.ThresholdStep = 0
	}
	return &Controller{
		orch:   orch,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "controller"),
		now:    time.Now,
	}
}

// Run drives req to a terminal result. The returned Result is always
// populated; a non-nil error accompanies failed and cancelled runs.
//
// A run ends completed when an attempt scores at or above the active
// threshold and best_effort when the attempt ceiling is reached first. A
// stage failure aborts the run without consuming a regeneration attempt.
func (c *Controller) Run(ctx context.Context, req generation.Request, opts RunOptions) (generation.Result, error) {
	start := c.now()
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = c.cfg.MaxAttempts
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = progress.NewTracker(opts.RunID, maxAttempts, req.QualityThreshold)
	}
	if opts.RunID != "" {
		ctx = services.WithRunID(ctx, opts.RunID)
	}

	r := &runState{
		ctl:       c,
		opts:      opts,
		tracker:   tracker,
		state:     generation.NewAttemptState(maxAttempts, req.QualityThreshold),
		result:    generation.Result{RunID: opts.RunID},
		wantStems: req.SeparateStems,
		start:     start,
	}

	if err := req.Validate(); err != nil {
		return r.fail(ctx, err), err
	}

	current := req
	for {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, services.Cancelled(err)), services.Cancelled(err)
		}
		attemptCtx := services.WithAttempt(ctx, r.state.Attempt)
		logger := logging.WithContext(attemptCtx, c.loggerFor(ctx))
		r.state.CurrentStage = ""
		r.publish()

		out, err := c.orch.RunAttempt(attemptCtx, current, r)
		record := generation.AttemptRecord{
			Attempt:    r.state.Attempt,
			Prompt:     current.Prompt,
			Style:      current.Style,
			Threshold:  r.state.Threshold,
			Intent:     out.Intent,
			Stages:     out.Stages,
			Assessment: out.Assessment,
		}
		if err != nil {
			record.Outcome = generation.OutcomeAborted
			if services.IsCancelled(err) {
				record.Outcome = generation.OutcomeInterrupted
			}
			r.appendAttempt(record)
			return r.fail(ctx, err), err
		}

		score := out.Assessment.Score
		r.lastScore = &score
		switch {
		case score >= r.state.Threshold:
			record.Outcome = generation.OutcomeAccepted
			logger.Info("quality gate passed", logging.Args(append(
				logging.DecisionAttrs("quality_gate", "accepted", fmt.Sprintf("score %.3f >= threshold %.3f", score, r.state.Threshold)),
				logging.String(logging.FieldEventType, "quality_gate"),
				logging.Float64("score", score),
			)...)...)
			return r.finish(attemptCtx, generation.StatusCompleted, record, out.Final)
		case r.state.CeilingReached():
			record.Outcome = generation.OutcomeCeiling
			logger.Warn("quality gate failed at attempt ceiling; returning best effort", logging.Args(append(
				logging.DecisionAttrs("quality_gate", "best_effort", fmt.Sprintf("score %.3f < threshold %.3f with no attempts left", score, r.state.Threshold)),
				logging.String(logging.FieldEventType, "quality_gate"),
				logging.Float64("score", score),
				logging.String(logging.FieldImpact, "result is below the requested quality bar"),
			)...)...)
			return r.finish(attemptCtx, generation.StatusBestEffort, record, out.Final)
		}

		record.Outcome = generation.OutcomeRegenerate
		logger.Info("quality gate failed; regenerating", logging.Args(append(
			logging.DecisionAttrs("quality_gate", "regenerate", fmt.Sprintf("score %.3f < threshold %.3f", score, r.state.Threshold)),
			logging.String(logging.FieldEventType, "quality_gate"),
			logging.Float64("score", score),
		)...)...)

		basis := current.Prompt
		if out.Intent != nil && strings.TrimSpace(out.Intent.EnhancedPrompt) != "" {
			basis = out.Intent.EnhancedPrompt
		}
		prompt, err := c.enhance(attemptCtx, logger, r, basis, out.Assessment.Feedback, &record)
		if err != nil {
			if services.IsCancelled(err) {
				record.Outcome = generation.OutcomeInterrupted
			} else {
				record.Outcome = generation.OutcomeAborted
			}
			r.appendAttempt(record)
			return r.fail(ctx, err), err
		}
		r.appendAttempt(record)

		next := current.WithPrompt(prompt)
		if out.Intent != nil {
			next = next.WithStyle(out.Intent.AlternativeStyle)
		}
		current = next
		r.state.Advance(c.cfg.ThresholdStep)
	}
}

// Stages returns the collaborator set the controller drives.
func (c *Controller) Stages() stage.Set {
	return c.orch.Invoker().Set()
}

func (c *Controller) loggerFor(ctx context.Context) *slog.Logger {
	return logging.LoggerFrom(ctx, c.logger, "controller")
}

// enhance runs prompt enhancement for the next attempt. Exhausted retries
// fall back to the fixed quality suffix; cancellation and non-retryable
// failures are returned.
func (c *Controller) enhance(ctx context.Context, logger *slog.Logger, r *runState, prompt, feedback string, record *generation.AttemptRecord) (string, error) {
	enhanced, sr, err := c.orch.EnhancePrompt(ctx, prompt, feedback, r)
	if sr.Stage != "" {
		record.Stages = append(record.Stages, sr)
	}
	if err == nil {
		return enhanced, nil
	}
	if services.IsCancelled(err) || errors.Is(err, services.ErrNonRetryable) {
		return "", err
	}
	logging.WarnWithContext(logger, "prompt enhancement failed; appending quality suffix", "prompt_enhancement_fallback",
		logging.String(logging.FieldErrorKind, services.KindOf(err)),
		logging.String(logging.FieldImpact, "next attempt uses the suffixed prompt"),
		logging.Error(err),
	)
	return stage.AppendSuffix(prompt, c.cfg.EnhancementSuffix), nil
}

// runState is the per-run bookkeeping. It is owned by the goroutine
// executing Controller.Run and doubles as the orchestrator's observer.
type runState struct {
	ctl       *Controller
	opts      RunOptions
	tracker   *progress.Tracker
	state     generation.AttemptState
	result    generation.Result
	lastScore *float64
	wantStems bool
	start     time.Time
}

func (r *runState) StageStarted(name stage.Name) {
	if stage.Index(name) > 0 {
		r.state.CurrentStage = string(name)
	}
	r.publish()
}

func (r *runState) StageFinished(result generation.StageResult) {
	r.state.AddCost(result.Cost)
	r.publish()
}

func (r *runState) publish() {
	r.tracker.Observe(r.state)
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(r.state)
	}
}

func (r *runState) appendAttempt(record generation.AttemptRecord) {
	r.result.Attempts = append(r.result.Attempts, record)
	if r.opts.OnAttempt != nil {
		r.opts.OnAttempt(record)
	}
}

func (r *runState) finish(ctx context.Context, status generation.RunStatus, record generation.AttemptRecord, final generation.Payload) (generation.Result, error) {
	stems, stemResult, stemErr := r.ctl.separateStems(ctx, r, final)
	if stemResult.Stage != "" {
		record.Stages = append(record.Stages, stemResult)
	}
	if stemErr != nil && services.IsCancelled(stemErr) {
		record.Outcome = generation.OutcomeInterrupted
		r.appendAttempt(record)
		return r.fail(ctx, stemErr), stemErr
	}
	r.appendAttempt(record)

	r.result.Status = status
	r.result.Payload = final
	r.result.Stems = stems
	r.result.QualityScore = *r.lastScore
	r.finalize()
	r.tracker.Finish(status, r.state, r.lastScore, "")
	return r.result, nil
}

func (r *runState) fail(ctx context.Context, err error) generation.Result {
	status := generation.StatusFailed
	if services.IsCancelled(err) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		status = generation.StatusCancelled
	}
	details := services.Details(err)
	r.result.Status = status
	r.result.ErrorKind = details.Kind
	r.result.ErrorMessage = err.Error()
	if r.lastScore != nil {
		r.result.QualityScore = *r.lastScore
	}
	r.finalize()

	logger := logging.WithContext(ctx, r.ctl.loggerFor(ctx))
	if status == generation.StatusCancelled {
		logger.Info("run cancelled",
			logging.String(logging.FieldEventType, "run_cancelled"),
			logging.Int("attempts_used", r.result.AttemptsUsed),
		)
	} else {
		logging.ErrorWithContext(logger, "run failed", "run_failed",
			logging.String(logging.FieldErrorKind, details.Kind),
			logging.Int("attempts_used", r.result.AttemptsUsed),
			logging.Float64("total_cost", r.result.TotalCost),
			logging.Error(err),
		)
	}
	r.tracker.Finish(status, r.state, r.lastScore, r.result.ErrorMessage)
	return r.result
}

func (r *runState) finalize() {
	r.result.Threshold = r.state.Threshold
	r.result.AttemptsUsed = len(r.result.Attempts)
	r.result.TotalCost = r.result.SumCost()
	r.state.TotalCost = r.result.TotalCost
	r.result.Elapsed = r.ctl.now().Sub(r.start)
}

// separateStems splits the accepted payload into stems when the request asks
// for them. Failures other than cancellation are logged and leave the run's
// outcome unchanged.
func (c *Controller) separateStems(ctx context.Context, r *runState, final generation.Payload) ([]generation.Stem, generation.StageResult, error) {
	if !r.wantStems {
		return nil, generation.StageResult{}, nil
	}
	if !c.orch.Invoker().CanSeparateStems() {
		c.loggerFor(ctx).Warn("stem separation requested but no separator is configured",
			logging.String(logging.FieldEventType, "stems_unavailable"),
			logging.String(logging.FieldImpact, "result will not include stems"),
		)
		return nil, generation.StageResult{}, nil
	}
	stems, sr, err := c.orch.SeparateStems(ctx, final, r)
	if err != nil && !services.IsCancelled(err) {
		logging.WarnWithContext(logging.WithContext(ctx, c.loggerFor(ctx)), "stem separation failed", "stems_failed",
			logging.String(logging.FieldErrorKind, services.KindOf(err)),
			logging.String(logging.FieldImpact, "result will not include stems"),
			logging.Error(err),
		)
	}
	return stems, sr, err
}
