package stageexec

import (
	"context"
	"log/slog"
	"time"

	"aurax/internal/logging"
	"aurax/internal/retry"
	"aurax/internal/services"
	"aurax/internal/stage"
)

// Options controls how one stage is executed.
type Options struct {
	Logger  *slog.Logger
	Stage   stage.Name
	Timeout time.Duration
	Policy  retry.Policy
	Sleeper retry.Sleeper
}

// Execution describes what happened while running a stage. Cost is summed
// over every try, failed ones included.
type Execution struct {
	Tries   int
	Elapsed time.Duration
	Cost    float64
}

// Run executes call under the stage's retry policy and classifies the final
// failure: exhausted retries become services.ErrStageFailure, errors the
// policy refuses to retry become services.ErrNonRetryable, and cancellation
// passes through untouched. Each call receives the stage timeout. costOf,
// when set, reads the cost a try reported, whether or not it failed.
func Run[T any](
	ctx context.Context,
	opts Options,
	call func(ctx context.Context, timeout time.Duration) (T, error),
	costOf func(T) float64,
) (T, Execution, error) {
	stageCtx := services.WithStage(ctx, string(opts.Stage))
	logger := logging.WithContext(stageCtx, logging.LoggerFrom(ctx, opts.Logger, "pipeline"))

	logger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Duration("timeout", opts.Timeout),
		logging.Int("max_tries", opts.Policy.Attempts()),
	)

	start := time.Now()
	retryOpts := []retry.Option{
		retry.OnRetry(func(try int, delay time.Duration, err error) {
			logger.Warn(
				"stage try failed; retrying",
				logging.String(logging.FieldEventType, "stage_retry"),
				logging.Int("try", try),
				logging.Duration("backoff", delay),
				logging.String(logging.FieldErrorKind, services.KindOf(err)),
				logging.Error(err),
			)
		}),
	}
	if opts.Sleeper != nil {
		retryOpts = append(retryOpts, retry.WithSleeper(opts.Sleeper))
	}

	spent := 0.0
	value, outcome, err := retry.Do(stageCtx, opts.Policy, func(ctx context.Context, _ int) (T, error) {
		v, err := call(ctx, opts.Timeout)
		if costOf != nil {
			spent += costOf(v)
		}
		return v, err
	}, retryOpts...)

	exec := Execution{Tries: outcome.Tries, Elapsed: time.Since(start), Cost: spent}
	if err == nil {
		logger.Info(
			"stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Int("tries", exec.Tries),
			logging.Duration("elapsed", exec.Elapsed),
		)
		return value, exec, nil
	}

	var zero T
	if outcome.Cancelled {
		logger.Info(
			"stage cancelled",
			logging.String(logging.FieldEventType, "stage_cancelled"),
			logging.Int("tries", exec.Tries),
		)
		return zero, exec, err
	}

	marker := services.ErrStageFailure
	message := "retries exhausted"
	if outcome.NonRetryable {
		marker = services.ErrNonRetryable
		message = "non-retryable failure"
	}
	stageErr := &services.StageError{
		Marker:    marker,
		Stage:     string(opts.Stage),
		Operation: "invoke",
		Message:   message,
		Attempts:  exec.Tries,
		Err:       err,
	}
	logging.ErrorWithContext(
		logger,
		"stage failed",
		"stage_failure",
		logging.String(logging.FieldErrorKind, services.KindOf(stageErr)),
		logging.String("cause_kind", services.KindOf(err)),
		logging.Int("tries", exec.Tries),
		logging.Float64("cost", exec.Cost),
		logging.String(logging.FieldErrorHint, hintFor(err)),
		logging.Error(err),
	)
	return zero, exec, stageErr
}

func hintFor(err error) string {
	switch services.KindOf(err) {
	case services.KindStageTimeout:
		return "collaborator exceeded its timeout; raise stages.<name>.timeout_seconds or check service load"
	case services.KindResourceExhausted:
		return "inference service ran out of memory; reduce duration or free GPU capacity"
	case services.KindConfiguration:
		return "check collaborator configuration"
	default:
		return "check collaborator service logs"
	}
}
