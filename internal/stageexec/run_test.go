package stageexec_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"aurax/internal/logging"
	"aurax/internal/retry"
	"aurax/internal/services"
	"aurax/internal/stage"
	"aurax/internal/stageexec"
)

func noSleep(context.Context, time.Duration) error { return nil }

func options(maxTries int) stageexec.Options {
	return stageexec.Options{
		Logger:  logging.NewNop(),
		Stage:   stage.Generation,
		Timeout: 5 * time.Second,
		Policy:  retry.Policy{MaxAttempts: maxTries, InitialInterval: time.Second, MaxInterval: time.Minute, Multiplier: 2, NonRetryable: []error{services.ErrResourceExhausted}},
		Sleeper: noSleep,
	}
}

func TestRunPassesTimeoutAndSucceeds(t *testing.T) {
	var seen time.Duration
	value, exec, err := stageexec.Run(context.Background(), options(3), func(ctx context.Context, timeout time.Duration) (string, error) {
		seen = timeout
		if stageName, _ := services.StageFromContext(ctx); stageName != "generation" {
			t.Errorf("stage missing from context: %q", stageName)
		}
		return "done", nil
	}, nil)
	if err != nil || value != "done" {
		t.Fatalf("value=%q err=%v", value, err)
	}
	if seen != 5*time.Second || exec.Tries != 1 {
		t.Fatalf("timeout=%s tries=%d", seen, exec.Tries)
	}
}

func TestRunEscalatesExhaustedRetriesToStageFailure(t *testing.T) {
	calls := 0
	_, exec, err := stageexec.Run(context.Background(), options(3), func(context.Context, time.Duration) (int, error) {
		calls++
		return 0, services.Wrap(services.ErrStageTimeout, "generation", "invoke", "exceeded", context.DeadlineExceeded)
	}, nil)
	if calls != 3 || exec.Tries != 3 {
		t.Fatalf("calls=%d tries=%d", calls, exec.Tries)
	}
	if !errors.Is(err, services.ErrStageFailure) || !errors.Is(err, services.ErrStageTimeout) {
		t.Fatalf("expected stage failure wrapping timeout, got %v", err)
	}
	d := services.Details(err)
	if d.Stage != "generation" || d.Attempts != 3 {
		t.Fatalf("unexpected details %+v", d)
	}
}

func TestRunClassifiesNonRetryable(t *testing.T) {
	calls := 0
	_, _, err := stageexec.Run(context.Background(), options(3), func(context.Context, time.Duration) (int, error) {
		calls++
		return 0, services.Wrap(services.ErrResourceExhausted, "generation", "compose", "out of memory", nil)
	}, nil)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, services.ErrNonRetryable) || errors.Is(err, services.ErrStageFailure) {
		t.Fatalf("expected non-retryable failure, got %v", err)
	}
	if services.KindOf(err) != services.KindNonRetryable {
		t.Fatalf("kind = %q", services.KindOf(err))
	}
}

func TestRunPassesCancellationThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := stageexec.Run(ctx, options(3), func(ctx context.Context, _ time.Duration) (int, error) {
		return 0, services.Cancelled(ctx.Err())
	}, nil)
	if !services.IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if errors.Is(err, services.ErrStageFailure) {
		t.Fatal("cancellation must not be reported as stage failure")
	}
}

type priced struct {
	cost float64
}

func TestRunSumsCostAcrossFailedTries(t *testing.T) {
	calls := 0
	value, exec, err := stageexec.Run(context.Background(), options(3), func(context.Context, time.Duration) (priced, error) {
		calls++
		if calls < 3 {
			return priced{cost: 0.25}, services.Wrap(services.ErrTransient, "generation", "compose", "busy", nil)
		}
		return priced{cost: 0.5}, nil
	}, func(v priced) float64 { return v.cost })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if value.cost != 0.5 || exec.Tries != 3 {
		t.Fatalf("value=%+v tries=%d", value, exec.Tries)
	}
	if exec.Cost != 1.0 {
		t.Fatalf("cost = %v, want 1.0", exec.Cost)
	}
}

func TestRunKeepsCostOfExhaustedTries(t *testing.T) {
	_, exec, err := stageexec.Run(context.Background(), options(2), func(context.Context, time.Duration) (priced, error) {
		return priced{cost: 0.125}, services.Wrap(services.ErrTransient, "generation", "compose", "busy", nil)
	}, func(v priced) float64 { return v.cost })
	if !errors.Is(err, services.ErrStageFailure) {
		t.Fatalf("expected stage failure, got %v", err)
	}
	if exec.Cost != 0.25 {
		t.Fatalf("cost = %v, want 0.25", exec.Cost)
	}
}
