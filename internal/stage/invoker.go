package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aurax/internal/generation"
	"aurax/internal/services"
)

// Invoker executes single collaborator calls under a per-call timeout. It
// returns typed values and never touches run state.
type Invoker struct {
	set Set
	now func() time.Time
}

// NewInvoker validates the set, fills optional capabilities, and returns an
// invoker bound to it.
func NewInvoker(set Set, enhancementSuffix string) (*Invoker, error) {
	set = set.WithDefaults(enhancementSuffix)
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &Invoker{set: set, now: time.Now}, nil
}

// Set returns the collaborator set the invoker calls.
func (i *Invoker) Set() Set {
	return i.set
}

// CanSeparateStems reports whether a stem separator is configured.
func (i *Invoker) CanSeparateStems() bool {
	return i.set.Stems != nil
}

// AnalyzeIntent runs intent analysis.
func (i *Invoker) AnalyzeIntent(ctx context.Context, timeout time.Duration, prompt string) (IntentOutput, error) {
	out, elapsed, err := invoke(ctx, i.now, IntentAnalysis, timeout, func(ctx context.Context) (IntentOutput, error) {
		return i.set.Intent.AnalyzeIntent(ctx, prompt)
	})
	if err != nil {
		return IntentOutput{Cost: nonNegative(out.Cost)}, err
	}
	out.Cost = nonNegative(out.Cost)
	if out.ProcessingTime <= 0 {
		out.ProcessingTime = elapsed
	}
	return out, nil
}

// Compose runs generation.
func (i *Invoker) Compose(ctx context.Context, timeout time.Duration, params ComposeParams) (Output, error) {
	return i.payloadStage(ctx, Generation, timeout, func(ctx context.Context) (Output, error) {
		return i.set.Composer.Compose(ctx, params)
	})
}

// Arrange runs arrangement.
func (i *Invoker) Arrange(ctx context.Context, timeout time.Duration, payload generation.Payload, style string) (Output, error) {
	return i.payloadStage(ctx, Arrangement, timeout, func(ctx context.Context) (Output, error) {
		return i.set.Arranger.Arrange(ctx, payload, style)
	})
}

// Mix runs mixing.
func (i *Invoker) Mix(ctx context.Context, timeout time.Duration, payload generation.Payload) (Output, error) {
	return i.payloadStage(ctx, Mixing, timeout, func(ctx context.Context) (Output, error) {
		return i.set.Mixer.Mix(ctx, payload)
	})
}

// Master runs mastering.
func (i *Invoker) Master(ctx context.Context, timeout time.Duration, payload generation.Payload) (Output, error) {
	return i.payloadStage(ctx, Mastering, timeout, func(ctx context.Context) (Output, error) {
		return i.set.Masterer.Master(ctx, payload)
	})
}

// EvaluateQuality runs quality evaluation. Scores are clamped to [0, 1].
func (i *Invoker) EvaluateQuality(ctx context.Context, timeout time.Duration, payload generation.Payload, prompt string) (EvaluationOutput, error) {
	out, elapsed, err := invoke(ctx, i.now, QualityEvaluation, timeout, func(ctx context.Context) (EvaluationOutput, error) {
		return i.set.Evaluator.EvaluateQuality(ctx, payload, prompt)
	})
	if err != nil {
		return EvaluationOutput{Cost: nonNegative(out.Cost)}, err
	}
	out.Assessment = out.Assessment.Clamp()
	out.Cost = nonNegative(out.Cost)
	if out.ProcessingTime <= 0 {
		out.ProcessingTime = elapsed
	}
	return out, nil
}

// EnhancePrompt runs prompt enhancement. An empty enhanced prompt is
// reported as a failure so the caller can fall back.
func (i *Invoker) EnhancePrompt(ctx context.Context, timeout time.Duration, original, feedback string) (EnhanceOutput, error) {
	out, elapsed, err := invoke(ctx, i.now, PromptEnhancement, timeout, func(ctx context.Context) (EnhanceOutput, error) {
		return i.set.Enhancer.EnhancePrompt(ctx, original, feedback)
	})
	if err != nil {
		return EnhanceOutput{Cost: nonNegative(out.Cost)}, err
	}
	if out.Prompt == "" {
		return EnhanceOutput{Cost: nonNegative(out.Cost)}, services.Wrap(services.ErrValidation, string(PromptEnhancement), "enhance prompt", "collaborator returned an empty prompt", nil)
	}
	out.Cost = nonNegative(out.Cost)
	if out.ProcessingTime <= 0 {
		out.ProcessingTime = elapsed
	}
	return out, nil
}

// SeparateStems runs stem separation.
func (i *Invoker) SeparateStems(ctx context.Context, timeout time.Duration, payload generation.Payload) (StemsOutput, error) {
	if i.set.Stems == nil {
		return StemsOutput{}, services.Wrap(services.ErrConfiguration, string(StemSeparation), "separate stems", "no stem separation collaborator configured", nil)
	}
	out, elapsed, err := invoke(ctx, i.now, StemSeparation, timeout, func(ctx context.Context) (StemsOutput, error) {
		return i.set.Stems.SeparateStems(ctx, payload)
	})
	if err != nil {
		return StemsOutput{Cost: nonNegative(out.Cost)}, err
	}
	out.Cost = nonNegative(out.Cost)
	if out.ProcessingTime <= 0 {
		out.ProcessingTime = elapsed
	}
	return out, nil
}

func (i *Invoker) payloadStage(ctx context.Context, name Name, timeout time.Duration, call func(context.Context) (Output, error)) (Output, error) {
	out, elapsed, err := invoke(ctx, i.now, name, timeout, call)
	if err != nil {
		return Output{Cost: nonNegative(out.Cost)}, err
	}
	if out.Payload.Empty() {
		return Output{Cost: nonNegative(out.Cost)}, services.Wrap(services.ErrTransient, string(name), "invoke", "collaborator returned an empty payload", nil)
	}
	out.Cost = nonNegative(out.Cost)
	if out.ProcessingTime <= 0 {
		out.ProcessingTime = elapsed
	}
	return out, nil
}

type callResult[T any] struct {
	value T
	err   error
}

// invoke runs call on its own goroutine so a collaborator that ignores its
// context still cannot hold the stage past timeout. A failed call still
// returns whatever the collaborator produced so billed cost is not lost.
func invoke[T any](ctx context.Context, now func() time.Time, name Name, timeout time.Duration, call func(context.Context) (T, error)) (T, time.Duration, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, 0, services.Cancelled(err)
	}

	callCtx := services.WithStage(ctx, string(name))
	cancel := func() {}
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(callCtx, timeout)
	}
	defer cancel()

	start := now()
	done := make(chan callResult[T], 1)
	go func() {
		v, err := call(callCtx)
		done <- callResult[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		elapsed := now().Sub(start)
		if res.err == nil {
			return res.value, elapsed, nil
		}
		return res.value, elapsed, classify(ctx, callCtx, name, timeout, res.err)
	case <-callCtx.Done():
		// Prefer a result that raced the deadline.
		select {
		case res := <-done:
			if res.err == nil {
				return res.value, now().Sub(start), nil
			}
			return res.value, now().Sub(start), classify(ctx, callCtx, name, timeout, callCtx.Err())
		default:
		}
		return zero, now().Sub(start), classify(ctx, callCtx, name, timeout, callCtx.Err())
	}
}

func classify(parent, callCtx context.Context, name Name, timeout time.Duration, err error) error {
	if perr := parent.Err(); perr != nil {
		return services.Cancelled(perr)
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrStageTimeout, string(name), "invoke", fmt.Sprintf("exceeded %s", timeout), err)
	}
	return err
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
