package pipeline

import (
	"context"
	"log/slog"
	"time"

	"aurax/internal/generation"
	"aurax/internal/logging"
	"aurax/internal/retry"
	"aurax/internal/services"
	"aurax/internal/stage"
	"aurax/internal/stageexec"
)

// Observer is notified as stages start and finish. Calls happen on the
// goroutine running the attempt.
type Observer interface {
	StageStarted(name stage.Name)
	StageFinished(result generation.StageResult)
}

// AttemptOutput is everything one attempt produced. On failure it holds the
// partial trail up to and including the failed stage.
type AttemptOutput struct {
	Intent     *generation.Intent
	Stages     []generation.StageResult
	Final      generation.Payload
	Assessment *generation.QualityAssessment
}

// Cost sums the attempt's stage costs.
func (a AttemptOutput) Cost() float64 {
	total := 0.0
	for _, s := range a.Stages {
		total += s.Cost
	}
	return total
}

// Orchestrator executes the stages of a single attempt.
type Orchestrator struct {
	invoker  *stage.Invoker
	settings Settings
	logger   *slog.Logger
	sleeper  retry.Sleeper
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSleeper overrides the retry backoff sleeper.
func WithSleeper(s retry.Sleeper) Option {
	return func(o *Orchestrator) {
		o.sleeper = s
	}
}

// New constructs an orchestrator around an injected invoker.
func New(invoker *stage.Invoker, settings Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		invoker:  invoker,
		settings: settings,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "pipeline")
	return o
}

// Invoker exposes the underlying invoker.
func (o *Orchestrator) Invoker() *stage.Invoker {
	return o.invoker
}

type nopObserver struct{}

func (nopObserver) StageStarted(stage.Name) {}
func (nopObserver) StageFinished(generation.StageResult) {}

// RunAttempt executes one full attempt for req. Any stage failure aborts the
// attempt with the classified error; later stages never run on partial output.
func (o *Orchestrator) RunAttempt(ctx context.Context, req generation.Request, obs Observer) (AttemptOutput, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	var out AttemptOutput

	intentOut, err := runStep(ctx, o, obs, &out, stage.IntentAnalysis,
		func(ctx context.Context, timeout time.Duration) (stage.IntentOutput, error) {
			return o.invoker.AnalyzeIntent(ctx, timeout, req.Prompt)
		},
		func(v stage.IntentOutput) (float64, time.Duration, generation.Payload) {
			return v.Cost, v.ProcessingTime, generation.Payload{}
		})
	if err != nil {
		return out, err
	}
	intent := intentOut.Intent
	out.Intent = &intent

	params := composeParams(req, intent)
	generated, err := runStep(ctx, o, obs, &out, stage.Generation,
		func(ctx context.Context, timeout time.Duration) (stage.Output, error) {
			return o.invoker.Compose(ctx, timeout, params)
		}, payloadMeta)
	if err != nil {
		return out, err
	}

	arranged, err := runStep(ctx, o, obs, &out, stage.Arrangement,
		func(ctx context.Context, timeout time.Duration) (stage.Output, error) {
			return o.invoker.Arrange(ctx, timeout, generated.Payload, params.Style)
		}, payloadMeta)
	if err != nil {
		return out, err
	}

	mixed, err := runStep(ctx, o, obs, &out, stage.Mixing,
		func(ctx context.Context, timeout time.Duration) (stage.Output, error) {
			return o.invoker.Mix(ctx, timeout, arranged.Payload)
		}, payloadMeta)
	if err != nil {
		return out, err
	}

	mastered, err := runStep(ctx, o, obs, &out, stage.Mastering,
		func(ctx context.Context, timeout time.Duration) (stage.Output, error) {
			return o.invoker.Master(ctx, timeout, mixed.Payload)
		}, payloadMeta)
	if err != nil {
		return out, err
	}
	out.Final = mastered.Payload

	evaluated, err := runStep(ctx, o, obs, &out, stage.QualityEvaluation,
		func(ctx context.Context, timeout time.Duration) (stage.EvaluationOutput, error) {
			return o.invoker.EvaluateQuality(ctx, timeout, mastered.Payload, req.Prompt)
		},
		func(v stage.EvaluationOutput) (float64, time.Duration, generation.Payload) {
			return v.Cost, v.ProcessingTime, generation.Payload{}
		})
	if err != nil {
		return out, err
	}
	assessment := evaluated.Assessment
	out.Assessment = &assessment
	return out, nil
}

// EnhancePrompt runs the prompt enhancement stage outside an attempt.
func (o *Orchestrator) EnhancePrompt(ctx context.Context, original, feedback string, obs Observer) (string, generation.StageResult, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	var out AttemptOutput
	enhanced, err := runStep(ctx, o, obs, &out, stage.PromptEnhancement,
		func(ctx context.Context, timeout time.Duration) (stage.EnhanceOutput, error) {
			return o.invoker.EnhancePrompt(ctx, timeout, original, feedback)
		},
		func(v stage.EnhanceOutput) (float64, time.Duration, generation.Payload) {
			return v.Cost, v.ProcessingTime, generation.Payload{}
		})
	return enhanced.Prompt, lastStage(out), err
}

// SeparateStems runs stem separation on a final payload.
func (o *Orchestrator) SeparateStems(ctx context.Context, payload generation.Payload, obs Observer) ([]generation.Stem, generation.StageResult, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	var out AttemptOutput
	stems, err := runStep(ctx, o, obs, &out, stage.StemSeparation,
		func(ctx context.Context, timeout time.Duration) (stage.StemsOutput, error) {
			return o.invoker.SeparateStems(ctx, timeout, payload)
		},
		func(v stage.StemsOutput) (float64, time.Duration, generation.Payload) {
			return v.Cost, v.ProcessingTime, generation.Payload{}
		})
	return stems.Stems, lastStage(out), err
}

func composeParams(req generation.Request, intent generation.Intent) stage.ComposeParams {
	params := stage.ComposeParams{
		Prompt:      req.Prompt,
		Duration:    req.Duration,
		Style:       req.Style,
		Temperature: req.Temperature,
		TopK:        req.TopK,
	}
	if intent.EnhancedPrompt != "" {
		params.Prompt = intent.EnhancedPrompt
	}
	if intent.Duration > 0 {
		params.Duration = intent.Duration
	}
	if params.Style == "" {
		params.Style = intent.InferredStyle
	}
	return params
}

func payloadMeta(v stage.Output) (float64, time.Duration, generation.Payload) {
	return v.Cost, v.ProcessingTime, v.Payload
}

func lastStage(out AttemptOutput) generation.StageResult {
	if len(out.Stages) == 0 {
		return generation.StageResult{}
	}
	return out.Stages[len(out.Stages)-1]
}

func runStep[T any](
	ctx context.Context,
	o *Orchestrator,
	obs Observer,
	out *AttemptOutput,
	name stage.Name,
	call func(context.Context, time.Duration) (T, error),
	meta func(T) (float64, time.Duration, generation.Payload),
) (T, error) {
	obs.StageStarted(name)
	settings := o.settings.For(name)
	value, exec, err := stageexec.Run(ctx, stageexec.Options{
		Logger:  o.logger,
		Stage:   name,
		Timeout: settings.Timeout,
		Policy:  settings.Policy,
		Sleeper: o.sleeper,
	}, call, func(v T) float64 {
		cost, _, _ := meta(v)
		return cost
	})

	result := generation.StageResult{Stage: string(name), Tries: exec.Tries, Cost: exec.Cost}
	if err != nil {
		result.Status = generation.StageFailed
		result.ProcessingTime = exec.Elapsed
		result.ErrorKind = services.KindOf(err)
		result.ErrorMessage = err.Error()
		out.Stages = append(out.Stages, result)
		obs.StageFinished(result)
		return value, err
	}
	_, processing, payload := meta(value)
	result.Status = generation.StageSucceeded
	result.ProcessingTime = processing
	result.Payload = stripData(payload)
	out.Stages = append(out.Stages, result)
	obs.StageFinished(result)
	return value, nil
}

// stripData keeps trail entries small: bytes travel between stages but only
// references and sizes are recorded.
func stripData(p generation.Payload) generation.Payload {
	if len(p.Data) > 0 && p.Size == 0 {
		p.Size = len(p.Data)
	}
	p.Data = nil
	return p
}
