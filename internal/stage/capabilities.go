package stage

import (
	"context"
	"time"

	"aurax/internal/generation"
)

// Output is the typed result of a payload-producing stage.
type Output struct {
	Payload        generation.Payload
	Cost           float64
	ProcessingTime time.Duration
}

// IntentOutput is the typed result of intent analysis.
type IntentOutput struct {
	Intent         generation.Intent
	Cost           float64
	ProcessingTime time.Duration
}

// EvaluationOutput is the typed result of quality evaluation.
type EvaluationOutput struct {
	Assessment     generation.QualityAssessment
	Cost           float64
	ProcessingTime time.Duration
}

// EnhanceOutput is the typed result of prompt enhancement.
type EnhanceOutput struct {
	Prompt         string
	Cost           float64
	ProcessingTime time.Duration
}

// StemsOutput is the typed result of stem separation.
type StemsOutput struct {
	Stems          []generation.Stem
	Cost           float64
	ProcessingTime time.Duration
}

// ComposeParams are the generation inputs derived from the request and intent.
type ComposeParams struct {
	Prompt      string
	Duration    float64
	Style       string
	Temperature *float64
	TopK        *int
}

// IntentAnalyzer turns a raw prompt into a structured Intent.
type IntentAnalyzer interface {
	AnalyzeIntent(ctx context.Context, prompt string) (IntentOutput, error)
}

// Composer produces the raw generated payload.
type Composer interface {
	Compose(ctx context.Context, params ComposeParams) (Output, error)
}

// Arranger restructures a generated payload.
type Arranger interface {
	Arrange(ctx context.Context, payload generation.Payload, style string) (Output, error)
}

// Mixer balances an arranged payload.
type Mixer interface {
	Mix(ctx context.Context, payload generation.Payload) (Output, error)
}

// Masterer finalizes a mixed payload.
type Masterer interface {
	Master(ctx context.Context, payload generation.Payload) (Output, error)
}

// Evaluator scores a mastered payload against the prompt.
type Evaluator interface {
	EvaluateQuality(ctx context.Context, payload generation.Payload, prompt string) (EvaluationOutput, error)
}

// PromptEnhancer rewrites a prompt using evaluator feedback.
type PromptEnhancer interface {
	EnhancePrompt(ctx context.Context, original, feedback string) (EnhanceOutput, error)
}

// StemSeparator splits a payload into source stems.
type StemSeparator interface {
	SeparateStems(ctx context.Context, payload generation.Payload) (StemsOutput, error)
}

// HealthChecker is implemented by collaborators that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}
