package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aurax/internal/generation"
	"aurax/internal/stage"
)

// FakeStages is a scripted collaborator implementing every stage capability.
// Zero values behave as fast, successful, zero-cost stages with score 1.
type FakeStages struct {
	mu sync.Mutex

	// Scores are returned by successive evaluations; the last repeats.
	Scores []float64
	// Costs per stage call.
	Costs map[stage.Name]float64
	// Failures are returned by successive calls of a stage before it succeeds.
	Failures map[stage.Name][]error
	// FailureCosts are billed by a stage call that returns a scripted failure.
	FailureCosts map[stage.Name]float64
	// RewriteIntent, when set, produces the enhanced prompt intent analysis
	// reports instead of echoing the input.
	RewriteIntent func(prompt string) string
	// Delays make a stage wait (honouring its context) before answering.
	Delays map[stage.Name]time.Duration
	// AlternativeStyle is reported by intent analysis.
	AlternativeStyle string
	// Feedback is reported by every evaluation.
	Feedback string

	calls      map[stage.Name]int
	prompts    []string
	styles     []string
	feedbacks  []string
	originals  []string
	evaluation int
}

// Set returns a stage set whose every capability is served by f.
func (f *FakeStages) Set() stage.Set {
	return stage.Set{
		Intent:    f,
		Composer:  f,
		Arranger:  f,
		Mixer:     f,
		Masterer:  f,
		Evaluator: f,
		Enhancer:  f,
		Stems:     f,
	}
}

// Calls returns how many times a stage was invoked.
func (f *FakeStages) Calls(name stage.Name) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// ComposedPrompts returns the prompts generation received, in order.
func (f *FakeStages) ComposedPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// ArrangedStyles returns the styles arrangement received, in order.
func (f *FakeStages) ArrangedStyles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.styles...)
}

// EnhancementFeedback returns the feedback prompt enhancement received.
func (f *FakeStages) EnhancementFeedback() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.feedbacks...)
}

// EnhancementInputs returns the prompts prompt enhancement was asked to improve.
func (f *FakeStages) EnhancementInputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.originals...)
}

func (f *FakeStages) enter(ctx context.Context, name stage.Name) (float64, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[stage.Name]int)
	}
	f.calls[name]++
	var failure error
	if pending := f.Failures[name]; len(pending) > 0 {
		failure = pending[0]
		f.Failures[name] = pending[1:]
	}
	delay := f.Delays[name]
	cost := f.Costs[name]
	if failure != nil {
		cost = f.FailureCosts[name]
	}
	f.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
	if failure != nil {
		return cost, failure
	}
	return cost, nil
}

func (f *FakeStages) AnalyzeIntent(ctx context.Context, prompt string) (stage.IntentOutput, error) {
	cost, err := f.enter(ctx, stage.IntentAnalysis)
	if err != nil {
		return stage.IntentOutput{Cost: cost}, err
	}
	enhanced := prompt
	if f.RewriteIntent != nil {
		enhanced = f.RewriteIntent(prompt)
	}
	return stage.IntentOutput{
		Intent: generation.Intent{
			EnhancedPrompt:   enhanced,
			InferredStyle:    "electronic",
			AlternativeStyle: f.AlternativeStyle,
		},
		Cost: cost,
	}, nil
}

func (f *FakeStages) Compose(ctx context.Context, params stage.ComposeParams) (stage.Output, error) {
	cost, err := f.enter(ctx, stage.Generation)
	if err != nil {
		return stage.Output{Cost: cost}, err
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, params.Prompt)
	n := len(f.prompts)
	f.mu.Unlock()
	return stage.Output{
		Payload: generation.Payload{Data: []byte(fmt.Sprintf("raw-%d:%s", n, params.Prompt)), ContentType: "audio/wav"},
		Cost:    cost,
	}, nil
}

func (f *FakeStages) Arrange(ctx context.Context, payload generation.Payload, style string) (stage.Output, error) {
	cost, err := f.enter(ctx, stage.Arrangement)
	if err != nil {
		return stage.Output{Cost: cost}, err
	}
	f.mu.Lock()
	f.styles = append(f.styles, style)
	f.mu.Unlock()
	return stage.Output{Payload: tag(payload, "arranged"), Cost: cost}, nil
}

func (f *FakeStages) Mix(ctx context.Context, payload generation.Payload) (stage.Output, error) {
	cost, err := f.enter(ctx, stage.Mixing)
	if err != nil {
		return stage.Output{Cost: cost}, err
	}
	return stage.Output{Payload: tag(payload, "mixed"), Cost: cost}, nil
}

func (f *FakeStages) Master(ctx context.Context, payload generation.Payload) (stage.Output, error) {
	cost, err := f.enter(ctx, stage.Mastering)
	if err != nil {
		return stage.Output{Cost: cost}, err
	}
	return stage.Output{Payload: tag(payload, "mastered"), Cost: cost}, nil
}

func (f *FakeStages) EvaluateQuality(ctx context.Context, _ generation.Payload, _ string) (stage.EvaluationOutput, error) {
	cost, err := f.enter(ctx, stage.QualityEvaluation)
	if err != nil {
		return stage.EvaluationOutput{Cost: cost}, err
	}
	f.mu.Lock()
	score := 1.0
	if len(f.Scores) > 0 {
		idx := f.evaluation
		if idx >= len(f.Scores) {
			idx = len(f.Scores) - 1
		}
		score = f.Scores[idx]
	}
	f.evaluation++
	feedback := f.Feedback
	f.mu.Unlock()
	return stage.EvaluationOutput{
		Assessment: generation.QualityAssessment{
			Score:    score,
			Metrics:  map[string]float64{"clarity": score, "musicality": score, "prompt_adherence": score},
			Feedback: feedback,
		},
		Cost: cost,
	}, nil
}

func (f *FakeStages) EnhancePrompt(ctx context.Context, original, feedback string) (stage.EnhanceOutput, error) {
	cost, err := f.enter(ctx, stage.PromptEnhancement)
	if err != nil {
		return stage.EnhanceOutput{Cost: cost}, err
	}
	f.mu.Lock()
	f.feedbacks = append(f.feedbacks, feedback)
	f.originals = append(f.originals, original)
	f.mu.Unlock()
	return stage.EnhanceOutput{Prompt: original + " [enhanced]", Cost: cost}, nil
}

func (f *FakeStages) SeparateStems(ctx context.Context, payload generation.Payload) (stage.StemsOutput, error) {
	cost, err := f.enter(ctx, stage.StemSeparation)
	if err != nil {
		return stage.StemsOutput{Cost: cost}, err
	}
	stems := make([]generation.Stem, 0, 4)
	for _, name := range []string{"drums", "bass", "vocals", "other"} {
		stems = append(stems, generation.Stem{Name: name, Payload: tag(payload, name)})
	}
	return stage.StemsOutput{Stems: stems, Cost: cost}, nil
}

func tag(payload generation.Payload, label string) generation.Payload {
	next := payload
	next.Data = append(append([]byte(nil), payload.Data...), []byte("|"+label)...)
	return next
}
