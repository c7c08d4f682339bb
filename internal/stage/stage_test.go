package stage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"aurax/internal/generation"
	"aurax/internal/services"
	"aurax/internal/stage"
)

type composerFunc func(ctx context.Context, params stage.ComposeParams) (stage.Output, error)

func (f composerFunc) Compose(ctx context.Context, params stage.ComposeParams) (stage.Output, error) {
	return f(ctx, params)
}

type evaluatorFunc func(ctx context.Context, payload generation.Payload, prompt string) (stage.EvaluationOutput, error)

func (f evaluatorFunc) EvaluateQuality(ctx context.Context, payload generation.Payload, prompt string) (stage.EvaluationOutput, error) {
	return f(ctx, payload, prompt)
}

func okComposer() stage.Composer {
	return composerFunc(func(_ context.Context, params stage.ComposeParams) (stage.Output, error) {
		return stage.Output{Payload: generation.Payload{Data: []byte(params.Prompt)}, Cost: 0.5}, nil
	})
}

func fixedEvaluator(score float64) stage.Evaluator {
	return evaluatorFunc(func(context.Context, generation.Payload, string) (stage.EvaluationOutput, error) {
		return stage.EvaluationOutput{Assessment: generation.QualityAssessment{Score: score}, Cost: 0.01}, nil
	})
}

func newInvoker(t *testing.T, set stage.Set) *stage.Invoker {
	t.Helper()
	inv, err := stage.NewInvoker(set, " (hq)")
	if err != nil {
		t.Fatalf("NewInvoker returned error: %v", err)
	}
	return inv
}

func TestNewInvokerRequiresComposerAndEvaluator(t *testing.T) {
	if _, err := stage.NewInvoker(stage.Set{Evaluator: fixedEvaluator(1)}, ""); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error without composer, got %v", err)
	}
	if _, err := stage.NewInvoker(stage.Set{Composer: okComposer()}, ""); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error without evaluator, got %v", err)
	}
}

func TestPassthroughDefaults(t *testing.T) {
	inv := newInvoker(t, stage.Set{Composer: okComposer(), Evaluator: fixedEvaluator(0.9)})
	ctx := context.Background()
	payload := generation.Payload{URL: "s3://bucket/raw.wav"}

	for name, call := range map[string]func() (stage.Output, error){
		"arrange": func() (stage.Output, error) { return inv.Arrange(ctx, time.Second, payload, "jazz") },
		"mix":     func() (stage.Output, error) { return inv.Mix(ctx, time.Second, payload) },
		"master":  func() (stage.Output, error) { return inv.Master(ctx, time.Second, payload) },
	} {
		out, err := call()
		if err != nil {
			t.Fatalf("%s returned error: %v", name, err)
		}
		if out.Payload.URL != payload.URL || out.Cost != 0 {
			t.Fatalf("%s: expected unchanged payload at zero cost, got %+v", name, out)
		}
	}

	intent, err := inv.AnalyzeIntent(ctx, time.Second, "  chill beats ")
	if err != nil {
		t.Fatalf("AnalyzeIntent returned error: %v", err)
	}
	if intent.Intent.EnhancedPrompt != "chill beats" {
		t.Fatalf("enhanced prompt = %q", intent.Intent.EnhancedPrompt)
	}

	enhanced, err := inv.EnhancePrompt(ctx, time.Second, "chill beats", "muddy low end")
	if err != nil {
		t.Fatalf("EnhancePrompt returned error: %v", err)
	}
	if enhanced.Prompt != "chill beats (hq)" {
		t.Fatalf("enhanced prompt = %q", enhanced.Prompt)
	}
	again, _ := inv.EnhancePrompt(ctx, time.Second, enhanced.Prompt, "")
	if again.Prompt != enhanced.Prompt {
		t.Fatalf("suffix appended twice: %q", again.Prompt)
	}
}

func TestInvokerTimeoutIsDistinctFromCollaboratorErrors(t *testing.T) {
	stubborn := composerFunc(func(ctx context.Context, _ stage.ComposeParams) (stage.Output, error) {
		// Ignores ctx entirely.
		time.Sleep(200 * time.Millisecond)
		return stage.Output{Payload: generation.Payload{Data: []byte("late")}}, nil
	})
	inv := newInvoker(t, stage.Set{Composer: stubborn, Evaluator: fixedEvaluator(1)})

	start := time.Now()
	_, err := inv.Compose(context.Background(), 20*time.Millisecond, stage.ComposeParams{Prompt: "x"})
	if !errors.Is(err, services.ErrStageTimeout) {
		t.Fatalf("expected stage timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Fatalf("invoker waited %s for a collaborator that ignored its context", elapsed)
	}

	boom := errors.New("cuda error")
	failing := composerFunc(func(context.Context, stage.ComposeParams) (stage.Output, error) {
		return stage.Output{}, boom
	})
	inv = newInvoker(t, stage.Set{Composer: failing, Evaluator: fixedEvaluator(1)})
	_, err = inv.Compose(context.Background(), time.Second, stage.ComposeParams{Prompt: "x"})
	if !errors.Is(err, boom) || errors.Is(err, services.ErrStageTimeout) {
		t.Fatalf("expected collaborator error untouched, got %v", err)
	}
}

func TestInvokerReportsCancellation(t *testing.T) {
	blocking := composerFunc(func(ctx context.Context, _ stage.ComposeParams) (stage.Output, error) {
		<-ctx.Done()
		return stage.Output{}, ctx.Err()
	})
	inv := newInvoker(t, stage.Set{Composer: blocking, Evaluator: fixedEvaluator(1)})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := inv.Compose(ctx, time.Minute, stage.ComposeParams{Prompt: "x"})
	if !services.IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if errors.Is(err, services.ErrStageTimeout) {
		t.Fatal("cancellation must not be reported as timeout")
	}
}

func TestInvokerRejectsEmptyPayloadAndClampsValues(t *testing.T) {
	empty := composerFunc(func(context.Context, stage.ComposeParams) (stage.Output, error) {
		return stage.Output{Cost: 1}, nil
	})
	inv := newInvoker(t, stage.Set{Composer: empty, Evaluator: fixedEvaluator(1.7)})
	if _, err := inv.Compose(context.Background(), time.Second, stage.ComposeParams{}); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error for empty payload, got %v", err)
	}

	eval, err := inv.EvaluateQuality(context.Background(), time.Second, generation.Payload{Data: []byte{1}}, "p")
	if err != nil {
		t.Fatalf("EvaluateQuality returned error: %v", err)
	}
	if eval.Assessment.Score != 1 {
		t.Fatalf("score = %v, want clamped 1", eval.Assessment.Score)
	}
	if eval.ProcessingTime <= 0 {
		t.Fatal("expected measured processing time")
	}
}

func TestNegativeCostIsClamped(t *testing.T) {
	negative := composerFunc(func(context.Context, stage.ComposeParams) (stage.Output, error) {
		return stage.Output{Payload: generation.Payload{Data: []byte{1}}, Cost: -3}, nil
	})
	inv := newInvoker(t, stage.Set{Composer: negative, Evaluator: fixedEvaluator(1)})
	out, err := inv.Compose(context.Background(), time.Second, stage.ComposeParams{})
	if err != nil {
		t.Fatalf("Compose returned error: %v", err)
	}
	if out.Cost != 0 {
		t.Fatalf("cost = %v, want 0", out.Cost)
	}
}

func TestFailedCallKeepsReportedCost(t *testing.T) {
	billed := composerFunc(func(context.Context, stage.ComposeParams) (stage.Output, error) {
		return stage.Output{Cost: 0.045}, errors.New("decode response")
	})
	inv := newInvoker(t, stage.Set{Composer: billed, Evaluator: fixedEvaluator(1)})
	out, err := inv.Compose(context.Background(), time.Second, stage.ComposeParams{Prompt: "x"})
	if err == nil {
		t.Fatal("expected collaborator error")
	}
	if out.Cost != 0.045 {
		t.Fatalf("cost = %v, want 0.045", out.Cost)
	}

	empty := composerFunc(func(context.Context, stage.ComposeParams) (stage.Output, error) {
		return stage.Output{Cost: 0.2}, nil
	})
	inv = newInvoker(t, stage.Set{Composer: empty, Evaluator: fixedEvaluator(1)})
	out, err = inv.Compose(context.Background(), time.Second, stage.ComposeParams{Prompt: "x"})
	if !errors.Is(err, services.ErrTransient) || out.Cost != 0.2 {
		t.Fatalf("empty payload: cost=%v err=%v", out.Cost, err)
	}
}

func TestSeparateStemsWithoutCollaborator(t *testing.T) {
	inv := newInvoker(t, stage.Set{Composer: okComposer(), Evaluator: fixedEvaluator(1)})
	if inv.CanSeparateStems() {
		t.Fatal("expected no stem separator")
	}
	if _, err := inv.SeparateStems(context.Background(), time.Second, generation.Payload{Data: []byte{1}}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNamesAndLabels(t *testing.T) {
	order := stage.AttemptOrder()
	if len(order) != 6 || order[0] != stage.IntentAnalysis || order[5] != stage.QualityEvaluation {
		t.Fatalf("unexpected attempt order: %v", order)
	}
	if stage.Index(stage.Mixing) != 4 || stage.Index(stage.PromptEnhancement) != 0 {
		t.Fatal("unexpected stage index")
	}
	if got := stage.Label(stage.QualityEvaluation); got != "Quality Evaluation" {
		t.Fatalf("label = %q", got)
	}
}

func TestSetHealth(t *testing.T) {
	set := stage.Set{Composer: okComposer()}.WithDefaults("")
	health := set.Health(context.Background())
	if !health[string(stage.Generation)].Ready {
		t.Fatal("generation should be ready")
	}
	if health[string(stage.QualityEvaluation)].Ready {
		t.Fatal("missing evaluator should be unhealthy")
	}
	if _, ok := health[string(stage.StemSeparation)]; ok {
		t.Fatal("stem separation should be omitted when not configured")
	}
}
