package generation_test

import (
	"errors"
	"math"
	"testing"

	"aurax/internal/generation"
	"aurax/internal/services"
)

var testDefaults = generation.Defaults{
	Style:            "electronic",
	Duration:         60,
	QualityThreshold: 0.7,
	Temperature:      0.8,
	TopK:             250,
}

func ptr[T any](v T) *T { return &v }

func TestDraftResolveAppliesDefaults(t *testing.T) {
	req, err := generation.Draft{Prompt: "  upbeat synthwave  "}.Resolve(testDefaults)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if req.Prompt != "upbeat synthwave" || req.Style != "electronic" || req.Duration != 60 || req.QualityThreshold != 0.7 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Temperature == nil || *req.Temperature != 0.8 {
		t.Fatalf("temperature = %v", req.Temperature)
	}
	if req.TopK == nil || *req.TopK != 250 {
		t.Fatalf("top_k = %v", req.TopK)
	}
}

func TestDraftResolveKeepsExplicitValues(t *testing.T) {
	req, err := generation.Draft{
		Prompt:           "ambient drone",
		Style:            "ambient",
		Duration:         ptr(30.0),
		QualityThreshold: ptr(0.0),
		Temperature:      ptr(0.0),
		TopK:             ptr(10),
	}.Resolve(testDefaults)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if req.Style != "ambient" || req.Duration != 30 || req.QualityThreshold != 0 || *req.Temperature != 0 || *req.TopK != 10 {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestValidateRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name  string
		draft generation.Draft
	}{
		{"empty prompt", generation.Draft{Prompt: "   "}},
		{"zero duration", generation.Draft{Prompt: "x", Duration: ptr(0.0)}},
		{"negative duration", generation.Draft{Prompt: "x", Duration: ptr(-5.0)}},
		{"nan duration", generation.Draft{Prompt: "x", Duration: ptr(math.NaN())}},
		{"threshold above one", generation.Draft{Prompt: "x", QualityThreshold: ptr(1.2)}},
		{"negative threshold", generation.Draft{Prompt: "x", QualityThreshold: ptr(-0.1)}},
		{"negative temperature", generation.Draft{Prompt: "x", Temperature: ptr(-1.0)}},
		{"negative top_k", generation.Draft{Prompt: "x", TopK: ptr(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.draft.Resolve(testDefaults)
			if !errors.Is(err, services.ErrInvalidRequest) {
				t.Fatalf("expected invalid request, got %v", err)
			}
		})
	}
}

func TestWithPromptDoesNotMutateOriginal(t *testing.T) {
	original, err := generation.Draft{Prompt: "lofi beat"}.Resolve(testDefaults)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	next := original.WithPrompt("lofi beat, crisp drums").WithStyle("hiphop")
	*next.Temperature = 1.5

	if original.Prompt != "lofi beat" || original.Style != "electronic" {
		t.Fatalf("original mutated: %+v", original)
	}
	if *original.Temperature != 0.8 {
		t.Fatalf("original temperature mutated: %v", *original.Temperature)
	}
	if next.Prompt != "lofi beat, crisp drums" || next.Style != "hiphop" {
		t.Fatalf("unexpected derived request: %+v", next)
	}
	if kept := original.WithStyle(" "); kept.Style != "electronic" {
		t.Fatalf("blank style should keep current style, got %q", kept.Style)
	}
}

func TestAttemptStateAdvance(t *testing.T) {
	state := generation.NewAttemptState(3, 0.7)
	if state.Attempt != 1 || state.Threshold != 0.7 {
		t.Fatalf("unexpected initial state: %+v", state)
	}
	wantThresholds := []float64{0.6, 0.5}
	for _, want := range wantThresholds {
		if !state.Advance(0.1) {
			t.Fatal("expected advance to succeed")
		}
		if state.Threshold != want {
			t.Fatalf("threshold = %v, want %v", state.Threshold, want)
		}
	}
	if !state.CeilingReached() {
		t.Fatal("expected ceiling at attempt 3")
	}
	if state.Advance(0.1) {
		t.Fatal("advance past ceiling must fail")
	}
	if state.Attempt != 3 {
		t.Fatalf("attempt = %d, want 3", state.Attempt)
	}
}

func TestAttemptStateThresholdFloor(t *testing.T) {
	state := generation.NewAttemptState(5, 0.15)
	previous := state.Threshold
	for state.Advance(0.1) {
		if state.Threshold > previous {
			t.Fatalf("threshold increased from %v to %v", previous, state.Threshold)
		}
		if state.Threshold < 0 {
			t.Fatalf("threshold below zero: %v", state.Threshold)
		}
		previous = state.Threshold
	}
	if state.Threshold != 0 {
		t.Fatalf("threshold = %v, want 0", state.Threshold)
	}
}

func TestAttemptStateAddCostIgnoresNegative(t *testing.T) {
	state := generation.NewAttemptState(1, 0.5)
	state.AddCost(0.25)
	state.AddCost(-1)
	if state.TotalCost != 0.25 {
		t.Fatalf("total cost = %v", state.TotalCost)
	}
}

func TestResultSumCost(t *testing.T) {
	result := generation.Result{Attempts: []generation.AttemptRecord{
		{Stages: []generation.StageResult{{Cost: 0.1}, {Cost: 0.2}}},
		{Stages: []generation.StageResult{{Cost: 0.3}, {Cost: 0, Status: generation.StageFailed}}},
	}}
	if got := result.SumCost(); math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("SumCost = %v, want 0.6", got)
	}
}

func TestQualityAssessmentClamp(t *testing.T) {
	if got := (generation.QualityAssessment{Score: 1.4}).Clamp().Score; got != 1 {
		t.Fatalf("clamp high = %v", got)
	}
	if got := (generation.QualityAssessment{Score: math.NaN()}).Clamp().Score; got != 0 {
		t.Fatalf("clamp nan = %v", got)
	}
}

func TestRunStatusTerminal(t *testing.T) {
	if generation.StatusGenerating.Terminal() || generation.StatusPending.Terminal() {
		t.Fatal("generating/pending are not terminal")
	}
	for _, s := range []generation.RunStatus{generation.StatusCompleted, generation.StatusBestEffort, generation.StatusFailed, generation.StatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
}
