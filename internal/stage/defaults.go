package stage

import (
	"context"
	"strings"

	"aurax/internal/generation"
)

// Passthrough implements Arranger, Mixer and Masterer by returning the input
// payload unchanged at zero cost.
type Passthrough struct{}

func (Passthrough) Arrange(_ context.Context, payload generation.Payload, _ string) (Output, error) {
	return Output{Payload: payload}, nil
}

func (Passthrough) Mix(_ context.Context, payload generation.Payload) (Output, error) {
	return Output{Payload: payload}, nil
}

func (Passthrough) Master(_ context.Context, payload generation.Payload) (Output, error) {
	return Output{Payload: payload}, nil
}

// LiteralIntent implements IntentAnalyzer without a model: the prompt is used
// verbatim and duration/style are left for the request to supply.
type LiteralIntent struct{}

func (LiteralIntent) AnalyzeIntent(_ context.Context, prompt string) (IntentOutput, error) {
	return IntentOutput{Intent: generation.Intent{EnhancedPrompt: strings.TrimSpace(prompt)}}, nil
}

// SuffixEnhancer implements PromptEnhancer by appending a fixed quality
// suffix once.
type SuffixEnhancer struct {
	Suffix string
}

func (e SuffixEnhancer) EnhancePrompt(_ context.Context, original, _ string) (EnhanceOutput, error) {
	return EnhanceOutput{Prompt: AppendSuffix(original, e.Suffix)}, nil
}

// AppendSuffix appends suffix to prompt unless it is already present.
func AppendSuffix(prompt, suffix string) string {
	if suffix == "" || strings.HasSuffix(prompt, suffix) {
		return prompt
	}
	return prompt + suffix
}
