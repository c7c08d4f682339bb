package llm

import (
	"context"
	"strings"

	"aurax/internal/generation"
	"aurax/internal/stage"
)

var (
	_ stage.IntentAnalyzer = Heuristic{}
	_ stage.PromptEnhancer = Heuristic{}
)

// genreAlternatives lists genre keywords in match priority order with the
// related genre tried on regeneration.
var genreAlternatives = []struct {
	keyword     string
	alternative string
}{
	{"synthwave", "electronic"},
	{"drum and bass", "jungle"},
	{"lofi", "chillhop"},
	{"lo-fi", "chillhop"},
	{"techno", "house"},
	{"house", "techno"},
	{"ambient", "downtempo"},
	{"jazz", "soul"},
	{"classical", "cinematic"},
	{"orchestral", "cinematic"},
	{"cinematic", "orchestral"},
	{"hip hop", "trap"},
	{"trap", "hip hop"},
	{"rock", "indie"},
	{"metal", "rock"},
	{"pop", "electronic"},
	{"folk", "acoustic"},
	{"electronic", "synthwave"},
}

// Heuristic implements intent analysis and prompt enhancement without a
// model.
type Heuristic struct {
	Suffix string
}

// AnalyzeIntent keeps the prompt and infers style from genre keywords.
func (Heuristic) AnalyzeIntent(_ context.Context, prompt string) (stage.IntentOutput, error) {
	prompt = strings.TrimSpace(prompt)
	intent := generation.Intent{EnhancedPrompt: prompt}
	lower := strings.ToLower(prompt)
	for _, g := range genreAlternatives {
		if strings.Contains(lower, g.keyword) {
			intent.InferredStyle = g.keyword
			intent.AlternativeStyle = g.alternative
			break
		}
	}
	return stage.IntentOutput{Intent: intent}, nil
}

// EnhancePrompt appends the quality suffix once.
func (h Heuristic) EnhancePrompt(_ context.Context, original, _ string) (stage.EnhanceOutput, error) {
	return stage.EnhanceOutput{Prompt: stage.AppendSuffix(original, h.Suffix)}, nil
}

// Collaborator serves both language-model stages.
type Collaborator interface {
	stage.IntentAnalyzer
	stage.PromptEnhancer
}

// New returns the model-backed client when an API key is configured and the
// heuristic otherwise.
func New(cfg Config, suffix string, opts ...Option) Collaborator {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Heuristic{Suffix: suffix}
	}
	return NewClient(cfg, opts...)
}
