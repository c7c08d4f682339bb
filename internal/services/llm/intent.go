package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aurax/internal/generation"
	"aurax/internal/services"
	"aurax/internal/stage"
)

var (
	_ stage.IntentAnalyzer = (*Client)(nil)
	_ stage.PromptEnhancer = (*Client)(nil)
	_ stage.HealthChecker  = (*Client)(nil)
)

// IntentPrompt instructs the model to structure a raw music request.
const IntentPrompt = `You analyze requests for AI music generation.
Respond with a single JSON object and nothing else:
{"enhanced_prompt": string, "duration": number, "inferred_style": string, "alternative_style": string}
- enhanced_prompt: the request rewritten as a precise music generation prompt (instrumentation, tempo, mood).
- duration: requested length in seconds, or 0 when the request does not say.
- inferred_style: the single genre that best fits the request.
- alternative_style: a related genre to try if the first result is rejected.`

// EnhancePromptInstructions asks the model to revise a prompt from feedback.
const EnhancePromptInstructions = `You improve prompts for AI music generation using quality feedback.
Respond with a single JSON object and nothing else: {"prompt": string}
Keep the musical intent of the original and address every point of the feedback.`

type intentReply struct {
	EnhancedPrompt   string  `json:"enhanced_prompt"`
	Duration         float64 `json:"duration"`
	InferredStyle    string  `json:"inferred_style"`
	AlternativeStyle string  `json:"alternative_style"`
}

// AnalyzeIntent asks the model for a structured intent. A reply without an
// enhanced prompt keeps the original prompt.
func (c *Client) AnalyzeIntent(ctx context.Context, prompt string) (stage.IntentOutput, error) {
	const op = "analyze intent"
	start := time.Now()
	completion, err := c.CompleteJSON(ctx, op, IntentPrompt, prompt)
	if err != nil {
		return stage.IntentOutput{Cost: completion.Cost}, err
	}
	var reply intentReply
	if err := DecodeLLMJSON(completion.Content, &reply); err != nil {
		return stage.IntentOutput{Cost: completion.Cost}, services.Wrap(services.ErrTransient, "", op, "parse payload", err)
	}
	intent := generation.Intent{
		EnhancedPrompt:   strings.TrimSpace(reply.EnhancedPrompt),
		Duration:         reply.Duration,
		InferredStyle:    normalizeStyle(reply.InferredStyle),
		AlternativeStyle: normalizeStyle(reply.AlternativeStyle),
	}
	if intent.EnhancedPrompt == "" {
		intent.EnhancedPrompt = strings.TrimSpace(prompt)
	}
	if intent.Duration < 0 {
		intent.Duration = 0
	}
	return stage.IntentOutput{Intent: intent, Cost: completion.Cost, ProcessingTime: time.Since(start)}, nil
}

// EnhancePrompt revises original using evaluator feedback.
func (c *Client) EnhancePrompt(ctx context.Context, original, feedback string) (stage.EnhanceOutput, error) {
	const op = "enhance prompt"
	start := time.Now()
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		feedback = "The result did not meet the quality bar. Make the prompt more specific."
	}
	user := fmt.Sprintf("Original prompt:\n%s\n\nQuality feedback:\n%s", strings.TrimSpace(original), feedback)
	completion, err := c.CompleteJSON(ctx, op, EnhancePromptInstructions, user)
	if err != nil {
		return stage.EnhanceOutput{Cost: completion.Cost}, err
	}
	var reply struct {
		Prompt string `json:"prompt"`
	}
	if err := DecodeLLMJSON(completion.Content, &reply); err != nil {
		return stage.EnhanceOutput{Cost: completion.Cost}, services.Wrap(services.ErrTransient, "", op, "parse payload", err)
	}
	prompt := strings.TrimSpace(reply.Prompt)
	if prompt == "" {
		return stage.EnhanceOutput{Cost: completion.Cost}, services.Wrap(services.ErrTransient, "", op, "empty prompt in reply", nil)
	}
	return stage.EnhanceOutput{Prompt: prompt, Cost: completion.Cost, ProcessingTime: time.Since(start)}, nil
}

func normalizeStyle(style string) string {
	return strings.ToLower(strings.Join(strings.Fields(style), " "))
}
