package llm

import "strings"

const tokensPerKilo = 1000.0

// ModelPricing is the USD price per 1K tokens.
type ModelPricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// PricingTable maps model names to token prices. Models are matched by
// exact name first, then by the longest known prefix, so dated snapshots
// ("gpt-4o-mini-2024-07-18") price like their family.
var PricingTable = map[string]ModelPricing{
	"gpt-4o":       {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini":  {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4.1":      {InputPer1K: 0.002, OutputPer1K: 0.008},
	"gpt-4.1-mini": {InputPer1K: 0.0004, OutputPer1K: 0.0016},
	"gpt-4.1-nano": {InputPer1K: 0.0001, OutputPer1K: 0.0004},
}

var fallbackPricing = PricingTable["gpt-4o-mini"]

// PricingFor returns the price entry for model.
func PricingFor(model string) ModelPricing {
	model = strings.ToLower(strings.TrimSpace(model))
	if p, ok := PricingTable[model]; ok {
		return p
	}
	best := ""
	for name := range PricingTable {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best != "" {
		return PricingTable[best]
	}
	return fallbackPricing
}

// Cost computes the USD cost of a completion.
func Cost(model string, promptTokens, completionTokens int64) float64 {
	p := PricingFor(model)
	return float64(promptTokens)/tokensPerKilo*p.InputPer1K + float64(completionTokens)/tokensPerKilo*p.OutputPer1K
}
