package stage

import (
	"context"
	"fmt"

	"aurax/internal/services"
)

// Set bundles the collaborators a pipeline run needs. Composer and Evaluator
// are required; the remaining capabilities fall back to local defaults.
type Set struct {
	Intent    IntentAnalyzer
	Composer  Composer
	Arranger  Arranger
	Mixer     Mixer
	Masterer  Masterer
	Evaluator Evaluator
	Enhancer  PromptEnhancer
	Stems     StemSeparator
}

// WithDefaults returns a copy of the set with optional capabilities filled in.
func (s Set) WithDefaults(enhancementSuffix string) Set {
	if s.Intent == nil {
		s.Intent = LiteralIntent{}
	}
	if s.Arranger == nil {
		s.Arranger = Passthrough{}
	}
	if s.Mixer == nil {
		s.Mixer = Passthrough{}
	}
	if s.Masterer == nil {
		s.Masterer = Passthrough{}
	}
	if s.Enhancer == nil {
		s.Enhancer = SuffixEnhancer{Suffix: enhancementSuffix}
	}
	return s
}

// Validate reports missing required collaborators.
func (s Set) Validate() error {
	if s.Composer == nil {
		return services.Wrap(services.ErrConfiguration, string(Generation), "configure stages", "no generation collaborator configured", nil)
	}
	if s.Evaluator == nil {
		return services.Wrap(services.ErrConfiguration, string(QualityEvaluation), "configure stages", "no quality evaluation collaborator configured", nil)
	}
	return nil
}

// Health collects readiness from every collaborator that reports it.
func (s Set) Health(ctx context.Context) map[string]Health {
	out := make(map[string]Health)
	add := func(name Name, impl any) {
		if impl == nil {
			out[string(name)] = Unhealthy(string(name), "not configured")
			return
		}
		if checker, ok := impl.(HealthChecker); ok {
			out[string(name)] = checker.HealthCheck(ctx)
			return
		}
		out[string(name)] = Health{Name: string(name), Ready: true, Detail: fmt.Sprintf("%T", impl)}
	}
	add(IntentAnalysis, s.Intent)
	add(Generation, s.Composer)
	add(Arrangement, s.Arranger)
	add(Mixing, s.Mixer)
	add(Mastering, s.Masterer)
	add(QualityEvaluation, s.Evaluator)
	add(PromptEnhancement, s.Enhancer)
	if s.Stems != nil {
		add(StemSeparation, s.Stems)
	}
	return out
}
