package pipeline

import (
	"time"

	"aurax/internal/config"
	"aurax/internal/retry"
	"aurax/internal/stage"
)

// StageSettings bundles the timeout and retry policy for one stage.
type StageSettings struct {
	Timeout time.Duration
	Policy  retry.Policy
}

// Settings maps stages to their execution settings.
type Settings map[stage.Name]StageSettings

// SettingsFromConfig builds settings for every known stage from config.
func SettingsFromConfig(cfg *config.Config) Settings {
	names := append(stage.AttemptOrder(), stage.PromptEnhancement, stage.StemSeparation)
	settings := make(Settings, len(names))
	for _, name := range names {
		var policy config.StagePolicy
		if cfg != nil {
			policy = cfg.StagePolicy(string(name))
		} else {
			policy = config.DefaultStagePolicies()[string(name)]
		}
		settings[name] = StageSettings{Timeout: policy.Timeout(), Policy: retry.FromConfig(policy)}
	}
	return settings
}

// For returns the settings for name, or a single-try policy without timeout
// when the stage is unknown.
func (s Settings) For(name stage.Name) StageSettings {
	if v, ok := s[name]; ok {
		return v
	}
	return StageSettings{Policy: retry.NoRetry()}
}
