package config

const (
	defaultStateDir            = "~/.local/share/aurax"
	defaultLogDir              = "~/.local/share/aurax/logs"
	defaultAPIBind             = "127.0.0.1:7491"
	defaultMaxAttempts         = 3
	defaultQualityThreshold    = 0.7
	defaultThresholdStep       = 0.1
	defaultEnhancementSuffix   = " (high quality, professional production)"
	defaultStyle               = "electronic"
	defaultDurationSeconds     = 60
	defaultTemperature         = 0.8
	defaultTopK                = 250
	defaultWorkers             = 2
	defaultInferenceTimeout    = 600
	defaultGPUCostPerSecond    = 0.002
	defaultStemModel           = "htdemucs"
	defaultLLMBaseURL          = "https://api.openai.com/v1"
	defaultLLMModel            = "gpt-4o-mini"
	defaultLLMTimeoutSeconds   = 60
	defaultStorageBackend      = StorageLocal
	defaultStorageDir          = "~/.local/share/aurax/payloads"
	defaultStoragePrefix       = "runs"
	defaultNotifyTimeout       = 10
	defaultQueuePollInterval   = 2
	defaultErrorRetryInterval  = 10
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultResourceExhaustKind = "resource_exhausted"
)

// Stage names as they appear under [stages.*].
const (
	StageIntentAnalysis    = "intent_analysis"
	StageGeneration        = "generation"
	StageArrangement       = "arrangement"
	StageMixing            = "mixing"
	StageMastering         = "mastering"
	StageQualityEvaluation = "quality_evaluation"
	StagePromptEnhancement = "prompt_enhancement"
	StageStemSeparation    = "stem_separation"
)

// Storage backends.
const (
	StorageNone  = "none"
	StorageLocal = "local"
	StorageS3    = "s3"
)

// DefaultStagePolicies returns the per-stage timeout and retry defaults.
// Heavy inference stages get long timeouts and generous retries; intent
// analysis and prompt enhancement are short; quality evaluation never retries.
func DefaultStagePolicies() map[string]StagePolicy {
	heavy := func(timeout int) StagePolicy {
		return StagePolicy{
			TimeoutSeconds:    timeout,
			MaxAttempts:       3,
			InitialIntervalMS: 5000,
			MaxIntervalMS:     60000,
			Multiplier:        2.0,
			NonRetryable:      []string{defaultResourceExhaustKind},
		}
	}
	light := func(timeout int) StagePolicy {
		return StagePolicy{
			TimeoutSeconds:    timeout,
			MaxAttempts:       2,
			InitialIntervalMS: 1000,
			MaxIntervalMS:     10000,
			Multiplier:        1.5,
			NonRetryable:      []string{defaultResourceExhaustKind},
		}
	}
	return map[string]StagePolicy{
		StageIntentAnalysis: light(30),
		StageGeneration:     heavy(300),
		StageArrangement:    heavy(180),
		StageMixing:         heavy(180),
		StageMastering:      heavy(180),
		StageQualityEvaluation: {
			TimeoutSeconds:    60,
			MaxAttempts:       1,
			InitialIntervalMS: 1000,
			MaxIntervalMS:     1000,
			Multiplier:        1.0,
			NonRetryable:      []string{defaultResourceExhaustKind},
		},
		StagePromptEnhancement: light(20),
		StageStemSeparation:    heavy(300),
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Pipeline: Pipeline{
			MaxAttempts:       defaultMaxAttempts,
			QualityThreshold:  defaultQualityThreshold,
			ThresholdStep:     defaultThresholdStep,
			EnhancementSuffix: defaultEnhancementSuffix,
			DefaultStyle:      defaultStyle,
			DefaultDuration:   defaultDurationSeconds,
			Temperature:       defaultTemperature,
			TopK:              defaultTopK,
			Workers:           defaultWorkers,
		},
		Stages: DefaultStagePolicies(),
		Inference: Inference{
			TimeoutSeconds:   defaultInferenceTimeout,
			GPUCostPerSecond: defaultGPUCostPerSecond,
			StemModel:        defaultStemModel,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Storage: Storage{
			Backend: defaultStorageBackend,
			Dir:     defaultStorageDir,
			Prefix:  defaultStoragePrefix,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completed:      true,
			BestEffort:     true,
			Failed:         true,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
