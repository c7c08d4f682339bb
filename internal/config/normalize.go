package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeStages()
	c.normalizeInference()
	c.normalizeLLM()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("AURAX_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.MaxAttempts == 0 {
		c.Pipeline.MaxAttempts = defaultMaxAttempts
	}
	if c.Pipeline.ThresholdStep == 0 {
		c.Pipeline.ThresholdStep = defaultThresholdStep
	}
	if c.Pipeline.EnhancementSuffix == "" {
		c.Pipeline.EnhancementSuffix = defaultEnhancementSuffix
	}
	c.Pipeline.DefaultStyle = strings.TrimSpace(c.Pipeline.DefaultStyle)
	if c.Pipeline.DefaultStyle == "" {
		c.Pipeline.DefaultStyle = defaultStyle
	}
	if c.Pipeline.DefaultDuration == 0 {
		c.Pipeline.DefaultDuration = defaultDurationSeconds
	}
	if c.Pipeline.TopK == 0 {
		c.Pipeline.TopK = defaultTopK
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = defaultWorkers
	}
}

// normalizeStages fills unset fields of configured stages from the defaults
// and adds default policies for stages the file does not mention.
func (c *Config) normalizeStages() {
	defaults := DefaultStagePolicies()
	merged := make(map[string]StagePolicy, len(defaults))
	for name, def := range defaults {
		merged[name] = def
	}
	for rawName, policy := range c.Stages {
		name := strings.ToLower(strings.TrimSpace(rawName))
		def, ok := defaults[name]
		if !ok {
			def = defaults[StageArrangement]
		}
		if policy.TimeoutSeconds == 0 {
			policy.TimeoutSeconds = def.TimeoutSeconds
		}
		if policy.MaxAttempts == 0 {
			policy.MaxAttempts = def.MaxAttempts
		}
		if policy.InitialIntervalMS == 0 {
			policy.InitialIntervalMS = def.InitialIntervalMS
		}
		if policy.MaxIntervalMS == 0 {
			policy.MaxIntervalMS = def.MaxIntervalMS
		}
		if policy.Multiplier == 0 {
			policy.Multiplier = def.Multiplier
		}
		if policy.NonRetryable == nil {
			policy.NonRetryable = append([]string(nil), def.NonRetryable...)
		}
		for i, kind := range policy.NonRetryable {
			policy.NonRetryable[i] = strings.ToLower(strings.TrimSpace(kind))
		}
		merged[name] = policy
	}
	c.Stages = merged
}

func (c *Config) normalizeInference() {
	c.Inference.BaseURL = strings.TrimRight(strings.TrimSpace(c.Inference.BaseURL), "/")
	if c.Inference.BaseURL == "" {
		if value, ok := os.LookupEnv("AURAX_INFERENCE_URL"); ok {
			c.Inference.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Inference.APIKey = strings.TrimSpace(c.Inference.APIKey)
	if c.Inference.APIKey == "" {
		if value, ok := os.LookupEnv("AURAX_INFERENCE_API_KEY"); ok {
			c.Inference.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Inference.TimeoutSeconds <= 0 {
		c.Inference.TimeoutSeconds = defaultInferenceTimeout
	}
	if c.Inference.GPUCostPerSecond == 0 {
		c.Inference.GPUCostPerSecond = defaultGPUCostPerSecond
	}
	c.Inference.StemModel = strings.TrimSpace(c.Inference.StemModel)
	if c.Inference.StemModel == "" {
		c.Inference.StemModel = defaultStemModel
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	if c.Storage.Backend == StorageLocal {
		if strings.TrimSpace(c.Storage.Dir) == "" {
			c.Storage.Dir = defaultStorageDir
		}
		var err error
		if c.Storage.Dir, err = expandPath(c.Storage.Dir); err != nil {
			return fmt.Errorf("storage.dir: %w", err)
		}
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	if c.Storage.AccessKey == "" {
		if value, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok {
			c.Storage.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.Storage.SecretKey == "" {
		if value, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok {
			c.Storage.SecretKey = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
