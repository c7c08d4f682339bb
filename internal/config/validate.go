package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

var knownStages = []string{
	StageIntentAnalysis,
	StageGeneration,
	StageArrangement,
	StageMixing,
	StageMastering,
	StageQualityEvaluation,
	StagePromptEnhancement,
	StageStemSeparation,
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateInference(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.MaxAttempts < 1 {
		return errors.New("pipeline.max_attempts must be at least 1")
	}
	if p.QualityThreshold < 0 || p.QualityThreshold > 1 {
		return errors.New("pipeline.quality_threshold must be between 0 and 1")
	}
	if p.ThresholdStep < 0 || p.ThresholdStep > 1 {
		return errors.New("pipeline.threshold_step must be between 0 and 1")
	}
	if p.DefaultDuration <= 0 {
		return errors.New("pipeline.default_duration must be positive")
	}
	if p.Temperature < 0 {
		return errors.New("pipeline.temperature must not be negative")
	}
	if p.TopK < 0 {
		return errors.New("pipeline.top_k must not be negative")
	}
	if p.Workers < 1 {
		return errors.New("pipeline.workers must be at least 1")
	}
	return nil
}

func (c *Config) validateStages() error {
	for name, policy := range c.Stages {
		if !slices.Contains(knownStages, name) {
			return fmt.Errorf("stages.%s: unknown stage (expected one of %s)", name, strings.Join(knownStages, ", "))
		}
		if policy.TimeoutSeconds <= 0 {
			return fmt.Errorf("stages.%s.timeout_seconds must be positive", name)
		}
		if policy.MaxAttempts < 1 {
			return fmt.Errorf("stages.%s.max_attempts must be at least 1", name)
		}
		if policy.InitialIntervalMS < 0 || policy.MaxIntervalMS < 0 {
			return fmt.Errorf("stages.%s: retry intervals must not be negative", name)
		}
		if policy.MaxIntervalMS < policy.InitialIntervalMS {
			return fmt.Errorf("stages.%s.max_interval_ms must be >= initial_interval_ms", name)
		}
		if policy.Multiplier < 1 {
			return fmt.Errorf("stages.%s.multiplier must be at least 1", name)
		}
	}
	return nil
}

func (c *Config) validateInference() error {
	if c.Inference.BaseURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Inference.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("inference.base_url %q must be an absolute URL", c.Inference.BaseURL)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageNone, StorageLocal:
		return nil
	case StorageS3:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when storage.backend is s3")
		}
		if c.Storage.Region == "" {
			return errors.New("storage.region must be set when storage.backend is s3")
		}
		return nil
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (expected none, local or s3)", c.Storage.Backend)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
