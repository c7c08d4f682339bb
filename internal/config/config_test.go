package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aurax/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want 3", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Pipeline.QualityThreshold != 0.7 || cfg.Pipeline.ThresholdStep != 0.1 {
		t.Fatalf("unexpected quality gate defaults: %+v", cfg.Pipeline)
	}
}

func TestDefaultStagePolicies(t *testing.T) {
	policies := config.DefaultStagePolicies()
	gen := policies[config.StageGeneration]
	if gen.TimeoutSeconds != 300 || gen.MaxAttempts != 3 || gen.Multiplier != 2.0 {
		t.Fatalf("unexpected generation policy: %+v", gen)
	}
	if gen.InitialIntervalMS != 5000 || gen.MaxIntervalMS != 60000 {
		t.Fatalf("unexpected generation backoff: %+v", gen)
	}
	if len(gen.NonRetryable) == 0 || gen.NonRetryable[0] != "resource_exhausted" {
		t.Fatalf("generation should treat resource exhaustion as non-retryable: %+v", gen.NonRetryable)
	}
	eval := policies[config.StageQualityEvaluation]
	if eval.MaxAttempts != 1 {
		t.Fatalf("quality evaluation should not retry, got %d attempts", eval.MaxAttempts)
	}
	if intent := policies[config.StageIntentAnalysis]; intent.TimeoutSeconds >= gen.TimeoutSeconds || intent.MaxAttempts >= gen.MaxAttempts {
		t.Fatalf("intent analysis should be shorter and retry less than generation: %+v", intent)
	}
}

func TestLoadMergesPartialStageTables(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := writeConfig(t, `
[pipeline]
max_attempts = 5

[stages.generation]
timeout_seconds = 120
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s, got %s (exists=%v)", path, resolved, exists)
	}
	if cfg.Pipeline.MaxAttempts != 5 {
		t.Fatalf("max attempts = %d, want 5", cfg.Pipeline.MaxAttempts)
	}
	gen := cfg.StagePolicy(config.StageGeneration)
	if gen.TimeoutSeconds != 120 {
		t.Fatalf("generation timeout = %d, want 120", gen.TimeoutSeconds)
	}
	if gen.MaxAttempts != 3 || gen.Multiplier != 2.0 {
		t.Fatalf("expected unset fields to fall back to defaults, got %+v", gen)
	}
	if mix := cfg.StagePolicy(config.StageMixing); mix.TimeoutSeconds != 180 {
		t.Fatalf("mixing timeout = %d, want 180", mix.TimeoutSeconds)
	}
	if !strings.HasPrefix(cfg.Paths.StateDir, home) {
		t.Fatalf("expected state dir under %s, got %s", home, cfg.Paths.StateDir)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Storage.Backend != config.StorageLocal {
		t.Fatalf("storage backend = %q, want local", cfg.Storage.Backend)
	}
}

func TestLoadEnvironmentFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", " sk-test ")
	t.Setenv("AURAX_INFERENCE_URL", "http://gpu.local:9000/")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("llm api key = %q", cfg.LLM.APIKey)
	}
	if cfg.Inference.BaseURL != "http://gpu.local:9000" {
		t.Fatalf("inference base url = %q", cfg.Inference.BaseURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"threshold above one", func(c *config.Config) { c.Pipeline.QualityThreshold = 1.5 }, "quality_threshold"},
		{"zero attempts", func(c *config.Config) { c.Pipeline.MaxAttempts = 0 }, "max_attempts"},
		{"unknown stage", func(c *config.Config) {
			c.Stages["mystery"] = config.StagePolicy{TimeoutSeconds: 1, MaxAttempts: 1, Multiplier: 1}
		}, "unknown stage"},
		{"multiplier below one", func(c *config.Config) {
			p := c.Stages[config.StageMixing]
			p.Multiplier = 0.5
			c.Stages[config.StageMixing] = p
		}, "multiplier"},
		{"s3 without bucket", func(c *config.Config) {
			c.Storage.Backend = config.StorageS3
			c.Storage.Region = "us-east-1"
		}, "storage.bucket"},
		{"bad inference url", func(c *config.Config) { c.Inference.BaseURL = "gpu-host" }, "inference.base_url"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Inference.BaseURL != "http://127.0.0.1:8000" {
		t.Fatalf("inference base url = %q", cfg.Inference.BaseURL)
	}
}
