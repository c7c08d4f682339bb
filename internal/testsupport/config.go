package testsupport

import (
	"path/filepath"
	"testing"

	"aurax/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry backoff is shrunk to milliseconds so failing stages finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Storage.Dir = filepath.Join(base, "payloads")
	cfgVal.Workflow.QueuePollInterval = 1
	for name, policy := range cfgVal.Stages {
		policy.InitialIntervalMS = 1
		policy.MaxIntervalMS = 5
		cfgVal.Stages[name] = policy
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMaxAttempts overrides the regeneration attempt ceiling.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.MaxAttempts = n
	}
}

// WithStageTimeout overrides the timeout for one stage.
func WithStageTimeout(name string, seconds int) ConfigOption {
	return func(b *configBuilder) {
		policy := b.cfg.StagePolicy(name)
		policy.TimeoutSeconds = seconds
		b.cfg.Stages[name] = policy
	}
}

// WithStorageBackend selects the payload storage backend.
func WithStorageBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.Backend = backend
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
