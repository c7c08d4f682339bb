package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Pipeline contains the regeneration loop settings and request defaults.
type Pipeline struct {
	MaxAttempts       int     `toml:"max_attempts"`
	QualityThreshold  float64 `toml:"quality_threshold"`
	ThresholdStep     float64 `toml:"threshold_step"`
	EnhancementSuffix string  `toml:"enhancement_suffix"`
	DefaultStyle      string  `toml:"default_style"`
	DefaultDuration   float64 `toml:"default_duration"`
	Temperature       float64 `toml:"temperature"`
	TopK              int     `toml:"top_k"`
	Workers           int     `toml:"workers"`
}

// StagePolicy contains timeout and retry settings for one stage.
type StagePolicy struct {
	TimeoutSeconds    int      `toml:"timeout_seconds"`
	MaxAttempts       int      `toml:"max_attempts"`
	InitialIntervalMS int      `toml:"initial_interval_ms"`
	MaxIntervalMS     int      `toml:"max_interval_ms"`
	Multiplier        float64  `toml:"multiplier"`
	NonRetryable      []string `toml:"non_retryable"`
}

// Timeout returns the stage timeout as a duration.
func (p StagePolicy) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// InitialInterval returns the first retry backoff as a duration.
func (p StagePolicy) InitialInterval() time.Duration {
	return time.Duration(p.InitialIntervalMS) * time.Millisecond
}

// MaxInterval returns the backoff ceiling as a duration.
func (p StagePolicy) MaxInterval() time.Duration {
	return time.Duration(p.MaxIntervalMS) * time.Millisecond
}

// Inference contains configuration for the GPU inference service.
type Inference struct {
	BaseURL          string  `toml:"base_url"`
	APIKey           string  `toml:"api_key"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
	GPUCostPerSecond float64 `toml:"gpu_cost_per_second"`
	StemModel        string  `toml:"stem_model"`
}

// LLM contains connection settings for intent analysis and prompt enhancement.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Storage contains configuration for persisting final payloads.
type Storage struct {
	Backend   string `toml:"backend"`
	Dir       string `toml:"dir"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	PathStyle bool   `toml:"path_style"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	BestEffort     bool   `toml:"best_effort"`
	Failed         bool   `toml:"failed"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for aurax.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and API bind address
//   - Pipeline: attempt ceiling, quality gate, and request defaults
//   - Stages: per-stage timeout and retry policies
//   - Inference: GPU inference service endpoint
//   - LLM: intent analysis and prompt enhancement model
//   - Storage: final payload persistence (local or s3)
//   - Notifications: ntfy push notification settings
//   - Workflow: daemon polling intervals and heartbeats
//   - Logging: log format and level
type Config struct {
	Paths         Paths                  `toml:"paths"`
	Pipeline      Pipeline               `toml:"pipeline"`
	Stages        map[string]StagePolicy `toml:"stages"`
	Inference     Inference              `toml:"inference"`
	LLM           LLM                    `toml:"llm"`
	Storage       Storage                `toml:"storage"`
	Notifications Notifications          `toml:"notifications"`
	Workflow      Workflow               `toml:"workflow"`
	Logging       Logging                `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/aurax/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()
	// Decode into an empty map so partial [stages.*] tables merge with
	// defaults during normalize instead of replacing them wholesale.
	cfg.Stages = nil

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("aurax.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the path of the run store database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

// LockPath returns the path of the daemon lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "aurax.lock")
}

// StagePolicy returns the merged policy for a stage, falling back to the
// repository default when the stage is unknown to the config.
func (c *Config) StagePolicy(name string) StagePolicy {
	if policy, ok := c.Stages[name]; ok {
		return policy
	}
	if policy, ok := DefaultStagePolicies()[name]; ok {
		return policy
	}
	return DefaultStagePolicies()[StageArrangement]
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
