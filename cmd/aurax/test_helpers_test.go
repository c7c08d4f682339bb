package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aurax/internal/config"
	"aurax/internal/daemon"
	"aurax/internal/filestore"
	"aurax/internal/logging"
	"aurax/internal/pipeline"
	"aurax/internal/queue"
	"aurax/internal/stage"
	"aurax/internal/testsupport"
	"aurax/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	fake       *testsupport.FakeStages
	apiAddr    string
	configPath string
}

func noSleep(context.Context, time.Duration) error { return nil }

func setupCLITestEnv(t *testing.T, fake *testsupport.FakeStages) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStorageBackend(config.StorageLocal))
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	inv, err := stage.NewInvoker(fake.Set(), cfg.Pipeline.EnhancementSuffix)
	if err != nil {
		t.Fatalf("NewInvoker: %v", err)
	}
	orch := pipeline.New(inv, pipeline.SettingsFromConfig(cfg), pipeline.WithSleeper(noSleep))
	ctl := workflow.NewController(orch, workflow.ControllerConfigFrom(cfg), nil)
	files, err := filestore.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, ctl, logger, workflow.WithFileStore(files))

	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		fake:       fake,
		apiAddr:    d.APIAddress(),
		configPath: configPath,
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runCLI(t, append([]string{"--api", e.apiAddr}, args...), e.configPath)
	return out, err
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
