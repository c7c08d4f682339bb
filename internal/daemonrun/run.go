package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"aurax/internal/config"
	"aurax/internal/daemon"
	"aurax/internal/filestore"
	"aurax/internal/logging"
	"aurax/internal/notifications"
	"aurax/internal/pipeline"
	"aurax/internal/preflight"
	"aurax/internal/queue"
	"aurax/internal/services/inference"
	"aurax/internal/services/llm"
	"aurax/internal/stage"
	"aurax/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the aurax daemon runtime loop and blocks until SIGINT/SIGTERM
// or cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	startedAt := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("aurax-%s.log", startedAt))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update aurax.log link: %v\n", err)
	}

	results := preflight.RunAll(signalCtx, cfg)
	logPreflight(logger, results)

	pidPath := filepath.Join(cfg.Paths.StateDir, "aurax.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open run store", logging.Error(err))
		return err
	}

	manager, err := NewManager(signalCtx, cfg, store, logger)
	if err != nil {
		store.Close()
		return err
	}

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()
	d.SetPreflight(results)

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check the lock file, API bind address, and run store access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("aurax daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// NewManager wires the collaborators named by cfg into a workflow manager
// backed by store.
func NewManager(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger) (*workflow.Manager, error) {
	set, err := BuildStages(cfg)
	if err != nil {
		return nil, err
	}
	invoker, err := stage.NewInvoker(set, cfg.Pipeline.EnhancementSuffix)
	if err != nil {
		return nil, fmt.Errorf("configure stages: %w", err)
	}
	orchestrator := pipeline.New(invoker, pipeline.SettingsFromConfig(cfg))
	controller := workflow.NewController(orchestrator, workflow.ControllerConfigFrom(cfg), logger)

	files, err := filestore.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("configure payload storage: %w", err)
	}
	return workflow.NewManager(cfg, store, controller, logger,
		workflow.WithFileStore(files),
		workflow.WithNotifier(notifications.NewService(cfg)),
	), nil
}

// BuildStages binds the inference service to the audio stages and the
// language model (or its heuristic fallback) to intent analysis and prompt
// enhancement.
func BuildStages(cfg *config.Config) (stage.Set, error) {
	gpu, err := inference.NewClient(inference.ConfigFrom(cfg))
	if err != nil {
		return stage.Set{}, fmt.Errorf("configure inference client: %w", err)
	}
	model := llm.New(llm.ConfigFrom(cfg), cfg.Pipeline.EnhancementSuffix)
	return stage.Set{
		Intent:    model,
		Composer:  gpu,
		Arranger:  gpu,
		Mixer:     gpu,
		Masterer:  gpu,
		Evaluator: gpu,
		Enhancer:  model,
		Stems:     gpu,
	}, nil
}

func logPreflight(logger *slog.Logger, results []preflight.Result) {
	for _, res := range results {
		if res.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_passed"),
				logging.String("check", res.Name),
				logging.String("detail", res.Detail),
			)
			continue
		}
		logger.Warn("preflight check failed",
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String("check", res.Name),
			logging.String("detail", res.Detail),
			logging.String(logging.FieldImpact, "runs depending on this check will fail"),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "aurax.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
