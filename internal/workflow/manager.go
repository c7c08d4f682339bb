package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"aurax/internal/config"
	"aurax/internal/filestore"
	"aurax/internal/logging"
	"aurax/internal/notifications"
	"aurax/internal/progress"
	"aurax/internal/queue"
)

// errCancelRequested is the cancellation cause for user-initiated cancels,
// distinguishing them from daemon shutdown.
var errCancelRequested = errors.New("cancel requested")

// Manager coordinates run processing on top of the Controller.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	controller   *Controller
	logger       *slog.Logger
	pollInterval time.Duration
	notifier     notifications.Service
	files        filestore.Store
	registry     *progress.Registry

	heartbeat *HeartbeatMonitor

	lanes []*laneState

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastRun string
	active  map[string]*activeRun

	queueActive bool
	queueStart  time.Time
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier overrides the notification service.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithFileStore sets where final payloads are persisted.
func WithFileStore(fs filestore.Store) ManagerOption {
	return func(m *Manager) {
		m.files = fs
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, controller *Controller, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		controller:   controller,
		logger:       logging.NewComponentLogger(logger, "workflow-manager"),
		notifier:     notifications.NewService(cfg),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		registry:     progress.NewRegistry(),
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		active: make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(m)
	}

	workers := cfg.Pipeline.Workers
	if workers < 1 {
		workers = 1
	}
	for i := range workers {
		m.lanes = append(m.lanes, &laneState{
			name:         laneName(i),
			runReclaimer: i == 0,
		})
	}
	return m
}

// Registry exposes live progress trackers.
func (m *Manager) Registry() *progress.Registry {
	return m.registry
}

// Store exposes the run store.
func (m *Manager) Store() *queue.Store {
	return m.store
}
