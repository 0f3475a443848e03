package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fission/internal/config"
	"fission/internal/logging"
	"fission/internal/metrics"
	"fission/internal/notifications"
	"fission/internal/progress"
	"fission/internal/project"
)

// Manager coordinates project runs using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *project.Store
	logger       *slog.Logger
	pollInterval time.Duration
	notifier     notifications.Service
	metrics      *metrics.Metrics
	tracker      *progress.Tracker
	heartbeat    *HeartbeatMonitor
	owner        string

	stages []pipelineStage
	locks  sync.Map

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	active      int
	lastErr     error
	lastProject *project.Project
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier overrides the notifier built from config.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithMetrics records stage and run metrics into reg.
func WithMetrics(reg *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = reg }
}

// WithOwnerID fixes the run-claim owner identifier. The default is a random
// UUID per manager.
func WithOwnerID(owner string) ManagerOption {
	return func(m *Manager) {
		if owner != "" {
			m.owner = owner
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *project.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "workflow-manager"),
		pollInterval: time.Duration(cfg.Workflow.PollInterval) * time.Second,
		owner:        uuid.NewString(),
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notifier == nil {
		m.notifier = notifications.NewService(cfg)
	}
	m.tracker = progress.New(store, logger, progress.WithObserver(m.setLastProject))
	return m
}

// ConfigureStages registers the concrete stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) {
	m.mu.Lock()
	m.stages = set.pipeline()
	m.mu.Unlock()
}

// Owner returns the identifier this manager uses for run claims.
func (m *Manager) Owner() string {
	return m.owner
}

func (m *Manager) pipeline() []pipelineStage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stages
}
