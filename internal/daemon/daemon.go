package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"fission/internal/config"
	"fission/internal/logging"
	"fission/internal/metrics"
	"fission/internal/notifications"
	"fission/internal/project"
	"fission/internal/workflow"
)

// Daemon coordinates the background pipeline and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *project.Store
	workflow *workflow.Manager
	metrics  *metrics.Metrics
	server   *metricsServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	Workflow       workflow.StatusSummary
	DatabasePath   string
	LockFilePath   string
	MetricsAddress string
}

// New constructs a daemon with initialized dependencies. reg may be nil when
// metrics are disabled.
func New(cfg *config.Config, store *project.Store, logger *slog.Logger, wf *workflow.Manager, reg *metrics.Metrics) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := LockPath(cfg)
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		metrics:  reg,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	if cfg.Metrics.Enabled && reg != nil {
		d.server = newMetricsServer(cfg.Metrics.Bind, d, d.logger)
	}
	return d, nil
}

// LockPath returns the daemon lock file location for cfg.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "fission.lock")
}

// Start acquires the daemon lock, starts the metrics listener, and launches
// the workflow manager.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fission daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.server.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		d.server.stop()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("fission daemon started",
		logging.String("lock", d.lockPath),
		logging.String("owner", d.workflow.Owner()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.server.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("fission daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:        d.running.Load(),
		Workflow:       d.workflow.Status(ctx),
		DatabasePath:   d.store.Path(),
		LockFilePath:   d.lockPath,
		MetricsAddress: d.server.address(),
	}
}

// TestNotification sends a test event through the configured notifiers.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	return SendTestNotification(ctx, d.cfg)
}

// SendTestNotification publishes EventTest using cfg's notifier settings.
func SendTestNotification(ctx context.Context, cfg *config.Config) (bool, string, error) {
	if cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if cfg.Notifications.NtfyTopic == "" && cfg.Notifications.AMQPURL == "" {
		return false, "no notifier configured", nil
	}
	svc := notifications.NewService(cfg)
	defer notifications.Close(svc)
	if err := svc.Publish(ctx, notifications.EventTest, notifications.Payload{"source": "fission"}); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
