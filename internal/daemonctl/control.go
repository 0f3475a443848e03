// Package daemonctl inspects and signals a running fission daemon from the
// CLI, using the daemon's lock and pid files.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"fission/internal/config"
	"fission/internal/daemon"
	"fission/internal/deps"
	"fission/internal/preflight"
	"fission/internal/project"
)

// ErrDaemonNotRunning indicates no daemon holds the lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// PIDPath returns the daemon pid file location for cfg.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "fission.pid")
}

// ProcessInfo reports whether a daemon holds the lock and its pid when known.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	lockPath := daemon.LockPath(cfg)
	if _, err := os.Stat(lockPath); errors.Is(err, os.ErrNotExist) {
		return false, 0, nil
	}
	probe := flock.New(lockPath)
	locked, err := probe.TryLock()
	if err != nil {
		return false, 0, fmt.Errorf("probe daemon lock: %w", err)
	}
	if locked {
		_ = probe.Unlock()
		return false, 0, nil
	}
	pid, err := readPID(PIDPath(cfg))
	if err != nil {
		return true, 0, err
	}
	return true, pid, nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid daemon pid file %q", path)
	}
	return pid, nil
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	ForcedKill bool
	PID        int
}

// Stop sends SIGTERM to the daemon and SIGKILL when it still holds the lock
// after gracePeriod.
func Stop(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("unable to determine daemon pid (pid file: %s)", PIDPath(cfg))
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return StopResult{}, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	result := StopResult{PID: pid}
	if err := WaitForShutdown(cfg, gracePeriod); err == nil {
		return result, nil
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	_ = os.Remove(PIDPath(cfg))
	result.ForcedKill = true
	return result, nil
}

// WaitForShutdown polls the lock until it is released or timeout passes.
func WaitForShutdown(cfg *config.Config, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		running, _, err := ProcessInfo(cfg)
		if err == nil && !running {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("timeout waiting for shutdown")
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Snapshot is the offline status view printed by the CLI.
type Snapshot struct {
	Running      bool
	PID          int
	DatabasePath string
	ProjectStats map[project.Status]int
	Dependencies []deps.Status
	Checks       []preflight.Result
}

// BuildStatusSnapshot reads daemon liveness, project counts, dependency
// availability, and preflight results without contacting the daemon.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Running:      running,
		PID:          pid,
		DatabasePath: cfg.DatabasePath(),
		Dependencies: preflight.CheckSystemDeps(ctx, cfg),
		Checks:       preflight.RunAll(ctx, cfg),
	}
	store, err := project.Open(cfg)
	if err != nil {
		return snap, fmt.Errorf("open project store: %w", err)
	}
	defer store.Close()
	stats, err := store.Stats(ctx)
	if err != nil {
		return snap, err
	}
	snap.ProjectStats = stats
	return snap, nil
}
