package workflow

import (
	"context"
	"errors"
	"time"

	"fission/internal/logging"
	"fission/internal/project"
)

// Start begins polling for runnable projects.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.pollLoop(runCtx)
	return nil
}

// Stop terminates polling, waits for active runs to return, and releases any
// claims this manager still holds.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer releaseCancel()
	if err := m.store.ReleaseOwner(releaseCtx, m.owner); err != nil {
		m.logger.Warn("release run claims failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "release_owner_failed"),
			logging.String(logging.FieldImpact, "projects resume after the heartbeat timeout"),
		)
	}
}

func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.ReclaimStale(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "reclaim stale runs failed; stuck projects may remain", "heartbeat_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check project database access"),
			)
		}

		slots := m.freeSlots()
		if slots == 0 {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}
		projects, err := m.store.NextRunnable(ctx, slots)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleNextProjectError(ctx, err)
			continue
		}
		if len(projects) == 0 {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}
		for _, p := range projects {
			m.launch(ctx, p)
		}
	}
}

func (m *Manager) freeSlots() int {
	limit := m.cfg.Workflow.MaxConcurrentProjects
	if limit <= 0 {
		limit = 1
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if free := limit - m.active; free > 0 {
		return free
	}
	return 0
}

func (m *Manager) launch(ctx context.Context, p *project.Project) {
	m.wg.Add(1)
	// Take the slot before the goroutine starts so the next poll sees it.
	m.acquireSlot()
	go func() {
		defer m.wg.Done()
		defer m.releaseSlot()
		status, err := m.Run(ctx, p.ID)
		if err != nil && !errors.Is(err, ErrRunInProgress) && ctx.Err() == nil {
			m.logger.Error("project run failed",
				logging.String(logging.FieldProjectID, p.ID),
				logging.String("status", string(status)),
				logging.Error(err),
				logging.String(logging.FieldEventType, "run_error"),
				logging.String(logging.FieldErrorHint, "inspect the project with 'fission project show'"),
			)
		}
	}()
}

func (m *Manager) handleNextProjectError(ctx context.Context, err error) {
	m.setLastError(err)
	m.logger.Error("failed to fetch runnable projects",
		logging.Error(err),
		logging.String(logging.FieldEventType, "project_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check project database access"),
	)
	m.waitOrShutdown(ctx, time.Duration(m.cfg.Workflow.ErrorRetryInterval)*time.Second)
}

func (m *Manager) waitOrShutdown(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = 10 * time.Millisecond
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (m *Manager) acquireSlot() {
	m.mu.Lock()
	m.active++
	m.mu.Unlock()
}

func (m *Manager) releaseSlot() {
	m.mu.Lock()
	m.active--
	m.mu.Unlock()
}
