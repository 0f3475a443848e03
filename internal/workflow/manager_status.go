package workflow

import (
	"context"

	"fission/internal/logging"
	"fission/internal/project"
	"fission/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running      bool
	ActiveRuns   int
	LastError    string
	LastProject  *project.Project
	ProjectStats map[project.Status]int
	StageHealth  map[project.Stage]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, ActiveRuns: m.active}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	summary.LastProject = m.lastProject.Clone()
	stages := m.stages
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read project stats", logging.Error(err))
	}
	summary.ProjectStats = stats

	summary.StageHealth = make(map[project.Stage]stage.Health, len(stages))
	for _, stg := range stages {
		if stg.handler == nil {
			summary.StageHealth[stg.stage] = stage.Unhealthy(string(stg.stage), "no handler configured")
			continue
		}
		summary.StageHealth[stg.stage] = stg.handler.HealthCheck(ctx)
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastProject(p *project.Project) {
	m.mu.Lock()
	m.lastProject = p.Clone()
	m.mu.Unlock()
}
