package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fission/internal/logging"
	"fission/internal/notifications"
	"fission/internal/progress"
	"fission/internal/project"
	"fission/internal/services"
	"fission/internal/stage"
)

// Run drives projectID through its remaining stages and returns the status it
// ended in. A second Run for a project that is already running returns
// ErrRunInProgress. Cancelling ctx stops the run at the current stage and
// leaves the project processing at its last checkpoint.
func (m *Manager) Run(ctx context.Context, projectID string) (project.Status, error) {
	if _, loaded := m.locks.LoadOrStore(projectID, struct{}{}); loaded {
		return "", ErrRunInProgress
	}
	defer m.locks.Delete(projectID)

	p, err := m.store.GetByID(ctx, projectID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", fmt.Errorf("%w: %s", project.ErrNotFound, projectID)
	}
	if p.Status.IsTerminal() {
		return p.Status, fmt.Errorf("%w: project %s is %s", progress.ErrAlreadyTerminal, p.ID, p.Status)
	}

	claimed, err := m.store.ClaimRun(ctx, p.ID, m.owner)
	if err != nil {
		return p.Status, err
	}
	if !claimed {
		return p.Status, ErrRunInProgress
	}
	defer func() {
		if err := m.store.ReleaseRun(context.WithoutCancel(ctx), p.ID, m.owner); err != nil {
			m.logger.Warn("release run claim failed",
				logging.String(logging.FieldProjectID, p.ID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "run_release_failed"),
				logging.String(logging.FieldImpact, "project stays claimed until the heartbeat timeout"),
			)
		}
	}()

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(services.WithProjectID(hbCtx, p.ID), &hbWG, p.ID, m.owner)
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()

	m.metrics.RunStarted()
	defer m.metrics.RunFinished()

	status, err := m.runStages(ctx, p)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		m.setLastError(err)
	}
	return status, err
}

func (m *Manager) runStages(ctx context.Context, p *project.Project) (project.Status, error) {
	ctx = services.WithProjectID(ctx, p.ID)
	logger := logging.WithContext(ctx, m.logger)

	fresh := p.Status == project.StatusPending
	if fresh && m.cancelRequested(ctx, logger, p.ID) {
		return m.cancelRun(ctx, p)
	}
	if err := m.tracker.Begin(ctx, p); err != nil {
		return p.Status, err
	}
	if fresh {
		m.notify(ctx, notifications.EventProjectStarted, notifications.Payload{
			"projectID": p.ID,
			"source":    p.SourcePath,
		})
	}
	logger.Info("project run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("checkpoint", string(p.Stage)),
		logging.Int("progress_percent", p.ProgressPercent),
	)

	pending := remaining(m.pipeline(), p.Stage)
	for i, stg := range pending {
		if err := ctx.Err(); err != nil {
			return m.interrupted(logger, p, err)
		}

		result := m.executeStage(ctx, p, stg)
		if err := ctx.Err(); err != nil {
			return m.interrupted(logger, p, err)
		}

		if result.Outcome == stage.OutcomeHardFailure {
			return m.handleStageFailure(ctx, p, stg.stage, result)
		}
		if err := m.tracker.Advance(ctx, p, stg.stage, stg.stage.Percent()); err != nil {
			return p.Status, err
		}
		if result.Outcome == stage.OutcomePartialSuccess {
			m.notify(ctx, notifications.EventStagePartial, notifications.Payload{
				"projectID": p.ID,
				"source":    p.SourcePath,
				"stage":     string(stg.stage),
				"failed":    len(result.Failures),
				"total":     len(result.Failures) + result.Output.Produced,
			})
		}

		if i < len(pending)-1 && m.cancelRequested(ctx, logger, p.ID) {
			return m.cancelRun(ctx, p)
		}
	}

	if err := m.tracker.MarkCompleted(ctx, p); err != nil {
		return p.Status, err
	}
	m.metrics.ProjectFinished(string(project.StatusCompleted))
	m.notifyCompleted(ctx, p)
	logger.Info("project completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("progress_percent", p.ProgressPercent),
	)
	return p.Status, nil
}

func (m *Manager) executeStage(ctx context.Context, p *project.Project, stg pipelineStage) stage.Result {
	stageCtx := withStageContext(ctx, p, stg.stage, uuid.NewString())
	logger := logging.WithContext(stageCtx, m.logger)

	if stg.handler == nil {
		logger.Warn("missing stage handler", logging.String(logging.FieldStage, string(stg.stage)))
		return stage.HardFailure(services.Wrap(services.ErrConfiguration, string(stg.stage), "execute", "stage has no handler", nil))
	}

	start := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("stage_label", stageLabel(stg.stage)),
	)
	snapshot := p.Clone()
	result := runHandler(stageCtx, stg.handler, snapshot)
	elapsed := time.Since(start)
	if result.Continues() {
		adoptStageOutputs(p, snapshot)
	}
	m.metrics.ObserveStage(string(stg.stage), result.Outcome.String(), elapsed)

	switch result.Outcome {
	case stage.OutcomeHardFailure:
		// Logged by handleStageFailure.
	case stage.OutcomePartialSuccess:
		logging.WarnWithContext(logger, "stage completed with failed units", "stage_partial",
			logging.String("summary", result.Output.Summary),
			logging.Int("failed_units", len(result.Failures)),
			logging.Any("failures", result.Failures),
			logging.Duration("stage_duration", elapsed),
			logging.String(logging.FieldImpact, "some assets were not produced"),
		)
	default:
		logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.String("summary", result.Output.Summary),
			logging.Int("produced", result.Output.Produced),
			logging.Duration("stage_duration", elapsed),
		)
	}
	return result
}

// adoptStageOutputs copies the fields stages record on their project snapshot.
// Progress fields stay owned by the tracker.
func adoptStageOutputs(p, snapshot *project.Project) {
	p.MediaPath = snapshot.MediaPath
	p.DurationSeconds = snapshot.DurationSeconds
	p.SizeBytes = snapshot.SizeBytes
	p.ManifestJSON = snapshot.ManifestJSON
}

// runHandler converts a handler panic into a hard failure.
func runHandler(ctx context.Context, handler stage.Handler, p *project.Project) (result stage.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = stage.HardFailure(services.Wrap(services.ErrExternalTool, "workflow", "execute stage", fmt.Sprintf("panic: %v", r), nil))
		}
	}()
	return handler.Execute(ctx, p)
}

func (m *Manager) interrupted(logger *slog.Logger, p *project.Project, err error) (project.Status, error) {
	logger.Info("project run interrupted; will resume from checkpoint",
		logging.String(logging.FieldEventType, "run_interrupted"),
		logging.String("checkpoint", string(p.Stage)),
		logging.Int("progress_percent", p.ProgressPercent),
	)
	return p.Status, err
}

// cancelRequested reads the cancel flag. A read failure is logged and treated
// as not cancelled.
func (m *Manager) cancelRequested(ctx context.Context, logger *slog.Logger, projectID string) bool {
	cancelled, err := m.store.CancelRequested(ctx, projectID)
	if err != nil {
		logging.WarnWithContext(logger, "cancel flag unavailable; continuing", "cancel_check_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a pending cancel request is honoured after the next stage"),
		)
		return false
	}
	return cancelled
}

func (m *Manager) cancelRun(ctx context.Context, p *project.Project) (project.Status, error) {
	if err := m.tracker.MarkFailed(ctx, p, p.Stage, CancelledReason); err != nil {
		return p.Status, err
	}
	m.metrics.ProjectFinished(string(project.StatusFailed))
	logging.WithContext(ctx, m.logger).Info("project cancelled",
		logging.String(logging.FieldEventType, "run_cancelled"),
		logging.String(logging.FieldStage, string(p.Stage)),
	)
	m.notify(ctx, notifications.EventProjectFailed, notifications.Payload{
		"projectID": p.ID,
		"source":    p.SourcePath,
		"stage":     string(p.Stage),
		"reason":    CancelledReason,
	})
	return p.Status, nil
}
