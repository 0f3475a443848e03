package workflow

import (
	"context"
	"strings"

	"fission/internal/logging"
	"fission/internal/notifications"
	"fission/internal/project"
	"fission/internal/services"
	"fission/internal/stage"
)

func (m *Manager) handleStageFailure(ctx context.Context, p *project.Project, failed project.Stage, result stage.Result) (project.Status, error) {
	logger := logging.WithContext(services.WithStage(ctx, string(failed)), m.logger)

	reason := classifyStageFailure(failed, result)
	details := services.Details(result.Err)
	attrs := []logging.Attr{
		logging.String("resolved_status", string(project.StatusFailed)),
		logging.String("error_message", reason),
		logging.Alert("stage_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorCode, details.Code),
		logging.String(logging.FieldErrorHint, failureHint(details.Kind)),
		logging.String(logging.FieldEventType, "stage_failure"),
	}
	if result.Err != nil {
		attrs = append(attrs, logging.Error(result.Err))
	}
	logger.Error("stage failed", logging.Args(attrs...)...)

	if err := m.tracker.MarkFailed(ctx, p, failed, reason); err != nil {
		return p.Status, err
	}
	m.metrics.ProjectFinished(string(project.StatusFailed))
	m.notify(ctx, notifications.EventProjectFailed, notifications.Payload{
		"projectID": p.ID,
		"source":    p.SourcePath,
		"stage":     string(failed),
		"reason":    reason,
	})
	return p.Status, nil
}

func classifyStageFailure(failed project.Stage, result stage.Result) string {
	if reason := strings.TrimSpace(result.Reason); reason != "" {
		return reason
	}
	if result.Err != nil {
		return services.FailureReason(result.Err)
	}
	return string(failed) + " failed without error detail"
}

func failureHint(kind services.ErrorKind) string {
	switch kind {
	case services.KindTransient, services.KindTimeout:
		return "provider kept failing; check its availability then run 'fission project retry'"
	case services.KindConfiguration:
		return "fix the configuration and run 'fission project retry'"
	case services.KindValidation:
		return "the source or provider output was rejected; inspect the project log"
	case services.KindExternal:
		return "an external tool failed; check that ffmpeg, ffprobe and whisper run by hand"
	default:
		return "inspect the project log"
	}
}
