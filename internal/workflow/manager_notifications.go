package workflow

import (
	"context"
	"errors"

	"fission/internal/logging"
	"fission/internal/notifications"
	"fission/internal/project"
)

func (m *Manager) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		logger := logging.WithContext(ctx, m.logger)
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, notification not sent", logging.String("event", string(event)))
			return
		}
		logger.Debug("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

func (m *Manager) notifyCompleted(ctx context.Context, p *project.Project) {
	payload := notifications.Payload{
		"projectID": p.ID,
		"source":    p.SourcePath,
	}
	counts, err := m.store.AssetCounts(ctx, p.ID)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "asset counts unavailable for completion notification", "asset_counts_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "completion notification omits asset totals"),
		)
	} else {
		payload["completed"] = counts[project.AssetCompleted]
		payload["failed"] = counts[project.AssetFailed]
	}
	m.notify(ctx, notifications.EventProjectCompleted, payload)
}
