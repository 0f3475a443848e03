package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fission/internal/logging"
	"fission/internal/project"
)

// HeartbeatMonitor refreshes run claims and reclaims stale ones.
type HeartbeatMonitor struct {
	store             *project.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *project.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		store:             store,
		logger:            logging.NewComponentLogger(logger, "workflow-heartbeat"),
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStale releases run claims whose heartbeat is older than the timeout
// so their projects become runnable again.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) error {
	if h.heartbeatTimeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale project runs",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "heartbeat_reclaim"),
		)
	}
	return nil
}

// StartLoop refreshes the claim held by owner on projectID until ctx is done.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, projectID, owner string) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, projectID, owner); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat update cancelled")
				} else {
					logging.WarnWithContext(logger, "heartbeat update failed", "heartbeat_failed",
						logging.Error(err),
						logging.String(logging.FieldImpact, "project may be reclaimed by another runner"),
					)
				}
			}
		}
	}
}
