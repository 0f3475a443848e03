package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"fission/internal/config"
	"fission/internal/logging"
	"fission/internal/project"
	"fission/internal/retry"
	"fission/internal/services"
	"fission/internal/stage"
)

const stageName = "ingest"

// MediaStore persists the validated media handle.
type MediaStore interface {
	SetMedia(ctx context.Context, id, mediaPath string, durationSeconds float64, sizeBytes int64) error
}

// Stage is the Ingest stage handler.
type Stage struct {
	store    MediaStore
	provider Provider
	policy   retry.Policy
	logger   *slog.Logger
	binary   string
}

// NewStage constructs the ingest handler with the ffprobe provider.
func NewStage(cfg *config.Config, store MediaStore, policy retry.Policy, logger *slog.Logger) *Stage {
	return NewStageWithProvider(cfg, store, NewProbeProvider(cfg), policy, logger)
}

// NewStageWithProvider allows injecting a provider (used in tests).
func NewStageWithProvider(cfg *config.Config, store MediaStore, provider Provider, policy retry.Policy, logger *slog.Logger) *Stage {
	return &Stage{
		store:    store,
		provider: provider,
		policy:   policy,
		logger:   logging.NewComponentLogger(logger, stageName),
		binary:   cfg.FFprobeBinary(),
	}
}

// Execute validates the source and records the media handle on p.
func (s *Stage) Execute(ctx context.Context, p *project.Project) stage.Result {
	logger := logging.WithContext(ctx, s.logger)
	logger.Info("validating source", logging.String("source", p.SourcePath))

	policy := s.policy.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		logging.WarnWithContext(logger, "source fetch failed; retrying", "provider_retry",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldImpact, "ingest delayed"),
		)
	})
	media, err := retry.Do(ctx, policy, func(ctx context.Context) (Media, error) {
		return s.provider.FetchAndValidate(ctx, p.SourcePath)
	}, nil)
	if err != nil {
		return stage.HardFailure(err)
	}

	if err := s.store.SetMedia(ctx, p.ID, media.Handle, media.DurationSeconds, media.SizeBytes); err != nil {
		return stage.HardFailure(services.Wrap(services.ErrTransient, stageName, "persist media", "", err))
	}
	p.MediaPath = media.Handle
	p.DurationSeconds = media.DurationSeconds
	p.SizeBytes = media.SizeBytes

	logger.Info("source validated",
		logging.String("media", media.Handle),
		logging.Float64("duration_seconds", media.DurationSeconds),
		logging.Int64("size_bytes", media.SizeBytes),
	)
	return stage.Success(stage.Output{
		Summary:  fmt.Sprintf("%.1fs source validated", media.DurationSeconds),
		Produced: 1,
	})
}

// HealthCheck reports whether ffprobe is available.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if _, err := exec.LookPath(s.binary); err != nil {
		return stage.Unhealthy(stageName, fmt.Sprintf("%s not found on PATH", s.binary))
	}
	return stage.Healthy(stageName)
}
