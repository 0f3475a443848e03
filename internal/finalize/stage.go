package finalize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fission/internal/logging"
	"fission/internal/project"
	"fission/internal/services"
	"fission/internal/stage"
)

const stageName = "finalize"

// Store is the persistence Finalize reads and writes.
type Store interface {
	GetTranscript(ctx context.Context, projectID string) (*project.Transcript, error)
	ListMoments(ctx context.Context, projectID string) ([]project.Moment, error)
	ListAssets(ctx context.Context, projectID string) ([]project.Asset, error)
	SetManifest(ctx context.Context, id, manifestJSON string) error
}

// Stage is the Finalize stage handler.
type Stage struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewStage constructs the Finalize stage.
func NewStage(store Store, logger *slog.Logger) *Stage {
	return &Stage{
		store:  store,
		logger: logging.NewComponentLogger(logger, stageName),
		now:    time.Now,
	}
}

// Execute validates the project's outputs and records its manifest.
func (s *Stage) Execute(ctx context.Context, p *project.Project) stage.Result {
	logger := logging.WithContext(ctx, s.logger)

	transcript, err := s.store.GetTranscript(ctx, p.ID)
	if err != nil {
		return stage.HardFailure(services.Wrap(services.ErrTransient, stageName, "load transcript", "", err))
	}
	if transcript == nil || len(transcript.Segments) == 0 {
		return stage.HardFailure(services.Wrap(services.ErrValidation, stageName, "validate",
			"transcript missing; rerun transcription", nil))
	}
	moments, err := s.store.ListMoments(ctx, p.ID)
	if err != nil {
		return stage.HardFailure(services.Wrap(services.ErrTransient, stageName, "load moments", "", err))
	}
	if len(moments) == 0 {
		return stage.HardFailure(services.Wrap(services.ErrValidation, stageName, "validate",
			"no moments recorded; rerun analysis", nil))
	}
	assets, err := s.store.ListAssets(ctx, p.ID)
	if err != nil {
		return stage.HardFailure(services.Wrap(services.ErrTransient, stageName, "load assets", "", err))
	}

	manifest := Build(p, transcript, moments, assets, s.now())
	encoded, err := manifest.Encode()
	if err != nil {
		return stage.HardFailure(services.Wrap(services.ErrValidation, stageName, "encode manifest", "", err))
	}
	if err := s.store.SetManifest(ctx, p.ID, encoded); err != nil {
		return stage.HardFailure(services.Wrap(services.ErrTransient, stageName, "save manifest", "", err))
	}
	p.ManifestJSON = encoded

	completed := manifest.Counts[string(project.AssetCompleted)]
	failed := manifest.Counts[string(project.AssetFailed)]
	logger.Info("manifest recorded",
		logging.Int("moments", len(moments)),
		logging.Int("assets_completed", completed),
		logging.Int("assets_failed", failed),
	)
	if completed == 0 {
		logging.WarnWithContext(logger, "project finished without completed assets", "finalize_empty",
			logging.Int("assets_failed", failed),
			logging.String(logging.FieldImpact, "no deliverables for this project"),
			logging.String(logging.FieldErrorHint, "inspect failed asset rows with 'fission project show'"),
		)
	}
	return stage.Success(stage.Output{
		Summary:  fmt.Sprintf("%d assets completed, %d failed", completed, failed),
		Produced: completed,
	})
}

// HealthCheck always reports ready; Finalize has no dependencies.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stageName)
}
