package transcription

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

const stageName = "transcribe"

// TranscriptStore persists transcripts.
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, t *project.Transcript) error
}

// Stage is the Transcribe stage handler.
type Stage struct {
	store    TranscriptStore
	provider Provider
	policy   retry.Policy
	logger   *slog.Logger
	binaries []string
}

// NewStage constructs the handler with the whisper provider.
func NewStage(cfg *config.Config, store TranscriptStore, policy retry.Policy, logger *slog.Logger) *Stage {
	s := NewStageWithProvider(store, NewWhisper(OptionsFrom(cfg)), policy, logger)
	s.binaries = []string{cfg.Transcription.Binary, cfg.FFmpegBinary()}
	return s
}

// NewStageWithProvider allows injecting a provider (used in tests).
func NewStageWithProvider(store TranscriptStore, provider Provider, policy retry.Policy, logger *slog.Logger) *Stage {
	return &Stage{
		store:    store,
		provider: provider,
		policy:   policy,
		logger:   logging.NewComponentLogger(logger, stageName),
	}
}

// Execute transcribes the project's media and replaces its transcript.
func (s *Stage) Execute(ctx context.Context, p *project.Project) stage.Result {
	logger := logging.WithContext(ctx, s.logger)
	media, err := stage.RequireMedia(p, stageName)
	if err != nil {
		return stage.HardFailure(err)
	}

	started := time.Now()
	policy := s.policy.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		logging.WarnWithContext(logger, "transcription failed; retrying", "provider_retry",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldImpact, "transcription delayed"),
		)
	})
	transcript, err := retry.Do(ctx, policy, func(ctx context.Context) (project.Transcript, error) {
		return s.provider.Transcribe(ctx, media)
	}, nil)
	if err != nil {
		return stage.HardFailure(err)
	}

	transcript.ProjectID = p.ID
	if err := s.store.SaveTranscript(ctx, &transcript); err != nil {
		return stage.HardFailure(services.Wrap(services.ErrTransient, stageName, "persist transcript", "", err))
	}

	logger.Info("transcription complete",
		logging.Int("segments", len(transcript.Segments)),
		logging.String("language", transcript.Language),
		logging.Float64("transcript_seconds", transcript.Duration()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return stage.Success(stage.Output{
		Summary:  fmt.Sprintf("%d segments transcribed", len(transcript.Segments)),
		Produced: len(transcript.Segments),
	})
}

// HealthCheck reports whether whisper and ffmpeg are available.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	for _, binary := range s.binaries {
		if _, err := exec.LookPath(binary); err != nil {
			return stage.Unhealthy(stageName, fmt.Sprintf("%s not found on PATH", binary))
		}
	}
	return stage.Healthy(stageName)
}
