package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fission/internal/config"
	"fission/internal/logging"
	"fission/internal/project"
	"fission/internal/retry"
	"fission/internal/services"
	"fission/internal/services/llm"
	"fission/internal/stage"
)

const stageName = "analyze"

// MomentStore reads transcripts and replaces moments.
type MomentStore interface {
	GetTranscript(ctx context.Context, projectID string) (*project.Transcript, error)
	ReplaceMoments(ctx context.Context, projectID string, moments []project.Moment) ([]project.Moment, error)
}

// Stage is the Analyze stage handler.
type Stage struct {
	store    MomentStore
	provider Provider
	fallback FallbackPolicy
	policy   retry.Policy
	logger   *slog.Logger
	client   *llm.Client
}

// NewStage constructs the handler with the LLM provider.
func NewStage(cfg *config.Config, store MomentStore, policy retry.Policy, logger *slog.Logger) *Stage {
	client := llm.NewClient(llm.ConfigFrom(cfg))
	s := NewStageWithProvider(store, NewLLMProvider(client), FallbackFromConfig(cfg), policy, logger)
	s.client = client
	return s
}

// NewStageWithProvider allows injecting a provider (used in tests).
func NewStageWithProvider(store MomentStore, provider Provider, fallback FallbackPolicy, policy retry.Policy, logger *slog.Logger) *Stage {
	return &Stage{
		store:    store,
		provider: provider,
		fallback: fallback,
		policy:   policy,
		logger:   logging.NewComponentLogger(logger, stageName),
	}
}

// Execute identifies moments and replaces the project's moments.
func (s *Stage) Execute(ctx context.Context, p *project.Project) stage.Result {
	logger := logging.WithContext(ctx, s.logger)
	transcript, err := s.store.GetTranscript(ctx, p.ID)
	if err != nil {
		return stage.HardFailure(services.Wrap(services.ErrTransient, stageName, "load transcript", "", err))
	}
	if transcript == nil || len(transcript.Segments) == 0 {
		return stage.HardFailure(services.Wrap(services.ErrValidation, stageName, "load transcript",
			"Transcript missing; rerun transcription", nil))
	}

	policy := s.policy.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		logging.WarnWithContext(logger, "moment identification failed; retrying", "provider_retry",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldImpact, "analysis delayed"),
		)
	})
	moments, err := retry.Do(ctx, policy, func(ctx context.Context) ([]project.Moment, error) {
		return s.provider.IdentifyMoments(ctx, transcript, p.Category)
	}, nil)

	fallback := false
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return stage.HardFailure(err)
		}
		details := services.Details(err)
		logging.WarnWithContext(logger, "moment identification unavailable; using fallback segmentation", "analysis_fallback",
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.String(logging.FieldErrorCode, details.Code),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check llm settings and provider status"),
			logging.String(logging.FieldImpact, "moments are fixed-interval windows with neutral scores"),
		)
		moments = s.fallback.Segment(transcript)
		fallback = true
		if len(moments) == 0 {
			return stage.HardFailure(services.Wrap(services.ErrValidation, stageName, "fallback segmentation",
				"transcript produced no moments", err))
		}
	}

	saved, err := s.store.ReplaceMoments(ctx, p.ID, moments)
	if err != nil {
		return stage.HardFailure(services.Wrap(services.ErrTransient, stageName, "persist moments", "", err))
	}

	logger.Info("moments identified",
		logging.Int("moments", len(saved)),
		logging.Bool("fallback", fallback),
	)
	summary := fmt.Sprintf("%d moments identified", len(saved))
	if fallback {
		summary = fmt.Sprintf("%d fallback moments", len(saved))
	}
	return stage.Success(stage.Output{Summary: summary, Produced: len(saved)})
}

// HealthCheck reports whether the LLM is configured. An unconfigured client
// still runs, through fallback segmentation only.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	if s.client == nil {
		return stage.Healthy(stageName)
	}
	if !s.client.Configured() {
		return stage.Unhealthy(stageName, "llm api key missing; fallback segmentation only")
	}
	return stage.Healthy(stageName)
}
