package daemonrun

import (
	"log/slog"
	"time"

	"fission/internal/analysis"
	"fission/internal/clips"
	"fission/internal/config"
	"fission/internal/finalize"
	"fission/internal/ingest"
	"fission/internal/metrics"
	"fission/internal/project"
	"fission/internal/retry"
	"fission/internal/textgen"
	"fission/internal/transcription"
	"fission/internal/workflow"
)

// BuildStages constructs the production stage set. reg may be nil.
func BuildStages(cfg *config.Config, store *project.Store, logger *slog.Logger, reg *metrics.Metrics) workflow.StageSet {
	base := retry.FromConfig(cfg)
	policy := func(operation string) retry.Policy {
		return base.WithOnRetry(func(int, time.Duration, error) {
			reg.ObserveRetry(operation)
		})
	}
	units := func(stageName string) func(bool) {
		return func(ok bool) { reg.ObserveUnit(stageName, ok) }
	}

	return workflow.StageSet{
		Ingest:     ingest.NewStage(cfg, store, policy("ingest"), logger),
		Transcribe: transcription.NewStage(cfg, store, policy("transcribe"), logger),
		Analyze:    analysis.NewStage(cfg, store, policy("analyze"), logger),
		GenerateVideoAssets: clips.NewStage(cfg, store, policy("generate_video_assets"), logger,
			clips.WithUnitObserver(units("generate_video_assets"))),
		GenerateTextAssets: textgen.NewStage(cfg, store, policy("generate_text_assets"), logger,
			textgen.WithUnitObserver(units("generate_text_assets"))),
		Finalize: finalize.NewStage(store, logger),
	}
}
