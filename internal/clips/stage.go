package clips

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"fission/internal/config"
	"fission/internal/fanout"
	"fission/internal/logging"
	"fission/internal/media/ffmpeg"
	"fission/internal/project"
	"fission/internal/retry"
	"fission/internal/services"
	"fission/internal/stage"
	"fission/internal/storage"
	"fission/internal/textutil"
)

const stageName = "generate_video_assets"

// Extractor cuts clips.
type Extractor interface {
	ExtractClip(ctx context.Context, req ffmpeg.Request) (string, error)
}

// AssetStore is the persistence the stage needs.
type AssetStore interface {
	ListMoments(ctx context.Context, projectID string) ([]project.Moment, error)
	GetTranscript(ctx context.Context, projectID string) (*project.Transcript, error)
	UpsertAsset(ctx context.Context, a *project.Asset) error
}

// LocalURLMapper maps a local file to a URL when publishing fails.
type LocalURLMapper interface {
	LocalURL(localPath string) string
}

// Dependencies are the collaborators of the stage.
type Dependencies struct {
	Store     AssetStore
	Extractor Extractor
	Uploader  storage.Uploader
	Local     LocalURLMapper
}

// Stage is the GenerateVideoAssets stage handler.
type Stage struct {
	deps          Dependencies
	cfg           *config.Config
	windowing     Windowing
	variants      []ffmpeg.Variant
	maxMoments    int
	concurrency   int
	localFallback bool
	policy        retry.Policy
	logger        *slog.Logger
	onUnit        func(ok bool)
}

// Option customises the stage.
type Option func(*Stage)

// WithUnitObserver reports every finished unit.
func WithUnitObserver(fn func(ok bool)) Option {
	return func(s *Stage) { s.onUnit = fn }
}

// NewStage constructs the handler with ffmpeg and local storage.
func NewStage(cfg *config.Config, store AssetStore, policy retry.Policy, logger *slog.Logger, opts ...Option) *Stage {
	local := storage.NewLocal(cfg)
	return NewStageWithDependencies(cfg, Dependencies{
		Store:     store,
		Extractor: ffmpeg.NewExtractor(cfg.FFmpegBinary()),
		Uploader:  local,
		Local:     local,
	}, policy, logger, opts...)
}

// NewStageWithDependencies allows injecting collaborators (used in tests).
func NewStageWithDependencies(cfg *config.Config, deps Dependencies, policy retry.Policy, logger *slog.Logger, opts ...Option) *Stage {
	s := &Stage{
		deps:          deps,
		cfg:           cfg,
		windowing:     WindowingFrom(cfg),
		variants:      ParseVariants(cfg.Clips.Variants),
		maxMoments:    cfg.Clips.MaxMoments,
		concurrency:   cfg.Workflow.UnitConcurrency,
		localFallback: cfg.Storage.LocalFallback,
		policy:        policy,
		logger:        logging.NewComponentLogger(logger, stageName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type job struct {
	project  *project.Project
	media    string
	workDir  string
	segments []project.Segment
}

// Execute cuts clips for the selected moments.
func (s *Stage) Execute(ctx context.Context, p *project.Project) stage.Result {
	logger := logging.WithContext(ctx, s.logger)
	media, err := stage.RequireMedia(p, stageName)
	if err != nil {
		return stage.HardFailure(err)
	}
	moments, err := s.deps.Store.ListMoments(ctx, p.ID)
	if err != nil {
		return stage.HardFailure(services.Wrap(services.ErrTransient, stageName, "load moments", "", err))
	}
	selected := SelectMoments(moments, s.maxMoments)
	if len(selected) == 0 {
		logger.Info("no moments to clip")
		return stage.Success(stage.Output{Summary: "no moments to clip"})
	}

	j := job{project: p, media: media, workDir: filepath.Join(s.cfg.ProjectWorkDir(p.ID), "clips")}
	if err := os.MkdirAll(j.workDir, 0o755); err != nil {
		return stage.HardFailure(services.Wrap(services.ErrConfiguration, stageName, "create work dir", j.workDir, err))
	}
	if s.wantsCaptions() {
		transcript, err := s.deps.Store.GetTranscript(ctx, p.ID)
		if err != nil {
			return stage.HardFailure(services.Wrap(services.ErrTransient, stageName, "load transcript", "", err))
		}
		if transcript != nil {
			j.segments = transcript.Segments
		}
	}

	units := make([]fanout.Unit[project.Moment], 0, len(selected))
	for _, m := range selected {
		units = append(units, fanout.Unit[project.Moment]{Key: UnitKey(m), Value: m})
	}
	logger.Info("cutting clips",
		logging.Int("moments", len(moments)),
		logging.Int("units", len(units)),
		logging.Int("variants", len(s.variants)),
	)

	report := fanout.RunAll(ctx, units, func(ctx context.Context, unit fanout.Unit[project.Moment]) error {
		return s.processMoment(ctx, j, unit)
	}, fanout.Options{
		Concurrency: s.concurrency,
		Logger:      logger,
		OnUnitDone: func(res fanout.UnitResult) {
			if s.onUnit != nil {
				s.onUnit(res.Succeeded())
			}
		},
	})

	summary := fmt.Sprintf("%d of %d moments clipped", report.Succeeded(), len(units))
	logger.Info("clip generation finished",
		logging.Int("succeeded", report.Succeeded()),
		logging.Int("failed", len(report.Failures())),
	)
	return report.Result(summary)
}

func (s *Stage) wantsCaptions() bool {
	for _, v := range s.variants {
		if v == ffmpeg.VariantVertical {
			return true
		}
	}
	return false
}

// processMoment produces every variant for one moment. The first variant
// error stops the unit and every variant row of the moment is recorded as
// failed, including variants already completed in this attempt.
func (s *Stage) processMoment(ctx context.Context, j job, unit fanout.Unit[project.Moment]) error {
	for _, variant := range s.variants {
		asset := s.newAsset(j.project, unit, variant)
		if err := s.produceVariant(ctx, j, unit.Value, variant, asset); err != nil {
			if ctx.Err() != nil {
				return err
			}
			if saveErr := s.failUnitAssets(ctx, j.project, unit, services.FailureReason(err)); saveErr != nil {
				return errors.Join(err, saveErr)
			}
			return err
		}
	}
	return nil
}

func (s *Stage) failUnitAssets(ctx context.Context, p *project.Project, unit fanout.Unit[project.Moment], reason string) error {
	var errs []error
	for _, variant := range s.variants {
		asset := s.newAsset(p, unit, variant)
		asset.Status = project.AssetFailed
		asset.ErrorMessage = reason
		if err := s.deps.Store.UpsertAsset(ctx, asset); err != nil {
			errs = append(errs, fmt.Errorf("record failed asset %s: %w", asset.Key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Stage) newAsset(p *project.Project, unit fanout.Unit[project.Moment], variant ffmpeg.Variant) *project.Asset {
	m := unit.Value
	width, height := variant.Dimensions()
	return &project.Asset{
		ProjectID: p.ID,
		Key:       AssetKey(variant, m),
		UnitKey:   unit.Key,
		MomentID:  m.ID,
		Kind:      AssetKind(variant),
		Title:     clipTitle(variant, m),
		Format:    "mp4",
		Width:     width,
		Height:    height,
		Status:    project.AssetProcessing,
	}
}

func (s *Stage) produceVariant(ctx context.Context, j job, m project.Moment, variant ffmpeg.Variant, asset *project.Asset) error {
	start, end, err := s.windowing.Window(m, variant, j.project.DurationSeconds)
	if err != nil {
		return services.Wrap(services.ErrValidation, stageName, string(variant), "clip window", err)
	}
	asset.Duration = end - start
	if err := s.deps.Store.UpsertAsset(ctx, asset); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "record asset", asset.Key, err)
	}

	req := ffmpeg.Request{
		Source:  j.media,
		Output:  filepath.Join(j.workDir, fmt.Sprintf("m%02d_%s.mp4", m.Ordinal, variant)),
		Start:   start,
		End:     end,
		Variant: variant,
	}
	if variant == ffmpeg.VariantVertical && len(j.segments) > 0 {
		srtPath := filepath.Join(j.workDir, fmt.Sprintf("m%02d.srt", m.Ordinal))
		if ok, err := ffmpeg.WriteSRT(srtPath, j.segments, start, end); err == nil && ok {
			req.Captions = srtPath
		}
	}

	path, err := retry.Do(ctx, s.policy, func(ctx context.Context) (string, error) {
		return s.deps.Extractor.ExtractClip(ctx, req)
	}, nil)
	if err != nil {
		return err
	}
	asset.FilePath = path

	url, err := s.publish(ctx, j.project.ID, path)
	if err != nil {
		return err
	}
	asset.FileURL = url
	asset.Status = project.AssetCompleted
	asset.ErrorMessage = ""
	if err := s.deps.Store.UpsertAsset(ctx, asset); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "record asset", asset.Key, err)
	}
	return nil
}

// publish uploads path. When uploads are exhausted and local fallback is on,
// the clip stays in the work directory and is served from a local URL.
func (s *Stage) publish(ctx context.Context, projectID, path string) (string, error) {
	logger := logging.WithContext(ctx, s.logger)
	url, err := retry.Do(ctx, s.policy, func(ctx context.Context) (string, error) {
		return storage.UploadFile(ctx, s.deps.Uploader, projectID+"/"+filepath.Base(path), path)
	}, nil)
	if err == nil {
		return url, nil
	}
	if !s.localFallback || s.deps.Local == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return "", err
	}
	local := s.deps.Local.LocalURL(path)
	logging.WarnWithContext(logger, "upload failed; serving clip locally", "upload_fallback",
		logging.String("file", path),
		logging.String("url", local),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check storage.dir permissions and free space"),
		logging.String(logging.FieldImpact, "asset served from the processing host"),
	)
	return local, nil
}

func clipTitle(variant ffmpeg.Variant, m project.Moment) string {
	label := strings.TrimSpace(m.Summary)
	if label == "" {
		label = textutil.Title(string(m.Category)) + " moment"
	}
	switch variant {
	case ffmpeg.VariantMicro:
		return "Micro Clip: " + textutil.Truncate(label, 50)
	case ffmpeg.VariantVertical:
		return "Vertical: " + textutil.Truncate(label, 40)
	default:
		return "Clip: " + textutil.Truncate(label, 50)
	}
}

// HealthCheck reports whether ffmpeg is available.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if _, err := exec.LookPath(s.cfg.FFmpegBinary()); err != nil {
		return stage.Unhealthy(stageName, "ffmpeg not found on PATH")
	}
	return stage.Healthy(stageName)
}
