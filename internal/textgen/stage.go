package textgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"fission/internal/config"
	"fission/internal/fanout"
	"fission/internal/logging"
	"fission/internal/project"
	"fission/internal/retry"
	"fission/internal/services"
	"fission/internal/services/llm"
	"fission/internal/stage"
	"fission/internal/textutil"
)

const stageName = "generate_text_assets"

// AssetStore is the persistence the stage needs.
type AssetStore interface {
	ListMoments(ctx context.Context, projectID string) ([]project.Moment, error)
	UpsertAsset(ctx context.Context, a *project.Asset) error
}

// Stage is the GenerateTextAssets stage handler.
type Stage struct {
	store       AssetStore
	generator   Generator
	maxMoments  int
	platforms   []string
	blogOutline bool
	concurrency int
	policy      retry.Policy
	logger      *slog.Logger
	onUnit      func(ok bool)
}

// Option customises the stage.
type Option func(*Stage)

// WithUnitObserver reports every finished unit.
func WithUnitObserver(fn func(ok bool)) Option {
	return func(s *Stage) { s.onUnit = fn }
}

// NewStage picks the generator named by textgen.provider. The LLM generator
// is used only when an API key is configured.
func NewStage(cfg *config.Config, store AssetStore, policy retry.Policy, logger *slog.Logger, opts ...Option) *Stage {
	var generator Generator = Template{}
	if strings.EqualFold(cfg.TextGen.Provider, "llm") {
		client := llm.NewClient(llm.ConfigFrom(cfg))
		if client.Configured() {
			generator = NewLLM(client)
		}
	}
	return NewStageWithGenerator(cfg, store, generator, policy, logger, opts...)
}

// NewStageWithGenerator allows injecting a generator (used in tests).
func NewStageWithGenerator(cfg *config.Config, store AssetStore, generator Generator, policy retry.Policy, logger *slog.Logger, opts ...Option) *Stage {
	s := &Stage{
		store:       store,
		generator:   generator,
		maxMoments:  cfg.TextGen.MaxMoments,
		platforms:   cfg.TextGen.Platforms,
		blogOutline: cfg.TextGen.BlogOutline,
		concurrency: cfg.Workflow.UnitConcurrency,
		policy:      policy,
		logger:      logging.NewComponentLogger(logger, stageName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type textUnit struct {
	request Request
	title   string
}

// Plan lists the text units for moments.
func (s *Stage) Plan(moments []project.Moment, category project.ContentCategory) []fanout.Unit[textUnit] {
	ranked := append([]project.Moment(nil), moments...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Quotability != ranked[j].Quotability {
			return ranked[i].Quotability > ranked[j].Quotability
		}
		return ranked[i].Ordinal < ranked[j].Ordinal
	})
	if s.maxMoments > 0 && len(ranked) > s.maxMoments {
		ranked = ranked[:s.maxMoments]
	}
	if len(ranked) == 0 {
		return nil
	}

	units := make([]fanout.Unit[textUnit], 0, len(ranked)+len(s.platforms)+2)
	for i, m := range ranked {
		units = append(units, fanout.Unit[textUnit]{
			Key: fmt.Sprintf("%s:%02d", project.AssetQuoteCard, m.Ordinal),
			Value: textUnit{
				request: Request{Kind: project.AssetQuoteCard, Moment: m, Category: category},
				title:   fmt.Sprintf("Quote %d", i+1),
			},
		})
	}

	best := ranked[0]
	units = append(units, fanout.Unit[textUnit]{
		Key:   string(project.AssetEmail),
		Value: textUnit{request: Request{Kind: project.AssetEmail, Moment: best, Category: category}, title: emailTitle(category)},
	})
	for _, platform := range s.platforms {
		platform = strings.ToLower(strings.TrimSpace(platform))
		if platform == "" {
			continue
		}
		units = append(units, fanout.Unit[textUnit]{
			Key: fmt.Sprintf("%s:%s", project.AssetSocialPost, platform),
			Value: textUnit{
				request: Request{Kind: project.AssetSocialPost, Platform: platform, Moment: best, Category: category},
				title:   textutil.Title(platform) + " Caption",
			},
		})
	}
	if s.blogOutline {
		units = append(units, fanout.Unit[textUnit]{
			Key:   string(project.AssetBlogOutline),
			Value: textUnit{request: Request{Kind: project.AssetBlogOutline, Moment: best, Category: category}, title: "Blog Outline"},
		})
	}
	return units
}

func emailTitle(category project.ContentCategory) string {
	return textutil.Title(string(category)) + " Email"
}

// Execute generates every planned text asset.
func (s *Stage) Execute(ctx context.Context, p *project.Project) stage.Result {
	logger := logging.WithContext(ctx, s.logger)
	moments, err := s.store.ListMoments(ctx, p.ID)
	if err != nil {
		return stage.HardFailure(services.Wrap(services.ErrTransient, stageName, "load moments", "", err))
	}
	units := s.Plan(moments, p.Category)
	if len(units) == 0 {
		logger.Info("no moments for text assets")
		return stage.Success(stage.Output{Summary: "no moments for text assets"})
	}
	logger.Info("generating text assets", logging.Int("units", len(units)))

	report := fanout.RunAll(ctx, units, func(ctx context.Context, unit fanout.Unit[textUnit]) error {
		return s.processUnit(ctx, p, unit)
	}, fanout.Options{
		Concurrency: s.concurrency,
		Logger:      logger,
		OnUnitDone: func(res fanout.UnitResult) {
			if s.onUnit != nil {
				s.onUnit(res.Succeeded())
			}
		},
	})
	return report.Result(fmt.Sprintf("%d of %d text assets generated", report.Succeeded(), len(units)))
}

func (s *Stage) processUnit(ctx context.Context, p *project.Project, unit fanout.Unit[textUnit]) error {
	req := unit.Value.request
	asset := &project.Asset{
		ProjectID: p.ID,
		Key:       unit.Key,
		UnitKey:   unit.Key,
		MomentID:  req.Moment.ID,
		Kind:      req.Kind,
		Title:     unit.Value.title,
		Format:    "text",
		Status:    project.AssetProcessing,
	}
	if err := s.store.UpsertAsset(ctx, asset); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "record asset", unit.Key, err)
	}

	content, err := s.generate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		asset.Status = project.AssetFailed
		asset.ErrorMessage = services.FailureReason(err)
		if saveErr := s.store.UpsertAsset(ctx, asset); saveErr != nil {
			return errors.Join(err, saveErr)
		}
		return err
	}

	asset.Content = content
	asset.Status = project.AssetCompleted
	if err := s.store.UpsertAsset(ctx, asset); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "record asset", unit.Key, err)
	}
	return nil
}

// generate runs the generator under the retry policy. An unusable model
// answer degrades to template copy.
func (s *Stage) generate(ctx context.Context, req Request) (string, error) {
	logger := logging.WithContext(ctx, s.logger)
	policy := s.policy.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		logging.WarnWithContext(logger, "text generation failed; retrying", "provider_retry",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldImpact, "text asset delayed"),
		)
	})
	content, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return s.generator.Generate(ctx, req)
	}, nil)
	if err == nil {
		return content, nil
	}
	if _, isTemplate := s.generator.(Template); !isTemplate && errors.Is(err, ErrMalformedResponse) {
		logging.WarnWithContext(logger, "model copy unusable; using template", "textgen_fallback",
			logging.String("kind", string(req.Kind)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "asset uses template copy"),
		)
		return Template{}.Generate(ctx, req)
	}
	return "", err
}

// HealthCheck reports the generator in use.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if _, ok := s.generator.(Template); ok {
		return stage.Health{Name: stageName, Ready: true, Detail: "template copy"}
	}
	return stage.Healthy(stageName)
}
