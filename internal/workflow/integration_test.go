package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"fission/internal/analysis"
	"fission/internal/clips"
	"fission/internal/finalize"
	"fission/internal/ingest"
	"fission/internal/media/ffmpeg"
	"fission/internal/project"
	"fission/internal/retry"
	"fission/internal/services"
	"fission/internal/stage"
	"fission/internal/storage"
	"fission/internal/testsupport"
	"fission/internal/textgen"
	"fission/internal/transcription"
	"fission/internal/workflow"
)

func fastPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

type fakeIngest struct{ handle string }

func (f fakeIngest) FetchAndValidate(context.Context, string) (ingest.Media, error) {
	return ingest.Media{Handle: f.handle, DurationSeconds: 80, SizeBytes: 16}, nil
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (project.Transcript, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return project.Transcript{}, f.err
	}
	tr := project.Transcript{Language: "en"}
	for i, text := range []string{"We struggled.", "Then we switched.", "Revenue doubled.", "Call us."} {
		start := float64(i) * 20
		tr.Segments = append(tr.Segments, project.Segment{Start: start, End: start + 20, Text: text})
	}
	return tr, nil
}

type fakeAnalyzer struct {
	calls   int
	err     error
	moments []project.Moment
}

func (f *fakeAnalyzer) IdentifyMoments(context.Context, *project.Transcript, project.ContentCategory) ([]project.Moment, error) {
	f.calls++
	return f.moments, f.err
}

type fakeExtractor struct {
	failStarts map[float64]bool
}

func (f fakeExtractor) ExtractClip(_ context.Context, req ffmpeg.Request) (string, error) {
	if f.failStarts[req.Start] {
		return "", services.Wrap(ffmpeg.ErrEncodingFailed, "ffmpeg", string(req.Variant), "Invalid data found", nil)
	}
	if err := os.WriteFile(req.Output, []byte("clip"), 0o644); err != nil {
		return "", err
	}
	return req.Output, nil
}

// observedStage records the project snapshot before delegating.
type observedStage struct {
	stage.Handler
	mu   sync.Mutex
	seen *project.Project
}

func (o *observedStage) Execute(ctx context.Context, p *project.Project) stage.Result {
	o.mu.Lock()
	o.seen = p.Clone()
	o.mu.Unlock()
	return o.Handler.Execute(ctx, p)
}

type pipeline struct {
	h            *harness
	transcriber  *fakeTranscriber
	analyzer     *fakeAnalyzer
	analyze      *observedStage
	text         *observedStage
	afterAnalyze *observedStage
}

func newPipeline(t *testing.T, transcriber *fakeTranscriber, analyzer *fakeAnalyzer, failStarts map[float64]bool) (*pipeline, *project.Project) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Clips.MaxMoments = 4
	cfg.Clips.Variants = []string{"horizontal"}
	store := testsupport.MustOpenStore(t, cfg)
	media := filepath.Join(t.TempDir(), "in.mp4")
	testsupport.WriteFile(t, media, 16)
	policy := fastPolicy()
	local := storage.NewLocal(cfg)

	analyze := &observedStage{Handler: analysis.NewStageWithProvider(store, analyzer, analysis.DefaultFallbackPolicy(), policy, nil)}
	video := &observedStage{Handler: clips.NewStageWithDependencies(cfg, clips.Dependencies{
		Store: store, Extractor: fakeExtractor{failStarts: failStarts}, Uploader: local, Local: local,
	}, policy, nil)}
	text := &observedStage{Handler: textgen.NewStageWithGenerator(cfg, store, textgen.Template{}, policy, nil)}

	notifier := &recordingNotifier{}
	mgr := workflow.NewManager(cfg, store, nil, workflow.WithNotifier(notifier))
	mgr.ConfigureStages(workflow.StageSet{
		Ingest:              ingest.NewStageWithProvider(cfg, store, fakeIngest{handle: media}, policy, nil),
		Transcribe:          transcription.NewStageWithProvider(store, transcriber, policy, nil),
		Analyze:             analyze,
		GenerateVideoAssets: video,
		GenerateTextAssets:  text,
		Finalize:            finalize.NewStage(store, nil),
	})
	p := testsupport.NewProject(t, store, "/videos/in.mp4")
	return &pipeline{
		h:            &harness{cfg: cfg, store: store, notifier: notifier, manager: mgr},
		transcriber:  transcriber,
		analyzer:     analyzer,
		analyze:      analyze,
		text:         text,
		afterAnalyze: video,
	}, p
}

func fourMoments() []project.Moment {
	moments := make([]project.Moment, 0, 4)
	for i := range 4 {
		start := float64(i) * 20
		moments = append(moments, project.Moment{
			Start: start, End: start + 20,
			Category:    project.MomentResult,
			Summary:     "Customer describes a result",
			Quotable:    "Revenue doubled.",
			Importance:  0.9 - float64(i)*0.1,
			Quotability: 0.9 - float64(i)*0.1,
		})
	}
	return moments
}

func TestPipelineToleratesFailedClip(t *testing.T) {
	pl, p := newPipeline(t, &fakeTranscriber{}, &fakeAnalyzer{moments: fourMoments()}, map[float64]bool{40: true})
	ctx := context.Background()

	status, err := pl.h.manager.Run(ctx, p.ID)
	if err != nil || status != project.StatusCompleted {
		t.Fatalf("Run = %s, %v", status, err)
	}

	// The text stage starts from the GenerateVideoAssets checkpoint.
	seen := pl.text.seen
	if seen.Status != project.StatusProcessing || seen.Stage != project.StageGenerateVideoAssets || seen.ProgressPercent != 65 {
		t.Fatalf("unexpected checkpoint after video assets: %+v", seen)
	}

	assets, err := pl.h.store.ListAssets(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	var completedClips, failedClips int
	for _, a := range assets {
		if a.Kind != project.AssetVideoClip {
			continue
		}
		switch a.Status {
		case project.AssetCompleted:
			completedClips++
		case project.AssetFailed:
			failedClips++
			if !strings.HasPrefix(a.ErrorMessage, "EncodingFailed") {
				t.Fatalf("unexpected clip failure reason %q", a.ErrorMessage)
			}
		}
	}
	if completedClips != 3 || failedClips != 1 {
		t.Fatalf("expected 3 completed + 1 failed clip, got %d + %d", completedClips, failedClips)
	}

	stored := pl.h.reload(t, p.ID)
	if stored.ProgressPercent != 100 || stored.ManifestJSON == "" || stored.MediaPath == "" {
		t.Fatalf("unexpected final project %+v", stored)
	}
}

func TestPipelineFailsWhenTranscriptionExhausted(t *testing.T) {
	unavailable := services.Wrap(transcription.ErrServiceUnavailable, "whisper", "transcribe", "connection refused", nil)
	pl, p := newPipeline(t, &fakeTranscriber{err: unavailable}, &fakeAnalyzer{moments: fourMoments()}, nil)

	status, err := pl.h.manager.Run(context.Background(), p.ID)
	if err != nil || status != project.StatusFailed {
		t.Fatalf("Run = %s, %v", status, err)
	}
	stored := pl.h.reload(t, p.ID)
	if stored.Stage != project.StageTranscribe {
		t.Fatalf("expected failure at Transcribe, got %s", stored.Stage)
	}
	if !strings.HasPrefix(stored.ErrorMessage, "ServiceUnavailable") {
		t.Fatalf("unexpected reason %q", stored.ErrorMessage)
	}
	if pl.transcriber.calls != 3 {
		t.Fatalf("expected 3 transcription attempts, got %d", pl.transcriber.calls)
	}
	if pl.analyzer.calls != 0 || pl.analyze.seen != nil {
		t.Fatal("analysis must not run after transcription failed")
	}
}

func TestPipelineFallsBackOnMalformedAnalysis(t *testing.T) {
	malformed := services.Wrap(analysis.ErrMalformedResponse, "llm", "identify moments", "not json", nil)
	pl, p := newPipeline(t, &fakeTranscriber{}, &fakeAnalyzer{err: malformed}, nil)
	ctx := context.Background()

	status, err := pl.h.manager.Run(ctx, p.ID)
	if err != nil || status != project.StatusCompleted {
		t.Fatalf("Run = %s, %v", status, err)
	}
	if pl.analyzer.calls != 1 {
		t.Fatalf("malformed output must not be retried, calls=%d", pl.analyzer.calls)
	}
	if seen := pl.afterAnalyze.seen; seen.ProgressPercent != 35 || seen.Stage != project.StageAnalyze {
		t.Fatalf("unexpected checkpoint after analysis: %+v", seen)
	}
	moments, err := pl.h.store.ListMoments(ctx, p.ID)
	if err != nil || len(moments) == 0 {
		t.Fatalf("ListMoments: %d, %v", len(moments), err)
	}
	for _, m := range moments {
		if !m.Fallback {
			t.Fatalf("expected fallback moments, got %+v", m)
		}
	}
}
