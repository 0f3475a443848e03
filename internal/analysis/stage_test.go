package analysis_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"fission/internal/analysis"
	"fission/internal/project"
	"fission/internal/retry"
	"fission/internal/services"
	"fission/internal/stage"
	"fission/internal/testsupport"
)

type scriptedProvider struct {
	calls   int
	err     error
	moments []project.Moment
}

func (s *scriptedProvider) IdentifyMoments(context.Context, *project.Transcript, project.ContentCategory) ([]project.Moment, error) {
	s.calls++
	return s.moments, s.err
}

func fastPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func setup(t *testing.T) (*project.Store, *project.Project) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	p := testsupport.NewProject(t, store, "/videos/in.mp4")
	testsupport.SeedTranscript(t, store, p.ID, 20, "one", "two", "three", "four")
	return store, p
}

func TestStageReplacesMoments(t *testing.T) {
	store, p := setup(t)
	provider := &scriptedProvider{moments: []project.Moment{
		{Start: 0, End: 20, Category: project.MomentProblem, Importance: 0.8},
		{Start: 40, End: 60, Category: project.MomentResult, Importance: 0.9},
	}}
	s := analysis.NewStageWithProvider(store, provider, analysis.DefaultFallbackPolicy(), fastPolicy(), nil)

	res := s.Execute(context.Background(), p)
	if res.Outcome != stage.OutcomeSuccess || res.Output.Produced != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	moments, err := store.ListMoments(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("ListMoments: %v", err)
	}
	if len(moments) != 2 || moments[0].Fallback {
		t.Fatalf("unexpected moments %+v", moments)
	}
}

func TestStageFallsBackOnMalformedResponse(t *testing.T) {
	store, p := setup(t)
	provider := &scriptedProvider{err: services.Wrap(analysis.ErrMalformedResponse, "analysis", "decode", "not json", nil)}
	s := analysis.NewStageWithProvider(store, provider, analysis.DefaultFallbackPolicy(), fastPolicy(), nil)

	res := s.Execute(context.Background(), p)
	if res.Outcome != stage.OutcomeSuccess {
		t.Fatalf("expected success via fallback, got %+v", res)
	}
	if provider.calls != 1 {
		t.Fatalf("malformed response must not be retried, got %d calls", provider.calls)
	}
	moments, err := store.ListMoments(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("ListMoments: %v", err)
	}
	// 80 seconds of transcript in 30 second windows.
	if len(moments) != 3 {
		t.Fatalf("expected 3 fallback moments, got %d", len(moments))
	}
	for _, m := range moments {
		if !m.Fallback || m.Category != project.MomentGeneral {
			t.Fatalf("expected fallback moment, got %+v", m)
		}
	}
	if !strings.Contains(res.Output.Summary, "fallback") {
		t.Fatalf("summary should mention fallback: %q", res.Output.Summary)
	}
}

func TestStageFallsBackAfterExhaustedRetries(t *testing.T) {
	store, p := setup(t)
	provider := &scriptedProvider{err: services.Wrap(analysis.ErrServiceUnavailable, "llm", "complete", "503", nil)}
	s := analysis.NewStageWithProvider(store, provider, analysis.DefaultFallbackPolicy(), fastPolicy(), nil)

	res := s.Execute(context.Background(), p)
	if res.Outcome != stage.OutcomeSuccess {
		t.Fatalf("expected degraded success, got %+v", res)
	}
	if provider.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", provider.calls)
	}
}

func TestStageRequiresTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	p := testsupport.NewProject(t, store, "/videos/in.mp4")
	provider := &scriptedProvider{}
	res := analysis.NewStageWithProvider(store, provider, analysis.DefaultFallbackPolicy(), fastPolicy(), nil).Execute(context.Background(), p)
	if res.Outcome != stage.OutcomeHardFailure || provider.calls != 0 {
		t.Fatalf("expected hard failure before provider call, got %+v calls=%d", res, provider.calls)
	}
}
