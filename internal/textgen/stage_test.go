package textgen_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"fission/internal/project"
	"fission/internal/retry"
	"fission/internal/services"
	"fission/internal/stage"
	"fission/internal/testsupport"
	"fission/internal/textgen"
)

func fastPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

type scriptedGenerator struct {
	mu    sync.Mutex
	calls map[project.AssetKind]int
	reply func(textgen.Request) (string, error)
}

func (g *scriptedGenerator) Generate(_ context.Context, req textgen.Request) (string, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[project.AssetKind]int)
	}
	g.calls[req.Kind]++
	g.mu.Unlock()
	return g.reply(req)
}

func setup(t *testing.T, moments int) (*textgen.Stage, *project.Store, *project.Project, func(textgen.Generator) *textgen.Stage) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	p := testsupport.NewProject(t, store, "/videos/in.mp4")
	testsupport.SeedMoments(t, store, p.ID, moments, 20)
	build := func(g textgen.Generator) *textgen.Stage {
		return textgen.NewStageWithGenerator(cfg, store, g, fastPolicy(), nil)
	}
	return build(textgen.Template{}), store, p, build
}

func assetKeys(t *testing.T, store *project.Store, projectID string, status project.AssetStatus) []string {
	t.Helper()
	assets, err := store.ListAssets(context.Background(), projectID)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	var keys []string
	for _, a := range assets {
		if a.Status == status {
			keys = append(keys, a.Key)
		}
	}
	sort.Strings(keys)
	return keys
}

func TestTemplateStageProducesAllUnits(t *testing.T) {
	s, store, p, _ := setup(t, 4)

	res := s.Execute(context.Background(), p)
	if res.Outcome != stage.OutcomeSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	want := []string{
		"blog_outline",
		"email",
		"quote_card:00",
		"quote_card:01",
		"quote_card:02",
		"social_post:instagram",
		"social_post:linkedin",
		"social_post:twitter",
	}
	got := assetKeys(t, store, p.ID, project.AssetCompleted)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("completed keys = %v, want %v", got, want)
	}

	assets, _ := store.ListAssets(context.Background(), p.ID)
	for _, a := range assets {
		if a.Content == "" || a.MomentID == "" {
			t.Fatalf("asset %s missing content or moment: %+v", a.Key, a)
		}
		if a.Key == "email" && a.Title != "Testimonial Email" {
			t.Fatalf("unexpected email title %q", a.Title)
		}
		if a.Key == "social_post:linkedin" && a.Title != "Linkedin Caption" {
			t.Fatalf("unexpected caption title %q", a.Title)
		}
	}
}

func TestMalformedModelCopyFallsBackToTemplate(t *testing.T) {
	_, store, p, build := setup(t, 1)
	gen := &scriptedGenerator{reply: func(req textgen.Request) (string, error) {
		if req.Kind == project.AssetQuoteCard {
			return req.Moment.Quotable, nil
		}
		return "", services.Wrap(textgen.ErrMalformedResponse, "textgen", string(req.Kind), "empty", nil)
	}}

	res := build(gen).Execute(context.Background(), p)
	if res.Outcome != stage.OutcomeSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	if gen.calls[project.AssetEmail] != 1 {
		t.Fatalf("malformed output must not be retried, email calls=%d", gen.calls[project.AssetEmail])
	}
	if got := len(assetKeys(t, store, p.ID, project.AssetCompleted)); got != 6 {
		t.Fatalf("expected 6 completed assets, got %d", got)
	}
}

func TestUnavailableProviderFailsOnlyItsUnits(t *testing.T) {
	_, store, p, build := setup(t, 2)
	gen := &scriptedGenerator{reply: func(req textgen.Request) (string, error) {
		if req.Kind == project.AssetSocialPost {
			return "", services.Wrap(textgen.ErrServiceUnavailable, "llm", "complete", "503", nil)
		}
		return textgen.Template{}.Generate(context.Background(), req)
	}}

	res := build(gen).Execute(context.Background(), p)
	if res.Outcome != stage.OutcomePartialSuccess {
		t.Fatalf("expected partial success, got %+v", res)
	}
	if len(res.Failures) != 3 {
		t.Fatalf("expected 3 failed social units, got %+v", res.Failures)
	}
	for _, f := range res.Failures {
		if !strings.HasPrefix(f.Key, "social_post:") || !strings.HasPrefix(f.Reason, "ServiceUnavailable") {
			t.Fatalf("unexpected failure %+v", f)
		}
	}
	if gen.calls[project.AssetSocialPost] != 9 {
		t.Fatalf("expected 3 attempts per social unit, got %d calls", gen.calls[project.AssetSocialPost])
	}
	if got := len(assetKeys(t, store, p.ID, project.AssetFailed)); got != 3 {
		t.Fatalf("expected 3 failed rows, got %d", got)
	}
}

func TestNoMomentsSucceedsEmpty(t *testing.T) {
	s, store, p, _ := setup(t, 0)
	res := s.Execute(context.Background(), p)
	if res.Outcome != stage.OutcomeSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	if keys := assetKeys(t, store, p.ID, project.AssetCompleted); len(keys) != 0 {
		t.Fatalf("expected no assets, got %v", keys)
	}
}

func TestAllUnitsFailingIsHardFailure(t *testing.T) {
	_, _, p, build := setup(t, 1)
	gen := &scriptedGenerator{reply: func(textgen.Request) (string, error) {
		return "", services.Wrap(services.ErrValidation, "textgen", "generate", "rejected", nil)
	}}
	res := build(gen).Execute(context.Background(), p)
	if res.Outcome != stage.OutcomeHardFailure || res.Err == nil {
		t.Fatalf("expected hard failure, got %+v", res)
	}
	if !errors.Is(res.Err, services.ErrValidation) {
		t.Fatalf("expected validation cause, got %v", res.Err)
	}
}
