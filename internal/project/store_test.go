package project_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fission/internal/project"
	"fission/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p, err := store.Create(ctx, "/videos/interview.mp4", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected project ID to be assigned")
	}
	if p.Status != project.StatusPending || p.Stage != project.StageNone || p.ProgressPercent != 0 {
		t.Fatalf("unexpected initial state: %+v", p)
	}
	if p.Category != project.CategoryTestimonial {
		t.Fatalf("expected default category, got %q", p.Category)
	}

	missing, err := store.GetByID(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("GetByID missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing project, got %+v", missing)
	}

	if _, err := store.Create(ctx, "   ", project.CategoryCaseStudy); err == nil {
		t.Fatal("expected error for empty source path")
	}
}

func TestUpdateProgressPersists(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p := testsupport.NewProject(t, store, "/videos/a.mp4")
	p.Status = project.StatusProcessing
	p.Stage = project.StageTranscribe
	p.ProgressPercent = 15
	if err := store.UpdateProgress(ctx, p); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != project.StatusProcessing || fetched.Stage != project.StageTranscribe || fetched.ProgressPercent != 15 {
		t.Fatalf("progress not persisted: %+v", fetched)
	}

	ghost := &project.Project{ID: "ghost", Status: project.StatusProcessing}
	if err := store.UpdateProgress(ctx, ghost); !errors.Is(err, project.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewProject(t, store, "/videos/1.mp4")
	second := testsupport.NewProject(t, store, "/videos/2.mp4")
	second.Status = project.StatusFailed
	second.ErrorMessage = "boom"
	if err := store.UpdateProgress(ctx, second); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(all))
	}

	pending, err := store.List(ctx, project.StatusPending)
	if err != nil {
		t.Fatalf("List pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("unexpected pending list: %+v", pending)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[project.StatusPending] != 1 || stats[project.StatusFailed] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunClaims(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p := testsupport.NewProject(t, store, "/videos/a.mp4")

	ok, err := store.ClaimRun(ctx, p.ID, "owner-a")
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = store.ClaimRun(ctx, p.ID, "owner-b")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatal("expected second claim to be rejected")
	}

	runnable, err := store.NextRunnable(ctx, 10)
	if err != nil {
		t.Fatalf("NextRunnable failed: %v", err)
	}
	if len(runnable) != 0 {
		t.Fatalf("claimed project should not be runnable, got %d", len(runnable))
	}

	if err := store.UpdateHeartbeat(ctx, p.ID, "owner-b"); err == nil {
		t.Fatal("expected heartbeat from non-owner to fail")
	}
	if err := store.UpdateHeartbeat(ctx, p.ID, "owner-a"); err != nil {
		t.Fatalf("UpdateHeartbeat failed: %v", err)
	}

	if err := store.ReleaseRun(ctx, p.ID, "owner-a"); err != nil {
		t.Fatalf("ReleaseRun failed: %v", err)
	}
	ok, err = store.ClaimRun(ctx, p.ID, "owner-b")
	if err != nil || !ok {
		t.Fatalf("claim after release: ok=%v err=%v", ok, err)
	}
}

func TestReclaimStale(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p := testsupport.NewProject(t, store, "/videos/a.mp4")
	if ok, err := store.ClaimRun(ctx, p.ID, "crashed"); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	reclaimed, err := store.ReclaimStale(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("fresh claim should survive, reclaimed %d", reclaimed)
	}

	reclaimed, err = store.ReclaimStale(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed claim, got %d", reclaimed)
	}
	fetched, _ := store.GetByID(ctx, p.ID)
	if fetched.RunOwner != "" || fetched.LastHeartbeat != nil {
		t.Fatalf("claim not cleared: %+v", fetched)
	}
}

func TestCancelAndRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p := testsupport.NewProject(t, store, "/videos/a.mp4")
	set, err := store.RequestCancel(ctx, p.ID)
	if err != nil || !set {
		t.Fatalf("RequestCancel: set=%v err=%v", set, err)
	}
	requested, err := store.CancelRequested(ctx, p.ID)
	if err != nil || !requested {
		t.Fatalf("CancelRequested: %v %v", requested, err)
	}

	if _, err := store.RetryFailed(ctx, p.ID); !errors.Is(err, project.ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable for pending project, got %v", err)
	}

	p.Status = project.StatusFailed
	p.Stage = project.StageTranscribe
	p.ProgressPercent = 5
	p.ErrorMessage = "cancelled by request"
	if err := store.UpdateProgress(ctx, p); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if set, _ := store.RequestCancel(ctx, p.ID); set {
		t.Fatal("cancel must not apply to terminal projects")
	}

	retried, err := store.RetryFailed(ctx, p.ID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if retried.Status != project.StatusPending || retried.Stage != project.StageNone ||
		retried.ProgressPercent != 0 || retried.ErrorMessage != "" || retried.CancelRequested {
		t.Fatalf("unexpected retried state: %+v", retried)
	}

	if _, err := store.RetryFailed(ctx, "missing"); !errors.Is(err, project.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTranscriptReplace(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p := testsupport.NewProject(t, store, "/videos/a.mp4")
	testsupport.SeedTranscript(t, store, p.ID, 10, "one", "two")
	testsupport.SeedTranscript(t, store, p.ID, 5, "only")

	tr, err := store.GetTranscript(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetTranscript failed: %v", err)
	}
	if tr == nil || len(tr.Segments) != 1 || tr.FullText != "only" {
		t.Fatalf("expected replaced transcript, got %+v", tr)
	}
	if tr.Duration() != 5 {
		t.Fatalf("expected duration 5, got %v", tr.Duration())
	}

	none, err := store.GetTranscript(ctx, "other")
	if err != nil || none != nil {
		t.Fatalf("expected nil transcript, got %+v err=%v", none, err)
	}
}

func TestReplaceMomentsCascadesAssets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p := testsupport.NewProject(t, store, "/videos/a.mp4")
	moments, err := store.ReplaceMoments(ctx, p.ID, []project.Moment{
		{Start: 0, End: 10, Category: project.MomentProblem, Importance: 0.9},
		{Start: 10, End: 20, Importance: 0.4},
	})
	if err != nil {
		t.Fatalf("ReplaceMoments failed: %v", err)
	}
	if moments[1].Ordinal != 1 || moments[1].Category != project.MomentGeneral {
		t.Fatalf("unexpected stored moment: %+v", moments[1])
	}

	asset := &project.Asset{
		ProjectID: p.ID,
		Key:       "moment-0/horizontal",
		MomentID:  moments[0].ID,
		Kind:      project.AssetVideoClip,
		Status:    project.AssetCompleted,
	}
	if err := store.UpsertAsset(ctx, asset); err != nil {
		t.Fatalf("UpsertAsset failed: %v", err)
	}

	if _, err := store.ReplaceMoments(ctx, p.ID, []project.Moment{{Start: 0, End: 5}}); err != nil {
		t.Fatalf("ReplaceMoments second failed: %v", err)
	}
	assets, err := store.ListAssets(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListAssets failed: %v", err)
	}
	if len(assets) != 0 {
		t.Fatalf("expected assets to cascade with moments, got %d", len(assets))
	}

	if _, err := store.ReplaceMoments(ctx, p.ID, []project.Moment{{Start: 5, End: 1}}); err == nil {
		t.Fatal("expected error for inverted moment bounds")
	}
}

func TestUpsertAssetReplacesByKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	p := testsupport.NewProject(t, store, "/videos/a.mp4")
	moments, err := store.ReplaceMoments(ctx, p.ID, []project.Moment{{Start: 0, End: 10}})
	if err != nil {
		t.Fatalf("ReplaceMoments failed: %v", err)
	}

	asset := &project.Asset{
		ProjectID:    p.ID,
		Key:          "moment-0/quote_card",
		MomentID:     moments[0].ID,
		Kind:         project.AssetQuoteCard,
		Status:       project.AssetFailed,
		ErrorMessage: "ServiceUnavailable",
	}
	if err := store.UpsertAsset(ctx, asset); err != nil {
		t.Fatalf("UpsertAsset failed: %v", err)
	}
	firstID := asset.ID

	asset.Status = project.AssetCompleted
	asset.ErrorMessage = ""
	asset.Content = "A quote"
	if err := store.UpsertAsset(ctx, asset); err != nil {
		t.Fatalf("UpsertAsset replace failed: %v", err)
	}
	if asset.ID != firstID {
		t.Fatalf("expected stable asset id, got %s want %s", asset.ID, firstID)
	}

	assets, err := store.ListAssets(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListAssets failed: %v", err)
	}
	if len(assets) != 1 || assets[0].Status != project.AssetCompleted || assets[0].Content != "A quote" {
		t.Fatalf("unexpected assets: %+v", assets)
	}

	counts, err := store.AssetCounts(ctx, p.ID)
	if err != nil {
		t.Fatalf("AssetCounts failed: %v", err)
	}
	if counts[project.AssetCompleted] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestAssetMomentMustShareProject(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewProject(t, store, "/videos/a.mp4")
	b := testsupport.NewProject(t, store, "/videos/b.mp4")
	moments, err := store.ReplaceMoments(ctx, a.ID, []project.Moment{{Start: 0, End: 10}})
	if err != nil {
		t.Fatalf("ReplaceMoments failed: %v", err)
	}

	foreign := &project.Asset{
		ProjectID: b.ID,
		Key:       "moment-0/horizontal",
		MomentID:  moments[0].ID,
		Kind:      project.AssetVideoClip,
		Status:    project.AssetCompleted,
	}
	if err := store.UpsertAsset(ctx, foreign); err == nil {
		t.Fatal("expected foreign key violation for cross-project moment")
	}

	if m, err := store.GetMoment(ctx, b.ID, moments[0].ID); err != nil || m != nil {
		t.Fatalf("moment lookup must be project scoped, got %+v err=%v", m, err)
	}
}
