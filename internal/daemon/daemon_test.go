package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fission/internal/metrics"
	"fission/internal/project"
	"fission/internal/stage"
	"fission/internal/testsupport"
	"fission/internal/workflow"
)

type noopStage struct{}

func (noopStage) Execute(context.Context, *project.Project) stage.Result {
	return stage.Success(stage.Output{Summary: "noop"})
}

func (noopStage) HealthCheck(context.Context) stage.Health { return stage.Healthy("noop") }

func noopStages() workflow.StageSet {
	return workflow.StageSet{
		Ingest:              noopStage{},
		Transcribe:          noopStage{},
		Analyze:             noopStage{},
		GenerateVideoAssets: noopStage{},
		GenerateTextAssets:  noopStage{},
		Finalize:            noopStage{},
	}
}

func newTestDaemon(t *testing.T, reg *metrics.Metrics) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Metrics.Enabled = reg != nil
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, nil, workflow.WithMetrics(reg))
	mgr.ConfigureStages(noopStages())
	d, err := New(cfg, store, nil, mgr, reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newTestDaemon(t, nil)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("expected daemon and workflow running: %+v", status)
	}
	if status.LockFilePath == "" || status.DatabasePath == "" {
		t.Fatalf("expected paths in status: %+v", status)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if status := d.Status(ctx); status.Running || status.Workflow.Running {
		t.Fatalf("expected daemon to be stopped: %+v", status)
	}
}

func TestDaemonLockRejectsSecondInstance(t *testing.T) {
	first := newTestDaemon(t, nil)
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	mgr := workflow.NewManager(first.cfg, first.store, nil)
	mgr.ConfigureStages(noopStages())
	second, err := New(first.cfg, first.store, nil, mgr, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock rejection, got %v", err)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("expected start after release, got %v", err)
	}
	second.Stop()
}

func TestMetricsServerRoutes(t *testing.T) {
	reg := metrics.New()
	d := newTestDaemon(t, reg)
	if d.server == nil {
		t.Fatal("expected metrics server when metrics are enabled")
	}
	reg.ObserveUnit("generate_video_assets", false)

	routes := d.server.routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `fission_asset_units_total{result="failed",stage="generate_video_assets"} 1`) {
		t.Fatalf("metrics output missing unit counter:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d", rec.Code)
	}
	var health healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Database != "ok" || health.Running {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestMetricsServerDisabledWithoutRegistry(t *testing.T) {
	d := newTestDaemon(t, nil)
	if d.server != nil {
		t.Fatal("expected no metrics server without a registry")
	}
	if addr := d.Status(context.Background()).MetricsAddress; addr != "" {
		t.Fatalf("expected empty metrics address, got %q", addr)
	}
}
