package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"fission/internal/config"
	"fission/internal/notifications"
	"fission/internal/project"
	"fission/internal/stage"
	"fission/internal/testsupport"
	"fission/internal/workflow"
)

type stubStage struct {
	name    string
	mu      sync.Mutex
	calls   int
	seen    []*project.Project
	execute func(context.Context, *project.Project) stage.Result
}

func newStubStage(name string) *stubStage {
	return &stubStage{name: name}
}

func (s *stubStage) Execute(ctx context.Context, p *project.Project) stage.Result {
	s.mu.Lock()
	s.calls++
	s.seen = append(s.seen, p.Clone())
	s.mu.Unlock()
	if s.execute != nil {
		return s.execute(ctx, p)
	}
	return stage.Success(stage.Output{Summary: s.name + " ok", Produced: 1})
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.name)
}

func (s *stubStage) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubStage) LastSeen() *project.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seen) == 0 {
		return nil
	}
	return s.seen[len(s.seen)-1]
}

type stubSet struct {
	ingest, transcribe, analyze, video, text, finalize *stubStage
}

func newStubSet() *stubSet {
	return &stubSet{
		ingest:     newStubStage("ingest"),
		transcribe: newStubStage("transcribe"),
		analyze:    newStubStage("analyze"),
		video:      newStubStage("video"),
		text:       newStubStage("text"),
		finalize:   newStubStage("finalize"),
	}
}

func (s *stubSet) StageSet() workflow.StageSet {
	return workflow.StageSet{
		Ingest:              s.ingest,
		Transcribe:          s.transcribe,
		Analyze:             s.analyze,
		GenerateVideoAssets: s.video,
		GenerateTextAssets:  s.text,
		Finalize:            s.finalize,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   map[notifications.Event]notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if r.last == nil {
		r.last = make(map[notifications.Event]notifications.Payload)
	}
	r.last[event] = payload
	return nil
}

func (r *recordingNotifier) Events() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

func (r *recordingNotifier) Payload(event notifications.Event) notifications.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[event]
}

type harness struct {
	cfg      *config.Config
	store    *project.Store
	notifier *recordingNotifier
	manager  *workflow.Manager
}

func newHarness(t *testing.T, set workflow.StageSet) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.HeartbeatInterval = 1
	cfg.Workflow.HeartbeatTimeout = 60
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	mgr := workflow.NewManager(cfg, store, nil, workflow.WithNotifier(notifier))
	mgr.ConfigureStages(set)
	return &harness{cfg: cfg, store: store, notifier: notifier, manager: mgr}
}

func (h *harness) reload(t *testing.T, id string) *project.Project {
	t.Helper()
	p, err := h.store.GetByID(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	return p
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
