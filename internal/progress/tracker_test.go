package progress

import (
	"context"
	"errors"
	"testing"

	"fission/internal/logging"
	"fission/internal/project"
)

type memoryStore struct {
	saved []project.Project
	err   error
}

func (m *memoryStore) UpdateProgress(_ context.Context, p *project.Project) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, *p)
	return nil
}

func newProject() *project.Project {
	return &project.Project{ID: "p-1", Status: project.StatusPending}
}

func TestAdvanceFollowsStageOrder(t *testing.T) {
	store := &memoryStore{}
	tracker := New(store, logging.NewNop())
	ctx := context.Background()
	p := newProject()

	if err := tracker.Begin(ctx, p); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if p.Status != project.StatusProcessing {
		t.Fatalf("expected processing, got %s", p.Status)
	}
	for _, stage := range project.Stages {
		if err := tracker.Advance(ctx, p, stage, stage.Percent()); err != nil {
			t.Fatalf("Advance(%s): %v", stage, err)
		}
	}
	if err := tracker.MarkCompleted(ctx, p); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if p.Status != project.StatusCompleted || p.ProgressPercent != 100 {
		t.Fatalf("unexpected final state %+v", p)
	}

	last := -1
	for _, saved := range store.saved {
		if saved.ProgressPercent < last {
			t.Fatalf("persisted percent decreased: %d after %d", saved.ProgressPercent, last)
		}
		last = saved.ProgressPercent
	}
}

func TestAdvanceRejectsRegressionAndSkips(t *testing.T) {
	tracker := New(&memoryStore{}, logging.NewNop())
	ctx := context.Background()
	p := newProject()
	_ = tracker.Begin(ctx, p)
	if err := tracker.Advance(ctx, p, project.StageIngest, 5); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	err := tracker.Advance(ctx, p, project.StageTranscribe, 3)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for lower percent, got %v", err)
	}
	err = tracker.Advance(ctx, p, project.StageAnalyze, 35)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for skipped stage, got %v", err)
	}
	err = tracker.Advance(ctx, p, project.StageIngest, 5)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for repeated stage, got %v", err)
	}
	var transition *TransitionError
	if !errors.As(err, &transition) || transition.FromStage != project.StageIngest {
		t.Fatalf("expected TransitionError detail, got %v", err)
	}
	if p.Stage != project.StageIngest || p.ProgressPercent != 5 {
		t.Fatalf("rejected transitions must not mutate the snapshot: %+v", p)
	}
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	ctx := context.Background()
	for _, terminal := range []project.Status{project.StatusCompleted, project.StatusFailed} {
		store := &memoryStore{}
		tracker := New(store, logging.NewNop())
		p := &project.Project{ID: "p", Status: terminal, Stage: project.StageAnalyze, ProgressPercent: 35}

		checks := map[string]error{
			"begin":     tracker.Begin(ctx, p),
			"advance":   tracker.Advance(ctx, p, project.StageGenerateVideoAssets, 65),
			"failed":    tracker.MarkFailed(ctx, p, project.StageAnalyze, "again"),
			"completed": tracker.MarkCompleted(ctx, p),
		}
		for name, err := range checks {
			if !errors.Is(err, ErrAlreadyTerminal) {
				t.Fatalf("%s from %s: expected ErrAlreadyTerminal, got %v", name, terminal, err)
			}
		}
		if len(store.saved) != 0 {
			t.Fatalf("terminal project must not be persisted again, saved %d", len(store.saved))
		}
	}
}

func TestMarkFailedRecordsStageAndReason(t *testing.T) {
	tracker := New(&memoryStore{}, logging.NewNop())
	ctx := context.Background()
	p := newProject()
	_ = tracker.Begin(ctx, p)
	_ = tracker.Advance(ctx, p, project.StageIngest, 5)

	if err := tracker.MarkFailed(ctx, p, project.StageTranscribe, "ServiceUnavailable: whisper"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if p.Status != project.StatusFailed || p.Stage != project.StageTranscribe || p.ProgressPercent != 5 {
		t.Fatalf("unexpected failed state %+v", p)
	}
	if p.ErrorMessage != "ServiceUnavailable: whisper" {
		t.Fatalf("unexpected reason %q", p.ErrorMessage)
	}
}

func TestPersistFailureLeavesSnapshot(t *testing.T) {
	store := &memoryStore{err: errors.New("disk full")}
	var observed int
	tracker := New(store, logging.NewNop(), WithObserver(func(*project.Project) { observed++ }))
	p := &project.Project{ID: "p", Status: project.StatusProcessing}

	if err := tracker.Advance(context.Background(), p, project.StageIngest, 5); err == nil {
		t.Fatal("expected persistence error")
	}
	if p.Stage != project.StageNone || p.ProgressPercent != 0 {
		t.Fatalf("snapshot changed despite failed write: %+v", p)
	}
	if observed != 0 {
		t.Fatalf("observer must not fire on failed write")
	}
}
