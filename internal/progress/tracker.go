package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"fission/internal/logging"
	"fission/internal/project"
)

var (
	// ErrInvalidTransition is returned for a regressing percentage or an
	// out-of-order stage.
	ErrInvalidTransition = errors.New("invalid progress transition")
	// ErrAlreadyTerminal is returned when a completed or failed project is
	// asked to transition.
	ErrAlreadyTerminal = errors.New("project already terminal")
)

// Store persists progress fields.
type Store interface {
	UpdateProgress(ctx context.Context, p *project.Project) error
}

// TransitionError describes a rejected transition.
type TransitionError struct {
	ProjectID   string
	FromStage   project.Stage
	ToStage     project.Stage
	FromPercent int
	ToPercent   int
	Status      project.Status
	Err         error
}

func (e *TransitionError) Error() string {
	from := string(e.FromStage)
	if from == "" {
		from = "<none>"
	}
	return fmt.Sprintf("%v: project %s %s %s@%d%% -> %s@%d%%",
		e.Err, e.ProjectID, e.Status, from, e.FromPercent, e.ToStage, e.ToPercent)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// Tracker validates and persists project progress transitions.
type Tracker struct {
	store        Store
	logger       *slog.Logger
	mu           sync.Mutex
	onTransition func(*project.Project)
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithObserver registers fn to receive a copy of the project after every
// persisted transition.
func WithObserver(fn func(*project.Project)) Option {
	return func(t *Tracker) {
		t.onTransition = fn
	}
}

// New constructs a Tracker writing through store.
func New(store Store, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		logger: logging.NewComponentLogger(logger, "progress"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin moves a pending project to processing without touching its stage or
// percentage. Processing projects are left unchanged.
func (t *Tracker) Begin(ctx context.Context, p *project.Project) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkLive(ctx, p, p.Stage, p.ProgressPercent); err != nil {
		return err
	}
	if p.Status == project.StatusProcessing {
		return nil
	}
	next := p.Clone()
	next.Status = project.StatusProcessing
	next.ErrorMessage = ""
	return t.commit(ctx, p, next)
}

// Advance records stage as completed at percent. stage must be the stage
// following the recorded one and percent must not be lower than the recorded
// percentage.
func (t *Tracker) Advance(ctx context.Context, p *project.Project, stage project.Stage, percent int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkLive(ctx, p, stage, percent); err != nil {
		return err
	}
	expected, ok := p.Stage.Next()
	if !ok || stage != expected || percent < p.ProgressPercent || percent > 100 {
		err := &TransitionError{
			ProjectID:   p.ID,
			FromStage:   p.Stage,
			ToStage:     stage,
			FromPercent: p.ProgressPercent,
			ToPercent:   percent,
			Status:      p.Status,
			Err:         ErrInvalidTransition,
		}
		t.logRejected(ctx, err)
		return err
	}

	next := p.Clone()
	next.Status = project.StatusProcessing
	next.Stage = stage
	next.ProgressPercent = percent
	return t.commit(ctx, p, next)
}

// MarkFailed records a terminal failure at stage with reason.
func (t *Tracker) MarkFailed(ctx context.Context, p *project.Project, stage project.Stage, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkLive(ctx, p, stage, p.ProgressPercent); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "failed"
	}
	next := p.Clone()
	next.Status = project.StatusFailed
	next.Stage = stage
	next.ErrorMessage = reason
	return t.commit(ctx, p, next)
}

// MarkCompleted records successful completion at 100%.
func (t *Tracker) MarkCompleted(ctx context.Context, p *project.Project) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkLive(ctx, p, p.Stage, 100); err != nil {
		return err
	}
	next := p.Clone()
	next.Status = project.StatusCompleted
	next.ProgressPercent = 100
	next.ErrorMessage = ""
	return t.commit(ctx, p, next)
}

func (t *Tracker) checkLive(ctx context.Context, p *project.Project, to project.Stage, percent int) error {
	if p == nil {
		return errors.New("progress: project is nil")
	}
	if !p.Status.IsTerminal() {
		return nil
	}
	err := &TransitionError{
		ProjectID:   p.ID,
		FromStage:   p.Stage,
		ToStage:     to,
		FromPercent: p.ProgressPercent,
		ToPercent:   percent,
		Status:      p.Status,
		Err:         ErrAlreadyTerminal,
	}
	t.logRejected(ctx, err)
	return err
}

func (t *Tracker) commit(ctx context.Context, current, next *project.Project) error {
	if err := t.store.UpdateProgress(ctx, next); err != nil {
		return fmt.Errorf("persist progress: %w", err)
	}
	*current = *next
	if t.onTransition != nil {
		t.onTransition(next.Clone())
	}
	return nil
}

func (t *Tracker) logRejected(ctx context.Context, err *TransitionError) {
	logging.ErrorWithContext(logging.WithContext(ctx, t.logger), "progress transition rejected", "progress_rejected",
		logging.String(logging.FieldProjectID, err.ProjectID),
		logging.String("from_stage", string(err.FromStage)),
		logging.String("to_stage", string(err.ToStage)),
		logging.Int("from_percent", err.FromPercent),
		logging.Int("to_percent", err.ToPercent),
		logging.String("status", string(err.Status)),
		logging.String(logging.FieldErrorHint, "a stage ran out of order; inspect the workflow logs for this project"),
		logging.Error(err),
	)
}
