package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"fission/internal/logging"
	"fission/internal/services"
	"fission/internal/stage"
)

const defaultConcurrency = 4

// Unit is one independent piece of fan-out work.
type Unit[T any] struct {
	Key   string
	Value T
}

// Worker processes a single unit.
type Worker[T any] func(ctx context.Context, unit Unit[T]) error

// Options controls pool size and per-unit hooks.
type Options struct {
	Concurrency int
	Logger      *slog.Logger
	// OnUnitDone runs after each unit finishes, from the worker goroutine.
	OnUnitDone func(UnitResult)
}

// UnitResult is the outcome of one unit.
type UnitResult struct {
	Key      string
	Err      error
	Panicked bool
	Stack    string
	Duration time.Duration
}

// Succeeded reports whether the unit finished without error.
func (r UnitResult) Succeeded() bool {
	return r.Err == nil
}

// Report aggregates unit results in input order.
type Report struct {
	Results []UnitResult
}

// Succeeded returns the number of units that finished without error.
func (r Report) Succeeded() int {
	count := 0
	for _, res := range r.Results {
		if res.Succeeded() {
			count++
		}
	}
	return count
}

// Failures lists failed units with their persisted reasons.
func (r Report) Failures() []stage.UnitFailure {
	var failures []stage.UnitFailure
	for _, res := range r.Results {
		if res.Err != nil {
			failures = append(failures, stage.UnitFailure{Key: res.Key, Reason: services.FailureReason(res.Err)})
		}
	}
	return failures
}

// Outcome classifies the report. An empty report is a success.
func (r Report) Outcome() stage.Outcome {
	if len(r.Results) == 0 {
		return stage.OutcomeSuccess
	}
	succeeded := r.Succeeded()
	switch {
	case succeeded == 0:
		return stage.OutcomeHardFailure
	case succeeded < len(r.Results):
		return stage.OutcomePartialSuccess
	default:
		return stage.OutcomeSuccess
	}
}

// Result converts the report into a stage result with the given summary.
func (r Report) Result(summary string) stage.Result {
	output := stage.Output{Summary: summary, Produced: r.Succeeded()}
	switch r.Outcome() {
	case stage.OutcomeHardFailure:
		failures := r.Failures()
		result := stage.Failed(fmt.Sprintf("all %d units failed; first: %s", len(failures), failures[0].Reason))
		result.Failures = failures
		for _, res := range r.Results {
			if res.Err != nil {
				result.Err = res.Err
				break
			}
		}
		return result
	case stage.OutcomePartialSuccess:
		return stage.PartialSuccess(output, r.Failures())
	default:
		return stage.Success(output)
	}
}

// RunAll executes every unit, at most opts.Concurrency at a time, and waits
// for all of them. Units not yet started when ctx is done fail with ctx's error.
func RunAll[T any](ctx context.Context, units []Unit[T], worker Worker[T], opts Options) Report {
	report := Report{Results: make([]UnitResult, len(units))}
	if len(units) == 0 {
		return report
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	var group errgroup.Group
	group.SetLimit(limit)
	for i, unit := range units {
		group.Go(func() error {
			res := runUnit(ctx, unit, worker)
			report.Results[i] = res
			if res.Err != nil {
				logUnitFailure(ctx, logger, res)
			}
			if opts.OnUnitDone != nil {
				opts.OnUnitDone(res)
			}
			return nil
		})
	}
	_ = group.Wait()
	return report
}

func runUnit[T any](ctx context.Context, unit Unit[T], worker Worker[T]) (res UnitResult) {
	res.Key = unit.Key
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if recovered := recover(); recovered != nil {
			res.Panicked = true
			res.Err = services.Wrap(services.ErrExternalTool, "fanout", unit.Key,
				fmt.Sprintf("unit panicked: %v", recovered), nil)
			res.Stack = string(debug.Stack())
		}
	}()
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	unitCtx := services.WithUnitKey(ctx, unit.Key)
	res.Err = worker(unitCtx, unit)
	return res
}

func logUnitFailure(ctx context.Context, logger *slog.Logger, res UnitResult) {
	details := services.Details(res.Err)
	attrs := []logging.Attr{
		logging.String(logging.FieldUnitKey, res.Key),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.Duration("duration", res.Duration),
		logging.Error(res.Err),
	}
	if details.Code != "" {
		attrs = append(attrs, logging.String(logging.FieldErrorCode, details.Code))
	}
	if res.Panicked {
		attrs = append(attrs, logging.Alert("unit_panic"), logging.String("stack", res.Stack))
	}
	logging.WarnWithContext(logging.WithContext(ctx, logger), "asset unit failed", "unit_failed",
		append(attrs,
			logging.String(logging.FieldErrorHint, "inspect the failed asset row; rerun the stage to retry"),
			logging.String(logging.FieldImpact, "asset marked failed; sibling units continue"),
		)...)
}
