package fanout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fission/internal/services"
	"fission/internal/stage"
)

func units(n int) []Unit[int] {
	out := make([]Unit[int], n)
	for i := range out {
		out[i] = Unit[int]{Key: fmt.Sprintf("moment-%d", i), Value: i}
	}
	return out
}

func TestRunAllEmptyIsSuccess(t *testing.T) {
	report := RunAll(context.Background(), nil, func(context.Context, Unit[int]) error {
		t.Fatal("worker must not run")
		return nil
	}, Options{})
	if report.Outcome() != stage.OutcomeSuccess {
		t.Fatalf("expected success, got %s", report.Outcome())
	}
	if r := report.Result("none"); r.Outcome != stage.OutcomeSuccess || r.Output.Produced != 0 {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestRunAllPartialFailure(t *testing.T) {
	encodingFailed := services.Code(services.ErrExternalTool, "EncodingFailed")
	report := RunAll(context.Background(), units(4), func(_ context.Context, u Unit[int]) error {
		if u.Value == 2 {
			return services.Wrap(encodingFailed, "clips", "ffmpeg", "exit status 1", nil)
		}
		return nil
	}, Options{Concurrency: 2})

	if report.Outcome() != stage.OutcomePartialSuccess {
		t.Fatalf("expected partial success, got %s", report.Outcome())
	}
	if report.Succeeded() != 3 {
		t.Fatalf("expected 3 successes, got %d", report.Succeeded())
	}
	failures := report.Failures()
	if len(failures) != 1 || failures[0].Key != "moment-2" {
		t.Fatalf("unexpected failures %+v", failures)
	}
	if !strings.HasPrefix(failures[0].Reason, "EncodingFailed") {
		t.Fatalf("reason should carry the failure code, got %q", failures[0].Reason)
	}
	result := report.Result("clips")
	if result.Outcome != stage.OutcomePartialSuccess || result.Output.Produced != 3 || len(result.Failures) != 1 {
		t.Fatalf("unexpected stage result %+v", result)
	}
}

func TestRunAllEveryUnitFailing(t *testing.T) {
	report := RunAll(context.Background(), units(3), func(context.Context, Unit[int]) error {
		return errors.New("boom")
	}, Options{})
	if report.Outcome() != stage.OutcomeHardFailure {
		t.Fatalf("expected hard failure, got %s", report.Outcome())
	}
	result := report.Result("clips")
	if result.Continues() || result.Err == nil || len(result.Failures) != 3 {
		t.Fatalf("unexpected hard failure result %+v", result)
	}
}

func TestRunAllCapturesPanics(t *testing.T) {
	report := RunAll(context.Background(), units(3), func(_ context.Context, u Unit[int]) error {
		if u.Value == 0 {
			panic("nil frame")
		}
		return nil
	}, Options{})
	first := report.Results[0]
	if !first.Panicked || first.Err == nil || first.Stack == "" {
		t.Fatalf("expected captured panic, got %+v", first)
	}
	if report.Outcome() != stage.OutcomePartialSuccess {
		t.Fatalf("panic should only fail its own unit, got %s", report.Outcome())
	}
}

func TestRunAllKeepsInputOrder(t *testing.T) {
	report := RunAll(context.Background(), units(5), func(_ context.Context, u Unit[int]) error {
		time.Sleep(time.Duration(5-u.Value) * time.Millisecond)
		return nil
	}, Options{Concurrency: 5})
	for i, res := range report.Results {
		if want := fmt.Sprintf("moment-%d", i); res.Key != want {
			t.Fatalf("result %d key %q, want %q", i, res.Key, want)
		}
	}
}

func TestRunAllRespectsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	var mu sync.Mutex
	var done []string
	report := RunAll(context.Background(), units(8), func(_ context.Context, u Unit[int]) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return nil
	}, Options{
		Concurrency: 2,
		OnUnitDone: func(res UnitResult) {
			mu.Lock()
			done = append(done, res.Key)
			mu.Unlock()
		},
	})
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent units, saw %d", peak.Load())
	}
	if report.Succeeded() != 8 || len(done) != 8 {
		t.Fatalf("succeeded=%d hooks=%d", report.Succeeded(), len(done))
	}
}

func TestRunAllUnitContextCarriesKey(t *testing.T) {
	RunAll(context.Background(), units(1), func(ctx context.Context, u Unit[int]) error {
		key, ok := services.UnitKeyFromContext(ctx)
		if !ok || key != u.Key {
			t.Errorf("expected unit key %q in context, got %q", u.Key, key)
		}
		return nil
	}, Options{})
}

func TestRunAllCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := RunAll(ctx, units(2), func(context.Context, Unit[int]) error {
		t.Error("worker must not run after cancellation")
		return nil
	}, Options{})
	for _, res := range report.Results {
		if !errors.Is(res.Err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", res.Err)
		}
	}
}
