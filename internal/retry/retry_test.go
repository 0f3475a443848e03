package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fission/internal/services"
)

var (
	errFlaky = services.Code(services.ErrTransient, "ServiceUnavailable")
	errBad   = services.Code(services.ErrValidation, "MalformedInput")
)

func recordingPolicy(attempts int) (Policy, *[]time.Duration) {
	var slept []time.Duration
	policy := Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	return policy, &slept
}

func TestDoTerminalRunsOnce(t *testing.T) {
	policy, slept := recordingPolicy(3)
	calls := 0
	_, err := Do(context.Background(), policy, func(context.Context) (string, error) {
		calls++
		return "", services.Wrap(errBad, "analysis", "identify", "bad request", nil)
	}, nil)
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
	if len(*slept) != 0 {
		t.Fatalf("terminal failure must not sleep, slept %v", *slept)
	}
	var retryErr *Error
	if !errors.As(err, &retryErr) || retryErr.Attempts != 1 || retryErr.Exhausted {
		t.Fatalf("unexpected error: %#v", err)
	}
	if !errors.Is(err, errBad) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected sentinel to survive wrapping: %v", err)
	}
}

func TestDoExhaustsRetryable(t *testing.T) {
	policy, slept := recordingPolicy(3)
	calls := 0
	_, err := Do(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		return 0, services.Wrap(errFlaky, "transcription", "transcribe", "503", nil)
	}, nil)
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected sleeps %v, got %v", want, *slept)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("sleep %d = %v, want %v", i, (*slept)[i], want[i])
		}
	}
	if Attempts(err) != 3 {
		t.Fatalf("expected attempts 3, got %d", Attempts(err))
	}
	var retryErr *Error
	if !errors.As(err, &retryErr) || !retryErr.Exhausted {
		t.Fatalf("expected exhausted error, got %#v", err)
	}
	if !strings.HasPrefix(services.FailureReason(err), "ServiceUnavailable") {
		t.Fatalf("failure reason should lead with code, got %q", services.FailureReason(err))
	}
}

func TestDoSucceedsOnSecondAttempt(t *testing.T) {
	policy, _ := recordingPolicy(3)
	calls := 0
	var hooks []int
	policy = policy.WithOnRetry(func(attempt int, _ time.Duration, _ error) {
		hooks = append(hooks, attempt)
	})
	value, err := Do(context.Background(), policy, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errFlaky
		}
		return "ok", nil
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "ok" || calls != 2 {
		t.Fatalf("value=%q calls=%d", value, calls)
	}
	if len(hooks) != 1 || hooks[0] != 1 {
		t.Fatalf("expected one OnRetry call for attempt 1, got %v", hooks)
	}
}

func TestDoStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Sleep: func(context.Context, time.Duration) error {
			cancel()
			return nil
		},
	}
	calls := 0
	_, err := Do(ctx, policy, func(context.Context) (int, error) {
		calls++
		return 0, errFlaky
	}, nil)
	if calls != 1 {
		t.Fatalf("expected cancellation to stop after first attempt, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoCustomClassifier(t *testing.T) {
	policy, _ := recordingPolicy(4)
	calls := 0
	_, err := Do(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("plain")
	}, func(error) Classification { return Retryable })
	if calls != 4 || Attempts(err) != 4 {
		t.Fatalf("calls=%d attempts=%d", calls, Attempts(err))
	}
}

func TestDelayCapAndJitter(t *testing.T) {
	policy := Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	cases := map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 5 * time.Second,
		9: 5 * time.Second,
	}
	for attempt, want := range cases {
		if got := policy.delay(attempt, errFlaky); got != want {
			t.Fatalf("delay(%d) = %v, want %v", attempt, got, want)
		}
	}

	policy.Jitter = 0.2
	policy.Rand = func() float64 { return 0 }
	if got := policy.delay(1, errFlaky); got != 800*time.Millisecond {
		t.Fatalf("low jitter = %v, want 800ms", got)
	}
	policy.Rand = func() float64 { return 1 }
	if got := policy.delay(1, errFlaky); got != 1200*time.Millisecond {
		t.Fatalf("high jitter = %v, want 1.2s", got)
	}
}

type hintedError struct{ after time.Duration }

func (e hintedError) Error() string             { return "rate limited" }
func (e hintedError) RetryAfter() time.Duration { return e.after }

func TestRetryAfterHint(t *testing.T) {
	policy := Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	if got := policy.delay(1, hintedError{after: 3 * time.Second}); got != 3*time.Second {
		t.Fatalf("expected hint delay, got %v", got)
	}
	if got := policy.delay(1, hintedError{after: time.Minute}); got != 10*time.Second {
		t.Fatalf("expected hint capped, got %v", got)
	}
	if Classify(hintedError{after: time.Second}) != Retryable {
		t.Fatal("hinted errors should be retryable")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Classification
	}{
		{"transient", services.Wrap(services.ErrTransient, "x", "y", "z", nil), Retryable},
		{"timeout", services.Wrap(services.ErrTimeout, "x", "y", "z", nil), Retryable},
		{"validation", services.Wrap(services.ErrValidation, "x", "y", "z", nil), Terminal},
		{"plain", errors.New("boom"), Terminal},
		{"canceled", context.Canceled, Terminal},
		{"deadline", context.DeadlineExceeded, Terminal},
		{"call timeout", services.Wrap(services.ErrTimeout, "llm", "complete", "request deadline exceeded", context.DeadlineExceeded), Retryable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify = %s, want %s", got, tc.want)
			}
		})
	}
}
