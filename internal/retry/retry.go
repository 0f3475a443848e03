package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"fission/internal/config"
	"fission/internal/services"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultJitter      = 0.2
)

// Classification tells Do whether a failure may succeed on another attempt.
type Classification int

const (
	Retryable Classification = iota
	Terminal
)

func (c Classification) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "terminal"
}

// Classifier maps an operation error to a Classification.
type Classifier func(error) Classification

// Policy bounds the attempts and delays Do applies.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64

	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand returns a value in [0, 1) for jitter. Nil uses math/rand/v2.
	Rand func() float64
	// OnRetry runs before each sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns 3 attempts starting at 1s with 20% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		Jitter:      defaultJitter,
	}
}

// FromConfig builds a policy from the [retry] section.
func FromConfig(cfg *config.Config) Policy {
	policy := DefaultPolicy()
	if cfg == nil {
		return policy
	}
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if base := cfg.RetryBaseDelay(); base > 0 {
		policy.BaseDelay = base
	}
	if maxDelay := cfg.RetryMaxDelay(); maxDelay > 0 {
		policy.MaxDelay = maxDelay
	}
	if cfg.Retry.JitterFraction >= 0 {
		policy.Jitter = cfg.Retry.JitterFraction
	}
	return policy
}

// WithOnRetry returns a copy of p that calls hook before each sleep, after any
// hook already set.
func (p Policy) WithOnRetry(hook func(attempt int, delay time.Duration, err error)) Policy {
	if hook == nil {
		return p
	}
	prev := p.OnRetry
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		if prev != nil {
			prev(attempt, delay, err)
		}
		hook(attempt, delay, err)
	}
	return p
}

// Error reports a call that did not succeed within the policy.
type Error struct {
	Attempts  int
	Exhausted bool
	Cause     error
	// Aborted holds the context error when cancellation ended the loop.
	Aborted error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	cause := "unknown failure"
	if e.Cause != nil {
		cause = e.Cause.Error()
	} else if e.Aborted != nil {
		cause = e.Aborted.Error()
	}
	noun := "attempts"
	if e.Attempts == 1 {
		noun = "attempt"
	}
	switch {
	case e.Aborted != nil:
		return fmt.Sprintf("%s (aborted after %d %s)", cause, e.Attempts, noun)
	case e.Exhausted:
		return fmt.Sprintf("%s (gave up after %d %s)", cause, e.Attempts, noun)
	default:
		return fmt.Sprintf("%s (terminal after %d %s)", cause, e.Attempts, noun)
	}
}

func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := make([]error, 0, 2)
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if e.Aborted != nil {
		errs = append(errs, e.Aborted)
	}
	return errs
}

// Attempts returns how many attempts ran before err was produced, or 0 when
// err did not come from Do.
func Attempts(err error) int {
	var retryErr *Error
	if errors.As(err, &retryErr) {
		return retryErr.Attempts
	}
	return 0
}

// Do runs op until it succeeds, classify reports Terminal, the attempt budget
// is spent, or ctx is done. A nil classify uses Classify.
func Do[T any](ctx context.Context, policy Policy, op func(context.Context) (T, error), classify Classifier) (T, error) {
	var zero T
	if classify == nil {
		classify = Classify
	}
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, &Error{Attempts: attempt - 1, Cause: lastErr, Aborted: err}
		}
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, &Error{Attempts: attempt, Cause: err, Aborted: ctxErr}
		}
		if classify(err) == Terminal {
			return zero, &Error{Attempts: attempt, Cause: err}
		}
		if attempt == attempts {
			break
		}

		delay := policy.delay(attempt, err)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay, err)
		}
		if sleepErr := policy.sleep(ctx, delay); sleepErr != nil {
			return zero, &Error{Attempts: attempt, Cause: err, Aborted: sleepErr}
		}
	}
	return zero, &Error{Attempts: attempts, Exhausted: true, Cause: lastErr}
}

// Classify is the default classifier: transient and timeout markers, network
// timeouts and provider retry hints are retryable; everything else is terminal.
func Classify(err error) Classification {
	if err == nil {
		return Terminal
	}
	if errors.Is(err, context.Canceled) {
		return Terminal
	}
	if errors.Is(err, services.ErrValidation) ||
		errors.Is(err, services.ErrConfiguration) ||
		errors.Is(err, services.ErrNotFound) {
		return Terminal
	}
	// A per-call deadline tagged ErrTimeout is retryable; a bare deadline
	// belongs to the caller's context.
	if services.Retryable(err) {
		return Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Terminal
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Retryable
	}
	if _, ok := retryAfterHint(err); ok {
		return Retryable
	}
	return Terminal
}

// delay returns the wait before attempt+1. attempt is 1-based: attempt 1
// waits base, attempt 2 waits base*2, and so on.
func (p Policy) delay(attempt int, err error) time.Duration {
	if hint, ok := retryAfterHint(err); ok && hint > 0 {
		return p.capDelay(hint)
	}
	base := p.BaseDelay
	if base <= 0 {
		return 0
	}
	maxDelay := p.maxDelay()

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	delay = p.capDelay(delay)
	return p.capDelay(p.applyJitter(delay))
}

func (p Policy) applyJitter(delay time.Duration) time.Duration {
	jitter := p.Jitter
	if jitter <= 0 || delay <= 0 {
		return delay
	}
	if jitter > 1 {
		jitter = 1
	}
	r := rand.Float64
	if p.Rand != nil {
		r = p.Rand
	}
	factor := 1 + jitter*(2*r()-1)
	return time.Duration(float64(delay) * factor)
}

func (p Policy) maxDelay() time.Duration {
	if p.MaxDelay > 0 {
		return p.MaxDelay
	}
	return defaultMaxDelay
}

func (p Policy) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if maxDelay := p.maxDelay(); delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if p.Sleep != nil {
		if err := p.Sleep(ctx, delay); err != nil {
			return err
		}
		return ctx.Err()
	}
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfterHint extracts a server supplied delay, such as an HTTP
// Retry-After header, from err.
func retryAfterHint(err error) (time.Duration, bool) {
	var hinted interface{ RetryAfter() time.Duration }
	if errors.As(err, &hinted) {
		if d := hinted.RetryAfter(); d > 0 {
			return d, true
		}
	}
	return 0, false
}
