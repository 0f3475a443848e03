package stage

import (
	"fmt"
	"strings"

	"fission/internal/services"
)

// Outcome is the tag of a stage Result.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomePartialSuccess
	OutcomeHardFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartialSuccess:
		return "partial_success"
	case OutcomeHardFailure:
		return "hard_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// UnitFailure records one fan-out unit that did not produce its assets.
type UnitFailure struct {
	Key    string
	Reason string
}

// Output summarizes what a stage produced.
type Output struct {
	Summary  string
	Produced int
}

// Result is the tagged outcome of a single stage execution.
type Result struct {
	Outcome  Outcome
	Output   Output
	Failures []UnitFailure
	// Reason is the persisted failure reason for a hard failure.
	Reason string
	// Err keeps the underlying error of a hard failure for logging.
	Err error
}

// Success reports a stage that completed every unit of work.
func Success(output Output) Result {
	return Result{Outcome: OutcomeSuccess, Output: output}
}

// PartialSuccess reports a stage where some units failed but the stage as a
// whole produced output.
func PartialSuccess(output Output, failures []UnitFailure) Result {
	if len(failures) == 0 {
		return Success(output)
	}
	return Result{Outcome: OutcomePartialSuccess, Output: output, Failures: failures}
}

// HardFailure reports a stage that cannot be continued past.
func HardFailure(err error) Result {
	reason := services.FailureReason(err)
	if strings.TrimSpace(reason) == "" {
		reason = "stage failed"
	}
	return Result{Outcome: OutcomeHardFailure, Reason: reason, Err: err}
}

// Failed reports a hard failure with an explicit reason.
func Failed(reason string) Result {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "stage failed"
	}
	return Result{Outcome: OutcomeHardFailure, Reason: reason}
}

// Continues reports whether the pipeline may advance past this result.
func (r Result) Continues() bool {
	return r.Outcome != OutcomeHardFailure
}
