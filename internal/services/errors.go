package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// ErrorKind groups markers into the broad categories used for logging.
type ErrorKind string

const (
	KindTransient     ErrorKind = "transient"
	KindTimeout       ErrorKind = "timeout"
	KindValidation    ErrorKind = "validation"
	KindConfiguration ErrorKind = "configuration"
	KindNotFound      ErrorKind = "not_found"
	KindExternal      ErrorKind = "external"
	KindUnknown       ErrorKind = "unknown"
)

// CodedError pairs a marker with a stable failure code. Providers declare their
// sentinel errors with Code so callers can match either the sentinel or the
// underlying marker with errors.Is.
type CodedError struct {
	Marker error
	Code   string
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code
}

func (e *CodedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Marker
}

// Code declares a provider sentinel error tagged with marker.
func Code(marker error, code string) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &CodedError{Marker: marker, Code: strings.TrimSpace(code)}
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above or a provider sentinel declared with Code.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether err carries a marker that a retry may resolve.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

// ErrorDetails is the structured view of a wrapped error used by log lines and
// persisted failure reasons.
type ErrorDetails struct {
	Kind    ErrorKind
	Code    string
	Message string
	Cause   error
}

// Details extracts the classification and failure code carried by err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	details := ErrorDetails{
		Kind:    kindOf(err),
		Message: strings.TrimSpace(err.Error()),
		Cause:   errors.Unwrap(err),
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		details.Code = coded.Code
	}
	return details
}

// FailureReason renders err as the reason persisted on projects and assets:
// the failure code when one is present, followed by the message.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	details := Details(err)
	if details.Code == "" {
		return details.Message
	}
	if details.Message == "" {
		return details.Code
	}
	if strings.HasPrefix(details.Message, details.Code) {
		return details.Message
	}
	return details.Code + ": " + details.Message
}

func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrExternalTool):
		return KindExternal
	default:
		return KindUnknown
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
