package services

import (
	"errors"
	"fmt"
	"strings"
)

// Run-level markers. Stage failures surfaced to callers always carry exactly
// one of these.
var (
	ErrStageTimeout   = errors.New("stage timeout")
	ErrStageFailure   = errors.New("stage failure")
	ErrNonRetryable   = errors.New("non-retryable stage failure")
	ErrInvalidRequest = errors.New("invalid request")
)

// Collaborator markers. Clients tag their errors with these so retry policies
// can classify them.
var (
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrTransient         = errors.New("transient failure")
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
)

// Error kinds used in persisted records, API responses, and retry policy
// configuration.
const (
	KindStageTimeout      = "stage_timeout"
	KindStageFailure      = "stage_failure"
	KindNonRetryable      = "non_retryable"
	KindInvalidRequest    = "invalid_request"
	KindResourceExhausted = "resource_exhausted"
	KindTransient         = "transient"
	KindValidation        = "validation"
	KindConfiguration     = "configuration"
	KindNotFound          = "not_found"
	KindCancelled         = "cancelled"
	KindUnknown           = "unknown"
)

var kindMarkers = []struct {
	kind   string
	marker error
}{
	// Run-level markers first so a stage failure that wraps a timeout
	// still reports as a stage failure.
	{KindNonRetryable, ErrNonRetryable},
	{KindStageFailure, ErrStageFailure},
	{KindStageTimeout, ErrStageTimeout},
	{KindInvalidRequest, ErrInvalidRequest},
	{KindResourceExhausted, ErrResourceExhausted},
	{KindValidation, ErrValidation},
	{KindConfiguration, ErrConfiguration},
	{KindNotFound, ErrNotFound},
	{KindTransient, ErrTransient},
}

// MarkerForKind returns the sentinel error for a kind name, or nil when the
// kind is unknown.
func MarkerForKind(kind string) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	for _, km := range kindMarkers {
		if km.kind == kind {
			return km.marker
		}
	}
	return nil
}

// KindOf classifies err into one of the Kind constants.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, km := range kindMarkers {
		if errors.Is(err, km.marker) {
			return km.kind
		}
	}
	if errors.Is(err, errCancelled) {
		return KindCancelled
	}
	return KindUnknown
}

// StageError is the structured failure produced when a stage cannot deliver
// a result. It matches both its marker and its cause under errors.Is.
type StageError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Attempts  int
	Err       error
}

func (e *StageError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	marker := e.Marker
	if marker == nil {
		marker = ErrStageFailure
	}
	if e.Attempts > 1 {
		detail = fmt.Sprintf("%s (after %d attempts)", detail, e.Attempts)
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", marker, detail, e.Err)
	}
	return fmt.Sprintf("%v: %s", marker, detail)
}

func (e *StageError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Marker != nil {
		errs = append(errs, e.Marker)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &StageError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Err:       err,
	}
}

// ErrorDetails is the flattened view of a failure for logs and persistence.
type ErrorDetails struct {
	Kind      string
	Stage     string
	Operation string
	Message   string
	Attempts  int
	Cause     string
}

// Details extracts the outermost StageError fields from err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: KindOf(err), Message: err.Error()}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		details.Stage = stageErr.Stage
		details.Operation = stageErr.Operation
		details.Attempts = stageErr.Attempts
		if stageErr.Message != "" {
			details.Message = stageErr.Message
		}
		if stageErr.Err != nil {
			details.Cause = stageErr.Err.Error()
		}
	}
	return details
}

var errCancelled = errors.New("cancelled")

// Cancelled marks err as a cancellation so KindOf reports it distinctly from
// stage failures.
func Cancelled(err error) error {
	if err == nil {
		return errCancelled
	}
	return fmt.Errorf("%w: %w", errCancelled, err)
}

// IsCancelled reports whether err was produced by Cancelled.
func IsCancelled(err error) bool {
	return errors.Is(err, errCancelled)
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
