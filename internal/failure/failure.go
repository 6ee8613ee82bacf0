// Package failure defines the error taxonomy shared by the render pipeline.
// Each typed error unwraps to a package sentinel so callers can classify
// failures with errors.Is and inspect details with errors.As.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic classification via errors.Is().
var (
	// ErrValidation indicates malformed or out-of-range request parameters.
	ErrValidation = errors.New("validation error")
	// ErrFetch indicates a source reference could not be retrieved.
	ErrFetch = errors.New("fetch error")
	// ErrRasterization indicates a caption layer could not be turned into a bitmap.
	ErrRasterization = errors.New("rasterization error")
	// ErrGraphConstruction indicates an invariant was violated while building a pipeline graph.
	ErrGraphConstruction = errors.New("graph construction error")
	// ErrExecution indicates the external encoder exited non-zero or timed out.
	ErrExecution = errors.New("execution error")
)

// Reason codes reported to HTTP clients.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeSourceNotFound    = "SOURCE_NOT_FOUND"
	CodeFetchFailed       = "FETCH_FAILED"
	CodeRasterization     = "RASTERIZATION_FAILED"
	CodeGraphConstruction = "GRAPH_CONSTRUCTION_FAILED"
	CodeEncodingFailed    = "ENCODING_FAILED"
	CodeEncodingTimeout   = "ENCODING_TIMEOUT"
	CodeInternal          = "INTERNAL_ERROR"
)

// ValidationError reports a request parameter that failed validation.
type ValidationError struct {
	Field string // Offending parameter, e.g. "slides[1].duration"
	Msg   string
}

// Validation builds a ValidationError with a formatted message.
func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FetchError reports a source reference that could not be retrieved.
type FetchError struct {
	Ref      string
	NotFound bool // The reference resolved but the object does not exist
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrFetch.Error(), e.Ref)
	}
	return fmt.Sprintf("%s: %s: %v", ErrFetch.Error(), e.Ref, e.Err)
}

func (e *FetchError) Unwrap() []error { return []error{ErrFetch, e.Err} }

// RasterizationError reports a caption layer that failed to render.
type RasterizationError struct {
	Err error
}

func (e *RasterizationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrRasterization.Error(), e.Err)
}

func (e *RasterizationError) Unwrap() []error { return []error{ErrRasterization, e.Err} }

// Kinds of graph construction failures.
const (
	KindNegativeOffset   = "negative_offset"
	KindNonMonotonic     = "non_monotonic_offset"
	KindSlideTooShort    = "slide_too_short"
	KindDanglingPad      = "dangling_pad"
	KindDuplicatePad     = "duplicate_pad"
	KindReusedPad        = "reused_pad"
	KindUnusedPad        = "unused_pad"
	KindTransitionCount  = "transition_count"
	KindMissingOutput    = "missing_output"
	KindMismatchedInputs = "mismatched_inputs"
)

// GraphConstructionError reports a violated pipeline-graph invariant.
type GraphConstructionError struct {
	Kind string
	Msg  string
}

func (e *GraphConstructionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrGraphConstruction.Error(), e.Kind, e.Msg)
}

func (e *GraphConstructionError) Unwrap() error { return ErrGraphConstruction }

// ExecutionError reports a failed encoder invocation.
// Stderr holds at most the bounded diagnostic tail captured by the executor.
type ExecutionError struct {
	Args     []string
	Stderr   string
	ExitCode int
	TimedOut bool
	Err      error
}

func (e *ExecutionError) Error() string {
	var b strings.Builder
	b.WriteString(ErrExecution.Error())
	if e.TimedOut {
		b.WriteString(": timed out")
	} else {
		fmt.Fprintf(&b, ": exit code %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, "\nstderr: %s", e.Stderr)
	}
	return b.String()
}

func (e *ExecutionError) Unwrap() []error { return []error{ErrExecution, e.Err} }

// Code returns the machine-readable reason code for err.
func Code(err error) string {
	var fetchErr *FetchError
	var execErr *ExecutionError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.As(err, &fetchErr):
		if fetchErr.NotFound {
			return CodeSourceNotFound
		}
		return CodeFetchFailed
	case errors.Is(err, ErrRasterization):
		return CodeRasterization
	case errors.Is(err, ErrGraphConstruction):
		return CodeGraphConstruction
	case errors.As(err, &execErr):
		if execErr.TimedOut {
			return CodeEncodingTimeout
		}
		return CodeEncodingFailed
	default:
		return CodeInternal
	}
}
