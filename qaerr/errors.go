// Package qaerr provides the structured error taxonomy shared by every stage
// of the question-answering pipeline.
//
// Errors carry the operation that failed and a Kind that tells callers which
// stage produced them. All errors support errors.Is against the sentinels
// below, so a caller can distinguish "the schema has no such data" from "the
// system could not complete the request" without inspecting messages.
package qaerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrSchemaLoad indicates the graph schema could not be introspected or parsed.
	// It is fatal to session startup.
	ErrSchemaLoad = errors.New("schema load failed")

	// ErrNotLoaded indicates the schema snapshot was requested before a successful load.
	ErrNotLoaded = errors.New("schema not loaded")

	// ErrGeneration indicates the text generation service failed to produce a candidate.
	ErrGeneration = errors.New("query generation failed")

	// ErrValidation indicates a candidate query was rejected by the schema validator.
	ErrValidation = errors.New("query rejected by validator")

	// ErrUnanswerableAfterRetries indicates every allowed attempt produced an invalid query.
	ErrUnanswerableAfterRetries = errors.New("question could not be answered within the schema")

	// ErrExecution indicates the graph store rejected or failed a validated query.
	ErrExecution = errors.New("query execution failed")

	// ErrMapping indicates a result record could not be converted to a domain entity.
	ErrMapping = errors.New("result mapping failed")

	// ErrTimeout indicates the request deadline expired or the request was cancelled.
	ErrTimeout = errors.New("request timed out")

	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Kind categorizes errors by the pipeline stage that produced them.
type Kind string

const (
	KindSchemaLoad               Kind = "schema_load"
	KindNotLoaded                Kind = "not_loaded"
	KindGeneration               Kind = "generation"
	KindValidation               Kind = "validation"
	KindUnanswerableAfterRetries Kind = "unanswerable_after_retries"
	KindExecution                Kind = "execution"
	KindMapping                  Kind = "mapping"
	KindTimeout                  Kind = "timeout"
	KindConfiguration            Kind = "configuration"
	KindInternal                 Kind = "internal"
)

// sentinelFor maps each kind to the sentinel it matches under errors.Is.
var sentinelFor = map[Kind]error{
	KindSchemaLoad:               ErrSchemaLoad,
	KindNotLoaded:                ErrNotLoaded,
	KindGeneration:               ErrGeneration,
	KindValidation:               ErrValidation,
	KindUnanswerableAfterRetries: ErrUnanswerableAfterRetries,
	KindExecution:                ErrExecution,
	KindMapping:                  ErrMapping,
	KindTimeout:                  ErrTimeout,
	KindConfiguration:            ErrInvalidConfig,
}

// Error is a structured error that wraps an underlying cause with the
// operation that failed and the category of failure.
//
// Example usage:
//
//	err := &qaerr.Error{
//		Op:   "Generator.Generate",
//		Kind: qaerr.KindGeneration,
//		Err:  ctx.Err(),
//	}
type Error struct {
	// Op is the operation that failed (e.g., "Cache.Load", "Executor.Execute").
	Op string

	// Kind categorizes the error.
	Kind Kind

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional debugging information (optional).
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("graphqa: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("graphqa: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("graphqa: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind (and Op, when the target sets
// one), the sentinel associated with the Kind, or anything the cause matches.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			return t.Op == "" || e.Op == t.Op
		}
		return false
	}

	if sentinel, ok := sentinelFor[e.Kind]; ok && sentinel == target {
		return true
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with the provided context merged in.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	merged := make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		merged[k] = v
	}
	for k, v := range ctx {
		merged[k] = v
	}
	newErr.Context = merged
	return &newErr
}

// New creates an Error of the given kind.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// NewSchemaLoadError creates a new Error with KindSchemaLoad.
func NewSchemaLoadError(op string, err error) *Error {
	return New(op, KindSchemaLoad, err)
}

// NewGenerationError creates a new Error with KindGeneration.
func NewGenerationError(op string, err error) *Error {
	return New(op, KindGeneration, err)
}

// NewExecutionError creates a new Error with KindExecution.
func NewExecutionError(op string, err error) *Error {
	return New(op, KindExecution, err)
}

// NewTimeoutError creates a new Error with KindTimeout.
func NewTimeoutError(op string, err error) *Error {
	return New(op, KindTimeout, err)
}

// NewConfigurationError creates a new Error with KindConfiguration.
func NewConfigurationError(op string, err error) *Error {
	return New(op, KindConfiguration, err)
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

