package qaerr

import (
	"context"
	"errors"
)

// Class categorizes errors by their nature so callers can decide whether a
// request is worth resubmitting.
type Class string

const (
	// ClassInfrastructure indicates environment or setup issues
	// Examples: store unreachable at startup, schema introspection failed
	ClassInfrastructure Class = "infrastructure"

	// ClassSemantic indicates the question or generated query cannot be served
	// Examples: validator rejections, store syntax errors, unmappable records
	ClassSemantic Class = "semantic"

	// ClassTransient indicates temporary failures that may resolve
	// Examples: generator timeouts, transport errors, expired deadlines
	ClassTransient Class = "transient"

	// ClassPermanent indicates non-recoverable failures
	// Examples: invalid configuration
	ClassPermanent Class = "permanent"
)

// DefaultClassForKind returns the default class for a given kind.
func DefaultClassForKind(kind Kind) Class {
	switch kind {
	case KindSchemaLoad, KindNotLoaded:
		return ClassInfrastructure
	case KindValidation, KindUnanswerableAfterRetries, KindExecution, KindMapping:
		return ClassSemantic
	case KindGeneration, KindTimeout:
		return ClassTransient
	case KindConfiguration:
		return ClassPermanent
	default:
		return ClassTransient
	}
}

// ClassOf classifies err. Context cancellation and deadline errors are always
// transient, regardless of which stage observed them.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTransient
	}
	if kind := KindOf(err); kind != "" {
		return DefaultClassForKind(kind)
	}
	return ClassTransient
}

// FromContext converts a done context into a timeout error for op. It returns
// nil while the context is still live.
func FromContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return NewTimeoutError(op, err)
	}
	return nil
}
