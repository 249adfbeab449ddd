package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"metaprop/internal/record"
)

// ErrorClassifier allows errors to declare their classification.
type ErrorClassifier interface {
	ErrorKind() string
}

// Persistence operations reported by PersistenceError.
const (
	OpClear      = "clear"
	OpDependents = "dependents"
	OpPersist    = "persist"
	OpEnqueue    = "enqueue"
)

// EnhancerError reports an enhancer failure. The pass was aborted and nothing
// was persisted.
type EnhancerError struct {
	Enhancer string
	RecordID uuid.UUID
	Err      error
}

func (e *EnhancerError) Error() string {
	return fmt.Sprintf("enhancer %q on record %s: %v", e.Enhancer, e.RecordID, e.Err)
}

func (e *EnhancerError) Unwrap() error { return e.Err }

// ErrorKind implements ErrorClassifier.
func (e *EnhancerError) ErrorKind() string { return "enhancer" }

// PersistenceError reports a store or queue failure during a pass.
type PersistenceError struct {
	RecordID uuid.UUID
	Op       string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s record %s: %v", e.Op, e.RecordID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorKind implements ErrorClassifier.
func (e *PersistenceError) ErrorKind() string { return "persistence" }

// Outcome labels used in logs, metrics and batch results.
const (
	OutcomeChanged           = "changed"
	OutcomeUnchanged         = "unchanged"
	OutcomeMissing           = "missing"
	OutcomeEnhancerFailed    = "enhancer_failed"
	OutcomePersistenceFailed = "persistence_failed"
	OutcomeCanceled          = "canceled"
	OutcomeTimeout           = "timeout"
	OutcomeError             = "error"
)

// Classify maps an error to an outcome label. A nil error maps to
// OutcomeUnchanged; callers that know the pass changed the record use
// OutcomeChanged themselves.
func Classify(err error) string {
	if err == nil {
		return OutcomeUnchanged
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.Is(err, record.ErrNotFound):
		return OutcomeMissing
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		switch classifier.ErrorKind() {
		case "enhancer":
			return OutcomeEnhancerFailed
		case "persistence":
			return OutcomePersistenceFailed
		}
	}
	return OutcomeError
}

// IsCancellation reports whether err stems from context cancellation or an
// expired deadline.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func outcomeOf(changed bool, err error) string {
	if err != nil {
		return Classify(err)
	}
	if changed {
		return OutcomeChanged
	}
	return OutcomeUnchanged
}
