// Package errs defines the ledger's error taxonomy.
//
// Validation errors are always surfaced to the caller and never retried.
// Consistency errors are fatal for one group's computation: the read path fails
// closed instead of returning a silently wrong balance. Materialization errors
// are recoverable: the affected chain is retried on the next pass.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a conditional write lost a race (e.g. link no longer pending).
	ErrConflict = errors.New("conflict")
	// ErrParticipantInUse means the participant is referenced by an obligation.
	ErrParticipantInUse = errors.New("participant is referenced by an obligation")
)

// ValidationError reports malformed input: bad split weights, an empty payee
// set, an unknown participant reference.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConsistencyError reports a broken ledger invariant for one group.
type ConsistencyError struct {
	GroupID   string
	Reason    string
	Residual  int64
	Tolerance int64
}

func (e *ConsistencyError) Error() string {
	if e.Tolerance != 0 || e.Residual != 0 {
		return fmt.Sprintf("group %s inconsistent: %s (residual %d, tolerance %d)",
			e.GroupID, e.Reason, e.Residual, e.Tolerance)
	}
	return fmt.Sprintf("group %s inconsistent: %s", e.GroupID, e.Reason)
}

// MaterializationError reports a recurrence period that could not be
// committed. The chain resumes from its last materialized link on the next pass.
type MaterializationError struct {
	ChainID      string
	LinkID       string
	ObligationID string
	Err          error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("failed to materialize obligation %s (link %s): %v", e.ObligationID, e.LinkID, e.Err)
}

func (e *MaterializationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConsistency reports whether err is or wraps a *ConsistencyError.
func IsConsistency(err error) bool {
	var c *ConsistencyError
	return errors.As(err, &c)
}
