/*
errors.go - Centralized error types for the rationing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Rule-driven rejections are NOT errors: they are structured Decision
  results (see evaluator.go). Errors here cover missing references,
  invalid input and infrastructure failures only.

ERROR CATEGORIES:
  1. Not-found errors - Referenced item/individual/location missing upstream
  2. Validation errors - Malformed rules or requests
  3. Infrastructure errors - The backing store failed to respond

USAGE:
  if rationing.IsNotFound(err) { ... 404 ... }
  if rationing.IsRetryable(err) { ... 503 + backoff ... }
*/
package rationing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownItem is returned when a referenced item id is not in the
	// catalog. Never treated as approval.
	ErrUnknownItem = errors.New("unknown item")

	// ErrUnknownIndividual is returned when a referenced individual id is
	// not known to the identity collaborator.
	ErrUnknownIndividual = errors.New("unknown individual")

	// ErrUnknownLocation is returned when a referenced store location does
	// not exist.
	ErrUnknownLocation = errors.New("unknown location")

	// ErrQuotaExceeded is returned by the conditional-append primitive when
	// committing a record would push the window total over the limit.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidAuthorization is returned when a commit presents an
	// authorization whose fields do not match what was approved.
	ErrInvalidAuthorization = errors.New("invalid authorization")

	// ErrDuplicateRecord is returned when a record id is appended twice.
	// Expected behavior for commit retries.
	ErrDuplicateRecord = errors.New("duplicate purchase record")

	// ErrStoreUnavailable is the one genuinely exceptional condition: the
	// backing store failed to respond. Retryable with backoff; no decision
	// is ever approved on a partial read.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError reports an invalid field on a rule or request.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AuthorizationError explains why a presented authorization was refused.
type AuthorizationError struct {
	Ref    string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization %s rejected: %s", e.Ref, e.Reason)
}

func (e *AuthorizationError) Unwrap() error { return ErrInvalidAuthorization }

// StoreError wraps an infrastructure failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return ErrStoreUnavailable }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsNotFound returns true if the error indicates a missing reference.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownItem) ||
		errors.Is(err, ErrUnknownIndividual) ||
		errors.Is(err, ErrUnknownLocation)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe) ||
		errors.Is(err, ErrInvalidAuthorization) ||
		errors.Is(err, ErrDuplicateRecord)
}
