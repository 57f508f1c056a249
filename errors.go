package strata

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("strata: record not found")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("strata: cannot start a transaction within a transaction")
)

// NotFoundError is returned by single-record queries with zero results. It
// is a distinct type so callers cannot mistake "no row" for an empty set.
type NotFoundError struct {
	entity string
	id     any // optional: the key that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("strata: %s not found (id=%v)", e.entity, e.id)
	}
	return fmt.Sprintf("strata: %s not found", e.entity)
}

// Is reports whether the target error matches NotFoundError, allowing
// errors.Is(err, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Entity returns the entity name.
func (e *NotFoundError) Entity() string { return e.entity }

// ID returns the key that was searched for, if available.
func (e *NotFoundError) ID() any { return e.id }

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(entity string) *NotFoundError {
	return &NotFoundError{entity: entity}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the searched key.
func NewNotFoundErrorWithID(entity string, id any) *NotFoundError {
	return &NotFoundError{entity: entity, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotLoadedError is returned when accessing a relationship that was neither
// eager-loaded nor resolved explicitly.
type NotLoadedError struct {
	relation string
}

// Error returns the error string.
func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("strata: relationship %q was not loaded", e.relation)
}

// NewNotLoadedError returns a new NotLoadedError for the given relationship.
func NewNotLoadedError(relation string) *NotLoadedError {
	return &NotLoadedError{relation: relation}
}

// IsNotLoaded returns true if the error is a NotLoadedError.
func IsNotLoaded(err error) bool {
	if err == nil {
		return false
	}
	var e *NotLoadedError
	return errors.As(err, &e)
}

// ConfigError reports a programmer error in entity configuration or query
// construction: an unknown field, relationship or scope, or an invalid
// declaration. It is raised before any statement reaches the store.
type ConfigError struct {
	msg string
}

// Error returns the error string.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("strata: %s", e.msg)
}

// NewConfigError returns a new ConfigError with the formatted message.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// IsConfigError returns true if the error is a ConfigError.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigError
	return errors.As(err, &e)
}

// ValidationError reports a cast or domain violation on a write: a value
// outside an enum domain, a malformed timestamp, a type the cast cannot
// represent. Values are never silently coerced.
type ValidationError struct {
	Name string // field name
	Err  error  // underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("strata: validation failed for field %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// ConstraintError wraps a database constraint violation (unique, foreign
// key, check) surfaced verbatim from the store through Unwrap.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	return fmt.Sprintf("strata: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying store error.
func (e *ConstraintError) Unwrap() error { return e.wrap }

// NewConstraintError returns a new ConstraintError wrapping the store error.
func NewConstraintError(msg string, wrap error) *ConstraintError {
	return &ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConstraintError
	return errors.As(err, &e)
}

// ConnectionError wraps a transient store-level failure. The data layer
// never retries; callers may retry with backoff.
type ConnectionError struct {
	// Timeout reports whether the failure was an expired statement
	// deadline rather than a broken connection.
	Timeout bool
	wrap    error
}

// Error returns the error string.
func (e *ConnectionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("strata: statement timeout: %v", e.wrap)
	}
	return fmt.Sprintf("strata: connection error: %v", e.wrap)
}

// Unwrap returns the underlying store error.
func (e *ConnectionError) Unwrap() error { return e.wrap }

// NewConnectionError returns a new ConnectionError wrapping the store error.
func NewConnectionError(wrap error, timeout bool) *ConnectionError {
	return &ConnectionError{Timeout: timeout, wrap: wrap}
}

// IsConnectionError returns true if the error is a ConnectionError.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConnectionError
	return errors.As(err, &e)
}

// IsTimeout returns true if the error is a ConnectionError caused by an
// expired statement deadline.
func IsTimeout(err error) bool {
	var e *ConnectionError
	return errors.As(err, &e) && e.Timeout
}

// QueryError wraps a query error with entity and operation context.
type QueryError struct {
	Entity string // entity type being queried
	Op     string // operation (e.g. "all", "first", "count")
	Err    error  // underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	return fmt.Sprintf("strata: querying %s (%s): %v", e.Entity, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error { return e.Err }

// MutationError wraps a mutation error with entity and operation context.
type MutationError struct {
	Entity string // entity type being mutated
	Op     string // operation (e.g. "create", "save", "delete")
	Err    error  // underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("strata: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error { return e.Err }

// RollbackError wraps an error that occurred while rolling back a
// transaction, joined with the error that triggered the rollback.
type RollbackError struct {
	Err error // original error that triggered the rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("strata: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error { return e.Err }
