/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores translate driver errors into these; the HTTP layer maps them to
  status codes. Everything is matched with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Ledger errors - DuplicateRecord, NotFound, ImmutableField
  2. Validation errors - InvalidPeriod, InvalidStatus, InvalidEmployee
  3. Data integrity - InvalidSalaryBasis (corrupt enum on a stored employee)
  4. Store errors - StorageUnavailable (transient, caller may retry)

SEE ALSO:
  - ledger.go: Uses these errors
  - store/sqlite, store/postgres: Map driver errors onto them
  - api/handlers.go: writeDomainError maps them to HTTP statuses
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateRecord is returned when an attendance record already exists
	// for the (employee, date) pair.
	ErrDuplicateRecord = errors.New("duplicate attendance record")

	// ErrNotFound is the parent of every "does not exist" error.
	ErrNotFound = errors.New("not found")

	// ErrRecordNotFound is returned for an unknown attendance record id.
	ErrRecordNotFound = fmt.Errorf("attendance record %w", ErrNotFound)

	// ErrEmployeeNotFound is returned for an unknown employee id.
	ErrEmployeeNotFound = fmt.Errorf("employee %w", ErrNotFound)

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidSalaryBasis is returned when an employee carries a salary basis
	// outside daily/weekly/monthly. Never silently defaulted.
	ErrInvalidSalaryBasis = errors.New("invalid salary basis")

	// ErrInvalidStatus is returned for an attendance status outside the enum.
	ErrInvalidStatus = errors.New("invalid attendance status")

	// ErrImmutableField is returned when an update tries to change the
	// employee or date of an existing record.
	ErrImmutableField = errors.New("field is immutable")

	// ErrInvalidEmployee is returned when an employee violates its invariant.
	ErrInvalidEmployee = errors.New("invalid employee")

	// ErrStorageUnavailable marks transient infrastructure failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateRecordError provides details about a day uniqueness violation.
// ExistingID is empty when the store could not tell which row won.
type DuplicateRecordError struct {
	EmployeeID EmployeeID
	Date       Date
	ExistingID RecordID
}

func (e *DuplicateRecordError) Error() string {
	if e.ExistingID == "" {
		return fmt.Sprintf("attendance already recorded for %s on %s", e.EmployeeID, e.Date)
	}
	return fmt.Sprintf("attendance already recorded for %s on %s (record: %s)",
		e.EmployeeID, e.Date, e.ExistingID)
}

func (e *DuplicateRecordError) Unwrap() error {
	return ErrDuplicateRecord
}

// StorageError wraps a driver failure that is not a domain outcome.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorageUnavailable, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

// Unavailable wraps err as a StorageError for the named operation.
func Unavailable(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateRecord) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrImmutableField) ||
		errors.Is(err, ErrInvalidEmployee)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
