/*
Package generic provides the core types of the payroll engine.

PURPOSE:
  Domain primitives shared by every layer: employees, attendance records,
  calendar dates and periods, the error taxonomy, and the storage contracts
  the engine runs on. Nothing in here talks to a database or the network.

KEY CONCEPTS IN THIS FILE (types.go):
  - Employee: salary, accrual basis and the four fixed deduction amounts
  - AttendanceRecord: one status observation per (employee, calendar day)
  - SalaryBasis / AttendanceStatus: closed enums, validated on every write

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, never float64
  2. Type Safety: EmployeeID and RecordID are distinct string types
  3. One observation per day: enforced by the store, see store.go

SEE ALSO:
  - ledger.go: Attendance ledger operations
  - store.go: Persistence contracts
  - errors.go: Error taxonomy
*/
package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type RecordID string

// =============================================================================
// SALARY BASIS - Unit the salary figure is already expressed in
// =============================================================================

type SalaryBasis string

const (
	BasisDaily   SalaryBasis = "daily"
	BasisWeekly  SalaryBasis = "weekly"
	BasisMonthly SalaryBasis = "monthly"
)

func (b SalaryBasis) Valid() bool {
	switch b {
	case BasisDaily, BasisWeekly, BasisMonthly:
		return true
	}
	return false
}

// ParseSalaryBasis never defaults: an unknown value is ErrInvalidSalaryBasis.
func ParseSalaryBasis(s string) (SalaryBasis, error) {
	b := SalaryBasis(s)
	if !b.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSalaryBasis, s)
	}
	return b, nil
}

// =============================================================================
// ATTENDANCE STATUS
// =============================================================================

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusLate    AttendanceStatus = "late"
	StatusHalfDay AttendanceStatus = "half_day"
)

func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusHalfDay:
		return true
	}
	return false
}

func ParseAttendanceStatus(s string) (AttendanceStatus, error) {
	st := AttendanceStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// =============================================================================
// EMPLOYEE - Owned by the directory; the engine only reads snapshots
// =============================================================================

type Employee struct {
	ID          EmployeeID
	Name        string
	Salary      decimal.Decimal
	SalaryBasis SalaryBasis

	// Descriptive only, never consumed by payroll.
	Category     string
	Position     string
	WorkingHours string

	// Fixed recurring deduction amounts (not rates).
	SSSContribution        decimal.Decimal
	PagIBIGContribution    decimal.Decimal
	PhilHealthContribution decimal.Decimal
	WithholdingTax         decimal.Decimal
}

// Validate checks the employee invariant: known basis, salary and all four
// deduction amounts non-negative.
func (e Employee) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEmployee)
	}
	if !e.SalaryBasis.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSalaryBasis, e.SalaryBasis)
	}
	amounts := []struct {
		name  string
		value decimal.Decimal
	}{
		{"salary", e.Salary},
		{"sssContribution", e.SSSContribution},
		{"pagibigContribution", e.PagIBIGContribution},
		{"philhealthContribution", e.PhilHealthContribution},
		{"withholdingTax", e.WithholdingTax},
	}
	for _, a := range amounts {
		if a.value.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidEmployee, a.name)
		}
	}
	return nil
}

// =============================================================================
// ATTENDANCE RECORD - One status observation per (employee, day)
// =============================================================================

type AttendanceRecord struct {
	ID         RecordID
	EmployeeID EmployeeID
	Date       Date
	Status     AttendanceStatus

	// Audit fields
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttendanceUpdate names the fields a caller wants to change. Only Status is
// mutable; EmployeeID and Date may be echoed back but must match the record.
type AttendanceUpdate struct {
	Status     AttendanceStatus
	EmployeeID *EmployeeID
	Date       *Date
}
