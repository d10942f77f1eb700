/*
store.go - Persistence contracts for attendance and employees

PURPOSE:
  Defines the boundary between the engine and whatever database holds the
  records. The engine never scans arrays to enforce its invariants; the
  store owns the (employee_id, date) uniqueness key.

KEY INTERFACES:
  AttendanceStore:   Attendance CRUD + range scan
  EmployeeDirectory: Read-only employee lookup (owned by the CRUD layer)
  EmployeeStore:     Directory + writes, for the CRUD collaborator

UNIQUENESS CONTRACT:
  InsertAttendance MUST reject a second row for an (employee, date) already
  present and report it as ErrDuplicateRecord. That rejection is the only
  mutual exclusion get-or-create relies on.

CONSISTENCY CONTRACT:
  LoadAttendanceRange MUST read the employee's rows in one statement (or
  under one read lock) so a concurrent mutation can never be half-visible.

FAILURES:
  Transient infrastructure failures are reported as ErrStorageUnavailable
  (see Unavailable in errors.go). Missing rows are ErrRecordNotFound /
  ErrEmployeeNotFound, never (nil, nil).

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for tests/dev
  - store/sqlite/sqlite.go: SQLite (default)
  - store/postgres/postgres.go: PostgreSQL via pgx

SEE ALSO:
  - ledger.go: Higher-level ledger using AttendanceStore
*/
package generic

import "context"

// =============================================================================
// ATTENDANCE STORE
// =============================================================================

type AttendanceStore interface {
	// InsertAttendance persists a new record. Returns ErrDuplicateRecord if
	// the (EmployeeID, Date) key already exists.
	InsertAttendance(ctx context.Context, rec AttendanceRecord) error

	// GetAttendance returns ErrRecordNotFound if id does not exist.
	GetAttendance(ctx context.Context, id RecordID) (AttendanceRecord, error)

	// FindAttendanceDay returns ErrRecordNotFound if the day has no record.
	FindAttendanceDay(ctx context.Context, employeeID EmployeeID, day Date) (AttendanceRecord, error)

	// UpdateAttendanceStatus changes the status and returns the updated row.
	UpdateAttendanceStatus(ctx context.Context, id RecordID, status AttendanceStatus) (AttendanceRecord, error)

	// DeleteAttendance returns ErrRecordNotFound if id does not exist.
	DeleteAttendance(ctx context.Context, id RecordID) error

	// LoadAttendanceRange returns records in [from, to] ordered by date.
	LoadAttendanceRange(ctx context.Context, employeeID EmployeeID, from, to Date) ([]AttendanceRecord, error)
}

// =============================================================================
// EMPLOYEE DIRECTORY
// =============================================================================

type EmployeeDirectory interface {
	// GetEmployee returns ErrEmployeeNotFound if id does not exist.
	GetEmployee(ctx context.Context, id EmployeeID) (Employee, error)

	// ListEmployees returns every known employee. Order is unspecified.
	ListEmployees(ctx context.Context) ([]Employee, error)
}

// EmployeeStore extends the directory with writes.
type EmployeeStore interface {
	EmployeeDirectory

	// SaveEmployee inserts or replaces an employee.
	SaveEmployee(ctx context.Context, emp Employee) error

	// DeleteEmployee returns ErrEmployeeNotFound if id does not exist.
	DeleteEmployee(ctx context.Context, id EmployeeID) error
}

// Store is everything a full backend provides.
type Store interface {
	AttendanceStore
	EmployeeStore
}
