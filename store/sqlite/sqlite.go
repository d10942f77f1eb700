/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.Store (attendance + employees) on SQLite. This is the
  default backend for the server and for integration tests (":memory:").

KEY TABLES:
  employees:  Directory rows; amounts stored as exact decimal TEXT
  attendance: One row per (employee_id, date); date is TEXT YYYY-MM-DD

UNIQUENESS:
  UNIQUE(employee_id, date) on attendance is the one-record-per-day
  invariant. A violation comes back from the driver as
  SQLITE_CONSTRAINT_UNIQUE and is mapped to *generic.DuplicateRecordError.
  Get-or-create relies on that mapping, not on any lock in this package.

  attendance.employee_id references employees(id) ON DELETE CASCADE, so
  removing an employee removes their attendance.

ERROR MAPPING:
  SQLITE_CONSTRAINT_UNIQUE / PRIMARYKEY  -> ErrDuplicateRecord
  SQLITE_CONSTRAINT_FOREIGNKEY           -> ErrEmployeeNotFound
  SQLITE_BUSY / LOCKED / IOERR / FULL    -> ErrStorageUnavailable
  sql.ErrNoRows                          -> ErrRecordNotFound / ErrEmployeeNotFound

CONCURRENCY:
  Uses sync.RWMutex around statements. Range scans are one SELECT, so a
  reader never sees half of a concurrent write.

WAL MODE:
  File databases are opened with WAL and a busy timeout. ":memory:" is
  pinned to one connection so every statement sees the same database.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store, store)

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/payroll-engine/generic"
)

// Store implements generic.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ generic.Store = (*Store)(nil)

// New opens (and migrates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	if dbPath == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := NewWithDB(db)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an already-open handle without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return generic.Unavailable("ping", err)
	}
	return nil
}

// Migrate creates the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		salary TEXT NOT NULL,
		salary_basis TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		position TEXT NOT NULL DEFAULT '',
		working_hours TEXT NOT NULL DEFAULT '',
		sss_contribution TEXT NOT NULL DEFAULT '0',
		pagibig_contribution TEXT NOT NULL DEFAULT '0',
		philhealth_contribution TEXT NOT NULL DEFAULT '0',
		withholding_tax TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One observation per employee per calendar day
	CREATE TABLE IF NOT EXISTS attendance (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(employee_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_date
		ON attendance(date);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// ATTENDANCE STORE (generic.AttendanceStore interface)
// =============================================================================

const attendanceColumns = `id, employee_id, date, status, created_at, updated_at`

func (s *Store) InsertAttendance(ctx context.Context, rec generic.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (`+attendanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(rec.ID),
		string(rec.EmployeeID),
		rec.Date.String(),
		string(rec.Status),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		dup := &generic.DuplicateRecordError{EmployeeID: rec.EmployeeID, Date: rec.Date}
		var existing string
		if qerr := s.db.QueryRowContext(ctx,
			`SELECT id FROM attendance WHERE employee_id = ? AND date = ?`,
			string(rec.EmployeeID), rec.Date.String(),
		).Scan(&existing); qerr == nil {
			dup.ExistingID = generic.RecordID(existing)
		}
		return dup
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, rec.EmployeeID)
	}
	return classify("insert attendance", err)
}

func (s *Store) GetAttendance(ctx context.Context, id generic.RecordID) (generic.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE id = ?`, string(id))
	rec, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.AttendanceRecord{}, generic.ErrRecordNotFound
	}
	if err != nil {
		return generic.AttendanceRecord{}, classify("get attendance", err)
	}
	return rec, nil
}

func (s *Store) FindAttendanceDay(ctx context.Context, employeeID generic.EmployeeID, day generic.Date) (generic.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE employee_id = ? AND date = ?`,
		string(employeeID), day.String())
	rec, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.AttendanceRecord{}, generic.ErrRecordNotFound
	}
	if err != nil {
		return generic.AttendanceRecord{}, classify("find attendance day", err)
	}
	return rec, nil
}

func (s *Store) UpdateAttendanceStatus(ctx context.Context, id generic.RecordID, status generic.AttendanceStatus) (generic.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE attendance SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now().UTC()), string(id))
	if err != nil {
		return generic.AttendanceRecord{}, classify("update attendance", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return generic.AttendanceRecord{}, generic.ErrRecordNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE id = ?`, string(id))
	rec, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.AttendanceRecord{}, generic.ErrRecordNotFound
	}
	if err != nil {
		return generic.AttendanceRecord{}, classify("update attendance", err)
	}
	return rec, nil
}

func (s *Store) DeleteAttendance(ctx context.Context, id generic.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = ?`, string(id))
	if err != nil {
		return classify("delete attendance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("delete attendance", err)
	}
	if n == 0 {
		return generic.ErrRecordNotFound
	}
	return nil
}

// LoadAttendanceRange reads the employee's records in one statement.
func (s *Store) LoadAttendanceRange(ctx context.Context, employeeID generic.EmployeeID, from, to generic.Date) ([]generic.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance
		WHERE employee_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		string(employeeID), from.String(), to.String())
	if err != nil {
		return nil, classify("load attendance range", err)
	}
	defer rows.Close()

	records := []generic.AttendanceRecord{}
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, classify("load attendance range", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("load attendance range", err)
	}
	return records, nil
}

// =============================================================================
// EMPLOYEE STORE (generic.EmployeeStore interface)
// =============================================================================

const employeeColumns = `id, name, salary, salary_basis, category, position, working_hours,
	sss_contribution, pagibig_contribution, philhealth_contribution, withholding_tax`

// SaveEmployee inserts or replaces an employee.
func (s *Store) SaveEmployee(ctx context.Context, emp generic.Employee) error {
	if err := emp.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (`+employeeColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			salary = excluded.salary,
			salary_basis = excluded.salary_basis,
			category = excluded.category,
			position = excluded.position,
			working_hours = excluded.working_hours,
			sss_contribution = excluded.sss_contribution,
			pagibig_contribution = excluded.pagibig_contribution,
			philhealth_contribution = excluded.philhealth_contribution,
			withholding_tax = excluded.withholding_tax,
			updated_at = excluded.updated_at`,
		string(emp.ID), emp.Name, emp.Salary.String(), string(emp.SalaryBasis),
		emp.Category, emp.Position, emp.WorkingHours,
		emp.SSSContribution.String(), emp.PagIBIGContribution.String(),
		emp.PhilHealthContribution.String(), emp.WithholdingTax.String(),
		now, now,
	)
	if err != nil {
		return classify("save employee", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (generic.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE id = ?`, string(id))
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Employee{}, fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, id)
	}
	if err != nil {
		return generic.Employee{}, classify("get employee", err)
	}
	return emp, nil
}

// ListEmployees returns all employees ordered by id.
func (s *Store) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees ORDER BY id`)
	if err != nil {
		return nil, classify("list employees", err)
	}
	defer rows.Close()

	employees := []generic.Employee{}
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, classify("list employees", err)
		}
		employees = append(employees, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list employees", err)
	}
	return employees, nil
}

// DeleteEmployee removes an employee and, by cascade, their attendance.
func (s *Store) DeleteEmployee(ctx context.Context, id generic.EmployeeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM employees WHERE id = ?`, string(id))
	if err != nil {
		return classify("delete employee", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, id)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendance(row rowScanner) (generic.AttendanceRecord, error) {
	var (
		rec                         generic.AttendanceRecord
		id, employeeID, day, status string
		createdAt, updatedAt        string
	)
	if err := row.Scan(&id, &employeeID, &day, &status, &createdAt, &updatedAt); err != nil {
		return generic.AttendanceRecord{}, err
	}
	d, err := generic.ParseDate(day)
	if err != nil {
		return generic.AttendanceRecord{}, fmt.Errorf("attendance %s: %w", id, err)
	}
	rec.ID = generic.RecordID(id)
	rec.EmployeeID = generic.EmployeeID(employeeID)
	rec.Date = d
	rec.Status = generic.AttendanceStatus(status)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}

// scanEmployee does not validate: a corrupt basis must reach the payroll
// engine and fail there with ErrInvalidSalaryBasis.
func scanEmployee(row rowScanner) (generic.Employee, error) {
	var (
		emp       generic.Employee
		id, basis string
	)
	err := row.Scan(&id, &emp.Name, &emp.Salary, &basis,
		&emp.Category, &emp.Position, &emp.WorkingHours,
		&emp.SSSContribution, &emp.PagIBIGContribution,
		&emp.PhilHealthContribution, &emp.WithholdingTax)
	if err != nil {
		return generic.Employee{}, err
	}
	emp.ID = generic.EmployeeID(id)
	emp.SalaryBasis = generic.SalaryBasis(basis)
	return emp, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// classify marks transient driver failures as ErrStorageUnavailable and
// wraps everything else with the operation name.
func classify(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrFull, sqlite3.ErrCantOpen:
			return generic.Unavailable(op, err)
		}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return generic.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
