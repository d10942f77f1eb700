/*
Package postgres provides a PostgreSQL implementation of generic.Store.

PURPOSE:
  Production backend for multi-instance deployments. Same contract as the
  SQLite store; uniqueness and cascade live in the schema.

KEY TABLES:
  payroll_employees:  money as unconstrained NUMERIC (exact, any scale)
  payroll_attendance: UNIQUE (employee_id, date), date as DATE

ERROR MAPPING:
  23505 unique_violation       -> ErrDuplicateRecord
  23503 foreign_key_violation  -> ErrEmployeeNotFound
  08xxx, 53xxx, 57P0x, 40001,
  40P01, dial/timeout failures -> ErrStorageUnavailable
  pgx.ErrNoRows                -> ErrRecordNotFound / ErrEmployeeNotFound

CONCURRENCY:
  No process-level lock. pgxpool hands out connections and Postgres
  enforces the unique key across every instance of the server.

SEE ALSO:
  - store/sqlite: Single-node backend with the same behaviour
  - generic/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ generic.Store = (*Store)(nil)

// Connect opens a pool for databaseURL and migrates the schema.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, classify("connect", err)
	}
	store := New(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// New wraps an existing pool without migrating.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return generic.Unavailable("ping", err)
	}
	return nil
}

// schema creates the tables. Money columns carry no scale so amounts are
// stored exactly as given; the ALTER widens tables created with a fixed scale.
const schema = `
	CREATE TABLE IF NOT EXISTS payroll_employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		salary NUMERIC NOT NULL,
		salary_basis TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		position TEXT NOT NULL DEFAULT '',
		working_hours TEXT NOT NULL DEFAULT '',
		sss_contribution NUMERIC NOT NULL DEFAULT 0,
		pagibig_contribution NUMERIC NOT NULL DEFAULT 0,
		philhealth_contribution NUMERIC NOT NULL DEFAULT 0,
		withholding_tax NUMERIC NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS payroll_attendance (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES payroll_employees(id) ON DELETE CASCADE,
		date DATE NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT uq_payroll_attendance_day UNIQUE (employee_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_attendance_date
		ON payroll_attendance(date);

	ALTER TABLE payroll_employees
		ALTER COLUMN salary TYPE NUMERIC,
		ALTER COLUMN sss_contribution TYPE NUMERIC,
		ALTER COLUMN pagibig_contribution TYPE NUMERIC,
		ALTER COLUMN philhealth_contribution TYPE NUMERIC,
		ALTER COLUMN withholding_tax TYPE NUMERIC;
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// ATTENDANCE STORE
// =============================================================================

const attendanceColumns = `id, employee_id, date::text, status, created_at, updated_at`

func (s *Store) InsertAttendance(ctx context.Context, rec generic.AttendanceRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payroll_attendance (id, employee_id, date, status, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, $6)`,
		string(rec.ID), string(rec.EmployeeID), rec.Date.String(), string(rec.Status),
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			dup := &generic.DuplicateRecordError{EmployeeID: rec.EmployeeID, Date: rec.Date}
			var existing string
			if qerr := s.pool.QueryRow(ctx,
				`SELECT id FROM payroll_attendance WHERE employee_id = $1 AND date = $2::date`,
				string(rec.EmployeeID), rec.Date.String(),
			).Scan(&existing); qerr == nil {
				dup.ExistingID = generic.RecordID(existing)
			}
			return dup
		case "23503":
			return fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, rec.EmployeeID)
		}
	}
	return classify("insert attendance", err)
}

func (s *Store) GetAttendance(ctx context.Context, id generic.RecordID) (generic.AttendanceRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM payroll_attendance WHERE id = $1`, string(id))
	return s.oneAttendance(row, "get attendance")
}

func (s *Store) FindAttendanceDay(ctx context.Context, employeeID generic.EmployeeID, day generic.Date) (generic.AttendanceRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM payroll_attendance WHERE employee_id = $1 AND date = $2::date`,
		string(employeeID), day.String())
	return s.oneAttendance(row, "find attendance day")
}

func (s *Store) UpdateAttendanceStatus(ctx context.Context, id generic.RecordID, status generic.AttendanceStatus) (generic.AttendanceRecord, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE payroll_attendance SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+attendanceColumns,
		string(id), string(status))
	return s.oneAttendance(row, "update attendance")
}

func (s *Store) DeleteAttendance(ctx context.Context, id generic.RecordID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM payroll_attendance WHERE id = $1`, string(id))
	if err != nil {
		return classify("delete attendance", err)
	}
	if tag.RowsAffected() == 0 {
		return generic.ErrRecordNotFound
	}
	return nil
}

// LoadAttendanceRange is a single SELECT, so the result is one snapshot.
func (s *Store) LoadAttendanceRange(ctx context.Context, employeeID generic.EmployeeID, from, to generic.Date) ([]generic.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+attendanceColumns+`
		FROM payroll_attendance
		WHERE employee_id = $1 AND date BETWEEN $2::date AND $3::date
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

func (s *Store) oneAttendance(row pgx.Row, op string) (generic.AttendanceRecord, error) {
	rec, err := scanAttendance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.AttendanceRecord{}, generic.ErrRecordNotFound
	}
	if err != nil {
		return generic.AttendanceRecord{}, classify(op, err)
	}
	return rec, nil
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

const employeeColumns = `id, name, salary::text, salary_basis, category, position, working_hours,
	sss_contribution::text, pagibig_contribution::text, philhealth_contribution::text, withholding_tax::text`

func (s *Store) SaveEmployee(ctx context.Context, emp generic.Employee) error {
	if err := emp.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payroll_employees (id, name, salary, salary_basis, category, position, working_hours,
			sss_contribution, pagibig_contribution, philhealth_contribution, withholding_tax)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11::numeric)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			salary = EXCLUDED.salary,
			salary_basis = EXCLUDED.salary_basis,
			category = EXCLUDED.category,
			position = EXCLUDED.position,
			working_hours = EXCLUDED.working_hours,
			sss_contribution = EXCLUDED.sss_contribution,
			pagibig_contribution = EXCLUDED.pagibig_contribution,
			philhealth_contribution = EXCLUDED.philhealth_contribution,
			withholding_tax = EXCLUDED.withholding_tax,
			updated_at = now()`,
		string(emp.ID), emp.Name, emp.Salary.String(), string(emp.SalaryBasis),
		emp.Category, emp.Position, emp.WorkingHours,
		emp.SSSContribution.String(), emp.PagIBIGContribution.String(),
		emp.PhilHealthContribution.String(), emp.WithholdingTax.String(),
	)
	if err != nil {
		return classify("save employee", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (generic.Employee, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+employeeColumns+` FROM payroll_employees WHERE id = $1`, string(id))
	emp, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.Employee{}, fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, id)
	}
	if err != nil {
		return generic.Employee{}, classify("get employee", err)
	}
	return emp, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+employeeColumns+` FROM payroll_employees ORDER BY id`)
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

func (s *Store) DeleteEmployee(ctx context.Context, id generic.EmployeeID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM payroll_employees WHERE id = $1`, string(id))
	if err != nil {
		return classify("delete employee", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, id)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func scanAttendance(row pgx.Row) (generic.AttendanceRecord, error) {
	var (
		rec                         generic.AttendanceRecord
		id, employeeID, day, status string
	)
	if err := row.Scan(&id, &employeeID, &day, &status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
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
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

// scanEmployee leaves the basis unvalidated; payroll rejects it.
func scanEmployee(row pgx.Row) (generic.Employee, error) {
	var (
		emp                              generic.Employee
		id, basis                        string
		salary, sss, pagibig, philhealth string
		withholding                      string
	)
	err := row.Scan(&id, &emp.Name, &salary, &basis,
		&emp.Category, &emp.Position, &emp.WorkingHours,
		&sss, &pagibig, &philhealth, &withholding)
	if err != nil {
		return generic.Employee{}, err
	}
	emp.ID = generic.EmployeeID(id)
	emp.SalaryBasis = generic.SalaryBasis(basis)

	amounts := []struct {
		src string
		dst *decimal.Decimal
	}{
		{salary, &emp.Salary},
		{sss, &emp.SSSContribution},
		{pagibig, &emp.PagIBIGContribution},
		{philhealth, &emp.PhilHealthContribution},
		{withholding, &emp.WithholdingTax},
	}
	for _, a := range amounts {
		v, err := decimal.NewFromString(a.src)
		if err != nil {
			return generic.Employee{}, fmt.Errorf("employee %s: %w", id, err)
		}
		*a.dst = v
	}
	return emp, nil
}

// classify marks connection-level and contention failures as
// ErrStorageUnavailable.
func classify(op string, err error) error {
	if isTransient(err) {
		return generic.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "53"):
			return true
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
