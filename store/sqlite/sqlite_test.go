package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SaveEmployee(context.Background(), generic.Employee{
		ID:                     "emp-1",
		Name:                   "Ana Reyes",
		Salary:                 decimal.RequireFromString("1000.50"),
		SalaryBasis:            generic.BasisDaily,
		Category:               "regular",
		Position:               "cashier",
		WorkingHours:           "8-5",
		SSSContribution:        decimal.RequireFromString("1125"),
		PagIBIGContribution:    decimal.RequireFromString("100"),
		PhilHealthContribution: decimal.RequireFromString("675.25"),
		WithholdingTax:         decimal.RequireFromString("0"),
	}))
	return store
}

func record(id, employeeID, day string, status generic.AttendanceStatus) generic.AttendanceRecord {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return generic.AttendanceRecord{
		ID:         generic.RecordID(id),
		EmployeeID: generic.EmployeeID(employeeID),
		Date:       generic.MustParseDate(day),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func TestStore_InsertAttendance_UniqueDay(t *testing.T) {
	// GIVEN: A record for emp-1 on March 10
	// WHEN: Inserting another row for the same day
	// THEN: DuplicateRecordError carrying the existing row's id

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAttendance(ctx, record("rec-1", "emp-1", "2024-03-10", generic.StatusPresent)))
	err := store.InsertAttendance(ctx, record("rec-2", "emp-1", "2024-03-10", generic.StatusLate))
	require.ErrorIs(t, err, generic.ErrDuplicateRecord)

	var dup *generic.DuplicateRecordError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, generic.RecordID("rec-1"), dup.ExistingID)

	got, err := store.FindAttendanceDay(ctx, "emp-1", generic.MustParseDate("2024-03-10"))
	require.NoError(t, err)
	assert.Equal(t, generic.StatusPresent, got.Status)
}

func TestStore_InsertAttendance_UnknownEmployee(t *testing.T) {
	store := newTestStore(t)
	err := store.InsertAttendance(context.Background(), record("rec-1", "ghost", "2024-03-10", generic.StatusPresent))
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
}

func TestStore_AttendanceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	in := record("rec-1", "emp-1", "2024-02-29", generic.StatusHalfDay)
	require.NoError(t, store.InsertAttendance(ctx, in))

	got, err := store.GetAttendance(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.EmployeeID, got.EmployeeID)
	assert.True(t, in.Date.Equal(got.Date))
	assert.Equal(t, in.Status, got.Status)
	assert.True(t, in.CreatedAt.Equal(got.CreatedAt))

	_, err = store.GetAttendance(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)
	_, err = store.FindAttendanceDay(ctx, "emp-1", generic.MustParseDate("2024-03-01"))
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)
}

func TestStore_UpdateAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertAttendance(ctx, record("rec-1", "emp-1", "2024-03-10", generic.StatusPresent)))

	updated, err := store.UpdateAttendanceStatus(ctx, "rec-1", generic.StatusAbsent)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusAbsent, updated.Status)
	assert.Equal(t, "2024-03-10", updated.Date.String())
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	_, err = store.UpdateAttendanceStatus(ctx, "missing", generic.StatusAbsent)
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)

	require.NoError(t, store.DeleteAttendance(ctx, "rec-1"))
	assert.ErrorIs(t, store.DeleteAttendance(ctx, "rec-1"), generic.ErrRecordNotFound)
}

func TestStore_LoadAttendanceRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i, d := range []string{"2024-03-09", "2024-03-01", "2024-02-29", "2024-03-05", "2024-03-10"} {
		id := []string{"a", "b", "c", "d", "e"}[i]
		require.NoError(t, store.InsertAttendance(ctx, record(id, "emp-1", d, generic.StatusPresent)))
	}

	recs, err := store.LoadAttendanceRange(ctx, "emp-1", generic.MustParseDate("2024-03-01"), generic.MustParseDate("2024-03-09"))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "2024-03-01", recs[0].Date.String())
	assert.Equal(t, "2024-03-05", recs[1].Date.String())
	assert.Equal(t, "2024-03-09", recs[2].Date.String())

	none, err := store.LoadAttendanceRange(ctx, "emp-1", generic.MustParseDate("2025-01-01"), generic.MustParseDate("2025-01-31"))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestStore_GetOrCreateConcurrent(t *testing.T) {
	// GIVEN: Many callers viewing the same unmarked day through the ledger
	// THEN: The unique key leaves exactly one row

	store := newTestStore(t)
	ctx := context.Background()
	q := attendance.NewQuery(generic.NewLedger(store, store), nil)
	day := generic.MustParseDate("2024-04-01")

	var wg sync.WaitGroup
	ids := make([]generic.RecordID, 10)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, _, err := q.GetOrCreate(ctx, "emp-1", day)
			assert.NoError(t, err)
			ids[i] = rec.ID
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	recs, err := store.LoadAttendanceRange(ctx, "emp-1", day, day)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestStore_EmployeeRoundTripKeepsExactAmounts(t *testing.T) {
	store := newTestStore(t)
	emp, err := store.GetEmployee(context.Background(), "emp-1")
	require.NoError(t, err)

	assert.Equal(t, "Ana Reyes", emp.Name)
	assert.Equal(t, generic.BasisDaily, emp.SalaryBasis)
	assert.True(t, emp.Salary.Equal(decimal.RequireFromString("1000.50")))
	assert.True(t, emp.PhilHealthContribution.Equal(decimal.RequireFromString("675.25")))
	assert.Equal(t, "cashier", emp.Position)
}

func TestStore_SaveEmployeeUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	emp.SalaryBasis = generic.BasisMonthly
	emp.Salary = decimal.NewFromInt(30000)
	require.NoError(t, store.SaveEmployee(ctx, emp))

	all, err := store.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, generic.BasisMonthly, all[0].SalaryBasis)
}

func TestStore_SaveEmployeeValidates(t *testing.T) {
	store := newTestStore(t)
	err := store.SaveEmployee(context.Background(), generic.Employee{ID: "bad", SalaryBasis: "hourly"})
	assert.ErrorIs(t, err, generic.ErrInvalidSalaryBasis)
}

func TestStore_CorruptBasisIsReturnedUnvalidated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.db.ExecContext(ctx, `UPDATE employees SET salary_basis = 'fortnightly' WHERE id = 'emp-1'`)
	require.NoError(t, err)

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, generic.SalaryBasis("fortnightly"), emp.SalaryBasis)
}

func TestStore_DeleteEmployeeCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertAttendance(ctx, record("rec-1", "emp-1", "2024-03-10", generic.StatusPresent)))

	require.NoError(t, store.DeleteEmployee(ctx, "emp-1"))
	_, err := store.GetAttendance(ctx, "rec-1")
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)
	_, err = store.GetEmployee(ctx, "emp-1")
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
	assert.ErrorIs(t, store.DeleteEmployee(ctx, "emp-1"), generic.ErrEmployeeNotFound)
}

// =============================================================================
// ERROR CLASSIFICATION (sqlmock)
// =============================================================================

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestStore_BusyIsRetryable(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .* FROM attendance").
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrBusy})

	_, err := store.LoadAttendanceRange(context.Background(), "emp-1",
		generic.MustParseDate("2024-01-01"), generic.MustParseDate("2024-01-31"))
	assert.ErrorIs(t, err, generic.ErrStorageUnavailable)
	assert.True(t, generic.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UnclassifiedErrorIsNotRetryable(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM attendance").
		WillReturnError(errors.New("syntax error"))

	err := store.DeleteAttendance(context.Background(), "rec-1")
	require.Error(t, err)
	assert.False(t, generic.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteNoRowsIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM attendance").
		WithArgs("rec-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteAttendance(context.Background(), "rec-1")
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_PingFailureIsUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.ExpectPing().WillReturnError(errors.New("disk gone"))

	err = NewWithDB(db).Ping(context.Background())
	assert.True(t, generic.IsRetryable(err))
}
