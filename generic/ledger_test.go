package generic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestLedger(t *testing.T) (*generic.DefaultLedger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	for _, id := range []generic.EmployeeID{"emp-1", "emp-2"} {
		require.NoError(t, mem.SaveEmployee(context.Background(), generic.Employee{
			ID:          id,
			Name:        string(id),
			Salary:      decimal.NewFromInt(100),
			SalaryBasis: generic.BasisDaily,
		}))
	}
	return generic.NewLedger(mem, mem), mem
}

func date(s string) generic.Date { return generic.MustParseDate(s) }

// =============================================================================
// ADD
// =============================================================================

func TestLedger_Add_DuplicateDayRejected(t *testing.T) {
	// GIVEN: emp-1 already has a record for March 10
	// WHEN: Adding March 10 again with another status
	// THEN: DuplicateRecordError naming the existing record

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := ledger.Add(ctx, "emp-1", date("2024-03-10"), generic.StatusPresent)
	require.NoError(t, err)

	_, err = ledger.Add(ctx, "emp-1", date("2024-03-10"), generic.StatusLate)
	require.ErrorIs(t, err, generic.ErrDuplicateRecord)

	var dup *generic.DuplicateRecordError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, generic.EmployeeID("emp-1"), dup.EmployeeID)
	assert.True(t, dup.Date.Equal(date("2024-03-10")))
	assert.Equal(t, first.ID, dup.ExistingID)
}

func TestLedger_Add_SameDayDifferentEmployeesAllowed(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Add(ctx, "emp-1", date("2024-03-10"), generic.StatusPresent)
	require.NoError(t, err)
	_, err = ledger.Add(ctx, "emp-2", date("2024-03-10"), generic.StatusPresent)
	require.NoError(t, err)
}

func TestLedger_Add_Validation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Add(ctx, "emp-1", date("2024-03-10"), generic.AttendanceStatus("sick"))
	assert.ErrorIs(t, err, generic.ErrInvalidStatus)

	_, err = ledger.Add(ctx, "emp-1", generic.Date{}, generic.StatusPresent)
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)

	_, err = ledger.Add(ctx, "nobody", date("2024-03-10"), generic.StatusPresent)
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
	assert.True(t, generic.IsNotFound(err))
}

func TestLedger_Add_UsesInjectedClockAndIDs(t *testing.T) {
	ledger, _ := newTestLedger(t)
	fixed := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)
	ledger.Now = func() time.Time { return fixed }
	ledger.NewID = func() generic.RecordID { return "rec-fixed" }

	rec, err := ledger.Add(context.Background(), "emp-1", date("2024-03-10"), generic.StatusPresent)
	require.NoError(t, err)
	assert.Equal(t, generic.RecordID("rec-fixed"), rec.ID)
	assert.Equal(t, fixed, rec.CreatedAt)
	assert.Equal(t, fixed, rec.UpdatedAt)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestLedger_Update_ChangesStatusOnly(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	rec, err := ledger.Add(ctx, "emp-1", date("2024-03-11"), generic.StatusPresent)
	require.NoError(t, err)

	updated, err := ledger.Update(ctx, rec.ID, generic.AttendanceUpdate{Status: generic.StatusHalfDay})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, updated.ID)
	assert.Equal(t, generic.StatusHalfDay, updated.Status)
	assert.True(t, updated.Date.Equal(rec.Date))

	got, err := ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusHalfDay, got.Status)
}

func TestLedger_Update_SameStatusIsNoop(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	rec, err := ledger.Add(ctx, "emp-1", date("2024-03-11"), generic.StatusLate)
	require.NoError(t, err)

	same, err := ledger.Update(ctx, rec.ID, generic.AttendanceUpdate{Status: generic.StatusLate})
	require.NoError(t, err)
	assert.Equal(t, rec, same)
}

func TestLedger_Update_ImmutableKey(t *testing.T) {
	// GIVEN: A record for emp-1 on March 11
	// WHEN: An update tries to move it to another employee or day
	// THEN: ErrImmutableField, record unchanged

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	rec, err := ledger.Add(ctx, "emp-1", date("2024-03-11"), generic.StatusPresent)
	require.NoError(t, err)

	other := generic.EmployeeID("emp-2")
	_, err = ledger.Update(ctx, rec.ID, generic.AttendanceUpdate{Status: generic.StatusAbsent, EmployeeID: &other})
	assert.ErrorIs(t, err, generic.ErrImmutableField)

	moved := date("2024-03-12")
	_, err = ledger.Update(ctx, rec.ID, generic.AttendanceUpdate{Status: generic.StatusAbsent, Date: &moved})
	assert.ErrorIs(t, err, generic.ErrImmutableField)

	// Restating the current key is allowed.
	sameDay := date("2024-03-11")
	sameEmp := generic.EmployeeID("emp-1")
	updated, err := ledger.Update(ctx, rec.ID, generic.AttendanceUpdate{Status: generic.StatusAbsent, EmployeeID: &sameEmp, Date: &sameDay})
	require.NoError(t, err)
	assert.Equal(t, generic.StatusAbsent, updated.Status)
}

func TestLedger_Update_Errors(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Update(ctx, "missing", generic.AttendanceUpdate{Status: generic.StatusPresent})
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)

	rec, err := ledger.Add(ctx, "emp-1", date("2024-03-11"), generic.StatusPresent)
	require.NoError(t, err)
	_, err = ledger.Update(ctx, rec.ID, generic.AttendanceUpdate{Status: "vacation"})
	assert.ErrorIs(t, err, generic.ErrInvalidStatus)
}

// =============================================================================
// DELETE
// =============================================================================

func TestLedger_Delete_SecondDeleteIsNotFound(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	rec, err := ledger.Add(ctx, "emp-1", date("2024-03-12"), generic.StatusPresent)
	require.NoError(t, err)

	require.NoError(t, ledger.Delete(ctx, rec.ID))
	assert.ErrorIs(t, ledger.Delete(ctx, rec.ID), generic.ErrRecordNotFound)

	// The day is free again.
	_, err = ledger.Add(ctx, "emp-1", date("2024-03-12"), generic.StatusAbsent)
	require.NoError(t, err)
}

// =============================================================================
// FIND RANGE
// =============================================================================

func TestLedger_FindRange_InclusiveAndOrdered(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for _, d := range []string{"2024-03-05", "2024-03-01", "2024-03-03", "2024-02-29", "2024-03-06"} {
		_, err := ledger.Add(ctx, "emp-1", date(d), generic.StatusPresent)
		require.NoError(t, err)
	}
	_, err := ledger.Add(ctx, "emp-2", date("2024-03-02"), generic.StatusPresent)
	require.NoError(t, err)

	recs, err := ledger.FindRange(ctx, "emp-1", date("2024-03-01"), date("2024-03-05"))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "2024-03-01", recs[0].Date.String())
	assert.Equal(t, "2024-03-03", recs[1].Date.String())
	assert.Equal(t, "2024-03-05", recs[2].Date.String())
}

func TestLedger_FindRange_EmptyIsNotNil(t *testing.T) {
	ledger, _ := newTestLedger(t)
	recs, err := ledger.FindRange(context.Background(), "emp-1", date("2024-01-01"), date("2024-01-31"))
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestLedger_FindRange_InvalidPeriod(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.FindRange(context.Background(), "emp-1", date("2024-01-31"), date("2024-01-01"))
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
	assert.True(t, generic.IsClientError(err))
}

// =============================================================================
// EMPLOYEE CASCADE
// =============================================================================

func TestMemory_DeleteEmployeeCascades(t *testing.T) {
	ledger, mem := newTestLedger(t)
	ctx := context.Background()

	rec, err := ledger.Add(ctx, "emp-1", date("2024-03-12"), generic.StatusPresent)
	require.NoError(t, err)

	require.NoError(t, mem.DeleteEmployee(ctx, "emp-1"))
	_, err = ledger.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)
	assert.ErrorIs(t, mem.DeleteEmployee(ctx, "emp-1"), generic.ErrEmployeeNotFound)
}
