package attendance_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/generic/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestQuery(t *testing.T) (*attendance.Query, generic.Ledger) {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveEmployee(context.Background(), generic.Employee{
		ID:          "emp-1",
		Name:        "Ana",
		Salary:      decimal.NewFromInt(1000),
		SalaryBasis: generic.BasisDaily,
	}))
	ledger := generic.NewLedger(mem, mem)
	return attendance.NewQuery(ledger, nil), ledger
}

// =============================================================================
// GET-OR-CREATE
// =============================================================================

func TestGetOrCreate_SecondCallReturnsSameRecord(t *testing.T) {
	// GIVEN: No record for 2024-02-03
	// WHEN: GetOrCreate is called twice
	// THEN: Same record id; only the first call creates; a direct Add fails

	q, ledger := newTestQuery(t)
	ctx := context.Background()
	feb3 := generic.MustParseDate("2024-02-03")

	first, created, err := q.GetOrCreate(ctx, "emp-1", feb3)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, attendance.DefaultStatus, first.Status)

	second, created, err := q.GetOrCreate(ctx, "emp-1", feb3)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	_, err = ledger.Add(ctx, "emp-1", feb3, generic.StatusLate)
	assert.ErrorIs(t, err, generic.ErrDuplicateRecord)
}

func TestGetOrCreate_ExistingStatusIsNotOverwritten(t *testing.T) {
	q, ledger := newTestQuery(t)
	ctx := context.Background()
	d := generic.MustParseDate("2024-02-05")

	rec, err := ledger.Add(ctx, "emp-1", d, generic.StatusAbsent)
	require.NoError(t, err)

	got, created, err := q.GetOrCreate(ctx, "emp-1", d)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, generic.StatusAbsent, got.Status)
}

func TestGetOrCreate_ConcurrentCallersShareOneRecord(t *testing.T) {
	// GIVEN: 16 goroutines viewing the same unmarked day
	// THEN: Exactly one record exists and all callers see its id

	q, ledger := newTestQuery(t)
	ctx := context.Background()
	d := generic.MustParseDate("2024-02-06")

	const n = 16
	ids := make([]generic.RecordID, n)
	created := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, c, err := q.GetOrCreate(ctx, "emp-1", d)
			assert.NoError(t, err)
			ids[i], created[i] = rec.ID, c
		}()
	}
	wg.Wait()

	creators := 0
	for i := 0; i < n; i++ {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			creators++
		}
	}
	assert.Equal(t, 1, creators)

	recs, err := ledger.FindRange(ctx, "emp-1", d, d)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestGetOrCreate_UnknownEmployee(t *testing.T) {
	q, _ := newTestQuery(t)
	_, _, err := q.GetOrCreate(context.Background(), "ghost", generic.MustParseDate("2024-02-03"))
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
}

// =============================================================================
// RANGE AND SUMMARY
// =============================================================================

func TestRange_DeletedDayIsNotCounted(t *testing.T) {
	// GIVEN: Three recorded days, one of them Absent
	// WHEN: The Absent record is deleted
	// THEN: The summary has no Absent and two recorded days

	q, ledger := newTestQuery(t)
	ctx := context.Background()
	p, err := generic.NewPeriod(generic.MustParseDate("2024-03-01"), generic.MustParseDate("2024-03-03"))
	require.NoError(t, err)

	_, err = ledger.Add(ctx, "emp-1", p.Start, generic.StatusPresent)
	require.NoError(t, err)
	absent, err := ledger.Add(ctx, "emp-1", p.Start.AddDays(1), generic.StatusAbsent)
	require.NoError(t, err)
	_, err = ledger.Add(ctx, "emp-1", p.End, generic.StatusHalfDay)
	require.NoError(t, err)

	require.NoError(t, ledger.Delete(ctx, absent.ID))

	recs, err := q.Range(ctx, "emp-1", p)
	require.NoError(t, err)
	s := attendance.Summarize(recs)
	assert.Equal(t, attendance.Summary{Present: 1, HalfDay: 1, Recorded: 2}, s)
	assert.Equal(t, 1, s.WorkDays())
	assert.Equal(t, 1, s.HalfDays())
}

func TestRange_InvalidPeriod(t *testing.T) {
	q, _ := newTestQuery(t)
	p := generic.Period{Start: generic.MustParseDate("2024-03-05"), End: generic.MustParseDate("2024-03-01")}
	_, err := q.Range(context.Background(), "emp-1", p)
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}

func TestSummarize_CountsEveryStatus(t *testing.T) {
	recs := []generic.AttendanceRecord{
		{Status: generic.StatusPresent},
		{Status: generic.StatusPresent},
		{Status: generic.StatusLate},
		{Status: generic.StatusAbsent},
		{Status: generic.StatusHalfDay},
		{Status: generic.StatusHalfDay},
	}
	s := attendance.Summarize(recs)
	assert.Equal(t, 3, s.WorkDays())
	assert.Equal(t, 2, s.HalfDays())
	assert.Equal(t, 1, s.Absent)
	assert.Equal(t, 6, s.Recorded)
}
