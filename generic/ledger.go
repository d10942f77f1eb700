/*
ledger.go - Attendance ledger

PURPOSE:
  The Ledger is the source of truth for day-level attendance. Payroll is
  always derived by reading it; there is no cached "days worked" counter
  that could drift.

CRITICAL INVARIANTS:
  1. ONE PER DAY: at most one record per (employee, calendar day)
  2. IMMUTABLE KEY: employee and date never change after creation;
     moving a record to another day is Delete + Add
  3. DELETE IS "NO OBSERVATION": a deleted day is not counted as Absent

WRITES:
  Add      - fails with ErrDuplicateRecord when the day is already recorded
  Update   - status only; ErrRecordNotFound / ErrImmutableField
  Delete   - ErrRecordNotFound on an unknown id (including a second delete)

READS:
  FindRange - inclusive, ascending by date, empty slice when nothing matches

SEE ALSO:
  - store.go: Low-level persistence interface
  - attendance/query.go: Get-or-create on top of the ledger
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER - Attendance record operations
// =============================================================================

type Ledger interface {
	Add(ctx context.Context, employeeID EmployeeID, day Date, status AttendanceStatus) (AttendanceRecord, error)
	Update(ctx context.Context, id RecordID, upd AttendanceUpdate) (AttendanceRecord, error)
	Delete(ctx context.Context, id RecordID) error
	FindRange(ctx context.Context, employeeID EmployeeID, from, to Date) ([]AttendanceRecord, error)

	Get(ctx context.Context, id RecordID) (AttendanceRecord, error)
	FindDay(ctx context.Context, employeeID EmployeeID, day Date) (AttendanceRecord, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using AttendanceStore
// =============================================================================

type DefaultLedger struct {
	Store AttendanceStore

	// Directory, when set, is used to reject records for unknown employees.
	Directory EmployeeDirectory

	// NewID and Now are swappable for deterministic tests.
	NewID func() RecordID
	Now   func() time.Time
}

func NewLedger(store AttendanceStore, directory EmployeeDirectory) *DefaultLedger {
	return &DefaultLedger{
		Store:     store,
		Directory: directory,
		NewID:     func() RecordID { return RecordID(uuid.NewString()) },
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (l *DefaultLedger) Add(ctx context.Context, employeeID EmployeeID, day Date, status AttendanceStatus) (AttendanceRecord, error) {
	if !status.Valid() {
		return AttendanceRecord{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if day.IsZero() {
		return AttendanceRecord{}, fmt.Errorf("%w: date is required", ErrInvalidPeriod)
	}
	if l.Directory != nil {
		if _, err := l.Directory.GetEmployee(ctx, employeeID); err != nil {
			return AttendanceRecord{}, err
		}
	}

	now := l.Now()
	rec := AttendanceRecord{
		ID:         l.NewID(),
		EmployeeID: employeeID,
		Date:       day,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := l.Store.InsertAttendance(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			var dup *DuplicateRecordError
			if errors.As(err, &dup) {
				return AttendanceRecord{}, err
			}
			return AttendanceRecord{}, &DuplicateRecordError{EmployeeID: employeeID, Date: day}
		}
		return AttendanceRecord{}, err
	}
	return rec, nil
}

func (l *DefaultLedger) Update(ctx context.Context, id RecordID, upd AttendanceUpdate) (AttendanceRecord, error) {
	if !upd.Status.Valid() {
		return AttendanceRecord{}, fmt.Errorf("%w: %q", ErrInvalidStatus, upd.Status)
	}

	current, err := l.Store.GetAttendance(ctx, id)
	if err != nil {
		return AttendanceRecord{}, err
	}
	if upd.EmployeeID != nil && *upd.EmployeeID != current.EmployeeID {
		return AttendanceRecord{}, fmt.Errorf("%w: employeeId (delete and re-create the record instead)", ErrImmutableField)
	}
	if upd.Date != nil && !upd.Date.Equal(current.Date) {
		return AttendanceRecord{}, fmt.Errorf("%w: date (delete and re-create the record instead)", ErrImmutableField)
	}
	if upd.Status == current.Status {
		return current, nil
	}
	return l.Store.UpdateAttendanceStatus(ctx, id, upd.Status)
}

func (l *DefaultLedger) Delete(ctx context.Context, id RecordID) error {
	return l.Store.DeleteAttendance(ctx, id)
}

func (l *DefaultLedger) FindRange(ctx context.Context, employeeID EmployeeID, from, to Date) ([]AttendanceRecord, error) {
	if err := (Period{Start: from, End: to}).Validate(); err != nil {
		return nil, err
	}
	recs, err := l.Store.LoadAttendanceRange(ctx, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []AttendanceRecord{}
	}
	return recs, nil
}

func (l *DefaultLedger) Get(ctx context.Context, id RecordID) (AttendanceRecord, error) {
	return l.Store.GetAttendance(ctx, id)
}

func (l *DefaultLedger) FindDay(ctx context.Context, employeeID EmployeeID, day Date) (AttendanceRecord, error) {
	return l.Store.FindAttendanceDay(ctx, employeeID, day)
}
