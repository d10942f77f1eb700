/*
Package attendance provides the query side of the attendance ledger.

PURPOSE:
  Answers "is today's attendance marked yet?" without ever producing two
  records for the same day, and reduces a set of records to the counts the
  payroll engine consumes.

GET-OR-CREATE:
  1. Read (employee, day) from the ledger
  2. Found: return it unchanged, no side effect
  3. Missing: add it with DefaultStatus
  4. Insert rejected with ErrDuplicateRecord (another caller won the race):
     read again and return the winner's record

  There is no in-process lock. The store's unique key on (employee, day) is
  what makes step 3 safe under concurrency.

DEFAULT STATUS POLICY:
  A day that is looked at before anyone marked it is assumed Present.
  This is a named policy (DefaultStatus), not a side effect of rendering.

SEE ALSO:
  - generic/ledger.go: The ledger this builds on
  - summary.go: Record counting for payroll
*/
package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/payroll-engine/generic"
	"go.uber.org/zap"
)

// DefaultStatus is the status a day receives when it is first viewed.
const DefaultStatus = generic.StatusPresent

// =============================================================================
// QUERY
// =============================================================================

type Query struct {
	ledger generic.Ledger
	logger *zap.Logger
}

func NewQuery(ledger generic.Ledger, logger *zap.Logger) *Query {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Query{ledger: ledger, logger: logger.Named("attendance.query")}
}

// GetOrCreate returns the record for (employeeID, day), creating it with
// DefaultStatus if the day has no observation yet. created reports whether
// this call inserted the record.
func (q *Query) GetOrCreate(ctx context.Context, employeeID generic.EmployeeID, day generic.Date) (rec generic.AttendanceRecord, created bool, err error) {
	rec, err = q.ledger.FindDay(ctx, employeeID, day)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, generic.ErrRecordNotFound) {
		return generic.AttendanceRecord{}, false, err
	}

	rec, err = q.ledger.Add(ctx, employeeID, day, DefaultStatus)
	if err == nil {
		q.logger.Debug("attendance defaulted",
			zap.String("employee_id", string(employeeID)),
			zap.String("date", day.String()),
			zap.String("status", string(DefaultStatus)),
		)
		return rec, true, nil
	}
	if !errors.Is(err, generic.ErrDuplicateRecord) {
		return generic.AttendanceRecord{}, false, err
	}

	// Lost the insert race: the winner's row is now the day's record.
	rec, err = q.ledger.FindDay(ctx, employeeID, day)
	if err != nil {
		return generic.AttendanceRecord{}, false, fmt.Errorf("re-read after duplicate insert: %w", err)
	}
	q.logger.Debug("attendance insert race resolved by re-read",
		zap.String("employee_id", string(employeeID)),
		zap.String("date", day.String()),
		zap.String("record_id", string(rec.ID)),
	)
	return rec, false, nil
}

// Range is the ledger's range scan, exposed so callers only need a Query.
func (q *Query) Range(ctx context.Context, employeeID generic.EmployeeID, period generic.Period) ([]generic.AttendanceRecord, error) {
	return q.ledger.FindRange(ctx, employeeID, period.Start, period.End)
}
