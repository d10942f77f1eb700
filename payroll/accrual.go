/*
accrual.go - Salary accrual policies

PURPOSE:
  Converts a salary figure, its basis and an attendance summary into gross
  pay for an arbitrary inclusive period.

POLICIES:
  Daily:   salary × workDays + salary × 0.5 × halfDays
           Scales with attendance only; period length is irrelevant.
  Weekly:  salary × ceil(periodDays / 7)
  Monthly: salary × ceil(periodDays / 30)
           Both ignore attendance entirely. A one-day period still pays one
           full week (or month), and two 4-day periods each pay a full week.
           This reproduces the existing payroll output exactly; whether
           salaried staff should be attendance-sensitive is an open product
           question (see DESIGN.md).

  periodDays = (end - start).days + 1

FAILURES:
  ErrInvalidSalaryBasis for any basis outside the enum. There is no
  fallback policy.
  ErrInvalidPeriod when end < start.
*/
package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/generic"
)

var half = decimal.NewFromFloat(0.5)

// =============================================================================
// ACCRUAL POLICY
// =============================================================================

type AccrualPolicy interface {
	Basis() generic.SalaryBasis

	// GrossPay returns pay before deductions for the period.
	GrossPay(salary decimal.Decimal, summary attendance.Summary, period generic.Period) (decimal.Decimal, error)

	// AttendanceSensitive reports whether GrossPay reads the summary.
	AttendanceSensitive() bool
}

// DailyAccrual pays per observed day.
type DailyAccrual struct{}

func (DailyAccrual) Basis() generic.SalaryBasis { return generic.BasisDaily }
func (DailyAccrual) AttendanceSensitive() bool   { return true }

func (DailyAccrual) GrossPay(salary decimal.Decimal, summary attendance.Summary, period generic.Period) (decimal.Decimal, error) {
	if err := period.Validate(); err != nil {
		return decimal.Zero, err
	}
	full := salary.Mul(decimal.NewFromInt(int64(summary.WorkDays())))
	halves := salary.Mul(half).Mul(decimal.NewFromInt(int64(summary.HalfDays())))
	return full.Add(halves), nil
}

// SpanAccrual pays salary once per started span of SpanDays.
type SpanAccrual struct {
	basis    generic.SalaryBasis
	SpanDays int
}

// WeeklyAccrual and MonthlyAccrual are the two span policies in use.
var (
	WeeklyAccrual  = SpanAccrual{basis: generic.BasisWeekly, SpanDays: 7}
	MonthlyAccrual = SpanAccrual{basis: generic.BasisMonthly, SpanDays: 30}
)

func (a SpanAccrual) Basis() generic.SalaryBasis { return a.basis }
func (a SpanAccrual) AttendanceSensitive() bool   { return false }

func (a SpanAccrual) GrossPay(salary decimal.Decimal, _ attendance.Summary, period generic.Period) (decimal.Decimal, error) {
	if err := period.Validate(); err != nil {
		return decimal.Zero, err
	}
	return salary.Mul(decimal.NewFromInt(int64(a.Spans(period)))), nil
}

// Spans is ceil(periodDays / SpanDays).
func (a SpanAccrual) Spans(period generic.Period) int {
	return ceilDiv(period.LengthInDays(), a.SpanDays)
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

// =============================================================================
// LOOKUP
// =============================================================================

// PolicyFor returns the policy for a basis. Unknown values fail loudly.
func PolicyFor(basis generic.SalaryBasis) (AccrualPolicy, error) {
	switch basis {
	case generic.BasisDaily:
		return DailyAccrual{}, nil
	case generic.BasisWeekly:
		return WeeklyAccrual, nil
	case generic.BasisMonthly:
		return MonthlyAccrual, nil
	default:
		return nil, fmt.Errorf("%w: %q", generic.ErrInvalidSalaryBasis, basis)
	}
}

// GrossPay looks up the policy for basis and applies it.
func GrossPay(salary decimal.Decimal, basis generic.SalaryBasis, summary attendance.Summary, period generic.Period) (decimal.Decimal, error) {
	policy, err := PolicyFor(basis)
	if err != nil {
		return decimal.Zero, err
	}
	return policy.GrossPay(salary, summary, period)
}
