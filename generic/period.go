package generic

import "fmt"

// =============================================================================
// PERIOD - Inclusive calendar-date range payroll is computed over
// =============================================================================

// Period is an inclusive range of calendar days [Start, End].
//
// Examples:
//   - Semi-monthly cutoff: Jan 1 - Jan 15
//   - One day: Feb 3 - Feb 3 (LengthInDays == 1)
type Period struct {
	Start Date `json:"startDate"`
	End   Date `json:"endDate"`
}

// NewPeriod builds a period and validates it.
func NewPeriod(start, end Date) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate returns ErrInvalidPeriod when End is before Start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidPeriod)
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidPeriod, p.End, p.Start)
	}
	return nil
}

// Contains returns true if the day is within the period [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// LengthInDays is the inclusive day count: (End - Start).days + 1.
func (p Period) LengthInDays() int {
	return DaysBetween(p.Start, p.End) + 1
}

// Days returns all days in the period.
func (p Period) Days() []Date {
	var days []Date
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
