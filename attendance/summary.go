package attendance

import "github.com/warp/payroll-engine/generic"

// Summary counts one employee's observations over a period.
// Days without a record are not counted anywhere.
type Summary struct {
	Present  int `json:"present"`
	Late     int `json:"late"`
	Absent   int `json:"absent"`
	HalfDay  int `json:"halfDay"`
	Recorded int `json:"recorded"`
}

// WorkDays counts full paid days: Present + Late.
func (s Summary) WorkDays() int { return s.Present + s.Late }

// HalfDays counts HalfDay observations.
func (s Summary) HalfDays() int { return s.HalfDay }

// Summarize folds records into a Summary. Records whose status is outside
// the enum are counted as recorded but earn nothing.
func Summarize(records []generic.AttendanceRecord) Summary {
	var s Summary
	for _, r := range records {
		s.Recorded++
		switch r.Status {
		case generic.StatusPresent:
			s.Present++
		case generic.StatusLate:
			s.Late++
		case generic.StatusAbsent:
			s.Absent++
		case generic.StatusHalfDay:
			s.HalfDay++
		}
	}
	return s
}
