/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

WIRE FORMAT:
  Field names are camelCase. Dates are ISO calendar dates (2006-01-02).
  Money is a JSON number carrying the exact decimal string, so 1234.50
  never passes through float64 on the way out.

TYPES:
  Employee:
    EmployeeDTO, SaveEmployeeRequest

  Attendance:
    AttendanceDTO, CreateAttendanceRequest, MarkAttendanceRequest,
    UpdateAttendanceRequest

  Payroll:
    CalculatePayrollRequest, PayrollResultDTO, CalculatePayrollResponse

VALIDATION:
  Request shape is checked with validator struct tags (see validate below).
  Domain rules (negative amounts, end before start, immutable fields) are
  left to the domain packages so there is a single source of truth.

SEE ALSO:
  - handlers.go: Uses these types
  - generic/types.go: Domain types these map to
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Salary       json.Number `json:"salary"`
	SalaryBasis  string      `json:"salaryBasis"`
	Category     string      `json:"category,omitempty"`
	Position     string      `json:"position,omitempty"`
	WorkingHours string      `json:"workingHours,omitempty"`

	SSSContribution        json.Number `json:"sssContribution"`
	PagIBIGContribution    json.Number `json:"pagibigContribution"`
	PhilHealthContribution json.Number `json:"philhealthContribution"`
	WithholdingTax         json.Number `json:"withholdingTax"`
}

// SaveEmployeeRequest creates or replaces an employee.
type SaveEmployeeRequest struct {
	ID           string      `json:"id" validate:"required"`
	Name         string      `json:"name" validate:"required"`
	Salary       json.Number `json:"salary" validate:"required,numeric"`
	SalaryBasis  string      `json:"salaryBasis" validate:"required"`
	Category     string      `json:"category"`
	Position     string      `json:"position"`
	WorkingHours string      `json:"workingHours"`

	SSSContribution        json.Number `json:"sssContribution" validate:"omitempty,numeric"`
	PagIBIGContribution    json.Number `json:"pagibigContribution" validate:"omitempty,numeric"`
	PhilHealthContribution json.Number `json:"philhealthContribution" validate:"omitempty,numeric"`
	WithholdingTax         json.Number `json:"withholdingTax" validate:"omitempty,numeric"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// AttendanceDTO represents one attendance record.
type AttendanceDTO struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employeeId"`
	Date       string    `json:"date"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CreateAttendanceRequest is an explicit add. Fails with 409 if the day is
// already recorded.
type CreateAttendanceRequest struct {
	EmployeeID string `json:"employeeId" validate:"required"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Status     string `json:"status" validate:"required"`
}

// MarkAttendanceRequest is get-or-create. Date defaults to today.
type MarkAttendanceRequest struct {
	EmployeeID string `json:"employeeId" validate:"required"`
	Date       string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// UpdateAttendanceRequest changes a record's status. EmployeeID and Date may
// be echoed back but must match the stored record.
type UpdateAttendanceRequest struct {
	Status     string  `json:"status" validate:"required"`
	EmployeeID *string `json:"employeeId,omitempty"`
	Date       *string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// =============================================================================
// PAYROLL
// =============================================================================

// CalculatePayrollRequest selects one employee, or every employee when
// EmployeeID is null, absent or empty.
type CalculatePayrollRequest struct {
	EmployeeID *string `json:"employeeId"`
	StartDate  string  `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate    string  `json:"endDate" validate:"required,datetime=2006-01-02"`
	SortBy     string  `json:"sortBy,omitempty" validate:"omitempty,oneof=id name"`
}

// AttendanceSummaryDTO is the per-status day count behind a result.
type AttendanceSummaryDTO struct {
	Present  int `json:"present"`
	Late     int `json:"late"`
	Absent   int `json:"absent"`
	HalfDay  int `json:"halfDay"`
	Recorded int `json:"recorded"`
}

// PayrollResultDTO is one employee's computed payroll.
type PayrollResultDTO struct {
	Employee    EmployeeDTO          `json:"employee"`
	StartDate   string               `json:"startDate"`
	EndDate     string               `json:"endDate"`
	PeriodDays  int                  `json:"periodDays"`
	SalaryBasis string               `json:"salaryBasis"`
	Attendance  AttendanceSummaryDTO `json:"attendance"`

	WorkDays int         `json:"workDays"`
	HalfDays int         `json:"halfDays"`
	GrossPay json.Number `json:"grossPay"`

	SSSDeduction        json.Number `json:"sssDeduction"`
	PagIBIGDeduction    json.Number `json:"pagibigDeduction"`
	PhilHealthDeduction json.Number `json:"philhealthDeduction"`
	WithholdingTax      json.Number `json:"withholdingTax"`
	TotalDeductions     json.Number `json:"totalDeductions"`

	NetPay json.Number `json:"netPay"`
}

// CalculatePayrollResponse wraps a batch. Results is never null.
type CalculatePayrollResponse struct {
	Results []PayrollResultDTO `json:"results"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func toEmployeeDTO(e generic.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:                     string(e.ID),
		Name:                   e.Name,
		Salary:                 money(e.Salary),
		SalaryBasis:            string(e.SalaryBasis),
		Category:               e.Category,
		Position:               e.Position,
		WorkingHours:           e.WorkingHours,
		SSSContribution:        money(e.SSSContribution),
		PagIBIGContribution:    money(e.PagIBIGContribution),
		PhilHealthContribution: money(e.PhilHealthContribution),
		WithholdingTax:         money(e.WithholdingTax),
	}
}

// toEmployee parses amounts and the basis. Range checks are left to
// Employee.Validate.
func (req SaveEmployeeRequest) toEmployee() (generic.Employee, error) {
	basis, err := generic.ParseSalaryBasis(req.SalaryBasis)
	if err != nil {
		return generic.Employee{}, err
	}
	emp := generic.Employee{
		ID:           generic.EmployeeID(req.ID),
		Name:         req.Name,
		SalaryBasis:  basis,
		Category:     req.Category,
		Position:     req.Position,
		WorkingHours: req.WorkingHours,
	}
	fields := []struct {
		name string
		raw  json.Number
		dst  *decimal.Decimal
	}{
		{"salary", req.Salary, &emp.Salary},
		{"sssContribution", req.SSSContribution, &emp.SSSContribution},
		{"pagibigContribution", req.PagIBIGContribution, &emp.PagIBIGContribution},
		{"philhealthContribution", req.PhilHealthContribution, &emp.PhilHealthContribution},
		{"withholdingTax", req.WithholdingTax, &emp.WithholdingTax},
	}
	for _, f := range fields {
		if f.raw == "" {
			*f.dst = decimal.Zero
			continue
		}
		v, err := decimal.NewFromString(f.raw.String())
		if err != nil {
			return generic.Employee{}, fmt.Errorf("%w: %s is not a decimal amount", generic.ErrInvalidEmployee, f.name)
		}
		*f.dst = v
	}
	return emp, nil
}

func toAttendanceDTO(rec generic.AttendanceRecord) AttendanceDTO {
	return AttendanceDTO{
		ID:         string(rec.ID),
		EmployeeID: string(rec.EmployeeID),
		Date:       rec.Date.String(),
		Status:     string(rec.Status),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

func toAttendanceDTOs(recs []generic.AttendanceRecord) []AttendanceDTO {
	out := make([]AttendanceDTO, len(recs))
	for i, rec := range recs {
		out[i] = toAttendanceDTO(rec)
	}
	return out
}

func toSummaryDTO(s attendance.Summary) AttendanceSummaryDTO {
	return AttendanceSummaryDTO{
		Present:  s.Present,
		Late:     s.Late,
		Absent:   s.Absent,
		HalfDay:  s.HalfDay,
		Recorded: s.Recorded,
	}
}

func toPayrollResultDTO(r payroll.Result) PayrollResultDTO {
	return PayrollResultDTO{
		Employee:            toEmployeeDTO(r.Employee),
		StartDate:           r.Period.Start.String(),
		EndDate:             r.Period.End.String(),
		PeriodDays:          r.PeriodDays,
		SalaryBasis:         string(r.Basis),
		Attendance:          toSummaryDTO(r.Summary),
		WorkDays:            r.WorkDays,
		HalfDays:            r.HalfDays,
		GrossPay:            money(r.GrossPay),
		SSSDeduction:        money(r.SSSDeduction),
		PagIBIGDeduction:    money(r.PagIBIGDeduction),
		PhilHealthDeduction: money(r.PhilHealthDeduction),
		WithholdingTax:      money(r.WithholdingTax),
		TotalDeductions:     money(r.TotalDeductions),
		NetPay:              money(r.NetPay),
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage turns the first validator failure into a client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid input"
	}
	e := verrs[0]
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "datetime":
		return e.Field() + " must be a date (YYYY-MM-DD)"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param())
	default:
		return e.Field() + " is invalid"
	}
}
