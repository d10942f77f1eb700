package payroll

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/generic"
)

// Result is one employee's payroll for one period. It is a value computed
// from (employee snapshot, attendance records, period) and is never stored.
type Result struct {
	Employee   generic.Employee
	Period     generic.Period
	PeriodDays int
	Basis      generic.SalaryBasis
	Summary    attendance.Summary

	WorkDays int
	HalfDays int
	GrossPay decimal.Decimal

	SSSDeduction        decimal.Decimal
	PagIBIGDeduction    decimal.Decimal
	PhilHealthDeduction decimal.Decimal
	WithholdingTax      decimal.Decimal
	TotalDeductions     decimal.Decimal

	NetPay decimal.Decimal
}

// SortOrder selects the stable ordering of batch results.
type SortOrder string

const (
	SortByEmployeeID SortOrder = "id"
	SortByName       SortOrder = "name"
)

func (o SortOrder) Valid() bool {
	return o == "" || o == SortByEmployeeID || o == SortByName
}
