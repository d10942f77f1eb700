package payroll

import (
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

// Deductions are the four fixed statutory amounts assigned to an employee.
// They are not prorated by period length or attendance.
type Deductions struct {
	SSS            decimal.Decimal
	PagIBIG        decimal.Decimal
	PhilHealth     decimal.Decimal
	WithholdingTax decimal.Decimal
}

func DeductionsFor(emp generic.Employee) Deductions {
	return Deductions{
		SSS:            emp.SSSContribution,
		PagIBIG:        emp.PagIBIGContribution,
		PhilHealth:     emp.PhilHealthContribution,
		WithholdingTax: emp.WithholdingTax,
	}
}

func (d Deductions) Total() decimal.Decimal {
	return d.SSS.Add(d.PagIBIG).Add(d.PhilHealth).Add(d.WithholdingTax)
}

// NetPay is gross minus total deductions. A negative result is returned
// as-is: it signals a configuration problem that must stay visible.
func NetPay(gross decimal.Decimal, d Deductions) decimal.Decimal {
	return gross.Sub(d.Total())
}
