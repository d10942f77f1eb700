/*
Package payroll derives pay from the attendance ledger.

PURPOSE:
  Given an employee (or all employees) and an inclusive date range, produce
  one Result per employee: gross pay from the accrual policy, the four fixed
  deductions, and net pay. Nothing is stored. Every call re-reads the ledger.

PIPELINE (per employee):
  1. FindRange(employee, start, end)   one consistent read
  2. Summarize(records)                present/late/absent/half-day counts
  3. PolicyFor(basis).GrossPay(...)    accrual
  4. DeductionsFor(employee).Total()   fixed sum, not prorated
  5. NetPay = gross - deductions       may be negative

BATCHES:
  Employees are computed concurrently, bounded by Workers. The first failure
  cancels the rest and the whole batch fails: callers get all results or
  none. Output is sorted by employee id unless another SortOrder is given.

  Calls never share work: a calculation that starts after an attendance
  write always sees that write.

SEE ALSO:
  - accrual.go: Daily / weekly / monthly policies
  - deductions.go: Deduction aggregation
  - attendance/summary.go: Record counting
*/
package payroll

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/generic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds batch concurrency when Calculator.Workers is unset.
const DefaultWorkers = 4

// =============================================================================
// OPTIONS
// =============================================================================

type calculateOptions struct {
	sortBy SortOrder
}

type CalculateOption func(*calculateOptions)

// WithSort orders the results. Unknown orders fall back to employee id.
func WithSort(order SortOrder) CalculateOption {
	return func(o *calculateOptions) { o.sortBy = order }
}

// =============================================================================
// CALCULATOR
// =============================================================================

type Calculator struct {
	Ledger    generic.Ledger
	Directory generic.EmployeeDirectory
	Workers   int

	logger *zap.Logger
}

func NewCalculator(ledger generic.Ledger, directory generic.EmployeeDirectory, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		Ledger:    ledger,
		Directory: directory,
		Workers:   DefaultWorkers,
		logger:    logger.Named("payroll.calculator"),
	}
}

// Calculate computes payroll for one employee (employeeID non-nil) or for
// every employee in the directory (employeeID nil) over period.
func (c *Calculator) Calculate(ctx context.Context, employeeID *generic.EmployeeID, period generic.Period, opts ...CalculateOption) ([]Result, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	o := calculateOptions{sortBy: SortByEmployeeID}
	for _, opt := range opts {
		opt(&o)
	}

	return c.calculate(ctx, employeeID, period, o)
}

func (c *Calculator) calculate(ctx context.Context, employeeID *generic.EmployeeID, period generic.Period, o calculateOptions) ([]Result, error) {
	employees, err := c.resolveEmployees(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(employees))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i, emp := range employees {
		g.Go(func() error {
			res, err := c.CalculateOne(gctx, emp, period)
			if err != nil {
				return fmt.Errorf("employee %s: %w", emp.ID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn("payroll batch failed",
			zap.Stringer("period", period),
			zap.Int("employees", len(employees)),
			zap.Error(err),
		)
		return nil, err
	}

	sortResults(results, o.sortBy)
	c.logger.Info("payroll calculated",
		zap.Stringer("period", period),
		zap.Int("employees", len(results)),
	)
	return results, nil
}

// CalculateOne computes a single result from an employee snapshot the
// caller already holds.
func (c *Calculator) CalculateOne(ctx context.Context, emp generic.Employee, period generic.Period) (Result, error) {
	if err := period.Validate(); err != nil {
		return Result{}, err
	}
	policy, err := PolicyFor(emp.SalaryBasis)
	if err != nil {
		return Result{}, err
	}

	records, err := c.Ledger.FindRange(ctx, emp.ID, period.Start, period.End)
	if err != nil {
		return Result{}, err
	}
	summary := attendance.Summarize(records)

	gross, err := policy.GrossPay(emp.Salary, summary, period)
	if err != nil {
		return Result{}, err
	}
	ded := DeductionsFor(emp)
	total := ded.Total()

	return Result{
		Employee:            emp,
		Period:              period,
		PeriodDays:          period.LengthInDays(),
		Basis:               emp.SalaryBasis,
		Summary:             summary,
		WorkDays:            summary.WorkDays(),
		HalfDays:            summary.HalfDays(),
		GrossPay:            gross,
		SSSDeduction:        ded.SSS,
		PagIBIGDeduction:    ded.PagIBIG,
		PhilHealthDeduction: ded.PhilHealth,
		WithholdingTax:      ded.WithholdingTax,
		TotalDeductions:     total,
		NetPay:              gross.Sub(total),
	}, nil
}

func (c *Calculator) resolveEmployees(ctx context.Context, employeeID *generic.EmployeeID) ([]generic.Employee, error) {
	if employeeID != nil {
		emp, err := c.Directory.GetEmployee(ctx, *employeeID)
		if err != nil {
			return nil, err
		}
		return []generic.Employee{emp}, nil
	}
	return c.Directory.ListEmployees(ctx)
}

func (c *Calculator) workers() int {
	if c.Workers <= 0 {
		return DefaultWorkers
	}
	return c.Workers
}

// =============================================================================
// HELPERS
// =============================================================================

func sortResults(results []Result, order SortOrder) {
	switch order {
	case SortByName:
		sort.SliceStable(results, func(i, j int) bool {
			a, b := results[i].Employee, results[j].Employee
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		})
	default:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Employee.ID < results[j].Employee.ID
		})
	}
}
