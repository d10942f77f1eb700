/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with employees and
	attendance for one semi-monthly cutoff (2024-06-01 to 2024-06-15), so
	payroll can be calculated right away.

AVAILABLE SCENARIOS:

	daily-basic:   Daily-rated employee with present, late, half-day and absent days
	fixed-basis:   Weekly and monthly employees; attendance does not change gross
	negative-net:  Deductions larger than gross pay (net pay is reported negative)
	mixed-team:    All of the above in one directory for batch runs

HOW SCENARIOS WORK:
 1. Reset the directory (delete every employee, cascading to attendance)
 2. Save the scenario's employees
 3. Add attendance through the ledger

USAGE VIA API:

	POST /api/scenarios/load
	{"scenarioId": "mixed-team"}

NOTE:

	Scenarios reset the store. The routes are only mounted outside
	production (RouterOptions.EnableScenarios).

SEE ALSO:
  - handlers.go: Payroll endpoint to run against the seeded data
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId" validate:"required"`
}

// LoadScenarioResponse reports what was seeded and the period to run.
type LoadScenarioResponse struct {
	ScenarioID string `json:"scenarioId"`
	Employees  int    `json:"employees"`
	Records    int    `json:"records"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
}

var scenarioPeriod = generic.Period{
	Start: generic.NewDate(2024, 6, 1),
	End:   generic.NewDate(2024, 6, 15),
}

type seedEmployee struct {
	employee generic.Employee
	// statuses[i] is recorded on scenarioPeriod.Start + i; "" leaves the day unrecorded.
	statuses []generic.AttendanceStatus
}

type scenario struct {
	ScenarioDTO
	seed func() []seedEmployee
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "daily-basic",
			Name:        "Daily Basic",
			Description: "Daily rate 1000: 10 present, 2 late, 2 half-day, 1 absent",
		},
		seed: func() []seedEmployee { return []seedEmployee{dailyBasic()} },
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "fixed-basis",
			Name:        "Fixed Basis",
			Description: "Weekly 7000 and monthly 30000; attendance does not change gross pay",
		},
		seed: func() []seedEmployee { return fixedBasis() },
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "negative-net",
			Name:        "Negative Net Pay",
			Description: "Gross 3500 against 6900 of deductions: net pay -3400",
		},
		seed: func() []seedEmployee { return []seedEmployee{negativeNet()} },
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "mixed-team",
			Name:        "Mixed Team",
			Description: "Every scenario above in one directory for batch payroll",
		},
		seed: func() []seedEmployee {
			out := []seedEmployee{dailyBasic(), negativeNet()}
			return append(out, fixedBasis()...)
		},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadScenario resets the store and seeds the chosen scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	sc, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown scenario %q", req.ScenarioID), "NOT_FOUND", nil)
		return
	}

	ctx := r.Context()
	if err := h.resetDirectory(ctx); err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := LoadScenarioResponse{
		ScenarioID: sc.ID,
		StartDate:  scenarioPeriod.Start.String(),
		EndDate:    scenarioPeriod.End.String(),
	}
	for _, seed := range sc.seed() {
		n, err := h.seed(ctx, seed)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		resp.Employees++
		resp.Records += n
	}

	h.logger.Info("scenario loaded",
		zap.String("scenario", sc.ID),
		zap.Int("employees", resp.Employees),
		zap.Int("records", resp.Records),
	)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) resetDirectory(ctx context.Context) error {
	employees, err := h.Store.ListEmployees(ctx)
	if err != nil {
		return err
	}
	for _, emp := range employees {
		if err := h.Store.DeleteEmployee(ctx, emp.ID); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) seed(ctx context.Context, s seedEmployee) (int, error) {
	if err := h.Store.SaveEmployee(ctx, s.employee); err != nil {
		return 0, err
	}
	n := 0
	for i, status := range s.statuses {
		if status == "" {
			continue
		}
		day := scenarioPeriod.Start.AddDays(i)
		if _, err := h.Ledger.Add(ctx, s.employee.ID, day, status); err != nil {
			return n, fmt.Errorf("seed %s on %s: %w", s.employee.ID, day, err)
		}
		n++
	}
	return n, nil
}

// =============================================================================
// SEED DATA
// =============================================================================

const (
	present = generic.StatusPresent
	late    = generic.StatusLate
	absent  = generic.StatusAbsent
	halfDay = generic.StatusHalfDay
)

func dailyBasic() seedEmployee {
	return seedEmployee{
		employee: generic.Employee{
			ID:                     "emp-daily",
			Name:                   "Dana Daily",
			Salary:                 decimal.NewFromInt(1000),
			SalaryBasis:            generic.BasisDaily,
			Category:               "rank-and-file",
			Position:               "Warehouse Associate",
			WorkingHours:           "08:00-17:00",
			SSSContribution:        decimal.NewFromInt(450),
			PagIBIGContribution:    decimal.NewFromInt(100),
			PhilHealthContribution: decimal.NewFromInt(250),
			WithholdingTax:         decimal.Zero,
		},
		// 10 present, 2 late, 2 half-day, 1 absent over 15 days
		statuses: []generic.AttendanceStatus{present, present, late, present, halfDay, present, absent, present, present, late, present, halfDay, present, present, present},
	}
}

func fixedBasis() []seedEmployee {
	return []seedEmployee{
		{
			employee: generic.Employee{
				ID:                     "emp-monthly",
				Name:                   "Mona Monthly",
				Salary:                 decimal.NewFromInt(30000),
				SalaryBasis:            generic.BasisMonthly,
				Category:               "supervisory",
				Position:               "Team Lead",
				SSSContribution:        decimal.NewFromInt(1125),
				PagIBIGContribution:    decimal.NewFromInt(100),
				PhilHealthContribution: decimal.NewFromInt(675),
				WithholdingTax:         decimal.NewFromInt(1500),
			},
			statuses: []generic.AttendanceStatus{present, absent, absent, present},
		},
		{
			employee: generic.Employee{
				ID:                     "emp-weekly",
				Name:                   "Wes Weekly",
				Salary:                 decimal.NewFromInt(7000),
				SalaryBasis:            generic.BasisWeekly,
				Category:               "contractual",
				Position:               "Driver",
				SSSContribution:        decimal.NewFromInt(300),
				PagIBIGContribution:    decimal.NewFromInt(100),
				PhilHealthContribution: decimal.NewFromInt(175),
				WithholdingTax:         decimal.Zero,
			},
			statuses: []generic.AttendanceStatus{present, present, present, present, present, "", "", present, present},
		},
	}
}

func negativeNet() seedEmployee {
	return seedEmployee{
		employee: generic.Employee{
			ID:                     "emp-negative",
			Name:                   "Nico Negative",
			Salary:                 decimal.NewFromInt(500),
			SalaryBasis:            generic.BasisDaily,
			Category:               "rank-and-file",
			Position:               "Part-time Clerk",
			SSSContribution:        decimal.NewFromInt(1125),
			PagIBIGContribution:    decimal.NewFromInt(100),
			PhilHealthContribution: decimal.NewFromInt(675),
			WithholdingTax:         decimal.NewFromInt(5000),
		},
		// 7 work days at 500 = 3500 gross
		statuses: []generic.AttendanceStatus{present, present, present, late, present, present, present},
	}
}
