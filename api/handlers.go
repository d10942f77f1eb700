/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes attendance tracking and payroll calculation via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Employees:
    GET    /api/employees              List all employees
    POST   /api/employees              Create or replace employee
    GET    /api/employees/{id}         Get employee details
    DELETE /api/employees/{id}         Delete employee and their attendance

  Attendance:
    POST   /api/attendance             Record a day (409 if already recorded)
    POST   /api/attendance/mark        Get-or-create a day (defaults to present)
    GET    /api/attendance             Range query (?employeeId=&start=&end=)
    GET    /api/attendance/stream      Change feed (text/event-stream)
    GET    /api/attendance/{id}        Get record
    PUT    /api/attendance/{id}        Change status
    DELETE /api/attendance/{id}        Delete record

  Payroll:
    POST   /api/payroll/calculate      Compute payroll for one or all employees

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Employee CRUD and the attendance store behind the ledger
  - Ledger / Query: Attendance writes, get-or-create, range reads
  - Calculator: Batch payroll
  - Publisher: Change events after successful attendance writes

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input shape (validator tags on DTOs)
  3. Call domain logic (ledger, query, calculator)
  4. Publish change event (attendance writes only, failures logged)
  5. Serialize response

ERROR HANDLING:
  Domain errors are mapped in one place, writeDomainError:
  - 400: InvalidPeriod, InvalidStatus, ImmutableField, InvalidEmployee
  - 404: NotFound
  - 409: DuplicateRecord
  - 500: InvalidSalaryBasis on a stored employee, anything unexpected
  - 503: StorageUnavailable (with Retry-After)

RETRIES:
  Range reads, payroll and get-or-create are retried on StorageUnavailable
  (see retry.go). Explicit adds, updates and deletes are not.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - stream.go: SSE change feed
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/warp/payroll-engine/attendance"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/notify"
	"github.com/warp/payroll-engine/payroll"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Store      generic.Store
	Ledger     generic.Ledger
	Query      *attendance.Query
	Calculator *payroll.Calculator

	// Hub serves the SSE stream. Publisher receives every change event and
	// normally includes Hub.
	Hub       *notify.Hub
	Publisher notify.Publisher

	Retry RetryPolicy

	// Today is the default date for get-or-create.
	Today func() generic.Date

	logger *zap.Logger
}

// Options configures NewHandler. Zero values are usable.
type Options struct {
	Hub       *notify.Hub
	Publisher notify.Publisher
	Logger    *zap.Logger
	Workers   int
}

// NewHandler wires the ledger, query and calculator on top of store.
func NewHandler(store generic.Store, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := opts.Hub
	if hub == nil {
		hub = notify.NewHub()
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = hub
	}

	ledger := generic.NewLedger(store, store)
	calc := payroll.NewCalculator(ledger, store, logger)
	if opts.Workers > 0 {
		calc.Workers = opts.Workers
	}

	return &Handler{
		Store:      store,
		Ledger:     ledger,
		Query:      attendance.NewQuery(ledger, logger),
		Calculator: calc,
		Hub:        hub,
		Publisher:  publisher,
		Retry:      DefaultRetry,
		Today:      generic.Today,
		logger:     logger.Named("api"),
	}
}

// =============================================================================
// EMPLOYEE ENDPOINTS
// =============================================================================

// ListEmployees returns all employees ordered by id.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	var employees []generic.Employee
	err := h.Retry.Do(r.Context(), func(ctx context.Context) error {
		var err error
		employees, err = h.Store.ListEmployees(ctx)
		return err
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	sort.Slice(employees, func(i, j int) bool { return employees[i].ID < employees[j].ID })
	dtos := make([]EmployeeDTO, len(employees))
	for i, emp := range employees {
		dtos[i] = toEmployeeDTO(emp)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee creates or replaces an employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req SaveEmployeeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	emp, err := req.toEmployee()
	if err == nil {
		err = emp.Validate()
	}
	if err != nil {
		// A bad basis in a request body is the caller's fault, unlike a
		// corrupt basis found on a stored employee.
		if errors.Is(err, generic.ErrInvalidSalaryBasis) {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_SALARY_BASIS", nil)
			return
		}
		h.writeDomainError(w, err)
		return
	}

	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// DeleteEmployee removes an employee. The store cascades to attendance.
func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id := generic.EmployeeID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteEmployee(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ATTENDANCE ENDPOINTS
// =============================================================================

// CreateAttendance records a day explicitly. A second record for the same
// day is a 409 carrying the existing record id.
func (h *Handler) CreateAttendance(w http.ResponseWriter, r *http.Request) {
	var req CreateAttendanceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	day, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", "INVALID_DATE", err)
		return
	}
	status, err := generic.ParseAttendanceStatus(req.Status)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	rec, err := h.Ledger.Add(r.Context(), generic.EmployeeID(req.EmployeeID), day, status)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.publish(r.Context(), notify.ActionCreated, rec)
	writeJSON(w, http.StatusCreated, toAttendanceDTO(rec))
}

// MarkAttendance is get-or-create: 201 when this call created the record,
// 200 when the day was already recorded.
func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	var req MarkAttendanceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	day := h.Today()
	if req.Date != "" {
		var err error
		if day, err = generic.ParseDate(req.Date); err != nil {
			writeError(w, http.StatusBadRequest, "invalid date", "INVALID_DATE", err)
			return
		}
	}

	var (
		rec     generic.AttendanceRecord
		created bool
	)
	err := h.Retry.Do(r.Context(), func(ctx context.Context) error {
		var err error
		rec, created, err = h.Query.GetOrCreate(ctx, generic.EmployeeID(req.EmployeeID), day)
		return err
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.publish(r.Context(), notify.ActionCreated, rec)
	}
	writeJSON(w, status, toAttendanceDTO(rec))
}

// ListAttendance returns one employee's records in [start, end], ascending.
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	employeeID := q.Get("employeeId")
	if employeeID == "" {
		writeError(w, http.StatusBadRequest, "employeeId is required", "VALIDATION_ERROR", nil)
		return
	}
	period, err := parsePeriod(q.Get("start"), q.Get("end"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	var recs []generic.AttendanceRecord
	err = h.Retry.Do(r.Context(), func(ctx context.Context) error {
		var err error
		recs, err = h.Query.Range(ctx, generic.EmployeeID(employeeID), period)
		return err
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTOs(recs))
}

// GetAttendance returns a single record.
func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Ledger.Get(r.Context(), generic.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// UpdateAttendance changes a record's status.
func (h *Handler) UpdateAttendance(w http.ResponseWriter, r *http.Request) {
	var req UpdateAttendanceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	status, err := generic.ParseAttendanceStatus(req.Status)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	upd := generic.AttendanceUpdate{Status: status}
	if req.EmployeeID != nil {
		id := generic.EmployeeID(*req.EmployeeID)
		upd.EmployeeID = &id
	}
	if req.Date != nil {
		day, err := generic.ParseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date", "INVALID_DATE", err)
			return
		}
		upd.Date = &day
	}

	rec, err := h.Ledger.Update(r.Context(), generic.RecordID(chi.URLParam(r, "id")), upd)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.publish(r.Context(), notify.ActionUpdated, rec)
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// DeleteAttendance removes a record. Deleting it again is a 404.
func (h *Handler) DeleteAttendance(w http.ResponseWriter, r *http.Request) {
	id := generic.RecordID(chi.URLParam(r, "id"))

	// Read first so the change event can name the employee and date.
	rec, err := h.Ledger.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.Ledger.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.publish(r.Context(), notify.ActionDeleted, rec)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PAYROLL ENDPOINTS
// =============================================================================

// CalculatePayroll computes payroll for one employee or all of them. A
// failure for any employee fails the whole batch.
func (h *Handler) CalculatePayroll(w http.ResponseWriter, r *http.Request) {
	var req CalculatePayrollRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	period, err := parsePeriod(req.StartDate, req.EndDate)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	var employeeID *generic.EmployeeID
	if req.EmployeeID != nil && *req.EmployeeID != "" {
		id := generic.EmployeeID(*req.EmployeeID)
		employeeID = &id
	}
	var opts []payroll.CalculateOption
	if req.SortBy != "" {
		opts = append(opts, payroll.WithSort(payroll.SortOrder(req.SortBy)))
	}

	var results []payroll.Result
	err = h.Retry.Do(r.Context(), func(ctx context.Context) error {
		var err error
		results, err = h.Calculator.Calculate(ctx, employeeID, period, opts...)
		return err
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := CalculatePayrollResponse{Results: make([]PayrollResultDTO, len(results))}
	for i, res := range results {
		resp.Results[i] = toPayrollResultDTO(res)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

// publish sends a change event. The write already succeeded, so a failed
// publish is only logged.
func (h *Handler) publish(ctx context.Context, action notify.Action, rec generic.AttendanceRecord) {
	ev := notify.ChangeFor(action, rec)
	if err := h.Publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		h.logger.Warn("publish attendance change failed",
			zap.String("action", string(action)),
			zap.String("record_id", string(rec.ID)),
			zap.Error(err),
		)
	}
}

// parsePeriod reports missing or malformed dates as ErrInvalidPeriod.
func parsePeriod(start, end string) (generic.Period, error) {
	if start == "" || end == "" {
		return generic.Period{}, fmt.Errorf("%w: start and end dates are required", generic.ErrInvalidPeriod)
	}
	from, err := generic.ParseDate(start)
	if err != nil {
		return generic.Period{}, fmt.Errorf("%w: %v", generic.ErrInvalidPeriod, err)
	}
	to, err := generic.ParseDate(end)
	if err != nil {
		return generic.Period{}, fmt.Errorf("%w: %v", generic.ErrInvalidPeriod, err)
	}
	return generic.NewPeriod(from, to)
}

// decodeAndValidate decodes the JSON body into dst and checks its validator
// tags. On failure it has already written a 400.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "INVALID_JSON", err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err), "VALIDATION_ERROR", nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the generic error taxonomy onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var dup *generic.DuplicateRecordError
	switch {
	case errors.As(err, &dup):
		resp := ErrorResponse{Error: err.Error(), Code: "DUPLICATE_RECORD"}
		if dup.ExistingID != "" {
			resp.Details = map[string]string{"existingId": string(dup.ExistingID)}
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, generic.ErrDuplicateRecord):
		writeError(w, http.StatusConflict, err.Error(), "DUPLICATE_RECORD", nil)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), "NOT_FOUND", nil)
	case errors.Is(err, generic.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PERIOD", nil)
	case errors.Is(err, generic.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_STATUS", nil)
	case errors.Is(err, generic.ErrImmutableField):
		writeError(w, http.StatusBadRequest, err.Error(), "IMMUTABLE_FIELD", nil)
	case errors.Is(err, generic.ErrInvalidEmployee):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_EMPLOYEE", nil)
	case errors.Is(err, generic.ErrInvalidSalaryBasis):
		h.logger.Error("stored employee has invalid salary basis", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error(), "INVALID_SALARY_BASIS", nil)
	case generic.IsRetryable(err):
		h.logger.Warn("storage unavailable", zap.Error(err))
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "storage temporarily unavailable", "STORAGE_UNAVAILABLE", nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out", "TIMEOUT", nil)
	default:
		h.logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL", nil)
	}
}
