// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.Store. The day index plays the role of the
// database unique key on (employee_id, date).
type Memory struct {
	mu        sync.RWMutex
	records   map[generic.RecordID]generic.AttendanceRecord
	days      map[dayKey]generic.RecordID
	employees map[generic.EmployeeID]generic.Employee
}

type dayKey struct {
	EmployeeID generic.EmployeeID
	Day        string
}

func keyOf(employeeID generic.EmployeeID, day generic.Date) dayKey {
	return dayKey{EmployeeID: employeeID, Day: day.String()}
}

func NewMemory() *Memory {
	return &Memory{
		records:   make(map[generic.RecordID]generic.AttendanceRecord),
		days:      make(map[dayKey]generic.RecordID),
		employees: make(map[generic.EmployeeID]generic.Employee),
	}
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (m *Memory) InsertAttendance(_ context.Context, rec generic.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := keyOf(rec.EmployeeID, rec.Date)
	if existing, ok := m.days[k]; ok {
		return &generic.DuplicateRecordError{EmployeeID: rec.EmployeeID, Date: rec.Date, ExistingID: existing}
	}
	m.records[rec.ID] = rec
	m.days[k] = rec.ID
	return nil
}

func (m *Memory) GetAttendance(_ context.Context, id generic.RecordID) (generic.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return generic.AttendanceRecord{}, generic.ErrRecordNotFound
	}
	return rec, nil
}

func (m *Memory) FindAttendanceDay(_ context.Context, employeeID generic.EmployeeID, day generic.Date) (generic.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.days[keyOf(employeeID, day)]
	if !ok {
		return generic.AttendanceRecord{}, generic.ErrRecordNotFound
	}
	return m.records[id], nil
}

func (m *Memory) UpdateAttendanceStatus(_ context.Context, id generic.RecordID, status generic.AttendanceStatus) (generic.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return generic.AttendanceRecord{}, generic.ErrRecordNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	m.records[id] = rec
	return rec, nil
}

func (m *Memory) DeleteAttendance(_ context.Context, id generic.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return generic.ErrRecordNotFound
	}
	delete(m.records, id)
	delete(m.days, keyOf(rec.EmployeeID, rec.Date))
	return nil
}

// LoadAttendanceRange holds the read lock for the whole scan, so the result
// is a single consistent snapshot of the employee's records.
func (m *Memory) LoadAttendanceRange(_ context.Context, employeeID generic.EmployeeID, from, to generic.Date) ([]generic.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []generic.AttendanceRecord{}
	for _, rec := range m.records {
		if rec.EmployeeID == employeeID && !rec.Date.Before(from) && !rec.Date.After(to) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (m *Memory) GetEmployee(_ context.Context, id generic.EmployeeID) (generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	emp, ok := m.employees[id]
	if !ok {
		return generic.Employee{}, generic.ErrEmployeeNotFound
	}
	return emp, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.Employee, 0, len(m.employees))
	for _, emp := range m.employees {
		result = append(result, emp)
	}
	return result, nil
}

func (m *Memory) SaveEmployee(_ context.Context, emp generic.Employee) error {
	if err := emp.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[emp.ID] = emp
	return nil
}

// DeleteEmployee also drops the employee's attendance, matching the
// ON DELETE CASCADE of the SQL stores.
func (m *Memory) DeleteEmployee(_ context.Context, id generic.EmployeeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.employees[id]; !ok {
		return generic.ErrEmployeeNotFound
	}
	delete(m.employees, id)
	for rid, rec := range m.records {
		if rec.EmployeeID == id {
			delete(m.records, rid)
			delete(m.days, keyOf(rec.EmployeeID, rec.Date))
		}
	}
	return nil
}

// PutEmployeeUnchecked stores an employee without validation. Tests use it
// to simulate corrupt rows (e.g. an unknown salary basis).
func (m *Memory) PutEmployeeUnchecked(emp generic.Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[emp.ID] = emp
}
