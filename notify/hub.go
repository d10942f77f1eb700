/*
Package notify fans attendance changes out to interested parties.

PURPOSE:
  The engine itself emits nothing. After a successful attendance write the
  HTTP layer publishes an AttendanceChanged event; this package delivers it
  to SSE subscribers (Hub) and, when configured, to Kafka (KafkaPublisher).

DELIVERY:
  Best effort. A slow SSE subscriber drops events instead of blocking the
  writer, and a failed publish never undoes the write that caused it.

SUBSCRIPTIONS:
  Hub keys subscribers by employee id. AllEmployees ("") receives every
  event regardless of employee.

SEE ALSO:
  - publisher.go: Publisher interface, Kafka and fan-out publishers
  - api/stream.go: text/event-stream endpoint backed by the Hub
*/
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/warp/payroll-engine/generic"
)

// AllEmployees is the subscription key that receives every event.
const AllEmployees generic.EmployeeID = ""

const subscriberBuffer = 10

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// AttendanceChanged is published after every successful attendance write.
type AttendanceChanged struct {
	Action     Action                   `json:"action"`
	EmployeeID generic.EmployeeID       `json:"employeeId"`
	RecordID   generic.RecordID         `json:"recordId"`
	Date       generic.Date             `json:"date"`
	Status     generic.AttendanceStatus `json:"status,omitempty"`
	OccurredAt time.Time                `json:"occurredAt"`
}

// EventName is the SSE event name and Kafka event_type header.
func (AttendanceChanged) EventName() string { return "attendance.changed" }

// ChangeFor builds the event for a record.
func ChangeFor(action Action, rec generic.AttendanceRecord) AttendanceChanged {
	return AttendanceChanged{
		Action:     action,
		EmployeeID: rec.EmployeeID,
		RecordID:   rec.ID,
		Date:       rec.Date,
		Status:     rec.Status,
		OccurredAt: time.Now().UTC(),
	}
}

// =============================================================================
// HUB
// =============================================================================

// Hub manages SSE subscribers and event broadcasting.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[generic.EmployeeID]map[chan AttendanceChanged]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[generic.EmployeeID]map[chan AttendanceChanged]struct{}),
	}
}

// Subscribe registers a subscriber for one employee (or AllEmployees) and
// returns the event channel and a cleanup function that closes it.
func (h *Hub) Subscribe(employeeID generic.EmployeeID) (<-chan AttendanceChanged, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan AttendanceChanged, subscriberBuffer)
	if h.subscribers[employeeID] == nil {
		h.subscribers[employeeID] = make(map[chan AttendanceChanged]struct{})
	}
	h.subscribers[employeeID][ch] = struct{}{}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subscribers[employeeID], ch)
			close(ch)
			if len(h.subscribers[employeeID]) == 0 {
				delete(h.subscribers, employeeID)
			}
		})
	}
	return ch, cleanup
}

// Publish delivers to the employee's subscribers and to AllEmployees.
// Full channels are skipped. Never returns an error.
func (h *Hub) Publish(_ context.Context, event AttendanceChanged) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.deliver(event.EmployeeID, event)
	if event.EmployeeID != AllEmployees {
		h.deliver(AllEmployees, event)
	}
	return nil
}

func (h *Hub) deliver(key generic.EmployeeID, event AttendanceChanged) {
	for ch := range h.subscribers[key] {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers for a key.
func (h *Hub) SubscriberCount(employeeID generic.EmployeeID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[employeeID])
}

// TotalSubscribers returns the number of active subscribers across all keys.
func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, subs := range h.subscribers {
		total += len(subs)
	}
	return total
}
