package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/payroll-engine/generic"
	"go.uber.org/zap"
)

// keepAliveInterval is how often an idle stream sends a ping event.
var keepAliveInterval = 30 * time.Second

// StreamAttendance serves attendance changes as Server-Sent Events. With
// ?employeeId= it streams one employee, otherwise every employee.
func (h *Handler) StreamAttendance(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", "STREAMING_UNSUPPORTED", nil)
		return
	}

	employeeID := generic.EmployeeID(r.URL.Query().Get("employeeId"))
	events, cleanup := h.Hub.Subscribe(employeeID)
	defer cleanup()

	// Streams outlive the server's WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	hello, _ := json.Marshal(map[string]string{"employeeId": string(employeeID)})
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", hello)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("marshal attendance event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.EventName(), data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}
