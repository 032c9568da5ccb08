package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kozaktomas/face-attendance/internal/storage"
)

// AttendanceLister queries persisted attendance events.
type AttendanceLister interface {
	List(ctx context.Context, filter storage.ListFilter) ([]storage.AttendanceEvent, error)
}

// AttendanceHandler handles attendance log queries.
type AttendanceHandler struct {
	attendance AttendanceLister
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(attendance AttendanceLister) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// List returns attendance events, newest first. Supported query parameters:
// identity_id, from, to (RFC 3339), limit and offset.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ListFilter{
		IdentityID: q.Get("identity_id"),
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "to must be an RFC 3339 timestamp")
			return
		}
		filter.To = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	events, err := h.attendance.List(r.Context(), filter)
	if err != nil {
		log.Printf("attendance query failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to query attendance log")
		return
	}
	if events == nil {
		events = []storage.AttendanceEvent{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"events": events,
	})
}
