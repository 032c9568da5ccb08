package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/detect"
	"github.com/kozaktomas/face-attendance/internal/recognize"
	"github.com/kozaktomas/face-attendance/internal/storage"
)

// Recognizer runs one recognition call against the current gallery.
type Recognizer interface {
	Recognize(ctx context.Context, imageData []byte) (*recognize.Outcome, error)
}

// AttendanceWriter persists attendance events and unknown-face records.
type AttendanceWriter interface {
	Insert(ctx context.Context, event *storage.AttendanceEvent) error
	InsertUnknown(ctx context.Context, face *storage.UnknownFace) error
}

// RecognizeHandler handles the recognition endpoint.
type RecognizeHandler struct {
	session    Recognizer
	attendance AttendanceWriter
}

// NewRecognizeHandler creates a new recognition handler.
func NewRecognizeHandler(session Recognizer, attendance AttendanceWriter) *RecognizeHandler {
	return &RecognizeHandler{
		session:    session,
		attendance: attendance,
	}
}

// Recognize accepts a camera frame, runs detection and matching, persists a
// new attendance event per debounce-accepted identity and returns the full
// per-face outcome. Zero detected faces is a normal empty result, not an
// error. An optional camera_id query parameter tags the persisted records.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	imageData, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	cameraID := r.URL.Query().Get("camera_id")

	outcome, err := h.session.Recognize(r.Context(), imageData)
	if err != nil {
		if errors.Is(err, detect.ErrDecode) {
			respondError(w, http.StatusUnprocessableEntity, "could not decode image")
			return
		}
		log.Printf("recognition failed: %v", err)
		respondError(w, http.StatusBadGateway, "face detector unavailable")
		return
	}

	for _, m := range outcome.LoggedMatches() {
		event := &storage.AttendanceEvent{
			IdentityID: m.IdentityID,
			CameraID:   cameraID,
			Confidence: m.Confidence,
		}
		if err := h.attendance.Insert(r.Context(), event); err != nil {
			log.Printf("failed to persist attendance event for %s: %v", sanitizeForLog(m.IdentityID), err)
			respondError(w, http.StatusInternalServerError, "failed to persist attendance event")
			return
		}
	}

	// Unknown faces are kept for later review; losing one is not worth
	// failing the whole call.
	for _, m := range outcome.UnknownMatches() {
		face := &storage.UnknownFace{
			CameraID:  cameraID,
			Embedding: m.Embedding,
			Box:       m.Box,
		}
		if err := h.attendance.InsertUnknown(r.Context(), face); err != nil {
			log.Printf("failed to persist unknown face: %v", err)
		}
	}

	respondJSON(w, http.StatusOK, outcome)
}
