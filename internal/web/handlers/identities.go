package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/detect"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/recognize"
)

// Encoder extracts a face embedding from an enrollment photo.
type Encoder interface {
	Encode(ctx context.Context, imageData []byte, opts detect.Options) ([]float32, int, error)
}

// IdentityRepo persists enrolled identities.
type IdentityRepo interface {
	Add(ctx context.Context, id, displayName string, embedding []float32) error
	Remove(ctx context.Context, id string) error
	LoadGallery(ctx context.Context, store *gallery.Store) error
}

// IdentitiesHandler handles identity enrollment and management endpoints.
type IdentitiesHandler struct {
	encoder     Encoder
	repo        IdentityRepo
	store       *gallery.Store
	debouncer   *recognize.Debouncer
	encoderOpts detect.Options
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(encoder Encoder, repo IdentityRepo, store *gallery.Store, debouncer *recognize.Debouncer, opts detect.Options) *IdentitiesHandler {
	return &IdentitiesHandler{
		encoder:     encoder,
		repo:        repo,
		store:       store,
		debouncer:   debouncer,
		encoderOpts: opts,
	}
}

// identitySummary is the list/enroll response shape. Embeddings stay internal.
type identitySummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Enroll registers a new identity from a reference photo. The photo must
// contain exactly one face; an optional id form field overrides the generated
// one.
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file field is required")
		return
	}
	defer file.Close()
	imageData, err := readAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	embedding, faces, err := h.encoder.Encode(r.Context(), imageData, h.encoderOpts)
	if err != nil {
		if errors.Is(err, detect.ErrDecode) {
			respondError(w, http.StatusUnprocessableEntity, "could not decode image")
			return
		}
		log.Printf("enrollment encoding failed: %v", err)
		respondError(w, http.StatusBadGateway, "face detector unavailable")
		return
	}
	if faces == 0 {
		respondError(w, http.StatusBadRequest, "no face found in the enrollment photo")
		return
	}
	if faces > 1 {
		respondError(w, http.StatusBadRequest, "enrollment photo must contain exactly one face")
		return
	}

	id := strings.TrimSpace(r.FormValue("id"))
	if id == "" {
		id = uuid.NewString()
	}

	// The in-memory store validates dimensionality and uniqueness before the
	// database sees the row, so a rejected enrollment leaves no trace.
	if err := h.store.Add(id, name, embedding); err != nil {
		switch {
		case errors.Is(err, gallery.ErrDuplicateIdentity):
			respondError(w, http.StatusConflict, "identity already enrolled")
		case errors.Is(err, gallery.ErrDimensionMismatch):
			respondError(w, http.StatusBadRequest, "embedding dimensionality mismatch")
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if err := h.repo.Add(r.Context(), id, name, embedding); err != nil {
		if removeErr := h.store.Remove(id); removeErr != nil {
			log.Printf("failed to roll back gallery entry %s: %v", sanitizeForLog(id), removeErr)
		}
		if errors.Is(err, gallery.ErrDuplicateIdentity) {
			respondError(w, http.StatusConflict, "identity already enrolled")
			return
		}
		log.Printf("failed to persist identity %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to persist identity")
		return
	}

	respondJSON(w, http.StatusCreated, identitySummary{ID: id, DisplayName: name})
}

// List returns the enrolled identities from the in-memory gallery. An
// optional name query parameter filters by display name, diacritics- and
// case-insensitive.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	var snapshot []gallery.Identity
	if name := r.URL.Query().Get("name"); name != "" {
		snapshot = h.store.FindByName(name)
	} else {
		snapshot = h.store.Snapshot()
	}
	identities := make([]identitySummary, 0, len(snapshot))
	for _, entry := range snapshot {
		identities = append(identities, identitySummary{
			ID:          entry.ID,
			DisplayName: entry.DisplayName,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":      len(identities),
		"identities": identities,
	})
}

// Delete removes an enrolled identity and forgets its debounce state, so a
// re-enrolled person logs attendance immediately.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.repo.Remove(r.Context(), id); err != nil {
		if errors.Is(err, gallery.ErrNotFound) {
			respondError(w, http.StatusNotFound, "identity not found")
			return
		}
		log.Printf("failed to delete identity %s: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to delete identity")
		return
	}
	if err := h.store.Remove(id); err != nil && !errors.Is(err, gallery.ErrNotFound) {
		log.Printf("failed to drop gallery entry %s: %v", sanitizeForLog(id), err)
	}
	h.debouncer.Forget(id)

	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// Reload replaces the in-memory gallery with the current database contents.
func (h *IdentitiesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.LoadGallery(r.Context(), h.store); err != nil {
		log.Printf("gallery reload failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to reload gallery")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"reloaded": h.store.Len(),
	})
}
