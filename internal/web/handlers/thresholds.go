package handlers

import (
	"log"
	"net/http"

	"github.com/kozaktomas/face-gate/internal/config"
)

// ThresholdsHandler exposes the live thresholds.
type ThresholdsHandler struct {
	store *config.ThresholdStore
}

// NewThresholdsHandler creates a new thresholds handler.
func NewThresholdsHandler(store *config.ThresholdStore) *ThresholdsHandler {
	return &ThresholdsHandler{store: store}
}

// Get returns the current thresholds.
func (h *ThresholdsHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Get())
}

// Update overlays the request body onto the current thresholds. Omitted
// fields keep their value. The change applies to the next request and is
// not persisted.
func (h *ThresholdsHandler) Update(w http.ResponseWriter, r *http.Request) {
	old := h.store.Get()
	next := old
	if !decodeJSON(w, r, &next) {
		return
	}
	if err := h.store.Set(next); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Printf("thresholds updated: %+v -> %+v", old, next)
	respondJSON(w, http.StatusOK, next)
}
