package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/telemetry"
)

// StatsSource provides telemetry counters.
type StatsSource interface {
	Stats() telemetry.Stats
}

// SnapshotSource provides the current profile snapshot.
type SnapshotSource interface {
	Snapshot() *facematch.Snapshot
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	telemetry  StatsSource
	profiles   SnapshotSource
	strategies []string
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(t StatsSource, p SnapshotSource, strategies []string) *StatsHandler {
	return &StatsHandler{telemetry: t, profiles: p, strategies: strategies}
}

// StatsResponse represents the statistics response
type StatsResponse struct {
	Telemetry       telemetry.Stats `json:"telemetry"`
	SnapshotVersion uint64          `json:"snapshot_version"`
	LoadedAt        time.Time       `json:"loaded_at"`
	Users           int             `json:"users"`
	Faces           int             `json:"faces"`
	Strategies      []string        `json:"strategies"`
}

// Get returns telemetry counters and profile counts.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap := h.profiles.Snapshot()
	resp := StatsResponse{
		SnapshotVersion: snap.Version,
		LoadedAt:        snap.LoadedAt,
		Users:           snap.Len(),
		Faces:           snap.FaceCount(),
		Strategies:      h.strategies,
	}
	if h.telemetry != nil {
		resp.Telemetry = h.telemetry.Stats()
	}
	respondJSON(w, http.StatusOK, resp)
}
