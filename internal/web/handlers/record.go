package handlers

import (
	"math"
	"time"

	"github.com/kozaktomas/face-gate/internal/facematch"
)

// DecisionRecordResponse is the JSON form of a decision record.
// Distances that are infinite or undefined are null.
type DecisionRecordResponse struct {
	QueryID          string    `json:"query_id"`
	Timestamp        time.Time `json:"timestamp"`
	BestUserID       string    `json:"best_uid,omitempty"`
	BestDistance     *float64  `json:"best_d"`
	RunnerUpDistance *float64  `json:"runner_up_d"`
	Margin           *float64  `json:"margin"`
	PerFaceMin       *float64  `json:"per_face_min"`
	PerFaceTop3      []float64 `json:"per_face_top3"`
	Accepted         bool      `json:"accepted"`
	Reason           string    `json:"reason"`
	LatencyMs        float64   `json:"latency_ms"`
	SnapshotVersion  uint64    `json:"snapshot_version"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func newDecisionRecordResponse(rec facematch.DecisionRecord) DecisionRecordResponse {
	top3 := rec.PerFaceTop3
	if top3 == nil {
		top3 = []float64{}
	}
	return DecisionRecordResponse{
		QueryID:          rec.QueryID,
		Timestamp:        rec.Timestamp,
		BestUserID:       rec.BestUserID,
		BestDistance:     finite(rec.BestDistance),
		RunnerUpDistance: finite(rec.RunnerUpDistance),
		Margin:           finite(rec.Margin),
		PerFaceMin:       finite(rec.PerFaceMin),
		PerFaceTop3:      top3,
		Accepted:         rec.Accepted,
		Reason:           string(rec.Reason),
		LatencyMs:        float64(rec.Latency.Microseconds()) / 1000,
		SnapshotVersion:  rec.SnapshotVersion,
	}
}
