package facematch

import (
	"cmp"
	"math"
	"slices"
	"time"
)

// candidate is one user's centroid distance to the query.
type candidate struct {
	userID   string
	distance float64
}

// rankCandidates computes the distance from q to every non-absent centroid and sorts ascending.
// Equal distances are ordered by user ID so the ranking never depends on map iteration order.
func rankCandidates(q Embedding, snap *Snapshot) []candidate {
	if snap == nil {
		return nil
	}
	cands := make([]candidate, 0, len(snap.Profiles))
	for uid, p := range snap.Profiles {
		if p == nil || p.Centroid == nil {
			continue
		}
		cands = append(cands, candidate{userID: uid, distance: Distance(q, p.Centroid)})
	}
	slices.SortFunc(cands, func(a, b candidate) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.userID, b.userID)
	})
	return cands
}

// faceDistances returns the ascending distances from q to each of the profile's faces.
func faceDistances(q Embedding, p *UserProfile) []float64 {
	ds := make([]float64, 0, len(p.Faces))
	for i := range p.Faces {
		ds = append(ds, Distance(q, p.Faces[i].Embedding))
	}
	slices.Sort(ds)
	return ds
}

// Decide compares the query against every profile in snap and applies the conjunctive rule:
//
//	best <= UserTol && margin >= UserMargin && perFaceMin <= FaceTol
//
// It performs no I/O and keeps no state, so it is safe to call concurrently.
// The returned record has no QueryID or Timestamp; callers stamp those.
func Decide(q []float64, snap *Snapshot, th Thresholds) Decision {
	start := time.Now()
	inf := math.Inf(1)

	rec := DecisionRecord{
		BestDistance:     inf,
		RunnerUpDistance: inf,
		Margin:           math.NaN(),
		PerFaceMin:       inf,
	}
	if snap != nil {
		rec.SnapshotVersion = snap.Version
	}

	qn := Normalize(q)
	cands := rankCandidates(qn, snap)
	if len(cands) == 0 {
		rec.Reason = ReasonNoProfiles
		rec.Latency = time.Since(start)
		return Decision{Reason: ReasonNoProfiles, Record: rec}
	}

	best := cands[0]
	rec.BestUserID = best.userID
	rec.BestDistance = best.distance
	if len(cands) > 1 {
		rec.RunnerUpDistance = cands[1].distance
	}
	rec.Margin = rec.RunnerUpDistance - rec.BestDistance

	ds := faceDistances(qn, snap.Profiles[best.userID])
	if len(ds) > 0 {
		rec.PerFaceMin = ds[0]
	}
	rec.PerFaceTop3 = ds[:min(3, len(ds))]

	switch {
	case !(rec.BestDistance <= th.UserTol):
		rec.Reason = ReasonUserDistance
	case !(rec.Margin >= th.UserMargin):
		rec.Reason = ReasonMargin
	case !(rec.PerFaceMin <= th.FaceTol):
		rec.Reason = ReasonFaceDistance
	default:
		rec.Reason = ReasonAccepted
		rec.Accepted = true
	}

	rec.Latency = time.Since(start)
	return Decision{Accepted: rec.Accepted, Reason: rec.Reason, Record: rec}
}
