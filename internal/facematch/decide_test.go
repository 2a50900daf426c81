package facematch

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

// mkProfile builds a profile with a normalized centroid and normalized faces.
func mkProfile(uid string, avg []float64, faces ...[]float64) *UserProfile {
	p := &UserProfile{UserID: uid, Centroid: Normalize(avg)}
	for _, f := range faces {
		p.Faces = append(p.Faces, FaceProfile{UserID: uid, Embedding: Normalize(f)})
	}
	return p
}

func mkSnapshot(profiles ...*UserProfile) *Snapshot {
	s := &Snapshot{Version: 1, Profiles: make(map[string]*UserProfile, len(profiles))}
	for _, p := range profiles {
		s.Profiles[p.UserID] = p
	}
	return s
}

func TestDecide_PositiveMatch(t *testing.T) {
	snap := mkSnapshot(
		mkProfile("A", []float64{0.5, 0.1, 0.2, 0}, []float64{0.5, 0.1, 0.2, 0}, []float64{0.49, 0.11, 0.19, 0}),
		mkProfile("B", []float64{-0.3, 0.2, 0.4, 0}, []float64{-0.3, 0.2, 0.4, 0}),
	)
	th := Thresholds{UserTol: 0.6, UserMargin: 0.05, FaceTol: 0.6}

	d := Decide([]float64{0.49, 0.09, 0.21, 0}, snap, th)

	if !d.Accepted {
		t.Fatalf("expected accept, got reject (%s): %+v", d.Reason, d.Record)
	}
	if d.Record.BestUserID != "A" {
		t.Errorf("best user = %q, want A", d.Record.BestUserID)
	}
	if d.Reason != ReasonAccepted {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonAccepted)
	}
	if len(d.Record.PerFaceTop3) != 2 {
		t.Errorf("per-face top3 length = %d, want 2", len(d.Record.PerFaceTop3))
	}
	if d.Record.PerFaceTop3[0] > d.Record.PerFaceTop3[1] {
		t.Errorf("per-face distances not ascending: %v", d.Record.PerFaceTop3)
	}
	if math.Abs(d.Record.Margin-(d.Record.RunnerUpDistance-d.Record.BestDistance)) > 1e-12 {
		t.Errorf("margin %v != runner-up %v - best %v", d.Record.Margin, d.Record.RunnerUpDistance, d.Record.BestDistance)
	}
	if d.Record.SnapshotVersion != 1 {
		t.Errorf("snapshot version = %d, want 1", d.Record.SnapshotVersion)
	}
}

func TestDecide_AmbiguousRejectedOnMargin(t *testing.T) {
	snap := mkSnapshot(
		mkProfile("A", []float64{0.5, 0.1, 0.2, 0}, []float64{0.5, 0.1, 0.2, 0}),
		mkProfile("B", []float64{0.51, 0.11, 0.19, 0}, []float64{0.51, 0.11, 0.19, 0}),
	)
	th := Thresholds{UserTol: 0.6, UserMargin: 0.02, FaceTol: 0.6}

	d := Decide([]float64{0.505, 0.105, 0.195, 0}, snap, th)

	if d.Accepted {
		t.Fatalf("expected reject for ambiguous identities, got accept: %+v", d.Record)
	}
	if d.Reason != ReasonMargin {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonMargin)
	}
	if d.Record.Margin >= 0.02 {
		t.Errorf("margin = %v, expected < 0.02", d.Record.Margin)
	}
}

func TestDecide_EmptySnapshot(t *testing.T) {
	for name, snap := range map[string]*Snapshot{
		"nil":          nil,
		"empty":        EmptySnapshot(),
		"no centroids": mkSnapshot(&UserProfile{UserID: "A"}),
	} {
		t.Run(name, func(t *testing.T) {
			d := Decide([]float64{1, 0, 0, 0}, snap, Thresholds{UserTol: 10, UserMargin: 0, FaceTol: 10})
			if d.Accepted {
				t.Error("expected reject")
			}
			if d.Reason != ReasonNoProfiles {
				t.Errorf("reason = %q, want %q", d.Reason, ReasonNoProfiles)
			}
			if d.Record.BestUserID != "" {
				t.Errorf("best user = %q, want empty", d.Record.BestUserID)
			}
		})
	}
}

func TestDecide_ZeroFaceProfileAlwaysRejects(t *testing.T) {
	snap := mkSnapshot(&UserProfile{UserID: "A", Centroid: Normalize([]float64{1, 0, 0, 0})})

	d := Decide([]float64{1, 0, 0, 0}, snap, Thresholds{UserTol: 1, UserMargin: 0, FaceTol: 100})

	if d.Accepted {
		t.Fatal("expected reject when best user has no faces")
	}
	if d.Record.BestDistance != 0 {
		t.Errorf("best distance = %v, want 0", d.Record.BestDistance)
	}
	if !math.IsInf(d.Record.PerFaceMin, 1) {
		t.Errorf("per-face min = %v, want +Inf", d.Record.PerFaceMin)
	}
	if d.Reason != ReasonFaceDistance {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonFaceDistance)
	}
}

func TestDecide_SingleCandidateHasInfiniteRunnerUp(t *testing.T) {
	snap := mkSnapshot(mkProfile("A", []float64{1, 0}, []float64{1, 0}))

	d := Decide([]float64{1, 0.01}, snap, Thresholds{UserTol: 0.5, UserMargin: 0.15, FaceTol: 0.5})

	if !math.IsInf(d.Record.RunnerUpDistance, 1) || !math.IsInf(d.Record.Margin, 1) {
		t.Errorf("runner-up = %v, margin = %v, want +Inf for both", d.Record.RunnerUpDistance, d.Record.Margin)
	}
	if !d.Accepted {
		t.Errorf("expected accept, got %s", d.Reason)
	}
}

func TestDecide_TieBreakLowestUserID(t *testing.T) {
	avg := []float64{0.3, 0.4, 0, 0}
	for range 50 {
		snap := mkSnapshot(
			mkProfile("carol", avg, avg),
			mkProfile("alice", avg, avg),
			mkProfile("bob", avg, avg),
		)
		d := Decide([]float64{0.3, 0.41, 0, 0}, snap, Thresholds{UserTol: 1, UserMargin: 0, FaceTol: 1})
		if d.Record.BestUserID != "alice" {
			t.Fatalf("best user = %q, want alice", d.Record.BestUserID)
		}
		if d.Record.Margin != 0 {
			t.Fatalf("margin = %v, want 0 for a tie", d.Record.Margin)
		}
	}
}

func TestDecide_Deterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	snap := randomSnapshot(r, 20, 3)
	q := randomVector(r)
	th := Thresholds{UserTol: 1.2, UserMargin: 0.01, FaceTol: 1.3}

	first := Decide(q, snap, th)
	for range 20 {
		d := Decide(q, snap, th)
		if d.Accepted != first.Accepted || d.Reason != first.Reason {
			t.Fatalf("outcome changed: %v/%s vs %v/%s", d.Accepted, d.Reason, first.Accepted, first.Reason)
		}
		if d.Record.BestUserID != first.Record.BestUserID ||
			d.Record.BestDistance != first.Record.BestDistance ||
			d.Record.RunnerUpDistance != first.Record.RunnerUpDistance ||
			d.Record.PerFaceMin != first.Record.PerFaceMin {
			t.Fatalf("debug distances changed: %+v vs %+v", d.Record, first.Record)
		}
	}
}

func TestDecide_RaisingUserTolIsMonotonic(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for trial := range 100 {
		snap := randomSnapshot(r, 5, 2)
		q := randomVector(r)
		accepted := false
		for tol := 0.0; tol <= 2.0; tol += 0.05 {
			d := Decide(q, snap, Thresholds{UserTol: tol, UserMargin: 0.05, FaceTol: 1.5})
			if accepted && !d.Accepted {
				t.Fatalf("trial %d: raising user_tol to %v turned accept into reject", trial, tol)
			}
			accepted = d.Accepted
		}
	}
}

func TestDecide_DeletedLastFaceRejects(t *testing.T) {
	q := []float64{0.5, 0.1, 0.2, 0}
	before := mkSnapshot(mkProfile("A", q, q))
	th := Thresholds{UserTol: 0.45, UserMargin: 0.15, FaceTol: 0.55}
	if d := Decide(q, before, th); !d.Accepted {
		t.Fatalf("expected accept before deletion, got %s", d.Reason)
	}

	after := mkSnapshot(&UserProfile{UserID: "A"})
	d := Decide(q, after, th)
	if d.Accepted {
		t.Fatal("expected reject after the last face was deleted")
	}
	if d.Reason != ReasonNoProfiles {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonNoProfiles)
	}
}

func TestDecide_TopThreeFaceDistances(t *testing.T) {
	p := mkProfile("A", []float64{1, 0}, []float64{1, 0}, []float64{1, 0.1}, []float64{1, 0.2}, []float64{1, 0.3}, []float64{1, 0.4})
	d := Decide([]float64{1, 0}, mkSnapshot(p), Thresholds{UserTol: 1, FaceTol: 1})
	if len(d.Record.PerFaceTop3) != 3 {
		t.Fatalf("top3 length = %d, want 3", len(d.Record.PerFaceTop3))
	}
	for i := 1; i < 3; i++ {
		if d.Record.PerFaceTop3[i] < d.Record.PerFaceTop3[i-1] {
			t.Errorf("top3 not ascending: %v", d.Record.PerFaceTop3)
		}
	}
	if d.Record.PerFaceTop3[0] != d.Record.PerFaceMin {
		t.Errorf("top3[0] = %v, per-face min = %v", d.Record.PerFaceTop3[0], d.Record.PerFaceMin)
	}
}

func TestErrors(t *testing.T) {
	var err error = &QualityError{Reason: QualityBlurry}
	if !errors.Is(err, ErrQualityRejected) {
		t.Error("QualityError should match ErrQualityRejected")
	}
	var qe *QualityError
	if !errors.As(err, &qe) || qe.Reason != QualityBlurry {
		t.Error("errors.As should recover the quality reason")
	}

	err = &IdentityMismatchError{Asserted: "a", Detected: "b"}
	if !errors.Is(err, ErrIdentityMismatch) {
		t.Error("IdentityMismatchError should match ErrIdentityMismatch")
	}
	if errors.Is(err, ErrNotRecognized) {
		t.Error("IdentityMismatchError must stay distinguishable from ErrNotRecognized")
	}

	err = &NotRecognizedError{Record: DecisionRecord{Reason: ReasonMargin}}
	if !errors.Is(err, ErrNotRecognized) {
		t.Error("NotRecognizedError should match ErrNotRecognized")
	}
	if errors.Is(err, ErrNoProfiles) {
		t.Error("a margin rejection is not ErrNoProfiles")
	}
	err = &NotRecognizedError{Record: DecisionRecord{Reason: ReasonNoProfiles}}
	if !errors.Is(err, ErrNoProfiles) || !errors.Is(err, ErrNotRecognized) {
		t.Error("a no_profiles rejection should match both ErrNoProfiles and ErrNotRecognized")
	}
}

func randomVector(r *rand.Rand) []float64 {
	v := make([]float64, 8)
	for i := range v {
		v[i] = r.NormFloat64()
	}
	return v
}

func randomSnapshot(r *rand.Rand, users, faces int) *Snapshot {
	s := &Snapshot{Version: 7, Profiles: map[string]*UserProfile{}}
	for u := range users {
		uid := string(rune('a' + u))
		var fs []Embedding
		p := &UserProfile{UserID: uid}
		for range faces {
			e := Normalize(randomVector(r))
			fs = append(fs, e)
			p.Faces = append(p.Faces, FaceProfile{UserID: uid, Embedding: e})
		}
		p.Centroid = Centroid(fs)
		s.Profiles[uid] = p
	}
	return s
}
