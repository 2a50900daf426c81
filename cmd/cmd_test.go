package cmd

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-gate/internal/enroll"
	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/recognition"
)

func TestScanEnrollDir(t *testing.T) {
	root := t.TempDir()
	write := func(rel string) {
		t.Helper()
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("alice/1.jpg")
	write("alice/2.PNG")
	write("alice/notes.txt")
	write("bob/front.webp")
	write("empty/readme.md")
	write("stray.jpg")

	batches, err := scanEnrollDir(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d: %+v", len(batches), batches)
	}
	if batches[0].userID != "alice" || len(batches[0].paths) != 2 {
		t.Errorf("unexpected alice batch %+v", batches[0])
	}
	if batches[1].userID != "bob" || len(batches[1].paths) != 1 {
		t.Errorf("unexpected bob batch %+v", batches[1])
	}

	if _, err := scanEnrollDir(filepath.Join(root, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestNewMatchOutput(t *testing.T) {
	rec := facematch.DecisionRecord{
		QueryID:          "q1",
		BestUserID:       "alice",
		BestDistance:     0.3,
		RunnerUpDistance: math.Inf(1),
		Margin:           math.Inf(1),
		PerFaceMin:       0.25,
		PerFaceTop3:      []float64{0.25, 0.4},
		Reason:           facematch.ReasonAccepted,
		SnapshotVersion:  7,
	}

	t.Run("accepted", func(t *testing.T) {
		out := newMatchOutput(&recognition.Outcome{UserID: "alice", Record: rec}, nil)
		if !out.Accepted || out.UserID != "alice" || out.RunnerUpD != "+Inf" || out.BestD != "0.300000" {
			t.Errorf("unexpected output %+v", out)
		}
		if len(out.PerFaceTop) != 2 || out.Snapshot != 7 {
			t.Errorf("unexpected record fields %+v", out)
		}
	})

	t.Run("not recognized keeps record", func(t *testing.T) {
		r := rec
		r.Reason = facematch.ReasonFaceDistance
		out := newMatchOutput(nil, &facematch.NotRecognizedError{Record: r})
		if out.Accepted || out.Reason != "face_distance" || out.BestUserID != "alice" {
			t.Errorf("unexpected output %+v", out)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		out := newMatchOutput(nil, &facematch.IdentityMismatchError{Asserted: "bob", Detected: "alice"})
		if out.Accepted || out.Reason != "" || out.Error == "" {
			t.Errorf("unexpected output %+v", out)
		}
	})

	t.Run("other error", func(t *testing.T) {
		out := newMatchOutput(nil, errors.New("boom"))
		if out.Error != "boom" {
			t.Errorf("unexpected output %+v", out)
		}
	})
}

func TestNewEnrollOutput(t *testing.T) {
	res := &enroll.Result{
		UserID:     "alice",
		Added:      []facematch.FaceProfile{{ID: "f1"}, {ID: "f2"}},
		FaceCount:  3,
		HasProfile: true,
	}
	out := newEnrollOutput("alice", res, nil)
	if len(out.FaceIDs) != 2 || out.FaceCount != 3 || out.Error != "" {
		t.Errorf("unexpected output %+v", out)
	}

	out = newEnrollOutput("bob", nil, enroll.ErrNoImages)
	if out.UserID != "bob" || out.Error == "" {
		t.Errorf("expected error output, got %+v", out)
	}
}

func TestReportEnrollments(t *testing.T) {
	if err := reportEnrollments([]EnrollOutput{{UserID: "alice", FaceCount: 1}}, false); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := reportEnrollments([]EnrollOutput{{UserID: "alice"}, {UserID: "bob", Error: "blurry"}}, false)
	if err == nil {
		t.Error("expected error when an enrollment failed")
	}
}
