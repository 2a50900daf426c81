// Package recognition runs one match attempt end to end: quality gate,
// extraction, decision against a single snapshot, and telemetry.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/profiles"
	"github.com/kozaktomas/face-gate/internal/quality"
	"github.com/kozaktomas/face-gate/internal/worker"
)

// ErrEmptyQuery is returned when a query carries neither an image nor an embedding.
var ErrEmptyQuery = errors.New("query has no image or embedding")

// Checker runs the quality gate on one image.
type Checker interface {
	Check(ctx context.Context, imageData []byte) (*quality.Result, error)
}

// SnapshotSource provides the current profile snapshot.
type SnapshotSource interface {
	Snapshot() *facematch.Snapshot
}

// Recorder receives every decision record. Implementations must not block.
type Recorder interface {
	Log(rec facematch.DecisionRecord)
}

// Query is one match request. Exactly one of Image or Embedding is used;
// Image wins when both are set.
type Query struct {
	Image     []byte
	Embedding []float64

	// AssertedUserID, when set, must equal the recognized user.
	AssertedUserID string
	// TrueLabel is the ground truth for offline evaluation. Logged only.
	TrueLabel string
}

// Outcome is an accepted match.
type Outcome struct {
	UserID  string
	Record  facematch.DecisionRecord
	Quality *quality.Result // nil for embedding queries
}

// Recognizer matches faces against the profile mirror.
type Recognizer struct {
	gate       Checker
	pool       *worker.Pool
	profiles   SnapshotSource
	thresholds func() facematch.Thresholds
	recorder   Recorder
}

// NewRecognizer creates a recognizer. thresholds is read once per query.
// recorder may be nil.
func NewRecognizer(
	gate Checker, pool *worker.Pool, profiles SnapshotSource,
	thresholds func() facematch.Thresholds, recorder Recorder,
) *Recognizer {
	return &Recognizer{
		gate:       gate,
		pool:       pool,
		profiles:   profiles,
		thresholds: thresholds,
		recorder:   recorder,
	}
}

// Match recognizes the face in q. Every decision that reaches the decision
// rule is recorded, accepted or not. A rejection is *facematch.NotRecognizedError
// carrying the record; an accepted face that differs from q.AssertedUserID is
// *facematch.IdentityMismatchError.
func (r *Recognizer) Match(ctx context.Context, q Query) (*Outcome, error) {
	var (
		emb facematch.Embedding
		qr  *quality.Result
	)
	switch {
	case len(q.Image) > 0:
		if len(q.Image) > constants.MaxImageBytes {
			return nil, fmt.Errorf("%w: %d bytes exceeds %d", quality.ErrInvalidImage, len(q.Image), constants.MaxImageBytes)
		}
		res, err := worker.Submit(ctx, r.pool, func(ctx context.Context) (*quality.Result, error) {
			return r.gate.Check(ctx, q.Image)
		})
		if err != nil {
			return nil, err
		}
		if err := facematch.ValidateEmbedding(res.Face.Embedding); err != nil {
			return nil, fmt.Errorf("%w: %w", facematch.ErrExtractionFailed, err)
		}
		emb, qr = res.Face.Embedding, res
	case len(q.Embedding) > 0:
		if err := facematch.ValidateEmbedding(q.Embedding); err != nil {
			return nil, err
		}
		if facematch.IsZero(q.Embedding) {
			return nil, fmt.Errorf("%w: zero vector", facematch.ErrInvalidEmbedding)
		}
		emb = q.Embedding
	default:
		return nil, ErrEmptyQuery
	}

	snap := r.profiles.Snapshot()
	d := facematch.Decide(emb, snap, r.thresholds())

	rec := d.Record
	rec.QueryID = uuid.NewString()
	rec.Timestamp = time.Now().UTC()
	rec.TrueLabel = q.TrueLabel
	if r.recorder != nil {
		r.recorder.Log(rec)
	}

	if !d.Accepted {
		return nil, &facematch.NotRecognizedError{Record: rec}
	}
	if q.AssertedUserID != "" {
		if asserted := profiles.NormalizeUserID(q.AssertedUserID); asserted != rec.BestUserID {
			return nil, &facematch.IdentityMismatchError{Asserted: asserted, Detected: rec.BestUserID}
		}
	}
	return &Outcome{UserID: rec.BestUserID, Record: rec, Quality: qr}, nil
}
